package hooks

import (
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ContextHook adds the caller's "file:line" to every entry.
type ContextHook struct{}

func NewContextHook() ContextHook {
	return ContextHook{}
}

func (hook ContextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook ContextHook) Fire(entry *log.Entry) error {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isLoggingFrame(frame.Function) {
			entry.Data["file:line"] = trimPath(frame.File) + ":" + strconv.Itoa(frame.Line)
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isLoggingFrame(fn string) bool {
	return strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "common/log/hooks")
}

func trimPath(file string) string {
	ctx := strings.Split(file, "snapkeep/")
	return ctx[len(ctx)-1]
}
