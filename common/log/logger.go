// Package log configures the process-wide logrus logger from the logging config section.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/devrig/snapkeep/common/log/hooks"
)

// Config selects level, format and destination of log output.
type Config struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=error warn info debug"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	Output string `mapstructure:"output"`
}

// Configure applies c to the standard logrus logger and installs the context hook.
// The returned closer releases a file output and is never nil.
func Configure(c Config) (io.Closer, error) {
	level := c.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nopCloser{}, err
	}
	log.SetLevel(lvl)

	switch strings.ToLower(c.Format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return nopCloser{}, fmt.Errorf("unknown log format %q", c.Format)
	}

	var closer io.Closer = nopCloser{}
	switch c.Output {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(c.Output, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640)
		if err != nil {
			return nopCloser{}, err
		}
		log.SetOutput(f)
		closer = f
	}

	log.AddHook(hooks.NewContextHook())
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
