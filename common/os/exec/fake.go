package exec

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner is a Runner that records commands instead of executing them.
// Handler, when set, produces the result for each command; otherwise every command succeeds.
type FakeRunner struct {
	Handler func(ctx context.Context, name string, args []string) RunResult

	mu       sync.Mutex
	commands [][]string
}

var _ Runner = &FakeRunner{}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) RunResult {
	f.mu.Lock()
	f.commands = append(f.commands, append([]string{name}, args...))
	f.mu.Unlock()
	if f.Handler == nil {
		return RunResult{}
	}
	return f.Handler(ctx, name, args)
}

// Commands returns every recorded command line, joined with spaces.
func (f *FakeRunner) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		out = append(out, strings.Join(c, " "))
	}
	return out
}
