// Package exec provides a thin interface around os/exec so command execution can be
// faked in tests, plus a runner that bounds every command by a context deadline.
package exec

import (
	"io"
	"os"
	osexec "os/exec"
	"syscall"
)

type (
	// OsExec provides an interface around os/exec.Command to support injecting fake
	// exec functionality
	OsExec interface {
		// Command creates a Cmd with the path to the command to run and its arguments set.
		// If name contains no path separators, os/exec.LookPath is used to resolve it.
		Command(cmd string, args ...string) Cmd
	}

	defaultOsExec struct{}

	// Cmd wraps the os/exec.Cmd struct with our own interface
	Cmd interface {
		// Path returns the path to the executable to run
		Path() string

		// Args returns a copy of the arguments given to the executable, name included.
		Args() []string

		// Start starts the command but does not wait for it to complete.
		Start() error

		// Wait waits for a started command to exit and releases its resources.
		// Returns an ExitError if the command exits with a non-zero status.
		Wait() error

		SetStdout(io.Writer)
		SetStderr(io.Writer)
		SetDir(string)

		// String returns a human-readable description of c. It is intended only for debugging.
		String() string

		// Process returns the underlying os.Process once started, nil before.
		Process() *os.Process

		// ProcessState returns the underlying ProcessState once exited, nil before.
		ProcessState() *os.ProcessState
	}

	// ExitError provides our own interface around process termination to allow for
	// mocking in tests.
	ExitError interface {
		Exited() bool
		ExitStatus() int
		Signaled() bool
		Signal() syscall.Signal
		Error() string
		Path() string
		Args() []string
	}

	cmdAdapter struct {
		cmd *osexec.Cmd
	}

	exitErrorAdapter struct {
		err  *osexec.ExitError
		ws   syscall.WaitStatus
		path string
		args []string
	}
)

// implements assertions
var (
	_ ExitError = &exitErrorAdapter{}
	_ Cmd       = &cmdAdapter{}
)

// NewOsExec creates a default OsExec instance
func NewOsExec() OsExec {
	return &defaultOsExec{}
}

func (d *defaultOsExec) Command(cmd string, args ...string) Cmd {
	return &cmdAdapter{cmd: osexec.Command(cmd, args...)}
}

func wrapExitError(cmd Cmd, err error) error {
	if err == nil {
		return nil
	}

	if ex, ok := err.(*osexec.ExitError); ok {
		if ws, ok := ex.Sys().(syscall.WaitStatus); ok {
			return &exitErrorAdapter{
				err:  ex,
				ws:   ws,
				path: cmd.Path(),
				args: cmd.Args(),
			}
		}
	}
	return err
}

func (e *exitErrorAdapter) Exited() bool           { return e.ws.Exited() }
func (e *exitErrorAdapter) ExitStatus() int        { return e.ws.ExitStatus() }
func (e *exitErrorAdapter) Signaled() bool         { return e.ws.Signaled() }
func (e *exitErrorAdapter) Signal() syscall.Signal { return e.ws.Signal() }
func (e *exitErrorAdapter) Error() string          { return e.err.Error() }
func (e *exitErrorAdapter) Path() string           { return e.path }
func (e *exitErrorAdapter) Args() []string         { return e.args }

func (c *cmdAdapter) Start() error { return c.cmd.Start() }
func (c *cmdAdapter) Wait() error  { return wrapExitError(c, c.cmd.Wait()) }

func (c *cmdAdapter) Path() string                   { return c.cmd.Path }
func (c *cmdAdapter) SetStdout(w io.Writer)          { c.cmd.Stdout = w }
func (c *cmdAdapter) SetStderr(w io.Writer)          { c.cmd.Stderr = w }
func (c *cmdAdapter) SetDir(dir string)              { c.cmd.Dir = dir }
func (c *cmdAdapter) String() string                 { return c.cmd.String() }
func (c *cmdAdapter) Process() *os.Process           { return c.cmd.Process }
func (c *cmdAdapter) ProcessState() *os.ProcessState { return c.cmd.ProcessState }

func (c *cmdAdapter) Args() []string {
	// return a copy of the Args slice to prevent direct modification by the user
	return append([]string(nil), c.cmd.Args...)
}
