package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

var TimeoutError = errors.New("command timeout")

// RunResult summarizes one finished command.
type RunResult struct {
	// ProcessState contains information about an exited process.
	// A command that fails to start may have a nil ProcessState.
	ProcessState *os.ProcessState

	Stdout []byte
	Stderr []byte

	// Error contains any error from Start() or Wait(), or TimeoutError wrapping the
	// context error when the deadline expired.
	Error error
}

func (rr RunResult) String() string {
	return fmt.Sprintf("Error:%s, Stdout:%s, Stderr:%s", rr.Error, rr.Stdout, rr.Stderr)
}

// Err returns Error annotated with the command's trimmed stderr, or nil.
func (rr RunResult) Err() error {
	if rr.Error == nil {
		return nil
	}
	stderr := strings.TrimSpace(string(rr.Stderr))
	if stderr == "" {
		return rr.Error
	}
	return &commandError{err: rr.Error, stderr: stderr}
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string { return fmt.Sprintf("%v: %s", e.err, e.stderr) }
func (e *commandError) Unwrap() error { return e.err }
func (e *commandError) Cause() error  { return e.err }

func truncateCmd(cmd Cmd) string {
	args := cmd.Args()
	if len(args) > 0 {
		args[0] = filepath.Base(args[0])
	}
	return strings.Join(args, " ")
}

// RunCommand execs cmd and waits for it, killing it if ctx is done first.
// On ctx expiry the process gets SIGTERM, then SIGKILL after killTimeout.
func RunCommand(ctx context.Context, cmd Cmd, killTimeout time.Duration) RunResult {
	var rr RunResult
	var outBuf, errBuf bytes.Buffer
	cmd.SetStdout(&outBuf)
	cmd.SetStderr(&errBuf)

	log.Debugf("Running Command: %s", truncateCmd(cmd))
	if err := ctx.Err(); err != nil {
		rr.Error = fmt.Errorf("%w: %v", TimeoutError, err)
		return rr
	}
	cmdErr := cmd.Start()
	if cmdErr != nil {
		rr.Error = cmdErr
		rr.Stdout = outBuf.Bytes()
		rr.Stderr = errBuf.Bytes()
		return rr
	}

	doneCh := make(chan struct{})
	go func() {
		cmdErr = cmd.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-ctx.Done():
		log.Infof("command %q did not finish before deadline (%v). Killing command", truncateCmd(cmd), ctx.Err())
		termThenKill(cmd.Process(), killTimeout, doneCh)
		// must still wait for cmd.Wait()
		<-doneCh
		cmdErr = fmt.Errorf("%w: %v", TimeoutError, ctx.Err())
	}

	rr.ProcessState = cmd.ProcessState()
	rr.Stdout = outBuf.Bytes()
	rr.Stderr = errBuf.Bytes()
	rr.Error = cmdErr
	return rr
}

// termThenKill will SIGTERM a process, then Kill it if it hasn't exited after duration d.
// waitDoneCh must be closed by the caller when the process exits (to avoid double Wait()ing)
func termThenKill(p *os.Process, d time.Duration, waitDoneCh <-chan struct{}) error {
	if p == nil {
		return nil
	}
	log.Info("Sending SIGTERM to command")
	err := p.Signal(syscall.SIGTERM)
	if err != nil {
		log.Errorf("Failed to send SIGTERM to process: %s", err)
		return err
	}

	select {
	case <-waitDoneCh:
	case <-time.After(d):
		log.Info("Command hasn't exited, using Kill()")
		err = p.Kill()
		if err != nil {
			log.Errorf("Failed to Kill() process: %s", err)
			return err
		}
	}
	return nil
}

// Runner runs a named command to completion within ctx.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) RunResult
}

type osRunner struct {
	exec        OsExec
	killTimeout time.Duration
}

// NewRunner returns a Runner executing real processes through e.
func NewRunner(e OsExec, killTimeout time.Duration) Runner {
	if e == nil {
		e = NewOsExec()
	}
	return &osRunner{exec: e, killTimeout: killTimeout}
}

func (r *osRunner) Run(ctx context.Context, name string, args ...string) RunResult {
	return RunCommand(ctx, r.exec.Command(name, args...), r.killTimeout)
}
