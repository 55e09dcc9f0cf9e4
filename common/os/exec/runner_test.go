package exec

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	outputExitScript string = `
#!/bin/bash
echo "stdout line"
echo "stderr line" 1>&2`
	failScript string = `
#!/bin/bash
echo "ERROR: cannot snapshot" 1>&2
exit 1`
	trapScript string = `
#!/bin/bash
trap ':' SIGTERM
while :
do sleep 1
done`
)

func TestUnrunnableCommand(t *testing.T) {
	rr := NewRunner(nil, 0).Run(context.Background(), "sjkldoeiujeiuc")
	if rr.Error == nil {
		t.Fatal("unexpected nil error from unrunnable command")
	}
}

func TestRunCommandOutput(t *testing.T) {
	tf, err := setupTempScript(outputExitScript)
	if err != nil {
		t.Fatalf("failed setting up temp script file: %s", err)
	}
	defer os.Remove(tf.Name())

	rr := NewRunner(nil, 0).Run(context.Background(), "/bin/bash", tf.Name())
	require.NoError(t, rr.Error)
	assert.True(t, rr.ProcessState.Exited())
	assert.True(t, bytes.Contains(rr.Stdout, []byte("stdout line")), "stdout: %s", rr.Stdout)
	assert.True(t, bytes.Contains(rr.Stderr, []byte("stderr line")), "stderr: %s", rr.Stderr)
}

func TestRunCommandExitError(t *testing.T) {
	tf, err := setupTempScript(failScript)
	if err != nil {
		t.Fatalf("failed setting up temp script file: %s", err)
	}
	defer os.Remove(tf.Name())

	rr := NewRunner(nil, 0).Run(context.Background(), "/bin/bash", tf.Name())
	require.Error(t, rr.Error)
	exitErr, ok := rr.Error.(ExitError)
	require.True(t, ok, "expected ExitError, got %T", rr.Error)
	assert.Equal(t, 1, exitErr.ExitStatus())
	assert.Contains(t, rr.Err().Error(), "ERROR: cannot snapshot")
}

func TestRunCommandDeadline(t *testing.T) {
	tf, err := setupTempScript(trapScript)
	if err != nil {
		t.Fatalf("failed setting up temp script file: %s", err)
	}
	defer os.Remove(tf.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	rr := NewRunner(nil, 100*time.Millisecond).Run(ctx, "/bin/bash", tf.Name())
	assert.True(t, errors.Is(rr.Error, TimeoutError), "expected timeout, got %v", rr.Error)
	assert.True(t, time.Since(start) < 5*time.Second)
}

func TestRunCommandExpiredContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr := NewRunner(nil, 0).Run(ctx, "true")
	assert.True(t, errors.Is(rr.Error, TimeoutError))
}

func TestFakeRunnerRecords(t *testing.T) {
	f := &FakeRunner{}
	f.Run(context.Background(), "btrfs", "subvolume", "list", "/")
	assert.Equal(t, []string{"btrfs subvolume list /"}, f.Commands())
}

func setupTempScript(script string) (*os.File, error) {
	tf, err := ioutil.TempFile("", "snapkeep-exec-test")
	if err != nil {
		return nil, err
	}
	if _, err := tf.Write([]byte(script)); err != nil {
		return nil, err
	}
	if err := tf.Close(); err != nil {
		return nil, err
	}
	return tf, nil
}
