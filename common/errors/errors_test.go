package errors

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewErrorNil(t *testing.T) {
	var e *ExitCodeError = NewError(nil, FilesystemExitCode)
	assert.Nil(t, e)
	assert.Equal(t, ExitCode(0), e.GetExitCode())
}

func TestNewErrorKeepsCause(t *testing.T) {
	base := fmt.Errorf("btrfs busy")
	e := NewError(base, FilesystemExitCode)
	assert.Equal(t, FilesystemExitCode, e.GetExitCode())
	assert.Equal(t, "btrfs busy", e.Error())
	assert.Equal(t, base, pkgerrors.Cause(e))
}
