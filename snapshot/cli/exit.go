package cli

import (
	"errors"

	commonerrors "github.com/devrig/snapkeep/common/errors"
	"github.com/devrig/snapkeep/snapshot"
)

// Classify attaches the process exit code to an error returned by a command.
// Errors that already carry one keep it.
func Classify(err error) *commonerrors.ExitCodeError {
	if err == nil {
		return nil
	}
	var ece *commonerrors.ExitCodeError
	if errors.As(err, &ece) {
		return ece
	}
	return commonerrors.NewError(err, exitCode(err))
}

// ExitCodeFor maps an error returned by a command to the process exit code.
func ExitCodeFor(err error) int {
	return int(Classify(err).GetExitCode())
}

func exitCode(err error) commonerrors.ExitCode {
	switch {
	case snapshot.IsAborted(err):
		return commonerrors.AbortedExitCode
	case snapshot.IsPolicy(err), snapshot.IsValidation(err):
		return commonerrors.PolicyExitCode
	case snapshot.IsNotFound(err), snapshot.IsTimeout(err), snapshot.IsFilesystem(err):
		return commonerrors.FilesystemExitCode
	}
	return commonerrors.PolicyExitCode
}

// ErrorKind names the taxonomy class of err for the operator.
func ErrorKind(err error) string {
	switch {
	case snapshot.IsAborted(err):
		return "aborted"
	case snapshot.IsPolicy(err):
		return "policy error"
	case snapshot.IsValidation(err):
		return "invalid request"
	case snapshot.IsNotFound(err):
		return "not found"
	case snapshot.IsTimeout(err):
		return "timeout"
	case snapshot.IsFilesystem(err):
		return "filesystem error"
	}
	return "error"
}
