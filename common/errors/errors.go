package errors

// ExitCodeError pairs an error with the process exit code the CLI should return for it.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

// Cause returns the wrapped error so github.com/pkg/errors.Cause can see through it.
func (e *ExitCodeError) Cause() error {
	return e.error
}

func (e *ExitCodeError) Unwrap() error {
	return e.error
}
