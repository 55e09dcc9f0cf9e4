package errors

type ExitCode int

const (
	SuccessExitCode ExitCode = 0

	// Malformed or missing retention policy, bad arguments, invalid state transitions.
	PolicyExitCode ExitCode = 1

	// Any failure reported by the filesystem adapter, including unknown snapshot ids and timeouts.
	FilesystemExitCode ExitCode = 2

	// The operator declined a confirmation prompt.
	AbortedExitCode ExitCode = 3
)
