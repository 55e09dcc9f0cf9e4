package snapshot

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// PolicyError reports a malformed or missing retention policy. Fatal to the operation needing it.
type PolicyError struct {
	Subvolume string
	s         string
}

func (e *PolicyError) Error() string {
	if e.Subvolume == "" {
		return "policy error: " + e.s
	}
	return fmt.Sprintf("policy error for %s: %s", e.Subvolume, e.s)
}

func NewPolicyError(subvolume string, msg string, args ...interface{}) error {
	return &PolicyError{Subvolume: subvolume, s: fmt.Sprintf(msg, args...)}
}

// FilesystemError reports a failed store call: busy, full, permission or I/O.
// Retryable for creation and deletion, surfaced immediately for restores.
type FilesystemError struct {
	Op        string
	Subvolume string
	ID        ID
	Path      string
	Err       error
}

func (e *FilesystemError) Error() string {
	target := e.Subvolume
	if e.ID != 0 {
		target = fmt.Sprintf("%s#%d", target, e.ID)
	}
	if e.Path != "" {
		target = fmt.Sprintf("%s:%s", target, e.Path)
	}
	return fmt.Sprintf("filesystem error: %s %s: %v", e.Op, target, e.Err)
}

func (e *FilesystemError) Cause() error  { return e.Err }
func (e *FilesystemError) Unwrap() error { return e.Err }

func NewFilesystemError(op string, subvolume string, id ID, err error) error {
	return &FilesystemError{Op: op, Subvolume: subvolume, ID: id, Err: err}
}

func NewPathError(op string, subvolume string, id ID, path string, err error) error {
	return &FilesystemError{Op: op, Subvolume: subvolume, ID: id, Path: path, Err: err}
}

// NotFoundError reports an unknown snapshot id. Fatal to the single call.
type NotFoundError struct {
	Subvolume string
	ID        ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: snapshot %s#%d", e.Subvolume, e.ID)
}

func NewNotFoundError(subvolume string, id ID) error {
	return &NotFoundError{Subvolume: subvolume, ID: id}
}

// ConcurrencyError records a lost benign race, such as deleting a snapshot another
// process already removed. It is treated as success and never surfaced.
type ConcurrencyError struct {
	s string
}

func (e *ConcurrencyError) Error() string { return "benign race: " + e.s }

func NewConcurrencyError(msg string, args ...interface{}) error {
	return &ConcurrencyError{s: fmt.Sprintf(msg, args...)}
}

// HookTimeoutError is logged by the hook dispatcher and never returned to the VCS.
type HookTimeoutError struct {
	Event     string
	Subvolume string
	Err       error
}

func (e *HookTimeoutError) Error() string {
	return fmt.Sprintf("hook timeout: %s snapshot of %s: %v", e.Event, e.Subvolume, e.Err)
}

func (e *HookTimeoutError) Cause() error  { return e.Err }
func (e *HookTimeoutError) Unwrap() error { return e.Err }

// ValidationError reports bad arguments or an operation attempted out of order.
type ValidationError struct {
	s string
}

func (e *ValidationError) Error() string { return e.s }

func NewValidationError(msg string, args ...interface{}) error {
	return &ValidationError{s: fmt.Sprintf(msg, args...)}
}

// AbortedError reports that the operator declined a confirmation.
type AbortedError struct {
	s string
}

func (e *AbortedError) Error() string { return "aborted: " + e.s }

func NewAbortedError(msg string, args ...interface{}) error {
	return &AbortedError{s: fmt.Sprintf(msg, args...)}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsFilesystem(err error) bool {
	var fe *FilesystemError
	return errors.As(err, &fe)
}

func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsAborted(err error) bool {
	var ae *AbortedError
	return errors.As(err, &ae)
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	var he *HookTimeoutError
	if errors.As(err, &he) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func IsConcurrency(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}
