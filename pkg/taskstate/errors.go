package taskstate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvariantViolation marks a logic defect in the differ or its caller.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrAlreadyCommitted is returned by a second Commit on the same pass.
	ErrAlreadyCommitted = errors.New("snapshot already committed")

	// ErrDuplicateProperty is returned when two declared properties share a name.
	ErrDuplicateProperty = errors.New("duplicate property name")
)

// CaptureError reports a snapshotter failure for one property. The whole
// capture pass is abandoned when it occurs.
type CaptureError struct {
	Title    string
	TaskName string
	Property string
	Err      error
}

func (e *CaptureError) Error() string {
	msg := fmt.Sprintf("failed to capture snapshot of %s files for task '%s' property '%s' during up-to-date check",
		strings.ToLower(e.Title), e.TaskName, e.Property)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureError) Unwrap() error { return e.Err }

// InvariantError is the panic value used when an impossible diff outcome is
// observed. It is never returned as an ordinary error.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvariantViolation.Error(), e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}
