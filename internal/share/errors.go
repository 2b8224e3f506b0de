// Package share manages per-profile sharing topology and the delta
// push/pull of changed actions against the cloud record store.
package share

import "fmt"

// OperationError is the displayable failure surfaced when a user-facing
// sharing operation (start/stop sharing, remove participant, leave)
// fails. Nothing beyond it propagates to callers; Details carries the
// technical cause for debug-only surfaces.
type OperationError struct {
	Title   string
	Message string
	Details string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Message)
}

func operationError(title, message string, cause error) *OperationError {
	e := &OperationError{Title: title, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}
