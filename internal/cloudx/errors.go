package cloudx

import (
	"errors"
	"fmt"
	"strings"
)

// Remote conditions treated as "nothing to import yet". They occur
// normally before the first sync, after a reinstall, or when an owner
// tears a share down, and are absorbed rather than surfaced.
var (
	ErrZoneNotFound    = errors.New("zone not found")
	ErrRecordNotFound  = errors.New("record not found")
	ErrUserDeletedZone = errors.New("zone deleted by user")
)

// RecoverableError wraps a transient remote failure (network, rate
// limiting, server errors). Callers distinguish it from hard failures
// with errors.As; there is no retry loop built in, the next natural
// sync trigger serves as the retry.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("recoverable remote error: %v", e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// WrapRecoverable marks err as retry-worthy. A nil err stays nil.
func WrapRecoverable(err error) error {
	if err == nil {
		return nil
	}
	return &RecoverableError{Err: err}
}

// PartialError is a batch response where some constituents failed,
// keyed by record name.
type PartialError struct {
	Failures map[string]error
}

func (e *PartialError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for n := range e.Failures {
		names = append(names, n)
	}
	return fmt.Sprintf("partial failure for records: %s", strings.Join(names, ", "))
}

// IsAbsence reports whether err is one of the missing-record/zone
// conditions that mean "nothing to sync yet". A partial failure counts
// only when every constituent failure independently does.
func IsAbsence(err error) bool {
	if err == nil {
		return false
	}

	var partial *PartialError
	if errors.As(err, &partial) {
		if len(partial.Failures) == 0 {
			return false
		}
		for _, sub := range partial.Failures {
			if !IsAbsence(sub) {
				return false
			}
		}
		return true
	}

	return errors.Is(err, ErrZoneNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrUserDeletedZone)
}

// IsRecoverable reports whether err is worth retrying on the next sync
// trigger (either an absence condition or a wrapped transient failure).
func IsRecoverable(err error) bool {
	if IsAbsence(err) {
		return true
	}
	var r *RecoverableError
	return errors.As(err, &r)
}
