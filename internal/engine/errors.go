package engine

import (
	"fmt"
)

// SyncError represents a failure while processing one project.
//
// SyncError includes structured fields for diagnostics:
//   - Code: the failure category, which decides retry and abort behavior
//   - Project: the affected project
//   - Op: the step that failed (aggregate, load_state, save_state, ...)
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Project is the project being processed.
	Project string

	// Op names the step that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeTransport indicates an external collaborator was unreachable
	// after all retries. The project is retried on the next run.
	ErrCodeTransport SyncErrorCode = "TRANSPORT"

	// ErrCodePersistence indicates the state store could not be read or
	// written. Nothing was sent or written for the project.
	ErrCodePersistence SyncErrorCode = "PERSISTENCE"

	// ErrCodeData indicates the source returned data that cannot be
	// aggregated.
	ErrCodeData SyncErrorCode = "DATA"

	// ErrCodeSource indicates the time source rejected the request for a
	// non-transport reason (bad credentials, malformed response).
	ErrCodeSource SyncErrorCode = "SOURCE"

	// ErrCodeNotify indicates notification delivery failed. Flags stay set.
	ErrCodeNotify SyncErrorCode = "NOTIFY"

	// ErrCodeWiki indicates the wiki rejected a read or write for a
	// non-transport reason.
	ErrCodeWiki SyncErrorCode = "WIKI"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Project, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// newSyncError creates a SyncError.
func newSyncError(code SyncErrorCode, project, op string, err error) *SyncError {
	return &SyncError{Code: code, Project: project, Op: op, Err: err}
}

// IsTransportError returns true if err is, or wraps, a SyncError with
// ErrCodeTransport. Joined errors are searched too.
func IsTransportError(err error) bool {
	return hasCode(err, ErrCodeTransport)
}

// IsPersistenceError returns true if err is, or wraps, a SyncError with
// ErrCodePersistence. Joined errors are searched too.
func IsPersistenceError(err error) bool {
	return hasCode(err, ErrCodePersistence)
}

// IsNotifyError returns true if err is, or wraps, a SyncError with
// ErrCodeNotify.
func IsNotifyError(err error) bool {
	return hasCode(err, ErrCodeNotify)
}

// hasCode walks the error tree. errors.As alone would stop at the first
// SyncError, which may carry a different code.
func hasCode(err error, code SyncErrorCode) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *SyncError:
		return e.Code == code || hasCode(e.Err, code)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if hasCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return hasCode(e.Unwrap(), code)
	}
	return false
}
