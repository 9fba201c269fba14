package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNoData reports that a source has nothing for a project. It is a
// condition, not a failure: callers treat it as an empty data set.
var ErrNoData = errors.New("no data for project")

// ErrPageNotFound reports that a wiki space has no report page yet. The
// caller creates it with an empty prefix.
var ErrPageNotFound = errors.New("wiki page not found")

// ErrInvalidEntry reports a time entry that cannot be aggregated.
var ErrInvalidEntry = errors.New("invalid time entry")

// TransportError represents a temporary failure talking to an external
// collaborator (time source, wiki, mail server). Transport errors are
// retriable.
type TransportError struct {
	// Op names the failed operation, e.g. "redmine.time_entries".
	Op string

	// Status is the HTTP or SMTP status code when one was received.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err as a retriable transport failure.
func NewTransportError(op string, status int, err error) *TransportError {
	return &TransportError{Op: op, Status: status, Err: err}
}

// IsTransportError returns true if err is retriable: an explicit
// TransportError, a network error, or a deadline expiry.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
