package engine

import (
	"errors"
	"fmt"
)

// SubmitError represents a run snapshot that was refused on submit.
//
// Snapshots that fail to persist for transient reasons are not errors: they
// are queued and the caller gets a cached or default response.
type SubmitError struct {
	// Code identifies the error category.
	Code SubmitErrorCode

	// RunID identifies the run, when it could be decoded.
	RunID string

	// Err is the underlying cause.
	Err error
}

// SubmitErrorCode categorizes submit errors.
type SubmitErrorCode string

const (
	// ErrCodeRejected indicates the payload failed validation. Resubmitting
	// the same payload will fail the same way.
	ErrCodeRejected SubmitErrorCode = "REJECTED"

	// ErrCodeClosed indicates the service is shutting down.
	ErrCodeClosed SubmitErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *SubmitError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %v (run=%s)", e.Code, e.Err, e.RunID)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SubmitError) Unwrap() error {
	return e.Err
}

// IsRejected returns true if the error is a validation rejection.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Code == ErrCodeRejected
	}
	return false
}

// IsClosed returns true if the error reports a closed service.
func IsClosed(err error) bool {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Code == ErrCodeClosed
	}
	return false
}

func newRejectedError(runID string, err error) *SubmitError {
	return &SubmitError{Code: ErrCodeRejected, RunID: runID, Err: err}
}
