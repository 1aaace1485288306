package coord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrWriteLockTimeout is returned when the write permit could not be
// acquired in time. It is transient.
var ErrWriteLockTimeout = errors.New("db_write_lock_timeout")

// TransientError reports an operation that kept failing with transient
// contention until its retries ran out.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// lockTokens are matched against error text from layers that do not expose
// typed errors.
var lockTokens = []string{
	"database is locked",
	"database schema is locked",
	"queuepool limit",
	"connection timed out",
	"db_write_lock_timeout",
}

// IsTransient reports whether err is worth retrying: SQLite BUSY/LOCKED,
// a write permit timeout, an expired write deadline, or an error already
// classified as a TransientError. Uses errors.As to handle wrapped errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrWriteLockTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, token := range lockTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}
