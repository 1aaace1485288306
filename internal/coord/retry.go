package coord

import (
	"context"
	"log/slog"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 400 * time.Millisecond
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *slog.Logger
}

// Do executes fn with exponential back-off. Only transient errors are
// retried; anything else is returned immediately. When the attempts run out
// the last error is wrapped in a *TransientError.
func (r RetryConfig) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	delay := r.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		if attempt < attempts {
			logger.Warn("transient failure, retrying",
				"op", op,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return &TransientError{Op: op, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return &TransientError{Op: op, Attempts: attempts, Err: lastErr}
}
