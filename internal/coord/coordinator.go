package coord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default timeouts.
const (
	DefaultLockTimeout  = 45 * time.Second
	DefaultWriteTimeout = 60 * time.Second
)

// Coordinator owns the single write permit and the degraded-read cache.
//
// Thread-safety: Coordinator is safe for concurrent use.
type Coordinator struct {
	permit       chan struct{}
	lockTimeout  time.Duration
	writeTimeout time.Duration
	retry        RetryConfig
	logger       *slog.Logger

	mu    sync.RWMutex
	cache map[string]any
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLockTimeout sets the default permit acquisition timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithWriteTimeout bounds how long one write may hold the permit.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithRetry sets the attempts and base delay of RetryWrite.
func WithRetry(attempts int, base time.Duration) Option {
	return func(c *Coordinator) {
		c.retry.MaxAttempts = attempts
		c.retry.BaseDelay = base
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		permit:       make(chan struct{}, 1),
		lockTimeout:  DefaultLockTimeout,
		writeTimeout: DefaultWriteTimeout,
		retry:        RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay},
		logger:       slog.Default(),
		cache:        make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Logger = c.logger
	return c
}

// Write runs fn while holding the write permit. lockTimeout bounds the wait
// for the permit (zero uses the default); a timeout returns an error
// wrapping ErrWriteLockTimeout. fn runs under the write timeout.
func (c *Coordinator) Write(ctx context.Context, name string, lockTimeout time.Duration, fn func(context.Context) error) error {
	if lockTimeout <= 0 {
		lockTimeout = c.lockTimeout
	}

	timer := time.NewTimer(lockTimeout)
	defer timer.Stop()

	select {
	case c.permit <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%s: %w after %s", name, ErrWriteLockTimeout, lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", name, ctx.Err())
	}
	defer func() { <-c.permit }()

	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := fn(wctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Retry runs fn with the coordinator's retry policy.
func (c *Coordinator) Retry(ctx context.Context, name string, fn func(context.Context) error) error {
	return c.retry.Do(ctx, name, fn)
}

// RetryWrite is Write under the retry policy: lock timeouts and SQLite
// contention are retried with backoff.
func (c *Coordinator) RetryWrite(ctx context.Context, name string, lockTimeout time.Duration, fn func(context.Context) error) error {
	return c.retry.Do(ctx, name, func(ctx context.Context) error {
		return c.Write(ctx, name, lockTimeout, fn)
	})
}

// Read runs fn once. On success the value is cached under key. On failure
// the last cached value for exactly that key is returned, or def when there
// is none; fresh reports whether the value came from the store.
func Read[T any](c *Coordinator, ctx context.Context, key, name string, def T, fn func(context.Context) (T, error)) (value T, fresh bool) {
	v, err := fn(ctx)
	if err == nil {
		c.mu.Lock()
		c.cache[key] = v
		c.mu.Unlock()
		return v, true
	}

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		if tv, ok := cached.(T); ok {
			c.logger.Warn("read served from cache", "op", name, "key", key, "error", err)
			return tv, false
		}
	}
	c.logger.Warn("read served default", "op", name, "key", key, "error", err)
	return def, false
}
