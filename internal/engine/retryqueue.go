package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/roach88/gigrank/internal/ingest"
)

// Retry queue defaults.
const (
	DefaultRetryInterval  = 2 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultRetryQueueSize = 3000

	maxBackoffExponent = 6
)

// QueuedRun is a run snapshot waiting to be persisted.
type QueuedRun struct {
	RunID        string            `json:"run_id"`
	Payload      ingest.RunPayload `json:"payload"`
	Signature    string            `json:"signature"`
	Final        bool              `json:"final"`
	Rows         int               `json:"rows"`
	Attempts     int               `json:"attempts"`
	QueuedAt     time.Time         `json:"queued_at"`
	LastQueuedAt time.Time         `json:"last_queued_at"`
	NextAttempt  time.Time         `json:"next_attempt"`
	LastError    string            `json:"last_error,omitempty"`
	Seq          int64             `json:"seq"`
}

// RetryQueue holds at most one snapshot per run until it can be persisted.
//
// When full, the oldest non-final runs are evicted first. With a snapshot
// path configured, every mutation rewrites the snapshot file so queued
// payloads survive a restart.
//
// Thread-safety: RetryQueue is safe for concurrent use.
type RetryQueue struct {
	mu         sync.Mutex
	items      map[string]*QueuedRun
	max        int
	interval   time.Duration
	maxBackoff time.Duration
	seq        sequence
	path       string
	logger     *slog.Logger
}

// RetryOption configures a RetryQueue.
type RetryOption func(*RetryQueue)

// WithQueueSize bounds the number of queued runs.
func WithQueueSize(n int) RetryOption {
	return func(q *RetryQueue) {
		if n > 0 {
			q.max = n
		}
	}
}

// WithBackoff sets the base retry interval and the backoff ceiling.
func WithBackoff(interval, max time.Duration) RetryOption {
	return func(q *RetryQueue) {
		if interval > 0 {
			q.interval = interval
		}
		if max > 0 {
			q.maxBackoff = max
		}
	}
}

// WithSnapshot persists the queue to path.
func WithSnapshot(path string) RetryOption {
	return func(q *RetryQueue) {
		q.path = path
	}
}

// WithQueueLogger sets the logger. Defaults to slog.Default().
func WithQueueLogger(l *slog.Logger) RetryOption {
	return func(q *RetryQueue) {
		q.logger = l
	}
}

// NewRetryQueue creates an empty queue. Call Load to restore a snapshot.
func NewRetryQueue(opts ...RetryOption) *RetryQueue {
	q := &RetryQueue{
		items:      make(map[string]*QueuedRun),
		max:        DefaultRetryQueueSize,
		interval:   DefaultRetryInterval,
		maxBackoff: DefaultMaxBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Backoff returns the delay before the next attempt after attempts failures.
func (q *RetryQueue) Backoff(attempts int) time.Duration {
	exp := min(attempts, maxBackoffExponent)
	return min(q.maxBackoff, q.interval*time.Duration(1<<exp))
}

// Enqueue parks p for retry. A progress snapshot with fewer rows than the
// one already queued for the same run is ignored, and Enqueue returns false.
// The queued entry keeps its original queue time and attempt count; a run
// once queued as final stays final.
func (q *RetryQueue) Enqueue(p ingest.RunPayload, lastErr string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := p.Stats()
	final := p.Final()
	sig := p.Signature()

	cur, ok := q.items[p.RunID]
	if ok && !final && cur.Rows > stats.Total {
		return false
	}
	if ok && cur.Signature == sig {
		cur.LastError = lastErr
		cur.LastQueuedAt = now
		q.saveLocked()
		return true
	}

	item := &QueuedRun{
		RunID:        p.RunID,
		Payload:      p,
		Signature:    sig,
		Final:        final,
		Rows:         stats.Total,
		QueuedAt:     now,
		LastQueuedAt: now,
		NextAttempt:  now,
		LastError:    lastErr,
	}
	if ok {
		item.Final = item.Final || cur.Final
		item.QueuedAt = cur.QueuedAt
		item.Attempts = cur.Attempts
		item.Seq = cur.Seq
	} else {
		item.Seq = q.seq.next()
	}
	q.items[p.RunID] = item
	q.trimLocked()
	q.saveLocked()
	return true
}

// PopReady removes and returns the next run due at now: final runs first,
// then the oldest queued.
func (q *RetryQueue) PopReady(now time.Time) (QueuedRun, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *QueuedRun
	for _, item := range q.items {
		if item.NextAttempt.After(now) {
			continue
		}
		if best == nil || readyBefore(item, best) {
			best = item
		}
	}
	if best == nil {
		return QueuedRun{}, false
	}
	delete(q.items, best.RunID)
	q.saveLocked()
	return *best, true
}

func readyBefore(a, b *QueuedRun) bool {
	if a.Final != b.Final {
		return a.Final
	}
	if !a.QueuedAt.Equal(b.QueuedAt) {
		return a.QueuedAt.Before(b.QueuedAt)
	}
	return a.Seq < b.Seq
}

// Requeue puts a popped run back after a failed attempt, delayed by the
// backoff for its new attempt count. If a snapshot of the same run with at
// least as many rows was queued in the meantime, that one is kept.
func (q *RetryQueue) Requeue(item QueuedRun, lastErr string, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.Attempts++
	item.LastError = lastErr
	item.LastQueuedAt = now
	item.NextAttempt = now.Add(q.Backoff(item.Attempts))

	if cur, ok := q.items[item.RunID]; ok {
		final := cur.Final || item.Final
		if cur.Rows >= item.Rows {
			cur.Final = final
			q.saveLocked()
			return
		}
		item.Final = final
		if cur.QueuedAt.Before(item.QueuedAt) {
			item.QueuedAt = cur.QueuedAt
		}
	}
	q.items[item.RunID] = &item
	q.trimLocked()
	q.saveLocked()
}

// Len returns the number of queued runs.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queued runs, oldest first.
func (q *RetryQueue) Items() []QueuedRun {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortedLocked()
}

func (q *RetryQueue) sortedLocked() []QueuedRun {
	out := make([]QueuedRun, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// trimLocked evicts the oldest non-final runs, then the oldest runs, until
// the queue fits.
func (q *RetryQueue) trimLocked() {
	if len(q.items) <= q.max {
		return
	}
	ordered := q.sortedLocked()
	for _, item := range ordered {
		if len(q.items) <= q.max {
			return
		}
		if !item.Final {
			q.evictLocked(item)
		}
	}
	for _, item := range ordered {
		if len(q.items) <= q.max {
			return
		}
		if _, ok := q.items[item.RunID]; ok {
			q.evictLocked(item)
		}
	}
}

func (q *RetryQueue) evictLocked(item QueuedRun) {
	delete(q.items, item.RunID)
	q.logger.Warn("retry queue full, dropping run",
		"run_id", item.RunID,
		"final", item.Final,
		"rows", item.Rows,
		"attempts", item.Attempts)
}

// Load restores the snapshot file, if one is configured and present.
func (q *RetryQueue) Load() error {
	if q.path == "" {
		return nil
	}
	data, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load retry queue: %w", err)
	}

	var items []QueuedRun
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("load retry queue %s: %w", q.path, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range items {
		item := items[i]
		if item.RunID == "" {
			continue
		}
		q.items[item.RunID] = &item
		q.seq.observe(item.Seq)
	}
	q.trimLocked()
	q.logger.Info("restored retry queue", "path", q.path, "runs", len(q.items))
	return nil
}

// saveLocked rewrites the snapshot through a temp file and rename. Failures
// are logged; the in-memory queue stays authoritative.
func (q *RetryQueue) saveLocked() {
	if q.path == "" {
		return
	}
	if err := q.writeSnapshot(q.sortedLocked()); err != nil {
		q.logger.Warn("retry queue snapshot failed", "path", q.path, "error", err)
	}
}

func (q *RetryQueue) writeSnapshot(items []QueuedRun) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	dir := filepath.Dir(q.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(q.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), q.path)
}
