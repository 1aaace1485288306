package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/gigrank/internal/ingest"
)

// Run ingestion defaults.
const (
	DefaultDebounceWindow      = 12 * time.Second
	DefaultMinNewRows          = 20
	DefaultRefreshEvery        = 90 * time.Second
	DefaultFinalLockTimeout    = 4 * time.Second
	DefaultProgressLockTimeout = 1 * time.Second
	DefaultRetryPollInterval   = DefaultRetryInterval
)

// Submit outcomes, reported in RunResult.Outcome.
const (
	OutcomePersisted = "persisted"
	OutcomeDebounced = "debounced"
	OutcomeQueued    = "queued"
	OutcomeRejected  = "rejected"
)

// RunPersister writes one run snapshot, waiting at most lockTimeout for the
// write permit.
type RunPersister interface {
	Ingest(ctx context.Context, p ingest.RunPayload, lockTimeout time.Duration) (ingest.RunResult, error)
}

// RefreshTrigger requests background work.
type RefreshTrigger interface {
	TriggerRefresh(reason string, mode Mode) bool
}

// RunIngestService accepts crawler run snapshots.
//
// Thread-safety: RunIngestService is safe for concurrent use.
type RunIngestService struct {
	persister RunPersister
	queue     *RetryQueue
	tracker   *RunTracker
	trigger   RefreshTrigger
	now       func() time.Time
	logger    *slog.Logger

	debounce        time.Duration
	minNewRows      int
	refreshEvery    time.Duration
	finalTimeout    time.Duration
	progressTimeout time.Duration
	pollInterval    time.Duration

	closed atomic.Bool
}

// RunOption configures a RunIngestService.
type RunOption func(*RunIngestService)

// WithRunClock sets the wall clock. Defaults to time.Now.
func WithRunClock(now func() time.Time) RunOption {
	return func(s *RunIngestService) {
		s.now = now
	}
}

// WithRunLogger sets the logger. Defaults to slog.Default().
func WithRunLogger(l *slog.Logger) RunOption {
	return func(s *RunIngestService) {
		s.logger = l
	}
}

// WithDebounce sets the debounce window and the row growth that overrides it.
func WithDebounce(window time.Duration, minNewRows int) RunOption {
	return func(s *RunIngestService) {
		s.debounce = window
		s.minNewRows = minNewRows
	}
}

// WithRefreshEvery sets how often progress snapshots trigger a refresh.
func WithRefreshEvery(d time.Duration) RunOption {
	return func(s *RunIngestService) {
		s.refreshEvery = d
	}
}

// WithLockTimeouts sets the permit wait for final and progress snapshots.
func WithLockTimeouts(final, progress time.Duration) RunOption {
	return func(s *RunIngestService) {
		if final > 0 {
			s.finalTimeout = final
		}
		if progress > 0 {
			s.progressTimeout = progress
		}
	}
}

// WithRetryPollInterval sets how often the retry worker looks for due runs.
func WithRetryPollInterval(d time.Duration) RunOption {
	return func(s *RunIngestService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// NewRunIngestService creates a RunIngestService. trigger may be nil.
func NewRunIngestService(p RunPersister, q *RetryQueue, tr *RunTracker, trigger RefreshTrigger, opts ...RunOption) *RunIngestService {
	s := &RunIngestService{
		persister:       p,
		queue:           q,
		tracker:         tr,
		trigger:         trigger,
		now:             time.Now,
		logger:          slog.Default(),
		debounce:        DefaultDebounceWindow,
		minNewRows:      DefaultMinNewRows,
		refreshEvery:    DefaultRefreshEvery,
		finalTimeout:    DefaultFinalLockTimeout,
		progressTimeout: DefaultProgressLockTimeout,
		pollInterval:    DefaultRetryPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates a raw run snapshot and ingests it. Invalid payloads
// return a rejection error (see IsRejected).
func (s *RunIngestService) Submit(ctx context.Context, data []byte) (ingest.RunResult, error) {
	p, err := ingest.ParseRunPayload(data)
	if err != nil {
		return ingest.RunResult{Outcome: OutcomeRejected}, newRejectedError("", err)
	}
	return s.SubmitPayload(ctx, p)
}

// SubmitPayload ingests a decoded run snapshot.
//
// A progress snapshot arriving within the debounce window of the last
// persisted one is answered from cache when it carries nothing new or fewer
// than the minimum new rows. Final snapshots always persist. A snapshot that
// fails to persist is queued for retry and answered with the cached
// response (progress snapshots only) or a default one. Persisting a final
// snapshot, or a progress snapshot when the last refresh is old enough,
// triggers a background refresh.
func (s *RunIngestService) SubmitPayload(ctx context.Context, p ingest.RunPayload) (ingest.RunResult, error) {
	if s.closed.Load() {
		return ingest.RunResult{}, &SubmitError{Code: ErrCodeClosed, RunID: p.RunID, Err: errors.New("run ingest is shut down")}
	}

	now := s.now().UTC()
	final := p.Final()
	stats := p.Stats()
	state, _ := s.tracker.Get(p.RunID)

	if !final && state.Response != nil {
		recent := now.Sub(state.ProcessedAt) < s.debounce
		growth := max(0, stats.Total-state.Total)
		if recent && (p.Signature() == state.Signature || growth < s.minNewRows) {
			res := *state.Response
			res.Outcome = OutcomeDebounced
			s.logger.Debug("debounced run snapshot", "run_id", p.RunID, "rows", stats.Total, "growth", growth)
			return res, nil
		}
	}

	doRefresh := final || now.Sub(state.RefreshedAt) >= s.refreshEvery

	res, err := s.persister.Ingest(ctx, p, s.lockTimeout(final))
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidPayload) {
			return ingest.RunResult{RunID: p.RunID, Outcome: OutcomeRejected}, newRejectedError(p.RunID, err)
		}
		s.queue.Enqueue(p, err.Error(), now)
		if state.Response != nil && !final {
			res = *state.Response
			s.logger.Warn("queued run retry, serving cached response", "run_id", p.RunID, "error", err)
		} else {
			res = ingest.DefaultResult(p, now)
			s.logger.Warn("queued run retry, serving default response", "run_id", p.RunID, "error", err)
		}
		res.Outcome = OutcomeQueued
		return res, nil
	}

	res.Outcome = OutcomePersisted
	s.tracker.RecordSuccess(p, final, res, now, doRefresh)
	if doRefresh {
		s.triggerRefresh("ingest_run:" + p.RunID)
	}
	return res, nil
}

// RetryOnce persists the next due queued run, if any. It reports whether a
// run was attempted; a failed attempt is requeued with backoff and its
// error returned.
func (s *RunIngestService) RetryOnce(ctx context.Context) (bool, error) {
	now := s.now().UTC()
	item, ok := s.queue.PopReady(now)
	if !ok {
		return false, nil
	}

	state, _ := s.tracker.Get(item.RunID)
	doRefresh := item.Final || now.Sub(state.RefreshedAt) >= s.refreshEvery

	res, err := s.persister.Ingest(ctx, item.Payload, s.lockTimeout(item.Final))
	if err != nil {
		s.queue.Requeue(item, err.Error(), now)
		s.logger.Warn("run retry failed",
			"run_id", item.RunID,
			"attempt", item.Attempts+1,
			"error", err)
		return true, err
	}

	res.Outcome = OutcomePersisted
	s.tracker.RecordSuccess(item.Payload, item.Final, res, now, doRefresh)
	if doRefresh {
		s.triggerRefresh("ingest_retry:" + item.RunID)
	}
	s.logger.Info("persisted queued run",
		"run_id", item.RunID,
		"final", item.Final,
		"rows", item.Rows,
		"attempts", item.Attempts)
	return true, nil
}

// RunRetryWorker drains the retry queue until ctx is done, one run per
// poll. It returns ctx.Err().
func (s *RunIngestService) RunRetryWorker(ctx context.Context) error {
	s.logger.Info("retry worker started",
		"interval", s.pollInterval,
		"max_backoff", s.queue.maxBackoff)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RetryOnce(ctx)
		}
	}
}

// QueueDepth returns the number of runs waiting for retry.
func (s *RunIngestService) QueueDepth() int {
	return s.queue.Len()
}

// Close stops accepting snapshots. Queued runs stay in the queue (and its
// snapshot file).
func (s *RunIngestService) Close() {
	s.closed.Store(true)
}

func (s *RunIngestService) lockTimeout(final bool) time.Duration {
	if final {
		return s.finalTimeout
	}
	return s.progressTimeout
}

func (s *RunIngestService) triggerRefresh(reason string) {
	if s.trigger == nil {
		return
	}
	s.trigger.TriggerRefresh(reason, ModeRefresh)
}
