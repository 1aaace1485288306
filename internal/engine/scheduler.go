package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/gigrank/internal/ingest"
	"github.com/roach88/gigrank/internal/pipeline"
)

// DefaultCycleInterval is the period of the full scan cycle.
const DefaultCycleInterval = 5 * time.Minute

// Scanner ingests the data root.
type Scanner interface {
	Scan(ctx context.Context, root string) (ingest.ScanResult, error)
}

// Refresher recomputes derived scores.
type Refresher interface {
	Refresh(ctx context.Context) (time.Time, error)
}

// Analyzer runs the judge pass.
type Analyzer interface {
	AnalyzePending(ctx context.Context, limit int) (pipeline.AnalyzeResult, error)
}

// SchedulerStats counts scheduler activity.
type SchedulerStats struct {
	Cycles      int64      `json:"cycles"`
	Triggered   int64      `json:"triggered"`
	Dropped     int64      `json:"dropped"`
	InFlight    bool       `json:"in_flight"`
	LastCycleAt *time.Time `json:"last_cycle_at"`
}

// Scheduler runs the periodic cycle and single-flighted triggered work.
//
// Thread-safety: TriggerRefresh and Stats may be called from any goroutine.
// Run must be called at most once.
type Scheduler struct {
	scanner    Scanner
	refresher  Refresher
	analyzer   Analyzer
	root       string
	interval   time.Duration
	judgeLimit int
	runOnStart bool
	now        func() time.Time
	logger     *slog.Logger

	queue    *triggerQueue
	inFlight atomic.Bool

	cycles    atomic.Int64
	triggered atomic.Int64
	dropped   atomic.Int64
	lastCycle atomic.Pointer[time.Time]
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the cycle period.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithAnalyzer enables the judge pass after each cycle scan. limit <= 0
// uses the analyzer's own batch size.
func WithAnalyzer(a Analyzer, limit int) SchedulerOption {
	return func(s *Scheduler) {
		s.analyzer = a
		s.judgeLimit = limit
	}
}

// WithRunOnStart runs one cycle as soon as Run starts.
func WithRunOnStart(on bool) SchedulerOption {
	return func(s *Scheduler) {
		s.runOnStart = on
	}
}

// WithSchedulerClock sets the wall clock. Defaults to time.Now.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithSchedulerLogger sets the logger. Defaults to slog.Default().
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// NewScheduler creates a Scheduler scanning root.
func NewScheduler(sc Scanner, r Refresher, root string, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		scanner:   sc,
		refresher: r,
		root:      root,
		interval:  DefaultCycleInterval,
		now:       time.Now,
		logger:    slog.Default(),
		queue:     newTriggerQueue(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerRefresh requests background work. It returns false, dropping the
// request, when triggered work is already in flight or the scheduler has
// stopped.
func (s *Scheduler) TriggerRefresh(reason string, mode Mode) bool {
	if mode != ModeRefresh {
		mode = ModeScan
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		s.logger.Debug("refresh already in flight, dropping trigger", "reason", reason, "mode", mode)
		return false
	}
	if !s.queue.Enqueue(Trigger{Reason: reason, Mode: mode, At: s.now()}) {
		s.inFlight.Store(false)
		s.dropped.Add(1)
		return false
	}
	s.triggered.Add(1)
	return true
}

// Run executes the cycle every interval and triggered work until ctx is
// done. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.work(ctx)
	}()
	defer func() {
		s.queue.Close()
		wg.Wait()
	}()

	s.logger.Info("scheduler started", "root", s.root, "interval", s.interval)

	if s.runOnStart {
		s.RunCycle(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// work executes triggered jobs one at a time.
func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.queue.Wait():
			if !ok {
				return
			}
		}
		for {
			tr, ok := s.queue.TryDequeue()
			if !ok {
				break
			}
			s.execute(ctx, tr)
			s.inFlight.Store(false)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tr Trigger) {
	start := s.now()
	var err error
	switch tr.Mode {
	case ModeRefresh:
		_, err = s.refresher.Refresh(ctx)
	default:
		_, err = s.scanner.Scan(ctx, s.root)
	}
	if err != nil {
		s.logger.Error("background work failed", "mode", tr.Mode, "reason", tr.Reason, "error", err)
		return
	}
	s.logger.Info("background work completed",
		"mode", tr.Mode,
		"reason", tr.Reason,
		"duration", s.now().Sub(start))
}

// RunCycle scans the data root and then runs the judge pass. Errors are
// logged; a failed scan skips the judge pass.
func (s *Scheduler) RunCycle(ctx context.Context) {
	defer func() {
		at := s.now().UTC()
		s.lastCycle.Store(&at)
		s.cycles.Add(1)
	}()

	res, err := s.scanner.Scan(ctx, s.root)
	if err != nil {
		s.logger.Error("cycle scan failed", "root", s.root, "error", err)
		return
	}
	s.logger.Info("cycle scan completed",
		"scanned", res.ScannedFiles,
		"new", res.NewFiles,
		"updated", res.UpdatedFiles,
		"failed", res.FailedFiles)

	if s.analyzer == nil {
		return
	}
	ar, err := s.analyzer.AnalyzePending(ctx, s.judgeLimit)
	if err != nil {
		s.logger.Error("judge pass failed", "error", err)
		return
	}
	if ar.Candidates > 0 {
		s.logger.Info("judge pass completed",
			"candidates", ar.Candidates,
			"judged", ar.Judged,
			"failed", ar.Failed)
	}
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Cycles:      s.cycles.Load(),
		Triggered:   s.triggered.Load(),
		Dropped:     s.dropped.Load(),
		InFlight:    s.inFlight.Load(),
		LastCycleAt: s.lastCycle.Load(),
	}
}
