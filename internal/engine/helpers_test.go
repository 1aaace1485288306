package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/ingest"
	"github.com/roach88/gigrank/internal/pipeline"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var errLocked = fmt.Errorf("ingest run: %w after 1s", coord.ErrWriteLockTimeout)

// runSnapshot builds a payload with n job rows.
func runSnapshot(runID, status string, n int) ingest.RunPayload {
	jobs := make([]any, n)
	for i := range jobs {
		jobs[i] = map[string]any{
			"title": fmt.Sprintf("Job %d", i),
			"url":   fmt.Sprintf("https://www.upwork.com/jobs/~%s%04d", runID, i),
		}
	}
	return ingest.RunPayload{
		RunID: runID,
		Run: ingest.Run{
			Keyword: "python etl",
			Status:  status,
			Data:    ingest.RunData{Jobs: jobs},
		},
	}
}

// fakePersister fails the first failures calls, then succeeds.
type fakePersister struct {
	mu        sync.Mutex
	failures  int
	err       error
	calls     int
	persisted []ingest.RunPayload
	timeouts  []time.Duration
}

func (f *fakePersister) Ingest(_ context.Context, p ingest.RunPayload, lockTimeout time.Duration) (ingest.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.timeouts = append(f.timeouts, lockTimeout)
	if f.calls <= f.failures {
		err := f.err
		if err == nil {
			err = errLocked
		}
		return ingest.RunResult{}, err
	}
	f.persisted = append(f.persisted, p)
	s := p.Stats()
	return ingest.RunResult{
		RunID:       p.RunID,
		Keyword:     p.Keyword(),
		Listings:    s.Jobs,
		Providers:   s.Talent,
		RefreshedAt: testNow,
	}, nil
}

func (f *fakePersister) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePersister) Persisted() []ingest.RunPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingest.RunPayload(nil), f.persisted...)
}

// recordingTrigger records trigger requests and accepts all of them.
type recordingTrigger struct {
	mu      sync.Mutex
	reasons []string
	modes   []Mode
	accept  bool
}

func newRecordingTrigger() *recordingTrigger {
	return &recordingTrigger{accept: true}
}

func (r *recordingTrigger) TriggerRefresh(reason string, mode Mode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	r.modes = append(r.modes, mode)
	return r.accept
}

func (r *recordingTrigger) Reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

func (r *recordingTrigger) Modes() []Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mode(nil), r.modes...)
}

// stubWork is a Scanner, Refresher and Analyzer that counts calls. When
// block is set, calls wait until it is closed.
type stubWork struct {
	mu       sync.Mutex
	scans    int
	refresh  int
	analyzes int
	limits   []int
	scanErr  error
	block    chan struct{}
	started  chan struct{}
}

func (s *stubWork) wait(ctx context.Context) error {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.block == nil {
		return nil
	}
	select {
	case <-s.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubWork) Scan(ctx context.Context, _ string) (ingest.ScanResult, error) {
	s.mu.Lock()
	s.scans++
	err := s.scanErr
	s.mu.Unlock()
	if werr := s.wait(ctx); werr != nil {
		return ingest.ScanResult{}, werr
	}
	return ingest.ScanResult{ScannedFiles: 1}, err
}

func (s *stubWork) Refresh(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	s.refresh++
	s.mu.Unlock()
	if err := s.wait(ctx); err != nil {
		return time.Time{}, err
	}
	return testNow, nil
}

func (s *stubWork) AnalyzePending(_ context.Context, limit int) (pipeline.AnalyzeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzes++
	s.limits = append(s.limits, limit)
	return pipeline.AnalyzeResult{Candidates: 1, Judged: 1}, nil
}

func (s *stubWork) counts() (scans, refreshes, analyzes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans, s.refresh, s.analyzes
}

var errScan = errors.New("scan exploded")
