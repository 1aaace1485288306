package engine

import (
	"sync"
	"time"

	"github.com/roach88/gigrank/internal/ingest"
)

// DefaultTrackerSize bounds the number of tracked runs.
const DefaultTrackerSize = 1000

// RunState is what is remembered about a run between snapshots.
type RunState struct {
	Signature   string
	ProcessedAt time.Time
	Total       int
	Response    *ingest.RunResult
	RefreshedAt time.Time
	UpdatedAt   time.Time
}

// RunTracker remembers the last persisted snapshot of each running crawl.
// Finished runs are forgotten as soon as their final snapshot persists.
//
// Thread-safety: RunTracker is safe for concurrent use.
type RunTracker struct {
	mu   sync.Mutex
	runs map[string]RunState
	max  int
}

// NewRunTracker creates a tracker holding at most max runs.
func NewRunTracker(max int) *RunTracker {
	if max <= 0 {
		max = DefaultTrackerSize
	}
	return &RunTracker{runs: make(map[string]RunState), max: max}
}

// Get returns the state of runID.
func (t *RunTracker) Get(runID string) (RunState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.runs[runID]
	return st, ok
}

// RecordSuccess stores a persisted snapshot. final evicts the run instead.
// refreshed marks that a refresh was triggered for this snapshot.
func (t *RunTracker) RecordSuccess(p ingest.RunPayload, final bool, res ingest.RunResult, at time.Time, refreshed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if final {
		delete(t.runs, p.RunID)
		return
	}

	st := t.runs[p.RunID]
	st.Signature = p.Signature()
	st.ProcessedAt = at
	st.Total = p.Stats().Total
	st.Response = &res
	if refreshed {
		st.RefreshedAt = at
	}
	st.UpdatedAt = at
	t.runs[p.RunID] = st
	t.pruneLocked()
}

// Len returns the number of tracked runs.
func (t *RunTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

func (t *RunTracker) pruneLocked() {
	for len(t.runs) > t.max {
		var oldest string
		var oldestAt time.Time
		for id, st := range t.runs {
			if oldest == "" || st.UpdatedAt.Before(oldestAt) {
				oldest, oldestAt = id, st.UpdatedAt
			}
		}
		delete(t.runs, oldest)
	}
}
