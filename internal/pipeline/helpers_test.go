package pipeline

import (
	"context"
	"sync"

	"github.com/roach88/gigrank/internal/decision"
	"github.com/roach88/gigrank/internal/ingest"
	"github.com/roach88/gigrank/internal/normalize"
)

type stubJudge struct {
	mu         sync.Mutex
	assessment decision.Assessment
	rankings   []decision.Ranking
	err        error
	block      bool
	classified []string
	onClassify func(key string)
}

func (s *stubJudge) Classify(ctx context.Context, v decision.ListingView) (decision.Assessment, error) {
	if s.block {
		<-ctx.Done()
		return decision.Assessment{}, ctx.Err()
	}
	s.mu.Lock()
	s.classified = append(s.classified, v.Key)
	s.mu.Unlock()
	if s.onClassify != nil {
		s.onClassify(v.Key)
	}
	return s.assessment, s.err
}

func (s *stubJudge) Rank(context.Context, []decision.RankCandidate) ([]decision.Ranking, error) {
	return s.rankings, s.err
}

// scanner wires an ingest scanner whose refresh pass is the fixture's
// pipeline.
func (f *fixture) scanner() *ingest.Scanner {
	norm := normalize.New(normalize.WithClock(f.clock.Now))
	return ingest.NewScanner(f.st, f.c, norm,
		ingest.WithRefresher(f.p),
		ingest.WithScanClock(f.clock.Now))
}
