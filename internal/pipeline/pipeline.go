package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/decision"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
	"github.com/roach88/gigrank/internal/store"
)

// DefaultJudgeBatchSize bounds how many listings one judge pass analyzes.
const DefaultJudgeBatchSize = 10

// Pipeline scores stored records and serves the read surface.
//
// Thread-safety: Pipeline is safe for concurrent use. Writes are serialized
// by the coordinator.
type Pipeline struct {
	store      *store.Store
	coord      *coord.Coordinator
	engine     *decision.Engine
	table      *scoring.FitTable
	judgeBatch int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithJudgeBatchSize sets the default AnalyzePending batch size.
func WithJudgeBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.judgeBatch = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline.
func New(st *store.Store, c *coord.Coordinator, eng *decision.Engine, table *scoring.FitTable, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      st,
		coord:      c,
		engine:     eng,
		table:      table,
		judgeBatch: DefaultJudgeBatchSize,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RefreshStats summarizes one scoring pass.
type RefreshStats struct {
	Keywords      int `json:"keywords"`
	Opportunities int `json:"opportunities"`
	Drafts        int `json:"drafts"`
	Judged        int `json:"judged"`
	Skipped       int `json:"skipped"`
}

// Refresh recomputes every keyword metric, opportunity and draft and writes
// them in one transaction. Judged opportunities are only tightened. A draft
// is rebuilt when the listing has none or its scores moved.
//
// The prior opportunities are read while holding the write permit, so a
// judgment saved by a concurrent judge pass is always seen and tightened
// rather than replaced.
func (p *Pipeline) Refresh(ctx context.Context) (time.Time, error) {
	now := p.now().UTC()

	var stats RefreshStats
	err := p.coord.RetryWrite(ctx, "refresh", 0, func(ctx context.Context) error {
		var err error
		stats, err = p.refresh(ctx, now)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("refresh: %w", err)
	}

	p.logger.Info("refresh complete",
		"keywords", stats.Keywords,
		"opportunities", stats.Opportunities,
		"drafts", stats.Drafts,
		"judged", stats.Judged,
		"skipped", stats.Skipped)
	return now, nil
}

// refresh reads, scores and writes. Callers must hold the write permit.
func (p *Pipeline) refresh(ctx context.Context, now time.Time) (RefreshStats, error) {
	listings, err := p.store.Listings(ctx)
	if err != nil {
		return RefreshStats{}, err
	}
	providers, err := p.store.Providers(ctx)
	if err != nil {
		return RefreshStats{}, err
	}
	prev, err := p.store.AllOpportunities(ctx)
	if err != nil {
		return RefreshStats{}, err
	}
	drafted, err := p.store.DraftKeys(ctx)
	if err != nil {
		return RefreshStats{}, err
	}

	metrics := keywordMetrics(listings, providers, now)
	keywordScores := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		keywordScores[m.Keyword] = m.OpportunityScore
	}

	stats := RefreshStats{Keywords: len(metrics)}
	opps := make([]model.Opportunity, 0, len(listings))
	var drafts []model.Draft
	for _, l := range listings {
		if l.Key == "" || l.Title == "" {
			stats.Skipped++
			p.logger.Warn("skipping unscorable listing", "key", l.Key, "source", l.SourceFile)
			continue
		}
		in := p.input(l, keywordScores, now)

		old, had := prev[l.Key]
		var opp model.Opportunity
		if had && old.Judged() {
			opp = p.engine.Tighten(old, in, now)
			stats.Judged++
		} else {
			opp = p.engine.Evaluate(in).Record(l, now)
		}
		opps = append(opps, opp)

		if !drafted[l.Key] || !had || decision.ScoresChanged(old, opp) {
			drafts = append(drafts, decision.BuildDraft(l, opp, p.table, now))
		}
	}
	stats.Opportunities = len(opps)
	stats.Drafts = len(drafts)

	ev, err := store.NewEvent(model.EventRefresh, stats, now)
	if err != nil {
		return RefreshStats{}, err
	}
	err = p.store.ApplyRefresh(ctx, store.Refresh{
		Metrics:       metrics,
		Opportunities: opps,
		Drafts:        drafts,
		Event:         &ev,
	})
	if err != nil {
		return RefreshStats{}, err
	}
	return stats, nil
}

// keywordMetrics builds one metric per keyword seen on any listing or
// provider. Supply is the number of providers on the keyword.
func keywordMetrics(listings []model.Listing, providers []model.Provider, now time.Time) []model.KeywordMetric {
	byKeyword := make(map[string][]model.Listing)
	supply := make(map[string]int)
	for _, l := range listings {
		if l.Keyword != "" {
			byKeyword[l.Keyword] = append(byKeyword[l.Keyword], l)
		}
	}
	for _, pr := range providers {
		if pr.Keyword != "" {
			supply[pr.Keyword]++
		}
	}

	keywords := make([]string, 0, len(byKeyword)+len(supply))
	for kw := range byKeyword {
		keywords = append(keywords, kw)
	}
	for kw := range supply {
		if _, ok := byKeyword[kw]; !ok {
			keywords = append(keywords, kw)
		}
	}
	sort.Strings(keywords)

	metrics := make([]model.KeywordMetric, 0, len(keywords))
	for _, kw := range keywords {
		metrics = append(metrics, scoring.KeywordOpportunity(kw, byKeyword[kw], supply[kw], now))
	}
	return metrics
}

// input scores one listing.
func (p *Pipeline) input(l model.Listing, keywordScores map[string]float64, now time.Time) decision.Input {
	kwScore, ok := keywordScores[l.Keyword]
	if !ok {
		kwScore = scoring.DefaultKeywordScore
	}
	return decision.Input{
		Listing: l,
		Scores: decision.Scores{
			Opportunity: scoring.ListingOpportunity(kwScore, l.BudgetValue()),
			Safety:      scoring.Safety(scoring.SafetyInputFor(l)),
			Fit:         p.table.Fit(fitText(l)),
			Freshness:   scoring.Freshness(l.Proposals(), l.ScrapedAt, now),
		},
	}
}

// fitText is the text the fit table is matched against.
func fitText(l model.Listing) string {
	return strings.Join([]string{l.Title, l.Description, strings.Join(l.Skills, " "), l.Keyword}, " ")
}
