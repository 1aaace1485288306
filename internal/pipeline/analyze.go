package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/gigrank/internal/decision"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
	"github.com/roach88/gigrank/internal/store"
)

// maxJudgeFailures stops a pass after this many consecutive judge failures.
const maxJudgeFailures = 3

// AnalyzeResult summarizes one judge pass.
type AnalyzeResult struct {
	Candidates int `json:"candidates"`
	Judged     int `json:"judged"`
	Failed     int `json:"failed"`
}

// AnalyzePending asks the judge about up to limit fresh listings that have
// no judgment yet, newest first. Listings that look filled are never sent.
// Judged decisions are batch ranked and persisted with regenerated drafts.
// Without a configured judge it does nothing. limit <= 0 uses the batch size.
func (p *Pipeline) AnalyzePending(ctx context.Context, limit int) (AnalyzeResult, error) {
	var res AnalyzeResult
	if !p.engine.JudgeEnabled() {
		return res, nil
	}
	if limit <= 0 {
		limit = p.judgeBatch
	}
	now := p.now().UTC()

	listings, err := p.store.Listings(ctx)
	if err != nil {
		return res, fmt.Errorf("analyze pending: %w", err)
	}
	prev, err := p.store.AllOpportunities(ctx)
	if err != nil {
		return res, fmt.Errorf("analyze pending: %w", err)
	}
	metrics, err := p.store.KeywordMetrics(ctx, -1)
	if err != nil {
		return res, fmt.Errorf("analyze pending: %w", err)
	}
	keywordScores := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		keywordScores[m.Keyword] = m.OpportunityScore
	}

	var pending []model.Listing
	for _, l := range listings {
		if o, ok := prev[l.Key]; ok && o.Judged() {
			continue
		}
		if l.Proposals() >= scoring.ProposalsDead {
			continue
		}
		pending = append(pending, l)
	}
	sort.SliceStable(pending, func(a, b int) bool {
		return pending[a].ScrapedAt.After(pending[b].ScrapedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	res.Candidates = len(pending)
	if len(pending) == 0 {
		return res, nil
	}

	byKey := make(map[string]model.Listing, len(pending))
	var items []decision.Ranked
	failures := 0
	for _, l := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d, err := p.engine.Assess(ctx, p.input(l, keywordScores, now))
		if err != nil {
			res.Failed++
			failures++
			p.logger.Warn("judge failed, keeping rule decision", "key", l.Key, "error", err)
			if failures >= maxJudgeFailures {
				p.logger.Warn("judge unavailable, ending pass early", "remaining", len(pending)-res.Judged-res.Failed)
				break
			}
			continue
		}
		failures = 0
		res.Judged++
		byKey[l.Key] = l
		items = append(items, decision.Ranked{Key: l.Key, Title: l.Title, Decision: d})
	}
	if len(items) == 0 {
		return res, nil
	}

	items = p.engine.RankBatch(ctx, items)
	opps := make([]model.Opportunity, 0, len(items))
	drafts := make([]model.Draft, 0, len(items))
	for _, it := range items {
		l := byKey[it.Key]
		o := it.Decision.Record(l, now)
		opps = append(opps, o)
		drafts = append(drafts, decision.BuildDraft(l, o, p.table, now))
	}

	ev, err := store.NewEvent(model.EventJudgment, res, now)
	if err != nil {
		return res, err
	}
	err = p.coord.RetryWrite(ctx, "save judgments", 0, func(ctx context.Context) error {
		return p.store.SaveOpportunities(ctx, opps, drafts, &ev)
	})
	if err != nil {
		return res, err
	}

	p.logger.Info("judge pass complete",
		"candidates", res.Candidates,
		"judged", res.Judged,
		"failed", res.Failed)
	return res, nil
}
