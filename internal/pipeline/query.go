package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/decision"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
	"github.com/roach88/gigrank/internal/store"
)

// Query limits.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// FreshMin is the freshness score the fresh_only filter requires.
const FreshMin = 50.0

// TelemetryLockTimeout bounds the wait for the write permit when the crawler
// reports its queue. Telemetry is advisory; a busy store skips the write.
const TelemetryLockTimeout = time.Second

const descriptionPreview = 500

// ClampLimit maps a requested limit to [1, MaxLimit]; zero or negative
// means DefaultLimit.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}

// OpportunityQuery selects opportunities for display.
type OpportunityQuery struct {
	Limit        int
	SafeOnly     bool
	Keyword      string
	ApplyOnly    bool
	FreshOnly    bool
	MaxProposals *int
}

func (q OpportunityQuery) cacheKey() string {
	maxProposals := "-"
	if q.MaxProposals != nil {
		maxProposals = strconv.Itoa(*q.MaxProposals)
	}
	return fmt.Sprintf("opportunities:%d:%t:%q:%t:%t:%s",
		ClampLimit(q.Limit), q.SafeOnly, q.Keyword, q.ApplyOnly, q.FreshOnly, maxProposals)
}

// OpportunityView is an opportunity joined with its listing. FreshnessScore
// is recomputed at read time.
type OpportunityView struct {
	model.Opportunity
	EffectiveScore  float64    `json:"effective_score"`
	IsJudged        bool       `json:"judged"`
	Description     string     `json:"description"`
	URL             string     `json:"url"`
	Budget          string     `json:"budget"`
	BudgetValue     *float64   `json:"budget_value"`
	ClientSpend     *float64   `json:"client_spend"`
	PaymentVerified bool       `json:"payment_verified"`
	Proposals       string     `json:"proposals"`
	Skills          []string   `json:"skills"`
	ScrapedAt       *time.Time `json:"scraped_at"`
}

// KeywordRecommendations returns up to limit keyword metrics, best first.
func (p *Pipeline) KeywordRecommendations(ctx context.Context, limit int) []model.KeywordMetric {
	limit = ClampLimit(limit)
	out, _ := coord.Read(p.coord, ctx, fmt.Sprintf("keywords:%d", limit), "keyword recommendations",
		[]model.KeywordMetric{},
		func(ctx context.Context) ([]model.KeywordMetric, error) {
			return p.store.KeywordMetrics(ctx, limit)
		})
	return out
}

// Opportunities returns opportunities matching q. Three times the limit is
// read in store order, the proposal and freshness filters are applied, and
// the rest is ordered by apply-now, judged, then effective score.
func (p *Pipeline) Opportunities(ctx context.Context, q OpportunityQuery) []OpportunityView {
	out, _ := coord.Read(p.coord, ctx, q.cacheKey(), "opportunities",
		[]OpportunityView{},
		func(ctx context.Context) ([]OpportunityView, error) {
			return p.opportunities(ctx, q)
		})
	return out
}

func (p *Pipeline) opportunities(ctx context.Context, q OpportunityQuery) ([]OpportunityView, error) {
	limit := ClampLimit(q.Limit)
	opps, err := p.store.Opportunities(ctx, store.OpportunityFilter{
		Limit:     limit * 3,
		SafeOnly:  q.SafeOnly,
		Keyword:   q.Keyword,
		ApplyOnly: q.ApplyOnly,
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(opps))
	for i, o := range opps {
		keys[i] = o.ListingKey
	}
	listings, err := p.store.ListingsByKey(ctx, keys)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	views := make([]OpportunityView, 0, len(opps))
	for _, o := range opps {
		v := OpportunityView{Opportunity: o, IsJudged: o.Judged()}
		if l, ok := listings[o.ListingKey]; ok {
			proposals := l.Proposals()
			if q.MaxProposals != nil && proposals > *q.MaxProposals {
				continue
			}
			v.FreshnessScore = scoring.Freshness(proposals, l.ScrapedAt, now)
			v.Description = preview(l.Description)
			v.URL = l.URL
			v.Budget = l.BudgetRaw
			v.BudgetValue = l.Budget
			v.ClientSpend = l.ClientSpend
			v.PaymentVerified = l.PaymentVerified
			v.Proposals = l.ProposalsRaw
			v.Skills = l.Skills
			if !l.ScrapedAt.IsZero() {
				at := l.ScrapedAt
				v.ScrapedAt = &at
			}
		}
		if q.FreshOnly && v.FreshnessScore < FreshMin {
			continue
		}
		v.EffectiveScore = decision.EffectiveScore(v.Opportunity)
		views = append(views, v)
	}

	sort.SliceStable(views, func(a, b int) bool {
		va, vb := views[a], views[b]
		if va.ApplyNow != vb.ApplyNow {
			return va.ApplyNow
		}
		if va.IsJudged != vb.IsJudged {
			return va.IsJudged
		}
		return va.EffectiveScore > vb.EffectiveScore
	})
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= descriptionPreview {
		return s
	}
	return string(r[:descriptionPreview])
}

// Draft returns the outreach draft for a listing key.
func (p *Pipeline) Draft(ctx context.Context, key string) (model.Draft, bool) {
	d, _ := coord.Read(p.coord, ctx, "draft:"+key, "draft", (*model.Draft)(nil),
		func(ctx context.Context) (*model.Draft, error) {
			d, ok, err := p.store.Draft(ctx, key)
			if err != nil || !ok {
				return nil, err
			}
			return &d, nil
		})
	if d == nil {
		return model.Draft{}, false
	}
	return *d, true
}

// QueueTelemetry returns the last reported crawler queue snapshot.
func (p *Pipeline) QueueTelemetry(ctx context.Context) model.QueueTelemetry {
	t, _ := coord.Read(p.coord, ctx, "queue_telemetry", "queue telemetry", model.QueueTelemetry{},
		func(ctx context.Context) (model.QueueTelemetry, error) {
			t, _, err := p.store.QueueTelemetry(ctx)
			return t, err
		})
	return t
}

// PostQueueTelemetry stores a crawler queue snapshot. A missing cycle time
// defaults to now. When the write permit is not available within
// TelemetryLockTimeout the write is skipped and the stored snapshot is
// returned instead.
func (p *Pipeline) PostQueueTelemetry(ctx context.Context, t model.QueueTelemetry) model.QueueTelemetry {
	now := p.now().UTC()
	if t.LastCycleAt == nil {
		t.LastCycleAt = &now
	}
	err := p.coord.Write(ctx, "queue telemetry", TelemetryLockTimeout, func(ctx context.Context) error {
		ev, err := store.NewEvent(model.EventTelemetry, t, now)
		if err != nil {
			return err
		}
		return p.store.PutQueueTelemetry(ctx, t, &ev)
	})
	if err != nil {
		p.logger.Warn("queue telemetry write skipped", "error", err)
	}
	return p.QueueTelemetry(ctx)
}

// Summary returns the dashboard counts.
func (p *Pipeline) Summary(ctx context.Context) model.Summary {
	s, _ := coord.Read(p.coord, ctx, "summary", "summary", model.Summary{}, p.store.Summary)
	return s
}
