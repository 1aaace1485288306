package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
)

// DefaultJudgeTimeout bounds every Judge call.
const DefaultJudgeTimeout = 60 * time.Second

// DraftRegenDelta is the score movement that counts as a meaningful change.
const DraftRegenDelta = 1.0

// Engine produces decisions for scored listings.
type Engine struct {
	profile      scoring.Profile
	judge        Judge
	judgeTimeout time.Duration
	batchRanking bool
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithJudge sets the external judge. Without one every Assess call falls
// back to rules.
func WithJudge(j Judge) Option {
	return func(e *Engine) {
		if j != nil {
			e.judge = j
		}
	}
}

// WithJudgeTimeout bounds each Judge call.
func WithJudgeTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.judgeTimeout = d
		}
	}
}

// WithBatchRanking enables the optional batch re-ranking step.
func WithBatchRanking(enabled bool) Option {
	return func(e *Engine) {
		e.batchRanking = enabled
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine for the given operator profile.
func New(profile scoring.Profile, opts ...Option) *Engine {
	e := &Engine{
		profile:      profile,
		judge:        NopJudge{},
		judgeTimeout: DefaultJudgeTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// JudgeEnabled reports whether a real judge is configured.
func (e *Engine) JudgeEnabled() bool {
	_, nop := e.judge.(NopJudge)
	return !nop
}

// Input is one scored listing.
type Input struct {
	Listing model.Listing
	Scores  Scores
}

// Decision is the classified state of one listing.
type Decision struct {
	Scores          Scores
	Action          model.Action
	Label           model.Label
	TimeSensitivity string
	Composite       float64
	ApplyNow        bool
	Codes           []string
	Judgment        *model.Judgment
}

// Record converts the decision into the persisted opportunity record.
func (d Decision) Record(l model.Listing, now time.Time) model.Opportunity {
	return model.Opportunity{
		ListingKey:       l.Key,
		Title:            l.Title,
		Keyword:          l.Keyword,
		OpportunityScore: d.Scores.Opportunity,
		SafetyScore:      d.Scores.Safety,
		FitScore:         d.Scores.Fit,
		FreshnessScore:   d.Scores.Freshness,
		ApplyNow:         d.ApplyNow,
		Reasons: model.Reasons{
			Codes:           d.Codes,
			Action:          d.Action,
			Label:           d.Label,
			TimeSensitivity: d.TimeSensitivity,
			Judgment:        d.Judgment,
		},
		LastUpdated: now,
	}
}

// Evaluate classifies a listing with rules only.
func (e *Engine) Evaluate(in Input) Decision {
	proposals := in.Listing.Proposals()
	applyNow := ruleApplyNow(in.Scores, proposals)
	action := ruleAction(in.Scores, proposals, applyNow)
	action, composite, hard := e.hardRules(action, ruleComposite(in.Scores, proposals), in.Listing, 0)
	applyNow = applyNow && action == model.ActionApply

	codes := mergeCodes(ruleCodes(in.Scores, proposals, applyNow), hard...)
	label, sensitivity := Classify(composite, action)
	label, sensitivity, boosted := Boost(label, action, competitionFor(proposals), in.Scores.Fit/100)
	if boosted {
		codes = mergeCodes(codes, CodeLowCompetitionUp)
	}

	return Decision{
		Scores:          in.Scores,
		Action:          action,
		Label:           label,
		TimeSensitivity: sensitivity,
		Composite:       composite,
		ApplyNow:        applyNow,
		Codes:           codes,
	}
}

// Assess asks the judge for a qualitative classification. On any judge
// failure it returns the rule decision together with an error wrapping
// ErrJudgeUnavailable; the decision is always usable.
func (e *Engine) Assess(ctx context.Context, in Input) (Decision, error) {
	rule := e.Evaluate(in)

	ctx, cancel := context.WithTimeout(ctx, e.judgeTimeout)
	defer cancel()

	a, err := e.judge.Classify(ctx, ViewOf(in.Listing, in.Scores))
	if err != nil {
		if !errors.Is(err, ErrJudgeUnavailable) {
			err = fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
		}
		return rule, err
	}
	a.Normalize()

	proposals := in.Listing.Proposals()
	action, composite, hard := e.hardRules(a.Action, a.Composite(), in.Listing, a.EffortHours)
	label, sensitivity := Classify(composite, action)
	label, sensitivity, boosted := Boost(label, action, a.Competition, a.TechnicalFit)
	applyNow := action == model.ActionApply && proposals < scoring.ProposalsStale

	scores := in.Scores
	scores.Fit = scoring.Round2(composite * 100)
	codes := mergeCodes(ruleCodes(scores, proposals, applyNow), hard...)
	if boosted {
		codes = mergeCodes(codes, CodeLowCompetitionUp)
	}

	return Decision{
		Scores:          scores,
		Action:          action,
		Label:           label,
		TimeSensitivity: sensitivity,
		Composite:       composite,
		ApplyNow:        applyNow,
		Codes:           codes,
		Judgment: &model.Judgment{
			Action:          action,
			Summary:         a.Summary,
			Reasoning:       a.Reasoning,
			RiskFlags:       a.RiskFlags,
			CompositeScore:  composite,
			EffortHours:     a.EffortHours,
			OpeningHook:     a.OpeningHook,
			RecommendedBid:  a.RecommendedBid,
			Label:           label,
			TimeSensitivity: sensitivity,
		},
	}, nil
}

// Tighten rescores a judged record with rules only. The judged action can
// only move toward SKIP, apply-now can only turn off, and it always turns
// off once the listing looks filled. The judged scores stay; freshness is
// refreshed.
func (e *Engine) Tighten(prev model.Opportunity, in Input, now time.Time) model.Opportunity {
	if !prev.Judged() {
		return e.Evaluate(in).Record(in.Listing, now)
	}

	out := prev
	j := *prev.Reasons.Judgment
	codes := slices.Clone(prev.Reasons.Codes)
	proposals := in.Listing.Proposals()

	action, _, hard := e.hardRules(j.Action, j.CompositeScore, in.Listing, j.EffortHours)
	if action.Strictness() > j.Action.Strictness() {
		j.Action = action
		if action == model.ActionSkip && j.CompositeScore > 0.45 {
			j.CompositeScore = SkipCompositeCap
		}
		j.Label, j.TimeSensitivity = Classify(j.CompositeScore, action)
		codes = mergeCodes(codes, hard...)
	}

	out.ApplyNow = prev.ApplyNow && j.Action == model.ActionApply && proposals < scoring.ProposalsDead
	if !out.ApplyNow {
		codes = slices.DeleteFunc(codes, func(c string) bool { return c == CodeApplyNow })
	}
	if proposals >= scoring.ProposalsDead {
		codes = mergeCodes(codes, CodeLikelyFilled)
	}

	out.Title = in.Listing.Title
	out.Keyword = in.Listing.Keyword
	out.FreshnessScore = in.Scores.Freshness
	out.Reasons = model.Reasons{
		Codes:           codes,
		Action:          j.Action,
		Label:           j.Label,
		TimeSensitivity: j.TimeSensitivity,
		Judgment:        &j,
	}
	out.LastUpdated = now
	return out
}

// Ranked pairs a decision with its listing identity for batch ranking.
type Ranked struct {
	Key      string
	Title    string
	Decision Decision
}

// RankBatch orders decisions HOT first, then by composite descending. When
// batch ranking is enabled and at least two items are not SKIP, the judge may
// relabel those items; only label, time sensitivity and reason are taken
// from it. Judge failures keep the rule labels.
func (e *Engine) RankBatch(ctx context.Context, items []Ranked) []Ranked {
	out := slices.Clone(items)

	var candidates []RankCandidate
	for _, it := range out {
		if it.Decision.Action == model.ActionSkip {
			continue
		}
		c := RankCandidate{
			Key:         it.Key,
			Title:       it.Title,
			Composite:   it.Decision.Composite,
			Competition: CompetitionMedium,
			Action:      it.Decision.Action,
		}
		if j := it.Decision.Judgment; j != nil {
			c.Summary = j.Summary
			c.EffortHours = j.EffortHours
		}
		candidates = append(candidates, c)
	}

	if e.batchRanking && len(candidates) >= 2 {
		rctx, cancel := context.WithTimeout(ctx, e.judgeTimeout)
		rankings, err := e.judge.Rank(rctx, candidates)
		cancel()
		if err != nil {
			e.logger.Warn("batch ranking failed, keeping rule labels", "error", err, "candidates", len(candidates))
		} else {
			mergeRankings(out, rankings)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		la, lb := out[a].Decision.Label.Order(), out[b].Decision.Label.Order()
		if la != lb {
			return la < lb
		}
		return out[a].Decision.Composite > out[b].Decision.Composite
	})
	for i := range out {
		if j := out[i].Decision.Judgment; j != nil {
			jc := *j
			jc.Rank = i + 1
			out[i].Decision.Judgment = &jc
		}
	}
	return out
}

func mergeRankings(items []Ranked, rankings []Ranking) {
	byKey := make(map[string]Ranking, len(rankings))
	for _, r := range rankings {
		if r.Key != "" {
			byKey[r.Key] = r
		}
	}
	for i := range items {
		d := &items[i].Decision
		r, ok := byKey[items[i].Key]
		if !ok || d.Action == model.ActionSkip {
			continue
		}
		switch r.Label {
		case model.LabelHot, model.LabelWarm, model.LabelCold:
			d.Label = r.Label
		}
		if r.TimeSensitivity != "" {
			d.TimeSensitivity = r.TimeSensitivity
		}
		if d.Judgment != nil {
			jc := *d.Judgment
			jc.Label = d.Label
			jc.TimeSensitivity = d.TimeSensitivity
			if r.Reason != "" {
				jc.RankReason = r.Reason
			}
			d.Judgment = &jc
		}
	}
}

// EffectiveScore is the display score. Judged records show the judged fit;
// rule-only records discount fit by freshness.
func EffectiveScore(o model.Opportunity) float64 {
	if o.Judged() {
		return o.FitScore
	}
	return scoring.Round2(o.FitScore * o.FreshnessScore / 100)
}

// ScoresChanged reports whether any score moved by DraftRegenDelta or more.
func ScoresChanged(prev, next model.Opportunity) bool {
	return math.Abs(prev.OpportunityScore-next.OpportunityScore) >= DraftRegenDelta ||
		math.Abs(prev.SafetyScore-next.SafetyScore) >= DraftRegenDelta ||
		math.Abs(prev.FitScore-next.FitScore) >= DraftRegenDelta
}
