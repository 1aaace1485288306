package decision

import (
	"context"
	"errors"
	"strings"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
)

// ErrJudgeUnavailable is returned (possibly wrapped) by a Judge that cannot
// answer. Callers fall back to rule classification.
var ErrJudgeUnavailable = errors.New("judge unavailable")

// Judge is an external qualitative classifier.
type Judge interface {
	Classify(ctx context.Context, listing ListingView) (Assessment, error)
	Rank(ctx context.Context, batch []RankCandidate) ([]Ranking, error)
}

// ListingView is the projection of a listing sent to a Judge.
type ListingView struct {
	Key             string   `json:"job_key"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Keyword         string   `json:"keyword"`
	Budget          string   `json:"budget"`
	BudgetValue     float64  `json:"budget_value"`
	Proposals       string   `json:"proposals"`
	PaymentVerified bool     `json:"payment_verified"`
	ClientSpend     float64  `json:"client_spend"`
	Skills          []string `json:"skills"`
	FitScore        float64  `json:"fit_score"`
	SafetyScore     float64  `json:"safety_score"`
}

// ViewOf projects a listing and its scores for a Judge.
func ViewOf(l model.Listing, s Scores) ListingView {
	return ListingView{
		Key:             l.Key,
		Title:           l.Title,
		Description:     l.Description,
		Keyword:         l.Keyword,
		Budget:          l.BudgetRaw,
		BudgetValue:     l.BudgetValue(),
		Proposals:       l.ProposalsRaw,
		PaymentVerified: l.PaymentVerified,
		ClientSpend:     l.SpendValue(),
		Skills:          l.Skills,
		FitScore:        s.Fit,
		SafetyScore:     s.Safety,
	}
}

// Competition signals.
const (
	CompetitionLow     = "low"
	CompetitionMedium  = "medium"
	CompetitionHigh    = "high"
	CompetitionExtreme = "extreme"
)

// Assessment is a Judge's answer for one listing. Sub-scores are in [0,1].
type Assessment struct {
	Summary        string       `json:"summary_1line"`
	ScopeClarity   float64      `json:"scope_clarity"`
	BudgetFit      float64      `json:"budget_fit"`
	TechnicalFit   float64      `json:"technical_fit"`
	ClientQuality  float64      `json:"client_quality"`
	Competition    string       `json:"competition_signal"`
	EffortHours    float64      `json:"estimated_effort_hours"`
	RiskFlags      []string     `json:"risk_flags"`
	Action         model.Action `json:"recommended_action"`
	RecommendedBid string       `json:"recommended_bid"`
	OpeningHook    string       `json:"opening_hook"`
	Reasoning      string       `json:"reasoning"`
}

// Normalize clamps sub-scores and replaces unknown enum values with their
// neutral defaults.
func (a *Assessment) Normalize() {
	a.ScopeClarity = scoring.ClampTo(a.ScopeClarity, 0, 1)
	a.BudgetFit = scoring.ClampTo(a.BudgetFit, 0, 1)
	a.TechnicalFit = scoring.ClampTo(a.TechnicalFit, 0, 1)
	a.ClientQuality = scoring.ClampTo(a.ClientQuality, 0, 1)
	if a.EffortHours < 0 {
		a.EffortHours = 0
	}
	a.Action = model.Action(strings.ToUpper(strings.TrimSpace(string(a.Action))))
	switch a.Action {
	case model.ActionApply, model.ActionWatch, model.ActionSkip:
	default:
		a.Action = model.ActionWatch
	}
	a.Competition = strings.ToLower(strings.TrimSpace(a.Competition))
	switch a.Competition {
	case CompetitionLow, CompetitionMedium, CompetitionHigh, CompetitionExtreme:
	default:
		a.Competition = CompetitionMedium
	}
}

// Composite weighs the sub-scores into one value in [0,1].
func (a Assessment) Composite() float64 {
	return scoring.Round4(0.35*a.TechnicalFit +
		0.25*a.BudgetFit +
		0.15*a.ScopeClarity +
		0.15*competitionWeight(a.Competition) +
		0.10*a.ClientQuality)
}

func competitionWeight(signal string) float64 {
	switch signal {
	case CompetitionLow:
		return 1.0
	case CompetitionHigh:
		return 0.3
	case CompetitionExtreme:
		return 0.1
	default:
		return 0.6
	}
}

// RankCandidate is the compact projection sent for batch ranking.
type RankCandidate struct {
	Key         string       `json:"job_key"`
	Title       string       `json:"title"`
	Summary     string       `json:"summary"`
	Composite   float64      `json:"composite_score"`
	Competition string       `json:"competition"`
	EffortHours float64      `json:"estimated_hours"`
	Action      model.Action `json:"action"`
}

// Ranking is one batch-ranking result. Only these fields are merged back.
type Ranking struct {
	Key             string      `json:"job_key"`
	Label           model.Label `json:"priority_label"`
	TimeSensitivity string      `json:"time_sensitivity"`
	Reason          string      `json:"reason"`
}

// NopJudge is always unavailable.
type NopJudge struct{}

func (NopJudge) Classify(context.Context, ListingView) (Assessment, error) {
	return Assessment{}, ErrJudgeUnavailable
}

func (NopJudge) Rank(context.Context, []RankCandidate) ([]Ranking, error) {
	return nil, ErrJudgeUnavailable
}
