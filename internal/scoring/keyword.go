package scoring

import (
	"math"
	"time"

	"github.com/roach88/gigrank/internal/model"
)

// TrendWindow separates "recent" from "older" listings for the trend term.
const TrendWindow = 7 * 24 * time.Hour

// Reason codes attached to keyword metrics.
const (
	ReasonHighDemand     = "HIGH_DEMAND"
	ReasonSupplyGap      = "SUPPLY_GAP"
	ReasonHighBudget     = "HIGH_BUDGET"
	ReasonLowCompetition = "LOW_COMPETITION"
	ReasonRisingTrend    = "RISING_TREND"
	ReasonBaseline       = "BASELINE_SIGNAL"
)

// KeywordOpportunity materializes the market metric for one keyword from
// its listings and the number of providers competing on it.
func KeywordOpportunity(keyword string, listings []model.Listing, supply int, now time.Time) model.KeywordMetric {
	demand := len(listings)
	gap := float64(demand) / float64(max(supply, 1))

	var budgetSum float64
	var budgets, recent int
	cutoff := now.Add(-TrendWindow)
	for _, l := range listings {
		if l.Budget != nil {
			budgetSum += *l.Budget
			budgets++
		}
		if !l.ScrapedAt.IsZero() && !l.ScrapedAt.Before(cutoff) {
			recent++
		}
	}
	var budgetAvg float64
	if budgets > 0 {
		budgetAvg = budgetSum / float64(budgets)
	}

	competitionInverse := Clamp(100 - math.Min(90, float64(supply)*4))
	older := max(0, demand-recent)
	trend := Clamp(float64(recent+1) / float64(older+1) * 35)

	demandScore := Clamp(float64(demand) * 5)
	gapScore := Clamp(gap * 20)
	budgetScore := Clamp(budgetAvg / 20)
	opportunity := Round2(demandScore*0.30 +
		gapScore*0.25 +
		budgetScore*0.20 +
		competitionInverse*0.15 +
		trend*0.10)

	var reasons []string
	if demand >= 20 {
		reasons = append(reasons, ReasonHighDemand)
	}
	if gap >= 2 {
		reasons = append(reasons, ReasonSupplyGap)
	}
	if budgetAvg >= 500 {
		reasons = append(reasons, ReasonHighBudget)
	}
	if competitionInverse >= 70 {
		reasons = append(reasons, ReasonLowCompetition)
	}
	if trend >= 60 {
		reasons = append(reasons, ReasonRisingTrend)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, ReasonBaseline)
	}

	return model.KeywordMetric{
		Keyword:            keyword,
		Demand:             demand,
		Supply:             supply,
		GapRatio:           Round4(gap),
		BudgetAvg:          Round2(budgetAvg),
		CompetitionInverse: Round2(competitionInverse),
		TrendScore:         Round2(trend),
		OpportunityScore:   opportunity,
		Priority:           Tier(opportunity),
		ReasonCodes:        reasons,
		LastUpdated:        now,
	}
}

// Tier maps an opportunity score to its priority tier.
func Tier(score float64) model.Priority {
	switch {
	case score >= 85:
		return model.PriorityCritical
	case score >= 70:
		return model.PriorityHigh
	case score >= 55:
		return model.PriorityNormal
	default:
		return model.PriorityLow
	}
}

// ListingOpportunity blends the keyword's opportunity with the listing's own
// budget signal.
func ListingOpportunity(keywordScore, budget float64) float64 {
	return Round2(keywordScore*0.7 + Clamp(budget/20)*0.3)
}
