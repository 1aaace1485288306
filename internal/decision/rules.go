package decision

import (
	"slices"
	"strings"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
)

// Rule thresholds for apply-now.
const (
	ApplySafetyMin      = 70.0
	ApplyFitMin         = 60.0
	ApplyOpportunityMin = 55.0
	ApplyFreshnessMin   = 50.0
)

// Hard rule constants.
const (
	// A budget below MinProjectBudget*LowBudgetRatio paired with more than
	// LowBudgetEffortHours of work is never worth it.
	LowBudgetRatio       = 0.1
	LowBudgetEffortHours = 3.0
	// Operators with fewer completed jobs are still building reputation.
	EarlyStageJobs = 5
	// SKIP decisions never report a composite above SkipCompositeCap.
	SkipCompositeCap = 0.40
)

// Reason codes.
const (
	CodeHighOpportunity    = "HIGH_OPPORTUNITY"
	CodeSafeClient         = "SAFE_CLIENT"
	CodeAvoidRisk          = "AVOID_RISK"
	CodeReviewRequired     = "REVIEW_REQUIRED"
	CodeStrongFit          = "STRONG_FIT"
	CodePartialFit         = "PARTIAL_FIT"
	CodeApplyNow           = "APPLY_NOW"
	CodeLikelyFilled       = "LIKELY_FILLED"
	CodeHighCompetition    = "HIGH_COMPETITION"
	CodeModerateComp       = "MODERATE_COMPETITION"
	CodeProfileBoost       = "PROFILE_BOOST"
	CodeProfileMatch       = "PROFILE_MATCH"
	CodeAvoidKeyword       = "AVOID_KEYWORD"
	CodeEffortOverBudget   = "EFFORT_OVER_BUDGET"
	CodeUnverifiedLowSpend = "UNVERIFIED_LOW_BUDGET"
	CodeEarlyStageFit      = "EARLY_STAGE_FIT"
	CodeLowCompetitionUp   = "LOW_COMPETITION_BOOST"
)

// Time sensitivity values.
const (
	Urgent   = "urgent"
	Normal   = "normal"
	Flexible = "flexible"
)

// Scores are the locally computed, authoritative scores of a listing.
type Scores struct {
	Opportunity float64
	Safety      float64
	Fit         float64
	Freshness   float64
}

// ruleCodes describes the scores as reason codes.
func ruleCodes(s Scores, proposals int, applyNow bool) []string {
	var codes []string
	if s.Opportunity >= 70 {
		codes = append(codes, CodeHighOpportunity)
	}
	switch {
	case s.Safety >= ApplySafetyMin:
		codes = append(codes, CodeSafeClient)
	case s.Safety < 50:
		codes = append(codes, CodeAvoidRisk)
	default:
		codes = append(codes, CodeReviewRequired)
	}
	switch {
	case s.Fit >= 70:
		codes = append(codes, CodeStrongFit)
	case s.Fit >= 55:
		codes = append(codes, CodePartialFit)
	}
	if applyNow {
		codes = append(codes, CodeApplyNow)
	}
	switch {
	case proposals >= scoring.ProposalsDead:
		codes = append(codes, CodeLikelyFilled)
	case proposals >= scoring.ProposalsStale:
		codes = append(codes, CodeHighCompetition)
	}
	return codes
}

// ruleApplyNow is the conjunction every apply-now recommendation needs.
func ruleApplyNow(s Scores, proposals int) bool {
	return s.Safety >= ApplySafetyMin &&
		s.Fit >= ApplyFitMin &&
		s.Opportunity >= ApplyOpportunityMin &&
		s.Freshness >= ApplyFreshnessMin &&
		proposals < scoring.ProposalsDead
}

// ruleAction derives the baseline action without a judge.
func ruleAction(s Scores, proposals int, applyNow bool) model.Action {
	switch {
	case applyNow:
		return model.ActionApply
	case s.Safety < 50 || proposals >= scoring.ProposalsDead:
		return model.ActionSkip
	default:
		return model.ActionWatch
	}
}

// ruleComposite mirrors Assessment.Composite using local scores.
func ruleComposite(s Scores, proposals int) float64 {
	return scoring.Round4(0.35*s.Fit/100 +
		0.25*s.Opportunity/100 +
		0.15*s.Freshness/100 +
		0.15*competitionWeight(competitionFor(proposals)) +
		0.10*s.Safety/100)
}

// competitionFor buckets a proposal count into a competition signal.
func competitionFor(proposals int) string {
	switch {
	case proposals < 5:
		return CompetitionLow
	case proposals < scoring.ProposalsFreshMax:
		return CompetitionMedium
	case proposals < scoring.ProposalsDead:
		return CompetitionHigh
	default:
		return CompetitionExtreme
	}
}

// Classify maps a composite and action to a label and time sensitivity.
func Classify(composite float64, action model.Action) (model.Label, string) {
	switch {
	case action == model.ActionSkip:
		return model.LabelCold, Flexible
	case action == model.ActionApply && composite >= 0.70:
		return model.LabelHot, Urgent
	case action == model.ActionApply && composite >= 0.55:
		return model.LabelWarm, Normal
	case action == model.ActionWatch && composite >= 0.50:
		return model.LabelWarm, Normal
	default:
		return model.LabelCold, Flexible
	}
}

// Boost upgrades a label one step for low-competition, high-fit listings
// that are not already HOT or skipped.
func Boost(label model.Label, action model.Action, competition string, technicalFit float64) (model.Label, string, bool) {
	if competition != CompetitionLow || technicalFit < 0.7 || label == model.LabelHot || action == model.ActionSkip {
		return label, sensitivityFor(label), false
	}
	if label == model.LabelWarm {
		return model.LabelHot, Urgent, true
	}
	return model.LabelWarm, Normal, true
}

func sensitivityFor(label model.Label) string {
	switch label {
	case model.LabelHot:
		return Urgent
	case model.LabelWarm:
		return Normal
	default:
		return Flexible
	}
}

// hardRules applies the non-negotiable overrides to an action and composite.
// effortHours is zero when nothing estimated the work.
func (e *Engine) hardRules(action model.Action, composite float64, l model.Listing, effortHours float64) (model.Action, float64, []string) {
	var codes []string
	text := strings.ToLower(l.Title + " " + l.Description + " " + strings.Join(l.Skills, " "))
	ratio := e.skillRatio(text)
	proposals := l.Proposals()
	budget := l.BudgetValue()

	switch {
	case ratio >= 0.3:
		composite = min(1, composite+0.08)
		codes = append(codes, CodeProfileBoost)
	case ratio >= 0.15:
		composite = min(1, composite+0.04)
		codes = append(codes, CodeProfileMatch)
	}

	for _, kw := range e.profile.AvoidKeywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			composite = max(0, composite-0.10)
			codes = append(codes, CodeAvoidKeyword)
			break
		}
	}

	if budget > 0 && budget < e.profile.MinProjectBudget*LowBudgetRatio && effortHours > LowBudgetEffortHours {
		action = model.ActionSkip
		codes = append(codes, CodeEffortOverBudget)
	}

	switch {
	case proposals >= scoring.ProposalsDead:
		action = model.ActionSkip
		codes = append(codes, CodeLikelyFilled)
	case proposals >= scoring.ProposalsStale:
		composite = max(0, composite-0.10)
		codes = append(codes, CodeHighCompetition)
		if action == model.ActionApply && ratio < 0.2 {
			action = model.ActionWatch
		}
	case proposals >= scoring.ProposalsFreshMax:
		composite = max(0, composite-0.05)
		codes = append(codes, CodeModerateComp)
	}

	if !l.PaymentVerified && l.SpendValue() == 0 && budget < 50 && action == model.ActionApply {
		action = model.ActionWatch
		codes = append(codes, CodeUnverifiedLowSpend)
	}

	if e.profile.CompletedJobs < EarlyStageJobs && proposals <= 10 && l.PaymentVerified && ratio >= 0.15 {
		composite = min(1, composite+0.08)
		codes = append(codes, CodeEarlyStageFit)
	}

	if action == model.ActionSkip && composite > 0.45 {
		composite = SkipCompositeCap
	}

	return action, scoring.Round4(composite), codes
}

// skillRatio is the share of profile skills mentioned in text.
func (e *Engine) skillRatio(text string) float64 {
	if len(e.profile.Skills) == 0 {
		return 0
	}
	hits := 0
	for _, s := range e.profile.Skills {
		if s != "" && strings.Contains(text, strings.ToLower(s)) {
			hits++
		}
	}
	return float64(hits) / float64(len(e.profile.Skills))
}

// mergeCodes appends codes not already present, keeping order.
func mergeCodes(dst []string, src ...string) []string {
	for _, c := range src {
		if !slices.Contains(dst, c) {
			dst = append(dst, c)
		}
	}
	return dst
}
