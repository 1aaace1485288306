package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
)

// MaxHooks bounds the hook points extracted for a draft.
const MaxHooks = 5

var defaultHooks = []string{"data analysis", "python", "dashboarding"}

// Caution notes attached to drafts.
const (
	CautionReview     = "Client requires manual review before applying."
	CautionProposals  = "High proposal volume; personalize first paragraph."
	CautionLowBudget  = "Low budget signal; verify scope before submitting."
	lowBudgetSignal   = 30.0
	draftSafetyReview = 70.0
)

// BuildDraft writes the rule-based outreach draft for a listing. A judged
// opening hook, when present, replaces the generic opening line.
func BuildDraft(l model.Listing, o model.Opportunity, table *scoring.FitTable, now time.Time) model.Draft {
	text := l.Title + " " + l.Description + " " + strings.Join(l.Skills, " ")
	hooks := table.Matches(text, MaxHooks)
	if len(hooks) == 0 {
		hooks = append([]string(nil), defaultHooks...)
	}

	cautions := []string{}
	if o.SafetyScore < draftSafetyReview {
		cautions = append(cautions, CautionReview)
	}
	if l.Proposals() > scoring.ProposalsDead {
		cautions = append(cautions, CautionProposals)
	}
	if l.BudgetValue() < lowBudgetSignal {
		cautions = append(cautions, CautionLowBudget)
	}

	title := l.Title
	if title == "" {
		title = "project"
	}
	opening := fmt.Sprintf("I can help deliver this %s with measurable outcomes in AI/data workflows.", title)
	if j := o.Reasons.Judgment; j != nil && j.OpeningHook != "" {
		opening = j.OpeningHook
	}
	top := hooks
	if len(top) > 3 {
		top = top[:3]
	}

	body := strings.Join([]string{
		"Hello,",
		opening,
		fmt.Sprintf("My strongest overlap with your scope: %s. I focus on production-grade Python + analytics delivery.", strings.Join(top, ", ")),
		"If useful, I can send a short execution plan with milestones and acceptance criteria.",
		fmt.Sprintf("(Fit score: %.1f/100)", o.FitScore),
	}, "\n\n")

	return model.Draft{
		ListingKey:   l.Key,
		Body:         body,
		HookPoints:   hooks,
		CautionNotes: cautions,
		UpdatedAt:    now,
	}
}
