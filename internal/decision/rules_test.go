package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
)

func testProfile() scoring.Profile {
	return scoring.Profile{
		Name:             "tester",
		Skills:           []string{"python", "sql"},
		AvoidKeywords:    []string{"wordpress theme"},
		CompletedJobs:    10,
		MinProjectBudget: 100,
		HourlyRate:       40,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		composite   float64
		action      model.Action
		label       model.Label
		sensitivity string
	}{
		{"apply high", 0.75, model.ActionApply, model.LabelHot, Urgent},
		{"apply mid", 0.60, model.ActionApply, model.LabelWarm, Normal},
		{"apply low", 0.40, model.ActionApply, model.LabelCold, Flexible},
		{"watch mid", 0.55, model.ActionWatch, model.LabelWarm, Normal},
		{"watch high is never hot", 0.95, model.ActionWatch, model.LabelWarm, Normal},
		{"watch low", 0.30, model.ActionWatch, model.LabelCold, Flexible},
		{"skip", 0.99, model.ActionSkip, model.LabelCold, Flexible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, sensitivity := Classify(tt.composite, tt.action)
			assert.Equal(t, tt.label, label)
			assert.Equal(t, tt.sensitivity, sensitivity)
		})
	}
}

func TestBoost(t *testing.T) {
	label, sensitivity, ok := Boost(model.LabelWarm, model.ActionApply, CompetitionLow, 0.8)
	assert.True(t, ok)
	assert.Equal(t, model.LabelHot, label)
	assert.Equal(t, Urgent, sensitivity)

	label, _, ok = Boost(model.LabelCold, model.ActionWatch, CompetitionLow, 0.7)
	assert.True(t, ok)
	assert.Equal(t, model.LabelWarm, label)

	_, _, ok = Boost(model.LabelCold, model.ActionSkip, CompetitionLow, 0.9)
	assert.False(t, ok, "skipped listings are never boosted")

	_, _, ok = Boost(model.LabelWarm, model.ActionApply, CompetitionMedium, 0.9)
	assert.False(t, ok)

	_, _, ok = Boost(model.LabelWarm, model.ActionApply, CompetitionLow, 0.5)
	assert.False(t, ok)
}

func TestHardRules_LikelyFilledForcesSkip(t *testing.T) {
	e := New(testProfile())
	l := model.Listing{Title: "Dashboard", ProposalsRaw: "50+", PaymentVerified: true}

	action, composite, codes := e.hardRules(model.ActionApply, 0.9, l, 0)

	assert.Equal(t, model.ActionSkip, action)
	assert.Equal(t, SkipCompositeCap, composite)
	assert.Contains(t, codes, CodeLikelyFilled)
}

func TestHardRules_AvoidKeywordPenalty(t *testing.T) {
	e := New(testProfile())
	l := model.Listing{Title: "Custom WordPress theme", PaymentVerified: true, Budget: floatPtr(500)}

	action, composite, codes := e.hardRules(model.ActionWatch, 0.6, l, 0)

	assert.Equal(t, model.ActionWatch, action)
	assert.InDelta(t, 0.5, composite, 1e-9)
	assert.Contains(t, codes, CodeAvoidKeyword)
}

func TestHardRules_EffortOverBudget(t *testing.T) {
	e := New(testProfile())
	l := model.Listing{Title: "Quick fix", Budget: floatPtr(5), PaymentVerified: true}

	action, _, codes := e.hardRules(model.ActionApply, 0.5, l, 4)
	assert.Equal(t, model.ActionSkip, action)
	assert.Contains(t, codes, CodeEffortOverBudget)

	action, _, _ = e.hardRules(model.ActionApply, 0.5, l, 2)
	assert.Equal(t, model.ActionApply, action, "small jobs on a small budget are fine")
}

func TestHardRules_HighCompetitionDemotesWeakApply(t *testing.T) {
	e := New(testProfile())
	l := model.Listing{Title: "Excel macro", ProposalsRaw: "30 to 50", PaymentVerified: true, Budget: floatPtr(200)}

	action, composite, codes := e.hardRules(model.ActionApply, 0.7, l, 0)

	assert.Equal(t, model.ActionWatch, action)
	assert.InDelta(t, 0.6, composite, 1e-9)
	assert.Contains(t, codes, CodeHighCompetition)
}

func TestHardRules_UnverifiedLowBudget(t *testing.T) {
	e := New(testProfile())
	l := model.Listing{Title: "Python helper", Budget: floatPtr(20)}

	action, _, codes := e.hardRules(model.ActionApply, 0.7, l, 0)

	assert.Equal(t, model.ActionWatch, action)
	assert.Contains(t, codes, CodeUnverifiedLowSpend)
}

func TestHardRules_EarlyStageFit(t *testing.T) {
	p := testProfile()
	p.CompletedJobs = 1
	e := New(p)
	l := model.Listing{Title: "Python script", ProposalsRaw: "Less than 5", PaymentVerified: true, Budget: floatPtr(300)}

	_, composite, codes := e.hardRules(model.ActionWatch, 0.5, l, 0)

	// profile boost (+0.08 at ratio 0.5) and early stage (+0.08)
	assert.InDelta(t, 0.66, composite, 1e-9)
	assert.Contains(t, codes, CodeProfileBoost)
	assert.Contains(t, codes, CodeEarlyStageFit)
}

func TestCompetitionFor(t *testing.T) {
	assert.Equal(t, CompetitionLow, competitionFor(0))
	assert.Equal(t, CompetitionMedium, competitionFor(5))
	assert.Equal(t, CompetitionHigh, competitionFor(15))
	assert.Equal(t, CompetitionExtreme, competitionFor(50))
}
