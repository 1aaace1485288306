package scoring

import "math"

// Proposal-count thresholds shared by freshness, decision and draft logic.
const (
	ProposalsFreshMax = 15
	ProposalsStale    = 30
	ProposalsDead     = 50
)

// DefaultKeywordScore stands in for a listing whose keyword has no metric.
const DefaultKeywordScore = 50.0

// Clamp bounds v to [0,100].
func Clamp(v float64) float64 {
	return ClampTo(v, 0, 100)
}

// ClampTo bounds v to [lo,hi].
func ClampTo(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
