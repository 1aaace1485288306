package scoring

import "time"

// Freshness estimates how likely a listing is still open. It starts at 100
// and subtracts tiered penalties for proposal volume and scrape age.
func Freshness(proposals int, scrapedAt, now time.Time) float64 {
	score := 100.0

	switch {
	case proposals >= ProposalsDead:
		score -= 60
	case proposals >= ProposalsStale:
		score -= 35
	case proposals >= ProposalsFreshMax:
		score -= 15
	}

	if !scrapedAt.IsZero() {
		age := now.Sub(scrapedAt)
		switch {
		case age > 120*time.Hour:
			score -= 30
		case age > 72*time.Hour:
			score -= 15
		case age > 48*time.Hour:
			score -= 5
		}
	}

	return Round2(Clamp(score))
}
