package scoring

import (
	"strings"

	"github.com/roach88/gigrank/internal/model"
)

// ScamTerms are phrases that indicate off-platform payment or upfront-fee
// schemes.
var ScamTerms = []string{
	"telegram",
	"whatsapp",
	"crypto wallet",
	"upfront fee",
	"gift card",
	"wire transfer",
}

// SafetyInput carries the client-trust signals of a listing. Nil pointers
// mean the export did not carry the signal, which neither rewards nor
// penalizes.
type SafetyInput struct {
	PaymentVerified bool
	ClientSpend     float64
	Proposals       *int
	Budget          *float64
	Description     string
}

// SafetyInputFor extracts the trust signals from a listing.
func SafetyInputFor(l model.Listing) SafetyInput {
	in := SafetyInput{
		PaymentVerified: l.PaymentVerified,
		ClientSpend:     l.SpendValue(),
		Budget:          l.Budget,
		Description:     l.Description,
	}
	if strings.ContainsAny(l.ProposalsRaw, "0123456789") {
		n := l.Proposals()
		in.Proposals = &n
	}
	return in
}

// Safety scores counterparty trustworthiness.
func Safety(in SafetyInput) float64 {
	var score float64

	if in.PaymentVerified {
		score += 25
	} else {
		score += 5
	}

	switch {
	case in.ClientSpend >= 10000:
		score += 20
	case in.ClientSpend >= 1000:
		score += 15
	case in.ClientSpend >= 100:
		score += 8
	}

	if in.Proposals != nil {
		switch p := *in.Proposals; {
		case p <= 10:
			score += 15
		case p <= 20:
			score += 10
		case p <= 50:
			score += 3
		default:
			score -= 10
		}
	}

	if in.Budget != nil {
		switch b := *in.Budget; {
		case b < 10:
			score -= 20
		case b <= 30:
			score += 4
		case b <= 10000:
			score += 15
		default:
			score -= 5
		}
	}

	switch n := len([]rune(strings.TrimSpace(in.Description))); {
	case n >= 300:
		score += 15
	case n >= 120:
		score += 10
	case n >= 50:
		score += 5
	default:
		score -= 12
	}

	if HasScamTerm(in.Description) {
		score -= 40
	}

	return Round2(Clamp(score))
}

// HasScamTerm reports whether text contains any scam-indicator phrase.
func HasScamTerm(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range ScamTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
