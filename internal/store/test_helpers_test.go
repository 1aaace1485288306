package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/gigrank/internal/model"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// testListing creates a listing with minimal required fields.
func testListing(key, keyword string, scrapedAt time.Time) model.Listing {
	return model.Listing{
		Key:             key,
		Keyword:         keyword,
		Title:           "Title " + key,
		Description:     "Description " + key,
		URL:             "https://example.com/jobs/" + key,
		BudgetRaw:       "$500",
		Budget:          ptr(500.0),
		PaymentVerified: true,
		ProposalsRaw:    "5 to 10",
		Skills:          []string{"python", "sql"},
		SourceFile:      "jobs_" + keyword + ".csv",
		ScrapedAt:       scrapedAt,
	}
}

func testOpportunity(key string, fit float64, applyNow bool) model.Opportunity {
	return model.Opportunity{
		ListingKey:       key,
		Title:            "Title " + key,
		Keyword:          "python",
		OpportunityScore: 60,
		SafetyScore:      80,
		FitScore:         fit,
		FreshnessScore:   90,
		ApplyNow:         applyNow,
		Reasons:          model.Reasons{Codes: []string{"SAFE_CLIENT"}},
		LastUpdated:      t0,
	}
}
