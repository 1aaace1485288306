package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigrank/internal/model"
)

func TestIngestBatch_UpsertsAndAudits(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	jobs := ptr(12)
	err := s.IngestBatch(ctx, Batch{
		Listings:  []model.Listing{testListing("a1", "python", t0)},
		Providers: []model.Provider{{Key: "~01ab", Keyword: "python", Name: "Ada", Rate: ptr(40.0), JobsCompleted: jobs, SourceFile: "talent.csv", ScrapedAt: t0}},
		Catalog:   []model.CatalogItem{{Key: "catalog_77", Keyword: "python", Title: "Script", Sales: ptr(3), SourceFile: "projects.csv", ScrapedAt: t0}},
		File: &model.IngestedFile{
			Path: "/data/jobs_python.csv", ContentHash: "h1", FileType: "csv", Dataset: model.DatasetListings,
			Keyword: "python", RowCount: 1, SourceMtime: t0, IngestedAt: t0,
		},
	})
	require.NoError(t, err)

	f, ok, err := s.IngestedFile(ctx, "/data/jobs_python.csv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h1", f.ContentHash)
	assert.Equal(t, model.DatasetListings, f.Dataset)
	assert.True(t, f.IngestedAt.Equal(t0))

	listings, err := s.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, testListing("a1", "python", t0), listings[0])

	providers, err := s.Providers(ctx)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, 12, *providers[0].JobsCompleted)
	assert.Nil(t, providers[0].Rating)
	assert.Equal(t, []string{}, providers[0].Skills)

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Listings)
	assert.Equal(t, 1, sum.Providers)
	assert.Equal(t, 1, sum.CatalogItems)
	require.NotNil(t, sum.LastIngestAt)
	assert.True(t, sum.LastIngestAt.Equal(t0))
}

func TestIngestBatch_ScrapedAtOnlyMovesForward(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	newer := testListing("a1", "python", t0)
	newer.Title = "Newer"
	require.NoError(t, s.IngestBatch(ctx, Batch{Listings: []model.Listing{newer}}))

	older := testListing("a1", "python", t0.Add(-time.Hour))
	older.Title = "Older"
	require.NoError(t, s.IngestBatch(ctx, Batch{Listings: []model.Listing{older}}))

	l, ok, err := s.Listing(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Newer", l.Title)
	assert.True(t, l.ScrapedAt.Equal(t0))

	latest := testListing("a1", "ml", t0.Add(time.Hour))
	require.NoError(t, s.IngestBatch(ctx, Batch{Listings: []model.Listing{latest}}))

	l, _, err = s.Listing(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "ml", l.Keyword)
	assert.True(t, l.ScrapedAt.Equal(t0.Add(time.Hour)))
}

func TestIngestBatch_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Close())

	err := s.IngestBatch(ctx, Batch{Listings: []model.Listing{testListing("a1", "python", t0)}})
	assert.Error(t, err)
}

func TestApplyRefresh_ReplacesMetrics(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.IngestBatch(ctx, Batch{Listings: []model.Listing{testListing("a1", "python", t0)}}))

	first := model.KeywordMetric{Keyword: "old", OpportunityScore: 10, Priority: model.PriorityLow, LastUpdated: t0}
	require.NoError(t, s.ApplyRefresh(ctx, Refresh{Metrics: []model.KeywordMetric{first}}))

	second := model.KeywordMetric{Keyword: "python", Demand: 1, OpportunityScore: 55, Priority: model.PriorityNormal, ReasonCodes: []string{"BASELINE_SIGNAL"}, LastUpdated: t0}
	err := s.ApplyRefresh(ctx, Refresh{
		Metrics:       []model.KeywordMetric{second},
		Opportunities: []model.Opportunity{testOpportunity("a1", 70, true)},
		Drafts:        []model.Draft{{ListingKey: "a1", Body: "Hello", UpdatedAt: t0}},
	})
	require.NoError(t, err)

	metrics, err := s.KeywordMetrics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "python", metrics[0].Keyword)
	assert.Equal(t, []string{"BASELINE_SIGNAL"}, metrics[0].ReasonCodes)

	d, ok, err := s.Draft(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Hello", d.Body)
	assert.Equal(t, []string{}, d.HookPoints)

	keys, err := s.DraftKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a1": true}, keys)
}

func TestSaveOpportunities_KeepsMetricsAndJudgment(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.IngestBatch(ctx, Batch{Listings: []model.Listing{testListing("a1", "python", t0)}}))
	require.NoError(t, s.ApplyRefresh(ctx, Refresh{Metrics: []model.KeywordMetric{{Keyword: "python", Priority: model.PriorityLow, LastUpdated: t0}}}))

	o := testOpportunity("a1", 81.5, true)
	o.Reasons = model.Reasons{
		Codes:  []string{"APPLY_NOW"},
		Action: model.ActionApply,
		Label:  model.LabelHot,
		Judgment: &model.Judgment{
			Action:         model.ActionApply,
			Summary:        "Nightly ETL",
			CompositeScore: 0.815,
			Label:          model.LabelHot,
		},
	}
	ev, err := NewEvent(model.EventJudgment, map[string]int{"judged": 1}, t0)
	require.NoError(t, err)
	require.NoError(t, s.SaveOpportunities(ctx, []model.Opportunity{o}, nil, &ev))

	all, err := s.AllOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, o, all["a1"])

	metrics, err := s.KeywordMetrics(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)

	events, err := s.Events(ctx, model.EventJudgment, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"judged":1}`, string(events[0].Payload))
	assert.NotEmpty(t, events[0].ID)
}

func TestPutQueueTelemetry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.QueueTelemetry(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutQueueTelemetry(ctx, model.QueueTelemetry{Total: 5, Pending: 2, Completed: 3, LastCycleAt: &t0}, nil))
	require.NoError(t, s.PutQueueTelemetry(ctx, model.QueueTelemetry{Total: 6, Pending: 1, Completed: 5, LastCycleAt: &t0}, nil))

	got, ok, err := s.QueueTelemetry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, got.Total)
	assert.Equal(t, 5, got.Completed)
	require.NotNil(t, got.LastCycleAt)
	assert.True(t, got.LastCycleAt.Equal(t0))
}

func TestAppendEvent_FixedIDs(t *testing.T) {
	path := t.TempDir() + "/events.db"
	s, err := Open(path, WithIDGenerator(NewFixedGenerator("ev-1", "ev-2")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	id, err := s.AppendEvent(ctx, model.PipelineEvent{Type: model.EventRunIngest, CreatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "ev-1", id)
	id, err = s.AppendEvent(ctx, model.PipelineEvent{Type: model.EventScan, CreatedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, "ev-2", id)

	all, err := s.Events(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ev-1", all[0].ID, "newest first")
	assert.JSONEq(t, `{}`, string(all[0].Payload))

	sum, err := s.Summary(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum.LastIngestAt)
	assert.True(t, sum.LastIngestAt.Equal(t0.Add(time.Hour)), "run ingest events count as ingests")
}
