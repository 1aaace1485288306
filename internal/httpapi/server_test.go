package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/decision"
	"github.com/roach88/gigrank/internal/engine"
	"github.com/roach88/gigrank/internal/ingest"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/normalize"
	"github.com/roach88/gigrank/internal/pipeline"
	"github.com/roach88/gigrank/internal/scoring"
	"github.com/roach88/gigrank/internal/testutil"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const description = "We need a python developer to build an ETL data pipeline that pulls " +
	"orders from our API, cleans them and loads them into SQL every night. " +
	"Automation and clear reporting matter more than speed."

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	root   string
	server *Server
	runs   *engine.RunIngestService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := testutil.OpenStore(t)
	c := coord.New(coord.WithRetry(1, time.Millisecond))
	clock := testutil.NewFakeClock(testNow)
	profile := scoring.DefaultProfile()
	p := pipeline.New(st, c, decision.New(profile), scoring.DefaultFitTable().Extend(profile),
		pipeline.WithClock(clock.Now))
	norm := normalize.New(normalize.WithClock(clock.Now))
	scanner := ingest.NewScanner(st, c, norm,
		ingest.WithRefresher(p),
		ingest.WithScanClock(clock.Now))
	runs := engine.NewRunIngestService(
		ingest.NewRunIngester(st, c, norm, clock.Now, nil),
		engine.NewRetryQueue(),
		engine.NewRunTracker(0),
		nil,
		engine.WithRunClock(clock.Now))

	root := t.TempDir()
	return &apiFixture{
		root: root,
		runs: runs,
		server: New(Config{}, Deps{
			Pipeline: p,
			Scanner:  scanner,
			Runs:     runs,
			Store:    st,
			Root:     root,
		}, nil),
	}
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) seedExport(t *testing.T) {
	t.Helper()
	testutil.WriteFile(t, f.root, "jobs_python_etl.csv", strings.Join([]string{
		"title,url,proposals,budget,payment_verified,client_spend,description,skills,scraped_at",
		`Python ETL automation,https://www.upwork.com/jobs/~01aaa,50+,$800,true,"$5,000","` + description + `","python, sql, etl",2024-05-29T10:00:00Z`,
		`Python RAG chatbot,https://www.upwork.com/jobs/~01bbb,2,$900,true,"$5,000","` + description + `","python, rag",2024-06-01T10:00:00Z`,
	}, "\n")+"\n")
	rec := f.do(t, http.MethodPost, "/v1/ingest/scan", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["retry_queue"])
}

func TestIngestScan(t *testing.T) {
	f := newAPIFixture(t)
	testutil.WriteFile(t, f.root, "jobs_python.csv", "title,url\nPython ETL,https://www.upwork.com/jobs/~01ccc\n")

	rec := f.do(t, http.MethodPost, "/v1/ingest/scan", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[ingest.ScanResult](t, rec)
	assert.Equal(t, 1, res.ScannedFiles)
	assert.Equal(t, 1, res.NewFiles)
	assert.NotNil(t, res.RefreshedAt)

	rec = f.do(t, http.MethodPost, "/v1/ingest/scan", "")
	res = decode[ingest.ScanResult](t, rec)
	assert.Equal(t, 0, res.NewFiles, "unchanged file is skipped")
	assert.Nil(t, res.RefreshedAt)
}

func TestIngestRun(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/ingest/run", `{
		"run_id": "run-7",
		"run": {"keyword": "python etl", "status": "running", "data": {
			"jobs": [{"title": "Nightly ETL", "url": "https://www.upwork.com/jobs/~07aaa"}]
		}}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[ingest.RunResult](t, rec)
	assert.Equal(t, "run-7", res.RunID)
	assert.Equal(t, "python etl", res.Keyword)
	assert.Equal(t, 1, res.Listings)
	assert.Equal(t, engine.OutcomePersisted, res.Outcome)

	// Same snapshot again inside the debounce window.
	rec = f.do(t, http.MethodPost, "/v1/ingest/run", `{"run_id": "run-7", "run": {"keyword": "python etl", "status": "running", "data": {"jobs": [{"title": "Nightly ETL", "url": "https://www.upwork.com/jobs/~07aaa"}]}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.OutcomeDebounced, decode[ingest.RunResult](t, rec).Outcome)

	summary := decode[model.Summary](t, f.do(t, http.MethodGet, "/v1/telemetry/summary", ""))
	assert.Equal(t, 1, summary.Listings)
}

func TestIngestRun_Invalid(t *testing.T) {
	f := newAPIFixture(t)

	for name, body := range map[string]string{
		"missing run_id": `{"run": {}}`,
		"blank run_id":   `{"run_id": "   ", "run": {}}`,
		"jobs not array": `{"run_id": "r", "run": {"data": {"jobs": "nope"}}}`,
		"not json":       `{"run_id":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/ingest/run", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, engine.OutcomeRejected, decode[ErrorResponse](t, rec).Outcome)
		})
	}
}

func TestIngestRun_Closed(t *testing.T) {
	f := newAPIFixture(t)
	f.runs.Close()

	rec := f.do(t, http.MethodPost, "/v1/ingest/run", `{"run_id": "r1", "run": {}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpportunitiesAndDraft(t *testing.T) {
	f := newAPIFixture(t)
	f.seedExport(t)

	rec := f.do(t, http.MethodGet, "/v1/opportunities?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	views := decode[[]pipeline.OpportunityView](t, rec)
	require.Len(t, views, 2)
	assert.Equal(t, "~01bbb", views[0].ListingKey, "fresh listing ranks first")

	rec = f.do(t, http.MethodGet, "/v1/opportunities?max_proposals=10", "")
	views = decode[[]pipeline.OpportunityView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "~01bbb", views[0].ListingKey)

	rec = f.do(t, http.MethodGet, "/v1/opportunities/~01bbb/draft", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[model.Draft](t, rec)
	assert.Equal(t, "~01bbb", d.ListingKey)
	assert.NotEmpty(t, d.Body)

	rec = f.do(t, http.MethodGet, "/v1/opportunities/~nope/draft", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeywordRecommendations(t *testing.T) {
	f := newAPIFixture(t)
	f.seedExport(t)

	rec := f.do(t, http.MethodGet, "/v1/recommendations/keywords?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	metrics := decode[[]model.KeywordMetric](t, rec)
	require.Len(t, metrics, 1)
	assert.Equal(t, "python etl", metrics[0].Keyword)
	assert.Equal(t, 2, metrics[0].Demand)
}

func TestBadQueryParameters(t *testing.T) {
	f := newAPIFixture(t)

	for _, target := range []string{
		"/v1/recommendations/keywords?limit=lots",
		"/v1/opportunities?safe_only=maybe",
		"/v1/opportunities?max_proposals=few",
	} {
		rec := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestQueueTelemetry(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/telemetry/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.QueueTelemetry{}, decode[model.QueueTelemetry](t, rec))

	rec = f.do(t, http.MethodPost, "/v1/telemetry/queue", `{"total": 5, "pending": 2, "running": 1, "completed": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	posted := decode[model.QueueTelemetry](t, rec)
	assert.Equal(t, 5, posted.Total)
	require.NotNil(t, posted.LastCycleAt)
	assert.True(t, posted.LastCycleAt.Equal(testNow))

	got := decode[model.QueueTelemetry](t, f.do(t, http.MethodGet, "/v1/telemetry/queue", ""))
	assert.Equal(t, 2, got.Pending)

	rec = f.do(t, http.MethodPost, "/v1/telemetry/queue", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/opportunities", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunShutsDown(t *testing.T) {
	f := newAPIFixture(t)
	srv := New(Config{Addr: "127.0.0.1:0"}, f.server.deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
