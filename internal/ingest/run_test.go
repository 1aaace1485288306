package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/normalize"
	"github.com/roach88/gigrank/internal/testutil"
)

const runPayload = `{
  "run_id": "run-42",
  "run": {
    "keyword": "  RAG Chatbot ",
    "status": "Running",
    "data": {
      "jobs": [
        {"title": "Build a RAG bot", "url": "https://www.upwork.com/jobs/~0111", "budget": "$1,200", "detail_status": "ok"},
        {"title": "Support chatbot", "url": "https://www.upwork.com/jobs/~0222", "proposals": "20 to 50"},
        {"description": "no title"},
        42
      ],
      "talent": [{"name": "Grace", "url": "https://www.upwork.com/freelancers/~0333", "hourly_rate": "$60"}]
    }
  }
}`

func TestParseRunPayload(t *testing.T) {
	p, err := ParseRunPayload([]byte(runPayload))
	require.NoError(t, err)

	assert.Equal(t, "run-42", p.RunID)
	assert.Equal(t, "running", p.Status())
	assert.False(t, p.Final())
	assert.Equal(t, "rag chatbot", p.Keyword())
	assert.Equal(t, RunStats{Jobs: 4, Talent: 1, Total: 5, Detail: 1}, p.Stats())
	assert.Equal(t, "running|4|1|0|1", p.Signature())
}

func TestParseRunPayload_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"run_id":`},
		{"missing run_id", `{"run": {}}`},
		{"empty run_id", `{"run_id": "", "run": {}}`},
		{"blank run_id", `{"run_id": "   ", "run": {}}`},
		{"missing run", `{"run_id": "r1"}`},
		{"run not object", `{"run_id": "r1", "run": []}`},
		{"jobs not array", `{"run_id": "r1", "run": {"data": {"jobs": {}}}}`},
		{"top level array", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRunPayload([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestRunPayload_FinalStatuses(t *testing.T) {
	for status := range FinalStatuses {
		p := RunPayload{RunID: "r", Run: Run{Status: " " + status + " "}}
		assert.True(t, p.Final(), status)
	}
	assert.False(t, RunPayload{Run: Run{Status: "failed"}}.Final())
	assert.Equal(t, normalize.DefaultKeyword, RunPayload{}.Keyword())
}

func TestDefaultResult(t *testing.T) {
	p, err := ParseRunPayload([]byte(runPayload))
	require.NoError(t, err)

	res := DefaultResult(p, scanNow)
	assert.Equal(t, RunResult{
		RunID:       "run-42",
		Keyword:     "rag chatbot",
		Listings:    4,
		Providers:   1,
		RefreshedAt: scanNow,
	}, res)
}

func TestRunIngester_Ingest(t *testing.T) {
	st := testutil.OpenStore(t)
	clock := testutil.NewFakeClock(scanNow)
	ri := NewRunIngester(st, coord.New(), normalize.New(normalize.WithClock(clock.Now)), clock.Now, nil)
	ctx := context.Background()

	p, err := ParseRunPayload([]byte(runPayload))
	require.NoError(t, err)

	res, err := ri.Ingest(ctx, p, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Listings)
	assert.Equal(t, 1, res.Providers)
	assert.Equal(t, 0, res.CatalogItems)
	assert.Equal(t, 2, res.DroppedRows)
	assert.Equal(t, scanNow, res.RefreshedAt)

	l, ok, err := st.Listing(ctx, "~0111")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run:run-42", l.SourceFile)
	assert.Equal(t, "rag chatbot", l.Keyword)

	events, err := st.Events(ctx, model.EventRunIngest, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"run_id":"run-42"`)

	sum, err := st.Summary(ctx)
	require.NoError(t, err)
	require.NotNil(t, sum.LastIngestAt)
	assert.True(t, sum.LastIngestAt.Equal(scanNow))
}

func TestRunIngester_LockTimeout(t *testing.T) {
	st := testutil.OpenStore(t)
	c := coord.New()
	ri := NewRunIngester(st, c, normalize.New(), nil, nil)
	ctx := context.Background()

	p, err := ParseRunPayload([]byte(runPayload))
	require.NoError(t, err)

	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = c.Write(ctx, "holder", time.Second, func(context.Context) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held
	defer close(hold)

	_, err = ri.Ingest(ctx, p, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, coord.ErrWriteLockTimeout)

	sum, err := st.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Listings)
}
