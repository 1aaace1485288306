package decision

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/scoring"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPJudge_Classify(t *testing.T) {
	content := "Here you go:\n```json\n{\"summary_1line\":\"ETL job\",\"technical_fit\":0.9,\"budget_fit\":0.7,\"scope_clarity\":0.6,\"client_quality\":0.8,\"competition_signal\":\"low\",\"estimated_effort_hours\":8,\"recommended_action\":\"APPLY\",\"opening_hook\":\"Hi\"}\n```"
	srv := chatServer(t, http.StatusOK, content)
	j := NewHTTPJudge(srv.URL+"/", "local", scoring.DefaultProfile())

	a, err := j.Classify(context.Background(), ViewOf(goodListing(), goodScores()))

	require.NoError(t, err)
	assert.Equal(t, "ETL job", a.Summary)
	assert.Equal(t, 0.9, a.TechnicalFit)
	assert.Equal(t, model.ActionApply, a.Action)
	assert.Equal(t, 8.0, a.EffortHours)
	assert.Equal(t, "Hi", a.OpeningHook)
}

func TestHTTPJudge_RankWrapped(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"rankings":[{"job_key":"a","priority_label":"HOT","time_sensitivity":"urgent","reason":"r"}]}`)
	j := NewHTTPJudge(srv.URL, "local", scoring.DefaultProfile())

	rankings, err := j.Rank(context.Background(), []RankCandidate{{Key: "a"}, {Key: "b"}})

	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, Ranking{Key: "a", Label: model.LabelHot, TimeSensitivity: Urgent, Reason: "r"}, rankings[0])
}

func TestHTTPJudge_RankArray(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `[{"job_key":"b","priority_label":"WARM"}]`)
	j := NewHTTPJudge(srv.URL, "local", scoring.DefaultProfile())

	rankings, err := j.Rank(context.Background(), []RankCandidate{{Key: "a"}, {Key: "b"}})

	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, model.LabelWarm, rankings[0].Label)
}

func TestHTTPJudge_Failures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := chatServer(t, http.StatusInternalServerError, "")
		_, err := NewHTTPJudge(srv.URL, "m", scoring.DefaultProfile()).Classify(context.Background(), ListingView{})
		assert.ErrorIs(t, err, ErrJudgeUnavailable)
	})
	t.Run("not json", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "I cannot help with that.")
		_, err := NewHTTPJudge(srv.URL, "m", scoring.DefaultProfile()).Classify(context.Background(), ListingView{})
		assert.ErrorIs(t, err, ErrJudgeUnavailable)
	})
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := NewHTTPJudge(url, "m", scoring.DefaultProfile()).Classify(context.Background(), ListingView{})
		assert.ErrorIs(t, err, ErrJudgeUnavailable)
	})
	t.Run("deadline", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		// Cleanups run last-in first-out: the handler is released before
		// Close waits for it.
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewHTTPJudge(srv.URL, "m", scoring.DefaultProfile()).Classify(ctx, ListingView{})
		assert.ErrorIs(t, err, ErrJudgeUnavailable)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("sure {\"a\":1} done"))
	assert.Equal(t, `[1,2]`, extractJSON("```json\n[1,2]\n```"))
	assert.Equal(t, "plain", extractJSON("plain"))
}
