package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gigrank/internal/testutil"
)

const jobsCSV = `title,url,description,budget,proposals,payment_verified,client_spend,skills,scraped_at
Python ETL automation,https://www.upwork.com/jobs/~01ABC,Build a python etl job,$500,5 to 10,true,"$2,000","python, etl",2024-06-01T10:00:00Z
Chatbot for support,https://www.upwork.com/jobs/~02def,RAG chatbot,$1k-$2k,2,yes,,chatbot,2024-06-01T09:00:00Z
`

// isolateEnv clears settings that would leak from the developer's shell.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GIGRANK_DB", "DATA_ROOT", "PROFILE_PATH", "HTTP_ADDR", "JUDGE_URL",
		"RETRY_QUEUE_PATH", "CYCLE_INTERVAL", "WATCH",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

func runCLI(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestScanCommand_JSON(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	testutil.WriteFile(t, dataDir, "jobs_python_etl.csv", jobsCSV)
	db := filepath.Join(tmp, "gigrank.db")
	ctx := context.Background()

	out, _, err := runCLI(t, ctx, "--db", db, "--format", "json", "scan", dataDir)
	require.NoError(t, err)

	var report ScanReport
	decodeData(t, out, &report)
	assert.Equal(t, dataDir, report.Root)
	assert.Equal(t, 1, report.Scan.ScannedFiles)
	assert.Equal(t, 1, report.Scan.NewFiles)
	assert.NotNil(t, report.Scan.RefreshedAt)
	assert.Nil(t, report.Analyze)

	// Rescanning skips unchanged files but still refreshes.
	out, _, err = runCLI(t, ctx, "--db", db, "--format", "json", "scan", dataDir)
	require.NoError(t, err)
	decodeData(t, out, &report)
	assert.Equal(t, 0, report.Scan.NewFiles)
	assert.Equal(t, 0, report.Scan.UpdatedFiles)
	assert.NotNil(t, report.Scan.RefreshedAt)
}

func TestScanCommand_Text(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	testutil.WriteFile(t, dataDir, "jobs_python_etl.csv", jobsCSV)

	out, _, err := runCLI(t, context.Background(), "--db", filepath.Join(tmp, "g.db"), "scan", "--analyze", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "=== Files ===")
	assert.Contains(t, out, "New:     1")
	assert.Contains(t, out, "=== Analysis ===")
	assert.Contains(t, out, "Judged:     0")
}

func TestScanCommand_MissingDir(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()

	_, _, err := runCLI(t, context.Background(), "--db", filepath.Join(tmp, "g.db"), "scan", filepath.Join(tmp, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "scan failed")
}

func TestScanCommand_MissingDirJSON(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()

	out, _, err := runCLI(t, context.Background(), "--db", filepath.Join(tmp, "g.db"), "--format", "json", "scan", filepath.Join(tmp, "missing"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScan, resp.Error.Code)
}

func TestCommand_BadConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JUDGE_BATCH_SIZE", "0")

	_, _, err := runCLI(t, context.Background(), "--db", filepath.Join(t.TempDir(), "g.db"), "summary")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "JUDGE_BATCH_SIZE")
}

func TestQueryCommands(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	testutil.WriteFile(t, dataDir, "jobs_python_etl.csv", jobsCSV)
	db := filepath.Join(tmp, "gigrank.db")
	ctx := context.Background()

	_, _, err := runCLI(t, ctx, "--db", db, "scan", dataDir)
	require.NoError(t, err)

	t.Run("refresh", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "--format", "json", "refresh")
		require.NoError(t, err)
		var report RefreshReport
		decodeData(t, out, &report)
		assert.False(t, report.RefreshedAt.IsZero())
	})

	t.Run("summary", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "--format", "json", "summary")
		require.NoError(t, err)
		var report SummaryReport
		decodeData(t, out, &report)
		assert.Equal(t, 2, report.Summary.Listings)
		assert.Positive(t, report.Summary.Keywords)
		assert.Equal(t, 2, report.Summary.Opportunities)
		assert.NotNil(t, report.Summary.LastIngestAt)
	})

	t.Run("summary text", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "summary")
		require.NoError(t, err)
		assert.Contains(t, out, "=== Store ===")
		assert.Contains(t, out, "Listings:      2")
		assert.Contains(t, out, "=== Crawler Queue ===")
	})

	t.Run("keywords", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "--format", "json", "keywords", "--limit", "5")
		require.NoError(t, err)
		var metrics []map[string]any
		decodeData(t, out, &metrics)
		require.NotEmpty(t, metrics)
		assert.LessOrEqual(t, len(metrics), 5)
		assert.NotEmpty(t, metrics[0]["keyword"])
	})

	t.Run("keywords text", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "keywords")
		require.NoError(t, err)
		assert.Contains(t, out, "KEYWORD")
		assert.Contains(t, out, "PRIORITY")
	})

	t.Run("opportunities", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "--format", "json", "opportunities")
		require.NoError(t, err)
		var views []map[string]any
		decodeData(t, out, &views)
		assert.Len(t, views, 2)
	})

	t.Run("opportunities max proposals", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "--format", "json", "opportunities", "--max-proposals", "4")
		require.NoError(t, err)
		var views []map[string]any
		decodeData(t, out, &views)
		require.Len(t, views, 1)
		assert.Equal(t, "Chatbot for support", views[0]["title"])
	})

	t.Run("opportunities text", func(t *testing.T) {
		out, _, err := runCLI(t, ctx, "--db", db, "opportunities", "--keyword", "no-such-keyword")
		require.NoError(t, err)
		assert.Contains(t, out, "No opportunities match.")
	})
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	isolateEnv(t)
	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	testutil.WriteFile(t, dataDir, "jobs_python_etl.csv", jobsCSV)
	db := filepath.Join(tmp, "gigrank.db")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out, _, err := runCLI(t, ctx, "--db", db, "serve", "--addr", "127.0.0.1:0", "--root", dataDir, "--no-watch")
	require.NoError(t, err)
	assert.Contains(t, out, "gigrank listening on 127.0.0.1:0")
}
