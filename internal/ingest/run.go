package ingest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/roach88/gigrank/internal/coord"
	"github.com/roach88/gigrank/internal/model"
	"github.com/roach88/gigrank/internal/normalize"
	"github.com/roach88/gigrank/internal/store"
)

//go:embed run_schema.json
var runSchemaJSON []byte

const runSchemaURL = "https://gigrank.local/schema/run.json"

// ErrInvalidPayload is returned for run payloads that fail validation. It is
// permanent: the same payload will never succeed.
var ErrInvalidPayload = errors.New("invalid run payload")

// FinalStatuses are the run statuses after which a run sends no more data.
var FinalStatuses = map[string]bool{
	"complete":  true,
	"completed": true,
	"stopped":   true,
	"done":      true,
	"finished":  true,
}

var runSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(runSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("load run schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(runSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("load run schema: %w", err)
	}
	return c.Compile(runSchemaURL)
})

// RunPayload is one crawler run snapshot. Progress snapshots of the same run
// arrive repeatedly with growing data until the run reaches a final status.
type RunPayload struct {
	RunID string `json:"run_id"`
	Run   Run    `json:"run"`
}

// Run is the crawler's description of a run.
type Run struct {
	Keyword string  `json:"keyword,omitempty"`
	Status  string  `json:"status,omitempty"`
	Data    RunData `json:"data"`
}

// RunData holds the rows collected so far. Elements that are not objects are
// counted as dropped.
type RunData struct {
	Jobs     []any `json:"jobs,omitempty"`
	Talent   []any `json:"talent,omitempty"`
	Projects []any `json:"projects,omitempty"`
}

// RunStats counts the rows of a payload.
type RunStats struct {
	Jobs     int `json:"jobs"`
	Talent   int `json:"talent"`
	Projects int `json:"projects"`
	Total    int `json:"total"`
	Detail   int `json:"detail"`
}

// ParseRunPayload validates data against the run schema and decodes it.
// Validation failures wrap ErrInvalidPayload.
func ParseRunPayload(data []byte) (RunPayload, error) {
	schema, err := runSchema()
	if err != nil {
		return RunPayload{}, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return RunPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(inst); err != nil {
		return RunPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p RunPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return RunPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p.RunID = strings.TrimSpace(p.RunID)
	if p.RunID == "" {
		return RunPayload{}, fmt.Errorf("%w: run_id is blank", ErrInvalidPayload)
	}
	return p, nil
}

// Status returns the normalized run status.
func (p RunPayload) Status() string {
	return strings.ToLower(strings.TrimSpace(p.Run.Status))
}

// Final reports whether the run has finished.
func (p RunPayload) Final() bool {
	return FinalStatuses[p.Status()]
}

// Keyword returns the canonical run keyword, or the default keyword.
func (p RunPayload) Keyword() string {
	if kw := normalize.CanonicalKeyword(p.Run.Keyword); kw != "" {
		return kw
	}
	return normalize.DefaultKeyword
}

// Stats counts the payload rows. Detail counts rows whose detail page was
// fetched.
func (p RunPayload) Stats() RunStats {
	s := RunStats{
		Jobs:     len(p.Run.Data.Jobs),
		Talent:   len(p.Run.Data.Talent),
		Projects: len(p.Run.Data.Projects),
	}
	s.Total = s.Jobs + s.Talent + s.Projects
	for _, part := range [][]any{p.Run.Data.Jobs, p.Run.Data.Talent, p.Run.Data.Projects} {
		for _, item := range part {
			if obj, ok := item.(map[string]any); ok && normalize.NewRow(obj).Value("detail_status") != nil {
				s.Detail++
			}
		}
	}
	return s
}

// Signature identifies the observable progress of a run. Two snapshots with
// the same signature carry nothing new worth persisting.
func (p RunPayload) Signature() string {
	s := p.Stats()
	return fmt.Sprintf("%s|%d|%d|%d|%d", p.Status(), s.Jobs, s.Talent, s.Projects, s.Detail)
}

// RunResult is the response for one run ingest.
type RunResult struct {
	RunID        string    `json:"run_id"`
	Keyword      string    `json:"keyword"`
	Listings     int       `json:"listings_ingested"`
	Providers    int       `json:"providers_ingested"`
	CatalogItems int       `json:"catalog_items_ingested"`
	DroppedRows  int       `json:"dropped_rows"`
	RefreshedAt  time.Time `json:"refreshed_at"`
	Outcome      string    `json:"outcome,omitempty"`
}

// DefaultResult is the response used when a payload could not be persisted
// yet and no earlier response for the run exists.
func DefaultResult(p RunPayload, now time.Time) RunResult {
	s := p.Stats()
	return RunResult{
		RunID:        p.RunID,
		Keyword:      p.Keyword(),
		Listings:     s.Jobs,
		Providers:    s.Talent,
		CatalogItems: s.Projects,
		RefreshedAt:  now.UTC(),
	}
}

// RunIngester persists run payloads.
type RunIngester struct {
	store  *store.Store
	coord  *coord.Coordinator
	norm   *normalize.Normalizer
	now    func() time.Time
	logger *slog.Logger
}

// NewRunIngester creates a RunIngester.
func NewRunIngester(st *store.Store, c *coord.Coordinator, norm *normalize.Normalizer, now func() time.Time, logger *slog.Logger) *RunIngester {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunIngester{store: st, coord: c, norm: norm, now: now, logger: logger}
}

// Ingest normalizes and persists p in one write, waiting at most lockTimeout
// for the write permit. It is attempted once; callers queue failures.
func (ri *RunIngester) Ingest(ctx context.Context, p RunPayload, lockTimeout time.Duration) (RunResult, error) {
	keyword := p.Keyword()
	source := "run:" + p.RunID

	var batch normalize.Batch
	for _, part := range []struct {
		kind  model.Dataset
		items []any
	}{
		{model.DatasetListings, p.Run.Data.Jobs},
		{model.DatasetProviders, p.Run.Data.Talent},
		{model.DatasetCatalog, p.Run.Data.Projects},
	} {
		rows, skipped := objectRows(part.items)
		batch.Dropped += skipped
		for _, row := range rows {
			ri.norm.Add(&batch, part.kind, row, keyword, source)
		}
	}

	now := ri.now().UTC()
	res := RunResult{
		RunID:        p.RunID,
		Keyword:      keyword,
		Listings:     len(batch.Listings),
		Providers:    len(batch.Providers),
		CatalogItems: len(batch.Catalog),
		DroppedRows:  batch.Dropped,
		RefreshedAt:  now,
	}
	ev, err := store.NewEvent(model.EventRunIngest, struct {
		Status string   `json:"status"`
		Stats  RunStats `json:"stats"`
		RunResult
	}{p.Status(), p.Stats(), res}, now)
	if err != nil {
		return RunResult{}, err
	}

	err = ri.coord.Write(ctx, "ingest run", lockTimeout, func(ctx context.Context) error {
		return ri.store.IngestBatch(ctx, store.Batch{
			Listings:  batch.Listings,
			Providers: batch.Providers,
			Catalog:   batch.Catalog,
			Event:     &ev,
		})
	})
	if err != nil {
		return RunResult{}, err
	}

	ri.logger.Debug("ingested run",
		"run_id", p.RunID,
		"status", p.Status(),
		"listings", res.Listings,
		"providers", res.Providers,
		"catalog_items", res.CatalogItems)
	return res, nil
}
