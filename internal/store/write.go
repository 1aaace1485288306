package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/gigrank/internal/model"
)

// Batch is one atomic ingest unit: canonical records plus the audit rows
// describing where they came from. File and Event are optional.
type Batch struct {
	Listings  []model.Listing
	Providers []model.Provider
	Catalog   []model.CatalogItem
	File      *model.IngestedFile
	Event     *model.PipelineEvent
}

// Refresh is the output of one scoring pass.
type Refresh struct {
	Metrics       []model.KeywordMetric
	Opportunities []model.Opportunity
	Drafts        []model.Draft
	Event         *model.PipelineEvent
}

// NewEvent builds a pipeline event with a JSON payload. The id is assigned
// when the event is written.
func NewEvent(eventType string, payload any, at time.Time) (model.PipelineEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.PipelineEvent{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return model.PipelineEvent{Type: eventType, Payload: data, CreatedAt: at}, nil
}

// IngestBatch upserts all records of a batch and its audit rows in one
// transaction. A record only overwrites an existing one when its scraped_at
// is not older, so scraped_at never moves backward.
func (s *Store) IngestBatch(ctx context.Context, b Batch) error {
	return s.withTx(ctx, "ingest batch", func(tx *sql.Tx) error {
		for _, l := range b.Listings {
			if err := upsertListing(ctx, tx, l); err != nil {
				return err
			}
		}
		for _, p := range b.Providers {
			if err := upsertProvider(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, c := range b.Catalog {
			if err := upsertCatalogItem(ctx, tx, c); err != nil {
				return err
			}
		}
		if b.File != nil {
			if err := upsertIngestedFile(ctx, tx, *b.File); err != nil {
				return err
			}
		}
		if b.Event != nil {
			if err := s.insertEvent(ctx, tx, b.Event); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyRefresh replaces every keyword metric and upserts the opportunities
// and drafts of a scoring pass in one transaction.
func (s *Store) ApplyRefresh(ctx context.Context, r Refresh) error {
	return s.withTx(ctx, "apply refresh", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM keyword_metrics`); err != nil {
			return fmt.Errorf("clear keyword metrics: %w", err)
		}
		for _, m := range r.Metrics {
			if err := insertKeywordMetric(ctx, tx, m); err != nil {
				return err
			}
		}
		return s.writeDecisions(ctx, tx, r.Opportunities, r.Drafts, r.Event)
	})
}

// SaveOpportunities upserts opportunities and drafts without touching
// keyword metrics.
func (s *Store) SaveOpportunities(ctx context.Context, opps []model.Opportunity, drafts []model.Draft, event *model.PipelineEvent) error {
	return s.withTx(ctx, "save opportunities", func(tx *sql.Tx) error {
		return s.writeDecisions(ctx, tx, opps, drafts, event)
	})
}

// PutQueueTelemetry replaces the queue telemetry singleton.
func (s *Store) PutQueueTelemetry(ctx context.Context, t model.QueueTelemetry, event *model.PipelineEvent) error {
	return s.withTx(ctx, "put queue telemetry", func(tx *sql.Tx) error {
		var lastCycle sql.NullString
		if t.LastCycleAt != nil {
			lastCycle = sql.NullString{String: formatTime(*t.LastCycleAt), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO queue_telemetry (id, total, pending, running, completed, error, last_cycle_at)
			VALUES (1, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				total = excluded.total,
				pending = excluded.pending,
				running = excluded.running,
				completed = excluded.completed,
				error = excluded.error,
				last_cycle_at = excluded.last_cycle_at
		`, t.Total, t.Pending, t.Running, t.Completed, t.Error, lastCycle)
		if err != nil {
			return fmt.Errorf("write queue telemetry: %w", err)
		}
		if event != nil {
			return s.insertEvent(ctx, tx, event)
		}
		return nil
	})
}

// AppendEvent writes one pipeline event. An empty id is generated.
func (s *Store) AppendEvent(ctx context.Context, event model.PipelineEvent) (string, error) {
	if err := s.insertEvent(ctx, s.db, &event); err != nil {
		return "", err
	}
	return event.ID, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *Store) insertEvent(ctx context.Context, ex execer, event *model.PipelineEvent) error {
	if event.ID == "" {
		event.ID = s.ids.Generate()
	}
	payload := string(event.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO pipeline_events (id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, event.ID, event.Type, payload, formatTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func upsertListing(ctx context.Context, tx *sql.Tx, l model.Listing) error {
	skills, err := marshalStrings(l.Skills)
	if err != nil {
		return fmt.Errorf("write listing %s: %w", l.Key, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings
		(listing_key, keyword, title, description, url, budget_raw, budget_value, client_spend,
		 payment_verified, proposals_raw, skills, source_file, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_key) DO UPDATE SET
			keyword = excluded.keyword,
			title = excluded.title,
			description = excluded.description,
			url = excluded.url,
			budget_raw = excluded.budget_raw,
			budget_value = excluded.budget_value,
			client_spend = excluded.client_spend,
			payment_verified = excluded.payment_verified,
			proposals_raw = excluded.proposals_raw,
			skills = excluded.skills,
			source_file = excluded.source_file,
			scraped_at = excluded.scraped_at
		WHERE excluded.scraped_at >= listings.scraped_at
	`,
		l.Key, l.Keyword, l.Title, l.Description, l.URL, l.BudgetRaw,
		nullFloat(l.Budget), nullFloat(l.ClientSpend), l.PaymentVerified,
		l.ProposalsRaw, skills, l.SourceFile, formatTime(l.ScrapedAt),
	)
	if err != nil {
		return fmt.Errorf("write listing %s: %w", l.Key, err)
	}
	return nil
}

func upsertProvider(ctx context.Context, tx *sql.Tx, p model.Provider) error {
	skills, err := marshalStrings(p.Skills)
	if err != nil {
		return fmt.Errorf("write provider %s: %w", p.Key, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO providers
		(provider_key, keyword, name, headline, description, url, rate_raw, rate_value,
		 skills, location, rating, jobs_completed, source_file, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider_key) DO UPDATE SET
			keyword = excluded.keyword,
			name = excluded.name,
			headline = excluded.headline,
			description = excluded.description,
			url = excluded.url,
			rate_raw = excluded.rate_raw,
			rate_value = excluded.rate_value,
			skills = excluded.skills,
			location = excluded.location,
			rating = excluded.rating,
			jobs_completed = excluded.jobs_completed,
			source_file = excluded.source_file,
			scraped_at = excluded.scraped_at
		WHERE excluded.scraped_at >= providers.scraped_at
	`,
		p.Key, p.Keyword, p.Name, p.Headline, p.Description, p.URL, p.RateRaw,
		nullFloat(p.Rate), skills, p.Location, nullFloat(p.Rating), nullInt(p.JobsCompleted),
		p.SourceFile, formatTime(p.ScrapedAt),
	)
	if err != nil {
		return fmt.Errorf("write provider %s: %w", p.Key, err)
	}
	return nil
}

func upsertCatalogItem(ctx context.Context, tx *sql.Tx, c model.CatalogItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO catalog_items
		(item_key, keyword, title, description, url, category, price_raw, price_value,
		 rating, sales, source_file, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_key) DO UPDATE SET
			keyword = excluded.keyword,
			title = excluded.title,
			description = excluded.description,
			url = excluded.url,
			category = excluded.category,
			price_raw = excluded.price_raw,
			price_value = excluded.price_value,
			rating = excluded.rating,
			sales = excluded.sales,
			source_file = excluded.source_file,
			scraped_at = excluded.scraped_at
		WHERE excluded.scraped_at >= catalog_items.scraped_at
	`,
		c.Key, c.Keyword, c.Title, c.Description, c.URL, c.Category, c.PriceRaw,
		nullFloat(c.Price), nullFloat(c.Rating), nullInt(c.Sales),
		c.SourceFile, formatTime(c.ScrapedAt),
	)
	if err != nil {
		return fmt.Errorf("write catalog item %s: %w", c.Key, err)
	}
	return nil
}

func upsertIngestedFile(ctx context.Context, tx *sql.Tx, f model.IngestedFile) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ingested_files
		(path, content_hash, file_type, dataset, keyword, row_count, dropped_rows, source_mtime, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			file_type = excluded.file_type,
			dataset = excluded.dataset,
			keyword = excluded.keyword,
			row_count = excluded.row_count,
			dropped_rows = excluded.dropped_rows,
			source_mtime = excluded.source_mtime,
			ingested_at = excluded.ingested_at
	`,
		f.Path, f.ContentHash, f.FileType, string(f.Dataset), f.Keyword, f.RowCount,
		f.DroppedRows, formatTime(f.SourceMtime), formatTime(f.IngestedAt),
	)
	if err != nil {
		return fmt.Errorf("write ingested file %s: %w", f.Path, err)
	}
	return nil
}

func insertKeywordMetric(ctx context.Context, tx *sql.Tx, m model.KeywordMetric) error {
	codes, err := marshalStrings(m.ReasonCodes)
	if err != nil {
		return fmt.Errorf("write keyword metric %s: %w", m.Keyword, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO keyword_metrics
		(keyword, demand, supply, gap_ratio, budget_avg, competition_inverse, trend_score,
		 opportunity_score, priority, reason_codes, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.Keyword, m.Demand, m.Supply, m.GapRatio, m.BudgetAvg, m.CompetitionInverse,
		m.TrendScore, m.OpportunityScore, string(m.Priority), codes, formatTime(m.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("write keyword metric %s: %w", m.Keyword, err)
	}
	return nil
}

func (s *Store) writeDecisions(ctx context.Context, tx *sql.Tx, opps []model.Opportunity, drafts []model.Draft, event *model.PipelineEvent) error {
	for _, o := range opps {
		if err := upsertOpportunity(ctx, tx, o); err != nil {
			return err
		}
	}
	for _, d := range drafts {
		if err := upsertDraft(ctx, tx, d); err != nil {
			return err
		}
	}
	if event != nil {
		return s.insertEvent(ctx, tx, event)
	}
	return nil
}

func upsertOpportunity(ctx context.Context, tx *sql.Tx, o model.Opportunity) error {
	reasons, err := marshalReasons(o.Reasons)
	if err != nil {
		return fmt.Errorf("write opportunity %s: %w", o.ListingKey, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO opportunities
		(listing_key, title, keyword, opportunity_score, safety_score, fit_score,
		 freshness_score, apply_now, reasons, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_key) DO UPDATE SET
			title = excluded.title,
			keyword = excluded.keyword,
			opportunity_score = excluded.opportunity_score,
			safety_score = excluded.safety_score,
			fit_score = excluded.fit_score,
			freshness_score = excluded.freshness_score,
			apply_now = excluded.apply_now,
			reasons = excluded.reasons,
			last_updated = excluded.last_updated
	`,
		o.ListingKey, o.Title, o.Keyword, o.OpportunityScore, o.SafetyScore, o.FitScore,
		o.FreshnessScore, o.ApplyNow, reasons, formatTime(o.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("write opportunity %s: %w", o.ListingKey, err)
	}
	return nil
}

func upsertDraft(ctx context.Context, tx *sql.Tx, d model.Draft) error {
	hooks, err := marshalStrings(d.HookPoints)
	if err != nil {
		return fmt.Errorf("write draft %s: %w", d.ListingKey, err)
	}
	cautions, err := marshalStrings(d.CautionNotes)
	if err != nil {
		return fmt.Errorf("write draft %s: %w", d.ListingKey, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO drafts (listing_key, body, hook_points, caution_notes, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(listing_key) DO UPDATE SET
			body = excluded.body,
			hook_points = excluded.hook_points,
			caution_notes = excluded.caution_notes,
			updated_at = excluded.updated_at
	`, d.ListingKey, d.Body, hooks, cautions, formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("write draft %s: %w", d.ListingKey, err)
	}
	return nil
}
