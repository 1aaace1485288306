package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/gigrank/internal/model"
)

// SafeScoreMin is the safety score the safe_only filter requires.
const SafeScoreMin = 70.0

// OpportunityFilter selects opportunities in SQL. Rows come back ordered by
// apply_now, fit and opportunity score, all descending.
type OpportunityFilter struct {
	Limit     int
	SafeOnly  bool
	Keyword   string
	ApplyOnly bool
}

type scanner interface {
	Scan(dest ...any) error
}

// IngestedFile returns the audit record for path, if any.
func (s *Store) IngestedFile(ctx context.Context, path string) (model.IngestedFile, bool, error) {
	var (
		f                  model.IngestedFile
		dataset, mtime, at string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT path, content_hash, file_type, dataset, keyword, row_count, dropped_rows, source_mtime, ingested_at
		FROM ingested_files
		WHERE path = ?
	`, path).Scan(&f.Path, &f.ContentHash, &f.FileType, &dataset, &f.Keyword, &f.RowCount, &f.DroppedRows, &mtime, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IngestedFile{}, false, nil
	}
	if err != nil {
		return model.IngestedFile{}, false, fmt.Errorf("read ingested file: %w", err)
	}
	f.Dataset = model.Dataset(dataset)
	if f.SourceMtime, err = parseTime(mtime); err != nil {
		return model.IngestedFile{}, false, err
	}
	if f.IngestedAt, err = parseTime(at); err != nil {
		return model.IngestedFile{}, false, err
	}
	return f, true, nil
}

const listingColumns = `listing_key, keyword, title, description, url, budget_raw, budget_value,
	client_spend, payment_verified, proposals_raw, skills, source_file, scraped_at`

func scanListing(row scanner) (model.Listing, error) {
	var (
		l                 model.Listing
		budget, spend     sql.NullFloat64
		skills, scrapedAt string
	)
	err := row.Scan(&l.Key, &l.Keyword, &l.Title, &l.Description, &l.URL, &l.BudgetRaw, &budget,
		&spend, &l.PaymentVerified, &l.ProposalsRaw, &skills, &l.SourceFile, &scrapedAt)
	if err != nil {
		return model.Listing{}, fmt.Errorf("scan listing: %w", err)
	}
	l.Budget = floatPtr(budget)
	l.ClientSpend = floatPtr(spend)
	if l.Skills, err = unmarshalStrings(skills); err != nil {
		return model.Listing{}, err
	}
	if l.ScrapedAt, err = parseTime(scrapedAt); err != nil {
		return model.Listing{}, err
	}
	return l, nil
}

// Listings returns every listing ordered by key.
func (s *Store) Listings(ctx context.Context) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY listing_key`)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return listings, nil
}

// Listing returns one listing by key.
func (s *Store) Listing(ctx context.Context, key string) (model.Listing, bool, error) {
	l, err := scanListing(s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE listing_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, false, nil
	}
	if err != nil {
		return model.Listing{}, false, err
	}
	return l, true, nil
}

// ListingsByKey returns the listings for keys. Unknown keys are absent from
// the result.
func (s *Store) ListingsByKey(ctx context.Context, keys []string) (map[string]model.Listing, error) {
	out := make(map[string]model.Listing, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE listing_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings by key: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out[l.Key] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return out, nil
}

// Providers returns every provider ordered by key.
func (s *Store) Providers(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider_key, keyword, name, headline, description, url, rate_raw, rate_value,
		       skills, location, rating, jobs_completed, source_file, scraped_at
		FROM providers
		ORDER BY provider_key
	`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	providers := []model.Provider{}
	for rows.Next() {
		var (
			p                 model.Provider
			rate, rating      sql.NullFloat64
			jobs              sql.NullInt64
			skills, scrapedAt string
		)
		if err := rows.Scan(&p.Key, &p.Keyword, &p.Name, &p.Headline, &p.Description, &p.URL, &p.RateRaw, &rate,
			&skills, &p.Location, &rating, &jobs, &p.SourceFile, &scrapedAt); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		p.Rate = floatPtr(rate)
		p.Rating = floatPtr(rating)
		p.JobsCompleted = intPtr(jobs)
		if p.Skills, err = unmarshalStrings(skills); err != nil {
			return nil, err
		}
		if p.ScrapedAt, err = parseTime(scrapedAt); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return providers, nil
}

// KeywordMetrics returns up to limit metrics, best opportunity first.
func (s *Store) KeywordMetrics(ctx context.Context, limit int) ([]model.KeywordMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, demand, supply, gap_ratio, budget_avg, competition_inverse, trend_score,
		       opportunity_score, priority, reason_codes, last_updated
		FROM keyword_metrics
		ORDER BY opportunity_score DESC, keyword ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query keyword metrics: %w", err)
	}
	defer rows.Close()

	metrics := []model.KeywordMetric{}
	for rows.Next() {
		var (
			m                        model.KeywordMetric
			priority, codes, updated string
		)
		if err := rows.Scan(&m.Keyword, &m.Demand, &m.Supply, &m.GapRatio, &m.BudgetAvg, &m.CompetitionInverse,
			&m.TrendScore, &m.OpportunityScore, &priority, &codes, &updated); err != nil {
			return nil, fmt.Errorf("scan keyword metric: %w", err)
		}
		m.Priority = model.Priority(priority)
		if m.ReasonCodes, err = unmarshalStrings(codes); err != nil {
			return nil, err
		}
		if m.LastUpdated, err = parseTime(updated); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword metrics: %w", err)
	}
	return metrics, nil
}

const opportunityColumns = `listing_key, title, keyword, opportunity_score, safety_score, fit_score,
	freshness_score, apply_now, reasons, last_updated`

func scanOpportunity(row scanner) (model.Opportunity, error) {
	var (
		o                model.Opportunity
		reasons, updated string
	)
	err := row.Scan(&o.ListingKey, &o.Title, &o.Keyword, &o.OpportunityScore, &o.SafetyScore, &o.FitScore,
		&o.FreshnessScore, &o.ApplyNow, &reasons, &updated)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("scan opportunity: %w", err)
	}
	if o.Reasons, err = unmarshalReasons(reasons); err != nil {
		return model.Opportunity{}, err
	}
	if o.LastUpdated, err = parseTime(updated); err != nil {
		return model.Opportunity{}, err
	}
	return o, nil
}

// Opportunities returns opportunities matching f.
func (s *Store) Opportunities(ctx context.Context, f OpportunityFilter) ([]model.Opportunity, error) {
	var (
		where []string
		args  []any
	)
	if f.SafeOnly {
		where = append(where, "safety_score >= ?")
		args = append(args, SafeScoreMin)
	}
	if f.Keyword != "" {
		where = append(where, "keyword = ?")
		args = append(args, f.Keyword)
	}
	if f.ApplyOnly {
		where = append(where, "apply_now = 1")
	}

	query := `SELECT ` + opportunityColumns + ` FROM opportunities`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY apply_now DESC, fit_score DESC, opportunity_score DESC, listing_key ASC LIMIT ?`
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	return s.queryOpportunities(ctx, query, args...)
}

// AllOpportunities returns every opportunity keyed by listing key.
func (s *Store) AllOpportunities(ctx context.Context) (map[string]model.Opportunity, error) {
	opps, err := s.queryOpportunities(ctx, `SELECT `+opportunityColumns+` FROM opportunities`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Opportunity, len(opps))
	for _, o := range opps {
		out[o.ListingKey] = o
	}
	return out, nil
}

func (s *Store) queryOpportunities(ctx context.Context, query string, args ...any) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer rows.Close()

	opps := []model.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}
	return opps, nil
}

// Draft returns the draft for a listing, if any.
func (s *Store) Draft(ctx context.Context, key string) (model.Draft, bool, error) {
	var (
		d                        model.Draft
		hooks, cautions, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT listing_key, body, hook_points, caution_notes, updated_at
		FROM drafts
		WHERE listing_key = ?
	`, key).Scan(&d.ListingKey, &d.Body, &hooks, &cautions, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Draft{}, false, nil
	}
	if err != nil {
		return model.Draft{}, false, fmt.Errorf("read draft: %w", err)
	}
	if d.HookPoints, err = unmarshalStrings(hooks); err != nil {
		return model.Draft{}, false, err
	}
	if d.CautionNotes, err = unmarshalStrings(cautions); err != nil {
		return model.Draft{}, false, err
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Draft{}, false, err
	}
	return d, true, nil
}

// DraftKeys returns the set of listing keys that have a draft.
func (s *Store) DraftKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT listing_key FROM drafts`)
	if err != nil {
		return nil, fmt.Errorf("query draft keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan draft key: %w", err)
		}
		keys[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draft keys: %w", err)
	}
	return keys, nil
}

// QueueTelemetry returns the stored telemetry and whether any was ever
// posted.
func (s *Store) QueueTelemetry(ctx context.Context) (model.QueueTelemetry, bool, error) {
	var (
		t         model.QueueTelemetry
		lastCycle sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT total, pending, running, completed, error, last_cycle_at
		FROM queue_telemetry
		WHERE id = 1
	`).Scan(&t.Total, &t.Pending, &t.Running, &t.Completed, &t.Error, &lastCycle)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueTelemetry{}, false, nil
	}
	if err != nil {
		return model.QueueTelemetry{}, false, fmt.Errorf("read queue telemetry: %w", err)
	}
	if lastCycle.Valid {
		ts, err := parseTime(lastCycle.String)
		if err != nil {
			return model.QueueTelemetry{}, false, err
		}
		t.LastCycleAt = &ts
	}
	return t, true, nil
}

// Summary returns table counts and the most recent ingest time, taken from
// both ingested files and run ingest events.
func (s *Store) Summary(ctx context.Context) (model.Summary, error) {
	var (
		sum                 model.Summary
		lastFile, lastEvent sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM providers),
			(SELECT COUNT(*) FROM catalog_items),
			(SELECT COUNT(*) FROM keyword_metrics),
			(SELECT COUNT(*) FROM opportunities),
			(SELECT MAX(ingested_at) FROM ingested_files),
			(SELECT MAX(created_at) FROM pipeline_events WHERE event_type IN (?, ?))
	`, model.EventScan, model.EventRunIngest).Scan(
		&sum.Listings, &sum.Providers, &sum.CatalogItems, &sum.Keywords, &sum.Opportunities,
		&lastFile, &lastEvent,
	)
	if err != nil {
		return model.Summary{}, fmt.Errorf("read summary: %w", err)
	}

	var latest time.Time
	for _, v := range []sql.NullString{lastFile, lastEvent} {
		if !v.Valid {
			continue
		}
		ts, err := parseTime(v.String)
		if err != nil {
			return model.Summary{}, err
		}
		if ts.After(latest) {
			latest = ts
		}
	}
	if !latest.IsZero() {
		sum.LastIngestAt = &latest
	}
	return sum, nil
}

// Events returns up to limit events of the given type, newest first. An
// empty type matches every event.
func (s *Store) Events(ctx context.Context, eventType string, limit int) ([]model.PipelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, created_at
		FROM pipeline_events
		WHERE ? = '' OR event_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, eventType, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.PipelineEvent{}
	for rows.Next() {
		var (
			e                  model.PipelineEvent
			payload, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Type, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = []byte(payload)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
