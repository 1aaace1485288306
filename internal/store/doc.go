// Package store provides SQLite-backed canonical storage for marketplace
// records and the scores derived from them.
//
// Tables:
//   - ingested_files: one row per export file, keyed by path, holding the
//     content hash that decides whether the file is reprocessed
//   - listings, providers, catalog_items: canonical records keyed by their
//     natural keys; scraped_at only moves forward
//   - keyword_metrics: replaced wholesale by every refresh
//   - opportunities, drafts: one per listing
//   - queue_telemetry: singleton row
//   - pipeline_events: append-only audit of scans, run ingests and refreshes
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Writers are expected to go through one coordinator; the store itself only
// guarantees that each batch method commits atomically.
package store
