// Package engine runs gigrank's background machinery around the pipeline.
//
// ARCHITECTURE:
//
// Scheduler:
// One goroutine runs the full cycle (scan the data root, then the optional
// judge pass) every cycle interval. Out-of-band work is requested through
// TriggerRefresh, which is single-flighted: while one triggered scan or
// refresh is in flight, further triggers are dropped. A dedicated worker
// goroutine executes triggered work so callers never block on it.
//
// Run ingestion:
// RunIngestService accepts crawler run snapshots. Snapshots of a running
// crawl are debounced against the RunTracker; final snapshots always persist.
// A snapshot that cannot be persisted right away (write permit busy, SQLite
// locked) is parked in the RetryQueue and the caller gets the last good
// response for that run. The retry worker drains the queue with per-run
// exponential backoff, final runs first.
//
// Watcher:
// An fsnotify watcher on the data root turns export file writes into a
// debounced scan trigger.
//
// All store writes go through coord.Coordinator; nothing in this package
// touches SQLite directly.
package engine
