// Package coord serializes store writes behind a single permit, retries
// transient contention, and serves degraded reads from a last-known-good
// cache when the store is unavailable.
//
// All writers (HTTP handlers, the scheduler, the retry worker) go through
// one Coordinator so that at most one write transaction is open at a time.
package coord
