// Package pipeline turns canonical records into decisions.
//
// Refresh recomputes keyword metrics, opportunities and drafts from the
// stored listings and providers in one write. AnalyzePending runs the
// optional external judge over fresh, unjudged listings. The query methods
// read through the coordinator's degraded-read path, so a busy store serves
// the last good answer instead of an error.
package pipeline
