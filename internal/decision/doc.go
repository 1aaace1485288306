// Package decision classifies scored listings into APPLY/WATCH/SKIP actions
// and HOT/WARM/COLD labels.
//
// Every listing first gets a deterministic rule classification. When a Judge
// is configured, its qualitative assessment can replace the rule action.
// Either way the hard rules run last and cannot be overridden. Once a record
// carries a judgment, later rule-only passes go through Tighten, which can
// only move the action toward SKIP.
package decision
