// Package testutil holds shared test helpers: a settable clock and store and
// file fixtures.
package testutil
