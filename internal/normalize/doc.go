// Package normalize maps loosely-typed export rows onto canonical entities.
//
// Export files drift: the same field shows up as "budget", "price" or
// "payment" depending on which crawler build produced the file, numbers
// arrive as "$500-$1,500" or "2k", and booleans as "Payment verified".
// Row holds the raw string-keyed values; the Normalizer resolves each
// canonical field through an ordered alias list and coerces the value.
// Nothing loosely typed escapes this package.
//
// Rows that cannot yield a title (listings, catalog items) or a name or
// headline (providers) are dropped and counted, never returned as errors.
package normalize
