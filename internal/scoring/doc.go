// Package scoring computes the fit, safety, freshness and keyword
// opportunity scores.
//
// Every function here is pure and deterministic: inputs in, a score in
// [0,100] out. Nothing is cached between cycles; callers recompute from the
// store each refresh. The only configurable state is the FitTable, passed
// in explicitly and extended from an operator Profile.
package scoring
