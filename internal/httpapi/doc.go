// Package httpapi serves gigrank's JSON request surface with gin.
//
// Reads never fail: when the store is busy they are answered from the last
// good value (or an empty default) by the pipeline. Run snapshots that
// cannot be written right away are queued and acknowledged.
package httpapi
