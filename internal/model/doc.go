// Package model defines the canonical entities persisted by the store and
// exchanged between the normalizer, scoring, decision and request layers.
//
// Entities are plain structs. Optional numeric attributes are pointers so
// that "absent in the export" and "zero" stay distinguishable all the way
// into the database.
package model
