// Package domain models disaster-impact records from the impact database and
// the EM-DAT reference dataset, and holds every reconciliation rule applied to
// them.
//
// # Granularities
//
// The impact database stores each event at three levels, distinguished by a
// table-name prefix:
//
//	Total*     one row per event (event-wide totals, event type, dates)
//	Specific*  sub-event rows attributed to an administrative area
//	Instance*  individual observational records
//
// Specific and Instance tables are further split into impact categories
// (Deaths, Injuries, Damage) by a substring of the table name. Each category is
// processed as its own identically-shaped dataset.
//
// # Administrative area identifiers
//
// The area column (Administrative_Area_GID, or Administrative_Areas_GID on
// instance tables) is free-form. A cell may be empty, a bare code ("CHN"),
// a GADM sub-area code ("AUS.10"), a Python list literal ("['Z03', 'CHN']"),
// or a nested list literal ("[['USA']]"). Auxiliary codes such as "Z03"
// carry digits and never count as a country.
//
// A row is kept only if exactly one 3-letter alphabetic code can be derived
// from the cell. Multi-country rows are dropped rather than guessed. See
// [Normalizer.Resolve].
//
// # Relative differences
//
// Two ratios are computed, both guarded before the division executes:
//
//	level:     (specific - instance) / instance      see [RelativeDifference]
//	reference: (mean(min,max) - emdat) / emdat       see [ReferenceDifference]
//
// A zero base with a positive numerator yields the sentinel 1; a zero/zero
// pair or a missing operand yields 0.
package domain
