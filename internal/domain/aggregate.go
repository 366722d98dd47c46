package domain

import (
	"fmt"
	"sort"
)

// CleaningReport describes what a cleaning pass kept and dropped.
type CleaningReport struct {
	RowsIn  int                 `json:"rows_in"`
	RowsOut int                 `json:"rows_out"`
	Dropped map[AreaOutcome]int `json:"dropped,omitempty"`
}

// RowsDropped returns the total number of discarded rows.
func (r CleaningReport) RowsDropped() int {
	return r.RowsIn - r.RowsOut
}

// Clean resolves every record's area cell and drops the records that do not
// resolve to exactly one code. Kept records carry the code in both Area and
// AreaCode. The input slice is not modified.
func (n Normalizer) Clean(records []ImpactRecord) ([]ImpactRecord, CleaningReport) {
	report := CleaningReport{RowsIn: len(records), Dropped: map[AreaOutcome]int{}}
	out := make([]ImpactRecord, 0, len(records))

	for _, r := range records {
		code, outcome := n.Resolve(r.Area)
		if outcome != AreaResolved {
			report.Dropped[outcome]++
			continue
		}
		r.Area = AreaText(code)
		r.AreaCode = code
		out = append(out, r)
	}

	report.RowsOut = len(out)
	return out, report
}

// Clean applies the default Normalizer.
func Clean(records []ImpactRecord) ([]ImpactRecord, CleaningReport) {
	return Normalizer{}.Clean(records)
}

type eventAreaKey struct {
	eventID string
	area    string
}

// AggregateByEventArea collapses records to one row per (event, area) pair.
// Num_Min, Num_Max and Num_Approx are summed with missing values counting as
// zero, so aggregated impact fields are always present. Every other field,
// dates included, is taken from the first record of the group in input order.
// Rows are returned sorted by event ID, then area code.
//
// Records must already be cleaned; a record without an area code is an error.
func AggregateByEventArea(records []ImpactRecord) ([]ImpactRecord, error) {
	groups := make(map[eventAreaKey]int)
	var out []ImpactRecord

	for i, r := range records {
		if r.AreaCode == "" {
			return nil, fmt.Errorf("aggregate record %d of event %q: %w: Administrative_Area_GID", i, r.EventID, ErrMissingColumn)
		}
		key := eventAreaKey{eventID: r.EventID, area: r.AreaCode}
		at, seen := groups[key]
		if !seen {
			first := r
			for _, f := range ImpactFields {
				f.set(&first, Float(valueOrZero(f.Get(r))))
			}
			groups[key] = len(out)
			out = append(out, first)
			continue
		}
		for _, f := range ImpactFields {
			sum := f.Get(out[at]).Value + valueOrZero(f.Get(r))
			f.set(&out[at], Float(sum))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].AreaCode < out[j].AreaCode
	})
	return out, nil
}

func valueOrZero(v OptFloat) float64 {
	if !v.Valid {
		return 0
	}
	return v.Value
}
