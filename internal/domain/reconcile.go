package domain

// RelativeDifference compares a specific-area value (fine) against the
// per-instance value (coarse) as (fine - coarse) / coarse, with the zero and
// missing cases decided before dividing:
//
//	either missing         -> 0
//	both zero              -> 0
//	fine > 0, coarse == 0  -> 1
//	fine < 0, coarse == 0  -> -1
func RelativeDifference(fine, coarse OptFloat) float64 {
	switch {
	case !fine.Valid || !coarse.Valid:
		return 0
	case fine.Value == 0 && coarse.Value == 0:
		return 0
	case coarse.Value == 0 && fine.Value > 0:
		return 1
	case coarse.Value == 0:
		return -1
	default:
		return (fine.Value - coarse.Value) / coarse.Value
	}
}

// LevelValues are the impact fields of one granularity.
type LevelValues struct {
	Min    OptFloat `json:"min"`
	Max    OptFloat `json:"max"`
	Approx OptFloat `json:"approx"`
}

func levelValues(r ImpactRecord) LevelValues {
	return LevelValues{Min: r.NumMin, Max: r.NumMax, Approx: r.NumApprox}
}

// Get returns the value of field f.
func (l LevelValues) Get(f ImpactField) OptFloat {
	switch f {
	case NumMin:
		return l.Min
	case NumMax:
		return l.Max
	case NumApprox:
		return l.Approx
	default:
		return OptFloat{}
	}
}

// FieldDiffs holds one relative difference per impact field.
type FieldDiffs struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Approx float64 `json:"approx"`
}

// Get returns the difference for field f.
func (d FieldDiffs) Get(f ImpactField) float64 {
	switch f {
	case NumMin:
		return d.Min
	case NumMax:
		return d.Max
	case NumApprox:
		return d.Approx
	default:
		return 0
	}
}

// ReconciliationRecord pairs an aggregated specific-area row with a
// per-instance row for the same event and area.
type ReconciliationRecord struct {
	EventID  string      `json:"event_id"`
	AreaCode string      `json:"area_code"`
	Specific LevelValues `json:"specific"`
	Instance LevelValues `json:"instance"`
	RelDiff  FieldDiffs  `json:"rel_diff"`
}

// Reconcile inner-joins the aggregated specific-area rows to the cleaned
// instance rows on (event, area) and computes the per-field relative
// difference. One row is produced per matching instance row, ordered by the
// aggregated rows and then by instance order.
func Reconcile(aggregated, instance []ImpactRecord) []ReconciliationRecord {
	byKey := make(map[eventAreaKey][]ImpactRecord)
	for _, r := range instance {
		key := eventAreaKey{eventID: r.EventID, area: r.AreaCode}
		byKey[key] = append(byKey[key], r)
	}

	var out []ReconciliationRecord
	for _, a := range aggregated {
		for _, in := range byKey[eventAreaKey{eventID: a.EventID, area: a.AreaCode}] {
			specific, inst := levelValues(a), levelValues(in)
			out = append(out, ReconciliationRecord{
				EventID:  a.EventID,
				AreaCode: a.AreaCode,
				Specific: specific,
				Instance: inst,
				RelDiff: FieldDiffs{
					Min:    RelativeDifference(specific.Min, inst.Min),
					Max:    RelativeDifference(specific.Max, inst.Max),
					Approx: RelativeDifference(specific.Approx, inst.Approx),
				},
			})
		}
	}
	return out
}

// MeanDiffs is the average relative difference per impact field. Fields are
// missing when there are no rows.
type MeanDiffs struct {
	Min    OptFloat `json:"min"`
	Max    OptFloat `json:"max"`
	Approx OptFloat `json:"approx"`
}

// MeanRelativeDifference averages each field's relative difference over rows.
func MeanRelativeDifference(rows []ReconciliationRecord) MeanDiffs {
	if len(rows) == 0 {
		return MeanDiffs{}
	}
	var sum FieldDiffs
	for _, r := range rows {
		sum.Min += r.RelDiff.Min
		sum.Max += r.RelDiff.Max
		sum.Approx += r.RelDiff.Approx
	}
	n := float64(len(rows))
	return MeanDiffs{
		Min:    Float(sum.Min / n),
		Max:    Float(sum.Max / n),
		Approx: Float(sum.Approx / n),
	}
}
