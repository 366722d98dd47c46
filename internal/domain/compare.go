package domain

import (
	"math"
	"sort"
)

// ReferenceRecord is one EM-DAT row.
type ReferenceRecord struct {
	ISO        string
	StartYear  OptInt
	StartMonth OptInt
	EndYear    OptInt
	EndMonth   OptInt

	TotalDeaths         OptFloat
	NoInjured           OptFloat
	TotalDamage         OptFloat
	TotalDamageAdjusted OptFloat
}

// ReferenceField selects the EM-DAT column a category is compared against.
type ReferenceField int

const (
	RefTotalDeaths ReferenceField = iota
	RefNoInjured
	RefTotalDamage
	RefTotalDamageAdjusted
)

// Column returns the EM-DAT header of the field.
func (f ReferenceField) Column() string {
	switch f {
	case RefTotalDeaths:
		return "Total Deaths"
	case RefNoInjured:
		return "No. Injured"
	case RefTotalDamage:
		return "Total Damage ('000 US$)"
	case RefTotalDamageAdjusted:
		return "Total Damage, Adjusted ('000 US$)"
	default:
		return ""
	}
}

// Get returns the field's value on r.
func (f ReferenceField) Get(r ReferenceRecord) OptFloat {
	switch f {
	case RefTotalDeaths:
		return r.TotalDeaths
	case RefNoInjured:
		return r.NoInjured
	case RefTotalDamage:
		return r.TotalDamage
	case RefTotalDamageAdjusted:
		return r.TotalDamageAdjusted
	default:
		return OptFloat{}
	}
}

// ReferenceFieldFor returns the EM-DAT column used as the baseline for c.
// Damage compares against the inflation-adjusted total.
func ReferenceFieldFor(c Category) ReferenceField {
	switch c {
	case Injuries:
		return RefNoInjured
	case Damage:
		return RefTotalDamageAdjusted
	default:
		return RefTotalDeaths
	}
}

// Bucket is a relative-difference category.
type Bucket string

const (
	BucketMuchLess Bucket = "-50% less"
	BucketLess     Bucket = "-30% less"
	BucketMatch    Bucket = "Perfect Match"
	BucketMore     Bucket = "+30% more"
	BucketMuchMore Bucket = "+50% more"
)

// Buckets lists the categories from most under- to most over-estimated.
var Buckets = []Bucket{BucketMuchLess, BucketLess, BucketMatch, BucketMore, BucketMuchMore}

// BucketFor places a relative difference into its category:
//
//	(-inf, -0.5)  -50% less
//	[-0.5, -0.3)  -30% less
//	[-0.3,  0.3]  Perfect Match
//	( 0.3,  0.5]  +30% more
//	( 0.5,  inf)  +50% more
func BucketFor(d float64) Bucket {
	switch {
	case d < -0.5:
		return BucketMuchLess
	case d < -0.3:
		return BucketLess
	case d <= 0.3:
		return BucketMatch
	case d <= 0.5:
		return BucketMore
	default:
		return BucketMuchMore
	}
}

// BucketCounts counts comparison rows per bucket.
type BucketCounts map[Bucket]int

// Total returns the number of counted rows.
func (c BucketCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// MeanOfRange averages the minimum and maximum estimates, ignoring a missing
// one. The result is missing only when both are.
func MeanOfRange(minV, maxV OptFloat) OptFloat {
	switch {
	case minV.Valid && maxV.Valid:
		return Float((minV.Value + maxV.Value) / 2)
	case minV.Valid:
		return minV
	case maxV.Valid:
		return maxV
	default:
		return OptFloat{}
	}
}

// ReferenceDifference compares an estimate against its reference value as
// (estimate - reference) / reference:
//
//	both zero                        -> 0
//	reference zero, estimate > 0     -> 1
//	either missing                   -> 0
//
// ok is false when no finite difference exists (a zero reference with a
// negative estimate); such rows are dropped by the caller.
func ReferenceDifference(estimate, reference OptFloat) (d float64, ok bool) {
	switch {
	case estimate.Valid && reference.Valid && estimate.Value == 0 && reference.Value == 0:
		return 0, true
	case estimate.Valid && reference.Valid && reference.Value == 0 && estimate.Value > 0:
		return 1, true
	case !estimate.Valid || !reference.Valid:
		return 0, true
	case reference.Value == 0:
		return 0, false
	}
	d = (estimate.Value - reference.Value) / reference.Value
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}

// ComparisonRecord is an impact row matched to a reference row.
type ComparisonRecord struct {
	Impact         ImpactRecord
	Reference      ReferenceRecord
	WikiMean       OptFloat
	ReferenceValue OptFloat
	RelativeDiff   float64
	Bucket         Bucket
}

// Comparison is the result of comparing one category against the reference.
type Comparison struct {
	Field   ReferenceField
	Rows    []ComparisonRecord
	Counts  BucketCounts
	Dropped int
}

type referenceKey struct {
	iso       string
	startYear int
	startMon  int
	endYear   int
	endMon    int
}

func referenceKeyOf(iso string, sy, sm, ey, em OptInt) (referenceKey, bool) {
	if iso == "" || !sy.Valid || !sm.Valid || !ey.Valid || !em.Valid {
		return referenceKey{}, false
	}
	return referenceKey{iso: iso, startYear: sy.Value, startMon: sm.Value, endYear: ey.Value, endMon: em.Value}, true
}

// CompareToReference inner-joins cleaned impact records to reference records
// on area code and start/end year and month, then buckets the difference
// between each row's mean estimate and the reference field. Rows lacking any
// join key part never match. Output follows impact order, then reference order.
func CompareToReference(records []ImpactRecord, refs []ReferenceRecord, field ReferenceField) Comparison {
	index := make(map[referenceKey][]ReferenceRecord)
	for _, ref := range refs {
		key, ok := referenceKeyOf(ref.ISO, ref.StartYear, ref.StartMonth, ref.EndYear, ref.EndMonth)
		if !ok {
			continue
		}
		index[key] = append(index[key], ref)
	}

	cmp := Comparison{Field: field, Counts: BucketCounts{}}
	for _, b := range Buckets {
		cmp.Counts[b] = 0
	}

	for _, r := range records {
		key, ok := referenceKeyOf(r.AreaCode, r.Start.Year, r.Start.Month, r.End.Year, r.End.Month)
		if !ok {
			continue
		}
		for _, ref := range index[key] {
			mean := MeanOfRange(r.NumMin, r.NumMax)
			refVal := field.Get(ref)
			d, ok := ReferenceDifference(mean, refVal)
			if !ok {
				cmp.Dropped++
				continue
			}
			b := BucketFor(d)
			cmp.Counts[b]++
			cmp.Rows = append(cmp.Rows, ComparisonRecord{
				Impact:         r,
				Reference:      ref,
				WikiMean:       mean,
				ReferenceValue: refVal,
				RelativeDiff:   d,
				Bucket:         b,
			})
		}
	}
	return cmp
}

// AreaSummary aggregates comparison rows for one area code.
type AreaSummary struct {
	AreaCode         string  `json:"area_code"`
	Matched          int     `json:"matched"`
	MeanRelativeDiff float64 `json:"mean_relative_diff"`
}

// SummarizeByArea groups comparison rows by area code, sorted by code.
func SummarizeByArea(rows []ComparisonRecord) []AreaSummary {
	idx := make(map[string]int)
	var out []AreaSummary
	for _, r := range rows {
		i, ok := idx[r.Impact.AreaCode]
		if !ok {
			i = len(out)
			idx[r.Impact.AreaCode] = i
			out = append(out, AreaSummary{AreaCode: r.Impact.AreaCode})
		}
		out[i].Matched++
		out[i].MeanRelativeDiff += r.RelativeDiff
	}
	for i := range out {
		out[i].MeanRelativeDiff /= float64(out[i].Matched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaCode < out[j].AreaCode })
	return out
}
