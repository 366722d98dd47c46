package domain

import "time"

// CategoryResult holds every table a run produced for one impact category.
type CategoryResult struct {
	Category Category

	// Row accounting before cleaning.
	SpecificRows    int
	OutsideClass    int
	BeforeMinYear   int
	InstanceRows    int
	NotAggregated   int
	SpecificCleaned CleaningReport
	InstanceCleaned CleaningReport

	Aggregated     []ImpactRecord
	Instance       []ImpactRecord
	Reconciliation []ReconciliationRecord
	MeanRelDiff    MeanDiffs
	Comparison     Comparison
	Areas          []AreaSummary
}

// RunResult is the complete output of one reconciliation run.
type RunResult struct {
	RunID        string
	MinStartYear int
	StartedAt    time.Time
	FinishedAt   time.Time
	Categories   []CategoryResult
}

// Category returns the result for c.
func (r RunResult) Category(c Category) (CategoryResult, bool) {
	for _, cr := range r.Categories {
		if cr.Category == c {
			return cr, true
		}
	}
	return CategoryResult{}, false
}

// CategorySummary is the serializable digest of a CategoryResult.
type CategorySummary struct {
	Category         Category       `json:"category"`
	SpecificRows     int            `json:"specific_rows"`
	OutsideClass     int            `json:"outside_class"`
	BeforeMinYear    int            `json:"before_min_year"`
	SpecificCleaned  CleaningReport `json:"specific_cleaning"`
	AggregatedRows   int            `json:"aggregated_rows"`
	InstanceRows     int            `json:"instance_rows"`
	InstanceCleaned  CleaningReport `json:"instance_cleaning"`
	NotAggregated    int            `json:"instance_not_aggregated"`
	Reconciled       int            `json:"reconciled_rows"`
	MeanRelativeDiff MeanDiffs      `json:"mean_relative_diff"`
	ReferenceField   string         `json:"reference_field"`
	Compared         int            `json:"compared_rows"`
	Uncomparable     int            `json:"uncomparable_rows"`
	Buckets          BucketCounts   `json:"buckets"`
	Areas            []AreaSummary  `json:"areas"`
}

// RunSummary is the serializable digest of a RunResult.
type RunSummary struct {
	RunID        string            `json:"run_id"`
	MinStartYear int               `json:"min_start_year"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Categories   []CategorySummary `json:"categories"`
}

// Summary digests the category result.
func (c CategoryResult) Summary() CategorySummary {
	return CategorySummary{
		Category:         c.Category,
		SpecificRows:     c.SpecificRows,
		OutsideClass:     c.OutsideClass,
		BeforeMinYear:    c.BeforeMinYear,
		SpecificCleaned:  c.SpecificCleaned,
		AggregatedRows:   len(c.Aggregated),
		InstanceRows:     c.InstanceRows,
		InstanceCleaned:  c.InstanceCleaned,
		NotAggregated:    c.NotAggregated,
		Reconciled:       len(c.Reconciliation),
		MeanRelativeDiff: c.MeanRelDiff,
		ReferenceField:   c.Comparison.Field.Column(),
		Compared:         len(c.Comparison.Rows),
		Uncomparable:     c.Comparison.Dropped,
		Buckets:          c.Comparison.Counts,
		Areas:            c.Areas,
	}
}

// Summary digests the run.
func (r RunResult) Summary() RunSummary {
	s := RunSummary{
		RunID:        r.RunID,
		MinStartYear: r.MinStartYear,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Categories:   make([]CategorySummary, 0, len(r.Categories)),
	}
	for _, c := range r.Categories {
		s.Categories = append(s.Categories, c.Summary())
	}
	return s
}
