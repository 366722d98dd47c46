package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/couchcryptid/cyclone-impact-etl/internal/observability"
)

// Options tune the per-category stages. MinStartYear is the default for runs
// that do not override it.
type Options struct {
	EventClass   string
	MinStartYear int
	Normalizer   domain.Normalizer
}

// CategoryInput is everything one category's stages consume.
type CategoryInput struct {
	Category   domain.Category
	Specific   []domain.ImpactRecord
	Instance   []domain.ImpactRecord
	Events     map[string]struct{}
	Dates      map[string]domain.EventDates
	References []domain.ReferenceRecord

	// Specific-area rows must start after this year.
	MinStartYear int
}

// CategoryTransformer runs the filtering, cleaning, aggregation,
// reconciliation and reference comparison stages for one category.
type CategoryTransformer struct {
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTransformer creates a CategoryTransformer.
func NewTransformer(opts Options, logger *slog.Logger, metrics *observability.Metrics) *CategoryTransformer {
	return &CategoryTransformer{opts: opts, logger: logger, metrics: metrics}
}

// Transform computes the category's result. Inputs are never modified.
//
// Specific-area rows are restricted to events of the configured class, dated
// from their event where missing, limited to start years after in.MinStartYear,
// cleaned and aggregated per (event, area). Instance rows are cleaned and
// restricted to events present in that aggregate; they feed both the
// cross-level reconciliation and the reference comparison.
func (t *CategoryTransformer) Transform(in CategoryInput) (domain.CategoryResult, error) {
	cat := string(in.Category)
	res := domain.CategoryResult{
		Category:     in.Category,
		SpecificRows: len(in.Specific),
		InstanceRows: len(in.Instance),
	}

	specific := domain.FilterByEvents(in.Specific, in.Events)
	res.OutsideClass = len(in.Specific) - len(specific)
	t.dropped("event_filter", cat, "outside_class", res.OutsideClass)

	specific = domain.BackfillDates(specific, in.Dates, domain.DateFields)

	recent := domain.FilterStartYearAfter(specific, in.MinStartYear)
	res.BeforeMinYear = len(specific) - len(recent)
	t.dropped("year_filter", cat, "before_min_year", res.BeforeMinYear)

	cleaned, report := t.opts.Normalizer.Clean(recent)
	res.SpecificCleaned = report
	t.droppedByOutcome("clean_specific", cat, report)

	aggregated, err := domain.AggregateByEventArea(cleaned)
	if err != nil {
		return domain.CategoryResult{}, stageError(StageAggregate, in.Category, err)
	}
	res.Aggregated = aggregated

	instance, instReport := t.opts.Normalizer.Clean(in.Instance)
	res.InstanceCleaned = instReport
	t.droppedByOutcome("clean_instance", cat, instReport)

	restricted := domain.FilterByEvents(instance, domain.RecordEventIDSet(aggregated))
	res.NotAggregated = len(instance) - len(restricted)
	t.dropped("instance_restrict", cat, "event_not_aggregated", res.NotAggregated)
	res.Instance = restricted

	res.Reconciliation = domain.Reconcile(aggregated, restricted)
	res.MeanRelDiff = domain.MeanRelativeDifference(res.Reconciliation)

	res.Comparison = domain.CompareToReference(restricted, in.References, domain.ReferenceFieldFor(in.Category))
	t.dropped("compare", cat, "no_finite_difference", res.Comparison.Dropped)
	res.Areas = domain.SummarizeByArea(res.Comparison.Rows)

	t.logger.Info("category processed",
		"category", cat,
		"specific_rows", res.SpecificRows,
		"outside_class", res.OutsideClass,
		"before_min_year", res.BeforeMinYear,
		"specific_cleaned_in", report.RowsIn,
		"specific_cleaned_out", report.RowsOut,
		"aggregated_rows", len(aggregated),
		"instance_rows", res.InstanceRows,
		"instance_cleaned_out", instReport.RowsOut,
		"instance_not_aggregated", res.NotAggregated,
		"reconciled_rows", len(res.Reconciliation),
		"compared_rows", len(res.Comparison.Rows),
		"uncomparable_rows", res.Comparison.Dropped,
	)

	return res, nil
}

func (t *CategoryTransformer) dropped(stage, cat, reason string, n int) {
	if n > 0 {
		t.metrics.RowsDropped.WithLabelValues(stage, cat, reason).Add(float64(n))
	}
}

func (t *CategoryTransformer) droppedByOutcome(stage, cat string, r domain.CleaningReport) {
	for outcome, n := range r.Dropped {
		t.dropped(stage, cat, string(outcome), n)
	}
}
