package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/couchcryptid/cyclone-impact-etl/internal/observability"
	"github.com/couchcryptid/cyclone-impact-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLoader struct {
	ds      domain.Dataset
	err     error
	release chan struct{}
}

func (m *mockLoader) Load(_ context.Context) (domain.Dataset, error) {
	if m.release != nil {
		<-m.release
	}
	return m.ds, m.err
}

type mockReferences struct {
	refs []domain.ReferenceRecord
	err  error
}

func (m *mockReferences) Read(_ context.Context) ([]domain.ReferenceRecord, error) {
	return m.refs, m.err
}

type mockSink struct {
	mu        sync.Mutex
	published []domain.RunResult
	err       error
}

func (m *mockSink) Publish(_ context.Context, r domain.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, r)
	return nil
}

type tableErr struct{ table string }

func (e tableErr) Error() string     { return "table " + e.table + ": " + domain.ErrMissingColumn.Error() }
func (e tableErr) Unwrap() error     { return domain.ErrMissingColumn }
func (e tableErr) TableName() string { return e.table }

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func yearPtr(y int) *int { return &y }

const cyclone = "Tropical Storm/Cyclone"

func defaultOptions() pipeline.Options {
	return pipeline.Options{EventClass: cyclone, MinStartYear: 1900}
}

func aug1990() domain.Date {
	return domain.Date{Year: domain.Int(1990), Month: domain.Int(8)}
}

func scenarioDataset() domain.Dataset {
	return domain.Dataset{
		Events: []domain.Event{
			{ID: "E1", MainEvent: cyclone, Start: domain.Date{Year: domain.Int(1990), Month: domain.Int(8), Day: domain.Int(1)}, End: domain.Date{Year: domain.Int(1990), Month: domain.Int(8), Day: domain.Int(4)}},
			{ID: "E2", MainEvent: "Flood", Start: domain.Date{Year: domain.Int(2001)}},
			{ID: "E3", MainEvent: cyclone, Start: domain.Date{Year: domain.Int(1899)}},
		},
		Specific: map[domain.Category][]domain.ImpactRecord{
			domain.Deaths: {
				{EventID: "E1", Area: domain.AreaText("CHN"), NumMin: domain.Float(5), NumMax: domain.Float(10)},
				{EventID: "E1", Area: domain.AreaCodes("Z09", "CHN"), NumMin: domain.Float(3), NumMax: domain.Float(4)},
				{EventID: "E1", Area: domain.AreaCodes("AIA", "ATG"), NumMin: domain.Float(1)},
				{EventID: "E2", Area: domain.AreaText("USA"), NumMin: domain.Float(1)},
				{EventID: "E3", Area: domain.AreaText("PHL"), NumMin: domain.Float(1)},
			},
		},
		Instance: map[domain.Category][]domain.ImpactRecord{
			domain.Deaths: {
				{EventID: "E1", Area: domain.AreaText("['CHN']"), Start: aug1990(), End: aug1990(), NumMin: domain.Float(4), NumMax: domain.Float(14)},
				{EventID: "E9", Area: domain.AreaText("CHN"), Start: aug1990(), End: aug1990(), NumMin: domain.Float(1)},
				{EventID: "E1", Area: domain.AreaText("Z03")},
			},
		},
	}
}

func scenarioReferences() []domain.ReferenceRecord {
	return []domain.ReferenceRecord{
		{ISO: "CHN", StartYear: domain.Int(1990), StartMonth: domain.Int(8), EndYear: domain.Int(1990), EndMonth: domain.Int(8), TotalDeaths: domain.Float(10)},
	}
}

// --- tests ---

func TestPipeline_Run_Scenario(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC))
	pipeline.SetClock(fakeClock)
	t.Cleanup(func() { pipeline.SetClock(nil) })

	sink := &mockSink{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockLoader{ds: scenarioDataset()}, &mockReferences{refs: scenarioReferences()},
		defaultOptions(), slog.Default(), metrics, sink)

	res, err := p.Run(context.Background(), pipeline.RunParams{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1900, res.MinStartYear)
	assert.Equal(t, fakeClock.Now(), res.StartedAt)
	assert.Equal(t, fakeClock.Now(), res.FinishedAt)
	require.Len(t, res.Categories, len(domain.Categories))

	deaths, ok := res.Category(domain.Deaths)
	require.True(t, ok)
	assert.Equal(t, 5, deaths.SpecificRows)
	assert.Equal(t, 1, deaths.OutsideClass)
	assert.Equal(t, 1, deaths.BeforeMinYear)
	assert.Equal(t, map[domain.AreaOutcome]int{domain.AreaAmbiguous: 1}, deaths.SpecificCleaned.Dropped)

	require.Len(t, deaths.Aggregated, 1)
	agg := deaths.Aggregated[0]
	assert.Equal(t, "E1", agg.EventID)
	assert.Equal(t, "CHN", agg.AreaCode)
	assert.Equal(t, domain.Float(8), agg.NumMin)
	assert.Equal(t, domain.Float(14), agg.NumMax)
	assert.Equal(t, domain.Int(1990), agg.Start.Year, "backfilled from the event")
	assert.Equal(t, domain.Int(4), agg.End.Day)

	assert.Equal(t, 1, deaths.NotAggregated, "E9 has no specific-area aggregate")
	require.Len(t, deaths.Instance, 1)

	want := []domain.ReconciliationRecord{{
		EventID:  "E1",
		AreaCode: "CHN",
		Specific: domain.LevelValues{Min: domain.Float(8), Max: domain.Float(14), Approx: domain.Float(0)},
		Instance: domain.LevelValues{Min: domain.Float(4), Max: domain.Float(14)},
		RelDiff:  domain.FieldDiffs{Min: 1, Max: 0, Approx: 0},
	}}
	if diff := cmp.Diff(want, deaths.Reconciliation); diff != "" {
		t.Errorf("reconciliation mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, domain.Float(1), deaths.MeanRelDiff.Min)

	require.Len(t, deaths.Comparison.Rows, 1)
	assert.Equal(t, domain.RefTotalDeaths, deaths.Comparison.Field)
	assert.Equal(t, domain.Float(9), deaths.Comparison.Rows[0].WikiMean)
	assert.Equal(t, domain.BucketMatch, deaths.Comparison.Rows[0].Bucket)
	assert.Equal(t, []domain.AreaSummary{{AreaCode: "CHN", Matched: 1, MeanRelativeDiff: -0.1}}, deaths.Areas)

	injuries, ok := res.Category(domain.Injuries)
	require.True(t, ok)
	assert.Empty(t, injuries.Aggregated)
	assert.Equal(t, domain.RefNoInjured, injuries.Comparison.Field)
	damage, _ := res.Category(domain.Damage)
	assert.Equal(t, domain.RefTotalDamageAdjusted, damage.Comparison.Field)

	require.Len(t, sink.published, 1)
	assert.Equal(t, res.RunID, sink.published[0].RunID)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, res.RunID, latest.RunID)
	assert.NoError(t, p.LastError())
	assert.NoError(t, p.CheckReadiness(context.Background()))

	assert.Equal(t, 1.0, counterValue(t, metrics.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 5.0, counterValue(t, metrics.RowsLoaded.WithLabelValues("Specific", "Deaths")))
	assert.Equal(t, 1.0, counterValue(t, metrics.RowsDropped.WithLabelValues("year_filter", "Deaths", "before_min_year")))
	assert.Equal(t, 1.0, counterValue(t, metrics.RowsDropped.WithLabelValues("clean_instance", "Deaths", "no_valid_code")))
	assert.Equal(t, 1.0, counterValue(t, metrics.Comparisons.WithLabelValues("Deaths", "Perfect Match")))
	assert.Equal(t, float64(fakeClock.Now().Unix()), gaugeValue(t, metrics.LastSuccess))
	assert.Equal(t, 0.0, gaugeValue(t, metrics.PipelineRunning))
}

func TestPipeline_Run_NotReadyBeforeFirstRun(t *testing.T) {
	p := pipeline.New(&mockLoader{}, &mockReferences{}, defaultOptions(), slog.Default(), observability.NewMetricsForTesting())
	assert.Error(t, p.CheckReadiness(context.Background()))
	_, ok := p.Latest()
	assert.False(t, ok)
}

func TestPipeline_Run_LoadError(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	sink := &mockSink{}
	loader := &mockLoader{err: tableErr{table: "Specific_Deaths"}}
	p := pipeline.New(loader, &mockReferences{}, defaultOptions(), slog.Default(), metrics, sink)

	_, err := p.Run(context.Background(), pipeline.RunParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)

	var se *pipeline.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, pipeline.StageLoad, se.Stage)
	assert.Equal(t, "Specific_Deaths", se.Table)

	assert.Empty(t, sink.published, "no partial result reaches a sink")
	_, ok := p.Latest()
	assert.False(t, ok)
	assert.Equal(t, err, p.LastError())
	assert.Equal(t, 1.0, counterValue(t, metrics.RunsTotal.WithLabelValues("error")))
}

func TestPipeline_Run_ReferenceError(t *testing.T) {
	p := pipeline.New(&mockLoader{ds: scenarioDataset()}, &mockReferences{err: errors.New("workbook locked")},
		defaultOptions(), slog.Default(), observability.NewMetricsForTesting())

	_, err := p.Run(context.Background(), pipeline.RunParams{})
	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StageReference, se.Stage)
	assert.Contains(t, err.Error(), "workbook locked")
}

func TestPipeline_Run_PublishError(t *testing.T) {
	sink := &mockSink{err: errors.New("broker down")}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(&mockLoader{ds: scenarioDataset()}, &mockReferences{refs: scenarioReferences()},
		defaultOptions(), slog.Default(), metrics, sink)

	_, err := p.Run(context.Background(), pipeline.RunParams{})
	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StagePublish, se.Stage)

	_, ok := p.Latest()
	assert.False(t, ok)
	assert.Equal(t, 0.0, counterValue(t, metrics.Comparisons.WithLabelValues("Deaths", "Perfect Match")),
		"failed runs record no comparisons")
}

func TestPipeline_Run_MinStartYearOverride(t *testing.T) {
	p := pipeline.New(&mockLoader{ds: scenarioDataset()}, &mockReferences{refs: scenarioReferences()},
		defaultOptions(), slog.Default(), observability.NewMetricsForTesting())

	tests := []struct {
		name           string
		params         pipeline.RunParams
		wantYear       int
		wantBefore     int
		wantAggregated int
	}{
		{"earlier year keeps 1899 event", pipeline.RunParams{MinStartYear: yearPtr(1800)}, 1800, 0, 2},
		{"later year drops 1990 event", pipeline.RunParams{MinStartYear: yearPtr(1995)}, 1995, 4, 0},
		{"configured default", pipeline.RunParams{}, 1900, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Run(context.Background(), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, res.MinStartYear)
			assert.Equal(t, tt.wantYear, res.Summary().MinStartYear)

			deaths, ok := res.Category(domain.Deaths)
			require.True(t, ok)
			assert.Equal(t, tt.wantBefore, deaths.BeforeMinYear)
			assert.Len(t, deaths.Aggregated, tt.wantAggregated)
		})
	}
}

func TestPipeline_Run_RejectsConcurrentRun(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	loader := &mockLoader{ds: scenarioDataset(), release: make(chan struct{})}
	p := pipeline.New(loader, &mockReferences{refs: scenarioReferences()}, defaultOptions(), slog.Default(), metrics)

	require.NoError(t, p.Start(context.Background(), pipeline.RunParams{}))
	assert.True(t, p.Running())

	_, err := p.Run(context.Background(), pipeline.RunParams{})
	assert.ErrorIs(t, err, pipeline.ErrRunInProgress)
	assert.ErrorIs(t, p.Start(context.Background(), pipeline.RunParams{}), pipeline.ErrRunInProgress)
	assert.Equal(t, 2.0, counterValue(t, metrics.RunsTotal.WithLabelValues("rejected")))

	close(loader.release)
	p.Wait()

	assert.False(t, p.Running())
	_, ok := p.Latest()
	assert.True(t, ok)

	_, err = p.Run(context.Background(), pipeline.RunParams{})
	assert.NoError(t, err, "guard is released once the run finishes")
}

func TestPipeline_Start_OutlivesCallerContext(t *testing.T) {
	loader := &mockLoader{ds: scenarioDataset(), release: make(chan struct{})}
	p := pipeline.New(loader, &mockReferences{refs: scenarioReferences()}, defaultOptions(), slog.Default(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx, pipeline.RunParams{}))
	cancel()
	close(loader.release)
	p.Wait()

	assert.NoError(t, p.LastError())
}

func TestPipeline_Run_AuxiliaryPrefixOption(t *testing.T) {
	ds := domain.Dataset{
		Events: []domain.Event{{ID: "E1", MainEvent: cyclone, Start: domain.Date{Year: domain.Int(2000)}}},
		Specific: map[domain.Category][]domain.ImpactRecord{
			domain.Injuries: {{EventID: "E1", Area: domain.AreaCodes("ZZZ", "CUB"), NumMin: domain.Float(2)}},
		},
	}

	strict := defaultOptions()
	strict.Normalizer = domain.Normalizer{RejectAuxiliaryPrefix: true}

	for name, tc := range map[string]struct {
		opts pipeline.Options
		want int
	}{
		"default": {defaultOptions(), 0},
		"strict":  {strict, 1},
	} {
		t.Run(name, func(t *testing.T) {
			p := pipeline.New(&mockLoader{ds: ds}, &mockReferences{}, tc.opts, slog.Default(), observability.NewMetricsForTesting())
			res, err := p.Run(context.Background(), pipeline.RunParams{})
			require.NoError(t, err)
			injuries, _ := res.Category(domain.Injuries)
			assert.Len(t, injuries.Aggregated, tc.want)
		})
	}
}
