package report_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/report"
	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func aug1990() domain.Date {
	return domain.Date{Year: domain.Int(1990), Month: domain.Int(8)}
}

func testResult() domain.RunResult {
	started := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	chn := domain.ImpactRecord{
		EventID: "E1", AreaCode: "CHN", Area: domain.AreaText("CHN"),
		Start: aug1990(), End: aug1990(),
		NumMin: domain.Float(8), NumMax: domain.Float(14), NumApprox: domain.Float(0),
	}
	inst := chn
	inst.NumMin, inst.NumApprox = domain.Float(4), domain.OptFloat{}

	deaths := domain.CategoryResult{
		Category:        domain.Deaths,
		SpecificRows:    3,
		SpecificCleaned: domain.CleaningReport{RowsIn: 3, RowsOut: 2, Dropped: map[domain.AreaOutcome]int{domain.AreaAmbiguous: 1}},
		Aggregated:      []domain.ImpactRecord{chn},
		Instance:        []domain.ImpactRecord{inst},
		Reconciliation:  domain.Reconcile([]domain.ImpactRecord{chn}, []domain.ImpactRecord{inst}),
		Comparison: domain.CompareToReference([]domain.ImpactRecord{inst}, []domain.ReferenceRecord{{
			ISO: "CHN", StartYear: domain.Int(1990), StartMonth: domain.Int(8), EndYear: domain.Int(1990), EndMonth: domain.Int(8),
			TotalDeaths: domain.Float(10),
		}}, domain.RefTotalDeaths),
	}
	deaths.MeanRelDiff = domain.MeanRelativeDifference(deaths.Reconciliation)
	deaths.Areas = domain.SummarizeByArea(deaths.Comparison.Rows)

	injuries := domain.CategoryResult{
		Category:   domain.Injuries,
		Comparison: domain.CompareToReference(nil, nil, domain.RefNoInjured),
	}

	return domain.RunResult{
		RunID:      "run-42",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Categories: []domain.CategoryResult{deaths, injuries},
	}
}

func TestWriter_Publish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	w := report.NewWriter(path, slog.Default())

	require.NoError(t, w.Publish(context.Background(), testResult()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		"Summary",
		"Deaths Aggregated", "Deaths Reconciliation", "Deaths Comparison", "Deaths Areas",
		"Injuries Aggregated", "Injuries Reconciliation", "Injuries Comparison", "Injuries Areas",
	}, f.GetSheetList())

	cell := func(sheet, ref string) string {
		t.Helper()
		v, err := f.GetCellValue(sheet, ref)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "run-42", cell("Summary", "B1"))
	assert.Equal(t, "2026-03-02T09:30:00Z", cell("Summary", "B2"))
	assert.Equal(t, "Category", cell("Summary", "A5"))
	assert.Equal(t, "Deaths", cell("Summary", "A6"))
	assert.Equal(t, "Total Deaths", cell("Summary", "B6"))
	assert.Equal(t, "1", cell("Summary", "F6"), "specific rows dropped by cleaning")
	assert.Equal(t, "1", cell("Summary", "L6"), "mean relative difference of Num_Min")
	assert.Equal(t, "Injuries", cell("Summary", "A7"))
	assert.Equal(t, "", cell("Summary", "L7"), "no reconciliation rows")

	// Bucket table follows the category table after a blank row.
	assert.Equal(t, "Bucket", cell("Summary", "A9"))
	assert.Equal(t, "Deaths", cell("Summary", "B9"))
	assert.Equal(t, string(domain.BucketMatch), cell("Summary", "A12"))
	assert.Equal(t, "1", cell("Summary", "B12"))
	assert.Equal(t, "0", cell("Summary", "C12"))

	agg, err := f.GetRows(report.CategorySheet(domain.Deaths, report.SuffixAggregated))
	require.NoError(t, err)
	require.Len(t, agg, 2)
	assert.Equal(t, "Event_ID", agg[0][0])
	assert.Equal(t, []string{"E1", "CHN", "1990", "8", "", "1990", "8", "", "8", "14", "0"}, agg[1])

	rec, err := f.GetRows(report.CategorySheet(domain.Deaths, report.SuffixReconciliation))
	require.NoError(t, err)
	require.Len(t, rec, 2)
	assert.Equal(t, "4", rec[1][5])
	assert.Equal(t, "1", rec[1][8])

	cmpSheet := report.CategorySheet(domain.Deaths, report.SuffixComparison)
	assert.Equal(t, "Total Deaths", cell(cmpSheet, "H1"))
	assert.Equal(t, "9", cell(cmpSheet, "G2"))
	assert.Equal(t, string(domain.BucketMatch), cell(cmpSheet, "J2"))

	areas := report.CategorySheet(domain.Deaths, report.SuffixAreas)
	assert.Equal(t, "CHN", cell(areas, "A2"))
	assert.Equal(t, "1", cell(areas, "B2"))

	empty, err := f.GetRows(report.CategorySheet(domain.Injuries, report.SuffixAggregated))
	require.NoError(t, err)
	assert.Len(t, empty, 1, "header only")
}

func TestWriter_Publish_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	w := report.NewWriter(path, slog.Default())

	first := testResult()
	require.NoError(t, w.Publish(context.Background(), first))
	second := testResult()
	second.RunID = "run-43"
	require.NoError(t, w.Publish(context.Background(), second))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "run-43", v)
}

func TestWriter_Publish_CanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	w := report.NewWriter(path, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Publish(ctx, testResult()), context.Canceled)
	assert.NoFileExists(t, path)
}

func TestWriter_Publish_BadPath(t *testing.T) {
	w := report.NewWriter(filepath.Join(t.TempDir(), "missing", "report.xlsx"), slog.Default())
	assert.Error(t, w.Publish(context.Background(), testResult()))
}
