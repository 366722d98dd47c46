// Package report renders a run as an xlsx workbook: a summary sheet with one
// bucket chart per category, plus the row-level tables of every category.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// SummarySheet is the name of the first sheet of every report.
const SummarySheet = "Summary"

// Sheet suffixes of the per-category tables.
const (
	SuffixAggregated     = "Aggregated"
	SuffixReconciliation = "Reconciliation"
	SuffixComparison     = "Comparison"
	SuffixAreas          = "Areas"
)

// CategorySheet returns the sheet holding one table of category c.
func CategorySheet(c domain.Category, suffix string) string {
	return string(c) + " " + suffix
}

// Writer saves every run it receives to a workbook at a fixed path,
// replacing the previous report. It implements pipeline.Sink.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer saving to path.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// Publish renders result and saves the workbook.
func (w *Writer) Publish(ctx context.Context, result domain.RunResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := Render(result)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save report %s: %w", w.path, err)
	}
	w.logger.Info("report written", "run_id", result.RunID, "path", w.path, "sheets", len(f.GetSheetList()))
	return nil
}

// Render builds the workbook for result. The caller closes it.
func Render(result domain.RunResult) (*excelize.File, error) {
	f := excelize.NewFile()
	r := &renderer{f: f}

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	r.header = header

	r.summary(result)
	for _, c := range result.Categories {
		r.category(c)
	}
	if r.err != nil {
		f.Close()
		return nil, fmt.Errorf("render report: %w", r.err)
	}
	return f, nil
}

// renderer keeps the first error so table writers can be chained.
type renderer struct {
	f      *excelize.File
	header int
	err    error
}

func (r *renderer) setRow(sheet string, row int, values []any) {
	if r.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		r.err = err
		return
	}
	r.err = r.f.SetSheetRow(sheet, cell, &values)
}

func (r *renderer) headerRow(sheet string, row int, names []any) {
	r.setRow(sheet, row, names)
	if r.err != nil {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(names), row)
	r.err = r.f.SetCellStyle(sheet, first, last, r.header)
}

// table writes header and rows into a new sheet.
func (r *renderer) table(sheet string, header []any, rows [][]any) {
	if r.err != nil {
		return
	}
	if _, err := r.f.NewSheet(sheet); err != nil {
		r.err = err
		return
	}
	r.headerRow(sheet, 1, header)
	for i, row := range rows {
		r.setRow(sheet, i+2, row)
	}
	if r.err == nil {
		last, _ := excelize.ColumnNumberToName(len(header))
		r.err = r.f.SetColWidth(sheet, "A", last, 16)
	}
}

var summaryHeader = []any{
	"Category", "Reference Field",
	"Specific Rows", "Outside Class", "Before Min Year", "Specific Dropped", "Aggregated",
	"Instance Rows", "Instance Dropped", "Not Aggregated", "Reconciled",
	"Mean Rel Diff Min", "Mean Rel Diff Max", "Mean Rel Diff Approx",
	"Compared", "Uncomparable",
}

func (r *renderer) summary(result domain.RunResult) {
	r.setRow(SummarySheet, 1, []any{"Run ID", result.RunID})
	r.setRow(SummarySheet, 2, []any{"Started", result.StartedAt.UTC().Format(time.RFC3339)})
	r.setRow(SummarySheet, 3, []any{"Finished", result.FinishedAt.UTC().Format(time.RFC3339)})

	row := 5
	r.headerRow(SummarySheet, row, summaryHeader)
	for _, c := range result.Categories {
		row++
		s := c.Summary()
		r.setRow(SummarySheet, row, []any{
			string(s.Category), s.ReferenceField,
			s.SpecificRows, s.OutsideClass, s.BeforeMinYear, s.SpecificCleaned.RowsDropped(), s.AggregatedRows,
			s.InstanceRows, s.InstanceCleaned.RowsDropped(), s.NotAggregated, s.Reconciled,
			optFloat(s.MeanRelativeDiff.Min), optFloat(s.MeanRelativeDiff.Max), optFloat(s.MeanRelativeDiff.Approx),
			s.Compared, s.Uncomparable,
		})
	}

	// Bucket counts: one column per category, charted below the tables.
	bucketHeader := row + 2
	names := []any{"Bucket"}
	for _, c := range result.Categories {
		names = append(names, string(c.Category))
	}
	r.headerRow(SummarySheet, bucketHeader, names)
	for i, b := range domain.Buckets {
		values := []any{string(b)}
		for _, c := range result.Categories {
			values = append(values, c.Comparison.Counts[b])
		}
		r.setRow(SummarySheet, bucketHeader+1+i, values)
	}
	if r.err == nil {
		r.err = r.f.SetColWidth(SummarySheet, "A", "P", 18)
	}

	firstBucket, lastBucket := bucketHeader+1, bucketHeader+len(domain.Buckets)
	chartRow := lastBucket + 2
	for i, c := range result.Categories {
		r.bucketChart(c.Category, i+2, bucketHeader, firstBucket, lastBucket, chartRow+i*16)
	}
}

func (r *renderer) bucketChart(c domain.Category, col, nameRow, first, last, at int) {
	if r.err != nil {
		return
	}
	colName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		r.err = err
		return
	}
	ref := func(column string, from, to int) string {
		return fmt.Sprintf("'%s'!$%s$%d:$%s$%d", SummarySheet, column, from, column, to)
	}
	r.err = r.f.AddChart(SummarySheet, fmt.Sprintf("A%d", at), &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("'%s'!$%s$%d", SummarySheet, colName, nameRow),
			Categories: ref("A", first, last),
			Values:     ref(colName, first, last),
		}},
		Title:  []excelize.RichTextRun{{Text: string(c) + ": difference to reference"}},
		Legend: excelize.ChartLegend{Position: "none"},
		PlotArea: excelize.ChartPlotArea{
			ShowVal: true,
		},
		Dimension: excelize.ChartDimension{Width: 640, Height: 300},
	})
}

func (r *renderer) category(c domain.CategoryResult) {
	r.table(CategorySheet(c.Category, SuffixAggregated), aggregatedHeader(), aggregatedRows(c.Aggregated))
	r.table(CategorySheet(c.Category, SuffixReconciliation), reconciliationHeader, reconciliationRows(c.Reconciliation))
	r.table(CategorySheet(c.Category, SuffixComparison), comparisonHeader(c.Comparison.Field), comparisonRows(c.Comparison.Rows))
	r.table(CategorySheet(c.Category, SuffixAreas), areasHeader, areaRows(c.Areas))
}

func aggregatedHeader() []any {
	h := []any{"Event_ID", "Administrative_Area_GID"}
	for _, f := range domain.DateFields {
		h = append(h, f.Column())
	}
	for _, f := range domain.ImpactFields {
		h = append(h, f.Column())
	}
	return h
}

func aggregatedRows(records []domain.ImpactRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		row := []any{rec.EventID, rec.AreaCode}
		for _, d := range []domain.OptInt{rec.Start.Year, rec.Start.Month, rec.Start.Day, rec.End.Year, rec.End.Month, rec.End.Day} {
			row = append(row, optInt(d))
		}
		for _, f := range domain.ImpactFields {
			row = append(row, optFloat(f.Get(rec)))
		}
		rows = append(rows, row)
	}
	return rows
}

var reconciliationHeader = []any{
	"Event_ID", "Administrative_Area_GID",
	"Specific Num_Min", "Specific Num_Max", "Specific Num_Approx",
	"Instance Num_Min", "Instance Num_Max", "Instance Num_Approx",
	"Rel Diff Num_Min", "Rel Diff Num_Max", "Rel Diff Num_Approx",
}

func reconciliationRows(records []domain.ReconciliationRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.EventID, rec.AreaCode,
			optFloat(rec.Specific.Min), optFloat(rec.Specific.Max), optFloat(rec.Specific.Approx),
			optFloat(rec.Instance.Min), optFloat(rec.Instance.Max), optFloat(rec.Instance.Approx),
			rec.RelDiff.Min, rec.RelDiff.Max, rec.RelDiff.Approx,
		})
	}
	return rows
}

func comparisonHeader(field domain.ReferenceField) []any {
	return []any{
		"Event_ID", "Administrative_Area_GID",
		"Start_Date_Year", "Start_Date_Month", "End_Date_Year", "End_Date_Month",
		"Wiki_Mean", field.Column(), "Relative Difference", "Bucket",
	}
}

func comparisonRows(records []domain.ComparisonRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.Impact.EventID, rec.Impact.AreaCode,
			optInt(rec.Impact.Start.Year), optInt(rec.Impact.Start.Month),
			optInt(rec.Impact.End.Year), optInt(rec.Impact.End.Month),
			optFloat(rec.WikiMean), optFloat(rec.ReferenceValue), rec.RelativeDiff, string(rec.Bucket),
		})
	}
	return rows
}

var areasHeader = []any{"Administrative_Area_GID", "Matched", "Mean Relative Difference"}

func areaRows(areas []domain.AreaSummary) [][]any {
	rows := make([][]any, 0, len(areas))
	for _, a := range areas {
		rows = append(rows, []any{a.AreaCode, a.Matched, a.MeanRelativeDiff})
	}
	return rows
}

func optFloat(v domain.OptFloat) any {
	if !v.Valid {
		return nil
	}
	return v.Value
}

func optInt(v domain.OptInt) any {
	if !v.Valid {
		return nil
	}
	return v.Value
}
