// Package emdat reads the EM-DAT reference workbook.
package emdat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Column headers of the reference sheet.
const (
	ColISO        = "ISO"
	ColStartYear  = "Start Year"
	ColStartMonth = "Start Month"
	ColEndYear    = "End Year"
	ColEndMonth   = "End Month"
)

// Columns lists every header the reader requires, in sheet order.
var Columns = []string{
	ColISO, ColStartYear, ColStartMonth, ColEndYear, ColEndMonth,
	domain.RefTotalDeaths.Column(),
	domain.RefNoInjured.Column(),
	domain.RefTotalDamage.Column(),
	domain.RefTotalDamageAdjusted.Column(),
}

// Reader loads reference records from one sheet of a workbook on disk.
type Reader struct {
	path   string
	sheet  string
	logger *slog.Logger
}

// NewReader creates a Reader for the given workbook path and sheet name.
func NewReader(path, sheet string, logger *slog.Logger) *Reader {
	return &Reader{path: path, sheet: sheet, logger: logger}
}

// Read opens the workbook and parses the reference sheet.
func (r *Reader) Read(ctx context.Context) ([]domain.ReferenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("open reference workbook: %w", err)
	}
	defer f.Close()

	records, err := Parse(f, r.sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	r.logger.Info("reference workbook loaded", "path", r.path, "sheet", r.sheet, "rows", len(records))
	return records, nil
}

// Parse reads the reference rows of sheet. Rows without an ISO code are
// skipped; numeric cells that are empty or not numbers are missing.
func Parse(f *excelize.File, sheet string) ([]domain.ReferenceRecord, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q: %w: %s", sheet, domain.ErrMissingColumn, ColISO)
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, dup := header[h]; !dup {
			header[h] = i
		}
	}
	for _, c := range Columns {
		if _, ok := header[c]; !ok {
			return nil, fmt.Errorf("sheet %q: %w: %s", sheet, domain.ErrMissingColumn, c)
		}
	}

	get := func(row []string, col string) string {
		i := header[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]domain.ReferenceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		iso := get(row, ColISO)
		if iso == "" {
			continue
		}
		records = append(records, domain.ReferenceRecord{
			ISO:                 iso,
			StartYear:           parseInt(get(row, ColStartYear)),
			StartMonth:          parseInt(get(row, ColStartMonth)),
			EndYear:             parseInt(get(row, ColEndYear)),
			EndMonth:            parseInt(get(row, ColEndMonth)),
			TotalDeaths:         parseFloat(get(row, domain.RefTotalDeaths.Column())),
			NoInjured:           parseFloat(get(row, domain.RefNoInjured.Column())),
			TotalDamage:         parseFloat(get(row, domain.RefTotalDamage.Column())),
			TotalDamageAdjusted: parseFloat(get(row, domain.RefTotalDamageAdjusted.Column())),
		})
	}
	return records, nil
}

func parseFloat(s string) domain.OptFloat {
	if s == "" {
		return domain.OptFloat{}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return domain.OptFloat{}
	}
	return domain.Float(f)
}

func parseInt(s string) domain.OptInt {
	f := parseFloat(s)
	if !f.Valid || f.Value != math.Trunc(f.Value) {
		return domain.OptInt{}
	}
	return domain.Int(int(f.Value))
}
