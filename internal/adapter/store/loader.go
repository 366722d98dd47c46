package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
)

// Column names of the impact database.
const (
	ColEventID     = "Event_ID"
	ColMainEvent   = "Main_Event"
	ColAreaGID     = "Administrative_Area_GID"
	ColAreasGID    = "Administrative_Areas_GID"
	AttrSourceName = "source_table"
)

// TableSource lists and reads raw tables.
type TableSource interface {
	ListTables(ctx context.Context) ([]string, error)
	ReadTable(ctx context.Context, name string) (Table, error)
}

// Loader turns the raw tables of a TableSource into a domain.Dataset.
type Loader struct {
	source TableSource
	logger *slog.Logger
}

// NewLoader creates a Loader reading from source.
func NewLoader(source TableSource, logger *slog.Logger) *Loader {
	return &Loader{source: source, logger: logger}
}

// Load reads every classified table. Rows of tables with the same granularity
// and category are concatenated in table-name order, each tagged with a
// source_table attribute. The plural area column is renamed to the singular
// one here, losing one level of nesting, so no later stage sees it.
func (l *Loader) Load(ctx context.Context) (domain.Dataset, error) {
	names, err := l.source.ListTables(ctx)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("list tables: %w", err)
	}

	ds := domain.Dataset{
		Specific: make(map[domain.Category][]domain.ImpactRecord),
		Instance: make(map[domain.Category][]domain.ImpactRecord),
	}

	for _, name := range names {
		g, cat, ok := ClassifyTable(name)
		if !ok {
			l.logger.Debug("skipping unclassified table", "table", name)
			continue
		}

		t, err := l.source.ReadTable(ctx, name)
		if err != nil {
			return domain.Dataset{}, err
		}

		if g == domain.Totals {
			events, err := eventsFromTable(t)
			if err != nil {
				return domain.Dataset{}, &TableError{Table: name, Err: err}
			}
			ds.Events = append(ds.Events, events...)
		} else {
			recs, err := impactsFromTable(t)
			if err != nil {
				return domain.Dataset{}, &TableError{Table: name, Err: err}
			}
			if g == domain.SpecificArea {
				ds.Specific[cat] = append(ds.Specific[cat], recs...)
			} else {
				ds.Instance[cat] = append(ds.Instance[cat], recs...)
			}
		}

		l.logger.Debug("table loaded", "table", name, "granularity", g, "category", cat, "rows", len(t.Rows))
	}

	return ds, nil
}

type columnIndex map[string]int

func indexColumns(cols []string) columnIndex {
	idx := make(columnIndex, len(cols))
	for i, c := range cols {
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	return idx
}

func (idx columnIndex) require(names ...string) error {
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrMissingColumn, n)
		}
	}
	return nil
}

// cell returns the named cell of row, or nil when the table has no such column.
func (idx columnIndex) cell(row []any, name string) any {
	i, ok := idx[name]
	if !ok {
		return nil
	}
	return row[i]
}

func (idx columnIndex) date(row []any, start bool) domain.Date {
	y, m, d := domain.StartYear, domain.StartMonth, domain.StartDay
	if !start {
		y, m, d = domain.EndYear, domain.EndMonth, domain.EndDay
	}
	return domain.Date{
		Year:  cellInt(idx.cell(row, y.Column())),
		Month: cellInt(idx.cell(row, m.Column())),
		Day:   cellInt(idx.cell(row, d.Column())),
	}
}

func eventsFromTable(t Table) ([]domain.Event, error) {
	idx := indexColumns(t.Columns)
	if err := idx.require(ColEventID, ColMainEvent); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(t.Rows))
	for _, row := range t.Rows {
		id, _ := cellString(idx.cell(row, ColEventID))
		class, _ := cellString(idx.cell(row, ColMainEvent))
		events = append(events, domain.Event{
			ID:          id,
			MainEvent:   class,
			Start:       idx.date(row, true),
			End:         idx.date(row, false),
			SourceTable: t.Name,
		})
	}
	return events, nil
}

func impactsFromTable(t Table) ([]domain.ImpactRecord, error) {
	idx := indexColumns(t.Columns)

	areaCol, plural := ColAreaGID, false
	if _, ok := idx[ColAreaGID]; !ok {
		if _, ok := idx[ColAreasGID]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, ColAreaGID)
		}
		areaCol, plural = ColAreasGID, true
	}

	required := []string{ColEventID}
	for _, f := range domain.ImpactFields {
		required = append(required, f.Column())
	}
	if err := idx.require(required...); err != nil {
		return nil, err
	}

	consumed := map[string]bool{ColEventID: true, ColAreaGID: true, ColAreasGID: true}
	for _, f := range domain.ImpactFields {
		consumed[f.Column()] = true
	}
	for _, f := range domain.DateFields {
		consumed[f.Column()] = true
	}

	records := make([]domain.ImpactRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		id, _ := cellString(idx.cell(row, ColEventID))
		area := cellArea(idx.cell(row, areaCol))
		if plural {
			area = area.Unnest()
		}

		r := domain.ImpactRecord{
			EventID:   id,
			Area:      area,
			Start:     idx.date(row, true),
			End:       idx.date(row, false),
			NumMin:    cellFloat(idx.cell(row, domain.NumMin.Column())),
			NumMax:    cellFloat(idx.cell(row, domain.NumMax.Column())),
			NumApprox: cellFloat(idx.cell(row, domain.NumApprox.Column())),
		}
		for i, col := range t.Columns {
			if consumed[col] || col == AttrSourceName {
				continue
			}
			r.Attrs = append(r.Attrs, domain.Attribute{Name: col, Value: cellValue(row[i])})
		}
		r.Attrs = append(r.Attrs, domain.Attribute{Name: AttrSourceName, Value: t.Name})
		records = append(records, r)
	}
	return records, nil
}
