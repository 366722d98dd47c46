// Command genmock generates a synthetic impact database and a matching EM-DAT
// reference workbook, then runs the real pipeline over them and prints the
// per-category figures for updating test assertions.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -db data/mock/impactdb.db \
//	  -emdat data/mock/EMDAT.xlsx \
//	  -events 150 -seed 42
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/emdat"
	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/store"
	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/couchcryptid/cyclone-impact-etl/internal/observability"
	"github.com/couchcryptid/cyclone-impact-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"
)

const (
	cycloneClass = "Tropical Storm/Cyclone"
	emdatSheet   = "EM-DAT Data"
)

var (
	otherClasses = []string{"Flood", "Extratropical Storm/Cyclone", "Wildfire", "Earthquake"}
	countries    = []string{"CHN", "PHL", "VNM", "JPN", "USA", "MEX", "CUB", "IND", "BGD", "MDG", "MOZ", "AUS"}
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "data/mock/impactdb.db", "output path for the SQLite impact database")
	emdatPath := flag.String("emdat", "data/mock/EMDAT.xlsx", "output path for the EM-DAT reference workbook")
	events := flag.Int("events", 150, "number of events to generate")
	seed := flag.Int64("seed", 42, "random seed; equal seeds give identical fixtures")
	flag.Parse()

	if *events <= 0 {
		flag.Usage()
		return errors.New("-events must be positive")
	}

	fake := gofakeit.New(*seed)
	data := generate(fake, *events)

	if err := writeDatabase(*dbPath, data); err != nil {
		return fmt.Errorf("writing impact database: %w", err)
	}
	log.Printf("wrote impact database: %s (%d events)", *dbPath, len(data.events))

	if err := writeReference(*emdatPath, data.refs); err != nil {
		return fmt.Errorf("writing reference workbook: %w", err)
	}
	log.Printf("wrote reference workbook: %s (%d rows)", *emdatPath, len(data.refs))

	return printStats(*dbPath, *emdatPath)
}

// --- generation ---

type eventRow struct {
	id         string
	class      string
	start, end time.Time
}

type impactRow struct {
	eventID string
	area    string
	start   *time.Time
	end     *time.Time
	min     *float64
	max     *float64
	approx  *float64
}

type refRow struct {
	iso        string
	start, end time.Time
	values     map[domain.ReferenceField]float64
}

type mockData struct {
	events   []eventRow
	specific map[domain.Category][]impactRow
	instance map[domain.Category][]impactRow
	refs     []refRow
}

func generate(fake *gofakeit.Faker, n int) mockData {
	data := mockData{
		specific: map[domain.Category][]impactRow{},
		instance: map[domain.Category][]impactRow{},
	}

	for i := range n {
		ev := eventRow{id: fmt.Sprintf("%s-%04d", fake.Numerify("###"), i), class: cycloneClass}
		if fake.Number(1, 10) <= 3 {
			ev.class = fake.RandomString(otherClasses)
		}
		ev.start = time.Date(fake.Number(1880, 2023), time.Month(fake.Number(1, 12)), fake.Number(1, 24), 0, 0, 0, 0, time.UTC)
		ev.end = ev.start.AddDate(0, 0, fake.Number(0, 4))
		data.events = append(data.events, ev)

		affected := pick(fake, countries, fake.Number(1, 3))
		for _, cat := range domain.Categories {
			for _, iso := range affected {
				total := generateSpecific(fake, &data, cat, ev, iso)
				inst := generateInstance(fake, ev, iso, total)
				data.instance[cat] = append(data.instance[cat], inst)
				if ev.class == cycloneClass && cat == domain.Deaths && fake.Number(1, 10) <= 8 {
					data.refs = append(data.refs, generateReference(fake, ev, iso, total))
				}
			}
		}
	}
	return data
}

// generateSpecific writes one to four sub-national rows for iso and returns
// their summed mean estimate.
func generateSpecific(fake *gofakeit.Faker, data *mockData, cat domain.Category, ev eventRow, iso string) float64 {
	var total float64
	for j := range fake.Number(1, 4) {
		lo := scale(cat) * fake.Float64Range(0, 50)
		hi := lo * fake.Float64Range(1, 2)
		row := impactRow{eventID: ev.id, area: subnational(fake, iso, j), min: &lo, max: &hi}
		switch fake.Number(1, 10) {
		case 1:
			row.area = fmt.Sprintf("['%s', 'Z0%d']", row.area, fake.Number(1, 9))
		case 2:
			row.area = fmt.Sprintf("['%s', '%s']", row.area, fake.RandomString(countries))
		case 3:
			row.max = nil
		}
		// Most sub-national rows leave their dates to the event.
		if fake.Bool() && fake.Bool() {
			row.start, row.end = &ev.start, &ev.end
		}
		if fake.Number(1, 10) == 1 {
			approx := (lo + hi) / 2
			row.approx = &approx
		}
		total += domain.MeanOfRange(optPtr(row.min), optPtr(row.max)).Value
		data.specific[cat] = append(data.specific[cat], row)
	}
	return total
}

func generateInstance(fake *gofakeit.Faker, ev eventRow, iso string, total float64) impactRow {
	lo := total * fake.Float64Range(0.6, 1.1)
	hi := total * fake.Float64Range(1.0, 1.6)
	return impactRow{
		eventID: ev.id,
		area:    fmt.Sprintf("[['%s']]", iso),
		start:   &ev.start,
		end:     &ev.end,
		min:     &lo,
		max:     &hi,
	}
}

func generateReference(fake *gofakeit.Faker, ev eventRow, iso string, total float64) refRow {
	deaths := total * fake.Float64Range(0.4, 1.8)
	return refRow{
		iso:   iso,
		start: ev.start,
		end:   ev.end,
		values: map[domain.ReferenceField]float64{
			domain.RefTotalDeaths:         float64(int(deaths)),
			domain.RefNoInjured:           float64(int(deaths * fake.Float64Range(2, 10))),
			domain.RefTotalDamage:         float64(int(total * 1000)),
			domain.RefTotalDamageAdjusted: float64(int(total * fake.Float64Range(1000, 2500))),
		},
	}
}

func scale(cat domain.Category) float64 {
	switch cat {
	case domain.Damage:
		return 1e4
	case domain.Injuries:
		return 5
	default:
		return 1
	}
}

// subnational returns a GADM-style identifier such as "CHN.12_1"; cleaning
// keeps its first three letters.
func subnational(fake *gofakeit.Faker, iso string, j int) string {
	return fmt.Sprintf("%s.%d_%d", iso, fake.Number(1, 30), j+1)
}

func pick(fake *gofakeit.Faker, from []string, n int) []string {
	shuffled := append([]string(nil), from...)
	fake.ShuffleStrings(shuffled)
	return shuffled[:n]
}

func optPtr(v *float64) domain.OptFloat {
	if v == nil {
		return domain.OptFloat{}
	}
	return domain.Float(*v)
}

// --- output ---

func tableName(g domain.Granularity, cat domain.Category) string {
	if g == domain.SpecificArea {
		return "Specific_Instance_Per_Administrative_Area_" + string(cat)
	}
	return "Instance_Per_Administrative_Areas_" + string(cat)
}

func writeDatabase(path string, data mockData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	db, err := sql.Open(store.DriverSQLite, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	dateCols := "Start_Date_Year INTEGER, Start_Date_Month INTEGER, Start_Date_Day INTEGER, " +
		"End_Date_Year INTEGER, End_Date_Month INTEGER, End_Date_Day INTEGER"
	stmts := []string{
		"CREATE TABLE Total_Summary_Events (Event_ID TEXT, Main_Event TEXT, " + dateCols + ")",
	}
	for _, cat := range domain.Categories {
		stmts = append(stmts,
			fmt.Sprintf("CREATE TABLE %s (Event_ID TEXT, Administrative_Area_GID TEXT, %s, Num_Min REAL, Num_Max REAL, Num_Approx REAL, Num_Unit TEXT)",
				tableName(domain.SpecificArea, cat), dateCols),
			fmt.Sprintf("CREATE TABLE %s (Event_ID TEXT, Administrative_Areas_GID TEXT, %s, Num_Min REAL, Num_Max REAL, Num_Approx REAL, Num_Unit TEXT)",
				tableName(domain.PerInstance, cat), dateCols),
		)
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}

	for _, ev := range data.events {
		if _, err := tx.Exec("INSERT INTO Total_Summary_Events VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			ev.id, ev.class,
			ev.start.Year(), int(ev.start.Month()), ev.start.Day(),
			ev.end.Year(), int(ev.end.Month()), ev.end.Day(),
		); err != nil {
			return err
		}
	}

	for _, cat := range domain.Categories {
		unit := "persons"
		if cat == domain.Damage {
			unit = "USD"
		}
		for g, rows := range map[domain.Granularity][]impactRow{
			domain.SpecificArea: data.specific[cat],
			domain.PerInstance:  data.instance[cat],
		} {
			insert := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", tableName(g, cat))
			for _, r := range rows {
				sy, sm, sd := dateParts(r.start)
				ey, em, ed := dateParts(r.end)
				if _, err := tx.Exec(insert, r.eventID, r.area, sy, sm, sd, ey, em, ed,
					floatOrNull(r.min), floatOrNull(r.max), floatOrNull(r.approx), unit); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

func dateParts(t *time.Time) (y, m, d any) {
	if t == nil {
		return nil, nil, nil
	}
	return t.Year(), int(t.Month()), t.Day()
}

func floatOrNull(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func writeReference(path string, refs []refRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", emdatSheet); err != nil {
		return err
	}
	header := make([]any, 0, len(emdat.Columns)+1)
	header = append(header, "Disaster Subtype")
	for _, c := range emdat.Columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(emdatSheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range refs {
		row := []any{
			"Tropical cyclone",
			r.iso, r.start.Year(), int(r.start.Month()), r.end.Year(), int(r.end.Month()),
			r.values[domain.RefTotalDeaths],
			r.values[domain.RefNoInjured],
			r.values[domain.RefTotalDamage],
			r.values[domain.RefTotalDamageAdjusted],
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(emdatSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// --- stats ---

func printStats(dbPath, emdatPath string) error {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	// Fixed clock for reproducible run timestamps.
	pipeline.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)))
	defer pipeline.SetClock(nil)

	db, err := store.Open(ctx, store.DriverSQLite, dbPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	p := pipeline.New(
		store.NewLoader(db, logger),
		emdat.NewReader(emdatPath, emdatSheet, logger),
		pipeline.Options{EventClass: cycloneClass, MinStartYear: 1900},
		logger,
		observability.NewMetricsForTesting(),
	)
	result, err := p.Run(ctx, pipeline.RunParams{})
	if err != nil {
		return fmt.Errorf("pipeline over generated data: %w", err)
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	for _, c := range result.Categories {
		s := c.Summary()
		fmt.Printf("%s: specific=%d outside_class=%d before_min_year=%d cleaned_out=%d aggregated=%d\n",
			s.Category, s.SpecificRows, s.OutsideClass, s.BeforeMinYear, s.SpecificCleaned.RowsDropped(), s.AggregatedRows)
		fmt.Printf("  instance=%d not_aggregated=%d reconciled=%d compared=%d uncomparable=%d\n",
			s.InstanceRows, s.NotAggregated, s.Reconciled, s.Compared, s.Uncomparable)

		buckets := make([]string, 0, len(domain.Buckets))
		for _, b := range domain.Buckets {
			buckets = append(buckets, fmt.Sprintf("%q=%d", b, s.Buckets[b]))
		}
		fmt.Printf("  buckets: %s\n", strings.Join(buckets, " "))
	}
	return nil
}
