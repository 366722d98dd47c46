// Command validate checks an impact database and an EM-DAT reference workbook
// against the data contract the reconciliation pipeline relies on: table
// naming, required columns, event references, area identifiers and
// reference join keys.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dsn data/mock/impactdb.db \
//	  -emdat data/mock/EMDAT.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/emdat"
	"github.com/couchcryptid/cyclone-impact-etl/internal/adapter/store"
	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	driver := flag.String("driver", store.DriverSQLite, "database driver: sqlite or pgx")
	dsn := flag.String("dsn", "", "impact database DSN or SQLite file path")
	emdatPath := flag.String("emdat", "", "path to the EM-DAT reference workbook")
	sheet := flag.String("sheet", "EM-DAT Data", "reference sheet name")
	eventClass := flag.String("event-class", "Tropical Storm/Cyclone", "event class the pipeline keeps")
	flag.Parse()

	if *dsn == "" || *emdatPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*driver, *dsn, *emdatPath, *sheet, *eventClass); code != 0 {
		os.Exit(code)
	}
}

func run(driver, dsn, emdatPath, sheet, eventClass string) int {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	fmt.Println("=== Impact Data Contract Validation ===")
	fmt.Println()

	db, err := store.Open(ctx, driver, dsn, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open impact store: %v\n", err)
		return 1
	}
	defer db.Close()

	tables, layout := validateTableLayout(ctx, db)
	phases := []*phase{layout}

	ds, err := store.NewLoader(db, logger).Load(ctx)
	loadPhase := &phase{name: "Required columns"}
	if err != nil {
		loadPhase.errorf("%v", err)
	}
	phases = append(phases, loadPhase)

	refs, err := emdat.NewReader(emdatPath, sheet, logger).Read(ctx)
	refPhase := &phase{name: "Reference workbook"}
	if err != nil {
		refPhase.errorf("%v", err)
	}

	if loadPhase.passed() {
		phases = append(phases,
			validateEventReferences(ds, eventClass),
			validateAreaIdentifiers(ds),
		)
	}
	if refPhase.passed() {
		checkReferenceKeys(refPhase, refs)
	}
	phases = append(phases, refPhase)
	if loadPhase.passed() && refPhase.passed() {
		phases = append(phases, validateReferenceCoverage(ds, refs, eventClass))
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Tables: %d, events: %d, reference rows: %d\n", tables, len(ds.Events), len(refs))

	for _, p := range phases {
		if p.passed() && len(p.notes) == 0 {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
		for _, n := range p.notes {
			fmt.Printf("  note: %s\n", n)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

// validateTableLayout requires a Total table and, per category, at least one
// Specific and one Instance table.
func validateTableLayout(ctx context.Context, db *store.Store) (int, *phase) {
	p := &phase{name: "Table layout"}

	names, err := db.ListTables(ctx)
	if err != nil {
		p.errorf("list tables: %v", err)
		return 0, p
	}

	seen := map[domain.Granularity]map[domain.Category]int{}
	for _, name := range names {
		g, c, ok := store.ClassifyTable(name)
		if !ok {
			p.notef("table %s is not used by the pipeline", name)
			continue
		}
		if seen[g] == nil {
			seen[g] = map[domain.Category]int{}
		}
		seen[g][c]++
	}

	if len(seen[domain.Totals]) == 0 {
		p.errorf("no %s table", domain.Totals)
	}
	for _, c := range domain.Categories {
		for _, g := range []domain.Granularity{domain.SpecificArea, domain.PerInstance} {
			if seen[g][c] == 0 {
				p.errorf("no %s table for %s", g, c)
			}
		}
	}
	return len(names), p
}

// validateEventReferences flags impact rows whose event is not in a Total
// table and duplicate event IDs.
func validateEventReferences(ds domain.Dataset, eventClass string) *phase {
	p := &phase{name: "Event references"}

	ids := map[string]int{}
	for _, e := range ds.Events {
		if e.ID == "" {
			p.errorf("%s: event with empty %s", e.SourceTable, store.ColEventID)
			continue
		}
		ids[e.ID]++
	}
	for id, n := range ids {
		if n > 1 {
			p.notef("event %s appears %d times; the first occurrence supplies dates", id, n)
		}
	}
	p.notef("%d of %d events are %q", len(domain.EventsOfClass(ds.Events, eventClass)), len(ds.Events), eventClass)

	for _, c := range domain.Categories {
		for label, recs := range map[string][]domain.ImpactRecord{
			"specific": ds.Specific[c],
			"instance": ds.Instance[c],
		} {
			orphans := 0
			for _, r := range recs {
				if _, ok := ids[r.EventID]; !ok {
					orphans++
				}
			}
			if orphans > 0 {
				p.errorf("%s %s: %d rows reference unknown events", c, label, orphans)
			}
		}
	}
	sort.Strings(p.errors)
	return p
}

// validateAreaIdentifiers reports how each category's area cells resolve.
// It fails only when a category resolves no rows at all.
func validateAreaIdentifiers(ds domain.Dataset) *phase {
	p := &phase{name: "Area identifiers"}

	for _, c := range domain.Categories {
		for _, level := range []struct {
			label string
			recs  []domain.ImpactRecord
		}{
			{"specific", ds.Specific[c]},
			{"instance", ds.Instance[c]},
		} {
			_, report := domain.Clean(level.recs)
			if report.RowsIn > 0 && report.RowsOut == 0 {
				p.errorf("%s %s: none of %d area cells resolve to a code", c, level.label, report.RowsIn)
				continue
			}
			p.notef("%s %s: %d of %d resolved, dropped %v", c, level.label, report.RowsOut, report.RowsIn, report.Dropped)
		}
	}
	return p
}

func checkReferenceKeys(p *phase, refs []domain.ReferenceRecord) {
	incomplete := 0
	for _, r := range refs {
		if !r.StartYear.Valid || !r.StartMonth.Valid || !r.EndYear.Valid || !r.EndMonth.Valid {
			incomplete++
		}
	}
	if len(refs) == 0 {
		p.errorf("reference sheet has no rows")
	}
	if incomplete > 0 {
		p.notef("%d of %d reference rows lack a start or end year/month and never match", incomplete, len(refs))
	}
}

// validateReferenceCoverage runs the comparison stage over the cleaned
// instance rows of in-class events and fails when nothing matches.
func validateReferenceCoverage(ds domain.Dataset, refs []domain.ReferenceRecord, eventClass string) *phase {
	p := &phase{name: "Reference coverage"}

	allowed := domain.EventIDSet(domain.EventsOfClass(ds.Events, eventClass))
	total := 0
	for _, c := range domain.Categories {
		cleaned, _ := domain.Clean(ds.Instance[c])
		inClass := domain.FilterByEvents(cleaned, allowed)
		cmp := domain.CompareToReference(inClass, refs, domain.ReferenceFieldFor(c))
		total += len(cmp.Rows)
		p.notef("%s: %d of %d instance rows match a reference row on %q", c, len(cmp.Rows), len(inClass), cmp.Field.Column())
	}
	if total == 0 {
		p.errorf("no instance row matches any reference row")
	}
	return p
}
