// Package store reads the impact database. Tables are discovered by name and
// read whole; interpretation of their columns happens in the Loader.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// Driver names understood by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const (
	openAttempts   = 5
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Table is the raw content of one store table.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// TableError names the table a read or conversion failed on.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string { return "table " + e.Table + ": " + e.Err.Error() }

func (e *TableError) Unwrap() error { return e.Err }

// TableName returns the failing table.
func (e *TableError) TableName() string { return e.Table }

// Store is a read-only handle on the impact database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the impact database and verifies the connection, retrying
// with exponential backoff while the server is unreachable. A missing SQLite
// file is reported immediately instead of being created empty.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if driver == DriverSQLite && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if _, err := os.Stat(dsn); err != nil {
			return nil, fmt.Errorf("open impact database: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open impact database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt == openAttempts || ctx.Err() != nil {
			db.Close()
			return nil, fmt.Errorf("ping impact database: %w", err)
		}
		logger.Warn("impact database not reachable, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			db.Close()
			return nil, fmt.Errorf("ping impact database: %w", ctx.Err())
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}

	logger.Info("impact database connected", "driver", driver)
	return &Store{db: db, driver: driver}, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness reports whether the database still answers.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("impact database unreachable: %w", err)
	}
	return nil
}

// ListTables returns the names of all user tables, sorted.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch s.driver {
	case DriverSQLite:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	case DriverPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	default:
		return nil, fmt.Errorf("unsupported driver %q", s.driver)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query table catalog: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table catalog: %w", err)
	}
	return names, nil
}

// ReadTable returns every row of the named table with driver-native cell values.
func (s *Store) ReadTable(ctx context.Context, name string) (Table, error) {
	if name == "" {
		return Table{}, errors.New("read table: empty table name")
	}
	t, err := s.readTable(ctx, name)
	if err != nil {
		return Table{}, &TableError{Table: name, Err: err}
	}
	return t, nil
}

func (s *Store) readTable(ctx context.Context, name string) (Table, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return Table{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("scan: %w", err)
	}

	t := Table{Name: name, Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scan: %w", err)
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("scan: %w", err)
	}
	return t, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
