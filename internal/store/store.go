// Package store persists pending measurements and the discovered-cells
// catalog in SQLite or PostgreSQL.
//
// Queries are written once with "?" placeholders and rebound per dialect.
// Timestamps are stored as Unix milliseconds.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"   // registers the "sqlite3" driver

	"github.com/rshade/towercollector/internal/logging"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Errors returned by the store.
var (
	ErrUnsupportedDriver = errors.New("unsupported store driver")
	ErrEmpty             = errors.New("no measurements stored")
)

// Dialect captures the SQL differences between the supported databases.
type Dialect int

// Dialects.
const (
	SQLite Dialect = iota
	Postgres
)

// DialectFor maps a driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverSQLite:
		return SQLite, nil
	case DriverPostgres:
		return Postgres, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Rebind converts "?" placeholders to the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// idColumn is the auto-increment primary key column type.
func (d Dialect) idColumn() string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY"
}

// Store is the measurement database. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", driver, err)
	}
	if dialect == SQLite {
		// SQLite allows a single writer; serialize access instead of
		// surfacing SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s store: %w", driver, err)
	}

	s := New(db, dialect)
	if err = s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logging.FromContext(ctx).Debug().
		Str(logging.FieldComponent, "store").
		Str("driver", driver).
		Msg("store opened")
	return s, nil
}

// New wraps an existing connection. Callers must run Migrate themselves.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
