package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/rshade/towercollector/internal/logging"
)

// migration is one schema step. Statements may use {{id}} for the dialect's
// auto-increment primary key type.
type migration struct {
	version     string
	description string
	statements  []string
}

//nolint:gochecknoglobals // Schema history.
var migrations = []migration{
	{
		version:     "1.0.0",
		description: "create measurements",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS measurements (
				row_id {{id}},
				measured_at BIGINT NOT NULL,
				latitude DOUBLE PRECISION NOT NULL,
				longitude DOUBLE PRECISION NOT NULL,
				accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
				altitude DOUBLE PRECISION NOT NULL DEFAULT 0,
				speed DOUBLE PRECISION NOT NULL DEFAULT 0,
				bearing DOUBLE PRECISION NOT NULL DEFAULT 0,
				mcc INTEGER NOT NULL,
				mnc INTEGER NOT NULL,
				lac BIGINT NOT NULL,
				cid BIGINT NOT NULL,
				psc INTEGER NOT NULL DEFAULT -1,
				net_type INTEGER NOT NULL,
				neighboring BOOLEAN NOT NULL DEFAULT FALSE,
				asu INTEGER NOT NULL DEFAULT 0,
				dbm INTEGER NOT NULL DEFAULT 0,
				ta INTEGER NOT NULL DEFAULT -1
			)`,
			`CREATE INDEX IF NOT EXISTS idx_measurements_measured_at ON measurements (measured_at)`,
		},
	},
	{
		version:     "1.1.0",
		description: "create cells catalog",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS cells (
				row_id {{id}},
				mcc INTEGER NOT NULL,
				mnc INTEGER NOT NULL,
				lac BIGINT NOT NULL,
				cid BIGINT NOT NULL,
				net_type INTEGER NOT NULL,
				discovered_at BIGINT NOT NULL,
				UNIQUE (cid, lac, mnc, mcc, net_type)
			)`,
			`CREATE TABLE IF NOT EXISTS cells_archive (
				row_id {{id}},
				mcc INTEGER NOT NULL,
				mnc INTEGER NOT NULL,
				lac BIGINT NOT NULL,
				cid BIGINT NOT NULL,
				net_type INTEGER NOT NULL,
				discovered_at BIGINT NOT NULL,
				UNIQUE (cid, lac, mnc, mcc, net_type)
			)`,
		},
	},
	{
		version:     "1.2.0",
		description: "index measurements by cell",
		statements: []string{
			// Backs the orphan-cell lookups run after every deleted part.
			`CREATE INDEX IF NOT EXISTS idx_measurements_cell ON measurements (mcc, mnc, lac, cid, net_type)`,
		},
	},
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at BIGINT NOT NULL
)`

// Migrate applies every migration not yet recorded in schema_migrations,
// in version order, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	logger := logging.FromContext(ctx).With().Str(logging.FieldComponent, "store").Logger()

	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	pending, err := sortedMigrations(migrations)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if applied[m.version.String()] {
			continue
		}
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				stmt = strings.ReplaceAll(stmt, "{{id}}", s.dialect.idColumn())
				if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
					return execErr
				}
			}
			_, execErr := tx.ExecContext(ctx,
				s.dialect.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
				m.version.String(), time.Now().UnixMilli())
			return execErr
		})
		if err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.description, err)
		}
		logger.Info().
			Str("version", m.version.String()).
			Str("description", m.description).
			Msg("applied schema migration")
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, or nil for
// an empty database.
func (s *Store) SchemaVersion(ctx context.Context) (*semver.Version, error) {
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	var latest *semver.Version
	for raw := range applied {
		v, parseErr := semver.NewVersion(raw)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid schema version %q: %w", raw, parseErr)
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
		}
	}
	return latest, nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err = rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading schema_migrations: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

type versionedMigration struct {
	migration
	version *semver.Version
}

func sortedMigrations(ms []migration) ([]versionedMigration, error) {
	out := make([]versionedMigration, 0, len(ms))
	for _, m := range ms {
		v, err := semver.NewVersion(m.version)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version %q: %w", m.version, err)
		}
		out = append(out, versionedMigration{migration: m, version: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].version.LessThan(out[j].version)
	})
	return out, nil
}
