package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rshade/towercollector/internal/measurement"
)

const measurementColumns = `row_id, measured_at, latitude, longitude, accuracy, altitude, speed, bearing,
	mcc, mnc, lac, cid, psc, net_type, neighboring, asu, dbm, ta`

const insertMeasurement = `INSERT INTO measurements (measured_at, latitude, longitude, accuracy, altitude,
	speed, bearing, mcc, mnc, lac, cid, psc, net_type, neighboring, asu, dbm, ta)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertCell = `INSERT INTO cells (mcc, mnc, lac, cid, net_type, discovered_at)
	VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`

// cellNotReferenced matches cells no pending measurement refers to.
const cellNotReferenced = `NOT EXISTS (SELECT 1 FROM measurements m
	WHERE m.mcc = c.mcc AND m.mnc = c.mnc AND m.lac = c.lac AND m.cid = c.cid AND m.net_type = c.net_type)`

const archiveOrphanCells = `INSERT INTO cells_archive (mcc, mnc, lac, cid, net_type, discovered_at)
	SELECT c.mcc, c.mnc, c.lac, c.cid, c.net_type, c.discovered_at FROM cells c
	WHERE ` + cellNotReferenced + ` ON CONFLICT DO NOTHING`

const deleteOrphanCells = `DELETE FROM cells WHERE row_id IN (
	SELECT c.row_id FROM cells c WHERE ` + cellNotReferenced + `)`

// Insert stores ms and registers their cells in the catalog. It returns the
// number of measurements inserted.
func (s *Store) Insert(ctx context.Context, ms []measurement.Measurement) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		insM, err := tx.PrepareContext(ctx, s.dialect.Rebind(insertMeasurement))
		if err != nil {
			return fmt.Errorf("preparing measurement insert: %w", err)
		}
		defer insM.Close()
		insC, err := tx.PrepareContext(ctx, s.dialect.Rebind(insertCell))
		if err != nil {
			return fmt.Errorf("preparing cell insert: %w", err)
		}
		defer insC.Close()

		for _, m := range ms {
			at := m.MeasuredAt.UnixMilli()
			if _, err = insM.ExecContext(ctx,
				at, m.Location.Latitude, m.Location.Longitude, m.Location.Accuracy,
				m.Location.Altitude, m.Location.Speed, m.Location.Bearing,
				m.Cell.MCC, m.Cell.MNC, m.Cell.LAC, m.Cell.CID, m.Cell.PSC,
				int(m.Cell.NetworkType), m.Cell.Neighboring,
				m.Signal.ASU, m.Signal.DBM, m.Signal.TA,
			); err != nil {
				return fmt.Errorf("inserting measurement: %w", err)
			}
			if _, err = insC.ExecContext(ctx,
				m.Cell.MCC, m.Cell.MNC, m.Cell.LAC, m.Cell.CID, int(m.Cell.NetworkType), at,
			); err != nil {
				return fmt.Errorf("inserting cell: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ms), nil
}

// Count returns the number of pending measurements.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting measurements: %w", err)
	}
	return n, nil
}

// Last returns the newest measurement, or ErrEmpty.
func (s *Store) Last(ctx context.Context) (measurement.Measurement, error) {
	return s.one(ctx, `SELECT `+measurementColumns+` FROM measurements
		ORDER BY measured_at DESC, row_id DESC LIMIT 1`)
}

// First returns the oldest measurement, or ErrEmpty.
func (s *Store) First(ctx context.Context) (measurement.Measurement, error) {
	return s.one(ctx, `SELECT `+measurementColumns+` FROM measurements
		ORDER BY measured_at ASC, row_id ASC LIMIT 1`)
}

func (s *Store) one(ctx context.Context, query string) (measurement.Measurement, error) {
	m, err := scanMeasurement(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrEmpty
	}
	if err != nil {
		return m, fmt.Errorf("reading measurement: %w", err)
	}
	return m, nil
}

// Oldest returns up to limit of the oldest measurements not newer than until.
func (s *Store) Oldest(ctx context.Context, until time.Time, limit int) ([]measurement.Measurement, error) {
	return s.Page(ctx, until, 0, limit)
}

// Page returns up to limit measurements not newer than until, skipping the
// first offset in (measured_at, row_id) order.
func (s *Store) Page(ctx context.Context, until time.Time, offset, limit int) ([]measurement.Measurement, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := s.dialect.Rebind(`SELECT ` + measurementColumns + ` FROM measurements
		WHERE measured_at <= ? ORDER BY measured_at ASC, row_id ASC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, query, until.UnixMilli(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	out := make([]measurement.Measurement, 0, limit)
	for rows.Next() {
		m, scanErr := scanMeasurement(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("reading measurement: %w", scanErr)
		}
		out = append(out, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("reading measurements: %w", err)
	}
	return out, nil
}

// DeleteByIDs removes the given measurements and moves cells no longer
// referenced by any pending measurement to the archive, all in one
// transaction. It returns the number of measurements deleted.
func (s *Store) DeleteByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var deleted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.dialect.Rebind(`DELETE FROM measurements WHERE row_id IN (`+placeholders+`)`), args...)
		if err != nil {
			return fmt.Errorf("deleting measurements: %w", err)
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("deleting measurements: %w", err)
		}
		if _, err = tx.ExecContext(ctx, archiveOrphanCells); err != nil {
			return fmt.Errorf("archiving cells: %w", err)
		}
		if _, err = tx.ExecContext(ctx, deleteOrphanCells); err != nil {
			return fmt.Errorf("removing archived cells: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// Stats summarizes the pending backlog.
func (s *Store) Stats(ctx context.Context) (measurement.Statistics, error) {
	var st measurement.Statistics
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(DISTINCT measured_at) FROM measurements),
		(SELECT COUNT(*) FROM cells),
		(SELECT COUNT(DISTINCT measured_at / 86400000) FROM measurements)`,
	).Scan(&st.Locations, &st.Cells, &st.Days)
	if err != nil {
		return st, fmt.Errorf("reading statistics: %w", err)
	}
	return st, nil
}

// DiscoveredCells returns the number of distinct cells ever recorded,
// including archived ones.
func (s *Store) DiscoveredCells(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (
		SELECT mcc, mnc, lac, cid, net_type FROM cells
		UNION
		SELECT mcc, mnc, lac, cid, net_type FROM cells_archive) all_cells`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting discovered cells: %w", err)
	}
	return n, nil
}

// Bounds returns the bounding box of measurements not newer than until.
// The result is not Valid when there are none.
func (s *Store) Bounds(ctx context.Context, until time.Time) (measurement.Boundaries, error) {
	var minLat, minLon, maxLat, maxLon sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT MIN(latitude), MIN(longitude), MAX(latitude), MAX(longitude)
			FROM measurements WHERE measured_at <= ?`),
		until.UnixMilli(),
	).Scan(&minLat, &minLon, &maxLat, &maxLon)
	if err != nil {
		return measurement.EmptyBoundaries(), fmt.Errorf("reading bounds: %w", err)
	}
	if !minLat.Valid {
		return measurement.EmptyBoundaries(), nil
	}
	return measurement.Boundaries{
		MinLatitude:  minLat.Float64,
		MinLongitude: minLon.Float64,
		MaxLatitude:  maxLat.Float64,
		MaxLongitude: maxLon.Float64,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row scanner) (measurement.Measurement, error) {
	var (
		m       measurement.Measurement
		at      int64
		netType int
	)
	err := row.Scan(
		&m.RowID, &at,
		&m.Location.Latitude, &m.Location.Longitude, &m.Location.Accuracy,
		&m.Location.Altitude, &m.Location.Speed, &m.Location.Bearing,
		&m.Cell.MCC, &m.Cell.MNC, &m.Cell.LAC, &m.Cell.CID, &m.Cell.PSC,
		&netType, &m.Cell.Neighboring,
		&m.Signal.ASU, &m.Signal.DBM, &m.Signal.TA,
	)
	if err != nil {
		return m, err
	}
	m.MeasuredAt = time.UnixMilli(at).UTC()
	m.Cell.NetworkType = measurement.NetworkType(netType)
	return m, nil
}
