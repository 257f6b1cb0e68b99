// Package sqlite stores measurements in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/store"
)

const columns = "id, profile_id, primary_avg, primary_max, secondary_avg, secondary_max, ratio, timestamp, duration_seconds, notes, leg"

// Store implements store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open measurement db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate measurement db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS measurements (
			id               TEXT PRIMARY KEY,
			profile_id       INTEGER NOT NULL,
			primary_avg      REAL NOT NULL,
			primary_max      REAL NOT NULL,
			secondary_avg    REAL NOT NULL,
			secondary_max    REAL NOT NULL,
			ratio            REAL NOT NULL,
			timestamp        INTEGER NOT NULL,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			notes            TEXT NOT NULL DEFAULT '',
			leg              TEXT NOT NULL DEFAULT 'Right'
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS measurements_profile ON measurements (profile_id, timestamp)")
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, m *measurement.Measurement) error {
	if m.ID == "" {
		m.ID = measurement.NewID(m.Timestamp)
	}
	if m.Leg == "" {
		m.Leg = measurement.DefaultLeg
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO measurements ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		m.ID, m.ProfileID, m.PrimaryAvg, m.PrimaryMax, m.SecondaryAvg, m.SecondaryMax, m.Ratio,
		m.Timestamp.UnixMilli(), m.DurationSeconds, m.Notes, string(m.Leg),
	)
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*measurement.Measurement, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM measurements WHERE id = ?", id)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM measurements WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ForProfile(ctx context.Context, profileID int64) ([]*measurement.Measurement, error) {
	return s.query(ctx,
		"SELECT "+columns+" FROM measurements WHERE profile_id = ? ORDER BY timestamp DESC, id DESC",
		profileID)
}

func (s *Store) Recent(ctx context.Context, profileID int64, limit int) ([]*measurement.Measurement, error) {
	if profileID == store.AllProfiles {
		return s.query(ctx,
			"SELECT "+columns+" FROM measurements ORDER BY timestamp DESC, id DESC LIMIT ?", limit)
	}
	return s.query(ctx,
		"SELECT "+columns+" FROM measurements WHERE profile_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?",
		profileID, limit)
}

func (s *Store) Count(ctx context.Context, profileID int64) (int, error) {
	var n int
	var err error
	if profileID == store.AllProfiles {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements WHERE profile_id = ?", profileID).Scan(&n)
	}
	return n, err
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*measurement.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*measurement.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row scanner) (*measurement.Measurement, error) {
	var m measurement.Measurement
	var timestamp int64
	var leg string
	err := row.Scan(&m.ID, &m.ProfileID, &m.PrimaryAvg, &m.PrimaryMax, &m.SecondaryAvg,
		&m.SecondaryMax, &m.Ratio, &timestamp, &m.DurationSeconds, &m.Notes, &leg)
	if err != nil {
		return nil, err
	}
	m.Timestamp = time.UnixMilli(timestamp)
	m.Leg = measurement.Leg(leg)
	return &m, nil
}
