// Package store keeps decoded rides in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lucasjlepore/srm-analyzer/ridefile"
)

const driverName = "sqlite"

var ErrNotFound = errors.New("ride not found")

const schema = `
CREATE TABLE IF NOT EXISTS rides (
  id            INTEGER PRIMARY KEY,
  name          TEXT UNIQUE NOT NULL,
  device_type   TEXT NOT NULL,
  start_time    TEXT NOT NULL,
  rec_int_secs  REAL NOT NULL,
  duration_secs REAL NOT NULL,
  distance_km   REAL NOT NULL,
  point_count   INTEGER NOT NULL,
  tags          TEXT,
  saved_at      BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS ride_points (
  ride_id  INTEGER NOT NULL REFERENCES rides(id) ON DELETE CASCADE,
  idx      INTEGER NOT NULL,
  secs     REAL,
  cad      REAL,
  hr       REAL,
  km       REAL,
  kph      REAL,
  nm       REAL,
  watts    REAL,
  alt      REAL,
  lon      REAL,
  lat      REAL,
  headwind REAL,
  interval_index INTEGER,
  PRIMARY KEY (ride_id, idx)
);

CREATE TABLE IF NOT EXISTS ride_intervals (
  ride_id INTEGER NOT NULL REFERENCES rides(id) ON DELETE CASCADE,
  idx     INTEGER NOT NULL,
  start   REAL NOT NULL,
  stop    REAL NOT NULL,
  name    TEXT NOT NULL,
  PRIMARY KEY (ride_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_rides_start_time ON rides (start_time);
`

// Summary is one row of the ride catalogue.
type Summary struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DeviceType   string    `json:"device_type"`
	StartTime    time.Time `json:"start_time"`
	DurationSecs float64   `json:"duration_secs"`
	DistanceKm   float64   `json:"distance_km"`
	PointCount   int       `json:"point_count"`
}

// Store wraps a single-connection SQLite handle.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema. logf
// receives one line per setup step and may be nil.
func Open(ctx context.Context, path string, logf func(string, ...any)) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps statements serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := tune(ctx, db, logf); err != nil {
		logf("sqlite tuning skipped: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logf("ride store ready at %s", path)
	return &Store{db: db}, nil
}

func tune(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("apply journal_mode: %w", err)
	}
	logf("sqlite tuning journal_mode -> %s", mode)
	for _, q := range []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("apply %s: %w", q, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRide stores ride under name, replacing any ride saved under the same name.
func (s *Store) SaveRide(ctx context.Context, name string, ride *ridefile.Ride) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("ride name is required")
	}
	if ride == nil {
		return 0, fmt.Errorf("ride is nil")
	}
	tags, err := json.Marshal(ride.Tags)
	if err != nil {
		return 0, fmt.Errorf("encode tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteByName(ctx, tx, name); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO rides
		(name, device_type, start_time, rec_int_secs, duration_secs, distance_km, point_count, tags, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, ride.DeviceType, ride.StartTime.Format(time.RFC3339Nano), ride.RecIntSecs,
		ride.Duration(), ride.DistanceKm(), len(ride.Points), string(tags), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("insert ride: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ride id: %w", err)
	}

	pointStmt, err := tx.PrepareContext(ctx, `INSERT INTO ride_points
		(ride_id, idx, secs, cad, hr, km, kph, nm, watts, alt, lon, lat, headwind, interval_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare points: %w", err)
	}
	defer pointStmt.Close()
	for i, p := range ride.Points {
		if _, err := pointStmt.ExecContext(ctx, id, i, p.Secs, p.Cad, p.HR, p.Km, p.Kph, p.Nm,
			p.Watts, p.Alt, p.Lon, p.Lat, p.Headwind, p.Interval); err != nil {
			return 0, fmt.Errorf("insert point %d: %w", i, err)
		}
	}

	for i, iv := range ride.Intervals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ride_intervals (ride_id, idx, start, stop, name) VALUES (?, ?, ?, ?, ?)`,
			id, i, iv.Start, iv.Stop, iv.Name); err != nil {
			return 0, fmt.Errorf("insert interval %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ride: %w", err)
	}
	return id, nil
}

// LoadRide rebuilds a saved ride.
func (s *Store) LoadRide(ctx context.Context, name string) (*ridefile.Ride, error) {
	var (
		id      int64
		startTS string
		tags    sql.NullString
	)
	ride := ridefile.New()
	err := s.db.QueryRowContext(ctx,
		`SELECT id, device_type, start_time, rec_int_secs, tags FROM rides WHERE name = ?`, name).
		Scan(&id, &ride.DeviceType, &startTS, &ride.RecIntSecs, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query ride: %w", err)
	}
	if ride.StartTime, err = time.Parse(time.RFC3339Nano, startTS); err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	if tags.Valid && tags.String != "" && tags.String != "null" {
		if err := json.Unmarshal([]byte(tags.String), &ride.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT secs, cad, hr, km, kph, nm, watts, alt, lon, lat, headwind, interval_index
		FROM ride_points WHERE ride_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	for rows.Next() {
		var p ridefile.Point
		if err := rows.Scan(&p.Secs, &p.Cad, &p.HR, &p.Km, &p.Kph, &p.Nm, &p.Watts, &p.Alt,
			&p.Lon, &p.Lat, &p.Headwind, &p.Interval); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan point: %w", err)
		}
		ride.Points = append(ride.Points, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT start, stop, name FROM ride_intervals WHERE ride_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("query intervals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var iv ridefile.Interval
		if err := rows.Scan(&iv.Start, &iv.Stop, &iv.Name); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		ride.Intervals = append(ride.Intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervals: %w", err)
	}
	return ride, nil
}

// ListRides returns the catalogue ordered by start time.
func (s *Store) ListRides(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, device_type, start_time, duration_secs, distance_km, point_count
		FROM rides ORDER BY start_time, name`)
	if err != nil {
		return nil, fmt.Errorf("query rides: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			startTS string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.DeviceType, &startTS, &sum.DurationSecs,
			&sum.DistanceKm, &sum.PointCount); err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		if sum.StartTime, err = time.Parse(time.RFC3339Nano, startTS); err != nil {
			return nil, fmt.Errorf("parse start time: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteRide removes a ride and its points. Missing rides yield ErrNotFound.
func (s *Store) DeleteRide(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM rides WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("query ride: %w", err)
	}
	if err := deleteByName(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteByName(ctx context.Context, tx *sql.Tx, name string) error {
	// Child rows go first so the delete works with foreign_keys off.
	for _, q := range []string{
		`DELETE FROM ride_points WHERE ride_id IN (SELECT id FROM rides WHERE name = ?)`,
		`DELETE FROM ride_intervals WHERE ride_id IN (SELECT id FROM rides WHERE name = ?)`,
		`DELETE FROM rides WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return fmt.Errorf("delete ride %s: %w", name, err)
		}
	}
	return nil
}
