package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/Carlos329173/AEMET/internal/logger"
	"github.com/Carlos329173/AEMET/internal/weather"
)

// tsLayout is fixed-width so that text order equals time order.
const tsLayout = "2006-01-02T15:04:05Z"

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  station     TEXT    NOT NULL,
  ts          TEXT    NOT NULL,
  temperature REAL,
  pressure    REAL,
  speed       REAL,
  raw_data    TEXT,
  UNIQUE (station, ts)
);
CREATE INDEX IF NOT EXISTS idx_measurements_ts ON measurements(ts);
`

const insertSQL = `
INSERT INTO measurements (station, ts, temperature, pressure, speed, raw_data)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (station, ts) DO NOTHING`

const rangeSQL = `
SELECT station, ts, temperature, pressure, speed, raw_data
FROM measurements
WHERE station = ? AND ts >= ? AND ts <= ?
ORDER BY ts`

const stationsSQL = `SELECT DISTINCT station FROM measurements ORDER BY station`

// SQLiteStore persists measurements in a SQLite table whose unique
// (station, ts) constraint makes inserts idempotent.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. path may be ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	s := NewSQLiteStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an already opened database. Call Migrate before use
// if the schema may be missing.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, log: logger.GetLogger("store")}
}

// Migrate creates the measurements table and indexes if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BulkInsert inserts all records in one transaction, skipping rows whose
// (station, ts) already exists. It returns the number of new rows.
func (s *SQLiteStore) BulkInsert(ctx context.Context, records []weather.Measurement) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Error().Err(err).Msg("rollback insert")
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		var raw any
		if len(rec.RawPayload) > 0 {
			raw = string(rec.RawPayload)
		}
		res, err := stmt.ExecContext(ctx,
			rec.Station,
			normalizeTimestamp(rec.Timestamp).Format(tsLayout),
			nullFloat(rec.Temperature),
			nullFloat(rec.Pressure),
			nullFloat(rec.Speed),
			raw,
		)
		if err != nil {
			return 0, fmt.Errorf("insert measurement: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert measurement: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

// QueryRange returns measurements for station with start <= ts <= end, ascending.
func (s *SQLiteStore) QueryRange(ctx context.Context, station string, start, end time.Time) ([]weather.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, rangeSQL,
		station,
		start.UTC().Format(tsLayout),
		end.UTC().Format(tsLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query range: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("close range rows")
		}
	}()

	var out []weather.Measurement
	for rows.Next() {
		var (
			m                 weather.Measurement
			ts                string
			temp, pres, speed sql.NullFloat64
			raw               sql.NullString
		)
		if err := rows.Scan(&m.Station, &ts, &temp, &pres, &speed, &raw); err != nil {
			return nil, err
		}
		t, err := time.Parse(tsLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parse stored timestamp %q: %w", ts, err)
		}
		m.Timestamp = t
		m.Temperature = floatPtr(temp)
		m.Pressure = floatPtr(pres)
		m.Speed = floatPtr(speed)
		if raw.Valid {
			m.RawPayload = []byte(raw.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListStations returns the distinct station codes present in the table.
func (s *SQLiteStore) ListStations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, stationsSQL)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("close stations rows")
		}
	}()

	out := []string{}
	for rows.Next() {
		var station string
		if err := rows.Scan(&station); err != nil {
			return nil, err
		}
		out = append(out, station)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000", nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// Concurrent fetches for the same range wait on each other instead of
	// failing with "database is locked".
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_txlock=immediate",
	}
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
