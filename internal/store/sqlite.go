package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/stationwatch/stationwatch/internal/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
    station_id   TEXT NOT NULL,
    name         TEXT,
    obs_time     TEXT NOT NULL,
    speed        REAL,
    dir          TEXT,
    gust_speed   REAL,
    gust_dir     TEXT,
    gust_time    TEXT,
    precip       REAL,
    air_temp     REAL,
    rh           REAL,
    pres         REAL,
    tmax         REAL,
    tmax_time    TEXT,
    tmin         REAL,
    tmin_time    TEXT,
    PRIMARY KEY (station_id, obs_time)
);`

const upsertSQL = `
INSERT INTO observations (
  station_id, name, obs_time,
  speed, dir, gust_speed, gust_dir, gust_time,
  precip, air_temp, rh, pres,
  tmax, tmax_time, tmin, tmin_time
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(station_id, obs_time) DO UPDATE SET
  name       = excluded.name,
  speed      = excluded.speed,
  dir        = excluded.dir,
  gust_speed = excluded.gust_speed,
  gust_dir   = excluded.gust_dir,
  gust_time  = excluded.gust_time,
  precip     = excluded.precip,
  air_temp   = excluded.air_temp,
  rh         = excluded.rh,
  pres       = excluded.pres,
  tmax       = excluded.tmax,
  tmax_time  = excluded.tmax_time,
  tmin       = excluded.tmin,
  tmin_time  = excluded.tmin_time`

const selectColumns = `
  station_id, name, obs_time,
  speed, dir, gust_speed, gust_dir, gust_time,
  precip, air_temp, rh, pres,
  tmax, tmax_time, tmin, tmin_time`

// SQLiteStore persists observations keyed by (station_id, obs_time).
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. WAL keeps window queries readable while a cycle's batch
// commits.
func Open(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert writes the batch in one transaction with insert-or-full-overwrite
// semantics: on key collision every non-key column is replaced by the
// incoming value. Rows missing station_id or obs_time are dropped before
// persistence. Returns the number of rows written.
func (s *SQLiteStore) Upsert(ctx context.Context, rows []telemetry.Observation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range rows {
		if r.StationID == "" || r.ObsTime == nil || *r.ObsTime == "" {
			s.logger.Debug().Str("station", r.StationID).Msg("dropping row without identity")
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.StationID, r.Name, *r.ObsTime,
			r.Speed, r.Dir, r.GustSpeed, r.GustDir, r.GustTime,
			r.Precip, r.AirTemp, r.RH, r.Pres,
			r.TMax, r.TMaxTime, r.TMin, r.TMinTime,
		); err != nil {
			return 0, fmt.Errorf("upsert %s@%s: %w", r.StationID, *r.ObsTime, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return written, nil
}

// Prune deletes every row with obs_time <= cutoff and returns the count
// removed. Civil timestamps compare correctly as strings.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE obs_time <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// Between returns all rows with obs_time in (start, end], ordered by
// station then time.
func (s *SQLiteStore) Between(ctx context.Context, start, end string) ([]telemetry.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM observations
		WHERE obs_time > ? AND obs_time <= ?
		ORDER BY station_id, obs_time`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

// LatestPerStation returns, for each station present in the store, the row
// with the maximum obs_time.
func (s *SQLiteStore) LatestPerStation(ctx context.Context) ([]telemetry.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH latest AS (
		  SELECT station_id, MAX(obs_time) AS t
		  FROM observations
		  GROUP BY station_id
		)
		SELECT
		  o.station_id, o.name, o.obs_time,
		  o.speed, o.dir, o.gust_speed, o.gust_dir, o.gust_time,
		  o.precip, o.air_temp, o.rh, o.pres,
		  o.tmax, o.tmax_time, o.tmin, o.tmin_time
		FROM observations o
		JOIN latest l
		  ON o.station_id = l.station_id AND o.obs_time = l.t
		ORDER BY o.station_id`)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()
	return scanObservations(rows)
}

func scanObservations(rows *sql.Rows) ([]telemetry.Observation, error) {
	var out []telemetry.Observation
	for rows.Next() {
		var (
			o        telemetry.Observation
			name     sql.NullString
			obsTime  string
			dir      sql.NullString
			gustDir  sql.NullString
			gustTime sql.NullString
			tmaxTime sql.NullString
			tminTime sql.NullString
			speed    sql.NullFloat64
			gust     sql.NullFloat64
			precip   sql.NullFloat64
			airTemp  sql.NullFloat64
			rh       sql.NullFloat64
			pres     sql.NullFloat64
			tmax     sql.NullFloat64
			tmin     sql.NullFloat64
		)
		if err := rows.Scan(
			&o.StationID, &name, &obsTime,
			&speed, &dir, &gust, &gustDir, &gustTime,
			&precip, &airTemp, &rh, &pres,
			&tmax, &tmaxTime, &tmin, &tminTime,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Name = strOrNil(name)
		o.ObsTime = &obsTime
		o.Speed = floatOrNil(speed)
		o.Dir = strOrNil(dir)
		o.GustSpeed = floatOrNil(gust)
		o.GustDir = strOrNil(gustDir)
		o.GustTime = strOrNil(gustTime)
		o.Precip = floatOrNil(precip)
		o.AirTemp = floatOrNil(airTemp)
		o.RH = floatOrNil(rh)
		o.Pres = floatOrNil(pres)
		o.TMax = floatOrNil(tmax)
		o.TMaxTime = strOrNil(tmaxTime)
		o.TMin = floatOrNil(tmin)
		o.TMinTime = strOrNil(tminTime)
		out = append(out, o)
	}
	return out, rows.Err()
}

func strOrNil(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
