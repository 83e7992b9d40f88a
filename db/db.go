package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS sensors (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT NOT NULL,
	min REAL NOT NULL,
	max REAL NOT NULL,
	status TEXT NOT NULL DEFAULT 'normal',
	timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sensor_history (
	id TEXT PRIMARY KEY,
	sensor_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	value REAL NOT NULL,
	unit TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sensor_history_sensor_ts ON sensor_history (sensor_id, timestamp);

CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	battery_level INTEGER,
	location TEXT NOT NULL DEFAULT '',
	last_active TEXT NOT NULL,
	fan_speed INTEGER,
	last_updated TEXT
);

CREATE TABLE IF NOT EXISTS crops (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	variety TEXT NOT NULL DEFAULT '',
	planted_date TEXT NOT NULL,
	harvest_date TEXT NOT NULL,
	status TEXT NOT NULL,
	optimal_temp_min REAL NOT NULL,
	optimal_temp_max REAL NOT NULL,
	optimal_humidity_min REAL NOT NULL,
	optimal_humidity_max REAL NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	image TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS weather_forecasts (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	condition TEXT NOT NULL,
	temp_min REAL NOT NULL,
	temp_max REAL NOT NULL,
	humidity REAL NOT NULL,
	wind_speed REAL NOT NULL,
	precipitation REAL NOT NULL
);
`

// Open opens the sqlite file at path and applies the schema. sqlite allows
// one writer, so the pool is pinned to a single connection.
func Open(path string) (*sql.DB, error) {
	dbConn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	dbConn.SetMaxOpenConns(1)

	if err := ApplySchema(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("Database opened")
	return dbConn, nil
}

func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

var timeNow = time.Now

// Timestamps are stored as RFC3339 UTC strings so range queries can compare
// them lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Warn().Str("value", s).Err(err).Msg("Unparseable timestamp in database")
		return time.Time{}
	}
	return t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
