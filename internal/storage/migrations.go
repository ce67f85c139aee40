package storage

import "fmt"

// migrate creates the mirror schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Debug("database migrations applied", "count", len(migrations))
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		route_id         TEXT PRIMARY KEY,
		route_short_name TEXT NOT NULL DEFAULT '',
		route_long_name  TEXT NOT NULL DEFAULT '',
		route_type       INTEGER NOT NULL DEFAULT -1,
		route_color      TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS stops (
		stop_id   TEXT PRIMARY KEY,
		stop_code TEXT NOT NULL DEFAULT '',
		stop_name TEXT NOT NULL,
		stop_lat  REAL NOT NULL,
		stop_lon  REAL NOT NULL
	)`,

	// Feed metadata (routes_loaded_at, stops_loaded_at)
	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_routes_short_name ON routes(route_short_name)`,
}
