package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bkkrt/internal/transit"
)

const (
	keyRoutesLoadedAt = "routes_loaded_at"
	keyStopsLoadedAt  = "stops_loaded_at"
)

// SaveRoutes replaces the mirrored routes in one transaction.
func (db *DB) SaveRoutes(ctx context.Context, routes []transit.Route) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes`); err != nil {
		return fmt.Errorf("clear routes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO routes (route_id, route_short_name, route_long_name, route_type, route_color)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare routes: %w", err)
	}
	defer stmt.Close()

	for _, r := range routes {
		if _, err := stmt.ExecContext(ctx, r.ID, r.ShortName, r.LongName, r.Type, r.Color); err != nil {
			return fmt.Errorf("insert route %s: %w", r.ID, err)
		}
	}

	if err := setMetadata(ctx, tx, keyRoutesLoadedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Debug("routes mirrored", "count", len(routes))
	return nil
}

// SaveStops replaces the mirrored stops in one transaction.
func (db *DB) SaveStops(ctx context.Context, stops []transit.Stop) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stops`); err != nil {
		return fmt.Errorf("clear stops: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO stops (stop_id, stop_code, stop_name, stop_lat, stop_lon)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stops: %w", err)
	}
	defer stmt.Close()

	for _, s := range stops {
		if _, err := stmt.ExecContext(ctx, s.ID, s.Code, s.Name, s.Lat, s.Lon); err != nil {
			return fmt.Errorf("insert stop %s: %w", s.ID, err)
		}
	}

	if err := setMetadata(ctx, tx, keyStopsLoadedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	db.logger.Debug("stops mirrored", "count", len(stops))
	return nil
}

// Routes returns every mirrored route.
func (db *DB) Routes(ctx context.Context) ([]transit.Route, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT route_id, route_short_name, route_long_name, route_type, route_color
		 FROM routes ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("routes query: %w", err)
	}
	defer rows.Close()

	var routes []transit.Route
	for rows.Next() {
		var r transit.Route
		if err := rows.Scan(&r.ID, &r.ShortName, &r.LongName, &r.Type, &r.Color); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Stops returns every mirrored stop.
func (db *DB) Stops(ctx context.Context) ([]transit.Stop, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT stop_id, stop_code, stop_name, stop_lat, stop_lon
		 FROM stops ORDER BY stop_id`)
	if err != nil {
		return nil, fmt.Errorf("stops query: %w", err)
	}
	defer rows.Close()

	var stops []transit.Stop
	for rows.Next() {
		var s transit.Stop
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// GetMetadata retrieves a value from the feed_metadata table.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM feed_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// MirroredAt returns when routes and stops were last mirrored. Zero times
// mean the table was never mirrored.
func (db *DB) MirroredAt(ctx context.Context) (routes, stops time.Time, err error) {
	routes, err = db.timeMetadata(ctx, keyRoutesLoadedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	stops, err = db.timeMetadata(ctx, keyStopsLoadedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return routes, stops, nil
}

func (db *DB) timeMetadata(ctx context.Context, key string) (time.Time, error) {
	v, err := db.GetMetadata(ctx, key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("metadata %s: %w", key, err)
	}
	return t, nil
}

func setMetadata(ctx context.Context, tx *sql.Tx, key, value string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO feed_metadata (key, value) VALUES (?, ?)`,
		key, value); err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
