package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkkrt/internal/reference"
	"bkkrt/internal/transit"
)

var _ reference.Mirror = (*DB)(nil)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "mirror.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMirror_Routes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	routes, err := db.Routes(ctx)
	require.NoError(t, err)
	assert.Empty(t, routes)

	want := []transit.Route{
		{ID: "BKK_3040", ShortName: "4", LongName: "Újbuda-központ / Széll Kálmán tér", Type: 0, Color: "FFD800"},
		{ID: "BKK_5300", ShortName: "M3", Type: 1, Color: "007AC9"},
	}
	require.NoError(t, db.SaveRoutes(ctx, want))

	got, err := db.Routes(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// a second save replaces the table
	require.NoError(t, db.SaveRoutes(ctx, want[1:]))
	got, err = db.Routes(ctx)
	require.NoError(t, err)
	assert.Equal(t, want[1:], got)
}

func TestMirror_Stops(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	want := []transit.Stop{
		{ID: "F01111", Name: "Deák Ferenc tér, M", Lat: 47.4979, Lon: 19.0543},
		{ID: "F02222", Name: "Széll Kálmán tér", Lat: 47.507, Lon: 19.024, Code: "SZK"},
	}
	require.NoError(t, db.SaveStops(ctx, want))

	got, err := db.Stops(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMirror_MirroredAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	routesAt, stopsAt, err := db.MirroredAt(ctx)
	require.NoError(t, err)
	assert.True(t, routesAt.IsZero())
	assert.True(t, stopsAt.IsZero())

	require.NoError(t, db.SaveRoutes(ctx, []transit.Route{{ID: "r"}}))
	routesAt, stopsAt, err = db.MirroredAt(ctx)
	require.NoError(t, err)
	assert.False(t, routesAt.IsZero())
	assert.True(t, stopsAt.IsZero())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := Open(path, logger)
	require.NoError(t, err)
	require.NoError(t, db.SaveStops(context.Background(), []transit.Stop{{ID: "s", Name: "S", Lat: 1, Lon: 2}}))
	require.NoError(t, db.Close())

	db, err = Open(path, logger)
	require.NoError(t, err)
	defer db.Close()
	stops, err := db.Stops(context.Background())
	require.NoError(t, err)
	assert.Len(t, stops, 1)
}
