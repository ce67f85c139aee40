// Package reference loads the static GTFS route and stop tables used to
// enrich realtime records. Loading is best-effort: failures are logged and
// leave the affected table empty, and raw ids are used for display instead.
package reference

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"bkkrt/internal/transit"
)

const (
	routesTable = "routes.txt"
	stopsTable  = "stops.txt"
)

// Source fetches a reference table as text.
type Source interface {
	Reference(ctx context.Context, table string) (string, error)
}

// Mirror persists reference tables between process runs. Optional.
type Mirror interface {
	SaveRoutes(ctx context.Context, routes []transit.Route) error
	SaveStops(ctx context.Context, stops []transit.Stop) error
	Routes(ctx context.Context) ([]transit.Route, error)
	Stops(ctx context.Context) ([]transit.Stop, error)
}

// Loader holds the route and stop lookup maps.
type Loader struct {
	src    Source
	mirror Mirror
	logger *slog.Logger

	loadMu sync.Mutex // serialises Load

	mu       sync.RWMutex
	routes   map[string]transit.Route
	stops    map[string]transit.Stop
	routesOK bool
	stopsOK  bool
}

// NewLoader creates a Loader. mirror may be nil.
func NewLoader(src Source, mirror Mirror, logger *slog.Logger) *Loader {
	return &Loader{
		src:    src,
		mirror: mirror,
		logger: logger,
		routes: make(map[string]transit.Route),
		stops:  make(map[string]transit.Stop),
	}
}

// Load fetches both tables unless they are already loaded. It never fails;
// a table that could not be fetched stays empty and is retried on the next call.
func (l *Loader) Load(ctx context.Context) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	l.mu.RLock()
	routesOK, stopsOK := l.routesOK, l.stopsOK
	l.mu.RUnlock()

	if !routesOK {
		l.loadRoutes(ctx)
	}
	if !stopsOK {
		l.loadStops(ctx)
	}
}

// Loaded reports whether both tables have been loaded.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.routesOK && l.stopsOK
}

func (l *Loader) loadRoutes(ctx context.Context) {
	routes, err := l.fetchRoutes(ctx)
	if err != nil {
		l.logger.Error("reference routes load failed", "error", err)
		if routes = l.mirrorRoutes(ctx); routes == nil {
			return
		}
	} else if l.mirror != nil {
		if err := l.mirror.SaveRoutes(ctx, routes); err != nil {
			l.logger.Warn("reference routes mirror save failed", "error", err)
		}
	}

	m := make(map[string]transit.Route, len(routes))
	for _, r := range routes {
		m[r.ID] = r
	}

	l.mu.Lock()
	l.routes = m
	l.routesOK = true
	l.mu.Unlock()
	l.logger.Info("reference routes loaded", "count", len(m))
}

func (l *Loader) loadStops(ctx context.Context) {
	stops, err := l.fetchStops(ctx)
	if err != nil {
		l.logger.Error("reference stops load failed", "error", err)
		if stops = l.mirrorStops(ctx); stops == nil {
			return
		}
	} else if l.mirror != nil {
		if err := l.mirror.SaveStops(ctx, stops); err != nil {
			l.logger.Warn("reference stops mirror save failed", "error", err)
		}
	}

	m := make(map[string]transit.Stop, len(stops))
	for _, s := range stops {
		m[s.ID] = s
	}

	l.mu.Lock()
	l.stops = m
	l.stopsOK = true
	l.mu.Unlock()
	l.logger.Info("reference stops loaded", "count", len(m))
}

func (l *Loader) fetchRoutes(ctx context.Context) ([]transit.Route, error) {
	text, err := l.src.Reference(ctx, routesTable)
	if err != nil {
		return nil, err
	}
	rows, err := parseTable[routeRow](text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", routesTable, err)
	}

	routes := make([]transit.Route, 0, len(rows))
	for _, row := range rows {
		if row.RouteID == "" {
			continue
		}
		// A missing or malformed route_type becomes -1 so the name rules apply.
		routeType, err := strconv.Atoi(row.RouteType)
		if err != nil {
			routeType = -1
		}
		routes = append(routes, transit.Route{
			ID:        row.RouteID,
			ShortName: row.RouteShortName,
			LongName:  row.RouteLongName,
			Type:      routeType,
			Color:     row.RouteColor,
		})
	}
	return routes, nil
}

func (l *Loader) fetchStops(ctx context.Context) ([]transit.Stop, error) {
	text, err := l.src.Reference(ctx, stopsTable)
	if err != nil {
		return nil, err
	}
	rows, err := parseTable[stopRow](text)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", stopsTable, err)
	}

	stops := make([]transit.Stop, 0, len(rows))
	for _, row := range rows {
		if row.StopID == "" {
			continue
		}
		lat, errLat := strconv.ParseFloat(row.StopLat, 64)
		lon, errLon := strconv.ParseFloat(row.StopLon, 64)
		if errLat != nil || errLon != nil {
			l.logger.Debug("skipping stop with bad coordinates", "stop_id", row.StopID)
			continue
		}
		stops = append(stops, transit.Stop{
			ID:   row.StopID,
			Name: row.StopName,
			Lat:  lat,
			Lon:  lon,
			Code: row.StopCode,
		})
	}
	return stops, nil
}

func (l *Loader) mirrorRoutes(ctx context.Context) []transit.Route {
	if l.mirror == nil {
		return nil
	}
	routes, err := l.mirror.Routes(ctx)
	if err != nil || len(routes) == 0 {
		if err != nil {
			l.logger.Warn("reference routes mirror read failed", "error", err)
		}
		return nil
	}
	l.logger.Warn("using mirrored reference routes", "count", len(routes))
	return routes
}

func (l *Loader) mirrorStops(ctx context.Context) []transit.Stop {
	if l.mirror == nil {
		return nil
	}
	stops, err := l.mirror.Stops(ctx)
	if err != nil || len(stops) == 0 {
		if err != nil {
			l.logger.Warn("reference stops mirror read failed", "error", err)
		}
		return nil
	}
	l.logger.Warn("using mirrored reference stops", "count", len(stops))
	return stops
}

// Route looks up a route by id.
func (l *Loader) Route(id string) (transit.Route, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.routes[id]
	return r, ok
}

// Stop looks up a stop by id.
func (l *Loader) Stop(id string) (transit.Stop, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.stops[id]
	return s, ok
}

// RouteName returns the short name of a route, or the raw id when unknown.
func (l *Loader) RouteName(id string) string {
	if r, ok := l.Route(id); ok && r.ShortName != "" {
		return r.ShortName
	}
	return id
}

// Counts returns the number of loaded routes and stops.
func (l *Loader) Counts() (routes, stops int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.routes), len(l.stops)
}

// Reset drops both tables so the next Load fetches them again.
func (l *Loader) Reset() {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes = make(map[string]transit.Route)
	l.stops = make(map[string]transit.Stop)
	l.routesOK = false
	l.stopsOK = false
}
