// Package realtime fetches the BKK realtime feeds, parses them and caches
// the results per feed with a TTL. Concurrent requests for the same feed
// share one upstream round trip.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"bkkrt/internal/bkk"
	"bkkrt/internal/feed"
	"bkkrt/internal/transit"
)

const (
	DefaultTTL     = 120 * time.Second
	DefaultTimeout = 30 * time.Second
)

// ErrFeedUnavailable is returned when neither the live feed nor its bundled
// example payload could be fetched.
var ErrFeedUnavailable = errors.New("feed unavailable")

// Source fetches live feed dumps and bundled example payloads.
type Source interface {
	Feed(ctx context.Context, f bkk.Feed) (string, error)
	Example(ctx context.Context, f bkk.Feed) (string, error)
}

// ReferenceLoader makes sure the static tables are available before parsing.
type ReferenceLoader interface {
	Load(ctx context.Context)
}

// Options tunes a Coordinator. Zero values select the defaults.
type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	Now     func() time.Time
}

// Coordinator owns the per-feed caches.
type Coordinator struct {
	src     Source
	ref     ReferenceLoader
	parser  *feed.Parser
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	group    singleflight.Group
	alerts   entry[[]transit.Alert]
	vehicles entry[[]transit.VehiclePosition]
	trips    entry[string]
}

// NewCoordinator creates a Coordinator. ref may be nil.
func NewCoordinator(src Source, ref ReferenceLoader, parser *feed.Parser, opts Options, logger *slog.Logger) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		src:     src,
		ref:     ref,
		parser:  parser,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  logger,
	}
}

// FetchAlerts returns the current alerts. A failed live fetch falls back to
// the example payload; the error is non-nil only when both fail.
func (c *Coordinator) FetchAlerts(ctx context.Context) ([]transit.Alert, error) {
	return fetch(ctx, c, bkk.Alerts, &c.alerts, true, func(ctx context.Context) ([]transit.Alert, bool, error) {
		return withFallback(ctx, c, bkk.Alerts, c.parser.ParseAlerts, []transit.Alert{})
	})
}

// FetchVehiclePositions returns the current vehicle positions, with the
// same fallback rules as FetchAlerts.
func (c *Coordinator) FetchVehiclePositions(ctx context.Context) ([]transit.VehiclePosition, error) {
	return fetch(ctx, c, bkk.VehiclePositions, &c.vehicles, true, func(ctx context.Context) ([]transit.VehiclePosition, bool, error) {
		return withFallback(ctx, c, bkk.VehiclePositions, c.parser.ParseVehicles, []transit.VehiclePosition{})
	})
}

// FetchTripUpdates returns the raw trip updates dump, or "" when the feed
// cannot be fetched. There is no fallback payload for trip updates.
func (c *Coordinator) FetchTripUpdates(ctx context.Context) string {
	text, err := fetch(ctx, c, bkk.TripUpdates, &c.trips, false, func(ctx context.Context) (string, bool, error) {
		attempt, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		text, err := c.src.Feed(attempt, bkk.TripUpdates)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	})
	if err != nil {
		c.logger.Warn("trip updates unavailable", "error", err)
		return ""
	}
	return text
}

// ClearAll drops every cached feed. Flights already running finish but
// their results are not stored.
func (c *Coordinator) ClearAll() {
	c.alerts.clear()
	c.vehicles.clear()
	c.trips.clear()
	for _, f := range bkk.Feeds {
		c.group.Forget(string(f))
	}
}

// Status reports the cache state of every feed.
func (c *Coordinator) Status() []FeedStatus {
	now := c.now()
	return []FeedStatus{
		c.alerts.status(string(bkk.Alerts), now, c.ttl),
		c.vehicles.status(string(bkk.VehiclePositions), now, c.ttl),
		c.trips.status(string(bkk.TripUpdates), now, c.ttl),
	}
}

// loadFunc produces a feed value and whether it may be cached.
type loadFunc[T any] func(ctx context.Context) (T, bool, error)

// fetch serves e from cache while fresh, otherwise joins or starts the
// single flight for f. The flight runs on a context detached from the
// caller; a caller whose ctx ends stops waiting without cancelling it.
func fetch[T any](ctx context.Context, c *Coordinator, f bkk.Feed, e *entry[T], needsReference bool, load loadFunc[T]) (T, error) {
	if v, ok := e.get(c.now(), c.ttl); ok {
		return v, nil
	}

	ch := c.group.DoChan(string(f), func() (any, error) {
		if v, ok := e.get(c.now(), c.ttl); ok {
			return v, nil
		}

		e.setInFlight(true)
		defer e.setInFlight(false)

		gen := e.generation()
		flight := context.WithoutCancel(ctx)
		if needsReference && c.ref != nil {
			refCtx, cancel := context.WithTimeout(flight, c.timeout)
			c.ref.Load(refCtx)
			cancel()
		}

		start := c.now()
		v, cacheable, err := load(flight)
		if err != nil {
			return v, err
		}
		if cacheable {
			e.set(v, c.now(), gen)
		}
		c.logger.Debug("feed fetched", "feed", f, "cached", cacheable, "elapsed", c.now().Sub(start))
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	}
}

// withFallback fetches the live dump of f and parses it. On failure it
// parses the bundled example payload instead, which is returned but never
// cached.
func withFallback[T any](ctx context.Context, c *Coordinator, f bkk.Feed, parse func(string) T, empty T) (T, bool, error) {
	attempt, cancel := context.WithTimeout(ctx, c.timeout)
	text, err := c.src.Feed(attempt, f)
	cancel()
	if err == nil {
		return parse(text), true, nil
	}
	c.logger.Warn("live feed failed, using example payload", "feed", f, "error", err)

	attempt, cancel = context.WithTimeout(ctx, c.timeout)
	defer cancel()
	example, exErr := c.src.Example(attempt, f)
	if exErr != nil {
		c.logger.Error("example payload failed", "feed", f, "error", exErr)
		return empty, false, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, f, errors.Join(err, exErr))
	}
	return parse(example), false, nil
}
