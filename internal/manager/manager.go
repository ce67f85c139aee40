// Package manager orchestrates the realtime feeds into one snapshot and
// notifies subscribers whenever a new snapshot is stored.
package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"bkkrt/internal/transit"
)

// Feeds is the part of the realtime coordinator the Manager drives.
type Feeds interface {
	FetchAlerts(ctx context.Context) ([]transit.Alert, error)
	FetchVehiclePositions(ctx context.Context) ([]transit.VehiclePosition, error)
	ClearAll()
}

// Resetter clears reference state on Reset.
type Resetter interface {
	Reset()
}

// Snapshot is the combined alerts and vehicles state. Both halves share
// one timestamp.
type Snapshot struct {
	Alerts    []transit.Alert           `json:"alerts"`
	Vehicles  []transit.VehiclePosition `json:"vehicles"`
	FetchedAt time.Time                 `json:"fetched_at"`
}

// Listener receives every stored snapshot.
type Listener func(Snapshot)

type subscription struct {
	id int
	fn Listener
}

// Manager holds the latest snapshot.
type Manager struct {
	feeds  Feeds
	ref    Resetter
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	snapshot Snapshot
	ready    bool
	inFlight bool

	subMu  sync.Mutex
	subs   []subscription
	nextID int
}

// New creates a Manager. ref may be nil.
func New(feeds Feeds, ref Resetter, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		feeds:  feeds,
		ref:    ref,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Initialize returns a snapshot, fetching alerts and vehicles concurrently
// unless the stored one is still fresh and force is false. A caller arriving
// while an orchestration is in flight joins it, forced or not.
func (m *Manager) Initialize(ctx context.Context, force bool) (Snapshot, error) {
	if !force {
		if s, ok := m.fresh(); ok {
			return s, nil
		}
	}

	ch := m.group.DoChan("initialize", func() (any, error) {
		m.setInFlight(true)
		defer m.setInFlight(false)
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		s, _ := res.Val.(Snapshot)
		return s, res.Err
	}
}

// fresh returns the stored snapshot when it is younger than the TTL and no
// orchestration is in flight.
func (m *Manager) fresh() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.inFlight || !m.ready || m.now().Sub(m.snapshot.FetchedAt) >= m.ttl {
		return Snapshot{}, false
	}
	return m.snapshot, true
}

func (m *Manager) setInFlight(v bool) {
	m.mu.Lock()
	m.inFlight = v
	m.mu.Unlock()
}

func (m *Manager) refresh(ctx context.Context) (Snapshot, error) {
	var (
		alerts   []transit.Alert
		vehicles []transit.VehiclePosition
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		alerts, err = m.feeds.FetchAlerts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		vehicles, err = m.feeds.FetchVehiclePositions(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		m.logger.Error("snapshot refresh failed", "error", err)

		m.mu.Lock()
		first := !m.ready
		if first {
			m.snapshot = Snapshot{
				Alerts:   []transit.Alert{},
				Vehicles: []transit.VehiclePosition{},
			}
			m.ready = true
		}
		s := m.snapshot
		m.mu.Unlock()
		return s, err
	}

	s := Snapshot{Alerts: alerts, Vehicles: vehicles, FetchedAt: m.now()}
	m.mu.Lock()
	m.snapshot = s
	m.ready = true
	m.mu.Unlock()

	m.logger.Info("snapshot refreshed", "alerts", len(alerts), "vehicles", len(vehicles))
	m.broadcast(s)
	return s, nil
}

// Run refreshes the snapshot immediately and then every interval until ctx
// is cancelled. Subscribers therefore see new data without anyone polling.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if _, err := m.Initialize(ctx, true); err != nil {
		m.logger.Warn("initial snapshot failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Initialize(ctx, true); err != nil {
				m.logger.Warn("scheduled snapshot failed", "error", err)
			}
		case <-ctx.Done():
			m.logger.Info("snapshot refresher stopped")
			return
		}
	}
}

// Snapshot returns the stored snapshot, if any.
func (m *Manager) Snapshot() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot, m.ready
}

// Subscribe registers fn and returns a function that removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(id) })
	}
}

func (m *Manager) unsubscribe(id int) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return
		}
	}
}

// broadcast calls every listener in subscription order.
func (m *Manager) broadcast(s Snapshot) {
	m.subMu.Lock()
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.subMu.Unlock()

	for _, sub := range subs {
		m.notify(sub, s)
	}
}

func (m *Manager) notify(sub subscription, s Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("snapshot listener panicked", "subscriber", sub.id, "panic", r)
		}
	}()
	sub.fn(s)
}

// Reset clears the snapshot, the feed caches, the reference tables and
// every subscriber.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.snapshot = Snapshot{}
	m.ready = false
	m.mu.Unlock()

	m.subMu.Lock()
	m.subs = nil
	m.subMu.Unlock()

	m.group.Forget("initialize")
	m.feeds.ClearAll()
	if m.ref != nil {
		m.ref.Reset()
	}
}
