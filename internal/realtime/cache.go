package realtime

import (
	"sync"
	"time"
)

// entry is the cache slot of a single feed. Each feed has its own lock so
// the feeds never wait on each other.
type entry[T any] struct {
	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	cached    bool
	inFlight  bool
	gen       uint64 // bumped by clear; a flight started before clear must not store
}

// get returns the cached value when now - fetchedAt < ttl.
func (e *entry[T]) get(now time.Time, ttl time.Duration) (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.cached || now.Sub(e.fetchedAt) >= ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (e *entry[T]) generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// set stores value unless the entry was cleared since gen was read.
func (e *entry[T]) set(value T, at time.Time, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return false
	}
	e.value = value
	e.fetchedAt = at
	e.cached = true
	return true
}

func (e *entry[T]) setInFlight(v bool) {
	e.mu.Lock()
	e.inFlight = v
	e.mu.Unlock()
}

func (e *entry[T]) clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	var zero T
	e.value = zero
	e.fetchedAt = time.Time{}
	e.cached = false
	e.gen++
}

// FeedStatus describes the cache state of one feed.
type FeedStatus struct {
	Feed      string     `json:"feed"`
	Cached    bool       `json:"cached"`
	Fresh     bool       `json:"fresh"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	AgeMS     int64      `json:"age_ms"`
	InFlight  bool       `json:"in_flight"`
}

func (e *entry[T]) status(feed string, now time.Time, ttl time.Duration) FeedStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := FeedStatus{Feed: feed, Cached: e.cached, InFlight: e.inFlight}
	if e.cached {
		at := e.fetchedAt
		age := now.Sub(at)
		s.FetchedAt = &at
		s.AgeMS = age.Milliseconds()
		s.Fresh = age < ttl
	}
	return s
}
