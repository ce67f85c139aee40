// Package publish fans snapshot summaries out to Redis so other processes
// can react to new realtime data without polling the API.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"bkkrt/internal/manager"
	"bkkrt/internal/transit"
)

const publishTimeout = 2 * time.Second

// redisClient is the subset of *redis.Client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Summary is the message published for each snapshot.
type Summary struct {
	FetchedAt      time.Time                `json:"fetched_at"`
	Alerts         int                      `json:"alerts"`
	ActiveAlerts   int                      `json:"active_alerts"`
	Vehicles       int                      `json:"vehicles"`
	ActiveAlertIDs []string                 `json:"active_alert_ids"`
	ByCategory     map[transit.Category]int `json:"alerts_by_category"`
}

// Summarize reduces a snapshot to its published summary.
func Summarize(s manager.Snapshot, now time.Time) Summary {
	active := transit.ActiveAlerts(s.Alerts, now)
	sum := Summary{
		FetchedAt:      s.FetchedAt,
		Alerts:         len(s.Alerts),
		ActiveAlerts:   len(active),
		Vehicles:       len(s.Vehicles),
		ActiveAlertIDs: make([]string, 0, len(active)),
		ByCategory:     make(map[transit.Category]int),
	}
	for _, a := range active {
		sum.ActiveAlertIDs = append(sum.ActiveAlertIDs, a.ID)
		sum.ByCategory[a.Category]++
	}
	sort.Strings(sum.ActiveAlertIDs)
	return sum
}

// Publisher sends snapshot summaries to a Redis channel and keeps the
// latest one under a key for late joiners.
type Publisher struct {
	rdb     redisClient
	channel string
	key     string
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewClient creates a Redis client for addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// New creates a Publisher. The latest summary is stored at channel+":latest"
// and expires after ttl.
func New(rdb redisClient, channel string, ttl time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		rdb:     rdb,
		channel: channel,
		key:     channel + ":latest",
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Publish sends the summary of s.
func (p *Publisher) Publish(ctx context.Context, s manager.Snapshot) error {
	msg, err := json.Marshal(Summarize(s, p.now()))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	if err := p.rdb.Set(ctx, p.key, msg, p.ttl).Err(); err != nil {
		return fmt.Errorf("store latest summary: %w", err)
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, msg).Result()
	if err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	p.logger.Debug("snapshot summary published", "channel", p.channel, "receivers", receivers)
	return nil
}

// Listener adapts the publisher to a manager subscription. Failures are
// logged; they never reach the manager.
func (p *Publisher) Listener() manager.Listener {
	return func(s manager.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.Publish(ctx, s); err != nil {
			p.logger.Warn("snapshot publish failed", "error", err)
		}
	}
}
