// Package bkk is an HTTP client for the BKK realtime proxy and its bundled
// static resources. Every resource is served as text/plain.
package bkk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Feed names a realtime feed endpoint.
type Feed string

const (
	Alerts           Feed = "Alerts"
	VehiclePositions Feed = "VehiclePositions"
	TripUpdates      Feed = "TripUpdates"
)

// Feeds lists every realtime feed.
var Feeds = []Feed{Alerts, VehiclePositions, TripUpdates}

const examplesDir = "BKK Examples"

const (
	defaultRetries = 2
	retryInterval  = 250 * time.Millisecond
)

// Client fetches realtime dumps from the API proxy and reference tables and
// fallback payloads from the static asset host.
type Client struct {
	apiBase    string
	staticBase string
	client     *http.Client
	retries    uint64
	logger     *slog.Logger
}

// statusError is a non-2xx response.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.code, e.url)
}

// NewClient creates a BKK client. timeout bounds a single request.
func NewClient(apiBase, staticBase string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiBase:    apiBase,
		staticBase: staticBase,
		client:     &http.Client{Timeout: timeout},
		retries:    defaultRetries,
		logger:     logger,
	}
}

// Feed fetches the live text dump of a realtime feed.
func (c *Client) Feed(ctx context.Context, feed Feed) (string, error) {
	u, err := url.JoinPath(c.apiBase, "api", "bkk", string(feed))
	if err != nil {
		return "", fmt.Errorf("feed url: %w", err)
	}
	body, err := c.getText(ctx, u)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", feed, err)
	}
	return body, nil
}

// Example fetches the bundled example payload for a feed.
func (c *Client) Example(ctx context.Context, feed Feed) (string, error) {
	u, err := url.JoinPath(c.staticBase, examplesDir, string(feed)+".txt")
	if err != nil {
		return "", fmt.Errorf("example url: %w", err)
	}
	body, err := c.getText(ctx, u)
	if err != nil {
		return "", fmt.Errorf("fetch %s example: %w", feed, err)
	}
	return body, nil
}

// Reference fetches a static GTFS table such as "routes.txt".
func (c *Client) Reference(ctx context.Context, table string) (string, error) {
	u, err := url.JoinPath(c.staticBase, examplesDir, "GTFS", table)
	if err != nil {
		return "", fmt.Errorf("reference url: %w", err)
	}
	body, err := c.getText(ctx, u)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", table, err)
	}
	return body, nil
}

// getText GETs u, retrying transport errors and 5xx responses with
// exponential backoff. 4xx responses and context errors are final.
func (c *Client) getText(ctx context.Context, u string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInterval
	b.MaxElapsedTime = c.client.Timeout

	attempt := func() (string, error) {
		body, err := c.getOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		var se *statusError
		if ctx.Err() != nil || (errors.As(err, &se) && se.code < 500) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("bkk request failed, retrying", "url", u, "error", err, "wait", wait)
	}
	return backoff.RetryNotifyWithData(attempt, backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx), notify)
}

func (c *Client) getOnce(ctx context.Context, u string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &statusError{code: resp.StatusCode, url: u}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	c.logger.Debug("bkk resource fetched", "url", u, "bytes", len(body), "duration", time.Since(start).Round(time.Millisecond))
	return string(body), nil
}
