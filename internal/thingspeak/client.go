// Package thingspeak reads the latest field values of ThingSpeak channels
// over the public read API.
package thingspeak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jamesprial/ecomonitor/internal/config"
)

const defaultTimeout = 4 * time.Second

// ErrNoData is returned when the channel has no feed entries or the requested
// field is empty in the newest entry.
var ErrNoData = errors.New("thingspeak: no data")

// ErrRateLimited is returned without contacting the server when the request
// budget is spent.
var ErrRateLimited = errors.New("thingspeak: rate limit exceeded")

// Client fetches channel feeds. It is safe for concurrent use; all requests
// share one rate limiter, and a request over budget fails at once rather
// than waiting for a token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is left
// untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request limiter. A nil limiter disables limiting.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient constructs a Client from cfg. It returns an error if cfg.URL is
// empty. When cfg.Timeout is zero or negative a default of 4 seconds is used.
// A non-positive cfg.RatePerSecond disables rate limiting.
func NewClient(cfg config.ThingSpeakConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("thingspeak: URL is required")
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		limiter:    rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// feedsResponse is the subset of the feeds.json body the client reads.
type feedsResponse struct {
	Feeds []map[string]json.RawMessage `json:"feeds"`
}

// feedsURL builds the feeds endpoint for channel, asking for the newest
// entry only.
func (c *Client) feedsURL(channel int) string {
	q := url.Values{}
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	q.Set("results", "1")
	return fmt.Sprintf("%s/channels/%d/feeds.json?%s", c.baseURL, channel, q.Encode())
}

// LatestField returns the value of fieldN in the newest entry of channel.
//
// LatestField returns an error if:
//   - the rate limiter has no token available (ErrRateLimited)
//   - the HTTP request cannot be created or sent
//   - the server responds with a non-2xx status code
//   - the response body cannot be decoded as JSON
//   - the feed or the field is empty (ErrNoData)
//   - the field value is not a number
func (c *Client) LatestField(ctx context.Context, channel, field int) (float32, error) {
	if c.limiter != nil {
		if !c.limiter.Allow() {
			return 0, ErrRateLimited
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedsURL(channel), nil)
	if err != nil {
		return 0, fmt.Errorf("thingspeak: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("thingspeak: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("thingspeak: unexpected HTTP status %d", resp.StatusCode)
	}

	var body feedsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("thingspeak: decode response: %w", err)
	}
	if len(body.Feeds) == 0 {
		return 0, ErrNoData
	}

	return parseField(body.Feeds[len(body.Feeds)-1], field)
}

// parseField extracts fieldN from a feed entry. ThingSpeak sends field values
// as JSON strings; bare numbers are accepted as well.
func parseField(entry map[string]json.RawMessage, field int) (float32, error) {
	raw, ok := entry[fmt.Sprintf("field%d", field)]
	if !ok || string(raw) == "null" {
		return 0, ErrNoData
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrNoData
	}

	v, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, fmt.Errorf("thingspeak: parse field%d: %w", field, err)
	}
	return float32(v), nil
}
