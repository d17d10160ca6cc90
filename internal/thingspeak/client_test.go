package thingspeak

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/jamesprial/ecomonitor/internal/config"
	"github.com/jamesprial/ecomonitor/internal/sensor"
)

// ---------------------------------------------------------------------------
// Compile-time interface satisfaction check
// ---------------------------------------------------------------------------

// Client is plugged into sensors as a remote fetcher.
var _ sensor.RemoteFetcher = (*Client)(nil)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestConfig(t *testing.T, url, apiKey string) config.ThingSpeakConfig {
	t.Helper()
	return config.ThingSpeakConfig{
		URL:     url,
		APIKey:  apiKey,
		Timeout: 2,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(newTestConfig(t, srv.URL, "readkey"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func Test_NewClient_Cases(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.ThingSpeakConfig
		wantErr     bool
		wantTimeout time.Duration
		wantBase    string
	}{
		{
			name:    "empty URL rejected",
			cfg:     config.ThingSpeakConfig{},
			wantErr: true,
		},
		{
			name:        "zero timeout uses default",
			cfg:         config.ThingSpeakConfig{URL: "https://api.thingspeak.com/"},
			wantTimeout: defaultTimeout,
			wantBase:    "https://api.thingspeak.com",
		},
		{
			name:        "explicit timeout",
			cfg:         config.ThingSpeakConfig{URL: "http://ts.local", Timeout: 9},
			wantTimeout: 9 * time.Second,
			wantBase:    "http://ts.local",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.timeout != tt.wantTimeout || c.httpClient.Timeout != tt.wantTimeout {
				t.Errorf("timeout = %v/%v, want %v", c.timeout, c.httpClient.Timeout, tt.wantTimeout)
			}
			if c.baseURL != tt.wantBase {
				t.Errorf("baseURL = %q, want %q", c.baseURL, tt.wantBase)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// LatestField
// ---------------------------------------------------------------------------

func Test_LatestField_RequestShape(t *testing.T) {
	var gotPath, gotKey, gotResults string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		gotResults = r.URL.Query().Get("results")
		_, _ = w.Write([]byte(`{"channel":{"id":12345},"feeds":[{"entry_id":9,"field2":"21.75"}]}`))
	})

	v, err := c.LatestField(context.Background(), 12345, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 21.75 {
		t.Errorf("value = %v, want 21.75", v)
	}
	if gotPath != "/channels/12345/feeds.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "readkey" || gotResults != "1" {
		t.Errorf("query api_key=%q results=%q", gotKey, gotResults)
	}
}

func Test_LatestField_Cases(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		field       int
		want        float32
		wantNoData  bool
		errContains string
	}{
		{name: "string value", status: 200, body: `{"feeds":[{"field1":"400.5"}]}`, field: 1, want: 400.5},
		{name: "numeric value", status: 200, body: `{"feeds":[{"field3":55}]}`, field: 3, want: 55},
		{name: "newest entry wins", status: 200, body: `{"feeds":[{"field1":"1"},{"field1":"2"}]}`, field: 1, want: 2},
		{name: "empty feeds", status: 200, body: `{"feeds":[]}`, field: 1, wantNoData: true},
		{name: "null field", status: 200, body: `{"feeds":[{"field1":null}]}`, field: 1, wantNoData: true},
		{name: "missing field", status: 200, body: `{"feeds":[{"field1":"3"}]}`, field: 4, wantNoData: true},
		{name: "blank field", status: 200, body: `{"feeds":[{"field1":"  "}]}`, field: 1, wantNoData: true},
		{name: "non-numeric field", status: 200, body: `{"feeds":[{"field1":"warm"}]}`, field: 1, errContains: "parse field1"},
		{name: "server error", status: 500, body: `oops`, field: 1, errContains: "unexpected HTTP status 500"},
		{name: "bad json", status: 200, body: `{"feeds":`, field: 1, errContains: "decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			v, err := c.LatestField(context.Background(), 1, tt.field)
			switch {
			case tt.wantNoData:
				if !errors.Is(err, ErrNoData) {
					t.Fatalf("error = %v, want ErrNoData", err)
				}
			case tt.errContains != "":
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("error = %v, want it to contain %q", err, tt.errContains)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if v != tt.want {
					t.Errorf("value = %v, want %v", v, tt.want)
				}
			}
		})
	}
}

func Test_LatestField_OmitsEmptyAPIKey(t *testing.T) {
	var hasKey bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasKey = r.URL.Query()["api_key"]
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"1"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(newTestConfig(t, srv.URL, ""))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.LatestField(context.Background(), 1, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasKey {
		t.Error("api_key sent for a public channel")
	}
}

func Test_LatestField_SlowServerTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(newTestConfig(t, srv.URL, "k"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	if _, err := c.LatestField(context.Background(), 1, 1); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("LatestField took %v, want it bounded by the timeout", elapsed)
	}
}

func Test_LatestField_RateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"1"}]}`))
	}))
	defer srv.Close()

	// One token, refilled once a minute: the second call is refused at once.
	c, err := NewClient(newTestConfig(t, srv.URL, "k"), WithLimiter(rate.NewLimiter(rate.Every(time.Minute), 1)))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := c.LatestField(context.Background(), 1, 1); err != nil {
		t.Fatalf("first call: %v", err)
	}

	start := time.Now()
	_, err = c.LatestField(context.Background(), 1, 1)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second call error = %v, want ErrRateLimited", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("refused call took %v, want it immediate", elapsed)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1", calls.Load())
	}
}

func Test_LatestField_NilLimiterUnlimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"1"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(newTestConfig(t, srv.URL, "k"), WithLimiter(nil))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.LatestField(context.Background(), 1, 1); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func Test_RemoteSensors_SharedClientDoNotStallCollection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"20"}]}`))
	}))
	defer srv.Close()

	cfg := newTestConfig(t, srv.URL, "k")
	cfg.RatePerSecond = 1
	cfg.Burst = 1
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	sensors := make([]*sensor.Sensor, 4)
	for i := range sensors {
		s, err := sensor.New(i+1, "OUTDOOR_TEMP", -10, 35, sensor.WithSource(sensor.NewRemote(c, 100+i, 1, time.Second)))
		if err != nil {
			t.Fatalf("sensor.New: %v", err)
		}
		sensors[i] = s
	}

	// Two back-to-back passes over every sensor, as two collection ticks would.
	for tick := 0; tick < 2; tick++ {
		start := time.Now()
		got := 0
		for _, s := range sensors {
			if _, ok := s.Sample(context.Background()); ok {
				got++
			}
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("tick %d over %d remote sensors took %v, want well under one second", tick, len(sensors), elapsed)
		}
		if tick == 0 && got != 1 {
			t.Errorf("tick 0 produced %d readings, want 1 within the burst", got)
		}
	}
	if calls.Load() > 2 {
		t.Errorf("server saw %d calls, want at most 2 at 1 rps", calls.Load())
	}
}

func Test_LatestField_AsRemoteSensorSource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"feeds":[{"field1":"30.5"}]}`))
	})
	s, err := sensor.New(42, "OUTDOOR_TEMP", -10, 35, sensor.WithSource(sensor.NewRemote(c, 1, 1, time.Second)))
	if err != nil {
		t.Fatalf("sensor.New: %v", err)
	}
	v, ok := s.Sample(context.Background())
	if !ok || v != 30.5 {
		t.Errorf("Sample() = (%v, %v), want (30.5, true)", v, ok)
	}
}
