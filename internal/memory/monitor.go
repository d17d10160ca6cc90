package memory

import (
	"context"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultWarningRatio    = 0.75
	defaultCriticalRatio   = 0.90
	defaultReclaimAttempts = 3
	defaultReclaimPause    = 50 * time.Millisecond
)

// Reclaimer issues one reclamation hint to the runtime.
type Reclaimer func()

// defaultReclaimer forces a collection and returns freed pages to the OS.
func defaultReclaimer() { debug.FreeOSMemory() }

// Monitor samples a Probe and classifies the result. Sampling has no side
// effects besides remembering the last good sample; RequestReclamation is
// the only operation that acts on the runtime. Safe for concurrent use.
type Monitor struct {
	probe    Probe
	warning  float64
	critical float64
	reclaim  Reclaimer
	attempts int
	pause    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	requests atomic.Int64

	mu   sync.Mutex
	last StatusInfo
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithThresholds sets the warning and critical fractions of Max.
func WithThresholds(warning, critical float64) MonitorOption {
	return func(m *Monitor) {
		m.warning = warning
		m.critical = critical
	}
}

// WithReclaimer replaces the reclamation hint.
func WithReclaimer(r Reclaimer) MonitorOption {
	return func(m *Monitor) { m.reclaim = r }
}

// WithReclaimAttempts sets how many hints one request issues and the pause
// between them.
func WithReclaimAttempts(n int, pause time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.attempts = n
		m.pause = pause
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor returns a Monitor over probe with 75%/90% thresholds and three
// reclamation hints 50ms apart.
func NewMonitor(probe Probe, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		probe:    probe,
		warning:  defaultWarningRatio,
		critical: defaultCriticalRatio,
		reclaim:  defaultReclaimer,
		attempts: defaultReclaimAttempts,
		pause:    defaultReclaimPause,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.reclaim == nil {
		m.reclaim = defaultReclaimer
	}
	if m.attempts < 1 {
		m.attempts = 1
	}
	m.last = StatusInfo{Status: StatusOK, SampledAt: m.now()}
	return m
}

// Thresholds returns the warning and critical fractions.
func (m *Monitor) Thresholds() (warning, critical float64) {
	return m.warning, m.critical
}

// Classify maps a usage reading to a pressure band.
func (m *Monitor) Classify(u Usage) Status {
	if u.Max == 0 {
		return StatusOK
	}
	used, ceiling := float64(u.Used), float64(u.Max)
	switch {
	case used >= m.critical*ceiling:
		return StatusCritical
	case used >= m.warning*ceiling:
		return StatusWarning
	default:
		return StatusOK
	}
}

// Sample reads the probe and classifies the result. When the probe fails the
// previous sample is returned unchanged; a failing probe never escalates
// pressure.
func (m *Monitor) Sample(ctx context.Context) StatusInfo {
	u, err := m.probe.Read(ctx)
	if err != nil {
		m.logger.Debug("memory probe failed", "error", err)
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.last
	}

	info := StatusInfo{
		Status:     m.Classify(u),
		UsedBytes:  u.Used,
		TotalBytes: u.Total,
		MaxBytes:   u.Max,
		FreeBytes:  u.Free,
		SampledAt:  m.now(),
	}
	m.mu.Lock()
	m.last = info
	m.mu.Unlock()
	return info
}

// Last returns the most recent successful sample without reading the probe.
func (m *Monitor) Last() StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// RequestReclamation issues the configured number of reclamation hints with
// a pause between them, then re-samples. The hints are advisory; the returned
// sample may show no improvement. The request counter increases by one per
// call. A cancelled ctx cuts the pauses short.
func (m *Monitor) RequestReclamation(ctx context.Context) StatusInfo {
	m.requests.Add(1)
	m.logger.Info("requesting memory reclamation", "attempts", m.attempts)

	for i := 0; i < m.attempts; i++ {
		m.reclaim()
		if i == m.attempts-1 || m.pause <= 0 {
			continue
		}
		t := time.NewTimer(m.pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return m.Sample(context.WithoutCancel(ctx))
		case <-t.C:
		}
	}

	after := m.Sample(ctx)
	m.logger.Info("post-reclamation memory", "status", after.Status.String(),
		"usage_percent", after.UsagePercent())
	return after
}

// ReclamationRequests returns the number of RequestReclamation calls.
func (m *Monitor) ReclamationRequests() int64 {
	return m.requests.Load()
}
