// Package station runs the monitoring system: a registry of sensors with one
// ring buffer each, a collection loop that samples them, and a supervision
// loop that reacts to memory pressure. Consumers read state through copying
// accessors that never wait on either loop.
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesprial/ecomonitor/internal/memory"
	"github.com/jamesprial/ecomonitor/internal/reading"
	"github.com/jamesprial/ecomonitor/internal/ring"
	"github.com/jamesprial/ecomonitor/internal/safety"
	"github.com/jamesprial/ecomonitor/internal/sensor"
)

var (
	// ErrDuplicateSensor is returned by AddSensor for an id already in use.
	ErrDuplicateSensor = errors.New("station: duplicate sensor id")

	// ErrUnknownSensor reports a lookup of an unregistered id.
	ErrUnknownSensor = errors.New("station: unknown sensor")

	// ErrAlreadyRunning is returned by Start on a running System. The call
	// has no other effect.
	ErrAlreadyRunning = errors.New("station: already running")

	// ErrLoopsStillRunning is returned by Start while a loop from the previous
	// run has not yet exited. Stop leaves such a loop behind when it misses
	// its stop timeout.
	ErrLoopsStillRunning = errors.New("station: previous loops still running")
)

// entry is one registered sensor and its reading window.
type entry struct {
	sensor *sensor.Sensor
	buf    *ring.RingBuffer[reading.Reading]
}

// System is the station orchestrator. All methods are safe for concurrent
// use.
type System struct {
	cfg     Config
	logger  *slog.Logger
	monitor *memory.Monitor
	pool    *reading.Pool
	shed    *safety.Filter
	now     func() time.Time
	metrics *metrics

	// mu guards the registry only; it is never held across sampling or
	// sleeping.
	mu    sync.RWMutex
	order []*entry
	byID  map[int]*entry

	alerts *alertLog

	totalReadings   atomic.Int64
	alertsGenerated atomic.Int64
	shedEvents      atomic.Int64
	lastHeartbeat   atomic.Int64

	running atomic.Bool

	// lifecycle serializes Start and Stop.
	lifecycle   sync.Mutex
	cancel      context.CancelFunc
	collectDone chan struct{}
	memoryDone  chan struct{}

	timesMu      sync.RWMutex
	startedAt    time.Time
	stoppedAt    time.Time
	baseReadings int64
}

// Option configures a System.
type Option func(*sysOptions)

type sysOptions struct {
	logger   *slog.Logger
	monitor  *memory.Monitor
	pool     *reading.Pool
	registry prometheus.Registerer
	shed     *safety.Filter
	now      func() time.Time
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(o *sysOptions) { o.logger = l }
}

// WithMonitor sets the memory monitor. The default watches the Go heap.
func WithMonitor(m *memory.Monitor) Option {
	return func(o *sysOptions) { o.monitor = m }
}

// WithPool recycles readings through p. Without it every reading is a plain
// allocation.
func WithPool(p *reading.Pool) Option {
	return func(o *sysOptions) { o.pool = p }
}

// WithMetrics registers the station's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *sysOptions) { o.registry = reg }
}

// WithShedFilter selects which sensor types are shed under critical memory
// pressure. The default sheds NOISE sensors.
func WithShedFilter(f *safety.Filter) Option {
	return func(o *sysOptions) { o.shed = f }
}

// WithClock replaces time.Now for timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(o *sysOptions) { o.now = now }
}

// New returns a stopped System with no sensors.
func New(cfg Config, opts ...Option) *System {
	o := sysOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.monitor == nil {
		o.monitor = memory.NewMonitor(memory.RuntimeProbe{}, memory.WithLogger(o.logger))
	}
	if o.shed == nil {
		o.shed = safety.NewFilter([]string{"NOISE"}, nil)
	}
	if o.now == nil {
		o.now = time.Now
	}

	cfg = cfg.withDefaults()
	s := &System{
		cfg:     cfg,
		logger:  o.logger,
		monitor: o.monitor,
		pool:    o.pool,
		shed:    o.shed,
		now:     o.now,
		byID:    make(map[int]*entry),
		alerts:  newAlertLog(cfg.AlertCap, cfg.AlertTrim),
	}
	s.metrics = newMetrics(o.registry, s)
	return s
}

// AddSensor registers a sensor with its own ring buffer. Sensors may be added
// while the System is running; the next collection tick picks them up.
func (s *System) AddSensor(id int, typ string, min, max float32, opts ...sensor.Option) error {
	sn, err := sensor.New(id, typ, min, max, opts...)
	if err != nil {
		return err
	}
	buf, err := ring.New[reading.Reading](s.cfg.BufferCapacity)
	if err != nil {
		return fmt.Errorf("station: sensor %d: %w", id, err)
	}

	s.mu.Lock()
	if _, dup := s.byID[id]; dup {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDuplicateSensor, id)
	}
	e := &entry{sensor: sn, buf: buf}
	s.order = append(s.order, e)
	s.byID[id] = e
	s.mu.Unlock()

	s.logger.Info("sensor registered", "id", id, "type", typ, "min", min, "max", max,
		"source", sn.Config().Source)
	return nil
}

// snapshot returns the registry in registration order.
func (s *System) snapshot() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*entry(nil), s.order...)
}

func (s *System) lookup(id int) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// SensorCount returns the number of registered sensors.
func (s *System) SensorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *System) activeSensors() int {
	n := 0
	for _, e := range s.snapshot() {
		if e.sensor.IsActive() {
			n++
		}
	}
	return n
}

// TotalReadings returns the number of readings stored since construction.
func (s *System) TotalReadings() int64 { return s.totalReadings.Load() }

// AlertsGenerated returns the number of alerts raised since construction,
// including alerts later dropped from the log.
func (s *System) AlertsGenerated() int64 { return s.alertsGenerated.Load() }

// IsRunning reports whether the loops have been started and not stopped.
func (s *System) IsRunning() bool { return s.running.Load() }

// Sensor returns a snapshot of sensor id.
func (s *System) Sensor(id int) (sensor.Config, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return sensor.Config{}, false
	}
	return e.sensor.Config(), true
}

// Sensors returns snapshots of every sensor in registration order.
func (s *System) Sensors() []sensor.Config {
	entries := s.snapshot()
	out := make([]sensor.Config, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.sensor.Config())
	}
	return out
}

// LatestReading returns the newest reading of sensor id. It reports false
// for an unknown sensor or an empty buffer.
func (s *System) LatestReading(id int) (reading.Reading, bool) {
	e, ok := s.lookup(id)
	if !ok {
		return reading.Reading{}, false
	}
	return e.buf.Latest()
}

// RecentReadings returns up to n of the newest readings of sensor id, oldest
// first. An unknown sensor yields nil.
func (s *System) RecentReadings(id, n int) []reading.Reading {
	e, ok := s.lookup(id)
	if !ok {
		return nil
	}
	return e.buf.Recent(n)
}

// BufferCapacity returns the per-sensor reading window size.
func (s *System) BufferCapacity() int { return s.cfg.BufferCapacity }

// Alerts returns a copy of the alert log, oldest first.
func (s *System) Alerts() []string { return s.alerts.snapshot() }

// MemoryStatus samples the memory monitor.
func (s *System) MemoryStatus(ctx context.Context) memory.StatusInfo {
	return s.monitor.Sample(ctx)
}

// ReclamationRequests returns the number of reclamation requests issued.
func (s *System) ReclamationRequests() int64 { return s.monitor.ReclamationRequests() }

// PoolStats returns the reading pool counters, or nil without a pool.
func (s *System) PoolStats() *reading.PoolStats {
	if s.pool == nil {
		return nil
	}
	st := s.pool.Stats()
	return &st
}

// newReading stores a sample in e's buffer and returns the stored value.
func (s *System) newReading(e *entry, v float32) reading.Reading {
	id, typ := e.sensor.ID(), e.sensor.Type()
	if s.pool == nil {
		r := reading.New(id, typ, v)
		e.buf.Push(*r)
		return *r
	}
	r := s.pool.Acquire(id, typ, v)
	rec := *r
	s.pool.Release(r)
	e.buf.Push(rec)
	return rec
}

// raiseAlert records an out-of-range value.
func (s *System) raiseAlert(sn *sensor.Sensor, v float32) {
	msg := fmt.Sprintf("ALERT: %s out of normal range [%.1f-%.1f]: %.2f",
		sn.Type(), sn.MinThreshold(), sn.MaxThreshold(), v)
	if dropped := s.alerts.add(msg); dropped > 0 {
		s.logger.Debug("alert log trimmed", "dropped", dropped)
	}
	s.alertsGenerated.Add(1)
	s.logger.Warn(msg, "sensor_id", sn.ID())
}
