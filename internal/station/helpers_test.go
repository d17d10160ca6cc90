package station

import (
	"testing"
	"time"

	"github.com/jamesprial/ecomonitor/internal/memory"
	"github.com/jamesprial/ecomonitor/internal/sensor"
)

// testConfig returns a fast configuration with no pauses.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CollectionInterval = 5 * time.Millisecond
	cfg.MemoryInterval = 5 * time.Millisecond
	cfg.WarningPause = 0
	cfg.CriticalPause = 0
	cfg.HeartbeatInterval = 0
	cfg.BufferCapacity = 16
	return cfg
}

// newTestSystem builds a System over a SyntheticProbe with a 1 GiB ceiling
// and returns both. The monitor issues one reclamation hint per request.
func newTestSystem(t *testing.T, cfg Config, opts ...Option) (*System, *memory.SyntheticProbe) {
	t.Helper()
	probe := memory.NewSyntheticProbe(1 << 30)
	probe.SetRatio(0.10)
	mon := memory.NewMonitor(probe,
		memory.WithReclaimer(func() {}),
		memory.WithReclaimAttempts(1, 0),
	)
	s := New(cfg, append([]Option{WithMonitor(mon)}, opts...)...)
	return s, probe
}

// mustAddSensor registers a sensor or fails the test.
func mustAddSensor(t *testing.T, s *System, id int, typ string, min, max float32, opts ...sensor.Option) {
	t.Helper()
	if err := s.AddSensor(id, typ, min, max, opts...); err != nil {
		t.Fatalf("AddSensor(%d) error: %v", id, err)
	}
}

// setActive flips a registered sensor's active flag directly.
func setActive(t *testing.T, s *System, id int, active bool) {
	t.Helper()
	e, ok := s.lookup(id)
	if !ok {
		t.Fatalf("sensor %d not registered", id)
	}
	e.sensor.SetActive(active)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
