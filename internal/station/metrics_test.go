package station

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jamesprial/ecomonitor/internal/sensor"
)

func Test_Metrics_TrackSystemCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, probe := newTestSystem(t, testConfig(), WithMetrics(reg))
	mustAddSensor(t, s, 1, "TEMPERATURE", 18, 26, sensor.WithSource(sensor.NewSequence(20, 30)))
	mustAddSensor(t, s, 2, "NOISE", 35, 55, sensor.WithSource(sensor.NewSequence(40, 40)))

	s.CollectOnce(context.Background())
	s.CollectOnce(context.Background())

	probe.SetRatio(0.95)
	s.SuperviseOnce(context.Background())

	expected := `
# HELP ecomonitor_alerts_total Total number of out-of-range alerts raised
# TYPE ecomonitor_alerts_total counter
ecomonitor_alerts_total 1
# HELP ecomonitor_readings_total Total number of sensor readings stored
# TYPE ecomonitor_readings_total counter
ecomonitor_readings_total 4
# HELP ecomonitor_reclamations_total Total number of memory reclamation requests
# TYPE ecomonitor_reclamations_total counter
ecomonitor_reclamations_total 1
# HELP ecomonitor_shed_events_total Total number of sensor deactivations caused by critical memory pressure
# TYPE ecomonitor_shed_events_total counter
ecomonitor_shed_events_total 1
# HELP ecomonitor_sensors_active Number of registered sensors currently sampled
# TYPE ecomonitor_sensors_active gauge
ecomonitor_sensors_active 2
# HELP ecomonitor_alert_log_size Number of alerts currently held in the alert log
# TYPE ecomonitor_alert_log_size gauge
ecomonitor_alert_log_size 0
# HELP ecomonitor_memory_status Memory pressure band (0 OK, 1 WARNING, 2 CRITICAL)
# TYPE ecomonitor_memory_status gauge
ecomonitor_memory_status 2
`
	names := []string{
		"ecomonitor_alerts_total",
		"ecomonitor_readings_total",
		"ecomonitor_reclamations_total",
		"ecomonitor_shed_events_total",
		"ecomonitor_sensors_active",
		"ecomonitor_alert_log_size",
		"ecomonitor_memory_status",
	}
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), names...); err != nil {
		t.Errorf("metrics mismatch:\n%v", err)
	}
}

func Test_Metrics_NilRegistryDoesNotPanic(t *testing.T) {
	s, _ := newTestSystem(t, testConfig())
	s.SuperviseOnce(context.Background())
}

func Test_Metrics_MemoryGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, probe := newTestSystem(t, testConfig(), WithMetrics(reg))
	probe.SetRatio(0.5)

	s.SuperviseOnce(context.Background())

	if got := testutil.ToFloat64(s.metrics.memoryRatio); got < 0.49 || got > 0.51 {
		t.Errorf("memory ratio gauge = %v, want ~0.5", got)
	}
	if got := testutil.ToFloat64(s.metrics.memoryUsed); got != float64(1<<29) {
		t.Errorf("memory used gauge = %v, want %v", got, float64(1<<29))
	}
	if got := testutil.ToFloat64(s.metrics.memoryStatus); got != 0 {
		t.Errorf("memory status gauge = %v, want 0", got)
	}
}
