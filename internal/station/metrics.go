package station

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jamesprial/ecomonitor/internal/memory"
)

// metrics exposes System state to Prometheus. Counters are read from the
// System's own atomics so the exported values never drift from the
// accessors.
type metrics struct {
	memoryUsed   prometheus.Gauge
	memoryRatio  prometheus.Gauge
	memoryStatus prometheus.Gauge
}

// newMetrics registers the station collectors with reg. A nil reg creates
// the collectors without registering them.
func newMetrics(reg prometheus.Registerer, s *System) *metrics {
	f := promauto.With(reg)

	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "ecomonitor_readings_total",
		Help: "Total number of sensor readings stored",
	}, func() float64 { return float64(s.totalReadings.Load()) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "ecomonitor_alerts_total",
		Help: "Total number of out-of-range alerts raised",
	}, func() float64 { return float64(s.alertsGenerated.Load()) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "ecomonitor_reclamations_total",
		Help: "Total number of memory reclamation requests",
	}, func() float64 { return float64(s.monitor.ReclamationRequests()) })

	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "ecomonitor_shed_events_total",
		Help: "Total number of sensor deactivations caused by critical memory pressure",
	}, func() float64 { return float64(s.shedEvents.Load()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ecomonitor_sensors_active",
		Help: "Number of registered sensors currently sampled",
	}, func() float64 { return float64(s.activeSensors()) })

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ecomonitor_alert_log_size",
		Help: "Number of alerts currently held in the alert log",
	}, func() float64 { return float64(s.alerts.len()) })

	return &metrics{
		memoryUsed: f.NewGauge(prometheus.GaugeOpts{
			Name: "ecomonitor_memory_used_bytes",
			Help: "Memory in use at the last supervision tick",
		}),
		memoryRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "ecomonitor_memory_usage_ratio",
			Help: "Memory in use as a fraction of the probe ceiling",
		}),
		memoryStatus: f.NewGauge(prometheus.GaugeOpts{
			Name: "ecomonitor_memory_status",
			Help: "Memory pressure band (0 OK, 1 WARNING, 2 CRITICAL)",
		}),
	}
}

func (m *metrics) observeMemory(info memory.StatusInfo) {
	m.memoryUsed.Set(float64(info.UsedBytes))
	m.memoryRatio.Set(info.MaxRatio())
	m.memoryStatus.Set(float64(info.Status))
}
