package station

import (
	"context"
	"time"

	"github.com/jamesprial/ecomonitor/internal/memory"
	"github.com/jamesprial/ecomonitor/internal/reading"
	"github.com/jamesprial/ecomonitor/internal/sensor"
)

const recentAlertCount = 3

// SensorStatus is one row of a StatusReport.
type SensorStatus struct {
	sensor.Config
	Latest       *reading.Reading `json:"latest,omitempty"`
	LatestNormal bool             `json:"latest_normal"`
	Buffered     int              `json:"buffered"`
	Capacity     int              `json:"capacity"`
	// BufferBytes estimates the memory held by the buffered readings.
	BufferBytes int `json:"buffer_bytes"`
}

// StatusReport is a point-in-time view of the whole station.
type StatusReport struct {
	Running           bool               `json:"running"`
	StartedAt         time.Time          `json:"started_at"`
	Uptime            time.Duration      `json:"-"`
	UptimeSeconds     float64            `json:"uptime_seconds"`
	TotalReadings     int64              `json:"total_readings"`
	AlertsGenerated   int64              `json:"alerts_generated"`
	ReadingsPerSecond float64            `json:"readings_per_second"`
	Memory            memory.StatusInfo  `json:"memory"`
	Reclamations      int64              `json:"reclamations"`
	ShedEvents        int64              `json:"shed_events"`
	Pool              *reading.PoolStats `json:"pool,omitempty"`
	Sensors           []SensorStatus     `json:"sensors"`
	AlertLogSize      int                `json:"alert_log_size"`
	RecentAlerts      []string           `json:"recent_alerts"`
}

// FinalStats summarises a run when the System stops.
type FinalStats struct {
	// Stopped is false when Stop was called on a System that was not running.
	Stopped           bool               `json:"stopped"`
	Elapsed           time.Duration      `json:"-"`
	ElapsedSeconds    float64            `json:"elapsed_seconds"`
	TotalReadings     int64              `json:"total_readings"`
	AlertsGenerated   int64              `json:"alerts_generated"`
	Reclamations      int64              `json:"reclamations"`
	ReadingsPerSecond float64            `json:"readings_per_second"`
	Pool              *reading.PoolStats `json:"pool,omitempty"`
}

// runWindow returns the start of the current or last run, how long it has
// lasted, and how many readings it has stored.
func (s *System) runWindow() (started time.Time, elapsed time.Duration, readings int64) {
	s.timesMu.RLock()
	started, stopped, base := s.startedAt, s.stoppedAt, s.baseReadings
	s.timesMu.RUnlock()

	if started.IsZero() {
		return started, 0, 0
	}
	end := stopped
	if end.IsZero() {
		end = s.now()
	}
	return started, end.Sub(started), s.totalReadings.Load() - base
}

func perSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// Status collects a StatusReport. It samples the memory monitor but does not
// wait on either loop.
func (s *System) Status(ctx context.Context) StatusReport {
	started, elapsed, runReadings := s.runWindow()

	entries := s.snapshot()
	rows := make([]SensorStatus, 0, len(entries))
	for _, e := range entries {
		cfg := e.sensor.Config()
		row := SensorStatus{
			Config:   cfg,
			Buffered: e.buf.Len(),
			Capacity: e.buf.Cap(),
		}
		row.BufferBytes = row.Buffered * (&reading.Reading{SensorType: cfg.Type}).ApproximateSize()
		if r, ok := e.buf.Latest(); ok {
			row.Latest = &r
			row.LatestNormal = cfg.IsNormal(r.Value)
		}
		rows = append(rows, row)
	}

	return StatusReport{
		Running:           s.running.Load(),
		StartedAt:         started,
		Uptime:            elapsed,
		UptimeSeconds:     elapsed.Seconds(),
		TotalReadings:     s.totalReadings.Load(),
		AlertsGenerated:   s.alertsGenerated.Load(),
		ReadingsPerSecond: perSecond(runReadings, elapsed),
		Memory:            s.monitor.Sample(ctx),
		Reclamations:      s.monitor.ReclamationRequests(),
		ShedEvents:        s.shedEvents.Load(),
		Pool:              s.PoolStats(),
		Sensors:           rows,
		AlertLogSize:      s.alerts.len(),
		RecentAlerts:      s.alerts.newest(recentAlertCount),
	}
}

func (s *System) finalStats(stopped bool) FinalStats {
	_, elapsed, runReadings := s.runWindow()
	return FinalStats{
		Stopped:           stopped,
		Elapsed:           elapsed,
		ElapsedSeconds:    elapsed.Seconds(),
		TotalReadings:     s.totalReadings.Load(),
		AlertsGenerated:   s.alertsGenerated.Load(),
		Reclamations:      s.monitor.ReclamationRequests(),
		ReadingsPerSecond: perSecond(runReadings, elapsed),
		Pool:              s.PoolStats(),
	}
}
