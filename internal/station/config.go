package station

import (
	"time"

	"github.com/jamesprial/ecomonitor/internal/config"
)

// Config holds the loop cadences, alert-log limits and pressure reactions of
// a System.
type Config struct {
	CollectionInterval    time.Duration
	MemoryInterval        time.Duration
	BufferCapacity        int
	AlertCap              int
	AlertTrim             int
	WarningAlertLimit     int
	WarningAlertRetain    int
	WarningPause          time.Duration
	CriticalPause         time.Duration
	CollectionStopTimeout time.Duration
	MemoryStopTimeout     time.Duration
	HeartbeatInterval     time.Duration
	// ProgressEvery logs a progress line each time the reading total reaches
	// a multiple of it. Zero disables the line.
	ProgressEvery int64
}

const defaultProgressEvery = 100

// FromConfig converts the YAML station section.
func FromConfig(c config.StationConfig) Config {
	return Config{
		CollectionInterval:    c.CollectionInterval.Std(),
		MemoryInterval:        c.MemoryInterval.Std(),
		BufferCapacity:        c.BufferCapacity,
		AlertCap:              c.AlertCap,
		AlertTrim:             c.AlertTrim,
		WarningAlertLimit:     c.WarningAlertLimit,
		WarningAlertRetain:    c.WarningAlertRetain,
		WarningPause:          c.WarningPause.Std(),
		CriticalPause:         c.CriticalPause.Std(),
		CollectionStopTimeout: c.CollectionStopTimeout.Std(),
		MemoryStopTimeout:     c.MemoryStopTimeout.Std(),
		HeartbeatInterval:     c.HeartbeatInterval.Std(),
		ProgressEvery:         defaultProgressEvery,
	}
}

// DefaultConfig returns the station defaults: collect every second, check
// memory every five, keep 1000 readings per sensor and at most 100 alerts.
func DefaultConfig() Config {
	return FromConfig(config.DefaultConfig().Station)
}

// withDefaults fills unusable zero or negative values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CollectionInterval <= 0 {
		c.CollectionInterval = d.CollectionInterval
	}
	if c.MemoryInterval <= 0 {
		c.MemoryInterval = d.MemoryInterval
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = d.BufferCapacity
	}
	if c.AlertCap <= 0 {
		c.AlertCap = d.AlertCap
	}
	if c.AlertTrim <= 0 || c.AlertTrim > c.AlertCap {
		c.AlertTrim = (c.AlertCap + 1) / 2
	}
	if c.WarningAlertRetain > c.WarningAlertLimit {
		c.WarningAlertRetain = c.WarningAlertLimit
	}
	if c.CollectionStopTimeout <= 0 {
		c.CollectionStopTimeout = d.CollectionStopTimeout
	}
	if c.MemoryStopTimeout <= 0 {
		c.MemoryStopTimeout = d.MemoryStopTimeout
	}
	return c
}
