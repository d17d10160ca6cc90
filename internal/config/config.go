// Package config provides configuration loading, defaults, and validation for
// the ecomonitor station.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("500ms", "2s") in YAML. A bare integer is interpreted as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if parsed, err := time.ParseDuration(value.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	secs, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ServerConfig holds network settings for the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=1,lte=65535"`
}

// StationConfig controls the two station loops, the alert log, and the
// memory-pressure reactions.
type StationConfig struct {
	CollectionInterval    Duration `yaml:"collection_interval" validate:"gt=0"`
	MemoryInterval        Duration `yaml:"memory_interval" validate:"gt=0"`
	BufferCapacity        int      `yaml:"buffer_capacity" validate:"gte=1"`
	AlertCap              int      `yaml:"alert_cap" validate:"gte=1"`
	AlertTrim             int      `yaml:"alert_trim" validate:"gte=1,ltefield=AlertCap"`
	WarningAlertLimit     int      `yaml:"warning_alert_limit" validate:"gte=0"`
	WarningAlertRetain    int      `yaml:"warning_alert_retain" validate:"gte=0,ltefield=WarningAlertLimit"`
	WarningPause          Duration `yaml:"warning_pause" validate:"gte=0"`
	CriticalPause         Duration `yaml:"critical_pause" validate:"gte=0"`
	CollectionStopTimeout Duration `yaml:"collection_stop_timeout" validate:"gt=0"`
	MemoryStopTimeout     Duration `yaml:"memory_stop_timeout" validate:"gt=0"`
	HeartbeatInterval     Duration `yaml:"heartbeat_interval" validate:"gte=0"`
	ReportInterval        Duration `yaml:"report_interval" validate:"gte=0"`
	ShedPatterns          []string `yaml:"shed_patterns"`
	ProtectPatterns       []string `yaml:"protect_patterns"`
	// Profile selects the built-in sensor set registered before any sensors
	// listed under the top-level sensors key.
	Profile string `yaml:"profile" validate:"oneof=default demo stress none"`
}

// PoolConfig controls reading reuse.
type PoolConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxSize  int  `yaml:"max_size" validate:"gte=1"`
	Prealloc int  `yaml:"prealloc" validate:"gte=0"`
}

// MemoryConfig selects the memory probe and the pressure thresholds.
type MemoryConfig struct {
	Probe           string   `yaml:"probe" validate:"oneof=runtime process procfs"`
	WarningRatio    float64  `yaml:"warning_ratio" validate:"gt=0,ltfield=CriticalRatio"`
	CriticalRatio   float64  `yaml:"critical_ratio" validate:"gt=0,lte=1"`
	ReclaimAttempts int      `yaml:"reclaim_attempts" validate:"gte=1"`
	ReclaimPause    Duration `yaml:"reclaim_pause" validate:"gte=0"`
	// LimitBytes, when non-zero, is installed as the Go runtime soft memory
	// limit and used as the maximum for the runtime probe.
	LimitBytes int64  `yaml:"limit_bytes" validate:"gte=0"`
	Proc       string `yaml:"proc"`
}

// ThingSpeakConfig holds connection details for the ThingSpeak read API.
type ThingSpeakConfig struct {
	URL    string `yaml:"url" validate:"required,url"`
	APIKey string `yaml:"api_key"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout       int     `yaml:"timeout" validate:"gte=0"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"gt=0"`
	Burst         int     `yaml:"burst" validate:"gte=1"`
}

// SensorConfig declares one sensor registered at startup.
type SensorConfig struct {
	ID      int     `yaml:"id" validate:"gte=0"`
	Type    string  `yaml:"type" validate:"required"`
	Min     float32 `yaml:"min" validate:"ltefield=Max"`
	Max     float32 `yaml:"max"`
	Source  string  `yaml:"source" validate:"omitempty,oneof=simulated thingspeak"`
	Channel int     `yaml:"channel" validate:"required_if=Source thingspeak"`
	Field   int     `yaml:"field" validate:"required_if=Source thingspeak,lte=8"`
}

// AuditConfig controls audit logging of tool invocations.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Config is the top-level configuration structure for the ecomonitor server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Station    StationConfig    `yaml:"station"`
	Pool       PoolConfig       `yaml:"pool"`
	Memory     MemoryConfig     `yaml:"memory"`
	ThingSpeak ThingSpeakConfig `yaml:"thingspeak"`
	Sensors    []SensorConfig   `yaml:"sensors" validate:"dive"`
	Audit      AuditConfig      `yaml:"audit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Keys absent from the file keep their DefaultConfig values. On error, nil is
// returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with the station's default
// values. Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Station: StationConfig{
			CollectionInterval:    Duration(time.Second),
			MemoryInterval:        Duration(5 * time.Second),
			BufferCapacity:        1000,
			AlertCap:              100,
			AlertTrim:             50,
			WarningAlertLimit:     50,
			WarningAlertRetain:    25,
			WarningPause:          Duration(500 * time.Millisecond),
			CriticalPause:         Duration(2 * time.Second),
			CollectionStopTimeout: Duration(2 * time.Second),
			MemoryStopTimeout:     Duration(time.Second),
			HeartbeatInterval:     Duration(30 * time.Second),
			ReportInterval:        Duration(10 * time.Second),
			ShedPatterns:          []string{"NOISE"},
			Profile:               "default",
		},
		Pool: PoolConfig{
			Enabled:  true,
			MaxSize:  200,
			Prealloc: 20,
		},
		Memory: MemoryConfig{
			Probe:           "runtime",
			WarningRatio:    0.75,
			CriticalRatio:   0.90,
			ReclaimAttempts: 3,
			ReclaimPause:    Duration(50 * time.Millisecond),
			Proc:            "/proc",
		},
		ThingSpeak: ThingSpeakConfig{
			URL:           "https://api.thingspeak.com",
			Timeout:       4,
			RatePerSecond: 1,
			Burst:         1,
		},
		Audit: AuditConfig{
			Enabled: false,
			LogPath: "/config/audit.log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - ECOMONITOR_THINGSPEAK_API_KEY overrides cfg.ThingSpeak.APIKey
//   - ECOMONITOR_PORT overrides cfg.Server.Port (ignored when not an integer)
//   - ECOMONITOR_MEMORY_PROBE overrides cfg.Memory.Probe
//   - ECOMONITOR_LOG_LEVEL overrides cfg.Logging.Level
func ApplyEnvOverrides(cfg *Config) {
	if key := os.Getenv("ECOMONITOR_THINGSPEAK_API_KEY"); key != "" {
		cfg.ThingSpeak.APIKey = key
	}
	if port := os.Getenv("ECOMONITOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if probe := os.Getenv("ECOMONITOR_MEMORY_PROBE"); probe != "" {
		cfg.Memory.Probe = probe
	}
	if level := os.Getenv("ECOMONITOR_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// validate is shared; validator caches struct metadata per instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags and cross-field rules. Sensor
// ids must also be unique.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[int]struct{}, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("config: duplicate sensor id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
