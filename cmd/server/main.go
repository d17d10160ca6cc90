// Package main is the entry point for the ecomonitor station server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jamesprial/ecomonitor/internal/api"
	"github.com/jamesprial/ecomonitor/internal/config"
	"github.com/jamesprial/ecomonitor/internal/memory"
	"github.com/jamesprial/ecomonitor/internal/reading"
	"github.com/jamesprial/ecomonitor/internal/report"
	"github.com/jamesprial/ecomonitor/internal/safety"
	"github.com/jamesprial/ecomonitor/internal/sensor"
	"github.com/jamesprial/ecomonitor/internal/station"
	"github.com/jamesprial/ecomonitor/internal/thingspeak"
	"github.com/jamesprial/ecomonitor/internal/tools"
)

const (
	defaultConfigPath = "/config/config.yaml"
	serverName        = "ecomonitor"
	serverVersion     = "1.0.0"
)

func main() {
	cfg := loadConfig()
	config.ApplyEnvOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := newLogger(cfg.Logging, os.Stderr)

	if cfg.Memory.LimitBytes > 0 {
		debug.SetMemoryLimit(cfg.Memory.LimitBytes)
		log.Printf("runtime memory limit set to %d bytes", cfg.Memory.LimitBytes)
	}

	monitor := memory.NewMonitor(newProbe(cfg.Memory),
		memory.WithThresholds(cfg.Memory.WarningRatio, cfg.Memory.CriticalRatio),
		memory.WithReclaimAttempts(cfg.Memory.ReclaimAttempts, cfg.Memory.ReclaimPause.Std()),
		memory.WithLogger(logger),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []station.Option{
		station.WithLogger(logger),
		station.WithMonitor(monitor),
		station.WithMetrics(registry),
		station.WithShedFilter(safety.NewFilter(cfg.Station.ShedPatterns, cfg.Station.ProtectPatterns)),
	}
	if cfg.Pool.Enabled {
		pool := reading.NewPool(cfg.Pool.MaxSize, reading.WithPrealloc(cfg.Pool.Prealloc))
		opts = append(opts, station.WithPool(pool))
	}
	sys := station.New(station.FromConfig(cfg.Station), opts...)

	if err := registerSensors(sys, cfg); err != nil {
		log.Fatalf("failed to register sensors: %v", err)
	}

	// Open audit log writer if enabled.
	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		a, closer, err := safety.OpenAuditLog(cfg.Audit.LogPath)
		if err != nil {
			log.Printf("warning: could not open audit log %q: %v, audit logging disabled", cfg.Audit.LogPath, err)
		} else {
			auditLogger = a
			defer closer.Close()
		}
	}

	confirm := safety.NewConfirmationTracker(station.DestructiveTools)

	mcpServer := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	registrations := station.StationTools(sys, confirm, auditLogger)
	tools.RegisterAll(mcpServer, registrations)
	log.Printf("registered %d MCP tools (%d guarded)", len(registrations), len(tools.GuardedNames(registrations)))

	router := api.NewRouter(api.Options{
		Station:  sys,
		Confirm:  confirm,
		Audit:    auditLogger,
		Logger:   logger,
		MCP:      server.NewStreamableHTTPServer(mcpServer),
		Gatherer: registry,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := sys.Start(context.Background()); err != nil {
		log.Fatalf("failed to start station: %v", err)
	}

	reportCtx, stopReports := context.WithCancel(context.Background())
	go reportLoop(reportCtx, sys, cfg.Station.ReportInterval.Std(), os.Stdout)

	// Graceful shutdown on SIGINT / SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("ecomonitor listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-stop
	log.Println("shutting down...")
	stopReports()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}

	stats := sys.Stop()
	fmt.Fprintln(os.Stdout, report.RenderFinalStats(stats))
	log.Println("server stopped")
}

// loadConfig attempts to read the config file from the path specified by
// ECOMONITOR_CONFIG_PATH or the default /config/config.yaml. If the file
// cannot be read, DefaultConfig is returned.
func loadConfig() *config.Config {
	path := os.Getenv("ECOMONITOR_CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Printf("could not load config from %q (%v), using defaults", path, err)
		return config.DefaultConfig()
	}

	log.Printf("loaded config from %q", path)
	return cfg
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newProbe selects the memory probe named in the memory section.
func newProbe(cfg config.MemoryConfig) memory.Probe {
	limit := uint64(max(cfg.LimitBytes, 0))
	switch cfg.Probe {
	case "process":
		return &memory.ProcessProbe{Max: limit}
	case "procfs":
		return memory.NewProcfsProbe(cfg.Proc)
	default:
		return memory.RuntimeProbe{Max: limit}
	}
}

// registerSensors adds the profile's built-in sensors, then the sensors
// declared in the config file. ThingSpeak-backed sensors share one client.
func registerSensors(sys *station.System, cfg *config.Config) error {
	defs, err := sensor.Profile(cfg.Station.Profile)
	if err != nil {
		return err
	}
	for _, d := range defs {
		if err := sys.AddSensor(d.ID, d.Type, d.Min, d.Max); err != nil {
			return err
		}
	}

	var client *thingspeak.Client
	for _, s := range cfg.Sensors {
		var opts []sensor.Option
		if s.Source == "thingspeak" {
			if client == nil {
				if client, err = thingspeak.NewClient(cfg.ThingSpeak); err != nil {
					return err
				}
			}
			timeout := time.Duration(cfg.ThingSpeak.Timeout) * time.Second
			opts = append(opts, sensor.WithSource(sensor.NewRemote(client, s.Channel, s.Field, timeout)))
		}
		if err := sys.AddSensor(s.ID, s.Type, s.Min, s.Max, opts...); err != nil {
			return err
		}
	}
	return nil
}

// reportLoop writes a status panel to w every interval until ctx is done. A
// non-positive interval disables it.
func reportLoop(ctx context.Context, sys *station.System, interval time.Duration, w io.Writer) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintln(w, report.RenderStatus(sys.Status(ctx)))
		}
	}
}
