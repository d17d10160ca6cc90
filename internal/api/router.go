// Package api exposes the station over HTTP: a JSON read and control API,
// the MCP endpoint, Prometheus metrics and a health check.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesprial/ecomonitor/internal/safety"
	"github.com/jamesprial/ecomonitor/internal/station"
)

// Options wires the router. Station is required; the rest are optional.
type Options struct {
	Station station.Station
	Audit   *safety.AuditLogger
	// Confirm, when set, guards POST /api/v1/station/stop with the same
	// single-use tokens as the station_stop tool.
	Confirm *safety.ConfirmationTracker
	Logger  *slog.Logger
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine.
func NewRouter(o Options) *gin.Engine {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(o.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if o.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.Gatherer, promhttp.HandlerOpts{})))
	}

	if o.MCP != nil {
		r.Any("/mcp", gin.WrapH(o.MCP))
	}

	h := &handlers{st: o.Station, audit: o.Audit, confirm: o.Confirm}
	v1 := r.Group("/api/v1")
	v1.GET("/status", h.status)
	v1.GET("/sensors", h.sensors)
	v1.GET("/sensors/:id", h.sensor)
	v1.GET("/sensors/:id/latest", h.latest)
	v1.GET("/sensors/:id/readings", h.readings)
	v1.GET("/alerts", h.alerts)
	v1.GET("/memory", h.memory)
	v1.POST("/station/start", h.start)
	v1.POST("/station/stop", h.stop)

	return r
}

// requestLogger logs one line per request at debug level, and at warn for
// server errors.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start))
	}
}
