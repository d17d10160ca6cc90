package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jamesprial/ecomonitor/internal/safety"
	"github.com/jamesprial/ecomonitor/internal/station"
)

// SurfaceHTTP tags audit entries written by the HTTP API.
const SurfaceHTTP = "http"

const defaultReadingCount = 20

// actionStop shares its name with the MCP tool so one tracker guards both.
const actionStop = "station_stop"

type handlers struct {
	st      station.Station
	audit   *safety.AuditLogger
	confirm *safety.ConfirmationTracker
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.Status(c.Request.Context()))
}

func (h *handlers) sensors(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.Sensors())
}

// sensorID parses the :id parameter and checks that the sensor exists. On
// failure it writes the error response and reports false.
func (h *handlers) sensorID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sensor id"})
		return 0, false
	}
	if _, ok := h.st.Sensor(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sensor"})
		return 0, false
	}
	return id, true
}

func (h *handlers) sensor(c *gin.Context) {
	id, ok := h.sensorID(c)
	if !ok {
		return
	}
	cfg, _ := h.st.Sensor(id)
	c.JSON(http.StatusOK, cfg)
}

func (h *handlers) latest(c *gin.Context) {
	id, ok := h.sensorID(c)
	if !ok {
		return
	}
	r, ok := h.st.LatestReading(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no readings"})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *handlers) readings(c *gin.Context) {
	id, ok := h.sensorID(c)
	if !ok {
		return
	}
	n := defaultReadingCount
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = v
	}
	n = min(n, h.st.BufferCapacity())
	c.JSON(http.StatusOK, h.st.RecentReadings(id, n))
}

func (h *handlers) alerts(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.Alerts())
}

func (h *handlers) memory(c *gin.Context) {
	c.JSON(http.StatusOK, h.st.MemoryStatus(c.Request.Context()))
}

func (h *handlers) start(c *gin.Context) {
	start := time.Now()
	err := h.st.Start(c.Request.Context())
	switch {
	case errors.Is(err, station.ErrAlreadyRunning):
		h.logAudit("station_start", "already running", start)
		c.JSON(http.StatusOK, gin.H{"warning": "station already running"})
	case errors.Is(err, station.ErrLoopsStillRunning):
		h.logAudit("station_start", "previous loops still running", start)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logAudit("station_start", "error: "+err.Error(), start)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logAudit("station_start", "ok", start)
		c.JSON(http.StatusOK, gin.H{"status": "started"})
	}
}

// stop requires a confirmation_token query parameter when a tracker guards
// station_stop. A request without one is answered 428 with a fresh token.
func (h *handlers) stop(c *gin.Context) {
	start := time.Now()
	if !h.st.IsRunning() {
		h.logAudit(actionStop, "not running", start)
		c.JSON(http.StatusOK, gin.H{"warning": "station not running"})
		return
	}

	if h.confirm != nil && h.confirm.NeedsConfirmation(actionStop) {
		token := c.Query("confirmation_token")
		if token == "" {
			h.logAudit(actionStop, "confirmation requested", start)
			c.JSON(http.StatusPreconditionRequired, gin.H{
				"message":            "stopping halts collection and memory supervision; repeat the request with confirmation_token",
				"confirmation_token": h.confirm.RequestConfirmation(actionStop, "station"),
			})
			return
		}
		if !h.confirm.Confirm(actionStop, token) {
			h.logAudit(actionStop, "error: invalid token", start)
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired confirmation token"})
			return
		}
	}

	stats := h.st.Stop()
	if !stats.Stopped {
		h.logAudit(actionStop, "not running", start)
		c.JSON(http.StatusOK, gin.H{"warning": "station not running"})
		return
	}
	h.logAudit(actionStop, "ok", start)
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) logAudit(action, result string, start time.Time) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Log(safety.AuditEntry{
		Timestamp: start,
		Surface:   SurfaceHTTP,
		Tool:      action,
		Result:    result,
		Duration:  time.Since(start),
	})
}
