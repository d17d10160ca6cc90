package station

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/ecomonitor/internal/memory"
	"github.com/jamesprial/ecomonitor/internal/reading"
	"github.com/jamesprial/ecomonitor/internal/safety"
	"github.com/jamesprial/ecomonitor/internal/sensor"
	"github.com/jamesprial/ecomonitor/internal/tools"
)

const (
	toolNameStatus       = "station_status"
	toolNameSensorList   = "sensor_list"
	toolNameSensorLatest = "sensor_latest"
	toolNameSensorRecent = "sensor_recent"
	toolNameAlertsList   = "alerts_list"
	toolNameMemory       = "memory_status"
	toolNameStart        = "station_start"
	toolNameStop         = "station_stop"

	defaultRecentCount = 20
)

// Station is the read and control surface the MCP tools and the HTTP API
// operate on.
type Station interface {
	Status(ctx context.Context) StatusReport
	Sensors() []sensor.Config
	Sensor(id int) (sensor.Config, bool)
	LatestReading(id int) (reading.Reading, bool)
	RecentReadings(id, n int) []reading.Reading
	BufferCapacity() int
	Alerts() []string
	MemoryStatus(ctx context.Context) memory.StatusInfo
	IsRunning() bool
	Start(ctx context.Context) error
	Stop() FinalStats
}

var _ Station = (*System)(nil)

// DestructiveTools lists the tools that require a confirmation token.
var DestructiveTools = []string{toolNameStop}

// StationTools returns the MCP tool registrations for st. station_stop is
// guarded by confirm.
func StationTools(st Station, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		stationStatus(st, audit),
		sensorList(st, audit),
		sensorLatest(st, audit),
		sensorRecent(st, audit),
		alertsList(st, audit),
		memoryStatus(st, audit),
		stationStart(st, audit),
		stationStop(st, confirm, audit),
	}
}

func stationStatus(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameStatus,
		mcp.WithDescription("Show the station's running state, reading and alert totals, memory pressure, and per-sensor latest values."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		report := st.Status(ctx)
		tools.LogAudit(audit, toolNameStatus, nil, "ok", start)
		return tools.JSONResult(report), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func sensorList(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameSensorList,
		mcp.WithDescription("List registered sensors with their thresholds, active flag and value source."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		sensors := st.Sensors()
		tools.LogAudit(audit, toolNameSensorList, nil, "ok", start)
		return tools.JSONResult(sensors), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func sensorLatest(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameSensorLatest,
		mcp.WithDescription("Get the newest reading of one sensor."),
		mcp.WithNumber("sensor_id",
			mcp.Required(),
			mcp.Description("Sensor id as shown by sensor_list"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		id := req.GetInt("sensor_id", -1)
		params := map[string]any{"sensor_id": id}

		if _, ok := st.Sensor(id); !ok {
			tools.LogAudit(audit, toolNameSensorLatest, params, "error: unknown sensor", start)
			return tools.Errorf("unknown sensor %d", id), nil
		}
		r, ok := st.LatestReading(id)
		if !ok {
			tools.LogAudit(audit, toolNameSensorLatest, params, "no data", start)
			return mcp.NewToolResultText(fmt.Sprintf("sensor %d has no readings yet", id)), nil
		}

		tools.LogAudit(audit, toolNameSensorLatest, params, "ok", start)
		return tools.JSONResult(r), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func sensorRecent(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameSensorRecent,
		mcp.WithDescription("Get the most recent readings of one sensor, oldest first."),
		mcp.WithNumber("sensor_id",
			mcp.Required(),
			mcp.Description("Sensor id as shown by sensor_list"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of readings to return (default 20, capped at the buffer size)"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		id := req.GetInt("sensor_id", -1)
		count := req.GetInt("count", defaultRecentCount)
		params := map[string]any{"sensor_id": id, "count": count}

		if _, ok := st.Sensor(id); !ok {
			tools.LogAudit(audit, toolNameSensorRecent, params, "error: unknown sensor", start)
			return tools.Errorf("unknown sensor %d", id), nil
		}
		if count <= 0 {
			tools.LogAudit(audit, toolNameSensorRecent, params, "error: invalid count", start)
			return tools.ErrorResult("count must be positive"), nil
		}
		count = min(count, st.BufferCapacity())

		readings := st.RecentReadings(id, count)
		tools.LogAudit(audit, toolNameSensorRecent, params, "ok", start)
		return tools.JSONResult(readings), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func alertsList(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameAlertsList,
		mcp.WithDescription("List alerts currently held in the alert log, oldest first. The log is capped and is cleared under critical memory pressure."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		alerts := st.Alerts()
		tools.LogAudit(audit, toolNameAlertsList, nil, "ok", start)
		return tools.JSONResult(alerts), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func memoryStatus(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameMemory,
		mcp.WithDescription("Sample memory usage and report the pressure band (OK, WARNING or CRITICAL)."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		info := st.MemoryStatus(ctx)
		tools.LogAudit(audit, toolNameMemory, nil, "ok", start)
		return tools.JSONResult(info), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func stationStart(st Station, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameStart,
		mcp.WithDescription("Start the collection and memory supervision loops. Has no effect when already running."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		if err := st.Start(ctx); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				tools.LogAudit(audit, toolNameStart, nil, "already running", start)
				return mcp.NewToolResultText("station is already running"), nil
			}
			tools.LogAudit(audit, toolNameStart, nil, "error: "+err.Error(), start)
			return tools.ErrorResult(err.Error()), nil
		}
		tools.LogAudit(audit, toolNameStart, nil, "ok", start)
		return mcp.NewToolResultText("station started"), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func stationStop(st Station, confirm *safety.ConfirmationTracker, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool(toolNameStop,
		mcp.WithDescription("Stop both station loops and report final statistics. Requires confirmation."),
		mcp.WithString("confirmation_token",
			mcp.Description("Token from a previous call; omit to request one"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		token := req.GetString("confirmation_token", "")
		params := map[string]any{"confirmation_token": token != ""}

		if !st.IsRunning() {
			tools.LogAudit(audit, toolNameStop, params, "not running", start)
			return mcp.NewToolResultText("station is not running"), nil
		}

		if confirm != nil && confirm.NeedsConfirmation(toolNameStop) {
			if token == "" {
				tools.LogAudit(audit, toolNameStop, params, "confirmation requested", start)
				return tools.ConfirmPrompt(confirm, toolNameStop, "station",
					"This stops sensor collection and memory supervision. Buffered readings are kept."), nil
			}
			if !confirm.Confirm(toolNameStop, token) {
				tools.LogAudit(audit, toolNameStop, params, "error: invalid token", start)
				return tools.ErrorResult("invalid or expired confirmation token"), nil
			}
		}

		stats := st.Stop()
		tools.LogAudit(audit, toolNameStop, params, "ok", start)
		return tools.JSONResult(stats), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler), Guarded: true}
}
