package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jamesprial/ecomonitor/internal/safety"
)

// SurfaceMCP tags audit entries written for MCP tool calls.
const SurfaceMCP = "mcp"

// JSONResult renders a station snapshot as indented JSON. A value that cannot
// be encoded yields an error result instead.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Errorf("encode result: %v", err)
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult reports a failed call. The result is flagged IsError so clients
// can tell it from data; the text carries an "error: " prefix.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError("error: " + msg)
}

// Errorf is ErrorResult with a format string.
func Errorf(format string, args ...any) *mcp.CallToolResult {
	return ErrorResult(fmt.Sprintf(format, args...))
}

// LogAudit appends an MCP-surface entry for one tool call. Nil audit means
// auditing is off.
func LogAudit(audit *safety.AuditLogger, toolName string, params map[string]any, result string, start time.Time) {
	if audit == nil {
		return
	}
	_ = audit.Log(safety.AuditEntry{
		Timestamp: start,
		Surface:   SurfaceMCP,
		Tool:      toolName,
		Params:    params,
		Result:    result,
		Duration:  time.Since(start),
	})
}

// ConfirmPrompt issues a single-use token for toolName on target and returns
// text telling the caller how to repeat the call before the token expires.
func ConfirmPrompt(confirm *safety.ConfirmationTracker, toolName, target, description string) *mcp.CallToolResult {
	token := confirm.RequestConfirmation(toolName, target)
	return mcp.NewToolResultText(fmt.Sprintf(
		"%s on %q needs confirmation.\n\n%s\n\nRepeat the call with confirmation_token=%q within %s. The token works once.",
		toolName, target, description, token, confirm.TTL(),
	))
}
