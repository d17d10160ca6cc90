// Package report renders station snapshots as human-readable panels for the
// periodic status log and the shutdown summary.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesprial/ecomonitor/internal/memory"
	"github.com/jamesprial/ecomonitor/internal/reading"
	"github.com/jamesprial/ecomonitor/internal/station"
)

var (
	colorTitle   = lipgloss.Color("#7AA2F7")
	colorOK      = lipgloss.Color("#9ECE6A")
	colorWarning = lipgloss.Color("#E0AF68")
	colorError   = lipgloss.Color("#F7768E")
	colorMuted   = lipgloss.Color("#565F89")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

const (
	markNormal   = "✓"
	markAbnormal = "!"
	noValue      = "N/A"
)

// RenderStatus renders a StatusReport: run totals, memory pressure, pool
// usage, one row per sensor, the newest alerts and buffer footprints.
func RenderStatus(r station.StatusReport) string {
	lines := []string{
		titleStyle.Render("ECOMONITOR STATION STATUS"),
		"",
		field("Uptime", formatUptime(r.Uptime)),
		field("Total readings", fmt.Sprintf("%d", r.TotalReadings)),
		field("Alerts generated", fmt.Sprintf("%d", r.AlertsGenerated)),
		field("Readings/sec", fmt.Sprintf("%.1f", r.ReadingsPerSecond)),
		field("Memory", statusStyle(r.Memory.Status).Render(r.Memory.String())),
		field("Reclamations", fmt.Sprintf("%d", r.Reclamations)),
		field("Sensors shed", fmt.Sprintf("%d", r.ShedEvents)),
		field("Pool", formatPool(r.Pool)),
	}
	if !r.Running {
		lines = append(lines, mutedStyle.Render("(station stopped)"))
	}

	lines = append(lines, "", sectionStyle.Render("SENSORS"))
	if len(r.Sensors) == 0 {
		lines = append(lines, mutedStyle.Render("  no sensors registered"))
	}
	for _, s := range r.Sensors {
		lines = append(lines, "  "+sensorRow(s))
	}

	if len(r.RecentAlerts) > 0 {
		lines = append(lines, "", sectionStyle.Render(fmt.Sprintf("RECENT ALERTS (%d in log)", r.AlertLogSize)))
		for _, a := range r.RecentAlerts {
			lines = append(lines, "  "+warnStyle.Render(a))
		}
	}

	lines = append(lines, "", sectionStyle.Render("BUFFER MEMORY"))
	for _, s := range r.Sensors {
		lines = append(lines, fmt.Sprintf("  Sensor %d: %d readings, ~%s", s.ID, s.Buffered, formatBytes(s.BufferBytes)))
	}

	return panelStyle.Render(strings.Join(lines, "\n"))
}

// RenderFinalStats renders the summary printed when the station stops.
func RenderFinalStats(f station.FinalStats) string {
	if !f.Stopped {
		return panelStyle.Render(warnStyle.Render("station was not running"))
	}
	lines := []string{
		titleStyle.Render("ECOMONITOR FINAL STATISTICS"),
		"",
		field("Total time", formatUptime(f.Elapsed)),
		field("Total readings", fmt.Sprintf("%d", f.TotalReadings)),
		field("Alerts generated", fmt.Sprintf("%d", f.AlertsGenerated)),
		field("Reclamations", fmt.Sprintf("%d", f.Reclamations)),
		field("Average rate", fmt.Sprintf("%.1f readings/sec", f.ReadingsPerSecond)),
		field("Pool", formatPool(f.Pool)),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func sensorRow(s station.SensorStatus) string {
	mark, value := warnStyle.Render(markAbnormal), noValue
	if s.Latest != nil {
		value = fmt.Sprintf("%.2f", s.Latest.Value)
		if s.LatestNormal {
			mark = okStyle.Render(markNormal)
		}
	}
	state := okStyle.Render("ACTIVE")
	if !s.Active {
		state = errorStyle.Render("INACTIVE")
	}
	return fmt.Sprintf("%s %s (ID:%d): %s %s [%.1f-%.1f] buffer %d/%d",
		mark, s.Type, s.ID, value, state, s.Min, s.Max, s.Buffered, s.Capacity)
}

func statusStyle(st memory.Status) lipgloss.Style {
	switch st {
	case memory.StatusCritical:
		return errorStyle
	case memory.StatusWarning:
		return warnStyle
	default:
		return okStyle
	}
}

func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d min %d s", secs/60, secs%60)
}

func formatPool(p *reading.PoolStats) string {
	if p == nil {
		return mutedStyle.Render("disabled")
	}
	return fmt.Sprintf("available %d, created %d, reused %d (%.1f%% reuse)",
		p.Available, p.Created, p.Reused, p.ReuseRatio())
}

func formatBytes(n int) string {
	const kib = 1024
	if n < kib {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KB", float64(n)/kib)
}
