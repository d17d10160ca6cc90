// Package memory classifies memory pressure into OK, WARNING and CRITICAL
// bands and issues advisory reclamation requests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status is a memory pressure band.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
)

// String returns "OK", "WARNING" or "CRITICAL".
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalJSON encodes the status by name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Usage is a raw probe reading in bytes. Max is the ceiling the thresholds
// are computed against.
type Usage struct {
	Used  uint64
	Total uint64
	Max   uint64
	Free  uint64
}

// Probe reports current memory usage.
type Probe interface {
	Read(ctx context.Context) (Usage, error)
}

// StatusInfo is one classified sample. It is a transient value and is never
// retained beyond the latest sample.
type StatusInfo struct {
	Status     Status    `json:"status"`
	UsedBytes  uint64    `json:"used_bytes"`
	TotalBytes uint64    `json:"total_bytes"`
	MaxBytes   uint64    `json:"max_bytes"`
	FreeBytes  uint64    `json:"free_bytes"`
	SampledAt  time.Time `json:"sampled_at"`
}

// UsagePercent returns used as a percentage of total, or 0 when total is
// unknown.
func (i StatusInfo) UsagePercent() float64 {
	if i.TotalBytes == 0 {
		return 0
	}
	return float64(i.UsedBytes) / float64(i.TotalBytes) * 100
}

// MaxRatio returns used as a fraction of max, the figure the thresholds are
// applied to.
func (i StatusInfo) MaxRatio() float64 {
	if i.MaxBytes == 0 {
		return 0
	}
	return float64(i.UsedBytes) / float64(i.MaxBytes)
}

const mib = 1024 * 1024

// String formats i as "WARNING - used 12.00 MB (80.0%), free 3.00 MB".
func (i StatusInfo) String() string {
	return fmt.Sprintf("%s - used %.2f MB (%.1f%%), free %.2f MB",
		i.Status, float64(i.UsedBytes)/mib, i.UsagePercent(), float64(i.FreeBytes)/mib)
}
