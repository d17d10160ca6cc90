// Package reading defines the sensor reading record and a bounded pool that
// recycles reading instances.
package reading

import (
	"fmt"
	"time"
)

// Reading is one timestamped sample taken from a sensor. It is not modified
// after it has been handed to a ring buffer.
type Reading struct {
	Timestamp  time.Time `json:"timestamp"`
	SensorID   int       `json:"sensor_id"`
	SensorType string    `json:"sensor_type"`
	Value      float32   `json:"value"`
}

// New returns a Reading stamped with the current time.
func New(sensorID int, sensorType string, value float32) *Reading {
	r := &Reading{}
	r.reset(sensorID, sensorType, value)
	return r
}

func (r *Reading) reset(sensorID int, sensorType string, value float32) {
	r.Timestamp = time.Now()
	r.SensorID = sensorID
	r.SensorType = sensorType
	r.Value = value
}

// Approximate per-reading footprint: header, timestamp, value, id and string
// header, plus two bytes per type character and a fixed string overhead.
const (
	baseSize           = 36
	stringOverhead     = 40
	bytesPerTypeSymbol = 2
)

// ApproximateSize estimates the bytes held by r. It is a diagnostic figure
// only.
func (r *Reading) ApproximateSize() int {
	if r.SensorType == "" {
		return baseSize
	}
	return baseSize + len(r.SensorType)*bytesPerTypeSymbol + stringOverhead
}

// String formats r as "[15:04:05] Sensor 1 (TEMPERATURE): 21.50".
func (r *Reading) String() string {
	return fmt.Sprintf("[%s] Sensor %d (%s): %.2f",
		r.Timestamp.Format("15:04:05"), r.SensorID, r.SensorType, r.Value)
}
