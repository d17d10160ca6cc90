// Package sensor models a single environmental sensor: its identity, its
// normal operating range, an activity flag that can be toggled at runtime, and
// the Source its values come from.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
)

// ErrInvalidThresholds is returned by New when min is greater than max.
var ErrInvalidThresholds = errors.New("sensor: min threshold exceeds max threshold")

// ErrNoReading reports that a Source had no value for this cycle. Callers
// treat it as "skip", never as a fault.
var ErrNoReading = errors.New("sensor: no reading")

// Source produces raw values for a sensor. Implementations must return
// promptly and must respect ctx.
type Source interface {
	Next(ctx context.Context, s *Sensor) (float32, error)
}

// Sensor is safe for concurrent use. Identity and thresholds never change
// after construction; only the active flag is mutable.
type Sensor struct {
	id     int
	typ    string
	min    float32
	max    float32
	active atomic.Bool
	source Source
	rnd    *rand.Rand
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithSource replaces the default simulated source.
func WithSource(src Source) Option {
	return func(s *Sensor) { s.source = src }
}

// WithRand seeds the default simulated source. It has no effect when
// WithSource is also given.
func WithRand(r *rand.Rand) Option {
	return func(s *Sensor) { s.rnd = r }
}

// New returns an active sensor. Without WithSource, values come from a
// Simulated source drifting around the middle of [min, max].
func New(id int, typ string, min, max float32, opts ...Option) (*Sensor, error) {
	if min > max {
		return nil, fmt.Errorf("%w: %s [%.2f > %.2f]", ErrInvalidThresholds, typ, min, max)
	}
	s := &Sensor{id: id, typ: typ, min: min, max: max}
	for _, opt := range opts {
		opt(s)
	}
	if s.source == nil {
		s.source = NewSimulated(s.rnd)
	}
	s.active.Store(true)
	return s, nil
}

func (s *Sensor) ID() int               { return s.id }
func (s *Sensor) Type() string          { return s.typ }
func (s *Sensor) MinThreshold() float32 { return s.min }
func (s *Sensor) MaxThreshold() float32 { return s.max }

// IsActive reports whether the sensor is currently sampled.
func (s *Sensor) IsActive() bool { return s.active.Load() }

// SetActive enables or disables sampling. Setting the current state again is
// a no-op.
func (s *Sensor) SetActive(active bool) { s.active.Store(active) }

func (s *Sensor) span() float32     { return s.max - s.min }
func (s *Sensor) midpoint() float32 { return (s.min + s.max) / 2 }

// IsNormal reports whether v lies within the inclusive range [min, max].
func (s *Sensor) IsNormal(v float32) bool {
	return v >= s.min && v <= s.max
}

// Sample returns the next value and true, or false when the sensor is
// inactive or the source had nothing to offer. Source errors are absorbed
// here; a failed sample is never fatal.
func (s *Sensor) Sample(ctx context.Context) (float32, bool) {
	if !s.active.Load() {
		return 0, false
	}
	v, err := s.source.Next(ctx, s)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0, false
	}
	return v, true
}

// Config is a read-only snapshot of a sensor.
type Config struct {
	ID     int        `json:"id"`
	Type   string     `json:"type"`
	Min    float32    `json:"min_threshold"`
	Max    float32    `json:"max_threshold"`
	Active bool       `json:"active"`
	Source SourceKind `json:"source"`
}

// Config returns a snapshot of s.
func (s *Sensor) Config() Config {
	return Config{
		ID:     s.id,
		Type:   s.typ,
		Min:    s.min,
		Max:    s.max,
		Active: s.active.Load(),
		Source: kindOf(s.source),
	}
}

// IsNormal reports whether v lies within the snapshot's range.
func (c Config) IsNormal(v float32) bool {
	return v >= c.Min && v <= c.Max
}
