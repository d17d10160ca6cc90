package sensor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SourceKind names where a sensor's values come from.
type SourceKind string

const (
	KindSimulated SourceKind = "simulated"
	KindRemote    SourceKind = "remote"
	KindSequence  SourceKind = "sequence"
	KindCustom    SourceKind = "custom"
)

func kindOf(src Source) SourceKind {
	switch src.(type) {
	case *Simulated:
		return KindSimulated
	case *Remote:
		return KindRemote
	case *Sequence:
		return KindSequence
	default:
		return KindCustom
	}
}

// ---------------------------------------------------------------------------
// Simulated
// ---------------------------------------------------------------------------

const (
	driftFraction    = 0.1
	envelopeFraction = 0.2
)

// Simulated is a bounded random walk. It starts at the midpoint of the
// sensor's range and moves by at most 5% of the range per sample, staying
// inside an envelope that extends 20% of the range past either threshold so
// that excursions out of range still happen.
type Simulated struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	current float32
	started bool
}

// NewSimulated returns a Simulated source. A nil r is replaced by a
// time-seeded generator.
func NewSimulated(r *rand.Rand) *Simulated {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulated{rnd: r}
}

// Next implements Source.
func (g *Simulated) Next(_ context.Context, s *Sensor) (float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		g.current = s.midpoint()
		g.started = true
	}

	span := s.span()
	g.current += (g.rnd.Float32() - 0.5) * span * driftFraction

	lo := s.min - envelopeFraction*span
	hi := s.max + envelopeFraction*span
	g.current = max(lo, min(hi, g.current))
	return g.current, nil
}

// ---------------------------------------------------------------------------
// Remote
// ---------------------------------------------------------------------------

// RemoteFetcher reads the latest value of one field from a remote telemetry
// channel.
type RemoteFetcher interface {
	LatestField(ctx context.Context, channel, field int) (float32, error)
}

// Remote pulls values from a RemoteFetcher. Every failure mode, including a
// timeout, becomes ErrNoReading.
type Remote struct {
	fetcher RemoteFetcher
	channel int
	field   int
	timeout time.Duration
}

// NewRemote returns a Remote source for the given channel field. A
// non-positive timeout leaves the deadline to ctx and the fetcher.
func NewRemote(f RemoteFetcher, channel, field int, timeout time.Duration) *Remote {
	return &Remote{fetcher: f, channel: channel, field: field, timeout: timeout}
}

// Next implements Source.
func (r *Remote) Next(ctx context.Context, _ *Sensor) (float32, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	v, err := r.fetcher.LatestField(ctx, r.channel, r.field)
	if err != nil {
		return 0, fmt.Errorf("%w: channel %d field %d: %v", ErrNoReading, r.channel, r.field, err)
	}
	if math.IsNaN(float64(v)) {
		return 0, ErrNoReading
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Sequence
// ---------------------------------------------------------------------------

// Sequence hands out queued values in order. Once drained it returns
// ErrNoReading, or keeps returning the last value when built with Repeat.
type Sequence struct {
	mu     sync.Mutex
	values []float32
	last   float32
	served bool
	repeat bool
}

// NewSequence returns a Sequence preloaded with values.
func NewSequence(values ...float32) *Sequence {
	return &Sequence{values: append([]float32(nil), values...)}
}

// Repeat makes q return its last value forever once drained.
func (q *Sequence) Repeat() *Sequence {
	q.mu.Lock()
	q.repeat = true
	q.mu.Unlock()
	return q
}

// Push appends values to the queue.
func (q *Sequence) Push(values ...float32) {
	q.mu.Lock()
	q.values = append(q.values, values...)
	q.mu.Unlock()
}

// Remaining returns the number of queued values.
func (q *Sequence) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.values)
}

// Next implements Source.
func (q *Sequence) Next(_ context.Context, _ *Sensor) (float32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.values) == 0 {
		if q.repeat && q.served {
			return q.last, nil
		}
		return 0, ErrNoReading
	}
	v := q.values[0]
	q.values = q.values[1:]
	q.last, q.served = v, true
	return v, nil
}
