package reading

import "sync"

// PoolStats is a point-in-time view of the pool's bookkeeping.
type PoolStats struct {
	Available int `json:"available"`
	Created   int `json:"created"`
	Reused    int `json:"reused"`
	MaxSize   int `json:"max_size"`
}

// ReuseRatio returns Reused as a percentage of Created, or 0 when nothing has
// been created.
func (s PoolStats) ReuseRatio() float64 {
	if s.Created == 0 {
		return 0
	}
	return float64(s.Reused) * 100 / float64(s.Created)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPrealloc pre-creates up to n readings (capped at the pool's max size)
// so the first acquisitions do not allocate.
func WithPrealloc(n int) PoolOption {
	return func(p *Pool) { p.prealloc = n }
}

// Pool recycles Reading instances to cut allocation churn. At most maxSize
// instances are ever counted as created; beyond that, Acquire hands out
// temporary readings the pool does not track. The pool is an optimisation
// only: callers must behave identically with plain New allocations.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	free     []*Reading
	maxSize  int
	created  int
	reused   int
	prealloc int
}

// NewPool returns a Pool bounded by maxSize. A non-positive maxSize yields a
// pool that never retains anything.
func NewPool(maxSize int, opts ...PoolOption) *Pool {
	if maxSize < 0 {
		maxSize = 0
	}
	p := &Pool{maxSize: maxSize}
	for _, opt := range opts {
		opt(p)
	}

	n := min(p.prealloc, maxSize)
	p.free = make([]*Reading, 0, maxSize)
	for i := 0; i < n; i++ {
		p.free = append(p.free, &Reading{})
		p.created++
	}
	return p
}

// Acquire returns a reading populated with the given fields, preferring a
// recycled instance.
func (p *Pool) Acquire(sensorID int, sensorType string, value float32) *Reading {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		r := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.reused++
		p.mu.Unlock()
		r.reset(sensorID, sensorType, value)
		return r
	}
	if p.created < p.maxSize {
		p.created++
	}
	// Once the cap is reached the reading is temporary and untracked.
	p.mu.Unlock()
	return New(sensorID, sensorType, value)
}

// Release returns r to the free list when there is room; otherwise r is
// dropped. A nil reading is ignored.
func (p *Pool) Release(r *Reading) {
	if r == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.maxSize {
		p.free = append(p.free, r)
	}
}

// Stats returns the current counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Available: len(p.free),
		Created:   p.created,
		Reused:    p.reused,
		MaxSize:   p.maxSize,
	}
}
