// Package ring provides a fixed-capacity circular buffer that overwrites its
// oldest entry once full.
package ring

import (
	"errors"
	"sync"
)

// ErrInvalidCapacity is returned by New when the requested capacity is not
// positive.
var ErrInvalidCapacity = errors.New("ring: capacity must be greater than zero")

// RingBuffer is a thread-safe circular store of at most Cap() items. All
// operations on one instance are serialised by a single mutex; separate
// instances never contend with each other.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // oldest element
	tail     int // next write slot
	size     int
	capacity int
}

// New returns an empty RingBuffer holding at most capacity items.
func New[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}, nil
}

// Push stores item as the newest element. When the buffer is full the oldest
// element is overwritten.
func (r *RingBuffer[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.tail] = item
	if r.size == r.capacity {
		r.head = (r.head + 1) % r.capacity
	} else {
		r.size++
	}
	r.tail = (r.tail + 1) % r.capacity
}

// Latest returns the most recently pushed item. The second return value is
// false when nothing has been pushed yet.
func (r *RingBuffer[T]) Latest() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.items[(r.tail-1+r.capacity)%r.capacity], true
}

// Recent returns up to n of the newest items in chronological order (oldest
// of the window first). The result is a fresh slice; it is empty, not nil,
// when n <= 0 or the buffer is empty.
func (r *RingBuffer[T]) Recent(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}

	out := make([]T, n)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// Len returns the number of items currently stored.
func (r *RingBuffer[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return r.capacity
}

// IsFull reports whether the next Push will overwrite the oldest item.
func (r *RingBuffer[T]) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == r.capacity
}

// Clear drops every stored item. Capacity is unchanged.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head, r.tail, r.size = 0, 0, 0
}
