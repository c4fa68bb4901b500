// Package queue provides the fixed-capacity FIFO rings shared between the
// protocol core and the callbacks that feed it.
package queue

import (
	"errors"
	"sync"
)

// Capacity is the number of slots in every ring
const Capacity = 16

// ErrFull is returned when pushing into a ring with no free slot
var ErrFull = errors.New("queue full")

// Ring is a mutex-protected FIFO of at most Capacity items
type Ring[T any] struct {
	mu    sync.Mutex
	items [Capacity]T
	head  int
	count int
}

// Push appends v and returns the new length. The item is dropped and
// ErrFull returned when the ring is full.
func (r *Ring[T]) Push(v T) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == Capacity {
		return r.count, ErrFull
	}
	r.items[(r.head+r.count)%Capacity] = v
	r.count++
	return r.count, nil
}

// Pop removes and returns the oldest item
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % Capacity
	r.count--
	return v, true
}

// Peek returns the oldest item without removing it
func (r *Ring[T]) Peek() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.items[r.head], true
}

// Len returns the number of queued items
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Full reports whether a Push would fail
func (r *Ring[T]) Full() bool {
	return r.Len() == Capacity
}

// Items returns a copy of the queued items, oldest first
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.count)
	for i := range out {
		out[i] = r.items[(r.head+i)%Capacity]
	}
	return out
}

// Clear drops every queued item
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
}
