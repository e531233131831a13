// File: internal/ring/ring.go
// Package ring implements bounded lock-free ring buffers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ring is a bounded multi-producer multi-consumer circular buffer with a
// per-slot sequence word, padded to prevent false sharing. Worker run
// queues and pool free-slot caches are built on it; their overflow paths
// live with the callers.
// Implements api.Ring for cross-package consistency.

package ring

import (
	"sync/atomic"

	"github.com/momentics/hioload-fiber/api"
)

// Ensure compile-time interface compliance.
var _ api.Ring[any] = (*Ring[any])(nil)

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// Ring is a bounded MPMC ring buffer. Each slot carries a sequence word:
// a slot is writable at position p when seq == p and readable when
// seq == p+1; consuming advances seq by the capacity, handing the slot to
// the producer of the next lap.
type Ring[T any] struct {
	mask  uint64
	slots []slot[T]
	_     [64]byte // Padding for hot/cold separation
	enq   atomic.Uint64
	_     [64]byte // Padding to separate positions from each other
	deq   atomic.Uint64
	_     [64]byte
}

// New allocates a ring buffer, rounding capacity up to a power of two.
// Capacity must be positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	size := nextPowerOfTwo(uint64(capacity))
	r := &Ring[T]{
		mask:  size - 1,
		slots: make([]slot[T], size),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

// Enqueue adds an item; returns false if full.
func (r *Ring[T]) Enqueue(item T) bool {
	pos := r.enq.Load()
	for {
		s := &r.slots[pos&r.mask]
		dif := int64(s.seq.Load()) - int64(pos)
		switch {
		case dif == 0:
			if r.enq.CompareAndSwap(pos, pos+1) {
				s.val = item
				s.seq.Store(pos + 1)
				return true
			}
			pos = r.enq.Load()
		case dif < 0:
			// Slot still holds the previous lap's value.
			return false
		default:
			pos = r.enq.Load()
		}
	}
}

// Dequeue removes and returns the oldest item; ok is false if empty.
func (r *Ring[T]) Dequeue() (T, bool) {
	var zero T
	pos := r.deq.Load()
	for {
		s := &r.slots[pos&r.mask]
		dif := int64(s.seq.Load()) - int64(pos+1)
		switch {
		case dif == 0:
			if r.deq.CompareAndSwap(pos, pos+1) {
				item := s.val
				s.val = zero
				s.seq.Store(pos + r.mask + 1)
				return item, true
			}
			pos = r.deq.Load()
		case dif < 0:
			return zero, false
		default:
			pos = r.deq.Load()
		}
	}
}

// Len returns the approximate number of items currently buffered.
func (r *Ring[T]) Len() int {
	enq := r.enq.Load()
	deq := r.deq.Load()
	if enq < deq {
		return 0
	}
	return int(enq - deq)
}

// Cap returns the fixed buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.slots)
}

// nextPowerOfTwo rounds v up to the nearest power of two.
func nextPowerOfTwo(v uint64) uint64 {
	size := uint64(1)
	for size < v {
		size <<= 1
	}
	return size
}
