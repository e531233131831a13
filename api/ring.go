// Package api
// Author: momentics@gmail.com
//
// Lock-free ring buffer for cross-thread producer/consumer traffic.

package api

// Ring is a lock-free ring buffer contract. Implementations are bounded;
// producers observe backpressure through a false Enqueue rather than by
// blocking, which keeps schedulers and pools free of hidden waits.
type Ring[T any] interface {
	// Enqueue adds an item, returns false if full.
	Enqueue(item T) bool
	// Dequeue removes the oldest item, returns false if empty.
	Dequeue() (T, bool)
	// Len returns the current number of items.
	Len() int
	// Cap returns the buffer capacity.
	Cap() int
}
