// File: fiber/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fiber implements cooperative tasks multiplexed over a small set
// of worker-owned run tokens.
//
// A fiber is an ordinary goroutine whose execution is gated by the
// scheduler: it runs only while it holds a grant token and gives the token
// back at every suspension point. Between suspension points a fiber's code
// is serialized against all other fibers of the same scheduler worker,
// which is what the cooperative model buys: plain field access instead of
// fine-grained locking inside fiber-owned state.
//
// Suspension points are explicit: WaitEvent.Wait and WaitUntil, Sleep,
// Join, Yield, and the blocking operations built on top of them (latches,
// exec queues, future-based I/O). Every one of them takes the calling
// fiber as a self argument; passing nil parks the calling goroutine on a
// channel instead, so plain goroutines can share the same primitives.
//
// Cancellation is cooperative. Stop sets a flag and claims the fiber's
// current wait; the fiber observes ErrCancelled at its next suspension
// point and decides for itself how to unwind.
package fiber
