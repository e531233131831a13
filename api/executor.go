// Package api
// Author: momentics
//
// Executor contract for serialized task dispatch.

package api

// SerialExecutor is a multi-producer execution queue with a single consumer.
// Values submitted by one producer are consumed in that producer's order;
// urgent values overtake pending normal values but never interrupt a batch
// the consumer has already dequeued.
type SerialExecutor interface {
	// Execute submits a value for ordered consumption.
	Execute(v int64) error

	// ExecuteUrgent submits a value ahead of all pending normal values.
	ExecuteUrgent(v int64) error

	// Stop closes the queue for new submissions; queued values still run.
	Stop()

	// Join blocks until the consumer has drained the queue and exited.
	Join()
}
