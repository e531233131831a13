// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract pooling API: versioned slab allocation for runtime
// records (fibers, channels, timer tasks) that outlive single call frames.

package api

// SlabPool hands out stable pointers into block-allocated slots, identified
// by versioned handles. Slots are recycled but never freed, so an Address on
// a stale handle returns nil rather than faulting.
type SlabPool[T any] interface {
	// Get reserves a slot and returns its handle plus a pointer to the
	// slot memory, which the caller initializes before publishing the
	// handle. It fails with ErrResourceExhausted only when the backing
	// arena cannot grow.
	Get() (Handle, *T, error)

	// Address resolves a handle to the live slot, or nil when the handle
	// is stale or invalid.
	Address(h Handle) *T

	// Put recycles the slot. The handle is dead afterwards; a second Put
	// of the same handle reports ErrNotFound.
	Put(h Handle) error

	// Stats reports pool counters for debug probes.
	Stats() PoolStats
}

// PoolStats is a point-in-time snapshot of a slab pool.
type PoolStats struct {
	Gets     uint64
	Puts     uint64
	Live     int
	Capacity int
	Blocks   int
}
