// Package pool
// Author: momentics <momentics@gmail.com>
//
// Versioned slab pooling layer for hioload-fiber.
// Implements block-allocated, never-freed arenas handing out stable pointers
// addressed through versioned 64-bit handles. Fiber records, event channels
// and timer tasks all live in these pools so that ids held by in-flight
// kernel events or late notifiers resolve to nil instead of to a recycled
// stranger. See pool.go for implementation details.
package pool
