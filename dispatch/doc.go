// File: dispatch/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package dispatch delivers OS readiness events to pooled channel records.
//
// A Channel binds an fd to callbacks and to a readiness sequence that
// future-based waits park on. Channel records live in a versioned pool and
// travel by id through the kernel registration payload, so events that
// arrive after a record was recycled resolve to nothing and are dropped as
// stale instead of being misdelivered.
//
// An EventDispatcher owns one poller and one loop. Pools of dispatchers
// split listener sockets from data sockets and spread the latter over
// loops by fd hash. Fibers consume readiness either through callbacks run
// on the loop or sequentially through FutureIO.
package dispatch
