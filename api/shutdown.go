// File: api/shutdown.go
// Package api defines the unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies orderly teardown across runtime components.
// Shutdown must be idempotent: dispatchers and schedulers are stopped from
// signal handlers as well as from deferred cleanup paths, and the two may
// race.
type GracefulShutdown interface {
	// Shutdown stops all internal services and releases their resources.
	Shutdown() error
}
