// Package api
// Author: momentics
//
// Live debug and introspection support for production workloads.

package api

// Debug exposes runtime introspection. Probes are cheap snapshot closures
// registered by the scheduler, dispatchers and pools; DumpState invokes all
// of them and must stay safe to call from a signal handler goroutine.
type Debug interface {
	// DumpState emits a snapshot of system state for diagnostics.
	DumpState() map[string]any

	// RegisterProbe dynamically registers a new debug probe.
	RegisterProbe(name string, fn func() any)
}
