// Package api
// Author: momentics@gmail.com
//
// CPU affinity and thread pinning definitions.

package api

// Affinity controls execution placement of the calling OS thread. Callers
// must hold the thread with runtime.LockOSThread for the pin to be
// meaningful; pinning follows the thread, not the goroutine.
type Affinity interface {
	// Pin locks the current OS thread to a CPU. A negative cpuID
	// restores the full CPU mask.
	Pin(cpuID int) error
	// Unpin removes the affinity restriction.
	Unpin() error
	// Get returns the CPU the thread last ran on.
	Get() (cpuID int, err error)
}
