// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// live in separate files (affinity_linux.go, affinity_windows.go, etc.)
// guarded by build tags.
//
// Affinity applies to the calling OS thread. Callers must hold the thread
// with runtime.LockOSThread for the duration of the pin; a migrated
// goroutine takes no affinity with it.

package affinity

import "github.com/momentics/hioload-fiber/api"

// SetAffinity pins the current OS thread to a given logical CPU on
// supported platforms. On unsupported platforms it returns an error.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// ClearAffinity restores the full CPU mask for the current OS thread.
func ClearAffinity() error {
	return clearAffinityPlatform()
}

// CurrentCPU reports the CPU the calling thread last ran on.
func CurrentCPU() (int, error) {
	return currentCPUPlatform()
}

// CurrentNode reports the NUMA node of the CPU the calling thread last ran
// on. Platforms without the notion return api.ErrNotSupported.
func CurrentNode() (int, error) {
	return currentNodePlatform()
}

// Manager adapts the package functions to the api.Affinity contract, so
// the control surface can expose pinning alongside the other runtime knobs.
type Manager struct{}

// Compile-time interface compliance.
var _ api.Affinity = Manager{}

// Pin locks the current OS thread to cpuID; negative restores the full mask.
func (Manager) Pin(cpuID int) error {
	if cpuID < 0 {
		return ClearAffinity()
	}
	return SetAffinity(cpuID)
}

// Unpin removes the affinity restriction.
func (Manager) Unpin() error { return ClearAffinity() }

// Get returns the CPU the thread last ran on.
func (Manager) Get() (int, error) { return CurrentCPU() }
