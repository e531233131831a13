//go:build !linux && !windows

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without thread affinity control.

package affinity

import "github.com/momentics/hioload-fiber/api"

func setAffinityPlatform(int) error {
	return api.ErrNotSupported
}

func clearAffinityPlatform() error {
	return api.ErrNotSupported
}

func currentCPUPlatform() (int, error) {
	return -1, api.ErrNotSupported
}

func currentNodePlatform() (int, error) {
	return -1, api.ErrNotSupported
}
