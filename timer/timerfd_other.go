// File: timer/timerfd_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package timer

import "github.com/momentics/hioload-fiber/api"

// newTimerfdBackend is Linux-only; other platforms use the portable loop.
func newTimerfdBackend(*Dispatcher) (backend, error) {
	return nil, api.ErrNotSupported
}
