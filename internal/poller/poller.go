// File: internal/poller/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package poller implements api.Poller on top of the platform readiness
// facility: epoll on Linux, poll(2) on the other Unixes.
//
// Channel ids ride through the kernel inside the registration payload and
// come back attached to each readiness report, so the dispatcher never maps
// fds itself and a recycled channel surfaces as a stale id instead of a
// misdelivered event.
package poller

import "github.com/momentics/hioload-fiber/api"

// New returns the platform poller.
func New() (api.Poller, error) {
	return newPlatform()
}
