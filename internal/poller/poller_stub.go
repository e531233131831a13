// File: internal/poller/poller_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !unix

package poller

import "github.com/momentics/hioload-fiber/api"

func newPlatform() (api.Poller, error) {
	return nil, api.ErrNotSupported
}
