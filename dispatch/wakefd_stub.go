// File: dispatch/wakefd_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !unix

package dispatch

import "github.com/momentics/hioload-fiber/api"

type wakeFD struct{}

func newWakeFD() (*wakeFD, error) { return nil, api.ErrNotSupported }

func (w *wakeFD) readFD() int { return -1 }
func (w *wakeFD) kick()       {}
func (w *wakeFD) drain()      {}
func (w *wakeFD) close()      {}
