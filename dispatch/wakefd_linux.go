// File: dispatch/wakefd_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package dispatch

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/api"
)

// wakeFD interrupts a blocked poll from another goroutine. Linux uses an
// eventfd: one fd, kick coalescing for free via the counter.
type wakeFD struct {
	fd int
}

func newWakeFD() (*wakeFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, api.NewError(api.ErrCodeUnavailable, "eventfd failed").
			WithContext("errno", err.Error())
	}
	return &wakeFD{fd: fd}, nil
}

func (w *wakeFD) readFD() int { return w.fd }

// kick wakes the poll loop. A full counter still leaves the fd readable,
// so the EAGAIN is safe to drop.
func (w *wakeFD) kick() {
	one := [8]byte{1}
	_, _ = unix.Write(w.fd, one[:])
}

func (w *wakeFD) drain() {
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
}

func (w *wakeFD) close() {
	_ = unix.Close(w.fd)
}
