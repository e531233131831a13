// File: dispatch/wakefd_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build unix && !linux

package dispatch

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/api"
)

// wakeFD interrupts a blocked poll from another goroutine. Without eventfd
// a nonblocking pipe does the job: kicks write one byte, drain eats them.
type wakeFD struct {
	r, w int
}

func newWakeFD() (*wakeFD, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, api.NewError(api.ErrCodeUnavailable, "pipe failed").
			WithContext("errno", err.Error())
	}
	for _, fd := range fds {
		_ = unix.SetNonblock(fd, true)
		unix.CloseOnExec(fd)
	}
	return &wakeFD{r: fds[0], w: fds[1]}, nil
}

func (w *wakeFD) readFD() int { return w.r }

// kick wakes the poll loop. EAGAIN means the pipe already holds unread
// kicks, which serves the same purpose.
func (w *wakeFD) kick() {
	one := [1]byte{1}
	_, _ = unix.Write(w.w, one[:])
}

func (w *wakeFD) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.r, buf[:])
		if n < len(buf) || err != nil {
			return
		}
	}
}

func (w *wakeFD) close() {
	_ = unix.Close(w.r)
	_ = unix.Close(w.w)
}
