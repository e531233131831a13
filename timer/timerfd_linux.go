// File: timer/timerfd_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux backend: one timerfd armed to the earliest pending deadline, plus
// an eventfd for shutdown wakeups, both behind a private epoll instance.
// Re-arming happens from two sides: RunAt kicks when the submitted task
// becomes the earliest, and the loop re-arms after every sweep.

//go:build linux

package timer

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type timerfdBackend struct {
	d        *Dispatcher
	tfd      int
	epfd     int
	wakefd   int
	stopping atomic.Bool
}

func newTimerfdBackend(d *Dispatcher) (backend, error) {
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(tfd)
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		unix.Close(tfd)
		return nil, err
	}
	b := &timerfdBackend{d: d, tfd: tfd, epfd: epfd, wakefd: wakefd}
	for _, fd := range []int{tfd, wakefd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			b.closeFDs()
			return nil, err
		}
	}
	return b, nil
}

func (b *timerfdBackend) run() {
	defer func() {
		b.closeFDs()
		close(b.d.joinCh)
	}()
	var events [2]unix.EpollEvent
	var drain [8]byte
	for {
		n, err := unix.EpollWait(b.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			b.d.log.Crit().Err(err).Log("timer dispatcher epoll failed, loop exiting")
			return
		}
		for i := 0; i < n; i++ {
			// Both fds are read-and-discard; the heap is the truth.
			unix.Read(int(events[i].Fd), drain[:])
		}
		if b.stopping.Load() {
			return
		}
		b.arm(b.d.sweep())
	}
}

// kick re-arms the timerfd. Safe from any thread; a concurrent arm from the
// loop is harmless since both sides arm to the current earliest deadline.
func (b *timerfdBackend) kick(earliest time.Time) {
	b.arm(earliest)
}

func (b *timerfdBackend) stop() {
	b.stopping.Store(true)
	one := [8]byte{1} // little-endian uint64(1) for the eventfd counter
	unix.Write(b.wakefd, one[:])
}

// arm programs the timerfd for the given deadline; a zero deadline disarms.
func (b *timerfdBackend) arm(deadline time.Time) {
	var spec unix.ItimerSpec
	if !deadline.IsZero() {
		delta := time.Until(deadline)
		if delta < minArm {
			delta = minArm
		}
		spec.Value = unix.NsecToTimespec(delta.Nanoseconds())
	}
	if err := unix.TimerfdSettime(b.tfd, 0, &spec, nil); err != nil {
		b.d.log.Err().Err(err).Log("timerfd settime failed")
	}
}

func (b *timerfdBackend) closeFDs() {
	unix.Close(b.epfd)
	unix.Close(b.tfd)
	unix.Close(b.wakefd)
}
