// File: internal/poller/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Level-triggered epoll backend. The 64-bit channel id is split across the
// event payload's Fd and Pad words and reassembled on the way out, so every
// readiness report carries the id it was registered under.

//go:build linux

package poller

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-fiber/api"
)

type fdInterest struct {
	cid api.ChannelID
	in  bool
	out bool
}

type epollPoller struct {
	epfd int

	// mu guards the interest table. Poll translates results under mu as
	// well, which orders callback publication in channel records before
	// the dispatcher reads them.
	mu       sync.Mutex
	interest map[int]*fdInterest
	closed   bool

	events []unix.EpollEvent // Poll scratch; Poll is single-consumer
}

func newPlatform() (api.Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.NewError(api.ErrCodeUnavailable, "epoll_create1 failed").
			WithContext("errno", err.Error())
	}
	return &epollPoller{
		epfd:     epfd,
		interest: make(map[int]*fdInterest),
	}, nil
}

const (
	readMask  = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLPRI
	writeMask = unix.EPOLLOUT
	errMask   = unix.EPOLLERR | unix.EPOLLHUP
)

func splitID(cid api.ChannelID) (fd, pad int32) {
	h := api.Handle(cid)
	return int32(h.Slot()), int32(h.Version())
}

func joinID(ev *unix.EpollEvent) api.ChannelID {
	return api.ChannelID(api.MakeHandle(uint32(ev.Pad), uint32(ev.Fd)))
}

func (p *epollPoller) ctl(op, fd int, mask uint32, cid api.ChannelID) error {
	slot, pad := splitID(cid)
	err := unix.EpollCtl(p.epfd, op, fd, &unix.EpollEvent{
		Events: mask,
		Fd:     slot,
		Pad:    pad,
	})
	if err != nil {
		return api.NewError(api.ErrCodeInvalidArgument, "epoll_ctl failed").
			WithContext("fd", fd).WithContext("op", op).WithContext("errno", err.Error())
	}
	return nil
}

func (p *epollPoller) AddPollIn(cid api.ChannelID, fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	ent := p.interest[fd]
	if ent != nil && ent.in && ent.cid == cid {
		return nil
	}
	mask := uint32(readMask)
	op := unix.EPOLL_CTL_ADD
	if ent != nil {
		op = unix.EPOLL_CTL_MOD
		if ent.out {
			mask |= writeMask
		}
	}
	if err := p.ctl(op, fd, mask, cid); err != nil {
		return err
	}
	if ent == nil {
		ent = &fdInterest{cid: cid}
		p.interest[fd] = ent
	}
	ent.cid = cid
	ent.in = true
	return nil
}

func (p *epollPoller) AddPollOut(cid api.ChannelID, fd int, keepIn bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	ent := p.interest[fd]
	if ent != nil && ent.out && ent.cid == cid && ent.in == keepIn {
		return nil
	}
	mask := uint32(writeMask)
	if keepIn {
		mask |= readMask
	}
	op := unix.EPOLL_CTL_ADD
	if ent != nil {
		op = unix.EPOLL_CTL_MOD
	}
	if err := p.ctl(op, fd, mask, cid); err != nil {
		return err
	}
	if ent == nil {
		ent = &fdInterest{cid: cid}
		p.interest[fd] = ent
	}
	ent.cid = cid
	ent.in = keepIn
	ent.out = true
	return nil
}

func (p *epollPoller) RemovePollOut(cid api.ChannelID, fd int, keepIn bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	ent := p.interest[fd]
	if ent == nil {
		return api.ErrNotFound
	}
	if !keepIn {
		if err := p.ctl(unix.EPOLL_CTL_DEL, fd, 0, cid); err != nil {
			return err
		}
		delete(p.interest, fd)
		return nil
	}
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, readMask, cid); err != nil {
		return err
	}
	ent.cid = cid
	ent.in = true
	ent.out = false
	return nil
}

func (p *epollPoller) RemovePollIn(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	if _, ok := p.interest[fd]; !ok {
		return api.ErrNotFound
	}
	if err := p.ctl(unix.EPOLL_CTL_DEL, fd, 0, 0); err != nil {
		return err
	}
	delete(p.interest, fd)
	return nil
}

func (p *epollPoller) Poll(results []api.PollResult, timeout time.Duration) (int, error) {
	if len(results) == 0 {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "poll needs a result buffer")
	}
	if cap(p.events) < len(results) {
		p.events = make([]unix.EpollEvent, len(results))
	}
	msec := -1
	if timeout >= 0 {
		msec = int(timeout.Milliseconds())
		if timeout > 0 && msec == 0 {
			msec = 1
		}
	}
	n, err := unix.EpollWait(p.epfd, p.events[:len(results)], msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, api.ErrInterrupted
		}
		return 0, api.NewError(api.ErrCodeUnavailable, "epoll_wait failed").
			WithContext("errno", err.Error())
	}

	p.mu.Lock()
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		results[i] = api.PollResult{
			Channel:  joinID(ev),
			Readable: ev.Events&readMask != 0,
			Writable: ev.Events&writeMask != 0,
			Error:    ev.Events&errMask != 0,
		}
	}
	p.mu.Unlock()
	return n, nil
}

func (p *epollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.interest = nil
	return unix.Close(p.epfd)
}
