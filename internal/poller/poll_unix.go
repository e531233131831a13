// File: internal/poller/poll_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// poll(2) fallback for the non-Linux Unixes. The fd set is rebuilt from the
// interest table on every Poll call; registrations that land mid-poll take
// effect on the next iteration, which the dispatcher forces with its wakeup
// channel.

//go:build unix && !linux

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

type pollPoller struct {
	mu       sync.Mutex
	interest map[int]*fdInterest
	closed   bool

	fds []unix.PollFd // Poll scratch; Poll is single-consumer
}

func newPlatform() (api.Poller, error) {
	return &pollPoller{interest: make(map[int]*fdInterest)}, nil
}

func (p *pollPoller) AddPollIn(cid api.ChannelID, fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	ent := p.interest[fd]
	if ent == nil {
		ent = &fdInterest{}
		p.interest[fd] = ent
	}
	ent.cid = cid
	ent.in = true
	return nil
}

func (p *pollPoller) AddPollOut(cid api.ChannelID, fd int, keepIn bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	ent := p.interest[fd]
	if ent == nil {
		ent = &fdInterest{}
		p.interest[fd] = ent
	}
	ent.cid = cid
	ent.in = keepIn
	ent.out = true
	return nil
}

func (p *pollPoller) RemovePollOut(cid api.ChannelID, fd int, keepIn bool) error {
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
		delete(p.interest, fd)
		return nil
	}
	ent.cid = cid
	ent.in = true
	ent.out = false
	return nil
}

func (p *pollPoller) RemovePollIn(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return api.ErrStopped
	}
	if _, ok := p.interest[fd]; !ok {
		return api.ErrNotFound
	}
	delete(p.interest, fd)
	return nil
}

func (p *pollPoller) Poll(results []api.PollResult, timeout time.Duration) (int, error) {
	if len(results) == 0 {
		return 0, api.NewError(api.ErrCodeInvalidArgument, "poll needs a result buffer")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, api.ErrStopped
	}
	p.fds = p.fds[:0]
	for fd, ent := range p.interest {
		var events int16
		if ent.in {
			events |= unix.POLLIN | unix.POLLPRI
		}
		if ent.out {
			events |= unix.POLLOUT
		}
		p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	fds := p.fds
	p.mu.Unlock()

	msec := -1
	if timeout >= 0 {
		msec = int(timeout.Milliseconds())
		if timeout > 0 && msec == 0 {
			msec = 1
		}
	}
	n, err := unix.Poll(fds, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, api.ErrInterrupted
		}
		return 0, api.NewError(api.ErrCodeUnavailable, "poll failed").
			WithContext("errno", err.Error())
	}
	if n == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := 0
	for i := range fds {
		if out == len(results) {
			break
		}
		re := fds[i].Revents
		if re == 0 {
			continue
		}
		ent := p.interest[int(fds[i].Fd)]
		if ent == nil {
			continue // unregistered mid-poll
		}
		results[out] = api.PollResult{
			Channel:  ent.cid,
			Readable: re&(unix.POLLIN|unix.POLLPRI) != 0,
			Writable: re&unix.POLLOUT != 0,
			Error:    re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0,
		}
		out++
	}
	return out, nil
}

func (p *pollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.interest = nil
	return nil
}
