// File: dispatch/futureio.go
// Future-based readiness waits for fibers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FutureIO turns callback dispatch into sequential code: a fiber suspends
// until the dispatcher delivers readiness for its channel, then performs
// the nonblocking syscall itself. The protocol consumes the channel's edge
// flag first and only then parks on the ready sequence, rechecking after
// the sequence snapshot, so a delivery racing the park is never lost.

package dispatch

import (
	"errors"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
)

// FutureIO waits for readiness of one watched channel. One waiter per
// direction at a time; the owning fiber is the intended user.
type FutureIO struct {
	d   *EventDispatcher
	cid api.ChannelID
	ch  *Channel
}

// NewFutureIO binds a future to a watched channel.
func NewFutureIO(d *EventDispatcher, cid api.ChannelID) (*FutureIO, error) {
	ch := AddressChannel(cid)
	if ch == nil {
		return nil, api.ErrNotFound
	}
	if d == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "future needs a dispatcher")
	}
	return &FutureIO{d: d, cid: cid, ch: ch}, nil
}

// WaitReadable suspends the caller until the channel reports read
// readiness, error, or hangup. The caller then reads the fd and observes
// the data, EOF, or errno directly.
func (f *FutureIO) WaitReadable(self *fiber.Fiber) error {
	return f.WaitReadableUntil(self, time.Time{})
}

// WaitReadableUntil is WaitReadable with an absolute deadline.
func (f *FutureIO) WaitReadableUntil(self *fiber.Fiber, deadline time.Time) error {
	ch := f.ch
	for {
		if ch.failed.Load() || ch.readable.Swap(false) {
			return nil
		}
		seq := ch.ready.Load()
		if ch.readable.Swap(false) {
			return nil
		}
		err := ch.ready.WaitUntil(self, seq, deadline)
		if err != nil && !errors.Is(err, api.ErrUnavailable) {
			return err
		}
	}
}

// WaitWritable suspends the caller until the channel reports write
// readiness. Write interest is registered on entry and dropped on exit, so
// a level-triggered poller does not spin on a mostly-writable socket.
func (f *FutureIO) WaitWritable(self *fiber.Fiber) error {
	return f.WaitWritableUntil(self, time.Time{})
}

// WaitWritableUntil is WaitWritable with an absolute deadline.
func (f *FutureIO) WaitWritableUntil(self *fiber.Fiber, deadline time.Time) error {
	ch := f.ch
	if ch.failed.Load() || ch.writable.Swap(false) {
		return nil
	}
	if err := f.d.WatchWrites(f.cid, true); err != nil {
		return err
	}
	defer func() { _ = f.d.UnwatchWrites(f.cid, true) }()
	for {
		if ch.failed.Load() || ch.writable.Swap(false) {
			return nil
		}
		seq := ch.ready.Load()
		if ch.writable.Swap(false) {
			return nil
		}
		err := ch.ready.WaitUntil(self, seq, deadline)
		if err != nil && !errors.Is(err, api.ErrUnavailable) {
			return err
		}
	}
}
