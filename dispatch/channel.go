// File: dispatch/channel.go
// Channel records and the process-wide channel pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/pool"
)

// Channel is one fd endpoint registered with an event dispatcher. Records
// live in the process-wide channel pool and travel by ChannelID; the id is
// what rides through the kernel, so a recycled record is seen by late
// events as a stale id, never as the new occupant.
//
// Callback fields are fixed before Watch and must not change while the
// channel is registered. Callbacks run on the dispatcher loop; they must
// not block.
type Channel struct {
	// FD is the registered descriptor. The channel does not own it.
	FD int

	// Owner is set by Watch.
	Owner *EventDispatcher

	// OnRead fires on read readiness, OnWrite on write readiness, OnError
	// on socket error or hangup. Any of them may be nil.
	OnRead  func(ch *Channel)
	OnWrite func(ch *Channel)
	OnError func(ch *Channel)

	// UserData is an opaque per-channel slot for the owner's bookkeeping.
	UserData any

	// Readiness edges consumed by future-based waits. ready advances once
	// per delivered report and carries the waiter queue.
	readable atomic.Bool
	writable atomic.Bool
	failed   atomic.Bool
	ready    fiber.WaitEvent[uint32]
}

// Failed reports whether an error or hangup event was delivered.
func (ch *Channel) Failed() bool { return ch.failed.Load() }

var (
	chanOnce sync.Once
	chanPool *pool.Pool[Channel]
)

func channels() *pool.Pool[Channel] {
	chanOnce.Do(func() {
		cfg := pool.DefaultConfig()
		cfg.BlockSlots = 256
		chanPool = pool.New[Channel](cfg)
	})
	return chanPool
}

// GetChannel reserves a channel record and resets it. The caller fills FD
// and callbacks, then registers the id with a dispatcher.
func GetChannel() (api.ChannelID, *Channel, error) {
	h, ch, err := channels().Get()
	if err != nil {
		return api.InvalidChannelID, nil, err
	}
	// The pool hands slot memory back as-is; reset everything except the
	// waiter machinery, which is required to be quiescent at return time.
	ch.FD = -1
	ch.Owner = nil
	ch.OnRead = nil
	ch.OnWrite = nil
	ch.OnError = nil
	ch.UserData = nil
	ch.readable.Store(false)
	ch.writable.Store(false)
	ch.failed.Store(false)
	return api.ChannelID(h), ch, nil
}

// AddressChannel resolves a channel id. Stale ids return nil.
func AddressChannel(cid api.ChannelID) *Channel {
	return channels().Address(api.Handle(cid))
}

// ReturnChannel recycles the record. The channel must be unwatched and its
// waiters gone; ids already handed to the kernel keep arriving for a short
// while and are dropped as stale.
func ReturnChannel(cid api.ChannelID) error {
	return channels().Put(api.Handle(cid))
}

// ChannelPoolStats reports the channel pool counters.
func ChannelPoolStats() api.PoolStats {
	return channels().Stats()
}
