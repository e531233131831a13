// File: dispatch/dispatcher.go
// The I/O event dispatcher loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One dispatcher owns one poller and one loop. The loop polls with a fixed
// interval, translates readiness reports into channel record updates, wakes
// future-based waiters, and runs channel callbacks inline. A dedicated wake
// fd interrupts the poll for stop requests and for registrations made while
// the loop is blocked.

package dispatch

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/internal/poller"
)

// Config tunes one event dispatcher.
type Config struct {
	// Name appears in logs and debug dumps.
	Name string

	// PollBatch is the readiness report buffer size per poll.
	PollBatch int

	// PollInterval bounds one blocking poll, so the loop notices a stop
	// request even without traffic.
	PollInterval time.Duration

	// DispatchInFiber runs the loop as a pinned NeverQuit fiber instead
	// of a plain goroutine, so the dispatcher shows up in the scheduler's
	// registry and logs.
	DispatchInFiber bool

	// Scheduler hosts the loop fiber when DispatchInFiber is set. Nil
	// selects the process-wide scheduler.
	Scheduler *fiber.Scheduler

	// Logger receives lifecycle and failure records. Nil disables logging.
	Logger api.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Name:         "dispatch",
		PollBatch:    128,
		PollInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.PollBatch <= 0 {
		c.PollBatch = d.PollBatch
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// EventDispatcher drives one poll loop. Registration methods are safe from
// any goroutine, including channel callbacks on the loop itself.
type EventDispatcher struct {
	cfg  Config
	log  api.Logger
	pl   api.Poller
	wake *wakeFD

	stopped atomic.Bool
	joinCh  chan struct{}

	polls   atomic.Uint64
	events  atomic.Uint64
	stale   atomic.Uint64
	wakeups atomic.Uint64
	live    atomic.Int64
}

var _ api.GracefulShutdown = (*EventDispatcher)(nil)

// New builds a dispatcher and starts its loop.
func New(cfg Config) (*EventDispatcher, error) {
	cfg = cfg.withDefaults()
	pl, err := poller.New()
	if err != nil {
		return nil, err
	}
	wake, err := newWakeFD()
	if err != nil {
		_ = pl.Close()
		return nil, err
	}
	d := &EventDispatcher{
		cfg:    cfg,
		log:    cfg.Logger,
		pl:     pl,
		wake:   wake,
		joinCh: make(chan struct{}),
	}
	// The wake fd is a fixed pseudo-channel: the invalid id never resolves
	// to a record, so it cannot collide with pooled channels.
	if err := pl.AddPollIn(api.InvalidChannelID, wake.readFD()); err != nil {
		wake.close()
		_ = pl.Close()
		return nil, err
	}

	if cfg.DispatchInFiber {
		s := cfg.Scheduler
		if s == nil {
			s = fiber.Default()
		}
		_, err = s.Start(fiber.Attr{
			Name:      "dispatch/" + cfg.Name,
			Pinned:    true,
			NeverQuit: true,
		}, func(_ *fiber.Fiber, _ any) { d.loop() }, nil)
		if err != nil {
			wake.close()
			_ = pl.Close()
			return nil, err
		}
	} else {
		go d.loop()
	}
	d.log.Info().Str("dispatcher", cfg.Name).Bool("fiber", cfg.DispatchInFiber).
		Log("event dispatcher up")
	return d, nil
}

// Watch registers the channel's fd for read readiness. The channel record
// must have FD and callbacks set; it must stay watched until Unwatch.
func (d *EventDispatcher) Watch(cid api.ChannelID) error {
	ch := AddressChannel(cid)
	if ch == nil {
		return api.ErrNotFound
	}
	if ch.FD < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "channel has no fd").
			WithContext("channel", cid.String())
	}
	if err := d.pl.AddPollIn(cid, ch.FD); err != nil {
		return err
	}
	ch.Owner = d
	d.live.Add(1)
	d.wake.kick()
	return nil
}

// Unwatch drops all interest in the channel's fd. Call before returning the
// record to the pool.
func (d *EventDispatcher) Unwatch(cid api.ChannelID) error {
	ch := AddressChannel(cid)
	if ch == nil {
		return api.ErrNotFound
	}
	if err := d.pl.RemovePollIn(ch.FD); err != nil {
		return err
	}
	ch.Owner = nil
	d.live.Add(-1)
	d.wake.kick()
	return nil
}

// WatchWrites adds write interest for the channel, keeping read interest
// when keepIn is set. Write interest is level-triggered: hold it only while
// a writer actually waits.
func (d *EventDispatcher) WatchWrites(cid api.ChannelID, keepIn bool) error {
	ch := AddressChannel(cid)
	if ch == nil {
		return api.ErrNotFound
	}
	if err := d.pl.AddPollOut(cid, ch.FD, keepIn); err != nil {
		return err
	}
	d.wake.kick()
	return nil
}

// UnwatchWrites drops write interest again.
func (d *EventDispatcher) UnwatchWrites(cid api.ChannelID, keepIn bool) error {
	ch := AddressChannel(cid)
	if ch == nil {
		return api.ErrNotFound
	}
	if err := d.pl.RemovePollOut(cid, ch.FD, keepIn); err != nil {
		return err
	}
	d.wake.kick()
	return nil
}

// Wakeup interrupts the current poll. Registration methods call it
// implicitly; explicit calls are for tests and custom integrations.
func (d *EventDispatcher) Wakeup() {
	d.wake.kick()
}

// Stop asks the loop to exit. Idempotent; pair with Join to observe the
// loop actually gone.
func (d *EventDispatcher) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	d.wake.kick()
}

// Join blocks until the loop has exited and its poller is closed.
func (d *EventDispatcher) Join() {
	<-d.joinCh
}

// Shutdown implements api.GracefulShutdown.
func (d *EventDispatcher) Shutdown() error {
	d.Stop()
	d.Join()
	return nil
}

// Stats snapshots dispatcher counters.
func (d *EventDispatcher) Stats() api.DispatcherStats {
	return api.DispatcherStats{
		Polls:        d.polls.Load(),
		Events:       d.events.Load(),
		StaleEvents:  d.stale.Load(),
		Wakeups:      d.wakeups.Load(),
		LiveChannels: int(d.live.Load()),
	}
}

func (d *EventDispatcher) loop() {
	defer func() {
		_ = d.pl.Close()
		d.wake.close()
		close(d.joinCh)
		d.log.Info().Str("dispatcher", d.cfg.Name).Log("event dispatcher down")
	}()

	results := make([]api.PollResult, d.cfg.PollBatch)
	for !d.stopped.Load() {
		n, err := d.pl.Poll(results, d.cfg.PollInterval)
		d.polls.Add(1)
		if err != nil {
			if errors.Is(err, api.ErrInterrupted) {
				continue
			}
			d.log.Crit().Str("dispatcher", d.cfg.Name).Err(err).
				Log("poll failed, dispatcher exiting")
			d.stopped.Store(true)
			return
		}
		for i := 0; i < n; i++ {
			d.deliver(&results[i])
		}
	}
}

// deliver applies one readiness report: update the channel's edge flags,
// advance its ready sequence, wake waiters, then run callbacks inline.
func (d *EventDispatcher) deliver(r *api.PollResult) {
	if r.Channel == api.InvalidChannelID {
		d.wake.drain()
		d.wakeups.Add(1)
		return
	}
	ch := AddressChannel(r.Channel)
	if ch == nil {
		// The record was recycled while the event was in flight. Expected
		// during teardown; the id check is exactly what makes it safe.
		d.stale.Add(1)
		d.log.Debug().Str("dispatcher", d.cfg.Name).Stringer("channel", r.Channel).
			Log("stale channel event dropped")
		return
	}
	d.events.Add(1)

	if r.Error {
		ch.failed.Store(true)
	}
	if r.Readable || r.Error {
		ch.readable.Store(true)
	}
	if r.Writable || r.Error {
		ch.writable.Store(true)
	}
	ch.ready.Add(1)
	ch.ready.NotifyAll()

	if (r.Readable || r.Error) && ch.OnRead != nil {
		ch.OnRead(ch)
	}
	if (r.Writable || r.Error) && ch.OnWrite != nil {
		ch.OnWrite(ch)
	}
	if r.Error && ch.OnError != nil {
		ch.OnError(ch)
	}
}
