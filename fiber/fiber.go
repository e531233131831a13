// File: fiber/fiber.go
// Package fiber: the cooperative task object.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Fiber is a goroutine whose execution is gated by scheduler grant
// tokens, giving M cooperative tasks over N workers. Suspension happens
// only at declared points: event waits, sleeps, joins, and explicit
// yields. All suspension APIs take the calling fiber as an explicit self
// argument because Go exposes no goroutine-local storage; nil self means
// the caller is a plain goroutine and parks on a channel instead.

package fiber

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-fiber/api"
)

// Fiber lifecycle states.
const (
	stateCreated int32 = iota
	stateRunnable
	stateRunning
	stateWaiting
	stateDone
)

// Attr configures a fiber at start.
type Attr struct {
	// Name appears in lifecycle logs and debug dumps.
	Name string
	// Pinned runs the fiber on its own locked OS thread. Suspension
	// points still work; the thread simply idles while parked.
	Pinned bool
	// NeverQuit excludes the fiber from scheduler drains. Explicit Stop
	// still cancels it.
	NeverQuit bool
	// LogStartAndFinish emits lifecycle log lines for this fiber.
	LogStartAndFinish bool
}

// Fiber is one cooperative task. Values are created by Scheduler.Start and
// stay valid after exit; the pooled FiberID dies with the fiber instead.
type Fiber struct {
	id    api.FiberID
	attr  Attr
	sched *Scheduler

	fn  func(self *Fiber, arg any)
	arg any

	state      atomic.Int32
	stopReq    atomic.Bool
	curWait    atomic.Pointer[waiter]
	lastWorker atomic.Int32

	// grant and release carry the worker run token. Capacity one: the
	// claim protocol admits at most one outstanding grant per suspension.
	grant   chan struct{}
	release chan struct{}

	// exit latches 0 -> 1 when the body returns; joiners wait on it.
	exit WaitEvent[int32]

	localsMu sync.Mutex
	locals   map[string]any
}

// ID returns the pooled fiber id. It goes stale when the fiber exits.
func (f *Fiber) ID() api.FiberID { return f.id }

// Name returns the attr name.
func (f *Fiber) Name() string { return f.attr.Name }

// Attr returns the start attributes.
func (f *Fiber) Attr() Attr { return f.attr }

// Running reports whether the fiber has started and not yet finished.
func (f *Fiber) Running() bool {
	s := f.state.Load()
	return s == stateRunnable || s == stateRunning || s == stateWaiting
}

// StopRequested reports whether cooperative cancellation was requested.
func (f *Fiber) StopRequested() bool { return f.stopReq.Load() }

// Stop requests cooperative cancellation: the stop flag is set and, when
// the fiber is suspended, its current wait is claimed with Cancelled. The
// fiber observes ErrCancelled at its next suspension point. Stop never
// interrupts the fiber mid-step and is safe to call repeatedly.
func (f *Fiber) Stop() {
	f.stopReq.Store(true)
	if w := f.curWait.Load(); w != nil {
		w.fire(claimCancel)
	}
}

// Join blocks until the fiber exits. self is the calling fiber, or nil
// when joining from a plain goroutine. Joining a fiber from itself fails.
func (f *Fiber) Join(self *Fiber) error {
	return f.JoinUntil(self, time.Time{})
}

// JoinUntil is Join with an absolute deadline; zero means no deadline.
func (f *Fiber) JoinUntil(self *Fiber, deadline time.Time) error {
	if self == f {
		return api.NewError(api.ErrCodeInvalidArgument, "fiber cannot join itself").
			WithContext("fiber", f.id.String())
	}
	err := f.exit.WaitUntil(self, 0, deadline)
	if err == nil || errors.Is(err, api.ErrUnavailable) {
		// The exit latch only moves 0 -> 1.
		return nil
	}
	return err
}

// Yield reschedules the calling fiber to the back of a run queue. Returns
// ErrCancelled instead of yielding when a stop is pending.
func (f *Fiber) Yield() error {
	if f.stopReq.Load() {
		return api.ErrCancelled
	}
	if f.attr.Pinned {
		// A pinned fiber owns its thread; yield to the Go scheduler.
		runtime.Gosched()
		return nil
	}
	if !f.state.CompareAndSwap(stateRunning, stateRunnable) {
		return api.NewError(api.ErrCodeInvalidArgument,
			"yield must be called by the running fiber itself")
	}
	f.sched.yields.Add(1)
	f.sched.enqueue(f, false)
	f.park()
	return nil
}

// Sleep suspends the calling fiber for at least d. It returns nil after
// the interval elapses and ErrCancelled when stopped while sleeping.
func (f *Fiber) Sleep(d time.Duration) error {
	return f.SleepUntil(time.Now().Add(d))
}

// SleepUntil suspends the calling fiber until the deadline.
func (f *Fiber) SleepUntil(deadline time.Time) error {
	var ev WaitEvent[int32]
	err := ev.WaitUntil(f, 0, deadline)
	if err == nil || errors.Is(err, api.ErrDeadlineExceeded) {
		return nil
	}
	return err
}

// Local returns the fiber-local value stored under key.
func (f *Fiber) Local(key string) (any, bool) {
	f.localsMu.Lock()
	defer f.localsMu.Unlock()
	v, ok := f.locals[key]
	return v, ok
}

// SetLocal stores a fiber-local value. Locals die with the fiber.
func (f *Fiber) SetLocal(key string, val any) {
	f.localsMu.Lock()
	defer f.localsMu.Unlock()
	if f.locals == nil {
		f.locals = make(map[string]any)
	}
	f.locals[key] = val
}

// park blocks the fiber until a worker grants it the run token again. For
// pinned fibers there is no worker: the grant arrives straight from the
// waker and the fiber restores its own running state.
func (f *Fiber) park() {
	if f.attr.Pinned {
		<-f.grant
		f.state.Store(stateRunning)
		return
	}
	f.release <- struct{}{}
	<-f.grant
}
