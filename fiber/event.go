// File: fiber/event.go
// Package fiber: waitable events, the futex-like suspension primitive.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A WaitEvent pairs a 32-bit atomic counter with an intrusive waiter list.
// Wait(expected) suspends the caller only while the counter still equals
// expected; the waiter publishes itself on the list and then rechecks the
// counter under the list lock, so a notifier that changes the counter and
// then notifies can never miss it.
//
// Every wakeup source (notify, deadline timer, cooperative cancel, and the
// waiter's own precondition recheck) claims the waiter with one CAS on its
// claim word. Exactly one source wins; the losers back off. The winner owes
// the waiter exactly one wake, which keeps the scheduler's grant tokens
// balanced one-per-suspension.

package fiber

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/timer"
)

// Word constrains event counters to the 32-bit integer kinds the futex
// protocol is defined over.
type Word interface {
	~int32 | ~uint32
}

// Claim outcomes. claimAbort marks a waiter revoked by its own goroutine
// before parking (failed recheck); no wake is owed for it.
const (
	claimNone int32 = iota
	claimNotify
	claimTimeout
	claimCancel
	claimAbort
)

// waiter is one suspended caller. Fiber waiters park on the scheduler;
// thread waiters park on a private channel. A fresh waiter is allocated per
// wait, so late claims from an already-settled wait hit dead memory safely.
type waiter struct {
	ev    *eventCore
	f     *Fiber        // nil for thread waiters
	ch    chan struct{} // thread park; nil for fiber waiters
	claim atomic.Int32
	timer api.TimerID

	prev, next *waiter
	queued     bool // guarded by ev.mu
}

// fire claims the waiter for reason and wakes it. It reports whether this
// call won the claim. Safe from any goroutine, including timer callbacks
// racing notifiers.
func (w *waiter) fire(reason int32) bool {
	if !w.claim.CompareAndSwap(claimNone, reason) {
		return false
	}
	w.ev.mu.Lock()
	w.ev.unlink(w)
	w.ev.mu.Unlock()
	w.wake()
	return true
}

func (w *waiter) wake() {
	if w.f != nil {
		w.f.sched.ready(w.f, false)
	} else {
		close(w.ch)
	}
}

// eventCore is the untyped event state shared by all WaitEvent
// instantiations.
type eventCore struct {
	counter atomic.Int32

	mu   sync.Mutex
	head *waiter
	tail *waiter
}

func (e *eventCore) pushBack(w *waiter) {
	w.queued = true
	w.prev = e.tail
	w.next = nil
	if e.tail != nil {
		e.tail.next = w
	} else {
		e.head = w
	}
	e.tail = w
}

// unlink is idempotent: claim racers may both reach it.
func (e *eventCore) unlink(w *waiter) {
	if !w.queued {
		return
	}
	w.queued = false
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		e.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		e.tail = w.prev
	}
	w.prev = nil
	w.next = nil
}

// revoke claims the waiter for the caller's own goroutine and unlinks it.
// When it fails, another source won the claim and a wake is in flight: the
// caller must park and consume it.
func (e *eventCore) revoke(w *waiter) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !w.claim.CompareAndSwap(claimNone, claimAbort) {
		return false
	}
	e.unlink(w)
	return true
}

// wait suspends the caller while counter == expected. A zero deadline means
// no deadline. self is the calling fiber, or nil for a plain goroutine.
func (e *eventCore) wait(self *Fiber, expected int32, deadline time.Time) error {
	if e.counter.Load() != expected {
		return api.ErrUnavailable
	}
	if self != nil && self.stopReq.Load() {
		return api.ErrCancelled
	}
	hasDeadline := !deadline.IsZero()
	if hasDeadline && !time.Now().Before(deadline) {
		return api.ErrDeadlineExceeded
	}

	w := &waiter{ev: e, f: self}
	if self == nil {
		w.ch = make(chan struct{})
	} else {
		if !self.state.CompareAndSwap(stateRunning, stateWaiting) {
			return api.NewError(api.ErrCodeInvalidArgument,
				"wait must be called by the suspending fiber itself")
		}
		self.curWait.Store(w)
	}

	// Publish, then recheck under the lock. Counter changes from user code
	// happen before NotifyOne/NotifyAll take this lock, so a concurrent
	// change is either seen here or its notify sees the queued waiter.
	e.mu.Lock()
	e.pushBack(w)
	if e.counter.Load() != expected {
		if w.claim.CompareAndSwap(claimNone, claimAbort) {
			e.unlink(w)
			e.mu.Unlock()
			w.settleSelf(self)
			return api.ErrUnavailable
		}
		// Lost to a concurrent claim: a wake is owed, park below.
	}
	e.mu.Unlock()

	if hasDeadline && w.claim.Load() == claimNone {
		id, err := timer.Default().RunAt(deadline, timerFire, w)
		if err == nil {
			w.timer = id
		} else if e.revoke(w) {
			w.settleSelf(self)
			return err
		}
	}

	if self != nil {
		self.park()
		self.curWait.Store(nil)
	} else {
		<-w.ch
	}

	reason := w.claim.Load()
	if w.timer != api.InvalidTimerID && reason != claimTimeout {
		_ = timer.Default().Cancel(w.timer)
	}
	switch reason {
	case claimTimeout:
		return api.ErrDeadlineExceeded
	case claimCancel:
		// Deadline wins over cancel when both conditions hold.
		if hasDeadline && !time.Now().Before(deadline) {
			return api.ErrDeadlineExceeded
		}
		return api.ErrCancelled
	default:
		return nil
	}
}

// settleSelf restores the fiber's running state after an aborted
// suspension that never parked.
func (w *waiter) settleSelf(self *Fiber) {
	if self == nil {
		return
	}
	self.curWait.Store(nil)
	self.state.Store(stateRunning)
}

// timerFire adapts deadline timers to the claim protocol.
func timerFire(arg any) {
	arg.(*waiter).fire(claimTimeout)
}

// notify wakes queued waiters: all of them, or the first claimable one.
// When fibersOnly is set, thread waiters are skipped and fiber wakeups
// avoid the worker reserved for the I/O dispatcher.
func (e *eventCore) notify(all, fibersOnly bool) int {
	var woken []*waiter
	e.mu.Lock()
	w := e.head
	for w != nil {
		next := w.next
		if fibersOnly && w.f == nil {
			w = next
			continue
		}
		if w.claim.CompareAndSwap(claimNone, claimNotify) {
			e.unlink(w)
			woken = append(woken, w)
			if !all {
				break
			}
		} else {
			// A timeout or cancel won this waiter; its wake is theirs.
			e.unlink(w)
		}
		w = next
	}
	e.mu.Unlock()

	for _, w := range woken {
		if w.f != nil {
			w.f.sched.ready(w.f, fibersOnly)
		} else {
			close(w.ch)
		}
	}
	return len(woken)
}

// NumWaiters reports queued waiters; used by stats probes and tests.
func (e *eventCore) numWaiters() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for w := e.head; w != nil; w = w.next {
		n++
	}
	return n
}

// WaitEvent is a counting event usable by fibers and plain goroutines. The
// zero value is ready to use with an initial counter of zero.
type WaitEvent[T Word] struct {
	core eventCore
}

// NewWaitEvent returns an event with the given initial counter.
func NewWaitEvent[T Word](initial T) *WaitEvent[T] {
	e := &WaitEvent[T]{}
	e.core.counter.Store(int32(initial))
	return e
}

// Load returns the current counter value.
func (e *WaitEvent[T]) Load() T { return T(e.core.counter.Load()) }

// Store sets the counter. Pair with a notify to publish the change to
// waiters.
func (e *WaitEvent[T]) Store(v T) { e.core.counter.Store(int32(v)) }

// Add adds delta to the counter and returns the new value.
func (e *WaitEvent[T]) Add(delta T) T { return T(e.core.counter.Add(int32(delta))) }

// CompareAndSwap atomically replaces old with new.
func (e *WaitEvent[T]) CompareAndSwap(old, new T) bool {
	return e.core.counter.CompareAndSwap(int32(old), int32(new))
}

// Wait suspends the caller while the counter equals expected. It returns
// nil after a notify, ErrUnavailable immediately when the counter already
// differs, or ErrCancelled when the fiber's stop flag interrupts the wait.
// self is the calling fiber, or nil when called from a plain goroutine.
func (e *WaitEvent[T]) Wait(self *Fiber, expected T) error {
	return e.core.wait(self, int32(expected), time.Time{})
}

// WaitUntil is Wait with an absolute deadline; it returns
// ErrDeadlineExceeded when the deadline elapses first. The deadline wins
// over a racing cancel.
func (e *WaitEvent[T]) WaitUntil(self *Fiber, expected T, deadline time.Time) error {
	if deadline.IsZero() {
		return e.core.wait(self, int32(expected), time.Time{})
	}
	return e.core.wait(self, int32(expected), deadline)
}

// NotifyOne wakes the first claimable waiter. Returns the number woken.
func (e *WaitEvent[T]) NotifyOne() int { return e.core.notify(false, false) }

// NotifyAll wakes every queued waiter, fibers and threads alike.
func (e *WaitEvent[T]) NotifyAll() int { return e.core.notify(true, false) }

// NotifyAllFibers wakes every queued fiber waiter, steering them away from
// the worker reserved for the I/O dispatcher. Thread waiters stay queued.
func (e *WaitEvent[T]) NotifyAllFibers() int { return e.core.notify(true, true) }

// NumWaiters reports the current queue length.
func (e *WaitEvent[T]) NumWaiters() int { return e.core.numWaiters() }
