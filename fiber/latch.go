// File: fiber/latch.go
// Count-down latch for fan-in joins.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fiber

import (
	"errors"
	"time"

	"github.com/momentics/hioload-fiber/api"
)

// FiberLatch blocks waiters until its count reaches zero. Intermediate
// count-downs wake nobody; only the transition to zero notifies, so a
// latch over many workers costs one broadcast.
type FiberLatch struct {
	ev WaitEvent[int32]
}

// NewFiberLatch returns a latch initialized to n.
func NewFiberLatch(n int32) *FiberLatch {
	l := &FiberLatch{}
	l.ev.Store(n)
	return l
}

// Add raises the remaining count by delta. Only valid before the latch has
// reached zero.
func (l *FiberLatch) Add(delta int32) { l.ev.Add(delta) }

// Count returns the remaining count.
func (l *FiberLatch) Count() int32 { return l.ev.Load() }

// CountDown decrements the latch and wakes all waiters on the drop to zero.
func (l *FiberLatch) CountDown() {
	n := l.ev.Add(-1)
	if n < 0 {
		panic("fiber: latch counted below zero")
	}
	if n == 0 {
		l.ev.NotifyAll()
	}
}

// Wait suspends the caller until the count reaches zero. self is the
// calling fiber, or nil for a plain goroutine.
func (l *FiberLatch) Wait(self *Fiber) error {
	return l.WaitUntil(self, time.Time{})
}

// WaitUntil is Wait with an absolute deadline; zero means no deadline.
func (l *FiberLatch) WaitUntil(self *Fiber, deadline time.Time) error {
	for {
		n := l.ev.Load()
		if n == 0 {
			return nil
		}
		err := l.ev.WaitUntil(self, n, deadline)
		if err != nil && !errors.Is(err, api.ErrUnavailable) {
			return err
		}
		// Woken or raced with a count change; recheck for zero.
	}
}
