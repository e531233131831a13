// File: timer/fallback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable backend: a single goroutine sleeping on a time.Timer armed to
// the earliest pending deadline. A buffered kick channel replaces the
// timerfd re-arm; kicks coalesce, which is fine because the loop always
// re-reads the heap before sleeping again.

package timer

import "time"

type fallbackBackend struct {
	d      *Dispatcher
	kickCh chan struct{}
	stopCh chan struct{}
}

func newFallbackBackend(d *Dispatcher) backend {
	return &fallbackBackend{
		d:      d,
		kickCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

func (b *fallbackBackend) run() {
	defer close(b.d.joinCh)
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	defer stopTimer(t)
	for {
		next := b.d.sweep()
		var fire <-chan time.Time
		if !next.IsZero() {
			delta := time.Until(next)
			if delta < minArm {
				delta = minArm
			}
			t.Reset(delta)
			fire = t.C
		}
		select {
		case <-fire:
		case <-b.kickCh:
			stopTimer(t)
		case <-b.stopCh:
			return
		}
	}
}

func (b *fallbackBackend) kick(time.Time) {
	select {
	case b.kickCh <- struct{}{}:
	default:
	}
}

func (b *fallbackBackend) stop() {
	close(b.stopCh)
}

// stopTimer stops t and drains a pending tick so Reset starts clean.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
