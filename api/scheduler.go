// Package api
// Author: momentics
//
// Scheduler contract for high-precision timed job execution.

package api

import "time"

// TimerScheduler abstracts one-shot timer scheduling for async loops.
// Callbacks run on the dispatcher's own thread and must not block; a
// callback may schedule further timers on the same dispatcher.
type TimerScheduler interface {
	// RunAt schedules fn(arg) at the absolute time deadline. It returns
	// InvalidTimerID with ErrStopped after the dispatcher stopped.
	RunAt(deadline time.Time, fn func(arg any), arg any) (TimerID, error)

	// RunAfter schedules fn(arg) after delay.
	RunAfter(delay time.Duration, fn func(arg any), arg any) (TimerID, error)

	// Cancel revokes a pending task. Exactly one of {fire, cancel} wins:
	// after the callback started, Cancel reports ErrNotFound.
	Cancel(id TimerID) error
}
