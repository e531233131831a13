// File: fiber/event_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fiber

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
)

func TestWaitEventCounterOps(t *testing.T) {
	var ev WaitEvent[uint32]
	assert.Equal(t, uint32(0), ev.Load(), "zero value starts at zero")

	ev.Store(7)
	assert.Equal(t, uint32(7), ev.Load())
	assert.Equal(t, uint32(9), ev.Add(2))

	assert.True(t, ev.CompareAndSwap(9, 12))
	assert.False(t, ev.CompareAndSwap(9, 13))
	assert.Equal(t, uint32(12), ev.Load())

	signed := NewWaitEvent[int32](-3)
	assert.Equal(t, int32(-3), signed.Load())
}

func TestWaitEventUnavailable(t *testing.T) {
	ev := NewWaitEvent[uint32](5)
	err := ev.Wait(nil, 3)
	assert.ErrorIs(t, err, api.ErrUnavailable)
	assert.Equal(t, 0, ev.NumWaiters())
}

func TestWaitEventThreadWaitNotify(t *testing.T) {
	var ev WaitEvent[uint32]
	done := make(chan error, 1)
	go func() {
		done <- ev.Wait(nil, 0)
	}()

	require.Eventually(t, func() bool { return ev.NumWaiters() == 1 },
		2*time.Second, time.Millisecond, "waiter must queue")

	ev.Add(1)
	assert.Equal(t, 1, ev.NotifyOne())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("notified waiter did not wake")
	}
}

func TestWaitEventDeadline(t *testing.T) {
	var ev WaitEvent[uint32]
	start := time.Now()
	err := ev.WaitUntil(nil, 0, start.Add(50*time.Millisecond))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, api.ErrDeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond, "woke before the deadline")
	assert.Equal(t, 0, ev.NumWaiters(), "timed-out waiter must be unlinked")
}

func TestWaitEventNotifyBeatsDeadline(t *testing.T) {
	var ev WaitEvent[uint32]
	done := make(chan error, 1)
	go func() {
		done <- ev.WaitUntil(nil, 0, time.Now().Add(30*time.Second))
	}()
	require.Eventually(t, func() bool { return ev.NumWaiters() == 1 },
		2*time.Second, time.Millisecond)

	ev.Add(1)
	ev.NotifyAll()

	select {
	case err := <-done:
		assert.NoError(t, err, "notify won, so no deadline error")
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not wake")
	}
}

func TestWaitEventLateNotifyFindsNobody(t *testing.T) {
	var ev WaitEvent[uint32]
	err := ev.WaitUntil(nil, 0, time.Now().Add(20*time.Millisecond))
	require.ErrorIs(t, err, api.ErrDeadlineExceeded)

	// The timeout claimed and unlinked the waiter already.
	assert.Equal(t, 0, ev.NotifyOne())
	assert.Equal(t, 0, ev.NotifyAll())
}

func TestWaitEventNoLostWakeups(t *testing.T) {
	rounds := 10000
	if testing.Short() {
		rounds = 500
	}
	var ev WaitEvent[uint32]
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < rounds; i++ {
			err := ev.Wait(nil, uint32(i))
			if err != nil && !errors.Is(err, api.ErrUnavailable) {
				t.Errorf("round %d: unexpected error %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < rounds; i++ {
		ev.Add(1)
		ev.NotifyAll()
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("a wakeup was lost")
	}
}

func TestWaitEventFiberWaiters(t *testing.T) {
	s := NewScheduler(SchedConfig{Workers: 2})
	defer func() { _ = s.Shutdown() }()

	var ev WaitEvent[uint32]
	var woken atomic.Int32
	const fibers = 32

	for i := 0; i < fibers; i++ {
		_, err := s.Start(Attr{}, func(self *Fiber, _ any) {
			if err := ev.Wait(self, 0); err == nil {
				woken.Add(1)
			}
		}, nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return ev.NumWaiters() == fibers },
		5*time.Second, time.Millisecond, "all fibers must suspend")

	ev.Add(1)
	assert.Equal(t, fibers, ev.NotifyAll())

	require.Eventually(t, func() bool { return woken.Load() == fibers },
		5*time.Second, time.Millisecond, "all fibers must resume")
}

func TestWaitEventNotifyAllFibersSkipsThreads(t *testing.T) {
	s := NewScheduler(SchedConfig{Workers: 2})
	defer func() { _ = s.Shutdown() }()

	var ev WaitEvent[uint32]
	threadDone := make(chan error, 1)
	go func() { threadDone <- ev.Wait(nil, 0) }()

	fiberDone := make(chan error, 1)
	_, err := s.Start(Attr{}, func(self *Fiber, _ any) {
		fiberDone <- ev.Wait(self, 0)
	}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ev.NumWaiters() == 2 },
		5*time.Second, time.Millisecond)

	ev.Add(1)
	assert.Equal(t, 1, ev.NotifyAllFibers(), "only the fiber waiter is eligible")

	select {
	case err := <-fiberDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fiber waiter did not wake")
	}
	assert.Equal(t, 1, ev.NumWaiters(), "thread waiter must stay queued")

	assert.Equal(t, 1, ev.NotifyAll())
	select {
	case err := <-threadDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("thread waiter did not wake")
	}
}

func TestWaitEventStopCancelsWait(t *testing.T) {
	s := NewScheduler(SchedConfig{Workers: 2})
	defer func() { _ = s.Shutdown() }()

	var ev WaitEvent[uint32]
	got := make(chan error, 1)
	f, err := s.Start(Attr{}, func(self *Fiber, _ any) {
		got <- ev.Wait(self, 0)
	}, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ev.NumWaiters() == 1 },
		5*time.Second, time.Millisecond)

	f.Stop()
	select {
	case err := <-got:
		assert.ErrorIs(t, err, api.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not cancel the wait")
	}
	require.NoError(t, f.Join(nil))
}
