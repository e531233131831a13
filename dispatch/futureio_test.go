// File: dispatch/futureio_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
)

func TestFutureIOReadable(t *testing.T) {
	d := newTestDispatcher(t)
	r, w := dispatchPipe(t)

	s := fiber.NewScheduler(fiber.SchedConfig{Workers: 2})
	defer func() { _ = s.Shutdown() }()

	cid, ch, err := GetChannel()
	require.NoError(t, err)
	ch.FD = int(r.Fd())
	require.NoError(t, d.Watch(cid))

	fut, err := NewFutureIO(d, cid)
	require.NoError(t, err)

	payload := make(chan string, 1)
	f, err := s.Start(fiber.Attr{Name: "reader"}, func(self *fiber.Fiber, _ any) {
		if err := fut.WaitReadable(self); err != nil {
			payload <- "error: " + err.Error()
			return
		}
		buf := make([]byte, 16)
		n, _ := r.Read(buf)
		payload <- string(buf[:n])
	}, nil)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond) // let the fiber reach its wait
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case got := <-payload:
		assert.Equal(t, "hello", got)
	case <-time.After(5 * time.Second):
		t.Fatal("fiber never woke for readable data")
	}
	require.NoError(t, f.Join(nil))
	require.NoError(t, d.Unwatch(cid))
	require.NoError(t, ReturnChannel(cid))
}

func TestFutureIOReadableDeadline(t *testing.T) {
	d := newTestDispatcher(t)
	r, _ := dispatchPipe(t)

	cid, ch, err := GetChannel()
	require.NoError(t, err)
	ch.FD = int(r.Fd())
	require.NoError(t, d.Watch(cid))

	fut, err := NewFutureIO(d, cid)
	require.NoError(t, err)

	// Thread waiter: nil self parks the goroutine on a channel.
	err = fut.WaitReadableUntil(nil, time.Now().Add(50*time.Millisecond))
	assert.ErrorIs(t, err, api.ErrDeadlineExceeded)

	require.NoError(t, d.Unwatch(cid))
	require.NoError(t, ReturnChannel(cid))
}

func TestFutureIOWritable(t *testing.T) {
	d := newTestDispatcher(t)
	_, w := dispatchPipe(t)

	cid, ch, err := GetChannel()
	require.NoError(t, err)
	ch.FD = int(w.Fd())

	fut, err := NewFutureIO(d, cid)
	require.NoError(t, err)

	// An empty pipe is writable immediately; the wait registers write
	// interest, observes readiness, and drops the interest again.
	done := make(chan error, 1)
	go func() { done <- fut.WaitWritable(nil) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("empty pipe must report writable")
	}

	require.NoError(t, ReturnChannel(cid))
}

func TestFutureIOStaleChannel(t *testing.T) {
	newTestDispatcher(t)

	_, err := NewFutureIO(nil, api.ChannelID(api.MakeHandle(5, 1)))
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestFutureIOEchoRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)

	// Two pipes emulate a duplex link: the echo fiber reads requests from
	// reqR and writes replies to respW.
	reqR, reqW := dispatchPipe(t)
	respR, respW := dispatchPipe(t)

	s := fiber.NewScheduler(fiber.SchedConfig{Workers: 2})
	defer func() { _ = s.Shutdown() }()

	reqCID, reqCh, err := GetChannel()
	require.NoError(t, err)
	reqCh.FD = int(reqR.Fd())
	require.NoError(t, d.Watch(reqCID))

	respCID, respCh, err := GetChannel()
	require.NoError(t, err)
	respCh.FD = int(respW.Fd())

	reqFut, err := NewFutureIO(d, reqCID)
	require.NoError(t, err)
	respFut, err := NewFutureIO(d, respCID)
	require.NoError(t, err)

	echo, err := s.Start(fiber.Attr{Name: "echo"}, func(self *fiber.Fiber, _ any) {
		buf := make([]byte, 64)
		for {
			if err := reqFut.WaitReadable(self); err != nil {
				return
			}
			n, err := reqR.Read(buf)
			if n <= 0 || err != nil {
				return
			}
			if err := respFut.WaitWritable(self); err != nil {
				return
			}
			if _, err := respW.Write(buf[:n]); err != nil {
				return
			}
		}
	}, nil)
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := reqW.Write([]byte(msg))
		require.NoError(t, err)

		got := make([]byte, 16)
		require.NoError(t, respR.SetReadDeadline(time.Now().Add(5*time.Second)))
		n, err := respR.Read(got)
		require.NoError(t, err)
		assert.Equal(t, msg, string(got[:n]))
	}

	echo.Stop() // cancels the blocked wait at its next suspension point
	require.NoError(t, echo.Join(nil))
	require.NoError(t, d.Unwatch(reqCID))
	require.NoError(t, ReturnChannel(reqCID))
	require.NoError(t, ReturnChannel(respCID))
}
