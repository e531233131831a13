// File: internal/poller/poller_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poller

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
)

func newTestPoller(t *testing.T) api.Poller {
	t.Helper()
	p, err := New()
	if errors.Is(err, api.ErrNotSupported) {
		t.Skip("no poller backend on this platform")
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func testPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func TestPollTimeout(t *testing.T) {
	p := newTestPoller(t)
	r, _ := testPipe(t)

	cid := api.ChannelID(api.MakeHandle(3, 7))
	require.NoError(t, p.AddPollIn(cid, int(r.Fd())))

	results := make([]api.PollResult, 4)
	start := time.Now()
	n, err := p.Poll(results, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "idle pipe must time out")
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestPollReadable(t *testing.T) {
	p := newTestPoller(t)
	r, w := testPipe(t)

	cid := api.ChannelID(api.MakeHandle(11, 5))
	require.NoError(t, p.AddPollIn(cid, int(r.Fd())))
	require.NoError(t, p.AddPollIn(cid, int(r.Fd())), "re-adding the same interest is idempotent")

	_, err := w.Write([]byte("x"))
	require.NoError(t, err)

	results := make([]api.PollResult, 4)
	n, err := p.Poll(results, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, cid, results[0].Channel, "the registered id must ride through the kernel")
	assert.True(t, results[0].Readable)
	assert.False(t, results[0].Writable)
}

func TestPollWritableOnDemand(t *testing.T) {
	p := newTestPoller(t)
	r, w := testPipe(t)

	rid := api.ChannelID(api.MakeHandle(1, 1))
	wid := api.ChannelID(api.MakeHandle(1, 2))
	require.NoError(t, p.AddPollIn(rid, int(r.Fd())))
	require.NoError(t, p.AddPollOut(wid, int(w.Fd()), false))

	// An empty pipe is immediately writable.
	results := make([]api.PollResult, 4)
	n, err := p.Poll(results, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, wid, results[0].Channel)
	assert.True(t, results[0].Writable)

	// Dropping write interest silences the poller again.
	require.NoError(t, p.RemovePollOut(wid, int(w.Fd()), false))
	n, err = p.Poll(results, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPollRemoveIn(t *testing.T) {
	p := newTestPoller(t)
	r, w := testPipe(t)

	cid := api.ChannelID(api.MakeHandle(9, 2))
	require.NoError(t, p.AddPollIn(cid, int(r.Fd())))
	require.NoError(t, p.RemovePollIn(int(r.Fd())))
	assert.ErrorIs(t, p.RemovePollIn(int(r.Fd())), api.ErrNotFound)

	_, err := w.Write([]byte("x"))
	require.NoError(t, err)

	results := make([]api.PollResult, 4)
	n, err := p.Poll(results, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unregistered fd must not report")
}

func TestPollHangupReportsError(t *testing.T) {
	p := newTestPoller(t)
	r, w := testPipe(t)

	cid := api.ChannelID(api.MakeHandle(2, 4))
	require.NoError(t, p.AddPollIn(cid, int(r.Fd())))
	require.NoError(t, w.Close())

	results := make([]api.PollResult, 4)
	n, err := p.Poll(results, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, cid, results[0].Channel)
	assert.True(t, results[0].Readable || results[0].Error,
		"peer hangup must surface as readable or error")
}

func TestPollValidation(t *testing.T) {
	p := newTestPoller(t)
	_, err := p.Poll(nil, time.Millisecond)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
