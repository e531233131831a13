// Package api
// Author: momentics
//
// OS readiness polling abstraction. One Poller instance backs one event
// dispatcher loop; implementations live in internal/poller and are selected
// per platform (epoll on Linux, poll(2) elsewhere on Unix).

package api

import "time"

// PollResult is one readiness report produced by Poller.Poll. The channel id
// travels through the kernel round trip verbatim, so a result may refer to a
// channel that was returned to its pool while the event was in flight;
// consumers must treat unresolvable ids as stale, not as corruption.
type PollResult struct {
	Channel  ChannelID
	Readable bool
	Writable bool
	Error    bool
}

// Poller registers file descriptors with the OS readiness facility and
// collects batches of readiness reports. Implementations are safe for
// concurrent registration calls, while Poll itself is single-consumer:
// exactly one dispatcher loop drives it.
type Poller interface {
	// AddPollIn registers fd for read readiness, tagged with cid.
	// Registering an fd twice for the same interest is idempotent.
	AddPollIn(cid ChannelID, fd int) error

	// AddPollOut registers fd for write readiness, tagged with cid.
	// keepIn preserves an existing read interest on the same fd.
	AddPollOut(cid ChannelID, fd int, keepIn bool) error

	// RemovePollOut drops write interest; keepIn retains read interest.
	RemovePollOut(cid ChannelID, fd int, keepIn bool) error

	// RemovePollIn unregisters the fd entirely.
	RemovePollIn(fd int) error

	// Poll blocks up to timeout for readiness, filling results from the
	// front. It returns the number of results, ErrInterrupted when the
	// wait was cut short by a signal, or a fatal error. A zero count with
	// a nil error is a timeout.
	Poll(results []PollResult, timeout time.Duration) (int, error)

	// Close releases the OS resources. The Poller is unusable afterwards.
	Close() error
}
