// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import (
	"fmt"
	"time"
)

// Handle is a versioned 64-bit resource identifier handed out by slab pools.
// The high 32 bits carry the slot version, the low 32 bits the slot index.
// A slot's version is bumped every time the slot is returned, so a handle
// held past the resource's lifetime dereferences to nil instead of to the
// slot's next occupant. Version 0 is never issued; the zero Handle is the
// universal invalid value.
type Handle uint64

// InvalidHandle is the zero, never-issued handle.
const InvalidHandle Handle = 0

// MakeHandle packs a version and slot index into a Handle.
func MakeHandle(version, slot uint32) Handle {
	return Handle(uint64(version)<<32 | uint64(slot))
}

// Version reports the slot version encoded in the handle.
func (h Handle) Version() uint32 { return uint32(h >> 32) }

// Slot reports the slot index encoded in the handle.
func (h Handle) Slot() uint32 { return uint32(h) }

// Valid reports whether the handle could have been issued by a pool.
func (h Handle) Valid() bool { return h.Version() != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("v%d/s%d", h.Version(), h.Slot())
}

// FiberID identifies a fiber record for its lifetime.
type FiberID Handle

// ChannelID identifies an event channel registered with a dispatcher.
type ChannelID Handle

// TimerID identifies a pending timer task.
type TimerID Handle

// Invalid typed handles, for call sites that return ids on error paths.
const (
	InvalidFiberID   FiberID   = FiberID(InvalidHandle)
	InvalidChannelID ChannelID = ChannelID(InvalidHandle)
	InvalidTimerID   TimerID   = TimerID(InvalidHandle)
)

// Valid reports whether the id refers to an issued fiber record.
func (id FiberID) Valid() bool { return Handle(id).Valid() }

// Valid reports whether the id refers to an issued channel record.
func (id ChannelID) Valid() bool { return Handle(id).Valid() }

// Valid reports whether the id refers to an issued timer task.
func (id TimerID) Valid() bool { return Handle(id).Valid() }

func (id FiberID) String() string   { return "fiber/" + Handle(id).String() }
func (id ChannelID) String() string { return "chan/" + Handle(id).String() }
func (id TimerID) String() string   { return "timer/" + Handle(id).String() }

// SchedulerStats is a point-in-time snapshot of the fiber scheduler.
type SchedulerStats struct {
	Workers       int
	ParkedWorkers int
	LiveFibers    int
	PinnedFibers  int
	RunnableLocal int
	RunnableShare int
	Started       uint64
	Finished      uint64
	Yields        uint64
}

// DispatcherStats is a point-in-time snapshot of one I/O event dispatcher.
type DispatcherStats struct {
	Polls        uint64
	Events       uint64
	StaleEvents  uint64
	Wakeups      uint64
	LiveChannels int
}

// TimerStats is a point-in-time snapshot of a timer dispatcher.
type TimerStats struct {
	Scheduled uint64
	Fired     uint64
	Cancelled uint64
	Pending   int
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}
