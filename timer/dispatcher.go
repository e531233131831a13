// File: timer/dispatcher.go
// Package timer implements one-shot timer dispatch for the fiber runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Dispatcher keeps pending tasks in a binary min-heap guarded by one
// mutex; task records live in a versioned slab pool, so a TimerID surviving
// its task resolves to nil on cancel instead of revoking a stranger.
// Exactly one of {fire, cancel} wins for every task: both paths claim the
// record with a CAS on its state word before acting.
//
// The heap is driven by a platform backend: timerfd+epoll on Linux, a
// time.Timer loop elsewhere (and under ForceFallback). Callbacks run on the
// backend's own thread, outside the heap lock, and may schedule further
// timers on the same dispatcher.

package timer

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/pool"
)

// Backend selects the waiting strategy of a Dispatcher.
type Backend int

const (
	// BackendAuto picks timerfd on Linux and the portable loop elsewhere.
	BackendAuto Backend = iota
	// BackendTimerfd requires the Linux timerfd loop.
	BackendTimerfd
	// BackendFallback forces the portable time.Timer loop.
	BackendFallback
)

// minArm is the shortest rearm delta handed to the OS timer. Deadlines in
// the past still need a positive arm value or timerfd would disarm.
const minArm = 2 * time.Microsecond

// Config tunes one Dispatcher.
type Config struct {
	Backend Backend
	Logger  api.Logger
	// Pool overrides the task pool tuning; zero value uses pool defaults.
	Pool pool.Config
}

// DefaultConfig returns the tuning used by the process-wide dispatcher.
func DefaultConfig() Config {
	return Config{Backend: BackendAuto, Pool: pool.DefaultConfig()}
}

const (
	taskScheduled int32 = iota + 1
	taskFiring
	taskCancelled
)

// task is one pooled timer record.
type task struct {
	at    time.Time
	fn    func(arg any)
	arg   any
	state atomic.Int32
}

type heapEntry struct {
	at  time.Time
	seq uint64
	id  api.TimerID
}

// timerHeap orders by deadline, ties broken by submission order.
type timerHeap []heapEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(heapEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// backend is the waiting loop behind a Dispatcher.
type backend interface {
	// run loops until stop, invoking the dispatcher sweep as deadlines
	// elapse. It closes the dispatcher join channel on exit.
	run()
	// kick re-arms the loop after the earliest deadline moved forward.
	kick(earliest time.Time)
	// stop makes run return; it must be safe to call once.
	stop()
}

// Dispatcher is a one-shot timer scheduler.
type Dispatcher struct {
	cfg Config
	log api.Logger

	mu      sync.Mutex
	heap    timerHeap
	seq     uint64
	stopped bool

	tasks *pool.Pool[task]
	bk    backend

	joinCh chan struct{}

	scheduled atomic.Uint64
	fired     atomic.Uint64
	cancelled atomic.Uint64
}

// Compile-time interface compliance.
var _ api.TimerScheduler = (*Dispatcher)(nil)

// New creates a Dispatcher and starts its backend loop.
func New(cfg Config) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:    cfg,
		log:    cfg.Logger,
		tasks:  pool.New[task](cfg.Pool),
		joinCh: make(chan struct{}),
	}
	bk, err := newBackend(d, cfg.Backend)
	if err != nil {
		return nil, err
	}
	d.bk = bk
	go bk.run()
	return d, nil
}

// RunAt schedules fn(arg) at the absolute time deadline.
func (d *Dispatcher) RunAt(deadline time.Time, fn func(arg any), arg any) (api.TimerID, error) {
	if fn == nil {
		return api.InvalidTimerID, api.ErrInvalidArgument
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return api.InvalidTimerID, api.ErrStopped
	}
	h, rec, err := d.tasks.Get()
	if err != nil {
		d.mu.Unlock()
		return api.InvalidTimerID, err
	}
	rec.at = deadline
	rec.fn = fn
	rec.arg = arg
	rec.state.Store(taskScheduled)

	id := api.TimerID(h)
	d.seq++
	heap.Push(&d.heap, heapEntry{at: deadline, seq: d.seq, id: id})
	becameEarliest := d.heap[0].id == id
	d.mu.Unlock()

	d.scheduled.Add(1)
	if becameEarliest {
		d.bk.kick(deadline)
	}
	return id, nil
}

// RunAfter schedules fn(arg) after delay.
func (d *Dispatcher) RunAfter(delay time.Duration, fn func(arg any), arg any) (api.TimerID, error) {
	return d.RunAt(time.Now().Add(delay), fn, arg)
}

// Cancel revokes a pending task. After the callback has been claimed for
// execution, Cancel reports ErrNotFound.
func (d *Dispatcher) Cancel(id api.TimerID) error {
	rec := d.tasks.Address(api.Handle(id))
	if rec == nil {
		return api.ErrNotFound
	}
	if !rec.state.CompareAndSwap(taskScheduled, taskCancelled) {
		return api.ErrNotFound
	}
	d.cancelled.Add(1)
	// The heap entry goes stale: the freed slot's version bump makes the
	// sweep skip it.
	return d.tasks.Put(api.Handle(id))
}

// Stop revokes all pending tasks and shuts the backend down. Idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for len(d.heap) > 0 {
		e := heap.Pop(&d.heap).(heapEntry)
		rec := d.tasks.Address(api.Handle(e.id))
		if rec == nil {
			continue
		}
		if rec.state.CompareAndSwap(taskScheduled, taskCancelled) {
			d.cancelled.Add(1)
			_ = d.tasks.Put(api.Handle(e.id))
		}
	}
	d.mu.Unlock()
	d.bk.stop()
}

// Join blocks until the backend loop has exited.
func (d *Dispatcher) Join() {
	<-d.joinCh
}

// Stats reports dispatcher counters for debug probes.
func (d *Dispatcher) Stats() api.TimerStats {
	d.mu.Lock()
	pending := len(d.heap)
	d.mu.Unlock()
	return api.TimerStats{
		Scheduled: d.scheduled.Load(),
		Fired:     d.fired.Load(),
		Cancelled: d.cancelled.Load(),
		Pending:   pending,
	}
}

type dueTask struct {
	fn  func(any)
	arg any
	id  api.TimerID
}

// sweep claims and runs every task whose deadline has elapsed and returns
// the next pending deadline (zero time when the heap is empty). Callbacks
// run outside the heap lock.
func (d *Dispatcher) sweep() time.Time {
	now := time.Now()
	var due []dueTask

	d.mu.Lock()
	for len(d.heap) > 0 {
		e := d.heap[0]
		rec := d.tasks.Address(api.Handle(e.id))
		if rec == nil {
			// Cancelled entry, purged lazily.
			heap.Pop(&d.heap)
			continue
		}
		if e.at.After(now) {
			break
		}
		heap.Pop(&d.heap)
		if !rec.state.CompareAndSwap(taskScheduled, taskFiring) {
			// Lost the claim to a concurrent Cancel.
			continue
		}
		due = append(due, dueTask{fn: rec.fn, arg: rec.arg, id: e.id})
	}
	var next time.Time
	if len(d.heap) > 0 {
		next = d.heap[0].at
	}
	d.mu.Unlock()

	for _, t := range due {
		d.runTask(t)
	}
	return next
}

// runTask isolates callback panics so one bad task cannot kill the backend
// loop. The record is retired either way.
func (d *Dispatcher) runTask(t dueTask) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Err().Stringer("timer", t.id).Field("panic", r).
				Log("timer callback panicked")
		}
		d.fired.Add(1)
		_ = d.tasks.Put(api.Handle(t.id))
	}()
	t.fn(t.arg)
}

var (
	defaultOnce sync.Once
	defaultDisp *Dispatcher
)

// Default returns the process-wide dispatcher, constructing it lazily.
func Default() *Dispatcher {
	defaultOnce.Do(func() {
		d, err := New(DefaultConfig())
		if err != nil {
			// The auto backend degrades to the portable loop, which
			// cannot fail to construct.
			d, _ = New(Config{Backend: BackendFallback, Pool: pool.DefaultConfig()})
		}
		defaultDisp = d
	})
	return defaultDisp
}

// RunAt schedules fn(arg) at deadline on the process-wide dispatcher.
func RunAt(deadline time.Time, fn func(arg any), arg any) (api.TimerID, error) {
	return Default().RunAt(deadline, fn, arg)
}

// RunAfter schedules fn(arg) after delay on the process-wide dispatcher.
func RunAfter(delay time.Duration, fn func(arg any), arg any) (api.TimerID, error) {
	return Default().RunAfter(delay, fn, arg)
}

// Cancel revokes a pending task on the process-wide dispatcher.
func Cancel(id api.TimerID) error {
	return Default().Cancel(id)
}

// newBackend builds the requested backend, degrading BackendAuto to the
// portable loop when the platform one is unavailable.
func newBackend(d *Dispatcher, which Backend) (backend, error) {
	switch which {
	case BackendTimerfd:
		return newTimerfdBackend(d)
	case BackendFallback:
		return newFallbackBackend(d), nil
	default:
		if bk, err := newTimerfdBackend(d); err == nil {
			return bk, nil
		}
		return newFallbackBackend(d), nil
	}
}
