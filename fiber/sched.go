// File: fiber/sched.go
// Scheduler: M fibers over N token workers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Workers own run tokens, not threads of fiber code: dispatching lends the
// token to the fiber goroutine through its grant channel, and the fiber's
// next suspension point hands the token back through release. Each worker
// drains its own bounded run queue first, then the shared overflow, then
// steals from siblings, and parks when everything is empty.

package fiber

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-fiber/affinity"
	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/internal/ring"
	"github.com/momentics/hioload-fiber/pool"
)

// SchedConfig tunes the fiber scheduler.
type SchedConfig struct {
	// Workers is the number of run-token workers. Worker 0 is kept
	// lightly loaded: broadcast wakeups avoid queueing to it so that
	// latency-critical singles land on a near-idle worker.
	Workers int

	// RunQueueCap is the per-worker run queue capacity, rounded up to a
	// power of two. Overflow spills to a shared unbounded queue.
	RunQueueCap int

	// PinWorkers locks each worker goroutine to an OS thread and binds
	// it to a CPU, round-robin over the available set.
	PinWorkers bool

	// DrainTimeout bounds the drain performed by Shutdown.
	DrainTimeout time.Duration

	// Pool configures the fiber id pool.
	Pool pool.Config

	// Logger receives lifecycle and failure records. Nil disables logging.
	Logger api.Logger
}

// DefaultSchedConfig returns production defaults.
func DefaultSchedConfig() SchedConfig {
	return SchedConfig{
		Workers:      runtime.NumCPU(),
		RunQueueCap:  256,
		DrainTimeout: 5 * time.Second,
		Pool:         pool.DefaultConfig(),
	}
}

func (c SchedConfig) withDefaults() SchedConfig {
	d := DefaultSchedConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.RunQueueCap <= 0 {
		c.RunQueueCap = d.RunQueueCap
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	return c
}

// fiberSlot is the pooled fiber record. Only the atomic pointer is ever
// touched, so a recycled slot never races with a late reader resolving a
// stale id.
type fiberSlot struct {
	f atomic.Pointer[Fiber]
}

// worker is one run-token owner.
type worker struct {
	idx    int
	sched  *Scheduler
	runq   *ring.Ring[api.FiberID]
	parkCh chan struct{}
	parked atomic.Bool
}

// Scheduler multiplexes fibers over a fixed set of workers. All methods are
// safe for concurrent use.
type Scheduler struct {
	cfg SchedConfig
	log api.Logger

	slots   *pool.Pool[fiberSlot]
	workers []*worker

	sharedMu sync.Mutex
	shared   *queue.Queue

	regMu sync.RWMutex
	reg   map[api.FiberID]*Fiber

	stopCh  chan struct{}
	stopped atomic.Bool
	rr      atomic.Uint32

	started  atomic.Uint64
	finished atomic.Uint64
	yields   atomic.Uint64
}

var _ api.GracefulShutdown = (*Scheduler)(nil)

// NewScheduler builds a scheduler and starts its workers.
func NewScheduler(cfg SchedConfig) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:    cfg,
		log:    cfg.Logger,
		slots:  pool.New[fiberSlot](cfg.Pool),
		shared: queue.New(),
		reg:    make(map[api.FiberID]*Fiber),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.workers = append(s.workers, &worker{
			idx:    i,
			sched:  s,
			runq:   ring.New[api.FiberID](cfg.RunQueueCap),
			parkCh: make(chan struct{}, 1),
		})
	}
	for _, w := range s.workers {
		go w.loop()
	}
	s.log.Info().Int("workers", cfg.Workers).Bool("pin", cfg.PinWorkers).
		Log("fiber scheduler up")
	return s
}

// Start launches fn as a new fiber. Non-pinned fibers become runnable
// immediately; pinned ones get their own locked thread and run at once.
// The returned Fiber stays usable for Stop and Join after the fiber exits.
func (s *Scheduler) Start(attr Attr, fn func(self *Fiber, arg any), arg any) (*Fiber, error) {
	if fn == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "fiber body must not be nil")
	}
	if s.stopped.Load() {
		return nil, api.ErrStopped
	}
	h, slot, err := s.slots.Get()
	if err != nil {
		return nil, err
	}
	f := &Fiber{
		id:      api.FiberID(h),
		attr:    attr,
		sched:   s,
		fn:      fn,
		arg:     arg,
		grant:   make(chan struct{}, 1),
		release: make(chan struct{}, 1),
	}
	f.lastWorker.Store(-1)
	f.state.Store(stateRunnable)
	slot.f.Store(f)

	s.regMu.Lock()
	s.reg[f.id] = f
	s.regMu.Unlock()
	s.started.Add(1)
	if attr.LogStartAndFinish {
		s.log.Info().Stringer("fiber", f.id).Str("name", attr.Name).
			Bool("pinned", attr.Pinned).Log("fiber started")
	}

	go s.run(f)
	if attr.Pinned {
		f.grant <- struct{}{}
	} else {
		s.enqueue(f, false)
	}
	return f, nil
}

// run is the fiber goroutine body. It blocks until the first grant, so a
// fiber consumes no worker time before being dispatched.
func (s *Scheduler) run(f *Fiber) {
	if f.attr.Pinned {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer s.finish(f)
	<-f.grant
	if f.attr.Pinned {
		f.state.Store(stateRunning)
	}
	f.fn(f, f.arg)
}

// finish settles the exit latch, retires the pooled id, and hands the run
// token back to the dispatching worker. Runs deferred, so a panicking fiber
// body cannot wedge a worker.
func (s *Scheduler) finish(f *Fiber) {
	if r := recover(); r != nil {
		s.log.Err().Stringer("fiber", f.id).Str("name", f.attr.Name).
			Field("panic", r).Log("fiber body panicked")
	}
	f.state.Store(stateDone)
	s.finished.Add(1)

	s.regMu.Lock()
	delete(s.reg, f.id)
	s.regMu.Unlock()

	if slot := s.slots.Address(api.Handle(f.id)); slot != nil {
		slot.f.Store(nil)
	}
	_ = s.slots.Put(api.Handle(f.id))

	if f.attr.LogStartAndFinish {
		s.log.Info().Stringer("fiber", f.id).Str("name", f.attr.Name).
			Log("fiber finished")
	}
	f.exit.Store(1)
	f.exit.NotifyAll()
	if !f.attr.Pinned {
		f.release <- struct{}{}
	}
}

// ready moves a waiting fiber back to runnable. The claim arbiter admits
// exactly one ready call per suspension, which keeps grant capacity one.
func (s *Scheduler) ready(f *Fiber, avoidWorker0 bool) {
	if !f.state.CompareAndSwap(stateWaiting, stateRunnable) {
		return
	}
	if f.attr.Pinned {
		// No worker involved: the grant goes straight to the fiber's
		// own thread.
		f.grant <- struct{}{}
		return
	}
	s.enqueue(f, avoidWorker0)
}

// enqueue queues a runnable fiber, preferring the worker that last ran it.
// A full run queue spills to the shared overflow; the target worker scans
// that too, so the unpark signal is still aimed correctly.
func (s *Scheduler) enqueue(f *Fiber, avoidWorker0 bool) {
	w := s.pickWorker(f, avoidWorker0)
	if !w.runq.Enqueue(f.id) {
		s.sharedMu.Lock()
		s.shared.Add(f.id)
		s.sharedMu.Unlock()
	}
	w.unpark()
}

func (s *Scheduler) pickWorker(f *Fiber, avoidWorker0 bool) *worker {
	n := len(s.workers)
	idx := int(f.lastWorker.Load())
	if idx < 0 || idx >= n {
		idx = int(s.rr.Add(1)) % n
	}
	if avoidWorker0 && idx == 0 && n > 1 {
		idx = 1 + int(s.rr.Add(1))%(n-1)
	}
	return s.workers[idx]
}

func (s *Scheduler) popShared() (api.FiberID, bool) {
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	if s.shared.Length() == 0 {
		return api.InvalidFiberID, false
	}
	return s.shared.Remove().(api.FiberID), true
}

func (s *Scheduler) sharedLen() int {
	s.sharedMu.Lock()
	defer s.sharedMu.Unlock()
	return s.shared.Length()
}

// Lookup resolves a live fiber id for debug surfaces. Stale ids return nil.
func (s *Scheduler) Lookup(id api.FiberID) *Fiber {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	return s.reg[id]
}

// Drain requests cooperative stop of every fiber not marked NeverQuit and
// joins them all within timeout.
func (s *Scheduler) Drain(timeout time.Duration) error {
	s.regMu.RLock()
	targets := make([]*Fiber, 0, len(s.reg))
	for _, f := range s.reg {
		if !f.attr.NeverQuit {
			targets = append(targets, f)
		}
	}
	s.regMu.RUnlock()

	for _, f := range targets {
		f.Stop()
	}
	deadline := time.Now().Add(timeout)
	stragglers := 0
	for _, f := range targets {
		if err := f.JoinUntil(nil, deadline); err != nil {
			stragglers++
		}
	}
	if stragglers > 0 {
		s.log.Warning().Int("stragglers", stragglers).Dur("timeout", timeout).
			Log("fiber drain timed out")
		return api.NewError(api.ErrCodeDeadlineExceeded, "fibers outlived the drain window").
			WithContext("stragglers", stragglers)
	}
	return nil
}

// Shutdown drains cancellable fibers and retires the workers once their
// queues empty. Idempotent: the first caller performs the drain and gets
// its error; later callers get nil. Fibers that survive the drain keep
// running on their own goroutines but are no longer scheduled.
func (s *Scheduler) Shutdown() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	err := s.Drain(s.cfg.DrainTimeout)
	close(s.stopCh)
	s.log.Info().Uint64("finished", s.finished.Load()).Log("fiber scheduler down")
	return err
}

// Stats snapshots scheduler counters for debug probes.
func (s *Scheduler) Stats() api.SchedulerStats {
	st := api.SchedulerStats{
		Workers:  len(s.workers),
		Started:  s.started.Load(),
		Finished: s.finished.Load(),
		Yields:   s.yields.Load(),
	}
	for _, w := range s.workers {
		st.RunnableLocal += w.runq.Len()
		if w.parked.Load() {
			st.ParkedWorkers++
		}
	}
	st.RunnableShare = s.sharedLen()
	s.regMu.RLock()
	st.LiveFibers = len(s.reg)
	for _, f := range s.reg {
		if f.attr.Pinned {
			st.PinnedFibers++
		}
	}
	s.regMu.RUnlock()
	return st
}

// loop is the worker body.
func (w *worker) loop() {
	if w.sched.cfg.PinWorkers {
		runtime.LockOSThread()
		if err := affinity.SetAffinity(w.idx % runtime.NumCPU()); err != nil {
			w.sched.log.Warning().Int("worker", w.idx).Err(err).
				Log("worker cpu pin failed")
		}
	}
	for {
		id, ok := w.next()
		if !ok {
			if w.sched.stopped.Load() {
				return
			}
			w.park()
			continue
		}
		w.dispatch(id)
	}
}

// next takes work in order: own queue, shared overflow, steal from siblings.
func (w *worker) next() (api.FiberID, bool) {
	if id, ok := w.runq.Dequeue(); ok {
		return id, true
	}
	if id, ok := w.sched.popShared(); ok {
		return id, true
	}
	n := len(w.sched.workers)
	for i := 1; i < n; i++ {
		if id, ok := w.sched.workers[(w.idx+i)%n].runq.Dequeue(); ok {
			return id, true
		}
	}
	return api.InvalidFiberID, false
}

// dispatch claims the fiber and lends it the run token. The receive on
// release blocks until the fiber's next suspension point or exit, which is
// what makes the fiber's steps atomic with respect to other fibers.
func (w *worker) dispatch(id api.FiberID) {
	slot := w.sched.slots.Address(api.Handle(id))
	if slot == nil {
		return // recycled id
	}
	f := slot.f.Load()
	if f == nil {
		return
	}
	if !f.state.CompareAndSwap(stateRunnable, stateRunning) {
		return
	}
	f.lastWorker.Store(int32(w.idx))
	f.grant <- struct{}{}
	<-f.release
}

// park blocks until new work is signalled. The queue recheck after setting
// the parked flag closes the race with push-then-signal producers.
func (w *worker) park() {
	w.parked.Store(true)
	defer w.parked.Store(false)
	if w.runq.Len() > 0 || w.sched.sharedLen() > 0 {
		return
	}
	select {
	case <-w.parkCh:
	case <-w.sched.stopCh:
	}
}

func (w *worker) unpark() {
	select {
	case w.parkCh <- struct{}{}:
	default:
	}
}

var (
	defaultOnce  sync.Once
	defaultSched *Scheduler
)

// Setup builds the process-wide scheduler on first call. Later calls, and
// Default, return the same instance regardless of cfg.
func Setup(cfg SchedConfig) *Scheduler {
	defaultOnce.Do(func() { defaultSched = NewScheduler(cfg) })
	return defaultSched
}

// Default returns the process-wide scheduler, building it with defaults on
// first use.
func Default() *Scheduler {
	return Setup(DefaultSchedConfig())
}

// Start launches a fiber on the process-wide scheduler.
func Start(attr Attr, fn func(self *Fiber, arg any), arg any) (*Fiber, error) {
	return Default().Start(attr, fn, arg)
}
