// File: facade/runtime.go
// Unified facade layer for the hioload-fiber runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the Runtime struct, which aggregates the core components
// of the runtime behind a single facade. It initializes the fiber scheduler,
// the I/O dispatcher pool, the timer dispatcher and the control surface based
// on immutable configuration. The facade exposes methods to start/stop the
// system, spawn fibers, schedule timers, and retrieve runtime services such
// as Control, Scheduler, Dispatchers and Timers.

package facade

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/control"
	"github.com/momentics/hioload-fiber/dispatch"
	"github.com/momentics/hioload-fiber/fiber"
	"github.com/momentics/hioload-fiber/timer"
)

// Version is the library version reported through ServiceInfo.
const Version = "1.0.0"

// Config holds parameters immutable per run.
// All fields influence the initialization of internal components and cannot
// be changed at runtime except via the Control interface which triggers hot-reload.
type Config struct {
	Name              string         // Service name for logs and stats
	Concurrency       int            // Number of I/O dispatcher data loops
	Workers           int            // Number of scheduler run-token workers
	RunQueueCap       int            // Per-worker run queue capacity
	PinWorkers        bool           // Whether to pin worker threads to CPUs
	DispatchInFiber   bool           // Run dispatcher loops as pinned fibers
	PollBatch         int            // Events per poll cycle
	PollInterval      time.Duration  // Idle poll timeout per dispatcher loop
	TimerBackend      timer.Backend  // Timer waiting-loop selection
	EnableLogging     bool           // Whether to build the default logger
	LogWriter         io.Writer      // Log destination, defaults to os.Stderr
	LogLevel          logiface.Level // Minimum emitted log level
	EnableMetrics     bool           // Whether to publish heartbeat metrics
	HeartbeatInterval time.Duration  // Interval between metric publications
	ShutdownTimeout   time.Duration  // Bound on the scheduler drain
}

// DefaultConfig returns default configuration values.
// These sane defaults support typical use cases without extensive tuning.
func DefaultConfig() *Config {
	return &Config{
		Name:              "hioload-fiber",
		Concurrency:       4,                // Four data dispatcher loops
		Workers:           runtime.NumCPU(), // One run token per CPU
		RunQueueCap:       256,              // 256 runnable fibers per worker
		PinWorkers:        false,            // No thread pinning by default
		DispatchInFiber:   false,            // Dispatcher loops on own goroutines
		PollBatch:         128,              // Translate up to 128 events per poll
		PollInterval:      time.Second,      // Re-poll at least once per second
		TimerBackend:      timer.BackendAuto,
		EnableLogging:     false,     // Library stays silent unless asked
		LogLevel:          logiface.LevelInformational,
		EnableMetrics:     true,             // Publish runtime gauges
		HeartbeatInterval: 10 * time.Second, // 10-second metric heartbeat
		ShutdownTimeout:   60 * time.Second, // 60-second graceful drain
	}
}

// Runtime is the main facade type.
// It implements api.GracefulShutdown to allow unified shutdown logic.
type Runtime struct {
	sched  *fiber.Scheduler         // M:N fiber scheduler
	disp   *dispatch.DispatcherPool // Listener plus hashed data loops
	timers *timer.Dispatcher        // One-shot timer scheduler
	ctrl   *control.Controller      // Dynamic config and metrics surface

	config  *Config     // Immutable configuration
	log     api.Logger  // Shared structured logger, nil when disabled
	mu      sync.Mutex  // Protects started/stopped flags and heartbeat id
	hbID    api.TimerID // Pending heartbeat task, if any
	started bool
	stopped bool
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Runtime)(nil)

// New constructs a Runtime with the given configuration.
// It initializes all internal subsystems: control, scheduler, dispatcher
// pool and timer dispatcher, and exposes the static configuration via the
// Control interface for observability.
func New(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Runtime{config: cfg}

	if cfg.EnableLogging {
		w := cfg.LogWriter
		if w == nil {
			w = os.Stderr
		}
		r.log = NewLogger(w, cfg.LogLevel)
	}

	r.ctrl = control.NewController(cfg.Name, Version, r.log)

	r.sched = fiber.NewScheduler(fiber.SchedConfig{
		Workers:      cfg.Workers,
		RunQueueCap:  cfg.RunQueueCap,
		PinWorkers:   cfg.PinWorkers,
		DrainTimeout: cfg.ShutdownTimeout,
		Logger:       r.log,
	})

	disp, err := dispatch.NewDispatcherPool(dispatch.PoolConfig{
		Dispatchers:     cfg.Concurrency,
		DispatchInFiber: cfg.DispatchInFiber,
		Scheduler:       r.sched,
		PollBatch:       cfg.PollBatch,
		PollInterval:    cfg.PollInterval,
		Logger:          r.log,
	})
	if err != nil {
		_ = r.sched.Shutdown()
		return nil, fmt.Errorf("dispatcher pool init failure: %w", err)
	}
	r.disp = disp

	timers, err := timer.New(timer.Config{Backend: cfg.TimerBackend, Logger: r.log})
	if err != nil {
		_ = r.disp.Shutdown()
		_ = r.sched.Shutdown()
		return nil, fmt.Errorf("timer dispatcher init failure: %w", err)
	}
	r.timers = timers

	// Expose configuration values via Control for observability.
	_ = r.ctrl.SetConfig(map[string]any{
		"name":               cfg.Name,
		"concurrency":        cfg.Concurrency,
		"workers":            cfg.Workers,
		"dispatch_in_fiber":  cfg.DispatchInFiber,
		"heartbeat_interval": cfg.HeartbeatInterval.String(),
		"shutdown_timeout":   cfg.ShutdownTimeout.String(),
	})
	r.registerProbes()

	return r, nil
}

// registerProbes installs live stat snapshots as debug probes so Stats and
// DumpState always report current values, not last-heartbeat ones.
func (r *Runtime) registerProbes() {
	r.ctrl.RegisterDebugProbe("scheduler", func() any { return r.sched.Stats() })
	r.ctrl.RegisterDebugProbe("dispatchers", func() any { return r.disp.Stats() })
	r.ctrl.RegisterDebugProbe("timers", func() any { return r.timers.Stats() })
	r.ctrl.RegisterDebugProbe("channels", func() any { return dispatch.ChannelPoolStats() })
}

// Start begins metric publication if configured. The scheduler, dispatcher
// and timer loops are already running after New; subsequent calls to Start()
// have no effect.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return nil
	}
	r.started = true
	if r.config.EnableMetrics && r.config.HeartbeatInterval > 0 {
		r.scheduleHeartbeatLocked()
	}
	r.log.Info().Str("name", r.config.Name).Str("version", Version).Log("runtime started")
	return nil
}

// scheduleHeartbeatLocked arms the next metrics publication. Caller holds mu.
func (r *Runtime) scheduleHeartbeatLocked() {
	id, err := r.timers.RunAfter(r.config.HeartbeatInterval, r.heartbeat, nil)
	if err != nil {
		r.log.Warning().Err(err).Log("heartbeat scheduling failed")
		return
	}
	r.hbID = id
}

// heartbeat publishes one metrics batch and re-arms itself while the
// runtime stays started.
func (r *Runtime) heartbeat(any) {
	r.PublishMetrics()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started && !r.stopped {
		r.scheduleHeartbeatLocked()
	}
}

// PublishMetrics pushes a point-in-time snapshot of every subsystem into
// the metrics registry. Called by the heartbeat; safe to call directly.
func (r *Runtime) PublishMetrics() {
	ss := r.sched.Stats()
	ts := r.timers.Stats()
	batch := map[string]any{
		"sched.workers":       ss.Workers,
		"sched.parked":        ss.ParkedWorkers,
		"sched.live_fibers":   ss.LiveFibers,
		"sched.pinned_fibers": ss.PinnedFibers,
		"sched.runnable":      ss.RunnableLocal + ss.RunnableShare,
		"sched.started":       ss.Started,
		"sched.finished":      ss.Finished,
		"sched.yields":        ss.Yields,
		"timer.scheduled":     ts.Scheduled,
		"timer.fired":         ts.Fired,
		"timer.cancelled":     ts.Cancelled,
		"timer.pending":       ts.Pending,
	}
	var polls, events, stale, wakeups uint64
	var channels int
	for _, ds := range r.disp.Stats() {
		polls += ds.Polls
		events += ds.Events
		stale += ds.StaleEvents
		wakeups += ds.Wakeups
		channels += ds.LiveChannels
	}
	batch["dispatch.polls"] = polls
	batch["dispatch.events"] = events
	batch["dispatch.stale_events"] = stale
	batch["dispatch.wakeups"] = wakeups
	batch["dispatch.live_channels"] = channels
	r.ctrl.SetMetrics(batch)
}

// Stop tears subsystems down in dependency order: I/O dispatcher loops
// first, then the timer dispatcher, then the scheduler drain. Calling Stop()
// more than once is a no-op.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	hbID := r.hbID
	r.hbID = api.InvalidTimerID
	r.mu.Unlock()

	if hbID.Valid() {
		// Lost races with an in-flight fire are fine; the callback sees
		// stopped and does not re-arm.
		_ = r.timers.Cancel(hbID)
	}

	err := r.disp.Shutdown()
	r.timers.Stop()
	r.timers.Join()
	if serr := r.sched.Shutdown(); err == nil {
		err = serr
	}
	r.log.Info().Str("name", r.config.Name).Log("runtime stopped")
	return err
}

// Shutdown implements api.GracefulShutdown by delegating to Stop().
func (r *Runtime) Shutdown() error {
	return r.Stop()
}

// Go spawns a fiber with default attributes.
func (r *Runtime) Go(name string, fn func(self *fiber.Fiber, arg any), arg any) (*fiber.Fiber, error) {
	return r.sched.Start(fiber.Attr{Name: name}, fn, arg)
}

// RunAfter schedules fn on the runtime's timer dispatcher.
func (r *Runtime) RunAfter(d time.Duration, fn func(arg any), arg any) (api.TimerID, error) {
	return r.timers.RunAfter(d, fn, arg)
}

// Control returns the Control interface for dynamic config and metrics.
func (r *Runtime) Control() api.Control {
	return r.ctrl
}

// Scheduler exposes the fiber scheduler.
func (r *Runtime) Scheduler() *fiber.Scheduler {
	return r.sched
}

// Dispatchers exposes the I/O dispatcher pool.
func (r *Runtime) Dispatchers() *dispatch.DispatcherPool {
	return r.disp
}

// Timers exposes the timer dispatcher.
func (r *Runtime) Timers() *timer.Dispatcher {
	return r.timers
}

// Info describes this runtime instance.
func (r *Runtime) Info() api.ServiceInfo {
	return r.ctrl.Info()
}
