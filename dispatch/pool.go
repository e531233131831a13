// File: dispatch/pool.go
// Dispatcher pool: one listener loop plus hashed data loops.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/fiber"
)

// PoolConfig tunes the dispatcher pool.
type PoolConfig struct {
	// Dispatchers is the number of data loops. Listener traffic gets its
	// own loop on top, so accepts never starve behind data events.
	Dispatchers int

	// DispatchInFiber runs every loop as a pinned NeverQuit fiber.
	DispatchInFiber bool

	// Scheduler hosts loop fibers when DispatchInFiber is set.
	Scheduler *fiber.Scheduler

	// PollBatch and PollInterval forward to each dispatcher.
	PollBatch    int
	PollInterval time.Duration

	// Logger receives lifecycle and failure records.
	Logger api.Logger
}

// DefaultPoolConfig returns production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Dispatchers: 4}
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Dispatchers <= 0 {
		c.Dispatchers = DefaultPoolConfig().Dispatchers
	}
	return c
}

// DispatcherPool spreads channels over several dispatcher loops. Channels
// map to loops by fd, so one fd always lands on the same loop and its
// callbacks stay serialized.
type DispatcherPool struct {
	listener *EventDispatcher
	data     []*EventDispatcher
	log      api.Logger
}

var _ api.GracefulShutdown = (*DispatcherPool)(nil)

// NewDispatcherPool builds the listener loop and cfg.Dispatchers data loops.
func NewDispatcherPool(cfg PoolConfig) (*DispatcherPool, error) {
	cfg = cfg.withDefaults()
	p := &DispatcherPool{log: cfg.Logger}

	mk := func(name string) (*EventDispatcher, error) {
		return New(Config{
			Name:            name,
			PollBatch:       cfg.PollBatch,
			PollInterval:    cfg.PollInterval,
			DispatchInFiber: cfg.DispatchInFiber,
			Scheduler:       cfg.Scheduler,
			Logger:          cfg.Logger,
		})
	}

	listener, err := mk("listen")
	if err != nil {
		return nil, err
	}
	p.listener = listener
	for i := 0; i < cfg.Dispatchers; i++ {
		d, err := mk(fmt.Sprintf("data-%d", i))
		if err != nil {
			_ = p.Shutdown()
			return nil, err
		}
		p.data = append(p.data, d)
	}
	p.log.Info().Int("dispatchers", cfg.Dispatchers).Log("dispatcher pool up")
	return p, nil
}

// Listener returns the loop reserved for accept sockets.
func (p *DispatcherPool) Listener() *EventDispatcher {
	return p.listener
}

// ForFD returns the data loop owning fd. The mapping is stable for the
// pool's lifetime.
func (p *DispatcherPool) ForFD(fd int) *EventDispatcher {
	if fd < 0 {
		fd = -fd
	}
	return p.data[fd%len(p.data)]
}

// All returns every loop, listener first.
func (p *DispatcherPool) All() []*EventDispatcher {
	out := make([]*EventDispatcher, 0, len(p.data)+1)
	out = append(out, p.listener)
	return append(out, p.data...)
}

// Stats snapshots every loop, listener first.
func (p *DispatcherPool) Stats() []api.DispatcherStats {
	all := p.All()
	out := make([]api.DispatcherStats, 0, len(all))
	for _, d := range all {
		out = append(out, d.Stats())
	}
	return out
}

// Shutdown stops all loops and joins them. Idempotent.
func (p *DispatcherPool) Shutdown() error {
	for _, d := range p.All() {
		if d != nil {
			d.Stop()
		}
	}
	for _, d := range p.All() {
		if d != nil {
			d.Join()
		}
	}
	return nil
}

var (
	poolOnce    sync.Once
	processPool *DispatcherPool
	poolErr     error
)

// Setup builds the process-wide dispatcher pool on first call; later calls
// return the same pool regardless of cfg.
func Setup(cfg PoolConfig) (*DispatcherPool, error) {
	poolOnce.Do(func() {
		processPool, poolErr = NewDispatcherPool(cfg)
	})
	return processPool, poolErr
}

// Default returns the process-wide pool, building it with defaults on
// first use.
func Default() (*DispatcherPool, error) {
	return Setup(DefaultPoolConfig())
}
