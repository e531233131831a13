// File: facade/runtime_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-fiber/api"
	"github.com/momentics/hioload-fiber/facade"
	"github.com/momentics/hioload-fiber/fiber"
)

// newTestRuntime builds a small runtime, skipping on platforms without a
// poller backend.
func newTestRuntime(t *testing.T, mutate func(*facade.Config)) *facade.Runtime {
	t.Helper()
	cfg := facade.DefaultConfig()
	cfg.Concurrency = 1
	cfg.Workers = 2
	cfg.EnableMetrics = false
	if mutate != nil {
		mutate(cfg)
	}
	r, err := facade.New(cfg)
	if errors.Is(err, api.ErrNotSupported) {
		t.Skip("no poller backend on this platform")
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown() })
	return r
}

func TestRuntimeFullLifecycle(t *testing.T) {
	r := newTestRuntime(t, nil)
	require.NoError(t, r.Start())

	// Fibers run.
	got := make(chan any, 1)
	_, err := r.Go("probe", func(self *fiber.Fiber, arg any) {
		got <- arg
	}, 42)
	require.NoError(t, err)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		t.Fatal("fiber did not run")
	}

	// Timers fire.
	fired := make(chan struct{}, 1)
	_, err = r.RunAfter(5*time.Millisecond, func(any) {
		fired <- struct{}{}
	}, nil)
	require.NoError(t, err)
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}

	// Reload hooks trigger on config updates.
	var called atomic.Bool
	r.Control().OnReload(func() { called.Store(true) })
	require.NoError(t, r.Control().SetConfig(map[string]any{"some": "data"}))
	require.Eventually(t, called.Load, 2*time.Second, time.Millisecond)

	require.NoError(t, r.Shutdown())
}

func TestRuntimeNilConfigUsesDefaults(t *testing.T) {
	r, err := facade.New(nil)
	if errors.Is(err, api.ErrNotSupported) {
		t.Skip("no poller backend on this platform")
	}
	require.NoError(t, err)
	defer r.Shutdown()

	cfg := r.Control().GetConfig()
	assert.Equal(t, 4, cfg["concurrency"])
	assert.Equal(t, "hioload-fiber", cfg["name"])
}

func TestRuntimeStatsProbes(t *testing.T) {
	r := newTestRuntime(t, nil)
	require.NoError(t, r.Start())

	stats := r.Control().Stats()
	require.Contains(t, stats, "debug.scheduler")
	require.Contains(t, stats, "debug.dispatchers")
	require.Contains(t, stats, "debug.timers")
	require.Contains(t, stats, "debug.channels")
	assert.Contains(t, stats, "instance.id")

	ss, ok := stats["debug.scheduler"].(api.SchedulerStats)
	require.True(t, ok)
	assert.Equal(t, 2, ss.Workers)
}

func TestRuntimePublishMetrics(t *testing.T) {
	r := newTestRuntime(t, nil)
	require.NoError(t, r.Start())

	r.PublishMetrics()
	stats := r.Control().Stats()
	assert.Contains(t, stats, "sched.workers")
	assert.Contains(t, stats, "dispatch.polls")
	assert.Contains(t, stats, "timer.pending")
	assert.Equal(t, 2, stats["sched.workers"])
}

func TestRuntimeHeartbeat(t *testing.T) {
	r := newTestRuntime(t, func(cfg *facade.Config) {
		cfg.EnableMetrics = true
		cfg.HeartbeatInterval = 10 * time.Millisecond
	})
	require.NoError(t, r.Start())

	require.Eventually(t, func() bool {
		_, ok := r.Control().Stats()["sched.workers"]
		return ok
	}, 5*time.Second, 5*time.Millisecond)
}

func TestRuntimeInfo(t *testing.T) {
	r := newTestRuntime(t, nil)
	info := r.Info()
	assert.Equal(t, "hioload-fiber", info.Name)
	assert.Equal(t, facade.Version, info.Version)
	assert.NotEmpty(t, info.Build)
}

func TestRuntimeShutdownIdempotent(t *testing.T) {
	r := newTestRuntime(t, nil)
	require.NoError(t, r.Start())
	require.NoError(t, r.Shutdown())
	require.NoError(t, r.Shutdown())
	assert.NoError(t, r.Stop())
}

func TestRuntimeStartAfterStopIsNoop(t *testing.T) {
	r := newTestRuntime(t, func(cfg *facade.Config) {
		cfg.EnableMetrics = true
		cfg.HeartbeatInterval = time.Millisecond
	})
	require.NoError(t, r.Start())
	require.NoError(t, r.Shutdown())
	// Start after Stop must not re-arm the heartbeat on a dead timer
	// dispatcher.
	require.NoError(t, r.Start())
}
