// control/control_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigStoreSetGet(t *testing.T) {
	cs := NewConfigStore()

	_, ok := cs.Get("missing")
	assert.False(t, ok)
	assert.Empty(t, cs.GetSnapshot())

	cs.SetConfig(map[string]any{"workers": 4, "name": "alpha"})
	v, ok := cs.Get("workers")
	require.True(t, ok)
	assert.Equal(t, 4, v)

	// Merge keeps unrelated keys.
	cs.SetConfig(map[string]any{"workers": 8})
	snap := cs.GetSnapshot()
	assert.Equal(t, 8, snap["workers"])
	assert.Equal(t, "alpha", snap["name"])
}

func TestConfigStoreSnapshotIsCopy(t *testing.T) {
	cs := NewConfigStore()
	cs.SetConfig(map[string]any{"k": 1})

	snap := cs.GetSnapshot()
	snap["k"] = 99
	snap["extra"] = true

	v, ok := cs.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = cs.Get("extra")
	assert.False(t, ok)
}

func TestConfigStoreReloadListeners(t *testing.T) {
	cs := NewConfigStore()
	var calls atomic.Int32
	cs.OnReload(func() { calls.Add(1) })
	cs.OnReload(func() { calls.Add(1) })

	cs.SetConfig(map[string]any{"k": 1})

	// Listeners run on their own goroutines.
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, 2*time.Second, time.Millisecond)
}

func TestMetricsRegistry(t *testing.T) {
	mr := NewMetricsRegistry()
	assert.True(t, mr.Updated().IsZero())

	mr.Set("fibers", 12)
	mr.SetAll(map[string]any{"polls": uint64(3), "events": uint64(9)})

	snap := mr.GetSnapshot()
	assert.Equal(t, 12, snap["fibers"])
	assert.Equal(t, uint64(3), snap["polls"])
	assert.Equal(t, uint64(9), snap["events"])
	assert.False(t, mr.Updated().IsZero())
}

func TestDebugProbes(t *testing.T) {
	dp := NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	dp.RegisterProbe("boom", func() any { panic("bad probe") })

	out := dp.DumpState()
	assert.Equal(t, 42, out["answer"])
	assert.Contains(t, out["boom"], "bad probe")
}

func TestControllerConfigAndStats(t *testing.T) {
	c := NewController("fiber-runtime", "1.0.0", nil)

	require.NoError(t, c.SetConfig(map[string]any{"workers": 4}))
	assert.Equal(t, 4, c.GetConfig()["workers"])

	c.SetMetric("sched.started", uint64(7))
	c.SetMetrics(map[string]any{"sched.finished": uint64(5)})
	c.RegisterDebugProbe("custom", func() any { return "ok" })

	stats := c.Stats()
	assert.Equal(t, uint64(7), stats["sched.started"])
	assert.Equal(t, uint64(5), stats["sched.finished"])
	assert.Equal(t, "ok", stats["debug.custom"])
	assert.Equal(t, c.InstanceID(), stats["instance.id"])
	assert.Contains(t, stats, "instance.uptime")
	// Platform probes are installed at construction.
	assert.Contains(t, stats, "debug.platform.cpus")
}

func TestControllerInfo(t *testing.T) {
	c := NewController("fiber-runtime", "1.0.0", nil)
	info := c.Info()
	assert.Equal(t, "fiber-runtime", info.Name)
	assert.Equal(t, "1.0.0", info.Version)
	assert.NotEmpty(t, info.Build)
	assert.WithinDuration(t, time.Now(), info.StartedAt, time.Minute)

	other := NewController("fiber-runtime", "1.0.0", nil)
	assert.NotEqual(t, c.InstanceID(), other.InstanceID())
}

func TestControllerReloadNotification(t *testing.T) {
	c := NewController("fiber-runtime", "1.0.0", nil)
	var calls atomic.Int32
	c.OnReload(func() { calls.Add(1) })

	require.NoError(t, c.SetConfig(map[string]any{"k": 1}))
	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 2*time.Second, time.Millisecond)
}

func TestControllerDumpState(t *testing.T) {
	c := NewController("fiber-runtime", "1.0.0", nil)
	c.RegisterProbe("p", func() any { return 1 })
	out := c.DumpState()
	assert.Equal(t, 1, out["p"])
}

func TestTriggerHotReloadSync(t *testing.T) {
	var calls atomic.Int32
	RegisterReloadHook(func() { calls.Add(1) })
	before := calls.Load()

	TriggerHotReloadSync()
	assert.Greater(t, calls.Load(), before)
}
