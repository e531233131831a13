// control/control.go
// Author: momentics <momentics@gmail.com>
//
// Controller binds the config store, metrics registry and debug probes into
// the api.Control surface the facade hands to operators.

package control

import (
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-fiber/api"
)

// Controller implements api.Control and api.Debug over the control package
// primitives. Each Controller carries a unique instance id so stats from
// several runtimes in one process stay distinguishable.
type Controller struct {
	instanceID string
	startedAt  time.Time

	name    string
	version string

	config  *ConfigStore
	metrics *MetricsRegistry
	probes  *DebugProbes

	log api.Logger
}

var (
	_ api.Control = (*Controller)(nil)
	_ api.Debug   = (*Controller)(nil)
)

// NewController constructs a Controller with platform probes pre-registered.
func NewController(name, version string, log api.Logger) *Controller {
	c := &Controller{
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
		name:       name,
		version:    version,
		config:     NewConfigStore(),
		metrics:    NewMetricsRegistry(),
		probes:     NewDebugProbes(),
		log:        log,
	}
	RegisterPlatformProbes(c.probes)
	return c
}

// InstanceID returns the unique id assigned at construction.
func (c *Controller) InstanceID() string { return c.instanceID }

// Info describes this runtime instance.
func (c *Controller) Info() api.ServiceInfo {
	return api.ServiceInfo{
		Name:      c.name,
		Version:   c.version,
		Build:     c.instanceID,
		StartedAt: c.startedAt,
	}
}

// GetConfig returns a snapshot of the dynamic configuration.
func (c *Controller) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

// SetConfig merges cfg into the store and notifies reload listeners.
func (c *Controller) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	c.log.Info().Int("keys", len(cfg)).Log("config updated")
	return nil
}

// Stats merges published metrics, probe output and instance identity.
func (c *Controller) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	debugStats := c.probes.DumpState()
	combined := make(map[string]any, len(stats)+len(debugStats)+2)
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	combined["instance.id"] = c.instanceID
	combined["instance.uptime"] = time.Since(c.startedAt).String()
	return combined
}

// OnReload registers fn for config-change notification.
func (c *Controller) OnReload(fn func()) {
	c.config.OnReload(fn)
	RegisterReloadHook(fn)
}

// SetMetric publishes one metric value.
func (c *Controller) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

// SetMetrics publishes a batch of metric values.
func (c *Controller) SetMetrics(values map[string]any) {
	c.metrics.SetAll(values)
}

// RegisterDebugProbe installs a named probe reachable through Stats and
// DumpState.
func (c *Controller) RegisterDebugProbe(name string, fn func() any) {
	c.probes.RegisterProbe(name, fn)
}

// DumpState implements api.Debug.
func (c *Controller) DumpState() map[string]any {
	return c.probes.DumpState()
}

// RegisterProbe implements api.Debug.
func (c *Controller) RegisterProbe(name string, fn func() any) {
	c.probes.RegisterProbe(name, fn)
}
