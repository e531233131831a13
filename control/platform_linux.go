//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific platform metrics or debug probe integrations.

package control

import (
	"runtime"

	"github.com/momentics/hioload-fiber/affinity"
)

// RegisterPlatformProbes sets Linux-specific debug metrics.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.current_cpu", func() any {
		cpu, err := affinity.CurrentCPU()
		if err != nil {
			return err.Error()
		}
		return cpu
	})
	dp.RegisterProbe("platform.numa_node", func() any {
		node, err := affinity.CurrentNode()
		if err != nil {
			return err.Error()
		}
		return node
	})
}
