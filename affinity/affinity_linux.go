//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity, built on
// sched_setaffinity for the calling thread (tid 0). Pure Go; no cgo.

package affinity

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// getcpu invokes getcpu(2) via unix.RawSyscall; x/sys/unix defines
// SYS_GETCPU but ships no Getcpu wrapper on Linux.
func getcpu() (cpu, node int, err error) {
	var c, n uint32
	if _, _, errno := unix.RawSyscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&c)), uintptr(unsafe.Pointer(&n)), 0); errno != 0 {
		return -1, -1, errno
	}
	return int(c), int(n), nil
}

// setAffinityPlatform sets thread affinity to a given CPU for Linux.
func setAffinityPlatform(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return fmt.Errorf("affinity: cpu %d out of range", cpuID)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cpu %d: %w", cpuID, err)
	}
	return nil
}

// clearAffinityPlatform restores the full CPU mask.
func clearAffinityPlatform() error {
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < runtime.NumCPU(); i++ {
		set.Set(i)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity full mask: %w", err)
	}
	return nil
}

// currentCPUPlatform reports the CPU the calling thread last ran on.
func currentCPUPlatform() (int, error) {
	cpu, _, err := getcpu()
	if err != nil {
		return -1, fmt.Errorf("affinity: getcpu: %w", err)
	}
	return cpu, nil
}

// currentNodePlatform reports the NUMA node of the calling thread's CPU.
func currentNodePlatform() (int, error) {
	_, node, err := getcpu()
	if err != nil {
		return -1, fmt.Errorf("affinity: getcpu: %w", err)
	}
	return node, nil
}
