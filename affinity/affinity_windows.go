//go:build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific implementation for setting thread CPU affinity.

package affinity

import (
	"fmt"
	"runtime"
	"syscall"

	"github.com/momentics/hioload-fiber/api"
)

var (
	kernel32                  = syscall.NewLazyDLL("kernel32.dll")
	procSetThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	procGetCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// setAffinityPlatform sets thread affinity to a given CPU for Windows.
func setAffinityPlatform(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return fmt.Errorf("affinity: cpu %d out of range", cpuID)
	}
	return setMask(uintptr(1) << cpuID)
}

// clearAffinityPlatform restores the full CPU mask.
func clearAffinityPlatform() error {
	n := runtime.NumCPU()
	if n >= 64 {
		return setMask(^uintptr(0))
	}
	return setMask(uintptr(1)<<n - 1)
}

// currentCPUPlatform is unsupported on Windows.
func currentCPUPlatform() (int, error) {
	return -1, api.ErrNotSupported
}

// currentNodePlatform is unsupported on Windows.
func currentNodePlatform() (int, error) {
	return -1, api.ErrNotSupported
}

func setMask(mask uintptr) error {
	hThread, _, _ := procGetCurrentThread.Call()
	ret, _, err := procSetThreadAffinityMask.Call(hThread, mask)
	if ret == 0 {
		return err
	}
	return nil
}
