//go:build linux

package host

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// allowedCPUs reports which logical CPUs the process may run on.
func allowedCPUs() (func(int) bool, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}
	return set.IsSet, nil
}

// PinCurrentThread locks the calling goroutine to its OS thread and binds that
// thread to cpu. The caller must stay on the goroutine until UnpinCurrentThread.
func PinCurrentThread(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}

func UnpinCurrentThread() {
	runtime.UnlockOSThread()
}
