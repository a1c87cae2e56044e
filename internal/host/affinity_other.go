//go:build !linux

package host

import "runtime"

func allowedCPUs() (func(int) bool, error) {
	return func(int) bool { return true }, nil
}

// PinCurrentThread only locks the goroutine to its OS thread; CPU binding is
// not available on this platform.
func PinCurrentThread(cpu int) error {
	runtime.LockOSThread()
	return nil
}

func UnpinCurrentThread() {
	runtime.UnlockOSThread()
}
