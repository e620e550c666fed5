// Package diagnostics reports process-level health numbers (goroutine count, open file
// descriptors). The calibration package's tests use GoroutineCount to check that the worker
// goroutine exits.
package diagnostics

import (
	"os"
	"runtime"
)

// OpenFileDescriptors reports how many file descriptors this process currently holds open.
// Linux-only; returns 0 on other platforms or if /proc is unavailable.
func OpenFileDescriptors() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0
	}
	return len(entries)
}

// GoroutineCount reports the current number of live goroutines.
func GoroutineCount() int {
	return runtime.NumGoroutine()
}
