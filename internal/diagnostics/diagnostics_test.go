package diagnostics

import "testing"

func TestGoroutineCountIsPositive(t *testing.T) {
	if got := GoroutineCount(); got < 1 {
		t.Fatalf("want at least 1 goroutine (the test itself), got %d", got)
	}
}

func TestOpenFileDescriptorsDoesNotPanicOffLinux(t *testing.T) {
	// On a platform without /proc/self/fd this returns 0 rather than failing; the only
	// contract under test is that it never panics.
	_ = OpenFileDescriptors()
}
