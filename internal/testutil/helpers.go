package testutil

import (
	"os"
	"runtime"
	"testing"
)

// RequireRoot skips the test unless it runs as root on linux. Changing file
// ownership on a real filesystem needs both.
func RequireRoot(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("Skipping test: requires linux")
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
