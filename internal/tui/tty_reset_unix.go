//go:build !windows

package tui

import (
	"os"
	"os/exec"
)

// bestEffortResetTTY puts the terminal back into a sane line mode after an
// abnormal exit. Failures are ignored; there is nothing useful to do about
// them at shutdown.
func bestEffortResetTTY() {
	fi, err := os.Stdin.Stat()
	if err != nil || (fi.Mode()&os.ModeCharDevice) == 0 {
		// Not a TTY, nothing to fix.
		return
	}

	// Go through /dev/tty so a redirected stdin doesn't matter.
	_ = exec.Command("sh", "-lc", "stty sane < /dev/tty >/dev/null 2>&1 || true").Run()
}
