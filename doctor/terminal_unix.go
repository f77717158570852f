//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode a hotkey backend may leave behind.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
