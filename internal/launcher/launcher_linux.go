//go:build linux

package launcher

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// execName is the engine binary filename on Linux.
const execName = "SC2_x64"

// defaultInstallDir is ~/StarCraftII, where the Linux client unpacks.
func defaultInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "StarCraftII")
}

// supportDir is empty on Linux: the binary runs from anywhere.
func supportDir(root string) string {
	return ""
}

// setPlatformProcessAttrs puts the engine in its own process group so our
// signals do not fan out to it, and silences its console spam.
func setPlatformProcessAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}
}
