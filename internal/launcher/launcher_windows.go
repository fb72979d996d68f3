//go:build windows

package launcher

import (
	"os"
	"os/exec"
	"path/filepath"
)

// execName is the engine binary filename on Windows.
const execName = "SC2_x64.exe"

// defaultInstallDir is the conventional Battle.net install root.
func defaultInstallDir() string {
	return `C:\Program Files (x86)\StarCraft II`
}

// supportDir is Support64: the engine resolves its DLLs relative to it and
// fails to start from anywhere else.
func supportDir(root string) string {
	return filepath.Join(root, "Support64")
}

func setPlatformProcessAttrs(cmd *exec.Cmd) {
	if devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}
}
