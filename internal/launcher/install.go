package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Install is a located StarCraft II installation root.
type Install struct {
	Root string
}

// FindInstall locates the installation: an explicit directory wins, then the
// SC2PATH environment variable, then the platform default.
func FindInstall(explicit string) (*Install, error) {
	root := explicit
	if root == "" {
		root = os.Getenv("SC2PATH")
	}
	if root == "" {
		root = defaultInstallDir()
	}
	if root == "" {
		return nil, errors.New("no install directory configured, SC2PATH not set, and no platform default")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("install root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("install root %s is not a directory", root)
	}
	return &Install{Root: root}, nil
}

// ExecPath returns the engine binary from the newest build directory under
// Versions/. Patches leave older Base* directories behind; the highest build
// number is the one the installed game actually runs.
func (i *Install) ExecPath() (string, error) {
	versions := filepath.Join(i.Root, "Versions")
	entries, err := os.ReadDir(versions)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", versions, err)
	}

	newest := ""
	newestBuild := -1
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "Base") {
			continue
		}
		build, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), "Base"))
		if err != nil {
			continue
		}
		if build > newestBuild {
			newestBuild = build
			newest = entry.Name()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no Base* build directories under %s", versions)
	}

	path := filepath.Join(versions, newest, execName)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("engine binary not found at %s: %w", path, err)
	}
	return path, nil
}

// MapsDir returns the installation's Maps directory.
func (i *Install) MapsDir() string {
	return filepath.Join(i.Root, "Maps")
}

// SupportDir returns the working directory the engine must be started from,
// or empty when the platform has no such requirement.
func (i *Install) SupportDir() string {
	return supportDir(i.Root)
}
