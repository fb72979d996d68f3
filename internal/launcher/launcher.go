// Package launcher locates a StarCraft II installation and supervises the
// engine processes started from it.
package launcher

import (
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls how engine processes are launched.
type Config struct {
	// InstallDir overrides install discovery. When empty the SC2PATH
	// environment variable and then the platform default are consulted.
	InstallDir string

	// Host is the address the engine binds its API listener to.
	Host string

	// DisplayMode selects windowed (0) or fullscreen (1) rendering.
	DisplayMode  int
	WindowWidth  int
	WindowHeight int
	WindowX      int
	WindowY      int

	// Verbose enables the engine's own console logging.
	Verbose bool
}

// Launcher starts engine processes from one discovered installation.
type Launcher struct {
	cfg     Config
	install *Install
	logger  zerolog.Logger
}

// New discovers the installation and returns a launcher bound to it.
func New(cfg Config) (*Launcher, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 1280
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 720
	}

	install, err := FindInstall(cfg.InstallDir)
	if err != nil {
		return nil, fmt.Errorf("failed to locate installation: %w", err)
	}

	return &Launcher{
		cfg:     cfg,
		install: install,
		logger: log.With().
			Str("component", "launcher").
			Str("install", install.Root).
			Logger(),
	}, nil
}

// Install returns the discovered installation.
func (l *Launcher) Install() *Install {
	return l.install
}

// MapsDir returns the installation's Maps directory.
func (l *Launcher) MapsDir() string {
	return l.install.MapsDir()
}

// Launch starts one engine process listening on the given port. The caller
// owns the returned Engine and must Stop it.
func (l *Launcher) Launch(port int) (*Engine, error) {
	exe, err := l.install.ExecPath()
	if err != nil {
		return nil, err
	}

	engine := newEngine(exe, l.args(port), l.install.SupportDir(), port)
	if err := engine.Start(); err != nil {
		return nil, err
	}
	return engine, nil
}

// args builds the engine command line for one instance. The engine's parser
// is strict about flag order for the listen pair, so it goes first.
func (l *Launcher) args(port int) []string {
	args := []string{
		"-listen", l.cfg.Host,
		"-port", strconv.Itoa(port),
		"-displayMode", strconv.Itoa(l.cfg.DisplayMode),
		"-windowwidth", strconv.Itoa(l.cfg.WindowWidth),
		"-windowheight", strconv.Itoa(l.cfg.WindowHeight),
		"-windowx", strconv.Itoa(l.cfg.WindowX),
		"-windowy", strconv.Itoa(l.cfg.WindowY),
	}
	if l.cfg.Verbose {
		args = append(args, "-verbose")
	}
	return args
}

// FreePort asks the OS for an unused TCP port on loopback.
func FreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to pick a free port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
