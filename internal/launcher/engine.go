package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// stopGraceTimeout is how long Stop waits for a clean exit before killing.
const stopGraceTimeout = 10 * time.Second

// Engine supervises a single StarCraft II client process.
type Engine struct {
	executable string
	args       []string
	workDir    string
	port       int

	mu        sync.Mutex
	cmd       *exec.Cmd
	proc      *process.Process
	pid       int
	running   bool
	startedAt time.Time
	exitCode  int
	exitErr   error

	done   chan struct{}
	logger zerolog.Logger
}

func newEngine(executable string, args []string, workDir string, port int) *Engine {
	return &Engine{
		executable: executable,
		args:       args,
		workDir:    workDir,
		port:       port,
		exitCode:   -1,
		done:       make(chan struct{}),
		logger: log.With().
			Str("component", "engine").
			Int("port", port).
			Logger(),
	}
}

// Start launches the engine process. The process is deliberately not tied to
// a context: an unrelated cancellation must not take a live game down, so
// termination is explicit via Stop or Kill.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running with PID %d", e.pid)
	}

	e.logger.Info().
		Str("executable", e.executable).
		Strs("args", e.args).
		Msg("Launching engine process")

	e.cmd = exec.Command(e.executable, e.args...)
	e.cmd.Dir = e.workDir
	setPlatformProcessAttrs(e.cmd)

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine process: %w", err)
	}

	e.pid = e.cmd.Process.Pid
	e.running = true
	e.startedAt = time.Now()

	if proc, err := process.NewProcess(int32(e.pid)); err == nil {
		e.proc = proc
	}

	go e.monitor()

	e.logger.Info().Int("pid", e.pid).Msg("Engine process started")
	return nil
}

// monitor owns the process wait. It is the only goroutine allowed to call
// cmd.Wait; everyone else watches the done channel.
func (e *Engine) monitor() {
	err := e.cmd.Wait()

	e.mu.Lock()
	e.running = false
	e.exitErr = err
	if e.cmd.ProcessState != nil {
		e.exitCode = e.cmd.ProcessState.ExitCode()
	}
	pid := e.pid
	exitCode := e.exitCode
	e.mu.Unlock()

	close(e.done)

	e.logger.Info().
		Int("pid", pid).
		Int("exit_code", exitCode).
		Msg("Engine process exited")
}

// Stop asks the process to terminate and kills it when it has not exited
// within the grace period. Safe to call after the process is already gone.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running || e.cmd == nil || e.cmd.Process == nil {
		e.mu.Unlock()
		return nil
	}
	pid := e.pid
	proc := e.cmd.Process
	e.mu.Unlock()

	e.logger.Info().Int("pid", pid).Msg("Stopping engine process")

	if err := proc.Signal(os.Interrupt); err != nil {
		e.logger.Warn().Err(err).Msg("Graceful shutdown failed, force killing")
		return e.Kill()
	}

	select {
	case <-e.done:
		e.logger.Info().Int("pid", pid).Msg("Engine stopped gracefully")
		return nil
	case <-time.After(stopGraceTimeout):
		e.logger.Warn().
			Int("pid", pid).
			Dur("grace", stopGraceTimeout).
			Msg("Engine did not stop in time, force killing")
		return e.Kill()
	}
}

// Kill terminates the process immediately.
func (e *Engine) Kill() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	e.logger.Warn().Int("pid", e.pid).Msg("Force killing engine process")
	if err := e.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill engine process: %w", err)
	}
	return nil
}

// Done is closed once the process has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// IsRunning reports whether the process is still alive.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// PID returns the process ID, zero before Start.
func (e *Engine) PID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pid
}

// Port returns the API port the engine was told to listen on.
func (e *Engine) Port() int {
	return e.port
}

// Executable returns the binary path this engine was launched from.
func (e *Engine) Executable() string {
	return e.executable
}

// StartedAt returns the launch time.
func (e *Engine) StartedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startedAt
}

// Uptime returns how long the process has been running, zero once exited.
func (e *Engine) Uptime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return 0
	}
	return time.Since(e.startedAt)
}

// ExitCode returns the process exit code, -1 while running or when the
// process died on a signal.
func (e *Engine) ExitCode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitCode
}

// GetCPUPercent returns the process CPU usage.
func (e *Engine) GetCPUPercent() (float64, error) {
	e.mu.Lock()
	proc := e.proc
	running := e.running
	e.mu.Unlock()

	if !running || proc == nil {
		return 0, fmt.Errorf("engine process is not running")
	}
	return proc.CPUPercent()
}

// GetMemoryMB returns the process resident memory in megabytes.
func (e *Engine) GetMemoryMB() (float64, error) {
	e.mu.Lock()
	proc := e.proc
	running := e.running
	e.mu.Unlock()

	if !running || proc == nil {
		return 0, fmt.Errorf("engine process is not running")
	}

	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory info: %w", err)
	}
	return float64(info.RSS) / 1024 / 1024, nil
}
