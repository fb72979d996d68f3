// Package runner drives matches end to end: engine processes launched,
// sessions connected, the game created and joined, the simulation advanced
// in lock step, and everything torn down afterwards.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/launcher"
	"github.com/gocraft2-project/gocraft2/internal/maps"
	"github.com/gocraft2-project/gocraft2/internal/match"
	"github.com/gocraft2-project/gocraft2/internal/transport"
)

// LocalConfig wires a LocalRunner.
type LocalConfig struct {
	Launcher *launcher.Launcher
	Loader   *maps.Loader

	// Bus receives lifecycle events. Nil drops them.
	Bus *events.EventBus

	// Host is where launched engines bind their API listener.
	Host string

	// StartingPort numbers engine API ports sequentially from here. Zero
	// asks the OS for free ports instead.
	StartingPort int

	// MaxGameLoops aborts runaway matches, zero means no limit.
	MaxGameLoops uint32
}

// LocalRunner launches engines on this machine and plays matches on them.
type LocalRunner struct {
	launcher *launcher.Launcher
	loader   *maps.Loader
	bus      *events.EventBus
	host     string
	basePort int
	maxLoops uint32
	logger   zerolog.Logger
}

// NewLocalRunner validates the wiring and returns a runner.
func NewLocalRunner(cfg LocalConfig) (*LocalRunner, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("runner needs a launcher")
	}
	if cfg.Loader == nil {
		return nil, errors.New("runner needs a map loader")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}

	return &LocalRunner{
		launcher: cfg.Launcher,
		loader:   cfg.Loader,
		bus:      cfg.Bus,
		host:     cfg.Host,
		basePort: cfg.StartingPort,
		maxLoops: cfg.MaxGameLoops,
		logger:   log.With().Str("component", "runner").Logger(),
	}, nil
}

// Run plays one match start to finish: one engine process per participant,
// host creates, everyone joins, the tick loop runs until a result. Engines
// are always stopped before Run returns, whatever went wrong in between.
func (r *LocalRunner) Run(ctx context.Context, cfg match.Config) ([]match.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Resolve the map first, before any engine is burned on a typo.
	mapData, err := r.loader.Load(cfg.Map)
	if err != nil {
		return nil, err
	}

	bots := cfg.Bots()
	ports, err := r.enginePorts(len(bots))
	if err != nil {
		return nil, err
	}

	// Engines come up one at a time. Parallel cold starts fight over the
	// install's shader cache and crash.
	engines := make([]*launcher.Engine, 0, len(bots))
	defer func() { r.stopEngines(engines) }()

	for _, port := range ports {
		engine, err := r.launcher.Launch(port)
		if err != nil {
			return nil, fmt.Errorf("failed to launch engine on port %d: %w", port, err)
		}
		engines = append(engines, engine)
		r.emitLaunched(engine)
	}

	endpoints := make([]transport.Endpoint, len(ports))
	for i, port := range ports {
		endpoints[i] = transport.Endpoint{Host: r.host, Port: port}
	}

	m, err := NewMatch(cfg, endpoints, Options{Bus: r.bus})
	if err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("match_id", m.ID).
		Str("map", cfg.Map).
		Int("participants", len(bots)).
		Msg("starting match")

	return r.play(ctx, m, mapData)
}

func (r *LocalRunner) play(ctx context.Context, m *Match, mapData []byte) ([]match.Result, error) {
	defer m.Shutdown()

	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	if err := m.Create(mapData); err != nil {
		return nil, err
	}
	if err := m.Join(); err != nil {
		return nil, err
	}
	return m.Play(ctx, r.maxLoops)
}

// enginePorts picks one API port per engine: sequential from the base port
// when configured, free OS picks otherwise.
func (r *LocalRunner) enginePorts(count int) ([]int, error) {
	ports := make([]int, 0, count)
	for i := 0; i < count; i++ {
		if r.basePort > 0 {
			ports = append(ports, r.basePort+i)
			continue
		}
		port, err := launcher.FreePort()
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func (r *LocalRunner) stopEngines(engines []*launcher.Engine) {
	for _, engine := range engines {
		if err := engine.Stop(); err != nil {
			r.logger.Warn().Err(err).Int("port", engine.Port()).Msg("failed to stop engine")
		}
		r.emitExited(engine)
	}
}

func (r *LocalRunner) emitLaunched(engine *launcher.Engine) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(context.Background(), events.Event{
		Type:   events.EventEngineLaunched,
		Source: "runner",
		Payload: events.EngineLaunchedPayload{
			Port:       engine.Port(),
			PID:        engine.PID(),
			Executable: engine.Executable(),
		},
	})
}

func (r *LocalRunner) emitExited(engine *launcher.Engine) {
	if r.bus == nil {
		return
	}
	r.bus.Emit(context.Background(), events.Event{
		Type:   events.EventEngineExited,
		Source: "runner",
		Payload: events.EngineExitedPayload{
			Port:     engine.Port(),
			PID:      engine.PID(),
			ExitCode: engine.ExitCode(),
		},
	})
}
