package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/match"
	"github.com/gocraft2-project/gocraft2/internal/protocol"
	"github.com/gocraft2-project/gocraft2/internal/transport"
)

// LadderConfig carries the flags a ladder manager passes to every bot
// binary it starts: where the already-running engine listens and the base
// of the agreed game port plan.
type LadderConfig struct {
	// Server is the host the ladder manager launched the engine on.
	Server string

	// GamePort is the engine's API port for this bot.
	GamePort int

	// StartPort is the base of the shared game port plan; both sides
	// derive the same server and client ports from it.
	StartPort int

	// Bus receives lifecycle events. Nil drops them.
	Bus *events.EventBus

	// MaxGameLoops aborts runaway matches, zero means no limit.
	MaxGameLoops uint32
}

// LadderRunner plays one side of a ladder match: the manager already
// launched the engine and created the game, this process only joins with
// the agreed port plan and plays its slot.
type LadderRunner struct {
	cfg    LadderConfig
	logger zerolog.Logger
}

// NewLadderRunner validates the ladder flags and returns a runner.
func NewLadderRunner(cfg LadderConfig) (*LadderRunner, error) {
	if cfg.Server == "" {
		return nil, errors.New("ladder: server host is required")
	}
	if cfg.GamePort <= 0 {
		return nil, errors.New("ladder: game port is required")
	}
	if cfg.StartPort <= 0 {
		return nil, errors.New("ladder: start port is required")
	}

	return &LadderRunner{
		cfg: cfg,
		logger: log.With().
			Str("component", "ladder").
			Str("server", cfg.Server).
			Int("game_port", cfg.GamePort).
			Logger(),
	}, nil
}

// Run joins the hosted game and plays it to a result. The returned slice
// usually carries only this bot's own outcome: the opponent plays from a
// different process.
func (lr *LadderRunner) Run(ctx context.Context, player match.Player, stepCount uint32) ([]match.Result, error) {
	if player.Type != protocol.PlayerParticipant {
		return nil, fmt.Errorf("ladder: player %s must be a participant slot", player.Name)
	}

	cfg := match.Config{
		Map:       "ladder", // the manager created the game, the map is theirs
		Players:   []match.Player{player},
		StepCount: stepCount,
	}
	endpoint := transport.Endpoint{Host: lr.cfg.Server, Port: lr.cfg.GamePort}

	m, err := NewMatch(cfg, []transport.Endpoint{endpoint}, Options{
		Bus:    lr.cfg.Bus,
		Ports:  match.NewPortConfig(int32(lr.cfg.StartPort)),
		HostIP: lr.cfg.Server,
	})
	if err != nil {
		return nil, err
	}
	defer m.Shutdown()

	lr.logger.Info().
		Str("match_id", m.ID).
		Str("player", player.Name).
		Int("start_port", lr.cfg.StartPort).
		Msg("joining ladder game")

	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	if err := m.Join(); err != nil {
		return nil, err
	}
	return m.Play(ctx, lr.cfg.MaxGameLoops)
}
