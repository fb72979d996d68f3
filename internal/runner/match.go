package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/match"
	"github.com/gocraft2-project/gocraft2/internal/protocol"
	"github.com/gocraft2-project/gocraft2/internal/session"
	"github.com/gocraft2-project/gocraft2/internal/transport"
)

// ErrLoopLimit aborts matches that outlive the configured game loop budget.
var ErrLoopLimit = errors.New("game loop limit reached")

// Options tunes how a Match talks to its engines.
type Options struct {
	// Bus receives lifecycle events. Nil drops them.
	Bus *events.EventBus

	// Ports fixes the shared multiplayer port plan. Nil lets the match
	// pick free ports itself; single-participant games need none at all.
	Ports *match.PortConfig

	// HostIP names the machine hosting the game when participants join
	// across machines. Empty when everything shares one host.
	HostIP string

	// Dial overrides the websocket dialer, used by tests to splice in
	// in-process engines.
	Dial session.DialFunc
}

// Match drives one game across its participant sessions: create, join, the
// lock-step tick loop, and teardown.
type Match struct {
	ID  string
	cfg match.Config

	bots     []match.Player
	sessions []*session.Session
	ports    *match.PortConfig
	hostIP   string

	bus    *events.EventBus
	logger zerolog.Logger

	mu        sync.Mutex
	status    match.Status
	startedAt time.Time
	results   []match.Result
}

// NewMatch wires one session per participant slot. endpoints holds the
// engine endpoint for each participant, in slot order.
func NewMatch(cfg match.Config, endpoints []transport.Endpoint, opts Options) (*Match, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bots := cfg.Bots()
	if len(endpoints) != len(bots) {
		return nil, fmt.Errorf("%d participants need %d endpoints, got %d",
			len(bots), len(bots), len(endpoints))
	}

	ports := opts.Ports
	if ports == nil && len(bots) > 1 {
		var err error
		ports, err = match.FreePortConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to reserve game ports: %w", err)
		}
	}

	m := &Match{
		ID:     uuid.NewString(),
		cfg:    cfg,
		bots:   bots,
		ports:  ports,
		hostIP: opts.HostIP,
		bus:    opts.Bus,
		status: match.StatusPending,
	}
	m.logger = log.With().
		Str("component", "match").
		Str("match_id", m.ID).
		Str("map", cfg.Map).
		Logger()

	for _, endpoint := range endpoints {
		m.sessions = append(m.sessions, session.New(session.Config{
			Endpoint:       endpoint,
			ConnectTimeout: cfg.ConnectTimeout,
			RequestTimeout: cfg.RequestTimeout,
			Dial:           opts.Dial,
		}))
	}
	return m, nil
}

// Connect establishes every participant's session concurrently.
func (m *Match) Connect(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range m.sessions {
		i := i
		g.Go(func() error {
			if err := m.sessions[i].Connect(ctx); err != nil {
				return fmt.Errorf("player %s: %w", m.bots[i].Name, err)
			}
			m.emitStateChange(i, session.Disconnected)
			return nil
		})
	}
	return g.Wait()
}

// Create has the first participant's session create the game. The other
// participants only join; the engine replicates the game to them through
// the shared port plan.
func (m *Match) Create(mapData []byte) error {
	host := m.sessions[0]
	from := host.State()

	err := host.CreateGame(&protocol.RequestCreateGame{
		LocalMap:    &protocol.LocalMap{MapData: mapData},
		PlayerSetup: m.cfg.PlayerSetups(),
		DisableFog:  m.cfg.DisableFog,
		RandomSeed:  m.cfg.RandomSeed,
		Realtime:    m.cfg.Realtime,
	})
	if err != nil {
		return fmt.Errorf("player %s: %w", m.bots[0].Name, err)
	}
	m.emitStateChange(0, from)

	names := make([]string, 0, len(m.cfg.Players))
	for _, p := range m.cfg.Players {
		names = append(names, p.Name)
	}
	m.emit(events.EventMatchCreated, events.MatchCreatedPayload{
		MatchID:  m.ID,
		Map:      m.cfg.Map,
		Players:  names,
		Realtime: m.cfg.Realtime,
	})
	m.logger.Info().Strs("players", names).Msg("game created")
	return nil
}

// Join gets every participant into the game. Joins run concurrently: in
// multiplayer the engine holds each join until all participants arrive, so
// sequential joins would deadlock.
func (m *Match) Join() error {
	g := new(errgroup.Group)
	for i := range m.sessions {
		i := i
		g.Go(func() error {
			req := &protocol.RequestJoinGame{
				Race:       m.bots[i].Race,
				PlayerName: m.bots[i].Name,
				HostIP:     m.hostIP,
				Options:    &protocol.InterfaceOptions{Raw: true, Score: true},
			}
			if m.ports != nil {
				server := m.ports.ServerPorts
				req.ServerPorts = &server
				req.ClientPorts = append([]protocol.PortSet(nil), m.ports.ClientPorts...)
			}

			from := m.sessions[i].State()
			playerID, err := m.sessions[i].JoinGame(req)
			if err != nil {
				return fmt.Errorf("player %s: %w", m.bots[i].Name, err)
			}
			m.emitStateChange(i, from)
			m.logger.Info().
				Str("player", m.bots[i].Name).
				Uint32("player_id", playerID).
				Msg("player joined")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	m.status = match.StatusRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	m.emit(events.EventMatchStarted, events.MatchStartedPayload{
		MatchID: m.ID,
		Players: len(m.cfg.Players),
	})
	return nil
}

// Tick runs one lock-step round advancing loops simulation loops, or the
// configured per-tick count when loops is zero. Every live session observes,
// hands the observation to its bot, and advances the simulation; the round
// returns only when all of them have finished, so no session starts the next
// round early. In realtime mode the step request is skipped and the engine
// advances on its own clock.
func (m *Match) Tick(ctx context.Context, loops uint32) (match.ObservationSet, error) {
	if loops == 0 {
		loops = m.cfg.Steps()
	}
	set := make(match.ObservationSet, len(m.sessions))
	var setMu sync.Mutex

	g := new(errgroup.Group)
	for i := range m.sessions {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sess := m.sessions[i]
			if sess.State() == session.Ended {
				return nil
			}

			obs, err := sess.Observe()
			if err != nil {
				return fmt.Errorf("player %s observe: %w", m.bots[i].Name, err)
			}
			setMu.Lock()
			set[sess.PlayerID()] = obs
			setMu.Unlock()

			if obs.Ended() || sess.State() == session.Ended {
				return nil
			}

			if bot := m.bots[i].Bot; bot != nil {
				step := &match.StepContext{
					PlayerID:    sess.PlayerID(),
					GameLoop:    sess.GameLoop(),
					Observation: obs,
				}
				if err := bot.OnStep(step); err != nil {
					return fmt.Errorf("player %s bot: %w", m.bots[i].Name, err)
				}
			}

			if m.cfg.Realtime {
				return nil
			}
			if _, err := sess.Step(loops); err != nil {
				return fmt.Errorf("player %s step: %w", m.bots[i].Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return set, err
	}
	return set, nil
}

// Play ticks the match until the engine reports results, the loop budget
// runs out, or the context is cancelled. The returned results are also
// available from Results afterwards.
func (m *Match) Play(ctx context.Context, maxLoops uint32) ([]match.Result, error) {
	for {
		select {
		case <-ctx.Done():
			return m.abort(ctx.Err())
		default:
		}

		set, err := m.Tick(ctx, 0)
		if err != nil {
			return m.abort(err)
		}

		loop := m.GameLoop()
		m.emit(events.EventMatchTick, events.MatchTickPayload{MatchID: m.ID, GameLoop: loop})

		if set.Ended() || m.anySessionEnded() {
			return m.finish(), nil
		}
		if maxLoops > 0 && loop >= maxLoops {
			return m.abort(fmt.Errorf("%w after %d loops", ErrLoopLimit, loop))
		}
	}
}

// Shutdown leaves and quits whatever is still alive. Safe to call in any
// state the match died in, including after an engine loss.
func (m *Match) Shutdown() {
	var wg sync.WaitGroup
	for i := range m.sessions {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess := m.sessions[i]

			switch sess.State() {
			case session.Created, session.Joined, session.InGame:
				if err := sess.Leave(); err != nil {
					m.logger.Warn().Err(err).
						Str("player", m.bots[i].Name).
						Msg("leave failed during shutdown")
				}
			}

			if err := sess.Quit(); err != nil {
				m.logger.Debug().Err(err).
					Str("player", m.bots[i].Name).
					Msg("quit failed during shutdown")
			}
		}()
	}
	wg.Wait()
}

// finish snapshots the engine-reported results. Any session that saw the
// end carries the full result list, the host is just checked first.
func (m *Match) finish() []match.Result {
	var playerResults []protocol.PlayerResult
	for _, sess := range m.sessions {
		if rs := sess.Results(); len(rs) > 0 {
			playerResults = rs
			break
		}
	}

	loop := m.GameLoop()
	results := make([]match.Result, 0, len(playerResults))
	for _, pr := range playerResults {
		results = append(results, match.Result{
			PlayerID: pr.PlayerID,
			Name:     m.playerName(pr.PlayerID),
			Race:     m.playerRace(pr.PlayerID),
			Outcome:  pr.Result,
			GameLoop: loop,
		})
	}

	m.mu.Lock()
	m.results = results
	m.status = match.StatusEnded
	duration := time.Since(m.startedAt)
	m.mu.Unlock()

	m.emitEnded(results, loop, duration, false, "")
	m.logger.Info().
		Uint32("game_loop", loop).
		Dur("duration", duration).
		Msg("match ended")
	return results
}

// abort records a result for each participant session and reports the cause.
func (m *Match) abort(cause error) ([]match.Result, error) {
	loop := m.GameLoop()
	results := make([]match.Result, 0, len(m.sessions))
	for i, sess := range m.sessions {
		// A session that saw the real end keeps its engine outcome.
		outcome := protocol.ResultUndecided
		if own, ok := sess.Result(); ok {
			outcome = own
		}
		results = append(results, match.Result{
			PlayerID: sess.PlayerID(),
			Name:     m.bots[i].Name,
			Race:     m.bots[i].Race,
			Outcome:  outcome,
			GameLoop: loop,
			Aborted:  true,
			Error:    cause.Error(),
		})
	}

	m.mu.Lock()
	m.results = results
	m.status = match.StatusEnded
	var duration time.Duration
	if !m.startedAt.IsZero() {
		duration = time.Since(m.startedAt)
	}
	m.mu.Unlock()

	for _, sess := range m.sessions {
		if errors.Is(cause, session.ErrSessionAborted) {
			m.emit(events.EventSessionAborted, events.SessionAbortedPayload{
				MatchID:  m.ID,
				Endpoint: sess.Endpoint().Addr(),
				Reason:   cause.Error(),
			})
			break
		}
	}

	m.emitEnded(results, loop, duration, true, cause.Error())
	m.logger.Warn().Err(cause).Uint32("game_loop", loop).Msg("match aborted")
	return results, cause
}

// Results returns the recorded outcome, empty until the match ends.
func (m *Match) Results() []match.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]match.Result(nil), m.results...)
}

// Status reports where the match sits in its lifecycle.
func (m *Match) Status() match.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// GameLoop returns the furthest simulation loop any session has observed.
func (m *Match) GameLoop() uint32 {
	var loop uint32
	for _, sess := range m.sessions {
		if l := sess.GameLoop(); l > loop {
			loop = l
		}
	}
	return loop
}

// Sessions exposes the participant sessions in slot order.
func (m *Match) Sessions() []*session.Session {
	return m.sessions
}

func (m *Match) anySessionEnded() bool {
	for _, sess := range m.sessions {
		if sess.State() == session.Ended {
			return true
		}
	}
	return false
}

// playerName maps an engine player id back to a configured slot. The engine
// assigns ids in create_game slot order, starting at 1.
func (m *Match) playerName(playerID uint32) string {
	for i, sess := range m.sessions {
		if sess.PlayerID() == playerID {
			return m.bots[i].Name
		}
	}
	if playerID >= 1 && int(playerID) <= len(m.cfg.Players) {
		return m.cfg.Players[playerID-1].Name
	}
	return fmt.Sprintf("player %d", playerID)
}

func (m *Match) playerRace(playerID uint32) protocol.Race {
	for i, sess := range m.sessions {
		if sess.PlayerID() == playerID {
			return m.bots[i].Race
		}
	}
	if playerID >= 1 && int(playerID) <= len(m.cfg.Players) {
		return m.cfg.Players[playerID-1].Race
	}
	return protocol.RaceNone
}

func (m *Match) emit(eventType events.EventType, payload interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(context.Background(), events.Event{
		Type:    eventType,
		Source:  "runner",
		Payload: payload,
	})
}

func (m *Match) emitStateChange(i int, from session.State) {
	sess := m.sessions[i]
	m.emit(events.EventSessionStateChanged, events.SessionStateChangedPayload{
		MatchID:  m.ID,
		Endpoint: sess.Endpoint().Addr(),
		PlayerID: sess.PlayerID(),
		From:     from.String(),
		To:       sess.State().String(),
	})
}

func (m *Match) emitEnded(results []match.Result, loop uint32, duration time.Duration, aborted bool, cause string) {
	eventResults := make([]events.MatchResult, 0, len(results))
	for _, r := range results {
		eventResults = append(eventResults, events.MatchResult{
			PlayerID: r.PlayerID,
			Name:     r.Name,
			Race:     r.Race.String(),
			Outcome:  r.Outcome.String(),
		})
	}
	m.emit(events.EventMatchEnded, events.MatchEndedPayload{
		MatchID:  m.ID,
		Map:      m.cfg.Map,
		GameLoop: loop,
		Duration: duration,
		Aborted:  aborted,
		Error:    cause,
		Results:  eventResults,
	})
}
