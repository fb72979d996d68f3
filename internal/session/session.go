// Package session drives the request/response lifecycle of one StarCraft II
// client connection. A session owns a transport, validates every request
// against its current state before sending, and keeps exactly one request in
// flight at a time. State only advances when the engine's response confirms
// the transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gocraft2-project/gocraft2/internal/protocol"
	"github.com/gocraft2-project/gocraft2/internal/transport"
)

const (
	// DefaultConnectTimeout covers engine startup. The process takes several
	// seconds to open its socket after launch, longer on first run.
	DefaultConnectTimeout = 100 * time.Second

	// DefaultRequestTimeout bounds a single exchange. Game creation loads
	// the map and is by far the slowest request.
	DefaultRequestTimeout = 120 * time.Second

	// staleDrainTimeout is how long the session waits, per abandoned
	// exchange, for a late response to show up before the next send.
	staleDrainTimeout = 20 * time.Millisecond
)

var (
	// ErrBadState rejects a request that is not legal in the session's
	// current state. Nothing is sent on the wire.
	ErrBadState = errors.New("request not legal in current state")

	// ErrPending rejects a request while another is still in flight.
	// Nothing is sent on the wire.
	ErrPending = errors.New("another request is in flight")

	// ErrSessionAborted marks a session that ended because the transport
	// failed or the response stream was corrupt, rather than by the game
	// finishing or the caller leaving.
	ErrSessionAborted = errors.New("session aborted")
)

// legalStates maps each request kind to the states it may be issued from.
// Quit is the engine shutdown request and stays legal even after Ended so a
// finished game can still tear its process down.
var legalStates = map[protocol.RequestKind]map[State]bool{
	protocol.KindCreateGame:  {Disconnected: true},
	protocol.KindJoinGame:    {Disconnected: true, Created: true},
	protocol.KindObservation: {Joined: true, InGame: true},
	protocol.KindStep:        {Joined: true, InGame: true},
	protocol.KindLeaveGame:   {Created: true, Joined: true, InGame: true},
	protocol.KindPing:        {Disconnected: true, Created: true, Joined: true, InGame: true},
	protocol.KindQuit:        {Disconnected: true, Created: true, Joined: true, InGame: true, Ended: true},
}

// Transport is the frame pipe a session drives. *transport.Transport
// implements it; tests substitute in-memory fakes.
type Transport interface {
	Send(frame []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// DialFunc opens a transport to an engine endpoint.
type DialFunc func(ctx context.Context, endpoint transport.Endpoint, timeout time.Duration) (Transport, error)

// Config carries the per-session connection settings.
type Config struct {
	Endpoint       transport.Endpoint
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// Dial overrides how the transport is opened. Defaults to
	// transport.Dial.
	Dial DialFunc
}

// Session is a stateful client connection to one engine process. Methods
// are safe for concurrent use, but the protocol allows only one outstanding
// request: a second concurrent request fails with ErrPending.
type Session struct {
	cfg    Config
	codec  *protocol.Codec
	logger zerolog.Logger

	mu        sync.Mutex
	tr        Transport
	state     State
	pending   bool
	nextID    uint32
	abandoned int
	stale     int
	status    protocol.Status
	playerID  uint32
	results   []protocol.PlayerResult
	lastObs   *protocol.Observation
	gameLoop  uint32
}

// New creates a session for the given endpoint. The transport is not opened
// until Connect.
func New(cfg Config) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, endpoint transport.Endpoint, timeout time.Duration) (Transport, error) {
			return transport.Dial(ctx, endpoint, timeout)
		}
	}
	return &Session{
		cfg:   cfg,
		codec: protocol.NewCodec(protocol.NewRegistry()),
		logger: log.With().
			Str("component", "session").
			Str("endpoint", cfg.Endpoint.Addr()).
			Logger(),
	}
}

// Connect opens the transport and validates liveness with a ping exchange.
// The engine reports status launched when it is sitting at the main menu.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.tr != nil {
		s.mu.Unlock()
		return fmt.Errorf("connect: already connected: %w", ErrBadState)
	}
	if s.state == Ended {
		s.mu.Unlock()
		return fmt.Errorf("connect: %w", ErrBadState)
	}
	s.mu.Unlock()

	tr, err := s.cfg.Dial(ctx, s.cfg.Endpoint, s.cfg.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.cfg.Endpoint, err)
	}

	s.mu.Lock()
	s.tr = tr
	s.mu.Unlock()

	resp, err := s.exchange(&protocol.Request{Ping: &protocol.RequestPing{}})
	if err != nil {
		return fmt.Errorf("liveness ping: %w", err)
	}
	s.expectStatus(resp.Status, protocol.StatusLaunched, "connect")

	s.logger.Info().
		Str("game_version", resp.Ping.GameVersion).
		Uint32("base_build", resp.Ping.BaseBuild).
		Msg("connected to engine")
	return nil
}

// CreateGame asks the engine to host a game. Legal only before any game has
// been created or joined on this connection.
func (s *Session) CreateGame(req *protocol.RequestCreateGame) error {
	resp, err := s.exchange(&protocol.Request{CreateGame: req})
	if err != nil {
		return err
	}
	if resp.CreateGame.Failed() {
		return fmt.Errorf("create_game refused: %s (code %d)",
			resp.CreateGame.ErrorDetails, resp.CreateGame.ErrorCode)
	}

	s.mu.Lock()
	s.setStateLocked(Created)
	s.mu.Unlock()
	s.expectStatus(resp.Status, protocol.StatusInitGame, "create_game")
	return nil
}

// JoinGame enters a created game, or an external one in ladder play, and
// returns the player id the engine assigned. Multiplayer joins block until
// every participant has joined.
func (s *Session) JoinGame(req *protocol.RequestJoinGame) (uint32, error) {
	resp, err := s.exchange(&protocol.Request{JoinGame: req})
	if err != nil {
		return 0, err
	}
	if resp.JoinGame.Failed() {
		return 0, fmt.Errorf("join_game refused: %s (code %d)",
			resp.JoinGame.ErrorDetails, resp.JoinGame.ErrorCode)
	}

	s.mu.Lock()
	s.playerID = resp.JoinGame.PlayerID
	s.setStateLocked(Joined)
	s.mu.Unlock()
	s.expectStatus(resp.Status, protocol.StatusInGame, "join_game")

	s.logger.Info().Uint32("player_id", resp.JoinGame.PlayerID).Msg("joined game")
	return resp.JoinGame.PlayerID, nil
}

// Observe fetches the current game state. A response carrying player
// results means the game is over and moves the session to Ended.
func (s *Session) Observe() (*protocol.ResponseObservation, error) {
	resp, err := s.exchange(&protocol.Request{Observation: &protocol.RequestObservation{}})
	if err != nil {
		return nil, err
	}
	obs := resp.Observation

	s.mu.Lock()
	if obs.Observation != nil {
		s.lastObs = obs.Observation
		s.gameLoop = obs.Observation.GameLoop
	}
	if len(obs.PlayerResult) > 0 {
		s.results = append([]protocol.PlayerResult(nil), obs.PlayerResult...)
	}
	switch {
	case obs.Ended() || resp.Status == protocol.StatusEnded:
		s.setStateLocked(Ended)
	case s.state == Joined:
		s.setStateLocked(InGame)
	}
	s.mu.Unlock()
	return obs, nil
}

// Step advances the simulation by count loops and returns the loop counter
// after the advance. The engine acknowledges only once the step completes,
// so a successful return means the tick happened exactly once.
func (s *Session) Step(count uint32) (uint32, error) {
	resp, err := s.exchange(&protocol.Request{Step: &protocol.RequestStep{Count: count}})
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if resp.Step.SimulationLoop > 0 {
		s.gameLoop = resp.Step.SimulationLoop
	}
	if resp.Status == protocol.StatusEnded {
		s.setStateLocked(Ended)
	} else if s.state == Joined {
		s.setStateLocked(InGame)
	}
	s.mu.Unlock()

	return resp.Step.SimulationLoop, nil
}

// Leave exits the current game. The engine drops back to the main menu and
// the session becomes Ended; only quit is accepted afterwards.
func (s *Session) Leave() error {
	resp, err := s.exchange(&protocol.Request{LeaveGame: &protocol.RequestLeaveGame{}})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.setStateLocked(Ended)
	s.mu.Unlock()
	s.expectStatus(resp.Status, protocol.StatusLaunched, "leave_game")
	return nil
}

// Ping round-trips a liveness request and returns the engine's version
// metadata. It never changes state.
func (s *Session) Ping() (*protocol.ResponsePing, error) {
	resp, err := s.exchange(&protocol.Request{Ping: &protocol.RequestPing{}})
	if err != nil {
		return nil, err
	}
	return resp.Ping, nil
}

// Quit tells the engine process to shut down. The engine closes the
// connection once it acknowledges, so the transport is closed here too.
func (s *Session) Quit() error {
	resp, err := s.exchange(&protocol.Request{Quit: &protocol.RequestQuit{}})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.setStateLocked(Ended)
	tr := s.tr
	s.mu.Unlock()
	s.expectStatus(resp.Status, protocol.StatusQuit, "quit")

	if tr != nil {
		tr.Close()
	}
	return nil
}

// Close tears the transport down without any protocol exchange and marks
// the session Ended. Safe to call at any time, including after Quit.
func (s *Session) Close() error {
	s.mu.Lock()
	s.setStateLocked(Ended)
	tr := s.tr
	s.mu.Unlock()

	if tr == nil {
		return nil
	}
	return tr.Close()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PlayerID returns the id assigned by join_game, zero before then.
func (s *Session) PlayerID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// Status returns the engine status reported by the most recent response.
func (s *Session) Status() protocol.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// GameLoop returns the simulation loop counter from the most recent
// observation or step.
func (s *Session) GameLoop() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameLoop
}

// LastObservation returns the most recent observation snapshot, nil before
// the first Observe.
func (s *Session) LastObservation() *protocol.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastObs
}

// Results returns the per-player outcomes reported by the engine, empty
// until the game ends.
func (s *Session) Results() []protocol.PlayerResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.PlayerResult(nil), s.results...)
}

// Result returns this session's own outcome, matching its player id against
// the reported results. ok is false while the game is still running.
func (s *Session) Result() (result protocol.Result, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pr := range s.results {
		if pr.PlayerID == s.playerID {
			return pr.Result, true
		}
	}
	return 0, false
}

// StaleFrames returns how many late responses from abandoned exchanges have
// been drained and discarded.
func (s *Session) StaleFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Endpoint returns the engine address this session targets.
func (s *Session) Endpoint() transport.Endpoint {
	return s.cfg.Endpoint
}

// exchange validates, sends, and receives one request/response pair. It
// enforces the single-outstanding invariant and discards late responses
// from exchanges that previously timed out.
func (s *Session) exchange(req *protocol.Request) (*protocol.Response, error) {
	kind := req.Kind()

	s.mu.Lock()
	if s.tr == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: not connected: %w", kind, ErrBadState)
	}
	if !legalStates[kind][s.state] {
		err := fmt.Errorf("%s not legal in state %s: %w", kind, s.state, ErrBadState)
		s.mu.Unlock()
		return nil, err
	}
	if s.pending {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", kind, ErrPending)
	}
	s.pending = true
	s.nextID++
	id := s.nextID
	tr := s.tr
	abandoned := s.abandoned
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}()

	req.ID = id
	frame, err := s.codec.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}

	// Give late responses from abandoned exchanges a brief chance to be
	// drained before the next request goes out. Anything that arrives
	// later still is caught by the id check in the receive loop.
	for i := 0; i < abandoned; i++ {
		staleFrame, err := tr.Receive(staleDrainTimeout)
		if err != nil {
			break
		}
		s.noteStale(len(staleFrame), 0)
	}

	if err := tr.Send(frame); err != nil {
		return nil, s.abort(kind, "send", err)
	}

	deadline := time.Now().Add(s.cfg.RequestTimeout)
	for {
		raw, err := tr.Receive(time.Until(deadline))
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				s.mu.Lock()
				s.abandoned++
				s.mu.Unlock()
				s.logger.Warn().
					Stringer("request", kind).
					Dur("timeout", s.cfg.RequestTimeout).
					Msg("no response, exchange abandoned")
				return nil, fmt.Errorf("%s: %w", kind, err)
			}
			return nil, s.abort(kind, "receive", err)
		}

		resp, err := s.codec.DecodeResponse(raw)
		if err != nil {
			return nil, s.abort(kind, "decode", err)
		}
		if resp.ID != 0 && resp.ID != id {
			s.noteStale(len(raw), resp.ID)
			continue
		}

		if resp.Status != 0 {
			s.recordStatus(resp.Status)
		}
		if len(resp.Error) > 0 {
			return nil, fmt.Errorf("%s rejected by engine: %s", kind, strings.Join(resp.Error, "; "))
		}
		if got := resp.Kind(); got != kind {
			return nil, s.abort(kind, "response",
				fmt.Errorf("payload kind %s does not match request: %w", got, protocol.ErrCodec))
		}
		return resp, nil
	}
}

// abort force-transitions the session to Ended and closes the transport.
// The returned error wraps both the cause and ErrSessionAborted, unless the
// session had already ended, in which case only the cause surfaces.
func (s *Session) abort(kind protocol.RequestKind, op string, cause error) error {
	s.mu.Lock()
	wasEnded := s.state == Ended
	if !wasEnded {
		s.setStateLocked(Ended)
	}
	tr := s.tr
	s.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	if wasEnded {
		return fmt.Errorf("%s %s: %w", kind, op, cause)
	}

	s.logger.Warn().Err(cause).Stringer("request", kind).Msg("session aborted")
	return fmt.Errorf("%s %s: %w: %w", kind, op, cause, ErrSessionAborted)
}

// noteStale records one discarded late response.
func (s *Session) noteStale(size int, id uint32) {
	s.mu.Lock()
	if s.abandoned > 0 {
		s.abandoned--
	}
	s.stale++
	s.mu.Unlock()

	s.logger.Debug().Int("bytes", size).Uint32("response_id", id).Msg("discarded stale response")
}

// recordStatus tracks the engine status across responses and logs changes.
func (s *Session) recordStatus(status protocol.Status) {
	s.mu.Lock()
	prev := s.status
	s.status = status
	s.mu.Unlock()

	if prev != status {
		s.logger.Debug().Stringer("engine_status", status).Msg("engine status change")
	}
}

// expectStatus warns when the engine status diverges from what the exchange
// normally produces. Divergence is informational, not fatal.
func (s *Session) expectStatus(got, want protocol.Status, request string) {
	if got == 0 || got == want {
		return
	}
	s.logger.Warn().
		Str("request", request).
		Stringer("status", got).
		Stringer("expected", want).
		Msg("unexpected engine status")
}

// setStateLocked transitions the lifecycle state. Callers hold s.mu.
func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug().Stringer("from", s.state).Stringer("to", next).Msg("state change")
	s.state = next
}
