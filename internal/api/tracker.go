package api

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gocraft2-project/gocraft2/internal/events"
)

// SessionStatus is one engine connection's latest state as seen on the bus.
type SessionStatus struct {
	Endpoint string `json:"endpoint"`
	PlayerID uint32 `json:"player_id,omitempty"`
	State    string `json:"state"`
}

// EngineStatus is one engine process as seen on the bus. ExitCode is only
// meaningful once Running is false.
type EngineStatus struct {
	Port       int    `json:"port"`
	PID        int    `json:"pid"`
	Executable string `json:"executable,omitempty"`
	Running    bool   `json:"running"`
	ExitCode   int    `json:"exit_code"`
}

// MatchStatus is the live match snapshot served by /api/status.
type MatchStatus struct {
	MatchID  string               `json:"match_id"`
	Map      string               `json:"map,omitempty"`
	Players  []string             `json:"players,omitempty"`
	Realtime bool                 `json:"realtime"`
	Status   string               `json:"status"`
	GameLoop uint32               `json:"game_loop"`
	Aborted  bool                 `json:"aborted,omitempty"`
	Error    string               `json:"error,omitempty"`
	Results  []events.MatchResult `json:"results,omitempty"`
	Sessions []SessionStatus      `json:"sessions,omitempty"`
}

// tracker mirrors the event bus so /api/status answers from memory instead
// of reaching into the runner.
type tracker struct {
	mu       sync.RWMutex
	match    *MatchStatus
	sessions map[string]SessionStatus
	engines  map[int]EngineStatus
}

func newTracker() *tracker {
	return &tracker{
		sessions: make(map[string]SessionStatus),
		engines:  make(map[int]EngineStatus),
	}
}

// attach subscribes the tracker to every event it mirrors.
func (t *tracker) attach(bus *events.EventBus) {
	bus.Subscribe(events.EventMatchCreated, "api.matchCreated", t.onMatchCreated)
	bus.Subscribe(events.EventMatchStarted, "api.matchStarted", t.onMatchStarted)
	bus.Subscribe(events.EventMatchTick, "api.matchTick", t.onMatchTick)
	bus.Subscribe(events.EventMatchEnded, "api.matchEnded", t.onMatchEnded)
	bus.Subscribe(events.EventSessionStateChanged, "api.sessionState", t.onSessionState)
	bus.Subscribe(events.EventEngineLaunched, "api.engineLaunched", t.onEngineLaunched)
	bus.Subscribe(events.EventEngineExited, "api.engineExited", t.onEngineExited)
}

// ensureMatch resets the per-match view when a new match id shows up.
// Sessions connect before create_game fires, so any handler can be the
// first to see a new id.
func (t *tracker) ensureMatch(id string) *MatchStatus {
	if t.match == nil || t.match.MatchID != id {
		t.match = &MatchStatus{MatchID: id, Status: "connecting"}
		t.sessions = make(map[string]SessionStatus)
	}
	return t.match
}

func (t *tracker) onMatchCreated(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MatchCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.ensureMatch(p.MatchID)
	m.Map = p.Map
	m.Players = p.Players
	m.Realtime = p.Realtime
	m.Status = "created"
	return nil
}

func (t *tracker) onMatchStarted(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MatchStartedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureMatch(p.MatchID).Status = "running"
	return nil
}

func (t *tracker) onMatchTick(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MatchTickPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureMatch(p.MatchID).GameLoop = p.GameLoop
	return nil
}

func (t *tracker) onMatchEnded(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.MatchEndedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.ensureMatch(p.MatchID)
	m.GameLoop = p.GameLoop
	m.Aborted = p.Aborted
	m.Error = p.Error
	m.Results = p.Results
	if p.Aborted {
		m.Status = "aborted"
	} else {
		m.Status = "ended"
	}
	return nil
}

func (t *tracker) onSessionState(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.SessionStateChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureMatch(p.MatchID)

	sess := t.sessions[p.Endpoint]
	sess.Endpoint = p.Endpoint
	sess.State = p.To
	if p.PlayerID != 0 {
		sess.PlayerID = p.PlayerID
	}
	t.sessions[p.Endpoint] = sess
	return nil
}

func (t *tracker) onEngineLaunched(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.EngineLaunchedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.engines[p.Port] = EngineStatus{
		Port:       p.Port,
		PID:        p.PID,
		Executable: p.Executable,
		Running:    true,
	}
	return nil
}

func (t *tracker) onEngineExited(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.EngineExitedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", event.Payload, event.Type)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.engines[p.Port]
	e.Port = p.Port
	e.PID = p.PID
	e.Running = false
	e.ExitCode = p.ExitCode
	t.engines[p.Port] = e
	return nil
}

// snapshot copies the current view for a handler. The match pointer is nil
// until the first event of the first match arrives.
func (t *tracker) snapshot() (*MatchStatus, []EngineStatus) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	engines := make([]EngineStatus, 0, len(t.engines))
	for _, e := range t.engines {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i].Port < engines[j].Port })

	if t.match == nil {
		return nil, engines
	}

	m := *t.match
	m.Players = append([]string(nil), t.match.Players...)
	m.Results = append([]events.MatchResult(nil), t.match.Results...)

	sessions := make([]SessionStatus, 0, len(t.sessions))
	for _, sess := range t.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Endpoint < sessions[j].Endpoint })
	m.Sessions = sessions

	return &m, engines
}
