// Package events defines the event types and payloads flowing through the
// gocraft2 event bus.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Match lifecycle events
	EventMatchCreated EventType = "match.created"
	EventMatchStarted EventType = "match.started"
	EventMatchTick    EventType = "match.tick"
	EventMatchEnded   EventType = "match.ended"

	// Session events
	EventSessionStateChanged EventType = "session.state_changed"
	EventSessionAborted      EventType = "session.aborted"

	// Engine process events
	EventEngineLaunched EventType = "engine.launched"
	EventEngineExited   EventType = "engine.exited"

	// System events
	EventShutdown EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// MatchCreatedPayload is emitted once the host session has created the game.
type MatchCreatedPayload struct {
	MatchID  string   `json:"match_id"`
	Map      string   `json:"map"`
	Players  []string `json:"players"`
	Realtime bool     `json:"realtime"`
}

// MatchStartedPayload is emitted once every participant has joined and the
// first observation has been taken.
type MatchStartedPayload struct {
	MatchID     string `json:"match_id"`
	GameVersion string `json:"game_version,omitempty"`
	Players     int    `json:"players"`
}

// MatchTickPayload is emitted after each completed simulation step barrier.
type MatchTickPayload struct {
	MatchID  string `json:"match_id"`
	GameLoop uint32 `json:"game_loop"`
}

// MatchResult is one player's outcome inside a MatchEndedPayload.
type MatchResult struct {
	PlayerID uint32 `json:"player_id"`
	Name     string `json:"name"`
	Race     string `json:"race"`
	Outcome  string `json:"outcome"`
}

// MatchEndedPayload is emitted when the match reaches a result or aborts.
type MatchEndedPayload struct {
	MatchID  string        `json:"match_id"`
	Map      string        `json:"map"`
	GameLoop uint32        `json:"game_loop"`
	Duration time.Duration `json:"duration_ns"`
	Aborted  bool          `json:"aborted"`
	Error    string        `json:"error,omitempty"`
	Results  []MatchResult `json:"results"`
}

// SessionStateChangedPayload tracks one session's state machine transitions.
type SessionStateChangedPayload struct {
	MatchID  string `json:"match_id"`
	Endpoint string `json:"endpoint"`
	PlayerID uint32 `json:"player_id,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// SessionAbortedPayload is emitted when a session loses its engine.
type SessionAbortedPayload struct {
	MatchID  string `json:"match_id"`
	Endpoint string `json:"endpoint"`
	Reason   string `json:"reason"`
}

// EngineLaunchedPayload is emitted when an engine process comes up.
type EngineLaunchedPayload struct {
	Port       int    `json:"port"`
	PID        int    `json:"pid"`
	Executable string `json:"executable"`
}

// EngineExitedPayload is emitted when an engine process goes away.
type EngineExitedPayload struct {
	Port     int `json:"port"`
	PID      int `json:"pid"`
	ExitCode int `json:"exit_code"`
}
