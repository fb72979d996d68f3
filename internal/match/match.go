// Package match holds the data model for one bot match: who plays, on what
// map, how the simulation is stepped, and what came out of it.
package match

import (
	"errors"
	"fmt"
	"time"

	"github.com/gocraft2-project/gocraft2/internal/protocol"
)

// DefaultStepCount is how many simulation loops one tick advances when the
// config does not say otherwise. At the standard 22.4 loops per game second
// this is roughly 4.5 seconds of game time.
const DefaultStepCount = 100

// Config describes a match to run.
type Config struct {
	// Map is an absolute path to a .SC2Map file or a map name resolved
	// against the install's Maps directory.
	Map string

	// Players fills the game's slots: one or two participants, plus
	// computer opponents. Order fixes slot order in create_game.
	Players []Player

	// Realtime lets the simulation run on the wall clock instead of
	// advancing only on step requests. Scripted play keeps this false.
	Realtime bool

	DisableFog bool
	RandomSeed *uint32

	// StepCount is the simulation loops advanced per tick. Zero means
	// DefaultStepCount.
	StepCount uint32

	// ConnectTimeout and RequestTimeout override the session defaults
	// when non-zero.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Validate rejects configs the engine would refuse anyway, with friendlier
// messages.
func (c *Config) Validate() error {
	if c.Map == "" {
		return errors.New("config: map is required")
	}
	if len(c.Players) == 0 {
		return errors.New("config: at least one player is required")
	}
	if len(c.Players) > 4 {
		return fmt.Errorf("config: %d players configured, at most 4 are supported", len(c.Players))
	}
	if len(c.Bots()) == 0 {
		return errors.New("config: at least one participant slot is required")
	}
	if len(c.Bots()) > 2 {
		return fmt.Errorf("config: %d participants configured, at most 2 are supported", len(c.Bots()))
	}
	for i, p := range c.Players {
		if p.Type == protocol.PlayerComputer && p.Difficulty == 0 {
			return fmt.Errorf("config: computer slot %d needs a difficulty", i+1)
		}
	}
	return nil
}

// Bots returns the participant slots, the ones that get their own engine
// session.
func (c *Config) Bots() []Player {
	var bots []Player
	for _, p := range c.Players {
		if p.Type == protocol.PlayerParticipant {
			bots = append(bots, p)
		}
	}
	return bots
}

// Steps returns the per-tick loop count with the default applied.
func (c *Config) Steps() uint32 {
	if c.StepCount == 0 {
		return DefaultStepCount
	}
	return c.StepCount
}

// PlayerSetups converts the player list into create_game slots.
func (c *Config) PlayerSetups() []protocol.PlayerSetup {
	setups := make([]protocol.PlayerSetup, 0, len(c.Players))
	for _, p := range c.Players {
		setups = append(setups, protocol.PlayerSetup{
			Type:       p.Type,
			Race:       p.Race,
			Difficulty: p.Difficulty,
			PlayerName: p.Name,
			AIBuild:    p.AIBuild,
		})
	}
	return setups
}

// Player is one slot in the match: a bot participant or a built-in
// computer opponent.
type Player struct {
	Name       string
	Type       protocol.PlayerType
	Race       protocol.Race
	Difficulty protocol.Difficulty // computer slots only
	AIBuild    protocol.AIBuild    // computer slots only

	// Bot receives the per-tick callback. Optional: a nil Bot just steps.
	Bot Bot
}

// NewBot declares a participant slot driven by this process.
func NewBot(name string, race protocol.Race, bot Bot) Player {
	return Player{Name: name, Type: protocol.PlayerParticipant, Race: race, Bot: bot}
}

// NewComputer declares a built-in computer opponent.
func NewComputer(race protocol.Race, difficulty protocol.Difficulty) Player {
	return Player{
		Name:       fmt.Sprintf("Computer %s", difficulty),
		Type:       protocol.PlayerComputer,
		Race:       race,
		Difficulty: difficulty,
	}
}

// Result is one player's outcome after a match.
type Result struct {
	PlayerID uint32          `json:"player_id"`
	Name     string          `json:"name"`
	Race     protocol.Race   `json:"race"`
	Outcome  protocol.Result `json:"outcome"`
	GameLoop uint32          `json:"game_loop"`
	Aborted  bool            `json:"aborted"`
	Error    string          `json:"error,omitempty"`
}

// Status tracks where a match sits in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusEnded
)

var statusNames = map[Status]string{
	StatusPending: "pending",
	StatusRunning: "running",
	StatusEnded:   "ended",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "invalid"
}

// MarshalJSON renders the status as its lowercase name.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ObservationSet is one lock-step tick's observations, keyed by player id.
type ObservationSet map[uint32]*protocol.ResponseObservation

// Ended reports whether any observation in the set carries player results.
func (o ObservationSet) Ended() bool {
	for _, obs := range o {
		if obs.Ended() {
			return true
		}
	}
	return false
}
