package session

// State tracks where a session sits in the game lifecycle. It advances only
// on confirmed request/response exchanges, never on sends alone.
type State int

const (
	// Disconnected means no game has been created or joined yet. The
	// transport may already be open; the engine sits at its main menu.
	Disconnected State = iota

	// Created means this session hosts a game that no one has joined.
	Created

	// Joined means the engine accepted a join and assigned a player id.
	Joined

	// InGame means the step loop has begun.
	InGame

	// Ended is terminal: the game finished, the caller left, or the
	// session aborted. Only quit is still accepted.
	Ended
)

var stateNames = map[State]string{
	Disconnected: "disconnected",
	Created:      "created",
	Joined:       "joined",
	InGame:       "in_game",
	Ended:        "ended",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// MarshalJSON renders the state as its lowercase name.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
