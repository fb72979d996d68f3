package protocol

// RequestKind tags the payload variant carried by a request or response
// envelope.
type RequestKind uint8

const (
	KindNone RequestKind = iota
	KindCreateGame
	KindJoinGame
	KindLeaveGame
	KindQuit
	KindObservation
	KindStep
	KindPing
)

// String returns the wire name of the request kind.
func (k RequestKind) String() string {
	switch k {
	case KindCreateGame:
		return "create_game"
	case KindJoinGame:
		return "join_game"
	case KindLeaveGame:
		return "leave_game"
	case KindQuit:
		return "quit"
	case KindObservation:
		return "observation"
	case KindStep:
		return "step"
	case KindPing:
		return "ping"
	default:
		return "none"
	}
}

// Request is the client-to-engine envelope. Exactly one payload field must
// be set; Kind reports which one.
type Request struct {
	// ID is an optional correlation marker echoed back by the engine.
	ID uint32

	CreateGame  *RequestCreateGame
	JoinGame    *RequestJoinGame
	LeaveGame   *RequestLeaveGame
	Quit        *RequestQuit
	Observation *RequestObservation
	Step        *RequestStep
	Ping        *RequestPing
}

// Kind returns the payload variant set on the request, or KindNone if the
// envelope is empty.
func (r *Request) Kind() RequestKind {
	switch {
	case r.CreateGame != nil:
		return KindCreateGame
	case r.JoinGame != nil:
		return KindJoinGame
	case r.LeaveGame != nil:
		return KindLeaveGame
	case r.Quit != nil:
		return KindQuit
	case r.Observation != nil:
		return KindObservation
	case r.Step != nil:
		return KindStep
	case r.Ping != nil:
		return KindPing
	default:
		return KindNone
	}
}

// LocalMap points the engine at map content, either by absolute path on the
// engine's machine or by inline map file data. Data wins when both are set.
type LocalMap struct {
	MapPath string
	MapData []byte
}

// PlayerSetup declares one slot of a game being created.
type PlayerSetup struct {
	Type       PlayerType
	Race       Race
	Difficulty Difficulty // computer slots only
	PlayerName string
	AIBuild    AIBuild // computer slots only
}

// RequestCreateGame asks the engine hosting the game to set up a new match.
type RequestCreateGame struct {
	LocalMap         *LocalMap
	BattlenetMapName string // used only when LocalMap is nil
	PlayerSetup      []PlayerSetup
	DisableFog       bool
	RandomSeed       *uint32 // nil lets the engine pick
	Realtime         bool
}

// InterfaceOptions selects which observation surfaces the engine exposes to
// this participant.
type InterfaceOptions struct {
	Raw                   bool
	Score                 bool
	ShowCloaked           bool
	RawAffectsSelection   bool
	RawCropToPlayableArea bool
	ShowPlaceholders      bool
	ShowBurrowedShadows   bool
}

// PortSet is one game/base port pair used for engine-to-engine networking
// in multi-client games.
type PortSet struct {
	GamePort int32
	BasePort int32
}

// RequestJoinGame enters the client into a created game. Race and
// ObservedPlayerID are mutually exclusive: a participant declares a race,
// an observer names the player it watches.
type RequestJoinGame struct {
	Race             Race
	ObservedPlayerID *uint32
	Options          *InterfaceOptions
	ServerPorts      *PortSet
	ClientPorts      []PortSet
	PlayerName       string
	HostIP           string // empty when all clients share a machine
}

// RequestLeaveGame abandons the current game, leaving the engine running.
type RequestLeaveGame struct{}

// RequestQuit shuts the engine down.
type RequestQuit struct{}

// RequestObservation asks for the current game state.
type RequestObservation struct {
	DisableFog bool
	GameLoop   uint32 // realtime only: block until this loop is reached
}

// RequestStep advances a lock-step game by Count simulation loops.
type RequestStep struct {
	Count uint32
}

// RequestPing probes engine liveness and version metadata.
type RequestPing struct{}
