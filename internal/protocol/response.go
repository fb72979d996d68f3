package protocol

// Response is the engine-to-client envelope. Status is present on every
// response; at most one payload field is set and Kind reports which.
type Response struct {
	// ID echoes the correlation marker of the request, when one was sent.
	ID uint32

	// Status is the engine lifecycle phase after handling the request.
	Status Status

	// Error carries engine-reported diagnostics that apply to the envelope
	// as a whole, for example when a request arrives in the wrong phase.
	Error []string

	CreateGame  *ResponseCreateGame
	JoinGame    *ResponseJoinGame
	LeaveGame   *ResponseLeaveGame
	Quit        *ResponseQuit
	Observation *ResponseObservation
	Step        *ResponseStep
	Ping        *ResponsePing
}

// Kind returns the payload variant set on the response, or KindNone for a
// bare status/error envelope.
func (r *Response) Kind() RequestKind {
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

// ResponseCreateGame reports the outcome of game creation.
type ResponseCreateGame struct {
	ErrorCode    uint32
	ErrorDetails string
}

// Failed reports whether the engine rejected the create request.
func (r *ResponseCreateGame) Failed() bool {
	return r.ErrorCode != 0 || r.ErrorDetails != ""
}

// ResponseJoinGame reports the outcome of joining, including the player
// identifier the engine assigned to this client.
type ResponseJoinGame struct {
	PlayerID     uint32
	ErrorCode    uint32
	ErrorDetails string
}

// Failed reports whether the engine rejected the join request.
func (r *ResponseJoinGame) Failed() bool {
	return r.ErrorCode != 0 || r.ErrorDetails != ""
}

// ResponseLeaveGame acknowledges leaving the game.
type ResponseLeaveGame struct{}

// ResponseQuit acknowledges engine shutdown.
type ResponseQuit struct{}

// Observation is a snapshot of game state. Only the loop counter is
// modeled; Raw preserves the complete encoded observation for callers that
// analyze the rest.
type Observation struct {
	GameLoop uint32
	Raw      []byte
}

// PlayerResult is one player's outcome in a finished game.
type PlayerResult struct {
	PlayerID uint32
	Result   Result
}

// ResponseObservation carries the game state for one tick. A non-empty
// PlayerResult list means the game is over.
type ResponseObservation struct {
	Observation  *Observation
	PlayerResult []PlayerResult
}

// Ended reports whether the engine declared the game finished.
func (r *ResponseObservation) Ended() bool {
	return len(r.PlayerResult) > 0
}

// ResponseStep acknowledges a simulation advance.
type ResponseStep struct {
	SimulationLoop uint32
}

// ResponsePing reports engine version metadata.
type ResponsePing struct {
	GameVersion string
	DataVersion string
	DataBuild   uint32
	BaseBuild   uint32
}
