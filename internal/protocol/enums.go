package protocol

// Status reports the engine's lifecycle phase. It is attached to every
// response envelope and is the authoritative view of what the engine is
// currently doing, independent of what the client believes.
type Status uint32

const (
	StatusLaunched Status = 1
	StatusInitGame Status = 2
	StatusInGame   Status = 3
	StatusInReplay Status = 4
	StatusEnded    Status = 5
	StatusQuit     Status = 6
	StatusUnknown  Status = 99
)

// statusStrings maps Status values to their lowercase JSON string representation.
var statusStrings = map[Status]string{
	StatusLaunched: "launched",
	StatusInitGame: "init_game",
	StatusInGame:   "in_game",
	StatusInReplay: "in_replay",
	StatusEnded:    "ended",
	StatusQuit:     "quit",
	StatusUnknown:  "unknown",
}

// String returns the string representation of Status.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes Status as a JSON string (e.g. "in_game").
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Race identifies a playable race.
type Race uint32

const (
	RaceNone    Race = 0
	RaceTerran  Race = 1
	RaceZerg    Race = 2
	RaceProtoss Race = 3
	RaceRandom  Race = 4
)

// String returns the string representation of Race.
func (r Race) String() string {
	switch r {
	case RaceTerran:
		return "terran"
	case RaceZerg:
		return "zerg"
	case RaceProtoss:
		return "protoss"
	case RaceRandom:
		return "random"
	default:
		return "none"
	}
}

// MarshalJSON renders the race as its lowercase name.
func (r Race) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// PlayerType distinguishes slots in a game's player setup.
type PlayerType uint32

const (
	PlayerParticipant PlayerType = 1
	PlayerComputer    PlayerType = 2
	PlayerObserver    PlayerType = 3
)

// String returns the string representation of PlayerType.
func (t PlayerType) String() string {
	switch t {
	case PlayerParticipant:
		return "participant"
	case PlayerComputer:
		return "computer"
	case PlayerObserver:
		return "observer"
	default:
		return "unknown"
	}
}

// Difficulty selects the skill level of a built-in computer opponent.
type Difficulty uint32

const (
	DifficultyVeryEasy    Difficulty = 1
	DifficultyEasy        Difficulty = 2
	DifficultyMedium      Difficulty = 3
	DifficultyMediumHard  Difficulty = 4
	DifficultyHard        Difficulty = 5
	DifficultyHarder      Difficulty = 6
	DifficultyVeryHard    Difficulty = 7
	DifficultyCheatVision Difficulty = 8
	DifficultyCheatMoney  Difficulty = 9
	DifficultyCheatInsane Difficulty = 10
)

// difficultyStrings maps Difficulty values to their string representation.
var difficultyStrings = map[Difficulty]string{
	DifficultyVeryEasy:    "very_easy",
	DifficultyEasy:        "easy",
	DifficultyMedium:      "medium",
	DifficultyMediumHard:  "medium_hard",
	DifficultyHard:        "hard",
	DifficultyHarder:      "harder",
	DifficultyVeryHard:    "very_hard",
	DifficultyCheatVision: "cheat_vision",
	DifficultyCheatMoney:  "cheat_money",
	DifficultyCheatInsane: "cheat_insane",
}

// String returns the string representation of Difficulty.
func (d Difficulty) String() string {
	if str, ok := difficultyStrings[d]; ok {
		return str
	}
	return "unknown"
}

// AIBuild selects the strategy of a built-in computer opponent.
type AIBuild uint32

const (
	BuildRandom AIBuild = 1
	BuildRush   AIBuild = 2
	BuildTiming AIBuild = 3
	BuildPower  AIBuild = 4
	BuildMacro  AIBuild = 5
	BuildAir    AIBuild = 6
)

// String returns the string representation of AIBuild.
func (b AIBuild) String() string {
	switch b {
	case BuildRandom:
		return "random"
	case BuildRush:
		return "rush"
	case BuildTiming:
		return "timing"
	case BuildPower:
		return "power"
	case BuildMacro:
		return "macro"
	case BuildAir:
		return "air"
	default:
		return "unknown"
	}
}

// Result is the per-player outcome the engine reports when a game ends.
type Result uint32

const (
	ResultVictory   Result = 1
	ResultDefeat    Result = 2
	ResultTie       Result = 3
	ResultUndecided Result = 4
)

// resultStrings maps Result values to their lowercase JSON string representation.
var resultStrings = map[Result]string{
	ResultVictory:   "victory",
	ResultDefeat:    "defeat",
	ResultTie:       "tie",
	ResultUndecided: "undecided",
}

// String returns the string representation of Result.
func (r Result) String() string {
	if str, ok := resultStrings[r]; ok {
		return str
	}
	return "undecided"
}

// MarshalJSON serializes Result as a JSON string (e.g. "victory").
func (r Result) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}
