package match

import (
	"fmt"
	"strings"

	"github.com/gocraft2-project/gocraft2/internal/protocol"
)

// raceNames are the spellings accepted on the command line.
var raceNames = map[string]protocol.Race{
	"terran":  protocol.RaceTerran,
	"zerg":    protocol.RaceZerg,
	"protoss": protocol.RaceProtoss,
	"random":  protocol.RaceRandom,
}

var difficultyNames = map[string]protocol.Difficulty{
	"very_easy":    protocol.DifficultyVeryEasy,
	"easy":         protocol.DifficultyEasy,
	"medium":       protocol.DifficultyMedium,
	"medium_hard":  protocol.DifficultyMediumHard,
	"hard":         protocol.DifficultyHard,
	"harder":       protocol.DifficultyHarder,
	"very_hard":    protocol.DifficultyVeryHard,
	"cheat_vision": protocol.DifficultyCheatVision,
	"cheat_money":  protocol.DifficultyCheatMoney,
	"cheat_insane": protocol.DifficultyCheatInsane,
}

// ParseRace resolves a race name.
func ParseRace(name string) (protocol.Race, error) {
	race, ok := raceNames[normalize(name)]
	if !ok {
		return protocol.RaceNone, fmt.Errorf("unknown race %q (terran, zerg, protoss, random)", name)
	}
	return race, nil
}

// ParseDifficulty resolves a computer difficulty name.
func ParseDifficulty(name string) (protocol.Difficulty, error) {
	difficulty, ok := difficultyNames[normalize(name)]
	if !ok {
		return 0, fmt.Errorf("unknown difficulty %q (very_easy through cheat_insane)", name)
	}
	return difficulty, nil
}

// ParsePlayer turns one command line slot spec into a Player.
//
// Specs look like:
//
//	name              participant playing random
//	name:race         participant with a fixed race
//	computer          built-in AI, random race, medium difficulty
//	computer:race
//	computer:race:difficulty
//
// The participant forms leave Bot nil; the caller attaches one before the
// match starts. The name "computer" is reserved for AI slots.
func ParsePlayer(spec string) (Player, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	if parts[0] == "" {
		return Player{}, fmt.Errorf("empty player spec")
	}

	if strings.EqualFold(parts[0], "computer") {
		return parseComputer(spec, parts[1:])
	}

	if len(parts) > 2 {
		return Player{}, fmt.Errorf("player spec %q has too many fields, want name[:race]", spec)
	}

	race := protocol.RaceRandom
	if len(parts) == 2 {
		var err error
		if race, err = ParseRace(parts[1]); err != nil {
			return Player{}, fmt.Errorf("player spec %q: %w", spec, err)
		}
	}

	return NewBot(parts[0], race, nil), nil
}

func parseComputer(spec string, args []string) (Player, error) {
	if len(args) > 2 {
		return Player{}, fmt.Errorf("computer spec %q has too many fields, want computer[:race[:difficulty]]", spec)
	}

	race := protocol.RaceRandom
	difficulty := protocol.DifficultyMedium

	var err error
	if len(args) >= 1 {
		if race, err = ParseRace(args[0]); err != nil {
			return Player{}, fmt.Errorf("computer spec %q: %w", spec, err)
		}
	}
	if len(args) == 2 {
		if difficulty, err = ParseDifficulty(args[1]); err != nil {
			return Player{}, fmt.Errorf("computer spec %q: %w", spec, err)
		}
	}

	return NewComputer(race, difficulty), nil
}

// normalize folds case and accepts hyphens where the enum names use
// underscores.
func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}
