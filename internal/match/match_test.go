package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocraft2-project/gocraft2/internal/protocol"
)

func TestConfigValidate(t *testing.T) {
	t.Run("bot versus computer is valid", func(t *testing.T) {
		cfg := Config{
			Map: "AbyssalReefLE.SC2Map",
			Players: []Player{
				NewBot("gopher", protocol.RaceTerran, nil),
				NewComputer(protocol.RaceZerg, protocol.DifficultyEasy),
			},
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bot versus bot is valid", func(t *testing.T) {
		cfg := Config{
			Map: "AbyssalReefLE.SC2Map",
			Players: []Player{
				NewBot("gopher", protocol.RaceTerran, nil),
				NewBot("ferret", protocol.RaceProtoss, nil),
			},
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("map is required", func(t *testing.T) {
		cfg := Config{Players: []Player{NewBot("gopher", protocol.RaceTerran, nil)}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("players are required", func(t *testing.T) {
		cfg := Config{Map: "m.SC2Map"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("computer only is rejected", func(t *testing.T) {
		cfg := Config{
			Map: "m.SC2Map",
			Players: []Player{
				NewComputer(protocol.RaceZerg, protocol.DifficultyEasy),
				NewComputer(protocol.RaceTerran, protocol.DifficultyEasy),
			},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("computer needs a difficulty", func(t *testing.T) {
		cfg := Config{
			Map: "m.SC2Map",
			Players: []Player{
				NewBot("gopher", protocol.RaceTerran, nil),
				{Type: protocol.PlayerComputer, Race: protocol.RaceZerg},
			},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("three participants are rejected", func(t *testing.T) {
		cfg := Config{
			Map: "m.SC2Map",
			Players: []Player{
				NewBot("a", protocol.RaceTerran, nil),
				NewBot("b", protocol.RaceZerg, nil),
				NewBot("c", protocol.RaceProtoss, nil),
			},
		}
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigPlayerSetups(t *testing.T) {
	cfg := Config{
		Map: "m.SC2Map",
		Players: []Player{
			NewBot("gopher", protocol.RaceTerran, nil),
			NewComputer(protocol.RaceZerg, protocol.DifficultyVeryHard),
		},
	}

	setups := cfg.PlayerSetups()
	require.Len(t, setups, 2)

	assert.Equal(t, protocol.PlayerParticipant, setups[0].Type)
	assert.Equal(t, protocol.RaceTerran, setups[0].Race)
	assert.Equal(t, "gopher", setups[0].PlayerName)

	assert.Equal(t, protocol.PlayerComputer, setups[1].Type)
	assert.Equal(t, protocol.RaceZerg, setups[1].Race)
	assert.Equal(t, protocol.DifficultyVeryHard, setups[1].Difficulty)
}

func TestConfigSteps(t *testing.T) {
	cfg := Config{}
	assert.Equal(t, uint32(DefaultStepCount), cfg.Steps())

	cfg.StepCount = 8
	assert.Equal(t, uint32(8), cfg.Steps())
}

func TestNewPortConfig(t *testing.T) {
	pc := NewPortConfig(8000)

	assert.Equal(t, int32(8000), pc.StartPort)
	assert.Equal(t, protocol.PortSet{GamePort: 8002, BasePort: 8003}, pc.ServerPorts)
	require.Len(t, pc.ClientPorts, 1)
	assert.Equal(t, protocol.PortSet{GamePort: 8004, BasePort: 8005}, pc.ClientPorts[0])
}

func TestFreePortConfig(t *testing.T) {
	pc, err := FreePortConfig()
	require.NoError(t, err)

	assert.Zero(t, pc.StartPort)
	require.Len(t, pc.ClientPorts, 1)

	seen := map[int32]bool{
		pc.ServerPorts.GamePort:    true,
		pc.ServerPorts.BasePort:    true,
		pc.ClientPorts[0].GamePort: true,
		pc.ClientPorts[0].BasePort: true,
	}
	assert.Len(t, seen, 4, "ports must be distinct")
	for port := range seen {
		assert.Positive(t, port)
	}
}

func TestBotFunc(t *testing.T) {
	var got *StepContext
	bot := BotFunc(func(step *StepContext) error {
		got = step
		return nil
	})

	step := &StepContext{PlayerID: 1, GameLoop: 100}
	require.NoError(t, bot.OnStep(step))
	assert.Equal(t, step, got)

	boom := BotFunc(func(step *StepContext) error { return errors.New("boom") })
	assert.Error(t, boom.OnStep(step))
}

func TestObservationSetEnded(t *testing.T) {
	running := ObservationSet{
		1: &protocol.ResponseObservation{Observation: &protocol.Observation{GameLoop: 5}},
	}
	assert.False(t, running.Ended())

	finished := ObservationSet{
		1: &protocol.ResponseObservation{
			PlayerResult: []protocol.PlayerResult{{PlayerID: 1, Result: protocol.ResultVictory}},
		},
	}
	assert.True(t, finished.Ended())
}
