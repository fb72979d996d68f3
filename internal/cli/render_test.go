package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gocraft2-project/gocraft2/internal/history"
	"github.com/gocraft2-project/gocraft2/internal/match"
	"github.com/gocraft2-project/gocraft2/internal/protocol"
)

func TestRenderResults(t *testing.T) {
	var buf bytes.Buffer

	RenderResults(&buf, []match.Result{
		{PlayerID: 1, Name: "alphabot", Race: protocol.RaceTerran, Outcome: protocol.ResultVictory, GameLoop: 3024},
		{PlayerID: 2, Name: "Computer medium", Race: protocol.RaceZerg, Outcome: protocol.ResultDefeat, GameLoop: 3024},
	})

	out := buf.String()
	assert.Contains(t, out, "PLAYER")
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "alphabot")
	assert.Contains(t, out, "terran")
	assert.Contains(t, out, "victory")
	assert.Contains(t, out, "Computer medium")
	assert.Contains(t, out, "3024")
}

func TestRenderResultsAborted(t *testing.T) {
	var buf bytes.Buffer

	RenderResults(&buf, []match.Result{
		{PlayerID: 1, Name: "alphabot", Race: protocol.RaceProtoss, Outcome: protocol.ResultUndecided, Aborted: true, Error: "engine lost"},
	})

	out := buf.String()
	assert.Contains(t, out, "undecided")
	assert.Contains(t, out, "engine lost")
}

func TestRenderMatches(t *testing.T) {
	var buf bytes.Buffer

	RenderMatches(&buf, []history.MatchRecord{
		{
			MatchID:    "m-1",
			Map:        "AcropolisLE",
			GameLoop:   3024,
			DurationMS: 135000,
			CreatedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			Players: []history.PlayerRecord{
				{PlayerID: 1, Name: "alphabot", Race: "terran", Outcome: "victory"},
				{PlayerID: 2, Name: "betabot", Race: "zerg", Outcome: "defeat"},
			},
		},
		{
			MatchID:   "m-2",
			Map:       "AcropolisLE",
			Aborted:   true,
			Error:     "bot crashed",
			CreatedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "MATCH ID")
	assert.Contains(t, out, "m-1")
	assert.Contains(t, out, "AcropolisLE")
	assert.Contains(t, out, "2m15s")
	assert.Contains(t, out, "alphabot won")
	assert.Contains(t, out, "aborted: bot crashed")
}

func TestRenderStandings(t *testing.T) {
	var buf bytes.Buffer

	RenderStandings(&buf, []history.PlayerStanding{
		{Name: "alphabot", Played: 4, Wins: 2, Losses: 1, Ties: 1},
		{Name: "betabot", Played: 3, Wins: 1, Losses: 2},
	})

	out := buf.String()
	assert.Contains(t, out, "PLAYED")
	assert.Contains(t, out, "alphabot")
	assert.Contains(t, out, "4")
	assert.Contains(t, out, "betabot")
}
