package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocraft2-project/gocraft2/internal/config"
	"github.com/gocraft2-project/gocraft2/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(config.HistoryConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func testMatch(id string, players ...PlayerRecord) MatchRecord {
	return MatchRecord{
		MatchID:    id,
		Map:        "AcropolisLE",
		GameLoop:   3024,
		DurationMS: 12500,
		Players:    players,
	}
}

func TestStoreRecordAndQuery(t *testing.T) {
	s := newTestStore(t)

	rec := testMatch("m-1",
		PlayerRecord{PlayerID: 1, Name: "alphabot", Race: "terran", Outcome: "victory"},
		PlayerRecord{PlayerID: 2, Name: "Computer Medium", Race: "zerg", Outcome: "defeat"},
	)
	require.NoError(t, s.RecordMatch(rec))

	matches, err := s.RecentMatches(10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	got := matches[0]
	assert.Equal(t, "m-1", got.MatchID)
	assert.Equal(t, "AcropolisLE", got.Map)
	assert.Equal(t, uint32(3024), got.GameLoop)
	assert.Equal(t, int64(12500), got.DurationMS)
	assert.False(t, got.Aborted)
	assert.Empty(t, got.Error)
	assert.WithinDuration(t, time.Now().UTC(), got.CreatedAt, time.Minute)

	require.Len(t, got.Players, 2)
	assert.Equal(t, "alphabot", got.Players[0].Name)
	assert.Equal(t, "victory", got.Players[0].Outcome)
	assert.Equal(t, "Computer Medium", got.Players[1].Name)
	assert.Equal(t, "zerg", got.Players[1].Race)
}

func TestStoreMatchByID(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordMatch(testMatch("m-1",
		PlayerRecord{PlayerID: 1, Name: "alphabot", Race: "protoss", Outcome: "tie"})))

	got, err := s.Match("m-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.MatchID)
	require.Len(t, got.Players, 1)
	assert.Equal(t, "tie", got.Players[0].Outcome)

	_, err = s.Match("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStoreRecentMatchesNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"m-1", "m-2", "m-3"} {
		require.NoError(t, s.RecordMatch(testMatch(id)))
	}

	matches, err := s.RecentMatches(2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "m-3", matches[0].MatchID)
	assert.Equal(t, "m-2", matches[1].MatchID)
}

func TestStoreDuplicateMatchIDRollsBack(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordMatch(testMatch("m-1",
		PlayerRecord{PlayerID: 1, Name: "alphabot", Outcome: "victory"})))

	err := s.RecordMatch(testMatch("m-1",
		PlayerRecord{PlayerID: 1, Name: "betabot", Outcome: "victory"}))
	require.Error(t, err)

	// The failed insert must not leave orphan player rows behind.
	standings, err := s.Standings()
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "alphabot", standings[0].Name)
}

func TestStoreStandings(t *testing.T) {
	s := newTestStore(t)

	games := []struct {
		id       string
		aOutcome string
		bOutcome string
	}{
		{"m-1", "victory", "defeat"},
		{"m-2", "victory", "defeat"},
		{"m-3", "defeat", "victory"},
		{"m-4", "tie", "tie"},
	}
	for _, g := range games {
		require.NoError(t, s.RecordMatch(testMatch(g.id,
			PlayerRecord{PlayerID: 1, Name: "alphabot", Race: "terran", Outcome: g.aOutcome},
			PlayerRecord{PlayerID: 2, Name: "betabot", Race: "zerg", Outcome: g.bOutcome},
		)))
	}

	standings, err := s.Standings()
	require.NoError(t, err)
	require.Len(t, standings, 2)

	assert.Equal(t, "alphabot", standings[0].Name)
	assert.Equal(t, 4, standings[0].Played)
	assert.Equal(t, 2, standings[0].Wins)
	assert.Equal(t, 1, standings[0].Losses)
	assert.Equal(t, 1, standings[0].Ties)

	assert.Equal(t, "betabot", standings[1].Name)
	assert.Equal(t, 1, standings[1].Wins)
	assert.Equal(t, 2, standings[1].Losses)
}

func TestStoreRecordsFromBus(t *testing.T) {
	s := newTestStore(t)

	bus := events.NewEventBus()
	defer bus.Stop()
	s.Attach(bus)

	err := bus.EmitSync(context.Background(), events.Event{
		Type:   events.EventMatchEnded,
		Source: "runner",
		Payload: events.MatchEndedPayload{
			MatchID:  "m-bus",
			Map:      "DiscoBloodbathLE",
			GameLoop: 800,
			Duration: 36 * time.Second,
			Aborted:  true,
			Error:    "bot crashed",
			Results: []events.MatchResult{
				{PlayerID: 1, Name: "alphabot", Race: "random", Outcome: "undecided"},
			},
		},
	})
	require.NoError(t, err)

	got, err := s.Match("m-bus")
	require.NoError(t, err)
	assert.True(t, got.Aborted)
	assert.Equal(t, "bot crashed", got.Error)
	assert.Equal(t, int64(36000), got.DurationMS)
	require.Len(t, got.Players, 1)
	assert.Equal(t, "undecided", got.Players[0].Outcome)

	// A payload of the wrong shape is rejected, not silently dropped.
	err = bus.EmitSync(context.Background(), events.Event{
		Type:    events.EventMatchEnded,
		Source:  "runner",
		Payload: "not a match",
	})
	assert.Error(t, err)
}
