package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocraft2-project/gocraft2/internal/config"
	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/history"
)

func newTestServer(t *testing.T, store *history.Store) (*Server, *events.EventBus) {
	t.Helper()

	cfg := config.DefaultConfig()
	bus := events.NewEventBus()
	t.Cleanup(bus.Stop)

	s := NewServer(cfg, bus, store)
	s.router = s.buildRouter()

	return s, bus
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.NewStore(config.HistoryConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func doGET(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func emit(t *testing.T, bus *events.EventBus, eventType events.EventType, payload interface{}) {
	t.Helper()
	require.NoError(t, bus.EmitSync(context.Background(), events.Event{
		Type:    eventType,
		Source:  "runner",
		Payload: payload,
	}))
}

func TestAPIPing(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w, body := doGET(t, s, "/api/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "gocraft2", body["service"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "gocraft2", w.Header().Get("Server"))
}

func TestAPIStatusBeforeAnyMatch(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w, body := doGET(t, s, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["match"])

	system, ok := body["system"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, system, "hostname")
	assert.Contains(t, system, "cpu_cores")
}

func TestAPIStatusTracksMatchLifecycle(t *testing.T) {
	s, bus := newTestServer(t, nil)

	emit(t, bus, events.EventEngineLaunched, events.EngineLaunchedPayload{
		Port: 8167, PID: 4242, Executable: "/opt/sc2/SC2_x64",
	})
	emit(t, bus, events.EventSessionStateChanged, events.SessionStateChangedPayload{
		MatchID: "m-1", Endpoint: "127.0.0.1:8167", From: "closed", To: "launched",
	})
	emit(t, bus, events.EventMatchCreated, events.MatchCreatedPayload{
		MatchID: "m-1", Map: "AcropolisLE", Players: []string{"alphabot", "Computer Medium"},
	})
	emit(t, bus, events.EventMatchStarted, events.MatchStartedPayload{MatchID: "m-1", Players: 1})
	emit(t, bus, events.EventSessionStateChanged, events.SessionStateChangedPayload{
		MatchID: "m-1", Endpoint: "127.0.0.1:8167", PlayerID: 1, From: "joined", To: "in_game",
	})
	emit(t, bus, events.EventMatchTick, events.MatchTickPayload{MatchID: "m-1", GameLoop: 300})

	w, body := doGET(t, s, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)

	m, ok := body["match"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "m-1", m["match_id"])
	assert.Equal(t, "AcropolisLE", m["map"])
	assert.Equal(t, "running", m["status"])
	assert.Equal(t, float64(300), m["game_loop"])

	sessions, ok := m["sessions"].([]interface{})
	require.True(t, ok)
	require.Len(t, sessions, 1)
	sess := sessions[0].(map[string]interface{})
	assert.Equal(t, "127.0.0.1:8167", sess["endpoint"])
	assert.Equal(t, "in_game", sess["state"])
	assert.Equal(t, float64(1), sess["player_id"])

	engines, ok := body["engines"].([]interface{})
	require.True(t, ok)
	require.Len(t, engines, 1)
	eng := engines[0].(map[string]interface{})
	assert.Equal(t, float64(8167), eng["port"])
	assert.Equal(t, true, eng["running"])

	// Abort path flips the status and carries results.
	emit(t, bus, events.EventMatchEnded, events.MatchEndedPayload{
		MatchID: "m-1", Map: "AcropolisLE", GameLoop: 300,
		Duration: 10 * time.Second, Aborted: true, Error: "engine lost",
		Results: []events.MatchResult{{PlayerID: 1, Name: "alphabot", Race: "terran", Outcome: "undecided"}},
	})
	emit(t, bus, events.EventEngineExited, events.EngineExitedPayload{Port: 8167, PID: 4242, ExitCode: 0})

	_, body = doGET(t, s, "/api/status")
	m = body["match"].(map[string]interface{})
	assert.Equal(t, "aborted", m["status"])
	assert.Equal(t, "engine lost", m["error"])
	require.Len(t, m["results"].([]interface{}), 1)

	eng = body["engines"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, false, eng["running"])

	// A new match id resets the per-match view, session list included.
	emit(t, bus, events.EventMatchCreated, events.MatchCreatedPayload{
		MatchID: "m-2", Map: "DiscoBloodbathLE", Players: []string{"alphabot", "betabot"},
	})

	_, body = doGET(t, s, "/api/status")
	m = body["match"].(map[string]interface{})
	assert.Equal(t, "m-2", m["match_id"])
	assert.Equal(t, "created", m["status"])
	assert.Nil(t, m["sessions"])
	assert.Nil(t, m["results"])
}

func TestAPIMatches(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordMatch(history.MatchRecord{
		MatchID: "m-1", Map: "AcropolisLE", GameLoop: 100, DurationMS: 5000,
		Players: []history.PlayerRecord{{PlayerID: 1, Name: "alphabot", Race: "terran", Outcome: "victory"}},
	}))
	require.NoError(t, store.RecordMatch(history.MatchRecord{
		MatchID: "m-2", Map: "TritonLE", GameLoop: 200, DurationMS: 9000,
	}))

	s, _ := newTestServer(t, store)

	w, body := doGET(t, s, "/api/matches?limit=1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
	matches := body["matches"].([]interface{})
	assert.Equal(t, "m-2", matches[0].(map[string]interface{})["match_id"])

	w, body = doGET(t, s, "/api/matches/m-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "m-1", body["match_id"])
	players := body["players"].([]interface{})
	require.Len(t, players, 1)
	assert.Equal(t, "victory", players[0].(map[string]interface{})["outcome"])

	w, _ = doGET(t, s, "/api/matches/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIStandings(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.RecordMatch(history.MatchRecord{
		MatchID: "m-1", Map: "AcropolisLE",
		Players: []history.PlayerRecord{
			{PlayerID: 1, Name: "alphabot", Outcome: "victory"},
			{PlayerID: 2, Name: "betabot", Outcome: "defeat"},
		},
	}))

	s, _ := newTestServer(t, store)

	w, body := doGET(t, s, "/api/standings")
	assert.Equal(t, http.StatusOK, w.Code)
	standings := body["standings"].([]interface{})
	require.Len(t, standings, 2)
	first := standings[0].(map[string]interface{})
	assert.Equal(t, "alphabot", first["name"])
	assert.Equal(t, float64(1), first["wins"])
}

func TestAPIHistoryDisabled(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, path := range []string{"/api/matches", "/api/matches/m-1", "/api/standings"} {
		w, body := doGET(t, s, path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Contains(t, body["error"], "disabled")
	}
}

func TestAPIUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w, body := doGET(t, s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "endpoint not found", body["error"])
}
