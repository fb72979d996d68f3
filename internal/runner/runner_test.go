package runner

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/match"
	"github.com/gocraft2-project/gocraft2/internal/protocol"
	"github.com/gocraft2-project/gocraft2/internal/session"
	"github.com/gocraft2-project/gocraft2/internal/transport"
)

// gameState is the simulation shared by the fake engines of one game: the
// join gate, the step barrier, the loop counter and the scripted ending.
// Real engines hold each join until all participants arrive and hold each
// step until all participants have stepped; the fakes do the same, so a
// harness that joined or stepped sequentially would deadlock here too.
type gameState struct {
	mu   sync.Mutex
	cond *sync.Cond

	players int
	joined  int
	nextID  uint32

	loop    uint32
	endAt   uint32
	results []protocol.PlayerResult

	round        int
	stepsWaiting int

	dropOnStep bool // close the connection instead of answering a step

	creates        int
	createMapBytes int
	createSlots    int
	joinRequests   []*protocol.RequestJoinGame
	kinds          []protocol.RequestKind
}

func newGameState(players int, endAt uint32, results []protocol.PlayerResult) *gameState {
	gs := &gameState{players: players, endAt: endAt, results: results}
	gs.cond = sync.NewCond(&gs.mu)
	return gs
}

func (g *gameState) recordKind(kind protocol.RequestKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.kinds = append(g.kinds, kind)
}

func (g *gameState) sawKind(kind protocol.RequestKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range g.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (g *gameState) recordCreate(mapBytes, slots int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	g.createMapBytes = mapBytes
	g.createSlots = slots
}

func (g *gameState) recordJoinRequest(req *protocol.RequestJoinGame) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joinRequests = append(g.joinRequests, req)
}

func (g *gameState) createStats() (creates, mapBytes, slots int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates, g.createMapBytes, g.createSlots
}

func (g *gameState) joins() []*protocol.RequestJoinGame {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*protocol.RequestJoinGame(nil), g.joinRequests...)
}

// join assigns the next player id and blocks until every participant has
// arrived.
func (g *gameState) join() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID
	g.joined++
	g.cond.Broadcast()
	for g.joined < g.players {
		g.cond.Wait()
	}
	return id
}

// step blocks until every participant has submitted its step for the round,
// then advances the loop once for all of them.
func (g *gameState) step(count uint32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	round := g.round
	g.stepsWaiting++
	if g.stepsWaiting == g.players {
		g.loop += count
		g.round++
		g.stepsWaiting = 0
		g.cond.Broadcast()
	} else {
		for g.round == round {
			g.cond.Wait()
		}
	}
	return g.loop
}

func (g *gameState) observe() (uint32, []protocol.PlayerResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.endAt > 0 && g.loop >= g.endAt {
		return g.loop, g.results
	}
	return g.loop, nil
}

func (g *gameState) shouldDrop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropOnStep
}

var testUpgrader = websocket.Upgrader{}

// startFakeEngine serves one engine endpoint backed by the shared game.
func startFakeEngine(t *testing.T, game *gameState) transport.Endpoint {
	t.Helper()
	codec := protocol.NewCodec(protocol.NewRegistry())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/sc2api" {
			http.NotFound(w, req)
			return
		}
		conn, err := testUpgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serveEngine(t, codec, conn, game)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return transport.Endpoint{Host: host, Port: port}
}

func serveEngine(t *testing.T, codec *protocol.Codec, conn *websocket.Conn, game *gameState) {
	status := protocol.StatusLaunched

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req, err := codec.DecodeRequest(frame)
		if err != nil {
			t.Errorf("fake engine could not decode request: %v", err)
			return
		}
		game.recordKind(req.Kind())

		resp := &protocol.Response{ID: req.ID}
		switch {
		case req.Ping != nil:
			resp.Ping = &protocol.ResponsePing{GameVersion: "5.0.14.93333", BaseBuild: 93333}
		case req.CreateGame != nil:
			game.recordCreate(len(req.CreateGame.LocalMap.MapData), len(req.CreateGame.PlayerSetup))
			status = protocol.StatusInitGame
			resp.CreateGame = &protocol.ResponseCreateGame{}
		case req.JoinGame != nil:
			game.recordJoinRequest(req.JoinGame)
			playerID := game.join()
			status = protocol.StatusInGame
			resp.JoinGame = &protocol.ResponseJoinGame{PlayerID: playerID}
		case req.Observation != nil:
			loop, results := game.observe()
			if len(results) > 0 {
				status = protocol.StatusEnded
			}
			resp.Observation = &protocol.ResponseObservation{
				Observation:  &protocol.Observation{GameLoop: loop},
				PlayerResult: results,
			}
		case req.Step != nil:
			if game.shouldDrop() {
				return
			}
			resp.Step = &protocol.ResponseStep{SimulationLoop: game.step(req.Step.Count)}
		case req.LeaveGame != nil:
			status = protocol.StatusLaunched
			resp.LeaveGame = &protocol.ResponseLeaveGame{}
		case req.Quit != nil:
			status = protocol.StatusQuit
			resp.Quit = &protocol.ResponseQuit{}
		}
		resp.Status = status

		out, err := codec.EncodeResponse(resp)
		if err != nil {
			t.Errorf("fake engine could not encode response: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			return
		}
		if req.Quit != nil {
			return
		}
	}
}

func oneVsTwoResults() []protocol.PlayerResult {
	return []protocol.PlayerResult{
		{PlayerID: 1, Result: protocol.ResultVictory},
		{PlayerID: 2, Result: protocol.ResultDefeat},
	}
}

// eventCollector gathers bus events for assertions after the fact.
type eventCollector struct {
	mu     sync.Mutex
	events []events.Event
}

func collectEvents(bus *events.EventBus, types ...events.EventType) *eventCollector {
	c := &eventCollector{}
	for _, eventType := range types {
		bus.Subscribe(eventType, "test-collector", func(ctx context.Context, event events.Event) error {
			c.mu.Lock()
			c.events = append(c.events, event)
			c.mu.Unlock()
			return nil
		})
	}
	return c
}

func (c *eventCollector) count(eventType events.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, event := range c.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func TestMatchBotVsComputer(t *testing.T) {
	game := newGameState(1, 300, oneVsTwoResults())
	endpoint := startFakeEngine(t, game)

	bus := events.NewEventBus()
	collector := collectEvents(bus,
		events.EventMatchCreated, events.EventMatchStarted,
		events.EventMatchTick, events.EventMatchEnded)

	var steps int32
	bot := match.BotFunc(func(step *match.StepContext) error {
		atomic.AddInt32(&steps, 1)
		return nil
	})

	cfg := match.Config{
		Map: "/maps/AcropolisLE.SC2Map",
		Players: []match.Player{
			match.NewBot("alphabot", protocol.RaceTerran, bot),
			match.NewComputer(protocol.RaceZerg, protocol.DifficultyMedium),
		},
		StepCount:      100,
		RequestTimeout: 5 * time.Second,
	}

	m, err := NewMatch(cfg, []transport.Endpoint{endpoint}, Options{Bus: bus})
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	defer m.Shutdown()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Create([]byte("map bytes")))
	require.NoError(t, m.Join())

	results, err := m.Play(ctx, 0)
	require.NoError(t, err)

	// Rounds at loops 0, 100 and 200 step; the observation at 300 ends it.
	assert.Equal(t, int32(3), atomic.LoadInt32(&steps))
	require.Len(t, results, 2)
	assert.Equal(t, "alphabot", results[0].Name)
	assert.Equal(t, protocol.ResultVictory, results[0].Outcome)
	assert.Equal(t, protocol.ResultDefeat, results[1].Outcome)
	assert.Equal(t, uint32(300), results[0].GameLoop)
	assert.False(t, results[0].Aborted)
	assert.Equal(t, match.StatusEnded, m.Status())

	creates, mapBytes, slots := game.createStats()
	assert.Equal(t, 1, creates)
	assert.Equal(t, len("map bytes"), mapBytes)
	assert.Equal(t, 2, slots)

	// A single-participant game needs no port plan.
	joins := game.joins()
	require.Len(t, joins, 1)
	assert.Nil(t, joins[0].ServerPorts)

	m.Shutdown()
	assert.True(t, game.sawKind(protocol.KindLeaveGame))
	assert.True(t, game.sawKind(protocol.KindQuit))

	require.Eventually(t, func() bool {
		return collector.count(events.EventMatchEnded) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, collector.count(events.EventMatchCreated))
	assert.Equal(t, 1, collector.count(events.EventMatchStarted))
	assert.GreaterOrEqual(t, collector.count(events.EventMatchTick), 3)
	bus.Stop()
}

func TestMatchTwoBotsLockStep(t *testing.T) {
	game := newGameState(2, 300, oneVsTwoResults())
	endpoints := []transport.Endpoint{
		startFakeEngine(t, game),
		startFakeEngine(t, game),
	}

	var mu sync.Mutex
	seen := map[string][]uint32{}
	recorder := func(name string) match.Bot {
		return match.BotFunc(func(step *match.StepContext) error {
			mu.Lock()
			seen[name] = append(seen[name], step.GameLoop)
			mu.Unlock()
			return nil
		})
	}

	cfg := match.Config{
		Map: "LockstepArena",
		Players: []match.Player{
			match.NewBot("red", protocol.RaceTerran, recorder("red")),
			match.NewBot("blue", protocol.RaceProtoss, recorder("blue")),
		},
		StepCount:      100,
		RequestTimeout: 5 * time.Second,
	}

	m, err := NewMatch(cfg, endpoints, Options{})
	require.NoError(t, err)
	defer m.Shutdown()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Create([]byte("map bytes")))
	require.NoError(t, m.Join())

	results, err := m.Play(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Only the host creates; the engine replicates to the second client.
	creates, _, _ := game.createStats()
	assert.Equal(t, 1, creates)

	// The barrier keeps both bots on the same loop sequence.
	mu.Lock()
	assert.Equal(t, []uint32{0, 100, 200}, seen["red"])
	assert.Equal(t, seen["red"], seen["blue"])
	mu.Unlock()

	// Both joins carried the identical shared port plan.
	joins := game.joins()
	require.Len(t, joins, 2)
	first, second := joins[0], joins[1]
	require.NotNil(t, first.ServerPorts)
	require.NotNil(t, second.ServerPorts)
	assert.Equal(t, *first.ServerPorts, *second.ServerPorts)
	assert.Equal(t, first.ClientPorts, second.ClientPorts)
	assert.NotEqual(t, first.ServerPorts.GamePort, first.ServerPorts.BasePort)
}

func TestMatchBotErrorAborts(t *testing.T) {
	game := newGameState(1, 0, nil) // never ends on its own
	endpoint := startFakeEngine(t, game)

	bot := match.BotFunc(func(step *match.StepContext) error {
		if step.GameLoop >= 100 {
			return assert.AnError
		}
		return nil
	})

	cfg := match.Config{
		Map: "Eternal",
		Players: []match.Player{
			match.NewBot("crasher", protocol.RaceZerg, bot),
		},
		StepCount:      100,
		RequestTimeout: 5 * time.Second,
	}

	m, err := NewMatch(cfg, []transport.Endpoint{endpoint}, Options{})
	require.NoError(t, err)
	defer m.Shutdown()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Create(nil))
	require.NoError(t, m.Join())

	results, err := m.Play(ctx, 0)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "crasher")

	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
	assert.Equal(t, protocol.ResultUndecided, results[0].Outcome)
	assert.Equal(t, match.StatusEnded, m.Status())

	// The session is still healthy, so shutdown leaves the game cleanly.
	m.Shutdown()
	assert.True(t, game.sawKind(protocol.KindLeaveGame))
}

func TestMatchEngineLossAborts(t *testing.T) {
	game := newGameState(1, 0, nil)
	game.dropOnStep = true
	endpoint := startFakeEngine(t, game)

	bus := events.NewEventBus()
	collector := collectEvents(bus, events.EventSessionAborted, events.EventMatchEnded)

	cfg := match.Config{
		Map: "FlakyHardware",
		Players: []match.Player{
			match.NewBot("victim", protocol.RaceTerran, nil),
		},
		StepCount:      10,
		RequestTimeout: 5 * time.Second,
	}

	m, err := NewMatch(cfg, []transport.Endpoint{endpoint}, Options{Bus: bus})
	require.NoError(t, err)
	defer m.Shutdown()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Create(nil))
	require.NoError(t, m.Join())

	results, err := m.Play(ctx, 0)
	require.ErrorIs(t, err, session.ErrSessionAborted)

	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
	assert.Equal(t, session.Ended, m.Sessions()[0].State())

	require.Eventually(t, func() bool {
		return collector.count(events.EventSessionAborted) == 1 &&
			collector.count(events.EventMatchEnded) == 1
	}, 2*time.Second, 10*time.Millisecond)
	bus.Stop()
}

func TestMatchLoopLimit(t *testing.T) {
	game := newGameState(1, 0, nil)
	endpoint := startFakeEngine(t, game)

	cfg := match.Config{
		Map: "Endless",
		Players: []match.Player{
			match.NewBot("walker", protocol.RaceRandom, nil),
		},
		StepCount:      100,
		RequestTimeout: 5 * time.Second,
	}

	m, err := NewMatch(cfg, []transport.Endpoint{endpoint}, Options{})
	require.NoError(t, err)
	defer m.Shutdown()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Create(nil))
	require.NoError(t, m.Join())

	results, err := m.Play(ctx, 250)
	require.ErrorIs(t, err, ErrLoopLimit)
	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
	assert.GreaterOrEqual(t, results[0].GameLoop, uint32(250))
}

func TestMatchContextCancel(t *testing.T) {
	game := newGameState(1, 0, nil)
	endpoint := startFakeEngine(t, game)

	ctx, cancel := context.WithCancel(context.Background())
	bot := match.BotFunc(func(step *match.StepContext) error {
		if step.GameLoop >= 100 {
			cancel()
		}
		return nil
	})

	cfg := match.Config{
		Map: "Interrupted",
		Players: []match.Player{
			match.NewBot("impatient", protocol.RaceTerran, bot),
		},
		StepCount:      100,
		RequestTimeout: 5 * time.Second,
	}

	m, err := NewMatch(cfg, []transport.Endpoint{endpoint}, Options{})
	require.NoError(t, err)
	defer m.Shutdown()

	require.NoError(t, m.Connect(ctx))
	require.NoError(t, m.Create(nil))
	require.NoError(t, m.Join())

	results, err := m.Play(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
}

func TestNewMatchValidation(t *testing.T) {
	valid := match.Config{
		Map:     "x",
		Players: []match.Player{match.NewBot("a", protocol.RaceTerran, nil)},
	}

	t.Run("endpoint count must match participants", func(t *testing.T) {
		_, err := NewMatch(valid, nil, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoints")
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		_, err := NewMatch(match.Config{}, nil, Options{})
		assert.Error(t, err)
	})

	t.Run("two participants get a free port plan", func(t *testing.T) {
		cfg := match.Config{
			Map: "x",
			Players: []match.Player{
				match.NewBot("a", protocol.RaceTerran, nil),
				match.NewBot("b", protocol.RaceZerg, nil),
			},
		}
		endpoints := []transport.Endpoint{
			{Host: "127.0.0.1", Port: 1},
			{Host: "127.0.0.1", Port: 2},
		}
		m, err := NewMatch(cfg, endpoints, Options{})
		require.NoError(t, err)
		require.NotNil(t, m.ports)
		assert.NotZero(t, m.ports.ServerPorts.GamePort)
	})
}

func TestLadderRunner(t *testing.T) {
	t.Run("flag validation", func(t *testing.T) {
		_, err := NewLadderRunner(LadderConfig{GamePort: 5000, StartPort: 5200})
		assert.Error(t, err)
		_, err = NewLadderRunner(LadderConfig{Server: "10.0.0.4", StartPort: 5200})
		assert.Error(t, err)
		_, err = NewLadderRunner(LadderConfig{Server: "10.0.0.4", GamePort: 5000})
		assert.Error(t, err)
	})

	t.Run("rejects computer slots", func(t *testing.T) {
		lr, err := NewLadderRunner(LadderConfig{Server: "127.0.0.1", GamePort: 5000, StartPort: 5200})
		require.NoError(t, err)

		_, err = lr.Run(context.Background(),
			match.NewComputer(protocol.RaceZerg, protocol.DifficultyMedium), 0)
		assert.Error(t, err)
	})

	t.Run("joins and plays a hosted game", func(t *testing.T) {
		game := newGameState(1, 100, oneVsTwoResults())
		endpoint := startFakeEngine(t, game)

		lr, err := NewLadderRunner(LadderConfig{
			Server:    endpoint.Host,
			GamePort:  endpoint.Port,
			StartPort: 5200,
		})
		require.NoError(t, err)

		results, err := lr.Run(context.Background(),
			match.NewBot("ladderbot", protocol.RaceProtoss, nil), 50)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, protocol.ResultVictory, results[0].Outcome)

		// No create: the manager owns the game.
		assert.False(t, game.sawKind(protocol.KindCreateGame))

		// The join carried the port plan derived from the start port.
		joins := game.joins()
		require.Len(t, joins, 1)
		join := joins[0]
		require.NotNil(t, join.ServerPorts)
		assert.Equal(t, int32(5202), join.ServerPorts.GamePort)
		assert.Equal(t, int32(5203), join.ServerPorts.BasePort)
		require.Len(t, join.ClientPorts, 1)
		assert.Equal(t, int32(5204), join.ClientPorts[0].GamePort)
		assert.Equal(t, int32(5205), join.ClientPorts[0].BasePort)
		assert.Equal(t, endpoint.Host, join.HostIP)
	})
}

func TestNewLocalRunnerValidation(t *testing.T) {
	_, err := NewLocalRunner(LocalConfig{})
	assert.Error(t, err)
}
