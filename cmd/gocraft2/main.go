// gocraft2 - StarCraft II Bot Match Harness
//
// gocraft2 launches StarCraft II engine processes, drives bot matches over
// the engine's WebSocket API in lock step, and reports the results. A
// status API, MQTT telemetry and a sqlite match history can run alongside
// for ladder deployments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gocraft2-project/gocraft2/internal/api"
	"github.com/gocraft2-project/gocraft2/internal/cli"
	"github.com/gocraft2-project/gocraft2/internal/config"
	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/history"
	"github.com/gocraft2-project/gocraft2/internal/launcher"
	"github.com/gocraft2-project/gocraft2/internal/maps"
	"github.com/gocraft2-project/gocraft2/internal/match"
	"github.com/gocraft2-project/gocraft2/internal/protocol"
	"github.com/gocraft2-project/gocraft2/internal/runner"
	"github.com/gocraft2-project/gocraft2/internal/telemetry"
	"github.com/gocraft2-project/gocraft2/internal/util"
)

const (
	AppName    = "gocraft2"
	AppVersion = "0.1.0"
	Banner     = `
   _____        _____            __ _   ___
  / ____|      / ____|          / _| | |__ \
 | |  __  ___ | |     _ __ __ _| |_| |_   ) |
 | | |_ |/ _ \| |    | '__/ _' |  _| __| / /
 | |__| | (_) | |____| | | (_| | | | |_ / /_
  \_____|\___/ \_____|_|  \__,_|_|  \__|____|
                                        v%s
 StarCraft II Bot Match Harness
`
)

func main() {
	var (
		configDir     string
		mapName       string
		playerSpec    string
		realtime      bool
		disableFog    bool
		steps         uint
		maxLoops      uint
		seed          uint
		runSetup      bool
		showRecent    bool
		showStandings bool
		ladderServer  string
		gamePort      int
		startPort     int
	)

	flag.StringVar(&configDir, "config", config.DefaultConfigDir, "configuration directory")
	flag.StringVar(&mapName, "map", "", "map name or .SC2Map path (required for local matches)")
	flag.StringVar(&playerSpec, "players", "gocraft2,computer:random:medium",
		"comma-separated slots: name[:race] joins a bot, computer[:race[:difficulty]] adds a built-in AI")
	flag.BoolVar(&realtime, "realtime", false, "let the engine advance on the wall clock instead of stepping")
	flag.BoolVar(&disableFog, "disable-fog", false, "reveal the whole map to every player")
	flag.UintVar(&steps, "steps", 0, "game loops advanced per tick (0 = config value)")
	flag.UintVar(&maxLoops, "max-loops", 0, "abort the match after this many game loops (0 = config value)")
	flag.UintVar(&seed, "seed", 0, "random seed for the engine (0 = engine picks)")
	flag.BoolVar(&runSetup, "setup", false, "run the interactive setup wizard and exit")
	flag.BoolVar(&showRecent, "recent", false, "print recent match history and exit")
	flag.BoolVar(&showStandings, "standings", false, "print per-bot standings and exit")

	// Ladder managers pass these exact flags to every bot binary they start.
	flag.StringVar(&ladderServer, "LadderServer", "", "ladder mode: host of the engine the manager launched")
	flag.IntVar(&gamePort, "GamePort", 0, "ladder mode: engine API port assigned to this bot")
	flag.IntVar(&startPort, "StartPort", 0, "ladder mode: base of the shared game port plan")
	flag.Parse()

	// Print banner
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting gocraft2")

	// Load configuration
	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    cfg.Logging.Console,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	if runSetup {
		if err := config.RunSetupWizard(cfg); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
		return
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	// History views render and exit without touching an engine.
	if showRecent || showStandings {
		os.Exit(showHistory(cfg, showRecent, showStandings))
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	players, err := parsePlayers(playerSpec)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -players")
	}
	lead, ok := leadBot(players)
	if !ok {
		log.Fatal().Msg("-players needs at least one bot slot")
	}
	if ladderServer == "" && mapName == "" {
		log.Fatal().Msg("a map is required: -map <name or .SC2Map path>")
	}

	stepCount := uint32(cfg.Runner.StepCount)
	if steps > 0 {
		stepCount = uint32(steps)
	}
	loopBudget := cfg.Runner.MaxGameLoops
	if maxLoops > 0 {
		loopBudget = uint32(maxLoops)
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open match history, recording disabled")
			store = nil
		} else {
			store.Attach(eventBus)
		}
	}

	var notifier *telemetry.Notifier
	if cfg.Telemetry.Enabled {
		notifier, err = telemetry.NewNotifier(cfg.Telemetry, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else if err := notifier.Start(); err != nil {
			log.Warn().Err(err).Msg("failed to connect to MQTT broker, telemetry disabled")
			notifier = nil
		}
	}

	var wg sync.WaitGroup
	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg, eventBus, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.API.Port).Msg("starting status API")
			if err := startWithRetry(ctx, "status API", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("status API failed (non-fatal)")
			}
		}()
	}

	// A signal aborts the match through context cancellation. Teardown still
	// runs afterwards so partial results land in history and telemetry.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal, aborting match")
		cancel()
	}()

	var results []match.Result
	var runErr error

	if ladderServer != "" {
		ladder, err := runner.NewLadderRunner(runner.LadderConfig{
			Server:       ladderServer,
			GamePort:     gamePort,
			StartPort:    startPort,
			Bus:          eventBus,
			MaxGameLoops: loopBudget,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("invalid ladder flags")
		}
		results, runErr = ladder.Run(ctx, lead, stepCount)
	} else {
		l, err := launcher.New(launcher.Config{
			InstallDir:   cfg.Engine.InstallDir,
			Host:         cfg.Engine.Host,
			DisplayMode:  cfg.Engine.DisplayMode,
			WindowWidth:  cfg.Engine.WindowWidth,
			WindowHeight: cfg.Engine.WindowHeight,
			WindowX:      cfg.Engine.WindowX,
			WindowY:      cfg.Engine.WindowY,
			Verbose:      cfg.Engine.Verbose,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to locate StarCraft II installation")
		}

		mapsDir := cfg.Runner.MapsDir
		if mapsDir == "" {
			mapsDir = l.MapsDir()
		}

		local, err := runner.NewLocalRunner(runner.LocalConfig{
			Launcher:     l,
			Loader:       maps.NewLoader(mapsDir),
			Bus:          eventBus,
			Host:         cfg.Engine.Host,
			StartingPort: cfg.Engine.StartingPort,
			MaxGameLoops: loopBudget,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create runner")
		}

		matchCfg := match.Config{
			Map:            mapName,
			Players:        players,
			Realtime:       realtime || cfg.Runner.Realtime,
			DisableFog:     disableFog || cfg.Runner.DisableFog,
			StepCount:      stepCount,
			ConnectTimeout: time.Duration(cfg.Runner.ConnectTimeoutSec) * time.Second,
			RequestTimeout: time.Duration(cfg.Runner.RequestTimeoutSec) * time.Second,
		}
		if seed != 0 {
			s := uint32(seed)
			matchCfg.RandomSeed = &s
		}

		results, runErr = local.Run(ctx, matchCfg)
	}

	// ---------------------------------------------------------------
	// Graceful shutdown: stop the API, flush handlers, close the rest
	// ---------------------------------------------------------------
	log.Info().Msg("shutting down")
	cancel()

	eventBus.Emit(ctx, events.Event{
		Type:   events.EventShutdown,
		Source: "main",
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timed out after 10 seconds, forcing exit")
	}

	// Stopping the bus waits for in-flight handlers, so the history write of
	// the final match.ended event lands before the store closes.
	eventBus.Stop()

	if notifier != nil {
		notifier.Stop()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close match history")
		}
	}

	if len(results) > 0 {
		cli.RenderResults(os.Stdout, results)
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("match failed")
		os.Exit(2)
	}

	log.Info().Msg("gocraft2 stopped")
	os.Exit(exitCode(lead, results))
}

// parsePlayers splits the -players flag into match slots.
func parsePlayers(spec string) ([]match.Player, error) {
	parts := strings.Split(spec, ",")
	players := make([]match.Player, 0, len(parts))
	for _, part := range parts {
		p, err := match.ParsePlayer(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}

// leadBot returns the first participant slot, the one whose outcome decides
// the exit status and who joins in ladder mode.
func leadBot(players []match.Player) (match.Player, bool) {
	for _, p := range players {
		if p.Type == protocol.PlayerParticipant {
			return p, true
		}
	}
	return match.Player{}, false
}

// exitCode maps the lead bot's outcome to a process status: 0 for a victory
// or tie, 1 for a defeat, 2 when the match never produced a clean result.
func exitCode(lead match.Player, results []match.Result) int {
	for _, r := range results {
		if r.Name != lead.Name {
			continue
		}
		if r.Aborted {
			return 2
		}
		switch r.Outcome {
		case protocol.ResultVictory, protocol.ResultTie:
			return 0
		}
		return 1
	}
	return 2
}

// showHistory renders stored matches or standings instead of playing.
func showHistory(cfg *config.Config, recent, standings bool) int {
	if !cfg.History.Enabled {
		log.Error().Msg("match history is disabled in config")
		return 1
	}
	store, err := history.NewStore(cfg.History)
	if err != nil {
		log.Error().Err(err).Msg("failed to open match history")
		return 1
	}
	defer store.Close()

	if recent {
		records, err := store.RecentMatches(0)
		if err != nil {
			log.Error().Err(err).Msg("failed to query recent matches")
			return 1
		}
		cli.RenderMatches(os.Stdout, records)
	}
	if standings {
		rows, err := store.Standings()
		if err != nil {
			log.Error().Err(err).Msg("failed to query standings")
			return 1
		}
		cli.RenderStandings(os.Stdout, rows)
	}
	return 0
}

// startWithRetry retries a bind-and-serve loop on a fixed 3 second interval,
// long enough for a lingering socket from a previous run to clear TIME_WAIT.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
