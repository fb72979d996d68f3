// Package api implements the read-only status API for a running harness:
// live match state mirrored off the event bus, plus match history queries.
// Meant for long-running ladder daemons; disabled by default.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gocraft2-project/gocraft2/internal/config"
	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/history"
	intnet "github.com/gocraft2-project/gocraft2/internal/network"
	"github.com/gocraft2-project/gocraft2/internal/util"
)

// Server is the HTTP status server.
type Server struct {
	cfg     *config.Config
	store   *history.Store
	tracker *tracker

	httpServer *http.Server
	router     *gin.Engine
	logger     zerolog.Logger
}

// NewServer wires the API against the event bus and the history store.
// store may be nil when history is disabled; the history routes then
// answer 503.
func NewServer(cfg *config.Config, bus *events.EventBus, store *history.Store) *Server {
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		tracker: newTracker(),
		logger: log.With().
			Str("component", "api").
			Int("port", cfg.API.Port).
			Logger(),
	}
	s.tracker.attach(bus)

	return s
}

// Start binds the listener and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if s.cfg.API.TLSEnabled {
		cert, err := s.ensureCert()
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
	}

	// SO_REUSEADDR lets a restarted harness rebind while the old socket
	// lingers in TIME_WAIT.
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind API listener: %w", err)
	}

	s.logger.Info().
		Str("addr", addr).
		Bool("tls", s.cfg.API.TLSEnabled).
		Msg("status API starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if s.httpServer.TLSConfig != nil {
		ln = tls.NewListener(ln, s.httpServer.TLSConfig)
	}

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// ensureCert loads the configured certificate pair, generating a
// self-signed one on first run when none exists yet.
func (s *Server) ensureCert() (tls.Certificate, error) {
	certFile := s.cfg.API.TLSCertFile
	keyFile := s.cfg.API.TLSKeyFile

	if _, err := os.Stat(certFile); os.IsNotExist(err) {
		s.logger.Info().Str("cert", certFile).Msg("generating self-signed API certificate")
		if err := util.EnsureDir(filepath.Dir(certFile)); err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to create certificate directory: %w", err)
		}
		if err := util.GenerateSelfSignedCert(certFile, keyFile); err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to generate API certificate: %w", err)
		}
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load API certificate: %w", err)
	}
	return cert, nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/status", s.handleStatus)
		api.GET("/matches", s.handleMatches)
		api.GET("/matches/:match_id", s.handleMatch)
		api.GET("/standings", s.handleStandings)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
