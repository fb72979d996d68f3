// Package config handles configuration loading, validation, and persistence
// for the gocraft2 match harness.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultGamePort   = 8167
)

// Config is the root configuration structure for gocraft2.
type Config struct {
	mu   sync.RWMutex
	path string

	Engine    EngineConfig    `json:"engine"`
	Runner    RunnerConfig    `json:"runner"`
	Telemetry TelemetryConfig `json:"telemetry"`
	History   HistoryConfig   `json:"history"`
	API       APIConfig       `json:"api"`
	Logging   LoggingConfig   `json:"logging"`
}

// EngineConfig controls how StarCraft II client processes are launched.
type EngineConfig struct {
	// InstallDir overrides install discovery; SC2PATH and the platform
	// default are consulted when empty.
	InstallDir   string `json:"install_dir" env:"GOCRAFT2_INSTALL_DIR"`
	Host         string `json:"host" env:"GOCRAFT2_ENGINE_HOST"`
	StartingPort int    `json:"starting_port" env:"GOCRAFT2_ENGINE_PORT"`
	DisplayMode  int    `json:"display_mode"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
	WindowX      int    `json:"window_x"`
	WindowY      int    `json:"window_y"`
	Verbose      bool   `json:"verbose"`
}

// RunnerConfig controls match execution.
type RunnerConfig struct {
	// MapsDir is where map names are resolved; empty falls back to the
	// installation's Maps directory.
	MapsDir string `json:"maps_dir" env:"GOCRAFT2_MAPS_DIR"`

	// StepCount is the number of game loops advanced per step request.
	StepCount int `json:"step_count" env:"GOCRAFT2_STEP_COUNT"`

	Realtime   bool `json:"realtime"`
	DisableFog bool `json:"disable_fog"`

	// MaxGameLoops aborts a runaway match, zero means no limit.
	MaxGameLoops uint32 `json:"max_game_loops" env:"GOCRAFT2_MAX_GAME_LOOPS"`

	ConnectTimeoutSec int `json:"connect_timeout_sec"`
	RequestTimeoutSec int `json:"request_timeout_sec"`
}

// TelemetryConfig holds MQTT telemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" env:"GOCRAFT2_MQTT_ENABLED"`
	BrokerHost  string `json:"broker_host" env:"GOCRAFT2_MQTT_HOST"`
	Port        int    `json:"port" env:"GOCRAFT2_MQTT_PORT"`
	UseTLS      bool   `json:"use_tls" env:"GOCRAFT2_MQTT_TLS"`
	Username    string `json:"username" env:"GOCRAFT2_MQTT_USERNAME"`
	Password    string `json:"password" env:"GOCRAFT2_MQTT_PASSWORD"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// HistoryConfig holds match history database settings.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" env:"GOCRAFT2_HISTORY_ENABLED"`
	Path    string `json:"path" env:"GOCRAFT2_HISTORY_PATH"`
}

// APIConfig holds status API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled" env:"GOCRAFT2_API_ENABLED"`
	Port           int      `json:"port" env:"GOCRAFT2_API_PORT"`
	AllowedOrigins []string `json:"allowed_origins" env:"GOCRAFT2_API_ORIGINS" envSeparator:","`

	// TLSEnabled serves the API over HTTPS. A self-signed certificate is
	// generated at the configured paths when none exists.
	TLSEnabled  bool   `json:"tls_enabled" env:"GOCRAFT2_API_TLS"`
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level" env:"GOCRAFT2_LOG_LEVEL"`
	Directory  string `json:"directory" env:"GOCRAFT2_LOG_DIR"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Host:         "127.0.0.1",
			StartingPort: DefaultGamePort,
			WindowWidth:  1280,
			WindowHeight: 720,
		},
		Runner: RunnerConfig{
			StepCount:         100,
			ConnectTimeoutSec: 100,
			RequestTimeoutSec: 120,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			BrokerHost:  "127.0.0.1",
			Port:        1883,
			TopicPrefix: "gocraft2",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join("data", "gocraft2.db"),
		},
		API: APIConfig{
			Enabled:     false,
			Port:        DefaultAPIPort,
			TLSCertFile: filepath.Join("data", "api-cert.pem"),
			TLSKeyFile:  filepath.Join("data", "api-key.pem"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// Load reads configuration from a JSON file, creating it with defaults when
// missing, then applies environment variable overrides. Overrides happen
// after the file is persisted so they never leak into config.json.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return applyEnv(cfg)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return applyEnv(cfg)
}

func applyEnv(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Ensure config directory exists
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun reports whether the configuration still needs initial setup:
// no install directory configured anywhere.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Engine.InstallDir == "" && os.Getenv("SC2PATH") == ""
}
