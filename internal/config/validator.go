package config

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateEngine(&cfg.Engine, result)
	validateRunner(&cfg.Runner, result)
	validateTelemetry(&cfg.Telemetry, result)
	validateHistory(&cfg.History, result)
	validateAPI(&cfg.API, result)
	validateLogging(&cfg.Logging, result)

	return result
}

func validateEngine(engine *EngineConfig, result *ValidationResult) {
	if engine.InstallDir != "" {
		if _, err := os.Stat(engine.InstallDir); os.IsNotExist(err) {
			result.AddWarning("engine.install_dir",
				fmt.Sprintf("directory does not exist: %s", engine.InstallDir))
		}
	}

	validatePort(engine.StartingPort, "engine.starting_port", result)

	if engine.DisplayMode != 0 && engine.DisplayMode != 1 {
		result.AddError("engine.display_mode", "display mode must be 0 (windowed) or 1 (fullscreen)")
	}

	if engine.WindowWidth < 0 || engine.WindowHeight < 0 {
		result.AddError("engine.window_width", "window dimensions cannot be negative")
	}
}

func validateRunner(runner *RunnerConfig, result *ValidationResult) {
	if runner.StepCount < 0 {
		result.AddError("runner.step_count", "step count cannot be negative")
	}
	if runner.StepCount > 0 && runner.Realtime {
		result.AddWarning("runner.step_count",
			"step count is ignored in realtime mode, the engine advances on its own")
	}

	if runner.MapsDir != "" {
		if _, err := os.Stat(runner.MapsDir); os.IsNotExist(err) {
			result.AddWarning("runner.maps_dir",
				fmt.Sprintf("directory does not exist: %s", runner.MapsDir))
		}
	}

	if runner.ConnectTimeoutSec < 1 {
		result.AddError("runner.connect_timeout_sec", "connect timeout must be at least 1 second")
	}
	if runner.RequestTimeoutSec < 1 {
		result.AddError("runner.request_timeout_sec", "request timeout must be at least 1 second")
	}
	if runner.RequestTimeoutSec > 0 && runner.RequestTimeoutSec < 10 {
		result.AddWarning("runner.request_timeout_sec",
			"request timeouts under 10s abandon slow game creation on large maps")
	}
}

func validateTelemetry(telemetry *TelemetryConfig, result *ValidationResult) {
	if !telemetry.Enabled {
		return
	}

	if strings.TrimSpace(telemetry.BrokerHost) == "" {
		result.AddError("telemetry.broker_host", "MQTT broker host is required when enabled")
	}
	if telemetry.Port < 1 || telemetry.Port > 65535 {
		result.AddError("telemetry.port", "invalid MQTT port")
	}
	if telemetry.TopicPrefix == "" {
		result.AddWarning("telemetry.topic_prefix", "empty topic prefix publishes at the broker root")
	}
}

func validateHistory(history *HistoryConfig, result *ValidationResult) {
	if history.Enabled && strings.TrimSpace(history.Path) == "" {
		result.AddError("history.path", "history database path is required when enabled")
	}
}

func validateAPI(api *APIConfig, result *ValidationResult) {
	if !api.Enabled {
		return
	}
	validatePort(api.Port, "api.port", result)

	if api.TLSEnabled {
		if strings.TrimSpace(api.TLSCertFile) == "" || strings.TrimSpace(api.TLSKeyFile) == "" {
			result.AddError("api.tls_cert_file",
				"TLS certificate and key paths are required when TLS is enabled")
		} else if _, err := os.Stat(api.TLSCertFile); os.IsNotExist(err) {
			result.AddWarning("api.tls_cert_file",
				"certificate not found, a self-signed one will be generated")
		}
	}
}

func validateLogging(logging *LoggingConfig, result *ValidationResult) {
	switch strings.ToLower(logging.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		result.AddError("logging.level",
			fmt.Sprintf("unknown log level %q (expected trace, debug, info, warn or error)", logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
