package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║          gocraft2 - First Run Setup          ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Welcome! Let's configure the harness.       ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── StarCraft II Installation ──")

	cfg.Engine.InstallDir = promptString(reader,
		"Install directory (leave blank to use SC2PATH or the platform default)",
		cfg.Engine.InstallDir)
	cfg.Runner.MapsDir = promptString(reader,
		"Maps directory (leave blank to use the installation's Maps folder)",
		cfg.Runner.MapsDir)

	fmt.Println()
	fmt.Println("── Engine ──")

	cfg.Engine.StartingPort = promptInt(reader, "Starting engine API port", cfg.Engine.StartingPort)
	cfg.Engine.DisplayMode = promptInt(reader, "Display mode (0 windowed, 1 fullscreen)", cfg.Engine.DisplayMode)

	fmt.Println()
	fmt.Println("── Match Execution ──")

	cfg.Runner.StepCount = promptInt(reader, "Game loops per step request", cfg.Runner.StepCount)
	cfg.Runner.Realtime = promptBool(reader, "Run matches in realtime", cfg.Runner.Realtime)

	fmt.Println()
	fmt.Println("── Status API ──")

	cfg.API.Enabled = promptBool(reader, "Enable the HTTP status API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = promptInt(reader, "API port", cfg.API.Port)
	}

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")

	cfg.Telemetry.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.Telemetry.Enabled)
	if cfg.Telemetry.Enabled {
		cfg.Telemetry.BrokerHost = promptString(reader, "Broker host", cfg.Telemetry.BrokerHost)
		cfg.Telemetry.Port = promptInt(reader, "Broker port", cfg.Telemetry.Port)
		cfg.Telemetry.UseTLS = promptBool(reader, "Use TLS", cfg.Telemetry.UseTLS)
	}

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	// Save configuration
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println("  gocraft2 will now start with your configuration.")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
