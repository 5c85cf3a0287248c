// Package main provides the go-overlord CLI entry point.
//
// go-overlord supervises one or more OS processes: it spawns them, relays
// their stdio line by line, and restarts them on exit until a fixed restart
// budget runs out.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-overlord/internal/config"
	"github.com/randomizedcoder/go-overlord/internal/logging"
	"github.com/randomizedcoder/go-overlord/internal/orchestrator"
	"github.com/randomizedcoder/go-overlord/internal/preflight"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-overlord
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-overlord %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Create the orchestrator (loads the procfile if configured)
	orch, err := orchestrator.New(cfg, logger, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Handle --check mode: preflight only, no supervision
	if cfg.Check {
		result := orch.Preflight()
		preflight.PrintResults(result)
		printCheckResults(result.Passed)
		if !result.Passed {
			return 1
		}
		return 0
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"procfile", cfg.Procfile,
		"restart_delay", cfg.RestartDelay.String(),
		"max_restarts", cfg.MaxRestarts,
		"metrics_addr", cfg.MetricsAddr,
	)

	// Print startup banner
	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	// Run
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                           go-overlord                             ║")
	fmt.Println("║            Process Supervision with Restart Budgets               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	if cfg.Procfile != "" {
		fmt.Printf("  Procfile:    %s\n", cfg.Procfile)
	} else if len(cfg.Argv) > 0 {
		fmt.Printf("  Command:     %v\n", cfg.Argv)
	}
	fmt.Printf("  Restarts:    up to %d per process, %s apart\n", cfg.MaxRestarts, cfg.RestartDelay)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	if cfg.Duration > 0 {
		fmt.Printf("  Duration:    %s\n", cfg.Duration)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printCheckResults prints the --check verdict.
func printCheckResults(passed bool) {
	if passed {
		fmt.Println("Configuration and preflight checks passed.")
	} else {
		fmt.Println("Preflight checks failed.")
	}
}
