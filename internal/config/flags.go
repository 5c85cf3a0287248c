package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses command-line flags and returns a Config.
// Positional arguments after the flags form the argv of a single
// supervised process; -procfile supervises a set instead.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `go-overlord - single-host process supervision with restart budgets

Usage:
  go-overlord [flags] <COMMAND> [ARGS...]
  go-overlord [flags] -procfile <FILE>

Process Flags:
`)
		// Print flags by category
		printFlagCategory([]string{"procfile", "cwd", "restart-delay", "max-restarts"})

		fmt.Fprintf(os.Stderr, "\nRun Control:\n")
		printFlagCategory([]string{"duration", "stop-grace", "relay-buffer"})

		fmt.Fprintf(os.Stderr, "\nSafety & Diagnostics:\n")
		printFlagCategory([]string{"check", "skip-preflight"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "v", "log-format"})

		fmt.Fprintf(os.Stderr, "\nDashboard:\n")
		printFlagCategory([]string{"tui"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Supervise one command, restart on exit up to 5 times
  go-overlord -- myserver -port 8080

  # Supervise a set of processes from a YAML file
  go-overlord -procfile procs.yaml

  # Run for 10 minutes with the live dashboard
  go-overlord -duration 10m -tui -procfile procs.yaml

`)
	}

	// Process flags
	flag.StringVar(&cfg.Procfile, "procfile", cfg.Procfile, "YAML file describing processes to supervise")
	flag.StringVar(&cfg.Cwd, "cwd", cfg.Cwd, "Working directory for the positional command")
	flag.DurationVar(&cfg.RestartDelay, "restart-delay", cfg.RestartDelay, "Fixed delay between restarts")
	flag.IntVar(&cfg.MaxRestarts, "max-restarts", cfg.MaxRestarts, "Restart budget per process")

	// Run control
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Run duration (0 = forever)")
	flag.DurationVar(&cfg.StopGrace, "stop-grace", cfg.StopGrace, "Grace period between SIGTERM and SIGKILL")
	flag.IntVar(&cfg.RelayBuffer, "relay-buffer", cfg.RelayBuffer, "Lines to buffer per output stream (increase if seeing drops)")

	// Safety & Diagnostics
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, run preflight, and exit")
	flag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// TUI (Terminal User Interface)
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")

	// Parse
	flag.Parse()

	// Positional arguments: command argv
	cfg.Argv = flag.Args()

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(names []string) {
	flag.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(os.Stderr, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(os.Stderr, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(os.Stderr)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
