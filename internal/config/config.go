// Package config provides configuration management for go-overlord.
package config

import "time"

// Config holds all configuration options for the supervisor.
type Config struct {
	// Processes
	Procfile string   `json:"procfile"` // YAML process file, empty = positional argv
	Argv     []string `json:"argv"`     // Single process argv (positional args)
	Cwd      string   `json:"cwd"`      // Working directory for positional process

	// Restart policy
	RestartDelay time.Duration `json:"restart_delay"`
	MaxRestarts  int           `json:"max_restarts"` // 0 = use default

	// Relay
	RelayBuffer int `json:"relay_buffer"` // Lines buffered per stream

	// Run control
	Duration  time.Duration `json:"duration"` // 0 = forever
	StopGrace time.Duration `json:"stop_grace"`

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	Check         bool `json:"check"`
	SkipPreflight bool `json:"skip_preflight"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Restart policy
		RestartDelay: 1 * time.Second,
		MaxRestarts:  5,

		// Relay
		RelayBuffer: 1000,

		// Run control
		Duration:  0, // Forever
		StopGrace: 5 * time.Second,

		// Observability
		MetricsAddr: "0.0.0.0:17091",
		Verbose:     false,
		LogFormat:   "json",

		// Dashboard
		TUIEnabled: false,
	}
}
