package config

import (
	"errors"
	"fmt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Either a procfile or a positional command is required (unless --check)
	if cfg.Procfile == "" && len(cfg.Argv) == 0 && !cfg.Check {
		errs = append(errs, ValidationError{
			Field:   "argv",
			Message: "a command or -procfile is required",
		})
	}

	// Procfile and positional argv are mutually exclusive
	if cfg.Procfile != "" && len(cfg.Argv) > 0 {
		errs = append(errs, ValidationError{
			Field:   "procfile",
			Message: "cannot combine -procfile with a positional command",
		})
	}

	// Restart delay must be positive
	if cfg.RestartDelay <= 0 {
		errs = append(errs, ValidationError{
			Field:   "restart_delay",
			Message: "must be positive",
		})
	}

	// Restart budget must not be negative
	if cfg.MaxRestarts < 0 {
		errs = append(errs, ValidationError{
			Field:   "max_restarts",
			Message: "must not be negative",
		})
	}

	// Relay buffer must be positive
	if cfg.RelayBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "relay_buffer",
			Message: "must be at least 1",
		})
	}

	// Stop grace must be positive
	if cfg.StopGrace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_grace",
			Message: "must be positive",
		})
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
