package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
)

// procfileEntry is one process definition in a YAML procfile.
type procfileEntry struct {
	Name         string   `yaml:"name"`
	Command      []string `yaml:"command"`
	Cwd          string   `yaml:"cwd"`
	RestartDelay string   `yaml:"restart_delay"` // Go duration string, e.g. "500ms"
	MaxRestarts  *int     `yaml:"max_restarts"`  // nil = use default
}

// procfileDoc is the top-level YAML document.
type procfileDoc struct {
	Processes []procfileEntry `yaml:"processes"`
}

// LoadProcfile reads a YAML procfile and converts it to process specs.
// Entries inherit RestartDelay and MaxRestarts from cfg unless they
// override them.
func LoadProcfile(path string, cfg *Config) ([]supervisor.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading procfile: %w", err)
	}
	return ParseProcfile(data, cfg)
}

// ParseProcfile parses procfile YAML into process specs.
func ParseProcfile(data []byte, cfg *Config) ([]supervisor.Spec, error) {
	var doc procfileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing procfile: %w", err)
	}

	if len(doc.Processes) == 0 {
		return nil, fmt.Errorf("procfile has no processes")
	}

	specs := make([]supervisor.Spec, 0, len(doc.Processes))
	seen := make(map[string]bool, len(doc.Processes))

	for i, entry := range doc.Processes {
		if len(entry.Command) == 0 {
			return nil, fmt.Errorf("process %d (%q): command is required", i, entry.Name)
		}

		name := entry.Name
		if name == "" {
			name = entry.Command[0]
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate process name %q", name)
		}
		seen[name] = true

		delay := cfg.RestartDelay
		if entry.RestartDelay != "" {
			d, err := time.ParseDuration(entry.RestartDelay)
			if err != nil {
				return nil, fmt.Errorf("process %q: restart_delay: %w", name, err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("process %q: restart_delay must be positive", name)
			}
			delay = d
		}

		maxRestarts := cfg.MaxRestarts
		if entry.MaxRestarts != nil {
			if *entry.MaxRestarts < 0 {
				return nil, fmt.Errorf("process %q: max_restarts must not be negative", name)
			}
			maxRestarts = *entry.MaxRestarts
		}
		if maxRestarts == 0 && entry.MaxRestarts == nil {
			maxRestarts = supervisor.DefaultMaxRestarts
		}

		specs = append(specs, supervisor.Spec{
			Name:         name,
			Path:         entry.Command[0],
			Args:         entry.Command,
			Cwd:          entry.Cwd,
			RestartDelay: delay,
			MaxRestarts:  maxRestarts,
			RelayBuffer:  cfg.RelayBuffer,
		})
	}

	return specs, nil
}
