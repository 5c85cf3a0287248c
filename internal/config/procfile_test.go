package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleProcfile = `
processes:
  - name: web
    command: ["python3", "-m", "http.server", "8080"]
    cwd: /tmp
    restart_delay: 500ms
    max_restarts: 3
  - name: worker
    command: ["sleep", "60"]
`

func TestParseProcfile(t *testing.T) {
	cfg := DefaultConfig()

	specs, err := ParseProcfile([]byte(sampleProcfile), cfg)
	if err != nil {
		t.Fatalf("ParseProcfile: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("len(specs) = %d, want 2", len(specs))
	}

	web := specs[0]
	if web.Name != "web" {
		t.Errorf("Name = %q, want web", web.Name)
	}
	if web.Path != "python3" {
		t.Errorf("Path = %q, want python3", web.Path)
	}
	if len(web.Args) != 4 || web.Args[0] != "python3" {
		t.Errorf("Args = %v", web.Args)
	}
	if web.Cwd != "/tmp" {
		t.Errorf("Cwd = %q", web.Cwd)
	}
	if web.RestartDelay != 500*time.Millisecond {
		t.Errorf("RestartDelay = %v, want 500ms", web.RestartDelay)
	}
	if web.MaxRestarts != 3 {
		t.Errorf("MaxRestarts = %d, want 3", web.MaxRestarts)
	}

	// worker inherits the config defaults
	worker := specs[1]
	if worker.RestartDelay != cfg.RestartDelay {
		t.Errorf("worker RestartDelay = %v, want %v", worker.RestartDelay, cfg.RestartDelay)
	}
	if worker.MaxRestarts != cfg.MaxRestarts {
		t.Errorf("worker MaxRestarts = %d, want %d", worker.MaxRestarts, cfg.MaxRestarts)
	}
}

func TestParseProcfileNameDefaultsToCommand(t *testing.T) {
	specs, err := ParseProcfile([]byte(`
processes:
  - command: ["sleep", "1"]
`), DefaultConfig())
	if err != nil {
		t.Fatalf("ParseProcfile: %v", err)
	}
	if specs[0].Name != "sleep" {
		t.Errorf("Name = %q, want sleep", specs[0].Name)
	}
}

func TestParseProcfileExplicitZeroBudget(t *testing.T) {
	specs, err := ParseProcfile([]byte(`
processes:
  - name: once
    command: ["false"]
    max_restarts: 0
`), DefaultConfig())
	if err != nil {
		t.Fatalf("ParseProcfile: %v", err)
	}
	// Explicit zero means no restarts, not "use default"
	if specs[0].MaxRestarts != 0 {
		t.Errorf("MaxRestarts = %d, want 0", specs[0].MaxRestarts)
	}
}

func TestParseProcfileErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", `processes: []`, "no processes"},
		{"missing command", `
processes:
  - name: x
`, "command is required"},
		{"duplicate names", `
processes:
  - name: a
    command: ["sleep", "1"]
  - name: a
    command: ["sleep", "2"]
`, "duplicate"},
		{"bad delay", `
processes:
  - name: x
    command: ["sleep", "1"]
    restart_delay: "nope"
`, "restart_delay"},
		{"negative budget", `
processes:
  - name: x
    command: ["sleep", "1"]
    max_restarts: -2
`, "max_restarts"},
		{"invalid yaml", `{{{`, "parsing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProcfile([]byte(tt.yaml), DefaultConfig())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadProcfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procs.yaml")
	if err := os.WriteFile(path, []byte(sampleProcfile), 0o644); err != nil {
		t.Fatal(err)
	}

	specs, err := LoadProcfile(path, DefaultConfig())
	if err != nil {
		t.Fatalf("LoadProcfile: %v", err)
	}
	if len(specs) != 2 {
		t.Errorf("len(specs) = %d, want 2", len(specs))
	}
}

func TestLoadProcfileMissing(t *testing.T) {
	_, err := LoadProcfile("/nonexistent/procs.yaml", DefaultConfig())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
