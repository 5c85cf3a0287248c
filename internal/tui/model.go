package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
	"github.com/randomizedcoder/go-overlord/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	metricsAddr string

	// Current state
	snapshots  []supervisor.Snapshot
	rateStats  timeseries.RateStats
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	// Snapshot source (for fetching updates)
	source SnapshotSource

	// Relay stats source (optional)
	relaySource RelaySource

	// Quit flag
	quitting bool
}

// SnapshotSource provides the current state of all supervised processes.
type SnapshotSource interface {
	Snapshots() []supervisor.Snapshot
}

// RelaySource provides relay line-rate statistics.
type RelaySource interface {
	GetStats() timeseries.RateStats
}

// Config holds TUI configuration.
type Config struct {
	MetricsAddr string
	Source      SnapshotSource
	RelaySource RelaySource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		metricsAddr: cfg.MetricsAddr,
		source:      cfg.Source,
		relaySource: cfg.RelaySource,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		// Fetch latest snapshots
		if m.source != nil {
			m.snapshots = m.source.Snapshots()
		}
		if m.relaySource != nil {
			m.rateStats = m.relaySource.GetStats()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.render()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since supervision started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// RunningCount returns the number of processes currently running.
func (m Model) RunningCount() int {
	n := 0
	for _, s := range m.snapshots {
		if s.State == supervisor.StateRunning {
			n++
		}
	}
	return n
}

// FailedCount returns the number of processes in the terminal failed state.
func (m Model) FailedCount() int {
	n := 0
	for _, s := range m.snapshots {
		if s.State == supervisor.StateFailed {
			n++
		}
	}
	return n
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatRate formats a rate with appropriate precision.
func formatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}

// formatExitStatus renders a recorded exit status, nil means killed by signal.
func formatExitStatus(status *int) string {
	if status == nil {
		return "signal"
	}
	return fmt.Sprintf("%d", *status)
}
