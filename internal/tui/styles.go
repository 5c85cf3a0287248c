// Package tui provides a live terminal dashboard for process supervision.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays real-time state including:
// - Per-process state, PID, and restart budget
// - Relayed line counts and drop rates
// - Uptime and exit history
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	boldStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder).
				MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)
)

// =============================================================================
// State Styling
// =============================================================================

// GetStateStyle returns the style for a process state.
func GetStateStyle(state supervisor.State) lipgloss.Style {
	switch state {
	case supervisor.StateRunning:
		return statusOK
	case supervisor.StateStarting, supervisor.StateRestarting:
		return statusWarning
	case supervisor.StateFailed:
		return statusError
	default:
		return mutedStyle
	}
}

// GetStateLabel returns a styled state name with an indicator dot.
func GetStateLabel(state supervisor.State) string {
	return GetStateStyle(state).Render("● " + state.String())
}

// =============================================================================
// Relay Status Indicator
// =============================================================================

// RelayStatus represents the health of the line relay.
type RelayStatus int

const (
	RelayStatusOK RelayStatus = iota
	RelayStatusDegraded
	RelayStatusSeverelyDegraded
)

// GetRelayStatus returns the status based on drop rate.
func GetRelayStatus(dropRate float64) RelayStatus {
	switch {
	case dropRate > 0.10: // >10% dropped
		return RelayStatusSeverelyDegraded
	case dropRate > 0.0: // Any drops
		return RelayStatusDegraded
	default:
		return RelayStatusOK
	}
}

// GetRelayLabel returns a styled label based on drop rate.
func GetRelayLabel(dropRate float64) string {
	switch GetRelayStatus(dropRate) {
	case RelayStatusSeverelyDegraded:
		return statusError.Render("● Relay (severely degraded)")
	case RelayStatusDegraded:
		return statusWarning.Render("● Relay (degraded)")
	default:
		return statusOK.Render("● Relay")
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderBudgetBar renders restart budget consumption as a bar.
func RenderBudgetBar(used, max int, width int) string {
	if width < 5 {
		width = 5
	}
	if max <= 0 {
		return dimStyle.Render(repeatChar('░', width)) + fmt.Sprintf(" %d/%d", used, max)
	}

	filled := used * width / max
	if filled > width {
		filled = width
	}

	style := valueGoodStyle
	if used >= max {
		style = valueBadStyle
	} else if used*2 >= max {
		style = valueWarnStyle
	}

	bar := style.Render(repeatChar('█', filled)) +
		dimStyle.Render(repeatChar('░', width-filled))

	return bar + fmt.Sprintf(" %d/%d", used, max)
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
