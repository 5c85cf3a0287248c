package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// render renders the dashboard.
func (m Model) render() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Process table
	sections = append(sections, m.renderProcessTable())

	// Relay section (only if we have rate data)
	if m.rateStats.TotalLines > 0 {
		sections = append(sections, m.renderRelayStats())
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-overlord │ Running: %d/%d │ Failed: %d │ Elapsed: %s ",
		m.RunningCount(),
		len(m.snapshots),
		m.FailedCount(),
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Process Table
// =============================================================================

func (m Model) renderProcessTable() string {
	header := tableHeaderStyle.Render(
		fmt.Sprintf("%-16s %-12s %8s %8s %-14s %10s", "NAME", "STATE", "PID", "EXIT", "RESTARTS", "UPTIME"))

	rows := []string{header}
	for _, s := range m.snapshots {
		rows = append(rows, renderProcessRow(s))
	}

	if len(m.snapshots) == 0 {
		rows = append(rows, dimStyle.Render("  (no processes)"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Processes")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func renderProcessRow(s supervisor.Snapshot) string {
	pid := "-"
	if s.PID != 0 {
		pid = fmt.Sprintf("%d", s.PID)
	}

	exit := "-"
	if s.ExitStatus != nil || s.State == supervisor.StateRestarting || s.State == supervisor.StateFailed {
		exit = formatExitStatus(s.ExitStatus)
	}

	uptime := "-"
	if s.State == supervisor.StateRunning {
		uptime = formatDuration(s.Uptime)
	}

	name := s.Name
	if runes := []rune(name); len(runes) > 16 {
		name = string(runes[:15]) + "…"
	}

	return fmt.Sprintf("%-16s %s %8s %8s %s %10s",
		name,
		padStyled(GetStateLabel(s.State), 12),
		pid,
		exit,
		RenderBudgetBar(s.RestartCount, s.MaxRestarts, 8),
		uptime,
	)
}

// padStyled pads a styled string to the given visible width.
func padStyled(s string, width int) string {
	visible := lipgloss.Width(s)
	for visible < width {
		s += " "
		visible++
	}
	return s
}

// =============================================================================
// Relay Statistics
// =============================================================================

func (m Model) renderRelayStats() string {
	r := m.rateStats

	rows := []string{
		RenderKeyValue("Total lines", formatNumber(r.TotalLines)),
		RenderKeyValue("Rate (1s)", formatRate(r.Avg1s)),
		RenderKeyValue("Rate (60s)", formatRate(r.Avg60s)),
		RenderKeyValue("Rate (overall)", formatRate(r.AvgOverall)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Output Relay")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	metrics := ""
	if m.metricsAddr != "" {
		metrics = fmt.Sprintf(" │ metrics: http://%s/metrics", m.metricsAddr)
	}
	return footerStyle.Render(fmt.Sprintf(" q: quit │ r: refresh%s ", metrics))
}
