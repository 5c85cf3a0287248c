// This file implements the exit summary formatter which displays aggregate
// supervision statistics at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RecordLine is one process's row in the exit summary.
type RecordLine struct {
	Name       string
	State      string
	Restarts   int
	ExitStatus *int
}

// SummaryConfig holds configuration and counters for summary formatting.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// TotalStarts is the total number of process spawns, restarts included
	TotalStarts int64

	// TotalRestarts is the total number of restart attempts
	TotalRestarts int64

	// TotalFailures is the number of records that failed terminally
	TotalFailures int64

	// ExitCodes maps observed exit codes to counts
	ExitCodes map[int]int64

	// SignalExits counts runs terminated by a signal (no exit code)
	SignalExits int64

	// UptimeP50, UptimeP95, UptimeP99 are per-run uptime percentiles
	UptimeP50 time.Duration
	UptimeP95 time.Duration
	UptimeP99 time.Duration

	// Relay line accounting
	StdoutLines  int64
	StderrLines  int64
	DroppedLines int64

	// RelayDegraded is true if any relay dropped more than its threshold
	RelayDegraded bool

	// Records lists per-process rows, in spawn order
	Records []RecordLine
}

// FormatExitSummary formats aggregated supervision stats for display at exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                           go-overlord Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Relay degradation warning (lossy-by-design feature)
	if cfg.RelayDegraded {
		b.WriteString("⚠️  OUTPUT DEGRADED: Consumers could not keep up with process output\n")
		fmt.Fprintf(&b, "    Lines dropped: %s\n\n", FormatNumber(cfg.DroppedLines))
	}

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Processes:              %d\n", len(cfg.Records))
	fmt.Fprintf(&b, "Total Spawns:           %s\n", FormatNumber(cfg.TotalStarts))
	fmt.Fprintf(&b, "Total Restarts:         %s\n", FormatNumber(cfg.TotalRestarts))
	fmt.Fprintf(&b, "Failed Terminally:      %d\n\n", cfg.TotalFailures)

	if len(cfg.Records) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Processes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-24s %-12s %10s %12s\n", "Name", "State", "Restarts", "Last Exit")
		b.WriteString("  " + strings.Repeat("─", 62) + "\n")
		for _, rec := range cfg.Records {
			exit := "-"
			if rec.ExitStatus != nil {
				exit = fmt.Sprintf("%d", *rec.ExitStatus)
			}
			fmt.Fprintf(&b, "  %-24s %-12s %10d %12s\n", rec.Name, rec.State, rec.Restarts, exit)
		}
		b.WriteString("\n")
	}

	if len(cfg.ExitCodes) > 0 || cfg.SignalExits > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                 Exit Codes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  exit %-4d %s\n", code, FormatNumber(cfg.ExitCodes[code]))
		}
		if cfg.SignalExits > 0 {
			fmt.Fprintf(&b, "  signal    %s\n", FormatNumber(cfg.SignalExits))
		}
		b.WriteString("\n")
	}

	if cfg.TotalStarts > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Run Uptime\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
		fmt.Fprintf(&b, "  p50: %-12s p95: %-12s p99: %s\n\n",
			cfg.UptimeP50.Round(time.Millisecond),
			cfg.UptimeP95.Round(time.Millisecond),
			cfg.UptimeP99.Round(time.Millisecond),
		)
	}

	fmt.Fprintf(&b, "Relayed Output:         %s stdout / %s stderr lines\n",
		FormatNumber(cfg.StdoutLines),
		FormatNumber(cfg.StderrLines),
	)

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was:   http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a count with K/M suffixes.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}
