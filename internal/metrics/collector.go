// Package metrics provides Prometheus metrics for go-overlord.
//
// All metrics are aggregate: per-process detail is available through the
// registry snapshots and the TUI, not through high-cardinality labels.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
)

var (
	overlordInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overlord_info",
			Help: "Information about the supervisor (value always 1)",
		},
		[]string{"version"},
	)

	overlordProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overlord_processes",
			Help: "Number of records held by the registry",
		},
	)

	overlordProcessStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overlord_process_states",
			Help: "Number of records currently in each lifecycle state",
		},
		[]string{"state"},
	)

	overlordStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overlord_process_starts_total",
			Help: "Total process spawn events, restarts included",
		},
	)

	overlordRestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overlord_process_restarts_total",
			Help: "Total restart attempts",
		},
	)

	overlordExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overlord_process_exits_total",
			Help: "Total process exits by category",
		},
		[]string{"category"}, // success, error, signal
	)

	overlordFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "overlord_process_failures_total",
			Help: "Total records that reached the terminal failed state",
		},
	)

	overlordUptimeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "overlord_process_uptime_seconds",
			Help:    "Per-run process uptime",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	overlordRelayLines = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overlord_relay_lines",
			Help: "Cumulative output lines relayed, by stream",
		},
		[]string{"stream"}, // stdout, stderr
	)

	overlordRelayDroppedLines = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overlord_relay_dropped_lines",
			Help: "Cumulative output lines dropped by slow consumers, by stream",
		},
		[]string{"stream"},
	)
)

// Collector manages all Prometheus metrics for the supervisor.
type Collector struct {
	startTime time.Time

	// For summary generation
	mu            sync.Mutex
	totalStarts   int64
	totalRestarts int64
	totalFailures int64
	exitCodes     map[int]int64
	signalExits   int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
}

// NewCollector creates a new metrics collector registered with the default
// registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		overlordInfo,
		overlordProcesses,
		overlordProcessStates,
		overlordStartsTotal,
		overlordRestartsTotal,
		overlordExitsTotal,
		overlordFailuresTotal,
		overlordUptimeSeconds,
		overlordRelayLines,
		overlordRelayDroppedLines,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	overlordInfo.WithLabelValues(version).Set(1)

	// Zero-initialize so every state series exists from the first scrape.
	for _, state := range supervisor.AllStates {
		overlordProcessStates.WithLabelValues(state.String()).Set(0)
	}

	return c
}

// ProcessStarted records a spawn event.
func (c *Collector) ProcessStarted() {
	overlordStartsTotal.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.mu.Unlock()
}

// ProcessRestarted records a restart attempt.
func (c *Collector) ProcessRestarted() {
	overlordRestartsTotal.Inc()

	c.mu.Lock()
	c.totalRestarts++
	c.mu.Unlock()
}

// ProcessFailed records a record reaching the terminal failed state.
func (c *Collector) ProcessFailed() {
	overlordFailuresTotal.Inc()

	c.mu.Lock()
	c.totalFailures++
	c.mu.Unlock()
}

// RecordExit records a process exit. A nil exitStatus means the run was
// terminated by a signal.
func (c *Collector) RecordExit(exitStatus *int, uptime time.Duration) {
	category := "error"
	switch {
	case exitStatus == nil:
		category = "signal"
	case *exitStatus == 0:
		category = "success"
	}
	overlordExitsTotal.WithLabelValues(category).Inc()
	overlordUptimeSeconds.Observe(uptime.Seconds())

	c.mu.Lock()
	if exitStatus == nil {
		c.signalExits++
	} else {
		c.exitCodes[*exitStatus]++
	}
	c.mu.Unlock()
}

// ObserveRegistry refreshes the gauges derived from registry snapshots.
// Called periodically by the sampling loop.
func (c *Collector) ObserveRegistry(snaps []supervisor.Snapshot) {
	overlordProcesses.Set(float64(len(snaps)))

	counts := make(map[supervisor.State]int)
	for _, snap := range snaps {
		counts[snap.State]++
	}
	for _, state := range supervisor.AllStates {
		overlordProcessStates.WithLabelValues(state.String()).Set(float64(counts[state]))
	}
}

// SetRelayTotals refreshes the relay line gauges from cumulative counters.
func (c *Collector) SetRelayTotals(stdoutRead, stdoutDropped, stderrRead, stderrDropped int64) {
	overlordRelayLines.WithLabelValues("stdout").Set(float64(stdoutRead))
	overlordRelayLines.WithLabelValues("stderr").Set(float64(stderrRead))
	overlordRelayDroppedLines.WithLabelValues("stdout").Set(float64(stdoutDropped))
	overlordRelayDroppedLines.WithLabelValues("stderr").Set(float64(stderrDropped))
}

// Summary holds aggregate counters for the exit summary.
type Summary struct {
	Duration      time.Duration
	TotalStarts   int64
	TotalRestarts int64
	TotalFailures int64
	ExitCodes     map[int]int64
	SignalExits   int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:      time.Since(c.startTime),
		TotalStarts:   c.totalStarts,
		TotalRestarts: c.totalRestarts,
		TotalFailures: c.totalFailures,
		ExitCodes:     make(map[int]int64, len(c.exitCodes)),
		SignalExits:   c.signalExits,
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	return s
}

// TotalStarts returns the total number of spawn events.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}

// TotalRestarts returns the total number of restart attempts.
func (c *Collector) TotalRestarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalRestarts
}
