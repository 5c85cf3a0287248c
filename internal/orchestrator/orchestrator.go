// Package orchestrator wires configuration, the registry, metrics, and the
// dashboard into a running supervision session.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-overlord/internal/config"
	"github.com/randomizedcoder/go-overlord/internal/logging"
	"github.com/randomizedcoder/go-overlord/internal/metrics"
	"github.com/randomizedcoder/go-overlord/internal/preflight"
	"github.com/randomizedcoder/go-overlord/internal/registry"
	"github.com/randomizedcoder/go-overlord/internal/stats"
	"github.com/randomizedcoder/go-overlord/internal/supervisor"
	"github.com/randomizedcoder/go-overlord/internal/timeseries"
	"github.com/randomizedcoder/go-overlord/internal/tui"
)

// sampleInterval is how often registry and relay gauges are refreshed.
const sampleInterval = 1 * time.Second

// Orchestrator coordinates the supervision session.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	specs    []supervisor.Spec
	registry *registry.Registry

	collector     *metrics.Collector
	metricsServer *metrics.Server
	uptimes       *stats.UptimeTracker
	lineRate      *timeseries.RateTracker

	startTime time.Time
}

// New creates an Orchestrator from validated configuration. Version is
// stamped into the info metric.
func New(cfg *config.Config, logger *slog.Logger, version string) (*Orchestrator, error) {
	specs, err := buildSpecs(cfg)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		config:        cfg,
		logger:        logger,
		specs:         specs,
		collector:     metrics.NewCollector(metrics.CollectorConfig{Version: version}),
		metricsServer: metrics.NewServer(cfg.MetricsAddr, logger),
		uptimes:       stats.NewUptimeTracker(),
		lineRate:      timeseries.NewRateTracker(),
	}

	o.registry = registry.New(registry.Config{
		Logger:    logger,
		StopGrace: cfg.StopGrace,
		Callbacks: supervisor.Callbacks{
			OnStateChange: o.onStateChange,
			OnStart:       o.onStart,
			OnExit:        o.onExit,
			OnRestart:     o.onRestart,
		},
	})

	return o, nil
}

// buildSpecs converts configuration into process specs: either the YAML
// procfile or the single positional command.
func buildSpecs(cfg *config.Config) ([]supervisor.Spec, error) {
	if cfg.Procfile != "" {
		return config.LoadProcfile(cfg.Procfile, cfg)
	}

	if len(cfg.Argv) == 0 {
		return nil, nil
	}

	maxRestarts := cfg.MaxRestarts
	if maxRestarts == 0 {
		maxRestarts = supervisor.DefaultMaxRestarts
	}
	return []supervisor.Spec{{
		Name:         cfg.Argv[0],
		Path:         cfg.Argv[0],
		Args:         cfg.Argv,
		Cwd:          cfg.Cwd,
		RestartDelay: cfg.RestartDelay,
		MaxRestarts:  maxRestarts,
		RelayBuffer:  cfg.RelayBuffer,
	}}, nil
}

// Registry returns the underlying registry actor.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.collector
}

// Preflight runs the preflight checks for the configured specs.
func (o *Orchestrator) Preflight() *preflight.Result {
	return preflight.RunAll(o.specs)
}

// Run executes the supervision session. It blocks until the duration
// elapses, a signal arrives, or the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := o.Preflight()
		preflight.PrintResults(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	// Start metrics server
	if err := o.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// Define and spawn all records, consuming their relays as they go
	o.logger.Info("spawning", "processes", len(o.specs))
	for _, spec := range o.specs {
		rec := supervisor.Define(spec)
		o.consumeRelay(ctx, rec)
		if err := o.registry.Spawn(rec); err != nil {
			return fmt.Errorf("spawn %s: %w", spec.Name, err)
		}
	}
	o.metricsServer.SetReady(true)

	// Periodic gauge sampling
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		o.sampleLoop(ctx)
	}()

	// Setup duration timer if configured
	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		durationTimer = time.After(o.config.Duration)
	}

	// Optional live dashboard
	var program *tea.Program
	tuiDone := make(chan struct{})
	if o.config.TUIEnabled {
		program = tea.NewProgram(tui.New(tui.Config{
			MetricsAddr: o.config.MetricsAddr,
			Source:      o.registry,
			RelaySource: o.lineRate,
		}), tea.WithAltScreen())
		go func() {
			defer close(tuiDone)
			if _, err := program.Run(); err != nil {
				o.logger.Warn("tui_error", "error", err)
			}
			// TUI quit (q / ctrl+c) ends the session
			cancel()
		}()
	} else {
		close(tuiDone)
	}

	// Wait for completion signal
	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-durationTimer:
		o.logger.Info("duration_elapsed", "duration", o.config.Duration.String())
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	}

	if program != nil {
		tui.SendQuit(program)
	}

	// Cancel context to stop all supervisors
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := o.registry.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("shutdown_incomplete", "error", err)
	}

	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	<-samplerDone
	<-tuiDone

	// Drain the registry's command loop before reading final state
	o.registry.Quit()

	// Print exit summary
	fmt.Println(o.buildExitSummary())

	return nil
}

// consumeRelay forwards a record's relayed output lines into the structured
// log and the line-rate tracker. The relay channels are stable across
// restarts, so one consumer per stream covers the record's whole life.
func (o *Orchestrator) consumeRelay(ctx context.Context, rec *supervisor.Record) {
	stdoutHandler := logging.NewOutputHandler(rec.Name(), "stdout", o.logger, o.config.Verbose)
	stderrHandler := logging.NewOutputHandler(rec.Name(), "stderr", o.logger, o.config.Verbose)

	r := rec.Relay()

	go func() {
		for {
			select {
			case line := <-r.Stdout():
				stdoutHandler.HandleLine(line)
				o.lineRate.AddLines(1)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		for {
			select {
			case line := <-r.Stderr():
				stderrHandler.HandleLine(line)
				o.lineRate.AddLines(1)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sampleLoop periodically refreshes the registry and relay gauges.
func (o *Orchestrator) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.sample()
		case <-ctx.Done():
			return
		}
	}
}

// sample takes one gauge refresh pass.
func (o *Orchestrator) sample() {
	o.collector.ObserveRegistry(o.registry.Snapshots())

	var stdoutRead, stdoutDropped, stderrRead, stderrDropped int64
	for _, rec := range o.registry.Records() {
		so, se := rec.Relay().Stats()
		stdoutRead += so.LinesRead
		stdoutDropped += so.LinesDropped
		stderrRead += se.LinesRead
		stderrDropped += se.LinesDropped
	}
	o.collector.SetRelayTotals(stdoutRead, stdoutDropped, stderrRead, stderrDropped)

	o.lineRate.RecordSample()
}

// =============================================================================
// Supervisor callbacks
// =============================================================================

func (o *Orchestrator) recordLogger(rec *supervisor.Record) *slog.Logger {
	return logging.ForRecord(o.logger, rec.Name(), rec.ID().String())
}

func (o *Orchestrator) onStateChange(rec *supervisor.Record, oldState, newState supervisor.State) {
	o.recordLogger(rec).Debug("process_state_change",
		"old_state", oldState.String(),
		"new_state", newState.String(),
	)
	if newState == supervisor.StateFailed {
		o.collector.ProcessFailed()
	}
}

func (o *Orchestrator) onStart(rec *supervisor.Record, pid int) {
	o.recordLogger(rec).Info("process_started", "pid", pid)
	o.collector.ProcessStarted()
}

func (o *Orchestrator) onExit(rec *supervisor.Record, exitStatus *int, uptime time.Duration) {
	if exitStatus != nil {
		o.recordLogger(rec).Info("process_exited",
			"exit_status", *exitStatus,
			"uptime", uptime.String(),
		)
	} else {
		o.recordLogger(rec).Info("process_exited",
			"exit_status", "signal",
			"uptime", uptime.String(),
		)
	}
	o.collector.RecordExit(exitStatus, uptime)
	o.uptimes.RecordRun(uptime)
}

func (o *Orchestrator) onRestart(rec *supervisor.Record, attempt int, delay time.Duration) {
	o.recordLogger(rec).Info("process_restarting",
		"attempt", attempt,
		"delay", delay.String(),
	)
	o.collector.ProcessRestarted()
}

// =============================================================================
// Exit summary
// =============================================================================

// buildExitSummary assembles the formatted end-of-run report.
func (o *Orchestrator) buildExitSummary() string {
	summary := o.collector.GenerateSummary()
	snaps := o.registry.Snapshots()

	records := make([]stats.RecordLine, 0, len(snaps))
	for _, snap := range snaps {
		records = append(records, stats.RecordLine{
			Name:       snap.Name,
			State:      snap.State.String(),
			Restarts:   snap.RestartCount,
			ExitStatus: snap.ExitStatus,
		})
	}

	var stdoutRead, stderrRead, dropped int64
	degraded := false
	for _, rec := range o.registry.Records() {
		so, se := rec.Relay().Stats()
		stdoutRead += so.LinesRead
		stderrRead += se.LinesRead
		dropped += so.LinesDropped + se.LinesDropped
		if rec.Relay().IsDegraded() {
			degraded = true
		}
	}

	return stats.FormatExitSummary(stats.SummaryConfig{
		Duration:      time.Since(o.startTime),
		MetricsAddr:   o.config.MetricsAddr,
		TotalStarts:   summary.TotalStarts,
		TotalRestarts: summary.TotalRestarts,
		TotalFailures: summary.TotalFailures,
		ExitCodes:     summary.ExitCodes,
		SignalExits:   summary.SignalExits,
		UptimeP50:     o.uptimes.Quantile(0.50),
		UptimeP95:     o.uptimes.Quantile(0.95),
		UptimeP99:     o.uptimes.Quantile(0.99),
		StdoutLines:   stdoutRead,
		StderrLines:   stderrRead,
		DroppedLines:  dropped,
		RelayDegraded: degraded,
		Records:       records,
	})
}
