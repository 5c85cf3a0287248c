// Package registry provides the coordination actor owning the ordered set of
// supervised process records.
//
// One dedicated goroutine owns all list mutation and processes commands
// strictly in submission order. Callers talk to it only through message
// passing; the record list itself may be read concurrently through its own
// guard, which is distinct from any individual record's guard.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-overlord/internal/supervisor"
)

// ErrClosed is returned by Spawn after Quit has consumed the registry.
var ErrClosed = errors.New("registry closed")

// mailboxSize is the command queue capacity. The queue is effectively
// unbounded for practical spawn bursts; Spawn never waits for the actor to
// process a command, only for queue space.
const mailboxSize = 128

type commandKind int

const (
	cmdSpawn commandKind = iota
	cmdQuit
)

type command struct {
	kind commandKind
	rec  *supervisor.Record
}

// Config holds configuration for creating a Registry.
type Config struct {
	Logger    *slog.Logger
	Callbacks supervisor.Callbacks

	// StopGrace is passed through to each supervisor: how long a child gets
	// after SIGTERM during Shutdown before it is killed.
	StopGrace time.Duration
}

// Registry is the actor handle. Commands submitted through Spawn and Quit
// are processed in FIFO order by a single coordination goroutine.
type Registry struct {
	logger    *slog.Logger
	callbacks supervisor.Callbacks
	stopGrace time.Duration

	commands chan command
	done     chan struct{}
	closed   atomic.Bool

	// List guard. Appends happen only inside the actor loop; reads may come
	// from anywhere.
	mu      sync.RWMutex
	records []*supervisor.Record

	// Supervisor lifecycles, owned by the actor loop.
	procCtx    context.Context
	cancelProc context.CancelFunc
	cancels    map[uuid.UUID]context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a Registry and starts its command-processing goroutine.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		logger:     logger,
		callbacks:  cfg.Callbacks,
		stopGrace:  cfg.StopGrace,
		commands:   make(chan command, mailboxSize),
		done:       make(chan struct{}),
		procCtx:    ctx,
		cancelProc: cancel,
		cancels:    make(map[uuid.UUID]context.CancelFunc),
	}

	go r.loop()

	return r
}

// loop is the actor body: one goroutine, strict FIFO command processing.
func (r *Registry) loop() {
	defer close(r.done)

	for cmd := range r.commands {
		switch cmd.kind {
		case cmdSpawn:
			r.handleSpawn(cmd.rec)
		case cmdQuit:
			r.logger.Debug("registry_terminating")
			return
		}
	}
}

// handleSpawn appends the record and launches its supervisor. The actor
// never touches a record's lifecycle fields itself - that stays the
// supervisor's exclusive responsibility.
func (r *Registry) handleSpawn(rec *supervisor.Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	r.logger.Debug("record_registered",
		"process", rec.Name(),
		"id", rec.ID(),
	)

	sup := supervisor.New(supervisor.Config{
		Record:    rec,
		Logger:    r.logger,
		Callbacks: r.callbacks,
		StopGrace: r.stopGrace,
	})

	ctx, cancel := context.WithCancel(r.procCtx)
	r.mu.Lock()
	r.cancels[rec.ID()] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		// The supervisor reports its outcome through the record's state;
		// the returned error is the same information.
		_ = sup.Run(ctx)
	}()
}

// Spawn enqueues a spawn command for the record and returns immediately.
// Fire-and-forget: there is no acknowledgment, and a caller that inspects
// the registry right after Spawn may not see the record yet.
func (r *Registry) Spawn(rec *supervisor.Record) error {
	if r.closed.Load() {
		return ErrClosed
	}
	r.commands <- command{kind: cmdSpawn, rec: rec}
	return nil
}

// Quit enqueues a quit command and blocks until the actor has drained all
// commands ahead of it and terminated its loop. The handle is unusable
// afterward. Quit stops only the registry's own command loop - running
// supervisors and their children are untouched; use Shutdown for those.
func (r *Registry) Quit() {
	if !r.closed.CompareAndSwap(false, true) {
		<-r.done
		return
	}
	r.commands <- command{kind: cmdQuit}
	<-r.done
}

// Shutdown stops every supervisor: each child gets SIGTERM (then SIGKILL
// after the stop grace) and each supervision loop is waited on. Returns
// ctx.Err() if the loops do not finish in time.
//
// Shutdown does not stop the command loop; callers typically Quit first and
// then Shutdown, or the reverse - the two are independent.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancelProc()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		r.logger.Debug("registry_shutdown_complete")
		return nil
	case <-ctx.Done():
		r.logger.Warn("registry_shutdown_timeout")
		return ctx.Err()
	}
}

// StopRecord cancels one record's supervision loop, leaving the rest of the
// registry running. Returns false if the record is unknown.
func (r *Registry) StopRecord(id uuid.UUID) bool {
	r.mu.RLock()
	cancel, ok := r.cancels[id]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Records returns the current record handles in spawn order.
func (r *Registry) Records() []*supervisor.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*supervisor.Record, len(r.records))
	copy(out, r.records)
	return out
}

// Snapshots returns a consistent status snapshot of every record, in spawn
// order.
func (r *Registry) Snapshots() []supervisor.Snapshot {
	records := r.Records()
	snaps := make([]supervisor.Snapshot, 0, len(records))
	for _, rec := range records {
		snaps = append(snaps, rec.Snapshot())
	}
	return snaps
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
