// Package relay wires a supervised process's stdio pipes to line channels.
//
// Each supervised process owns one Relay for its whole lifetime: the channels
// stay stable across restarts while the underlying pipes are recreated per
// run. Output relaying is lossy by design - if a consumer cannot keep up,
// lines are dropped rather than blocking the child's stdout/stderr.
package relay

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferSize is the default per-stream channel capacity in lines.
	DefaultBufferSize = 1000

	// maxLineSize bounds a single scanned line.
	maxLineSize = 64 * 1024

	// defaultDropThreshold is the drop fraction above which the relay is degraded.
	defaultDropThreshold = 0.01
)

// StreamStats holds per-stream relay counters.
type StreamStats struct {
	LinesRead    int64
	LinesDropped int64
}

// Relay owns the inbound stdin channel and the outbound stdout/stderr line
// channels for one supervised process.
type Relay struct {
	stdin  chan string
	stdout chan string
	stderr chan string

	stdoutRead    atomic.Int64
	stdoutDropped atomic.Int64
	stderrRead    atomic.Int64
	stderrDropped atomic.Int64
	stdinWritten  atomic.Int64

	dropThreshold float64
}

// New creates a Relay with the given per-stream channel capacity.
// A non-positive bufferSize falls back to DefaultBufferSize.
func New(bufferSize int) *Relay {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Relay{
		stdin:         make(chan string, bufferSize),
		stdout:        make(chan string, bufferSize),
		stderr:        make(chan string, bufferSize),
		dropThreshold: defaultDropThreshold,
	}
}

// Stdin returns the inbound channel. Strings sent here are written verbatim
// to the child's standard input - no newline is appended.
func (r *Relay) Stdin() chan<- string {
	return r.stdin
}

// Stdout returns the channel delivering whole decoded lines from the child's
// standard output. Consumers may block-receive or poll with select/default.
func (r *Relay) Stdout() <-chan string {
	return r.stdout
}

// Stderr returns the channel delivering lines from the child's standard error.
func (r *Relay) Stderr() <-chan string {
	return r.stderr
}

// PumpStdout reads lines from src until EOF, relaying them to the stdout
// channel. Runs in its own goroutine per process run; blocks until the pipe
// closes.
func (r *Relay) PumpStdout(src io.Reader) {
	r.pump(src, r.stdout, &r.stdoutRead, &r.stdoutDropped)
}

// PumpStderr reads lines from src until EOF, relaying them to the stderr
// channel.
func (r *Relay) PumpStderr(src io.Reader) {
	r.pump(src, r.stderr, &r.stderrRead, &r.stderrDropped)
}

func (r *Relay) pump(src io.Reader, out chan string, read, dropped *atomic.Int64) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		read.Add(1)

		// Non-blocking send - drop if the consumer is behind
		select {
		case out <- line:
		default:
			dropped.Add(1)
		}
	}
}

// PumpStdin drains the stdin channel into dst until ctx is cancelled.
// Queued input is written verbatim. Write errors end the pump; the child
// has usually exited and the next run gets a fresh pipe.
func (r *Relay) PumpStdin(ctx context.Context, dst io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case input := <-r.stdin:
			if _, err := io.WriteString(dst, input); err != nil {
				return
			}
			r.stdinWritten.Add(1)
		}
	}
}

// Stats returns the stdout and stderr relay counters.
func (r *Relay) Stats() (stdout, stderr StreamStats) {
	stdout = StreamStats{
		LinesRead:    r.stdoutRead.Load(),
		LinesDropped: r.stdoutDropped.Load(),
	}
	stderr = StreamStats{
		LinesRead:    r.stderrRead.Load(),
		LinesDropped: r.stderrDropped.Load(),
	}
	return stdout, stderr
}

// StdinWritten returns the number of queued inputs flushed to the child.
func (r *Relay) StdinWritten() int64 {
	return r.stdinWritten.Load()
}

// DropRate returns the combined output drop rate as a fraction (0.0 to 1.0).
func (r *Relay) DropRate() float64 {
	read := r.stdoutRead.Load() + r.stderrRead.Load()
	if read == 0 {
		return 0
	}
	dropped := r.stdoutDropped.Load() + r.stderrDropped.Load()
	return float64(dropped) / float64(read)
}

// IsDegraded returns true if the drop rate exceeds the configured threshold.
// When degraded, relayed output is incomplete and consumers should treat it
// with caution.
func (r *Relay) IsDegraded() bool {
	return r.DropRate() > r.dropThreshold
}

// Drain discards everything currently queued on the outbound channels.
// Useful for consumers that only care about fresh output after a restart.
func (r *Relay) Drain() {
	for {
		select {
		case <-r.stdout:
		case <-r.stderr:
		default:
			return
		}
	}
}

// PumpGroup tracks the per-run pump goroutines so the supervisor can wait
// for the pipes to be fully relayed after the process exits.
type PumpGroup struct {
	wg sync.WaitGroup
}

// Go runs fn in a tracked goroutine.
func (g *PumpGroup) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Wait blocks until all tracked goroutines finish or ctx is done.
// Returns true if the group finished, false on timeout/cancel.
func (g *PumpGroup) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
