// Package stats provides run statistics for supervised processes.
//
// Uptime quantiles use a t-digest so the memory cost stays constant no
// matter how many restarts a churny process accumulates.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// UptimeTracker aggregates per-run uptimes across all supervised processes.
//
// Thread-safe: RecordRun is called from supervisor exit callbacks on many
// goroutines.
type UptimeTracker struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	runs   int64
	total  time.Duration
	max    time.Duration
}

// NewUptimeTracker creates an empty tracker.
func NewUptimeTracker() *UptimeTracker {
	return &UptimeTracker{
		digest: tdigest.NewWithCompression(100), // ~100 centroids, ~10KB
	}
}

// RecordRun records one completed process run.
func (u *UptimeTracker) RecordRun(uptime time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.digest.Add(uptime.Seconds(), 1)
	u.runs++
	u.total += uptime
	if uptime > u.max {
		u.max = uptime
	}
}

// Quantile returns the uptime at quantile q (0.0 to 1.0).
// Returns 0 if no runs have been recorded.
func (u *UptimeTracker) Quantile(q float64) time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.runs == 0 {
		return 0
	}
	return time.Duration(u.digest.Quantile(q) * float64(time.Second))
}

// Runs returns the number of completed runs recorded.
func (u *UptimeTracker) Runs() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.runs
}

// Mean returns the mean run uptime.
func (u *UptimeTracker) Mean() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.runs == 0 {
		return 0
	}
	return u.total / time.Duration(u.runs)
}

// Max returns the longest recorded run uptime.
func (u *UptimeTracker) Max() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.max
}
