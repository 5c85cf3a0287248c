package timeseries

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateTrackerEmpty(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	stats := tracker.GetStats()
	if stats.TotalLines != 0 {
		t.Errorf("TotalLines = %d, want 0", stats.TotalLines)
	}
	if stats.Avg1s != 0 || stats.Avg60s != 0 {
		t.Errorf("expected zero averages, got Avg1s=%f Avg60s=%f", stats.Avg1s, stats.Avg60s)
	}
}

func TestRateTrackerSteadyRate(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	// 100 lines/sec for 10 seconds
	for i := 0; i < 10; i++ {
		clock.Advance(1 * time.Second)
		tracker.AddLines(100)
		tracker.RecordSample()
	}

	stats := tracker.GetStats()
	if stats.TotalLines != 1000 {
		t.Errorf("TotalLines = %d, want 1000", stats.TotalLines)
	}
	if stats.AvgOverall < 99 || stats.AvgOverall > 101 {
		t.Errorf("AvgOverall = %f, want ~100", stats.AvgOverall)
	}
	if stats.Avg1s < 99 || stats.Avg1s > 101 {
		t.Errorf("Avg1s = %f, want ~100", stats.Avg1s)
	}
}

func TestRateTrackerRateChange(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	// 10 lines/sec for 60 seconds
	for i := 0; i < 60; i++ {
		clock.Advance(1 * time.Second)
		tracker.AddLines(10)
		tracker.RecordSample()
	}

	// Then 1000 lines/sec for 5 seconds
	for i := 0; i < 5; i++ {
		clock.Advance(1 * time.Second)
		tracker.AddLines(1000)
		tracker.RecordSample()
	}

	stats := tracker.GetStats()

	// 1s window should reflect the new high rate
	if stats.Avg1s < 900 {
		t.Errorf("Avg1s = %f, want ~1000", stats.Avg1s)
	}

	// 60s window spans both phases, should be well below 1000
	if stats.Avg60s > 500 {
		t.Errorf("Avg60s = %f, want < 500", stats.Avg60s)
	}
}

func TestRateTrackerRingBufferWraps(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	// Record more samples than the ring holds
	for i := 0; i < ringBufferSize+50; i++ {
		clock.Advance(1 * time.Second)
		tracker.AddLines(1)
		tracker.RecordSample()
	}

	if got := tracker.SampleCount(); got != ringBufferSize {
		t.Errorf("SampleCount = %d, want %d", got, ringBufferSize)
	}

	stats := tracker.GetStats()
	if stats.Avg300s < 0.9 || stats.Avg300s > 1.1 {
		t.Errorf("Avg300s = %f, want ~1", stats.Avg300s)
	}
}

func TestRateTrackerSetTotal(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	clock.Advance(1 * time.Second)
	tracker.SetTotal(500)
	tracker.RecordSample()

	clock.Advance(1 * time.Second)
	tracker.SetTotal(1500)
	tracker.RecordSample()

	stats := tracker.GetStats()
	if stats.TotalLines != 1500 {
		t.Errorf("TotalLines = %d, want 1500", stats.TotalLines)
	}
	if stats.Avg1s < 900 || stats.Avg1s > 1100 {
		t.Errorf("Avg1s = %f, want ~1000", stats.Avg1s)
	}
}

func TestRateTrackerReset(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateTrackerWithClock(clock)

	for i := 0; i < 5; i++ {
		clock.Advance(1 * time.Second)
		tracker.AddLines(100)
		tracker.RecordSample()
	}

	tracker.Reset()

	stats := tracker.GetStats()
	if stats.TotalLines != 0 {
		t.Errorf("TotalLines after Reset = %d, want 0", stats.TotalLines)
	}
	if got := tracker.SampleCount(); got != 1 {
		t.Errorf("SampleCount after Reset = %d, want 1", got)
	}
}

func TestRateTrackerConcurrentAdd(t *testing.T) {
	tracker := NewRateTracker()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tracker.AddLines(1)
			}
		}()
	}
	wg.Wait()

	stats := tracker.GetStats()
	if stats.TotalLines != 8000 {
		t.Errorf("TotalLines = %d, want 8000", stats.TotalLines)
	}
}
