package stats

import (
	"sync"
	"testing"
	"time"
)

func TestUptimeTracker_Empty(t *testing.T) {
	u := NewUptimeTracker()

	if u.Runs() != 0 {
		t.Errorf("Runs = %d, want 0", u.Runs())
	}
	if u.Quantile(0.5) != 0 {
		t.Errorf("Quantile(0.5) = %v, want 0", u.Quantile(0.5))
	}
	if u.Mean() != 0 {
		t.Errorf("Mean = %v, want 0", u.Mean())
	}
}

func TestUptimeTracker_Quantiles(t *testing.T) {
	u := NewUptimeTracker()

	// 100 runs from 1s to 100s
	for i := 1; i <= 100; i++ {
		u.RecordRun(time.Duration(i) * time.Second)
	}

	if u.Runs() != 100 {
		t.Fatalf("Runs = %d, want 100", u.Runs())
	}

	p50 := u.Quantile(0.5)
	if p50 < 40*time.Second || p50 > 60*time.Second {
		t.Errorf("p50 = %v, want ~50s", p50)
	}

	p99 := u.Quantile(0.99)
	if p99 < 90*time.Second {
		t.Errorf("p99 = %v, want >= 90s", p99)
	}

	if u.Max() != 100*time.Second {
		t.Errorf("Max = %v, want 100s", u.Max())
	}

	mean := u.Mean()
	if mean < 49*time.Second || mean > 52*time.Second {
		t.Errorf("Mean = %v, want ~50.5s", mean)
	}
}

func TestUptimeTracker_Concurrent(t *testing.T) {
	u := NewUptimeTracker()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				u.RecordRun(time.Second)
			}
		}()
	}
	wg.Wait()

	if u.Runs() != 800 {
		t.Errorf("Runs = %d, want 800", u.Runs())
	}
}
