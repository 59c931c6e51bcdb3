package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingStats() (func(context.Context) (*JobStats, error), *atomic.Int64) {
	var fetches atomic.Int64
	return func(context.Context) (*JobStats, error) {
		n := fetches.Add(1)
		return &JobStats{Enqueued: n}, nil
	}, &fetches
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNotifierDeliversFreshStats(t *testing.T) {
	t.Parallel()
	stats, _ := countingStats()
	n := NewNotifier(stats, WithRateLimit(0))
	defer n.Close()

	var mu sync.Mutex
	var got []*JobStats
	n.OnJobStatsChange(func(s *JobStats) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	n.JobStatsChanged()
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestNotifierCoalescesOverBudget(t *testing.T) {
	t.Parallel()
	stats, fetches := countingStats()
	n := NewNotifier(stats, WithRateLimit(20))
	defer n.Close()

	var delivered atomic.Int64
	n.OnJobStatsChange(func(*JobStats) { delivered.Add(1) })

	// A burst far beyond the budget: the first event delivers immediately,
	// the rest coalesce into a single trailing delivery.
	for i := 0; i < 50; i++ {
		n.JobStatsChanged()
	}
	waitFor(t, 2*time.Second, func() bool { return delivered.Load() >= 2 })
	time.Sleep(100 * time.Millisecond)

	if d := delivered.Load(); d > 4 {
		t.Fatalf("deliveries = %d, want a coalesced handful, not one per event", d)
	}
	if f := fetches.Load(); f > 4 {
		t.Fatalf("stat fetches = %d, want one per delivery", f)
	}
}

func TestNotifierNoListenersNoFetch(t *testing.T) {
	t.Parallel()
	stats, fetches := countingStats()
	n := NewNotifier(stats, WithRateLimit(0))
	defer n.Close()

	n.JobStatsChanged()
	time.Sleep(50 * time.Millisecond)
	if fetches.Load() != 0 {
		t.Fatalf("fetches = %d without listeners, want 0", fetches.Load())
	}
}

func TestNotifierSubscriptionCancel(t *testing.T) {
	t.Parallel()
	stats, _ := countingStats()
	n := NewNotifier(stats, WithRateLimit(0))
	defer n.Close()

	var delivered atomic.Int64
	sub := n.OnJobStatsChange(func(*JobStats) { delivered.Add(1) })

	n.JobStatsChanged()
	waitFor(t, time.Second, func() bool { return delivered.Load() == 1 })

	sub.Cancel()
	sub.Cancel() // safe to call twice
	n.JobStatsChanged()
	time.Sleep(50 * time.Millisecond)
	if delivered.Load() != 1 {
		t.Fatalf("deliveries after cancel = %d, want 1", delivered.Load())
	}
}

func TestNotifierMetadataListeners(t *testing.T) {
	t.Parallel()
	stats, _ := countingStats()
	n := NewNotifier(stats)
	defer n.Close()

	var mu sync.Mutex
	var names []string
	n.OnMetadataChange(func(name string) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	})

	n.MetadataChanged("maintenance-window")
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) == 1 && names[0] == "maintenance-window"
	})
}

func TestNotifierListenerPanicIsContained(t *testing.T) {
	t.Parallel()
	stats, _ := countingStats()
	n := NewNotifier(stats, WithRateLimit(0))
	defer n.Close()

	n.OnJobStatsChange(func(*JobStats) { panic("listener bug") })
	var delivered atomic.Int64
	n.OnJobStatsChange(func(*JobStats) { delivered.Add(1) })

	// Must not crash the process; the panicking listener is logged.
	n.JobStatsChanged()
	time.Sleep(100 * time.Millisecond)
}
