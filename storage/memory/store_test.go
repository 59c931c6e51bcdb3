package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
	"github.com/hoistq/hoist/storage/storagetest"
)

func TestContract(t *testing.T) {
	t.Parallel()
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}

	if err := s.Ping(ctx); !errors.Is(err, hoist.ErrStoreClosed) {
		t.Fatalf("ping after close = %v, want ErrStoreClosed", err)
	}
}

// TestManyWritersOneWinnerPerVersion hammers one job from many goroutines;
// every committed version must have had exactly one winner.
func TestManyWritersOneWinnerPerVersion(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := job.NewEnqueued(job.Details{Class: "contended", Method: "Run"})
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidate := j.Clone()
			candidate.Succeed()
			err := s.SaveJob(ctx, candidate)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			var cjm *storage.ConcurrentJobModificationError
			if !errors.As(err, &cjm) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}
	stored, err := s.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 2 {
		t.Fatalf("stored version = %d, want 2", stored.Version)
	}
}

// TestStaleQueueReadTolerated: a clone fetched before a concurrent state
// change still fails its save cleanly rather than corrupting indexes.
func TestStaleQueueReadTolerated(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	j := job.NewEnqueued(job.Details{Class: "stale", Method: "Run"})
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("seed: %v", err)
	}
	stale := j.Clone()

	j.StartProcessing(id.NewServerID())
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("advance: %v", err)
	}

	stale.Delete("late delete")
	saveErr := s.SaveJob(ctx, stale)
	var cjm *storage.ConcurrentJobModificationError
	if !errors.As(saveErr, &cjm) {
		t.Fatalf("stale save = %v, want ConcurrentJobModificationError", saveErr)
	}

	// The index still reflects the winner.
	processing, err := s.GetJobs(ctx, job.StateProcessing, job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get processing: %v", err)
	}
	if len(processing) != 1 {
		t.Fatalf("processing = %d job(s), want 1", len(processing))
	}
}
