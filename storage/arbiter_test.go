package storage

import (
	"errors"
	"testing"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/job"
)

func TestValidateSaveBatch(t *testing.T) {
	t.Parallel()
	fresh := job.NewEnqueued(job.Details{Class: "a", Method: "Run"})
	persisted := job.NewEnqueued(job.Details{Class: "b", Method: "Run"})
	persisted.Version = 3

	tests := []struct {
		name       string
		jobs       []*job.Job
		wantAllNew bool
		wantErr    error
	}{
		{"empty", nil, false, nil},
		{"all new", []*job.Job{fresh, fresh.Clone()}, true, nil},
		{"all existing", []*job.Job{persisted, persisted.Clone()}, false, nil},
		{"mixed", []*job.Job{fresh, persisted}, false, hoist.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			allNew, err := ValidateSaveBatch(tt.jobs)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && allNew != tt.wantAllNew {
				t.Fatalf("allNew = %v, want %v", allNew, tt.wantAllNew)
			}
		})
	}
}

func TestCollectConcurrentModifications(t *testing.T) {
	t.Parallel()
	a := job.NewEnqueued(job.Details{Class: "a", Method: "Run"})
	b := job.NewEnqueued(job.Details{Class: "b", Method: "Run"})
	c := job.NewEnqueued(job.Details{Class: "c", Method: "Run"})

	err := CollectConcurrentModifications([]*job.Job{a, b, c}, func(j *job.Job) error {
		if j == b {
			return NewConcurrentJobModification(j)
		}
		return nil
	})

	var cjm *ConcurrentJobModificationError
	if !errors.As(err, &cjm) {
		t.Fatalf("err = %v, want ConcurrentJobModificationError", err)
	}
	if len(cjm.Jobs) != 1 || cjm.Jobs[0] != b {
		t.Fatalf("conflict set = %v, want just b", cjm.Jobs)
	}
}

func TestCollectConcurrentModificationsAbortsOnOtherErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("backend down")
	a := job.NewEnqueued(job.Details{Class: "a", Method: "Run"})
	b := job.NewEnqueued(job.Details{Class: "b", Method: "Run"})

	calls := 0
	err := CollectConcurrentModifications([]*job.Job{a, b}, func(*job.Job) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the backend error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want fast abort after 1", calls)
	}
}

func TestCollectConcurrentModificationsAllClean(t *testing.T) {
	t.Parallel()
	a := job.NewEnqueued(job.Details{Class: "a", Method: "Run"})
	if err := CollectConcurrentModifications([]*job.Job{a}, func(*job.Job) error { return nil }); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}
