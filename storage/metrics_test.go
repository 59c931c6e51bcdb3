package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
	"github.com/hoistq/hoist/storage/memory"
)

func TestStatsCollector(t *testing.T) {
	t.Parallel()
	s := memory.New()
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.SaveJob(ctx, job.NewEnqueued(job.Details{Class: "m", Method: "Run"})); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.PublishTotalAmountOfSucceededJobs(ctx, 7); err != nil {
		t.Fatalf("publish: %v", err)
	}

	c := storage.NewStatsCollector(s)
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	expected := strings.NewReader(`
# HELP hoist_jobs_succeeded_total All-time number of succeeded jobs, including jobs since deleted.
# TYPE hoist_jobs_succeeded_total counter
hoist_jobs_succeeded_total 7
`)
	if err := testutil.GatherAndCompare(reg, expected, "hoist_jobs_succeeded_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}

	if got := testutil.CollectAndCount(c, "hoist_jobs"); got != 7 {
		t.Fatalf("hoist_jobs series = %d, want one per state (7)", got)
	}
}
