package storage

import (
	"testing"
	"time"

	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
)

func hasQueueAdd(ws WriteSet, state job.State) bool {
	for _, e := range ws.QueueAdd {
		if e.State == state {
			return true
		}
	}
	return false
}

func hasSignatureRemove(ws WriteSet, state job.State) bool {
	for _, e := range ws.SignatureRemove {
		if e.State == state {
			return true
		}
	}
	return false
}

func TestRewriteIndexesEnqueued(t *testing.T) {
	t.Parallel()
	j := job.NewEnqueued(job.Details{Class: "mailer", Method: "Send"})
	ws := RewriteIndexes(j)

	if len(ws.QueueAdd) != 1 || ws.QueueAdd[0].State != job.StateEnqueued {
		t.Fatalf("queue adds = %v, want one ENQUEUED entry", ws.QueueAdd)
	}
	if ws.QueueAdd[0].Score != ToMicroSeconds(j.UpdatedAt) {
		t.Fatalf("queue score = %d, want %d", ws.QueueAdd[0].Score, ToMicroSeconds(j.UpdatedAt))
	}
	if len(ws.QueueRemove) != len(job.States()) {
		t.Fatalf("queue removals = %d, want one per state", len(ws.QueueRemove))
	}
	if len(ws.ScheduledAdd) != 0 {
		t.Fatalf("scheduled adds = %v, want none for ENQUEUED", ws.ScheduledAdd)
	}
	if len(ws.SignatureAdd) != 1 || ws.SignatureAdd[0].State != job.StateEnqueued {
		t.Fatalf("signature adds = %v, want one ENQUEUED entry", ws.SignatureAdd)
	}
	// A brand-new enqueued job never held SCHEDULED, so its scheduled
	// signature is not touched.
	if hasSignatureRemove(ws, job.StateScheduled) {
		t.Fatal("scheduled signature removed for a job that was never scheduled")
	}
}

func TestRewriteIndexesScheduled(t *testing.T) {
	t.Parallel()
	at := time.Now().Add(time.Hour)
	j := job.NewScheduled(job.Details{Class: "sync", Method: "Run"}, at, "nightly")
	ws := RewriteIndexes(j)

	if len(ws.ScheduledAdd) != 1 {
		t.Fatalf("scheduled adds = %v, want one entry", ws.ScheduledAdd)
	}
	if ws.ScheduledAdd[0].Score != ToMicroSeconds(at.UTC().Truncate(time.Microsecond)) {
		t.Fatalf("scheduled score = %d, want fire-at micros", ws.ScheduledAdd[0].Score)
	}
	if len(ws.RecurringAdd) != 1 || ws.RecurringAdd[0].RecurringJobID != "nightly" {
		t.Fatalf("recurring adds = %v, want nightly in SCHEDULED", ws.RecurringAdd)
	}
	if len(ws.RecurringRemove) != len(job.States()) {
		t.Fatalf("recurring removals = %d, want one per state", len(ws.RecurringRemove))
	}
}

// Any transition out of SCHEDULED clears the scheduled signature, not only
// the enqueue and delete paths.
func TestRewriteIndexesScheduledSignatureCleanup(t *testing.T) {
	t.Parallel()
	transitions := []struct {
		name string
		move func(j *job.Job)
	}{
		{"to enqueued", func(j *job.Job) { j.Enqueue() }},
		{"to deleted", func(j *job.Job) { j.Delete("gone") }},
		{"to failed", func(j *job.Job) { j.Fail("boom") }},
		{"to processing", func(j *job.Job) { j.StartProcessing(id.NewServerID()) }},
	}

	for _, tt := range transitions {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := job.NewScheduled(job.Details{Class: "sync", Method: "Run"}, time.Now(), "")
			tt.move(j)
			ws := RewriteIndexes(j)
			if !hasSignatureRemove(ws, job.StateScheduled) {
				t.Fatal("scheduled signature not removed on transition out of SCHEDULED")
			}
		})
	}
}

func TestRewriteIndexesScheduledToScheduled(t *testing.T) {
	t.Parallel()
	j := job.NewScheduled(job.Details{Class: "sync", Method: "Run"}, time.Now(), "")
	j.Schedule(time.Now().Add(time.Hour), "")
	ws := RewriteIndexes(j)

	if hasSignatureRemove(ws, job.StateScheduled) {
		t.Fatal("scheduled signature removed although the job is still SCHEDULED")
	}
	if !hasQueueAdd(ws, job.StateScheduled) {
		t.Fatal("rescheduled job missing its SCHEDULED queue entry")
	}
}

func TestRemoveAllIndexes(t *testing.T) {
	t.Parallel()
	j := job.NewScheduled(job.Details{Class: "sync", Method: "Run"}, time.Now(), "weekly")
	ws := RemoveAllIndexes(j)

	if len(ws.QueueAdd)+len(ws.ScheduledAdd)+len(ws.SignatureAdd)+len(ws.RecurringAdd) != 0 {
		t.Fatal("removal write-set contains additions")
	}
	if len(ws.QueueRemove) != len(job.States()) {
		t.Fatalf("queue removals = %d, want one per state", len(ws.QueueRemove))
	}
	// Unlike the update path, deletion sweeps the signature out of every
	// state including SCHEDULED.
	if !hasSignatureRemove(ws, job.StateScheduled) {
		t.Fatal("scheduled signature not removed on permanent deletion")
	}
	if len(ws.RecurringRemove) != len(job.States()) {
		t.Fatalf("recurring removals = %d, want one per state", len(ws.RecurringRemove))
	}
}
