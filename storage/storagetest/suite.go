// Package storagetest provides the backend contract suite. Every
// storage.Store implementation must pass it; backends run it from their own
// tests with a factory producing a fresh, migrated, empty store.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/metadata"
	"github.com/hoistq/hoist/server"
	"github.com/hoistq/hoist/storage"
)

// Factory produces a fresh, migrated, empty store. The suite closes it via
// t.Cleanup.
type Factory func(t *testing.T) storage.Store

// Run executes the full contract suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"VersionSequence", testVersionSequence},
		{"InsertDuplicate", testInsertDuplicate},
		{"GetJobNotFound", testGetJobNotFound},
		{"SaveFetchedJob", testSaveFetchedJob},
		{"ConcurrentSave", testConcurrentSave},
		{"JobPageAndExists", testJobPageAndExists},
		{"StateQueueMembership", testStateQueueMembership},
		{"ScheduledJobs", testScheduledJobs},
		{"ScheduledSignatureCleanup", testScheduledSignatureCleanup},
		{"BulkDelete", testBulkDelete},
		{"DeletePermanently", testDeletePermanently},
		{"DistinctSignatures", testDistinctSignatures},
		{"SaveJobsMixedBatch", testSaveJobsMixedBatch},
		{"SaveJobsConflictCollection", testSaveJobsConflictCollection},
		{"RecurringJobs", testRecurringJobs},
		{"RecurringJobExists", testRecurringJobExists},
		{"ServerRegistry", testServerRegistry},
		{"ServerSignalAliveUnknown", testServerSignalAliveUnknown},
		{"Metadata", testMetadata},
		{"SucceededCounter", testSucceededCounter},
		{"JobStats", testJobStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() {
				if err := s.Close(); err != nil {
					t.Errorf("close store: %v", err)
				}
			})
			tt.fn(t, s)
		})
	}
}

func details(class, method string, args ...string) job.Details {
	return job.Details{Class: class, Method: method, Args: args}
}

// jobAt builds a job with one history entry pinned to an explicit instant,
// so tests can control queue scores precisely.
func jobAt(state job.State, at time.Time, d job.Details) *job.Job {
	sc := job.StateChange{State: state, At: at.UTC()}
	if state == job.StateScheduled {
		sc.ScheduledAt = at.UTC()
	}
	return &job.Job{
		ID:        id.NewJobID(),
		Details:   d,
		History:   []job.StateChange{sc},
		UpdatedAt: sc.At,
	}
}

func mustSave(t *testing.T, s storage.Store, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if err := s.SaveJob(context.Background(), j); err != nil {
			t.Fatalf("save job %s: %v", j.ID, err)
		}
	}
}

// testVersionSequence covers P1: committed versions form 0, 1, 2, … without
// gaps.
func testVersionSequence(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := job.NewEnqueued(details("mailer", "Send", "42"))

	for want := 1; want <= 3; want++ {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("save #%d: %v", want, err)
		}
		if j.Version != want {
			t.Fatalf("version after save #%d = %d, want %d", want, j.Version, want)
		}
		stored, err := s.GetJobByID(ctx, j.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if stored.Version != want {
			t.Fatalf("stored version = %d, want %d", stored.Version, want)
		}
		j.Succeed()
	}
}

func testInsertDuplicate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := job.NewEnqueued(details("mailer", "Send"))
	mustSave(t, s, j)

	dup := j.Clone()
	dup.Version = 0
	err := s.SaveJob(ctx, dup)
	var cjm *storage.ConcurrentJobModificationError
	if !errors.As(err, &cjm) {
		t.Fatalf("duplicate insert error = %v, want ConcurrentJobModificationError", err)
	}
}

func testGetJobNotFound(t *testing.T, s storage.Store) {
	_, err := s.GetJobByID(context.Background(), id.NewJobID())
	if !errors.Is(err, hoist.ErrJobNotFound) {
		t.Fatalf("error = %v, want ErrJobNotFound", err)
	}
}

// testSaveFetchedJob covers the round-trip property: saving a freshly
// fetched job succeeds and only bumps the version.
func testSaveFetchedJob(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := job.NewEnqueued(details("mailer", "Send"))
	mustSave(t, s, j)

	fetched, err := s.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := s.SaveJob(ctx, fetched); err != nil {
		t.Fatalf("save fetched: %v", err)
	}
	if fetched.Version != 2 {
		t.Fatalf("version = %d, want 2", fetched.Version)
	}
	again, err := s.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.State() != j.State() || len(again.History) != len(j.History) {
		t.Fatalf("state changed on no-op save: %v vs %v", again.State(), j.State())
	}
}

// testConcurrentSave covers P4: of two writers at the same version, exactly
// one commits and the other observes the conflict.
func testConcurrentSave(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := job.NewEnqueued(details("mailer", "Send"))
	mustSave(t, s, j)

	first := j.Clone()
	second := j.Clone()
	first.StartProcessing(id.NewServerID())
	second.Delete("operator cancelled")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, candidate := range []*job.Job{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.SaveJob(ctx, candidate)
		}()
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		default:
			var cjm *storage.ConcurrentJobModificationError
			if !errors.As(err, &cjm) {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cjm.Jobs) != 1 || cjm.Jobs[0].ID != j.ID {
				t.Fatalf("conflict carries %d job(s), want the contended one", len(cjm.Jobs))
			}
			conflicts++
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes = %d, conflicts = %d; want exactly one of each", successes, conflicts)
	}

	stored, err := s.GetJobByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Version != 2 {
		t.Fatalf("stored version = %d, want 2", stored.Version)
	}
}

// testJobPageAndExists covers concrete scenario 1.
func testJobPageAndExists(t *testing.T, s storage.Store) {
	ctx := context.Background()
	d := details("reports", "Generate", "monthly")
	j := jobAt(job.StateEnqueued, time.UnixMicro(1000), d)
	mustSave(t, s, j)

	page, err := s.GetJobPage(ctx, job.StateEnqueued, job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get job page: %v", err)
	}
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("page total = %d, items = %d; want 1, 1", page.Total, len(page.Items))
	}
	if page.Items[0].ID != j.ID {
		t.Fatalf("page item = %s, want %s", page.Items[0].ID, j.ID)
	}

	ok, err := s.JobExists(ctx, d, job.StateEnqueued)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatal("exists = false, want true")
	}
}

// testStateQueueMembership covers P2: a job lives in exactly the queue of
// its current state.
func testStateQueueMembership(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := job.NewEnqueued(details("billing", "Charge"))
	mustSave(t, s, j)

	j.StartProcessing(id.NewServerID())
	mustSave(t, s, j)

	enqueued, err := s.GetJobs(ctx, job.StateEnqueued, job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get enqueued: %v", err)
	}
	if len(enqueued) != 0 {
		t.Fatalf("enqueued queue has %d job(s), want 0", len(enqueued))
	}
	processing, err := s.GetJobs(ctx, job.StateProcessing, job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get processing: %v", err)
	}
	if len(processing) != 1 || processing[0].ID != j.ID {
		t.Fatalf("processing queue = %v, want [%s]", processing, j.ID)
	}
}

// testScheduledJobs covers concrete scenario 3.
func testScheduledJobs(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := jobAt(job.StateScheduled, time.UnixMicro(2000), details("sync", "Run"))
	mustSave(t, s, j)

	empty, err := s.GetScheduledJobs(ctx, time.UnixMicro(1999), job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get scheduled before 1999: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("scheduled before 1999 = %d job(s), want 0", len(empty))
	}

	due, err := s.GetScheduledJobs(ctx, time.UnixMicro(2001), job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get scheduled before 2001: %v", err)
	}
	if len(due) != 1 || due[0].ID != j.ID {
		t.Fatalf("scheduled before 2001 = %v, want [%s]", due, j.ID)
	}
}

// testScheduledSignatureCleanup: a scheduled signature lingers only while a
// scheduled representative exists, for any transition out of SCHEDULED.
func testScheduledSignatureCleanup(t *testing.T, s storage.Store) {
	ctx := context.Background()
	d := details("sync", "Run", "tenant-7")
	j := job.NewScheduled(d, time.Now().Add(time.Hour), "")
	mustSave(t, s, j)

	ok, err := s.JobExists(ctx, d, job.StateScheduled)
	if err != nil {
		t.Fatalf("exists scheduled: %v", err)
	}
	if !ok {
		t.Fatal("exists(SCHEDULED) = false before transition, want true")
	}

	j.Fail("handler panicked")
	mustSave(t, s, j)

	ok, err = s.JobExists(ctx, d, job.StateScheduled)
	if err != nil {
		t.Fatalf("exists scheduled after fail: %v", err)
	}
	if ok {
		t.Fatal("exists(SCHEDULED) = true after leaving SCHEDULED, want false")
	}
	ok, err = s.JobExists(ctx, d, job.StateFailed)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !ok {
		t.Fatal("exists(FAILED) = false, want true")
	}
}

// testBulkDelete covers concrete scenario 4.
func testBulkDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	stamps := []int64{1000, 3000, 5001, 7000}
	jobs := make([]*job.Job, len(stamps))
	for i, us := range stamps {
		jobs[i] = jobAt(job.StateSucceeded, time.UnixMicro(us), details("cleanup", "Sweep"))
		mustSave(t, s, jobs[i])
	}

	deleted, err := s.DeleteJobsPermanently(ctx, job.StateSucceeded, time.UnixMicro(5000))
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	remaining, err := s.GetJobs(ctx, job.StateSucceeded, job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get remaining: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining = %d job(s), want 2", len(remaining))
	}
	if remaining[0].ID != jobs[2].ID || remaining[1].ID != jobs[3].ID {
		t.Fatalf("remaining ids = %s, %s; want %s, %s",
			remaining[0].ID, remaining[1].ID, jobs[2].ID, jobs[3].ID)
	}
}

// testDeletePermanently covers P5: no primary, index, or recurring ref
// survives a permanent deletion.
func testDeletePermanently(t *testing.T, s storage.Store) {
	ctx := context.Background()
	d := details("sync", "Run", "tenant-9")
	j := job.NewScheduled(d, time.Now().Add(time.Hour), "nightly-sync")
	mustSave(t, s, j)

	count, err := s.DeleteJobPermanently(ctx, j.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	if _, err := s.GetJobByID(ctx, j.ID); !errors.Is(err, hoist.ErrJobNotFound) {
		t.Fatalf("get after delete = %v, want ErrJobNotFound", err)
	}
	due, err := s.GetScheduledJobs(ctx, time.Now().Add(2*time.Hour), job.Ascending(0, 10))
	if err != nil {
		t.Fatalf("get scheduled: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("scheduled set still has %d job(s)", len(due))
	}
	ok, err := s.JobExists(ctx, d, job.StateScheduled)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatal("signature survived permanent deletion")
	}
	ok, err = s.RecurringJobExists(ctx, "nightly-sync", job.StateScheduled)
	if err != nil {
		t.Fatalf("recurring exists: %v", err)
	}
	if ok {
		t.Fatal("recurring ref survived permanent deletion")
	}

	again, err := s.DeleteJobPermanently(ctx, j.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if again != 0 {
		t.Fatalf("second delete count = %d, want 0", again)
	}
}

func testDistinctSignatures(t *testing.T, s storage.Store) {
	ctx := context.Background()
	d1 := details("mailer", "Send", "1")
	d2 := details("mailer", "Send", "2")
	mustSave(t, s,
		job.NewEnqueued(d1),
		jobAt(job.StateFailed, time.UnixMicro(4000), d2),
	)

	sigs, err := s.GetDistinctJobSignatures(ctx, job.StateEnqueued, job.StateFailed)
	if err != nil {
		t.Fatalf("distinct signatures: %v", err)
	}
	want := map[string]bool{d1.Signature(): true, d2.Signature(): true}
	if len(sigs) != 2 {
		t.Fatalf("signatures = %v, want 2 entries", sigs)
	}
	for _, sig := range sigs {
		if !want[sig] {
			t.Fatalf("unexpected signature %q", sig)
		}
	}
}

func testSaveJobsMixedBatch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	existing := job.NewEnqueued(details("mailer", "Send"))
	mustSave(t, s, existing)

	err := s.SaveJobs(ctx, []*job.Job{existing, job.NewEnqueued(details("mailer", "Send", "x"))})
	if !errors.Is(err, hoist.ErrInvalidArgument) {
		t.Fatalf("mixed batch error = %v, want ErrInvalidArgument", err)
	}
}

// testSaveJobsConflictCollection: batch updates collect the complete
// conflict set instead of fast-failing.
func testSaveJobsConflictCollection(t *testing.T, s storage.Store) {
	ctx := context.Background()
	fresh := job.NewEnqueued(details("mailer", "Send", "fresh"))
	stale := job.NewEnqueued(details("mailer", "Send", "stale"))
	mustSave(t, s, fresh, stale)

	// Advance the stale job behind the batch's back.
	winner := stale.Clone()
	winner.Succeed()
	mustSave(t, s, winner)

	fresh.Succeed()
	stale.Succeed()
	err := s.SaveJobs(ctx, []*job.Job{fresh, stale})

	var cjm *storage.ConcurrentJobModificationError
	if !errors.As(err, &cjm) {
		t.Fatalf("batch error = %v, want ConcurrentJobModificationError", err)
	}
	if len(cjm.Jobs) != 1 || cjm.Jobs[0].ID != stale.ID {
		t.Fatalf("conflict set = %v, want just the stale job", cjm.Jobs)
	}

	// The non-conflicting half of the batch committed.
	stored, err := s.GetJobByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if stored.State() != job.StateSucceeded {
		t.Fatalf("fresh state = %s, want SUCCEEDED", stored.State())
	}
}

func testRecurringJobs(t *testing.T, s storage.Store) {
	ctx := context.Background()
	r := cron.New("nightly-report", "0 3 * * *", details("reports", "Generate", "nightly"))
	if err := s.SaveRecurringJob(ctx, r); err != nil {
		t.Fatalf("save recurring: %v", err)
	}
	// Idempotent overwrite.
	if err := s.SaveRecurringJob(ctx, r); err != nil {
		t.Fatalf("re-save recurring: %v", err)
	}

	all, err := s.GetRecurringJobs(ctx)
	if err != nil {
		t.Fatalf("get recurring: %v", err)
	}
	if len(all) != 1 || all[0].ID != r.ID || all[0].Schedule != r.Schedule {
		t.Fatalf("recurring jobs = %v, want the saved one", all)
	}

	count, err := s.DeleteRecurringJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("delete recurring: %v", err)
	}
	if count != 1 {
		t.Fatalf("delete count = %d, want 1", count)
	}
	count, err = s.DeleteRecurringJob(ctx, r.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if count != 0 {
		t.Fatalf("second delete count = %d, want 0", count)
	}
}

func testRecurringJobExists(t *testing.T, s storage.Store) {
	ctx := context.Background()
	j := job.NewScheduled(details("sync", "Run"), time.Now().Add(time.Hour), "hourly-sync")
	mustSave(t, s, j)

	ok, err := s.RecurringJobExists(ctx, "hourly-sync", job.StateScheduled)
	if err != nil {
		t.Fatalf("recurring exists: %v", err)
	}
	if !ok {
		t.Fatal("recurring exists = false, want true")
	}
	ok, err = s.RecurringJobExists(ctx, "hourly-sync", job.StateProcessing)
	if err != nil {
		t.Fatalf("recurring exists other state: %v", err)
	}
	if ok {
		t.Fatal("recurring exists in PROCESSING = true, want false")
	}
}

// testServerRegistry covers concrete scenario 5 and P6.
func testServerRegistry(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := server.New(8, 15*time.Second)
	a.FirstHeartbeat = time.UnixMicro(100)
	a.LastHeartbeat = time.UnixMicro(100)
	b := server.New(8, 15*time.Second)
	b.FirstHeartbeat = time.UnixMicro(200)
	b.LastHeartbeat = time.UnixMicro(200)

	for _, st := range []*server.Status{a, b} {
		if err := s.Announce(ctx, st); err != nil {
			t.Fatalf("announce: %v", err)
		}
	}
	// Announce is idempotent across restarts with the same id.
	if err := s.Announce(ctx, a); err != nil {
		t.Fatalf("re-announce: %v", err)
	}

	servers, err := s.GetServers(ctx)
	if err != nil {
		t.Fatalf("get servers: %v", err)
	}
	if len(servers) != 2 || servers[0].ID != a.ID || servers[1].ID != b.ID {
		t.Fatalf("servers out of order: got %d entries", len(servers))
	}

	longest, err := s.GetLongestRunning(ctx)
	if err != nil {
		t.Fatalf("longest running: %v", err)
	}
	if longest != a.ID {
		t.Fatalf("longest running = %s, want %s", longest, a.ID)
	}

	a.LastHeartbeat = time.UnixMicro(120)
	running, err := s.SignalAlive(ctx, a)
	if err != nil {
		t.Fatalf("signal alive: %v", err)
	}
	if !running {
		t.Fatal("signal alive running = false, want true")
	}

	removed, err := s.RemoveTimedOut(ctx, time.UnixMicro(150))
	if err != nil {
		t.Fatalf("remove timed out: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	longest, err = s.GetLongestRunning(ctx)
	if err != nil {
		t.Fatalf("longest running after removal: %v", err)
	}
	if longest != b.ID {
		t.Fatalf("longest running = %s, want %s", longest, b.ID)
	}

	// P6: every remaining server heartbeat is beyond the cutoff.
	servers, err = s.GetServers(ctx)
	if err != nil {
		t.Fatalf("get servers after removal: %v", err)
	}
	for _, st := range servers {
		if !st.LastHeartbeat.After(time.UnixMicro(150)) {
			t.Fatalf("server %s survived with stale heartbeat %v", st.ID, st.LastHeartbeat)
		}
	}

	if err := s.SignalStopped(ctx, b.ID); err != nil {
		t.Fatalf("signal stopped: %v", err)
	}
	if _, err := s.GetLongestRunning(ctx); !errors.Is(err, hoist.ErrNoServers) {
		t.Fatalf("longest running on empty registry = %v, want ErrNoServers", err)
	}
}

func testServerSignalAliveUnknown(t *testing.T, s storage.Store) {
	st := server.New(4, time.Second)
	_, err := s.SignalAlive(context.Background(), st)
	if !errors.Is(err, hoist.ErrServerTimedOut) {
		t.Fatalf("signal alive unknown = %v, want ErrServerTimedOut", err)
	}
}

func testMetadata(t *testing.T, s storage.Store) {
	ctx := context.Background()
	m := metadata.New("maintenance-window", metadata.ClusterOwner, "02:00-04:00")
	if err := s.SaveMetadata(ctx, m); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	got, err := s.GetMetadata(ctx, "maintenance-window", metadata.ClusterOwner)
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if got.Value != "02:00-04:00" {
		t.Fatalf("value = %q, want %q", got.Value, "02:00-04:00")
	}

	byName, err := s.GetMetadataByName(ctx, "maintenance-window")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if len(byName) != 1 {
		t.Fatalf("by name = %d record(s), want 1", len(byName))
	}

	if err := s.DeleteMetadata(ctx, "maintenance-window"); err != nil {
		t.Fatalf("delete metadata: %v", err)
	}
	if _, err := s.GetMetadata(ctx, "maintenance-window", metadata.ClusterOwner); !errors.Is(err, hoist.ErrMetadataNotFound) {
		t.Fatalf("get after delete = %v, want ErrMetadataNotFound", err)
	}
}

// testSucceededCounter covers concrete scenario 6.
func testSucceededCounter(t *testing.T, s storage.Store) {
	ctx := context.Background()
	before, err := s.GetJobStats(ctx)
	if err != nil {
		t.Fatalf("stats before: %v", err)
	}

	if err := s.PublishTotalAmountOfSucceededJobs(ctx, 5); err != nil {
		t.Fatalf("publish: %v", err)
	}

	after, err := s.GetJobStats(ctx)
	if err != nil {
		t.Fatalf("stats after: %v", err)
	}
	if diff := after.AllTimeSucceeded - before.AllTimeSucceeded; diff != 5 {
		t.Fatalf("all-time succeeded grew by %d, want 5", diff)
	}
}

func testJobStats(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustSave(t, s,
		job.NewEnqueued(details("a", "Run")),
		job.NewEnqueued(details("b", "Run")),
		jobAt(job.StateSucceeded, time.UnixMicro(9000), details("c", "Run")),
	)
	if err := s.SaveRecurringJob(ctx, cron.New("r1", "@hourly", details("r", "Run"))); err != nil {
		t.Fatalf("save recurring: %v", err)
	}
	if err := s.Announce(ctx, server.New(2, time.Second)); err != nil {
		t.Fatalf("announce: %v", err)
	}

	stats, err := s.GetJobStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Enqueued != 2 || stats.Succeeded != 1 {
		t.Fatalf("enqueued = %d, succeeded = %d; want 2, 1", stats.Enqueued, stats.Succeeded)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.RecurringJobs != 1 || stats.BackgroundJobServers != 1 {
		t.Fatalf("recurring = %d, servers = %d; want 1, 1",
			stats.RecurringJobs, stats.BackgroundJobServers)
	}
}
