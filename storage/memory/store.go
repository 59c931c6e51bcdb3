// Package memory implements storage.Store entirely in process memory.
// Safe for concurrent use. Intended for unit testing and development; it is
// also the reference implementation the backend contract suite is written
// against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/metadata"
	"github.com/hoistq/hoist/server"
	"github.com/hoistq/hoist/storage"
)

var _ storage.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithRateLimit sets the job-stats notification budget in events per second.
func WithRateLimit(eventsPerSecond float64) Option {
	return func(s *Store) { s.rateLimit = eventsPerSecond }
}

// Store is a fully in-memory implementation of storage.Store. The secondary
// indexes are materialized as real structures and maintained through the
// same write-set derivation the key-value backends use.
type Store struct {
	*storage.Notifier
	rateLimit float64

	mu     sync.RWMutex
	closed bool

	jobs       map[string]*job.Job
	versions   map[string]int
	queues     map[job.State]map[string]int64
	scheduled  map[string]int64
	signatures map[job.State]map[string]struct{}
	recurRefs  map[job.State]map[string]struct{}

	recurring map[string]*cron.RecurringJob

	servers        map[string]*server.Status
	serversCreated map[string]int64
	serversUpdated map[string]int64

	meta map[string]*metadata.Metadata
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		rateLimit:      1,
		jobs:           make(map[string]*job.Job),
		versions:       make(map[string]int),
		queues:         make(map[job.State]map[string]int64),
		scheduled:      make(map[string]int64),
		signatures:     make(map[job.State]map[string]struct{}),
		recurRefs:      make(map[job.State]map[string]struct{}),
		recurring:      make(map[string]*cron.RecurringJob),
		servers:        make(map[string]*server.Status),
		serversCreated: make(map[string]int64),
		serversUpdated: make(map[string]int64),
		meta:           make(map[string]*metadata.Metadata),
	}
	for _, st := range job.States() {
		s.queues[st] = make(map[string]int64)
		s.signatures[st] = make(map[string]struct{})
		s.recurRefs[st] = make(map[string]struct{})
	}
	for _, o := range opts {
		o(s)
	}
	s.Notifier = storage.NewNotifier(s.GetJobStats, storage.WithRateLimit(s.rateLimit))
	return s
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return hoist.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed and drops all listeners.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Notifier.Close()
	return nil
}

// ──────────────────────────────────────────────────
// Job store
// ──────────────────────────────────────────────────

// SaveJob inserts or optimistically updates one job.
func (s *Store) SaveJob(_ context.Context, j *job.Job) error {
	if err := s.saveJob(j); err != nil {
		return err
	}
	s.JobStatsChanged()
	return nil
}

// SaveJobs persists an all-new or all-existing batch, collecting version
// conflicts.
func (s *Store) SaveJobs(_ context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	allNew, err := storage.ValidateSaveBatch(jobs)
	if err != nil {
		return err
	}
	if allNew {
		if err := s.insertAll(jobs); err != nil {
			return err
		}
	} else {
		if err := storage.CollectConcurrentModifications(jobs, s.saveJob); err != nil {
			return err
		}
	}
	s.JobStatsChanged()
	return nil
}

func (s *Store) saveJob(j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hoist.ErrStoreClosed
	}

	key := j.ID.String()
	if j.IsNew() {
		if _, exists := s.jobs[key]; exists {
			return storage.NewConcurrentJobModification(j)
		}
	} else if stored, ok := s.versions[key]; !ok || stored != j.Version {
		return storage.NewConcurrentJobModification(j)
	}
	s.commitJob(j)
	return nil
}

// insertAll checks the whole batch before applying any of it, so an
// all-new save is a single atomic group.
func (s *Store) insertAll(jobs []*job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hoist.ErrStoreClosed
	}

	var conflicted []*job.Job
	for _, j := range jobs {
		if _, exists := s.jobs[j.ID.String()]; exists {
			conflicted = append(conflicted, j)
		}
	}
	if len(conflicted) > 0 {
		return storage.NewConcurrentJobModification(conflicted...)
	}
	for _, j := range jobs {
		s.commitJob(j)
	}
	return nil
}

// commitJob applies primary, index, and version writes under s.mu, then
// reflects the new version in the caller's job.
func (s *Store) commitJob(j *job.Job) {
	next := j.Version + 1
	cp := j.Clone()
	cp.Version = next

	s.applyWriteSet(storage.RewriteIndexes(cp))
	s.jobs[cp.ID.String()] = cp
	s.versions[cp.ID.String()] = next
	j.Version = next
}

func (s *Store) applyWriteSet(ws storage.WriteSet) {
	for _, e := range ws.QueueRemove {
		delete(s.queues[e.State], e.Member)
	}
	for _, m := range ws.ScheduledRemove {
		delete(s.scheduled, m)
	}
	for _, e := range ws.SignatureRemove {
		delete(s.signatures[e.State], e.Signature)
	}
	for _, e := range ws.RecurringRemove {
		delete(s.recurRefs[e.State], e.RecurringJobID)
	}
	for _, e := range ws.QueueAdd {
		s.queues[e.State][e.Member] = e.Score
	}
	for _, e := range ws.ScheduledAdd {
		s.scheduled[e.Member] = e.Score
	}
	for _, e := range ws.SignatureAdd {
		s.signatures[e.State][e.Signature] = struct{}{}
	}
	for _, e := range ws.RecurringAdd {
		s.recurRefs[e.State][e.RecurringJobID] = struct{}{}
	}
}

// GetJobByID retrieves a job by id.
func (s *Store) GetJobByID(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hoist.ErrJobNotFound, jobID)
	}
	return j.Clone(), nil
}

// DeleteJobPermanently removes the primary record and every index entry.
func (s *Store) DeleteJobPermanently(_ context.Context, jobID id.JobID) (int, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID.String()]
	if !ok {
		s.mu.Unlock()
		return 0, nil
	}
	s.removeJob(j)
	s.mu.Unlock()

	s.JobStatsChanged()
	return 1, nil
}

// removeJob deletes primary, version, and all indexes under s.mu.
func (s *Store) removeJob(j *job.Job) {
	s.applyWriteSet(storage.RemoveAllIndexes(j))
	delete(s.jobs, j.ID.String())
	delete(s.versions, j.ID.String())
}

type scoredID struct {
	id    string
	score int64
}

// queueMembers returns the state queue ordered by score then id.
func (s *Store) queueMembers(state job.State, descending bool) []scoredID {
	entries := make([]scoredID, 0, len(s.queues[state]))
	for m, sc := range s.queues[state] {
		entries = append(entries, scoredID{id: m, score: sc})
	}
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].score != entries[k].score {
			if descending {
				return entries[i].score > entries[k].score
			}
			return entries[i].score < entries[k].score
		}
		return entries[i].id < entries[k].id
	})
	return entries
}

func paginate(entries []scoredID, page job.PageRequest) []scoredID {
	if page.Offset >= int64(len(entries)) {
		return nil
	}
	entries = entries[page.Offset:]
	if page.Limit < len(entries) {
		entries = entries[:page.Limit]
	}
	return entries
}

func (s *Store) jobsForEntries(entries []scoredID) []*job.Job {
	jobs := make([]*job.Job, 0, len(entries))
	for _, e := range entries {
		if j, ok := s.jobs[e.id]; ok {
			jobs = append(jobs, j.Clone())
		}
	}
	return jobs
}

// GetJobs returns one page of jobs in the given state.
func (s *Store) GetJobs(_ context.Context, state job.State, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.queueMembers(state, page.Order == job.OrderUpdatedAtDesc)
	return s.jobsForEntries(paginate(entries, page)), nil
}

// GetJobsUpdatedBefore returns one page of jobs in the given state updated
// at or before the cutoff.
func (s *Store) GetJobsUpdatedBefore(_ context.Context, state job.State, updatedBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	cutoff := storage.ToMicroSeconds(updatedBefore)

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.queueMembers(state, page.Order == job.OrderUpdatedAtDesc)
	entries := all[:0:0]
	for _, e := range all {
		if e.score <= cutoff {
			entries = append(entries, e)
		}
	}
	return s.jobsForEntries(paginate(entries, page)), nil
}

// GetScheduledJobs returns scheduled jobs firing at or before the cutoff,
// ordered by fire-at ascending.
func (s *Store) GetScheduledJobs(_ context.Context, scheduledBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	cutoff := storage.ToMicroSeconds(scheduledBefore)

	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]scoredID, 0, len(s.scheduled))
	for m, sc := range s.scheduled {
		if sc <= cutoff {
			entries = append(entries, scoredID{id: m, score: sc})
		}
	}
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].score != entries[k].score {
			return entries[i].score < entries[k].score
		}
		return entries[i].id < entries[k].id
	})
	return s.jobsForEntries(paginate(entries, page)), nil
}

// GetJobPage returns the total count for the state plus one page.
func (s *Store) GetJobPage(ctx context.Context, state job.State, page job.PageRequest) (*job.Page, error) {
	jobs, err := s.GetJobs(ctx, state, page)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	total := int64(len(s.queues[state]))
	s.mu.RUnlock()
	return &job.Page{Total: total, Items: jobs, Offset: page.Offset, Limit: page.Limit}, nil
}

// DeleteJobsPermanently removes jobs in the state updated at or before the
// cutoff, oldest first.
func (s *Store) DeleteJobsPermanently(_ context.Context, state job.State, updatedBefore time.Time) (int, error) {
	cutoff := storage.ToMicroSeconds(updatedBefore)

	s.mu.Lock()
	deleted := 0
	for _, e := range s.queueMembers(state, false) {
		if e.score > cutoff {
			break
		}
		if j, ok := s.jobs[e.id]; ok {
			s.removeJob(j)
			deleted++
		}
	}
	s.mu.Unlock()

	s.JobStatsChangedIf(deleted > 0)
	return deleted, nil
}

// GetDistinctJobSignatures returns the union of signatures across states.
func (s *Store) GetDistinctJobSignatures(_ context.Context, states ...job.State) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, st := range states {
		for sig := range s.signatures[st] {
			set[sig] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sig := range set {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out, nil
}

// JobExists reports whether any job with the given details is in one of the
// given states.
func (s *Store) JobExists(_ context.Context, details job.Details, states ...job.State) (bool, error) {
	sig := details.Signature()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range states {
		if _, ok := s.signatures[st][sig]; ok {
			return true, nil
		}
	}
	return false, nil
}

// ──────────────────────────────────────────────────
// Recurring jobs
// ──────────────────────────────────────────────────

// SaveRecurringJob inserts or overwrites the template by id.
func (s *Store) SaveRecurringJob(_ context.Context, r *cron.RecurringJob) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r.Clone()
	cp.Touch()
	s.recurring[cp.ID] = cp
	return nil
}

// GetRecurringJobs returns all templates ordered by id.
func (s *Store) GetRecurringJobs(_ context.Context) ([]*cron.RecurringJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*cron.RecurringJob, 0, len(s.recurring))
	for _, r := range s.recurring {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

// DeleteRecurringJob removes the template by id.
func (s *Store) DeleteRecurringJob(_ context.Context, rid string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recurring[rid]; !ok {
		return 0, nil
	}
	delete(s.recurring, rid)
	return 1, nil
}

// RecurringJobExists reports whether a job spawned from the template is in
// one of the given states.
func (s *Store) RecurringJobExists(_ context.Context, rid string, states ...job.State) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range states {
		if _, ok := s.recurRefs[st][rid]; ok {
			return true, nil
		}
	}
	return false, nil
}

// ──────────────────────────────────────────────────
// Server registry
// ──────────────────────────────────────────────────

// Announce inserts or overwrites the server record and both liveness
// indexes.
func (s *Store) Announce(_ context.Context, status *server.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := status.ID.String()
	s.servers[key] = status.Clone()
	s.serversCreated[key] = storage.ToMicroSeconds(status.FirstHeartbeat)
	s.serversUpdated[key] = storage.ToMicroSeconds(status.LastHeartbeat)
	return nil
}

// SignalAlive refreshes heartbeat and telemetry and returns the stored
// running flag.
func (s *Store) SignalAlive(_ context.Context, status *server.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := status.ID.String()
	stored, ok := s.servers[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", hoist.ErrServerTimedOut, status.ID)
	}
	stored.LastHeartbeat = status.LastHeartbeat
	stored.SystemFreeMemory = status.SystemFreeMemory
	stored.SystemCPULoad = status.SystemCPULoad
	stored.ProcessFreeMemory = status.ProcessFreeMemory
	stored.ProcessAllocatedMemory = status.ProcessAllocatedMemory
	stored.ProcessCPULoad = status.ProcessCPULoad
	s.serversUpdated[key] = storage.ToMicroSeconds(status.LastHeartbeat)
	return stored.Running, nil
}

// SignalStopped removes the server record and its index entries.
func (s *Store) SignalStopped(_ context.Context, serverID id.ServerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeServer(serverID.String())
	return nil
}

func (s *Store) removeServer(key string) {
	delete(s.servers, key)
	delete(s.serversCreated, key)
	delete(s.serversUpdated, key)
}

// GetServers returns all servers ordered by first heartbeat ascending.
func (s *Store) GetServers(_ context.Context) ([]*server.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]scoredID, 0, len(s.serversCreated))
	for k, sc := range s.serversCreated {
		keys = append(keys, scoredID{id: k, score: sc})
	}
	sort.Slice(keys, func(i, k int) bool {
		if keys[i].score != keys[k].score {
			return keys[i].score < keys[k].score
		}
		return keys[i].id < keys[k].id
	})
	out := make([]*server.Status, 0, len(keys))
	for _, k := range keys {
		if st, ok := s.servers[k.id]; ok {
			out = append(out, st.Clone())
		}
	}
	return out, nil
}

// GetLongestRunning returns the earliest-announced live server.
func (s *Store) GetLongestRunning(_ context.Context) (id.ServerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best      string
		bestScore int64
		found     bool
	)
	for k, sc := range s.serversCreated {
		if !found || sc < bestScore || (sc == bestScore && k < best) {
			best, bestScore, found = k, sc, true
		}
	}
	if !found {
		return id.NilServerID, hoist.ErrNoServers
	}
	return id.ParseServerID(best)
}

// RemoveTimedOut deletes servers whose last heartbeat is at or before the
// cutoff.
func (s *Store) RemoveTimedOut(_ context.Context, heartbeatOlderThan time.Time) (int, error) {
	cutoff := storage.ToMicroSeconds(heartbeatOlderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, sc := range s.serversUpdated {
		if sc <= cutoff {
			s.removeServer(k)
			removed++
		}
	}
	return removed, nil
}

// ──────────────────────────────────────────────────
// Metadata & stats
// ──────────────────────────────────────────────────

// SaveMetadata inserts or overwrites the record keyed by (name, owner).
func (s *Store) SaveMetadata(_ context.Context, m *metadata.Metadata) error {
	s.mu.Lock()
	cp := m.Clone()
	cp.Touch()
	s.meta[cp.ID()] = cp
	s.mu.Unlock()

	s.MetadataChanged(m.Name)
	return nil
}

// GetMetadataByName returns every record with the given name.
func (s *Store) GetMetadataByName(_ context.Context, name string) ([]*metadata.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*metadata.Metadata
	for _, m := range s.meta {
		if m.Name == name {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Owner < out[k].Owner })
	return out, nil
}

// GetMetadata returns the record for (name, owner).
func (s *Store) GetMetadata(_ context.Context, name, owner string) (*metadata.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[metadata.ID(name, owner)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hoist.ErrMetadataNotFound, metadata.ID(name, owner))
	}
	return m.Clone(), nil
}

// DeleteMetadata removes every record with the given name.
func (s *Store) DeleteMetadata(_ context.Context, name string) error {
	s.mu.Lock()
	removed := false
	for k, m := range s.meta {
		if m.Name == name {
			delete(s.meta, k)
			removed = true
		}
	}
	s.mu.Unlock()

	if removed {
		s.MetadataChanged(name)
	}
	return nil
}

// PublishTotalAmountOfSucceededJobs atomically adds amount to the all-time
// succeeded counter.
func (s *Store) PublishTotalAmountOfSucceededJobs(_ context.Context, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := metadata.ID(metadata.SucceededJobsCounterName, metadata.ClusterOwner)
	m, ok := s.meta[key]
	if !ok {
		m = metadata.New(metadata.SucceededJobsCounterName, metadata.ClusterOwner, "0")
		s.meta[key] = m
	}
	current, _ := strconv.ParseInt(m.Value, 10, 64)
	m.Value = strconv.FormatInt(current+int64(amount), 10)
	m.Touch()
	return nil
}

// GetJobStats returns a stats snapshot.
func (s *Store) GetJobStats(_ context.Context) (*storage.JobStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &storage.JobStats{
		At:                   time.Now().UTC(),
		Awaiting:             int64(len(s.queues[job.StateAwaiting])),
		Scheduled:            int64(len(s.queues[job.StateScheduled])),
		Enqueued:             int64(len(s.queues[job.StateEnqueued])),
		Processing:           int64(len(s.queues[job.StateProcessing])),
		Succeeded:            int64(len(s.queues[job.StateSucceeded])),
		Failed:               int64(len(s.queues[job.StateFailed])),
		Deleted:              int64(len(s.queues[job.StateDeleted])),
		RecurringJobs:        len(s.recurring),
		BackgroundJobServers: len(s.servers),
	}
	if m, ok := s.meta[metadata.ID(metadata.SucceededJobsCounterName, metadata.ClusterOwner)]; ok {
		st.AllTimeSucceeded, _ = strconv.ParseInt(m.Value, 10, 64)
	}
	st.Sum()
	return st, nil
}
