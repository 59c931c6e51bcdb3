package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
)

// bulkDeletePageSize is how many queue members one bulk-delete pass
// inspects before re-reading the queue head.
const bulkDeletePageSize = 1000

// SaveJob inserts or optimistically updates one job.
func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	var err error
	if j.IsNew() {
		err = s.insertJob(ctx, j)
	} else {
		err = s.updateJob(ctx, j)
	}
	if err != nil {
		return err
	}
	s.JobStatsChanged()
	return nil
}

// SaveJobs persists an all-new or all-existing batch, collecting version
// conflicts.
func (s *Store) SaveJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	allNew, err := storage.ValidateSaveBatch(jobs)
	if err != nil {
		return err
	}
	if allNew {
		err = s.insertAll(ctx, jobs)
	} else {
		err = storage.CollectConcurrentModifications(jobs, func(j *job.Job) error {
			return s.updateJob(ctx, j)
		})
	}
	if err != nil {
		return err
	}
	s.JobStatsChanged()
	return nil
}

func (s *Store) insertJob(ctx context.Context, j *job.Job) error {
	exists, err := s.client.Exists(ctx, s.keys.job(j.ID.String())).Result()
	if err != nil {
		return storage.Transient("redis: insert job exists check", err)
	}
	if exists > 0 {
		return storage.NewConcurrentJobModification(j)
	}

	cp := j.Clone()
	cp.Version = j.Version + 1
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return s.writeJob(ctx, pipe, cp)
	})
	if err != nil {
		return storage.Transient("redis: insert job", err)
	}
	j.Version = cp.Version
	return nil
}

// insertAll checks the whole batch for duplicates first, then writes every
// job in one MULTI/EXEC group.
func (s *Store) insertAll(ctx context.Context, jobs []*job.Job) error {
	existsCmds := make([]*goredis.IntCmd, len(jobs))
	pipe := s.client.Pipeline()
	for i, j := range jobs {
		existsCmds[i] = pipe.Exists(ctx, s.keys.job(j.ID.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storage.Transient("redis: insert batch exists check", err)
	}
	var conflicted []*job.Job
	for i, cmd := range existsCmds {
		if cmd.Val() > 0 {
			conflicted = append(conflicted, jobs[i])
		}
	}
	if len(conflicted) > 0 {
		return storage.NewConcurrentJobModification(conflicted...)
	}

	clones := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		clones[i] = j.Clone()
		clones[i].Version = j.Version + 1
	}
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for _, cp := range clones {
			if wErr := s.writeJob(ctx, p, cp); wErr != nil {
				return wErr
			}
		}
		return nil
	})
	if err != nil {
		return storage.Transient("redis: insert batch", err)
	}
	for i, j := range jobs {
		j.Version = clones[i].Version
	}
	return nil
}

// updateJob runs the optimistic protocol: WATCH the version key, read and
// compare, then commit the atomic group at version+1. A concurrent commit
// trips the watch and EXEC fails.
func (s *Store) updateJob(ctx context.Context, j *job.Job) error {
	verKey := s.keys.jobVersion(j.ID.String())
	cp := j.Clone()
	cp.Version = j.Version + 1

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		stored, gErr := tx.Get(ctx, verKey).Int()
		if gErr != nil {
			if errors.Is(gErr, goredis.Nil) {
				return storage.NewConcurrentJobModification(j)
			}
			return gErr
		}
		if stored != j.Version {
			return storage.NewConcurrentJobModification(j)
		}
		_, pErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			return s.writeJob(ctx, pipe, cp)
		})
		return pErr
	}, verKey)

	switch {
	case err == nil:
		j.Version = cp.Version
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		return storage.NewConcurrentJobModification(j)
	default:
		var cjm *storage.ConcurrentJobModificationError
		if errors.As(err, &cjm) {
			return err
		}
		return storage.Transient("redis: update job", err)
	}
}

// writeJob queues the full atomic group for one job: index removals implied
// by the old snapshot, the version and primary writes, and the index
// additions implied by the new snapshot.
func (s *Store) writeJob(ctx context.Context, pipe goredis.Pipeliner, j *job.Job) error {
	data, err := s.mapper.MarshalJob(j)
	if err != nil {
		return err
	}
	jid := j.ID.String()
	ws := storage.RewriteIndexes(j)

	for _, e := range ws.QueueRemove {
		pipe.ZRem(ctx, s.keys.queue(e.State), e.Member)
	}
	for _, m := range ws.ScheduledRemove {
		pipe.ZRem(ctx, s.keys.scheduled(), m)
	}
	for _, e := range ws.SignatureRemove {
		pipe.SRem(ctx, s.keys.jobDetails(e.State), e.Signature)
	}
	for _, e := range ws.RecurringRemove {
		pipe.SRem(ctx, s.keys.recurringJobState(e.State), e.RecurringJobID)
	}

	pipe.Set(ctx, s.keys.jobVersion(jid), strconv.Itoa(j.Version), 0)
	pipe.Set(ctx, s.keys.job(jid), data, 0)

	for _, e := range ws.QueueAdd {
		pipe.ZAdd(ctx, s.keys.queue(e.State), goredis.Z{Score: float64(e.Score), Member: e.Member})
	}
	for _, e := range ws.ScheduledAdd {
		pipe.ZAdd(ctx, s.keys.scheduled(), goredis.Z{Score: float64(e.Score), Member: e.Member})
	}
	for _, e := range ws.SignatureAdd {
		pipe.SAdd(ctx, s.keys.jobDetails(e.State), e.Signature)
	}
	for _, e := range ws.RecurringAdd {
		pipe.SAdd(ctx, s.keys.recurringJobState(e.State), e.RecurringJobID)
	}
	return nil
}

// GetJobByID retrieves a job by id.
func (s *Store) GetJobByID(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	data, err := s.client.Get(ctx, s.keys.job(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: %s", hoist.ErrJobNotFound, jobID)
		}
		return nil, storage.Transient("redis: get job", err)
	}
	return s.mapper.UnmarshalJob(data)
}

// DeleteJobPermanently removes the primary record, the version key, and
// every index entry in one MULTI/EXEC group.
func (s *Store) DeleteJobPermanently(ctx context.Context, jobID id.JobID) (int, error) {
	j, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, hoist.ErrJobNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if err := s.deleteJob(ctx, j); err != nil {
		return 0, err
	}
	s.JobStatsChanged()
	return 1, nil
}

func (s *Store) deleteJob(ctx context.Context, j *job.Job) error {
	jid := j.ID.String()
	ws := storage.RemoveAllIndexes(j)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.keys.job(jid))
		pipe.Del(ctx, s.keys.jobVersion(jid))
		for _, e := range ws.QueueRemove {
			pipe.ZRem(ctx, s.keys.queue(e.State), e.Member)
		}
		for _, m := range ws.ScheduledRemove {
			pipe.ZRem(ctx, s.keys.scheduled(), m)
		}
		for _, e := range ws.SignatureRemove {
			pipe.SRem(ctx, s.keys.jobDetails(e.State), e.Signature)
		}
		for _, e := range ws.RecurringRemove {
			pipe.SRem(ctx, s.keys.recurringJobState(e.State), e.RecurringJobID)
		}
		return nil
	})
	if err != nil {
		return storage.Transient("redis: delete job", err)
	}
	return nil
}

// readJobs fetches many jobs in a single round-trip. Ids whose primary is
// gone are skipped: a reader of a state queue may race a concurrent
// deletion and must tolerate stale membership.
func (s *Store) readJobs(ctx context.Context, ids []string) ([]*job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*goredis.StringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, jid := range ids {
		cmds[i] = pipe.Get(ctx, s.keys.job(jid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, storage.Transient("redis: read jobs", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return nil, storage.Transient("redis: read jobs", err)
		}
		j, err := s.mapper.UnmarshalJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// GetJobs returns one page of jobs in the given state.
func (s *Store) GetJobs(ctx context.Context, state job.State, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	start := page.Offset
	stop := page.Offset + int64(page.Limit) - 1

	var (
		ids []string
		err error
	)
	if page.Order == job.OrderUpdatedAtDesc {
		ids, err = s.client.ZRevRange(ctx, s.keys.queue(state), start, stop).Result()
	} else {
		ids, err = s.client.ZRange(ctx, s.keys.queue(state), start, stop).Result()
	}
	if err != nil {
		return nil, storage.Transient("redis: get jobs", err)
	}
	return s.readJobs(ctx, ids)
}

// GetJobsUpdatedBefore returns one page of jobs in the given state updated
// at or before the cutoff.
func (s *Store) GetJobsUpdatedBefore(ctx context.Context, state job.State, updatedBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	rng := &goredis.ZRangeBy{
		Min:    "0",
		Max:    strconv.FormatInt(storage.ToMicroSeconds(updatedBefore), 10),
		Offset: page.Offset,
		Count:  int64(page.Limit),
	}

	var (
		ids []string
		err error
	)
	if page.Order == job.OrderUpdatedAtDesc {
		ids, err = s.client.ZRevRangeByScore(ctx, s.keys.queue(state), rng).Result()
	} else {
		ids, err = s.client.ZRangeByScore(ctx, s.keys.queue(state), rng).Result()
	}
	if err != nil {
		return nil, storage.Transient("redis: get jobs updated before", err)
	}
	return s.readJobs(ctx, ids)
}

// GetScheduledJobs returns scheduled jobs firing at or before the cutoff,
// ordered by fire-at ascending.
func (s *Store) GetScheduledJobs(ctx context.Context, scheduledBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRangeByScore(ctx, s.keys.scheduled(), &goredis.ZRangeBy{
		Min:    "0",
		Max:    strconv.FormatInt(storage.ToMicroSeconds(scheduledBefore), 10),
		Offset: page.Offset,
		Count:  int64(page.Limit),
	}).Result()
	if err != nil {
		return nil, storage.Transient("redis: get scheduled jobs", err)
	}
	return s.readJobs(ctx, ids)
}

// GetJobPage returns the total count for the state plus one page.
func (s *Store) GetJobPage(ctx context.Context, state job.State, page job.PageRequest) (*job.Page, error) {
	total, err := s.client.ZCard(ctx, s.keys.queue(state)).Result()
	if err != nil {
		return nil, storage.Transient("redis: get job page", err)
	}
	items := []*job.Job{}
	if total > 0 {
		items, err = s.GetJobs(ctx, state, page)
		if err != nil {
			return nil, err
		}
	}
	return &job.Page{Total: total, Items: items, Offset: page.Offset, Limit: page.Limit}, nil
}

// DeleteJobsPermanently pages ids from the head of the state queue and
// deletes until the first job beyond the cutoff. Each job is deleted in its
// own atomic group, so interruption leaves the store valid and a rerun
// resumes at the head.
func (s *Store) DeleteJobsPermanently(ctx context.Context, state job.State, updatedBefore time.Time) (int, error) {
	queueKey := s.keys.queue(state)
	deleted := 0

outer:
	for {
		ids, err := s.client.ZRange(ctx, queueKey, 0, bulkDeletePageSize-1).Result()
		if err != nil {
			return deleted, storage.Transient("redis: bulk delete scan", err)
		}
		if len(ids) == 0 {
			break
		}
		progress := 0
		for _, jid := range ids {
			data, gErr := s.client.Get(ctx, s.keys.job(jid)).Bytes()
			if gErr != nil {
				if errors.Is(gErr, goredis.Nil) {
					// Stale queue entry with no primary: drop it so the
					// scan can make progress.
					if rErr := s.client.ZRem(ctx, queueKey, jid).Err(); rErr != nil {
						return deleted, storage.Transient("redis: bulk delete scrub", rErr)
					}
					progress++
					continue
				}
				return deleted, storage.Transient("redis: bulk delete read", gErr)
			}
			j, mErr := s.mapper.UnmarshalJob(data)
			if mErr != nil {
				return deleted, mErr
			}
			if j.UpdatedAt.After(updatedBefore) {
				break outer
			}
			if dErr := s.deleteJob(ctx, j); dErr != nil {
				return deleted, dErr
			}
			deleted++
			progress++
		}
		if progress == 0 {
			break
		}
	}

	s.JobStatsChangedIf(deleted > 0)
	return deleted, nil
}

// GetDistinctJobSignatures returns the union of signatures across states.
func (s *Store) GetDistinctJobSignatures(ctx context.Context, states ...job.State) ([]string, error) {
	cmds := make([]*goredis.StringSliceCmd, len(states))
	pipe := s.client.Pipeline()
	for i, st := range states {
		cmds[i] = pipe.SMembers(ctx, s.keys.jobDetails(st))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storage.Transient("redis: distinct signatures", err)
	}
	set := make(map[string]struct{})
	for _, cmd := range cmds {
		for _, sig := range cmd.Val() {
			set[sig] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sig := range set {
		out = append(out, sig)
	}
	return out, nil
}

// JobExists reports whether any job with the given details is in one of the
// given states.
func (s *Store) JobExists(ctx context.Context, details job.Details, states ...job.State) (bool, error) {
	sig := details.Signature()
	cmds := make([]*goredis.BoolCmd, len(states))
	pipe := s.client.Pipeline()
	for i, st := range states {
		cmds[i] = pipe.SIsMember(ctx, s.keys.jobDetails(st), sig)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, storage.Transient("redis: job exists", err)
	}
	for _, cmd := range cmds {
		if cmd.Val() {
			return true, nil
		}
	}
	return false, nil
}
