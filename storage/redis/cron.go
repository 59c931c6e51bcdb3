package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
)

// SaveRecurringJob inserts or overwrites the template by id.
func (s *Store) SaveRecurringJob(ctx context.Context, r *cron.RecurringJob) error {
	if err := r.Validate(); err != nil {
		return err
	}
	cp := r.Clone()
	cp.Touch()
	data, err := s.mapper.MarshalRecurringJob(cp)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.keys.recurringJob(cp.ID), data, 0)
		pipe.SAdd(ctx, s.keys.recurringJobs(), cp.ID)
		return nil
	})
	if err != nil {
		return storage.Transient("redis: save recurring job", err)
	}
	return nil
}

// GetRecurringJobs returns all templates.
func (s *Store) GetRecurringJobs(ctx context.Context) ([]*cron.RecurringJob, error) {
	ids, err := s.client.SMembers(ctx, s.keys.recurringJobs()).Result()
	if err != nil {
		return nil, storage.Transient("redis: list recurring jobs", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.StringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, rid := range ids {
		cmds[i] = pipe.Get(ctx, s.keys.recurringJob(rid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, storage.Transient("redis: read recurring jobs", err)
	}

	out := make([]*cron.RecurringJob, 0, len(ids))
	for _, cmd := range cmds {
		data, gErr := cmd.Bytes()
		if gErr != nil {
			if errors.Is(gErr, goredis.Nil) {
				continue
			}
			return nil, storage.Transient("redis: read recurring jobs", gErr)
		}
		r, mErr := s.mapper.UnmarshalRecurringJob(data)
		if mErr != nil {
			return nil, mErr
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteRecurringJob removes the template by id.
func (s *Store) DeleteRecurringJob(ctx context.Context, rid string) (int, error) {
	var delCmd *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		delCmd = pipe.Del(ctx, s.keys.recurringJob(rid))
		pipe.SRem(ctx, s.keys.recurringJobs(), rid)
		return nil
	})
	if err != nil {
		return 0, storage.Transient("redis: delete recurring job", err)
	}
	return int(delCmd.Val()), nil
}

// RecurringJobExists reports whether a job spawned from the template is in
// one of the given states.
func (s *Store) RecurringJobExists(ctx context.Context, rid string, states ...job.State) (bool, error) {
	cmds := make([]*goredis.BoolCmd, len(states))
	pipe := s.client.Pipeline()
	for i, st := range states {
		cmds[i] = pipe.SIsMember(ctx, s.keys.recurringJobState(st), rid)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, storage.Transient("redis: recurring job exists", err)
	}
	for _, cmd := range cmds {
		if cmd.Val() {
			return true, nil
		}
	}
	return false, nil
}
