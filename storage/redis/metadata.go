package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/metadata"
	"github.com/hoistq/hoist/storage"
)

// SaveMetadata inserts or overwrites the record keyed by (name, owner).
func (s *Store) SaveMetadata(ctx context.Context, m *metadata.Metadata) error {
	cp := m.Clone()
	cp.Touch()
	key := s.keys.metadata(cp.ID())

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, metadataToMap(cp))
		pipe.SAdd(ctx, s.keys.metadatas(), key)
		return nil
	})
	if err != nil {
		return storage.Transient("redis: save metadata", err)
	}
	s.MetadataChanged(m.Name)
	return nil
}

// GetMetadataByName returns every record with the given name, across owners.
func (s *Store) GetMetadataByName(ctx context.Context, name string) ([]*metadata.Metadata, error) {
	keys, err := s.metadataKeysByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(keys))
	pipe := s.client.Pipeline()
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storage.Transient("redis: read metadata", err)
	}

	out := make([]*metadata.Metadata, 0, len(keys))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, mapToMetadata(fields))
	}
	return out, nil
}

// GetMetadata returns the record for (name, owner).
func (s *Store) GetMetadata(ctx context.Context, name, owner string) (*metadata.Metadata, error) {
	fields, err := s.client.HGetAll(ctx, s.keys.metadata(metadata.ID(name, owner))).Result()
	if err != nil {
		return nil, storage.Transient("redis: get metadata", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", hoist.ErrMetadataNotFound, metadata.ID(name, owner))
	}
	return mapToMetadata(fields), nil
}

// DeleteMetadata removes every record with the given name.
func (s *Store) DeleteMetadata(ctx context.Context, name string) error {
	keys, err := s.metadataKeysByName(ctx, name)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.keys.metadatas(), key)
		}
		return nil
	})
	if err != nil {
		return storage.Transient("redis: delete metadata", err)
	}
	s.MetadataChanged(name)
	return nil
}

// metadataKeysByName filters the metadatas set down to one name by its
// "{name}-" key prefix.
func (s *Store) metadataKeysByName(ctx context.Context, name string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.keys.metadatas()).Result()
	if err != nil {
		return nil, storage.Transient("redis: list metadata", err)
	}
	prefix := s.keys.metadata(name + "-")
	var keys []string
	for _, member := range members {
		if strings.HasPrefix(member, prefix) {
			keys = append(keys, member)
		}
	}
	return keys, nil
}

// PublishTotalAmountOfSucceededJobs atomically adds amount to the all-time
// succeeded counter.
func (s *Store) PublishTotalAmountOfSucceededJobs(ctx context.Context, amount int) error {
	key := s.keys.metadata(metadata.ID(metadata.SucceededJobsCounterName, metadata.ClusterOwner))
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "value", int64(amount))
		pipe.HSetNX(ctx, key, "name", metadata.SucceededJobsCounterName)
		pipe.HSetNX(ctx, key, "owner", metadata.ClusterOwner)
		pipe.SAdd(ctx, s.keys.metadatas(), key)
		return nil
	})
	if err != nil {
		return storage.Transient("redis: publish succeeded jobs", err)
	}
	return nil
}

// GetJobStats returns a stats snapshot computed in a single pipeline.
func (s *Store) GetJobStats(ctx context.Context) (*storage.JobStats, error) {
	at := time.Now().UTC()
	counterKey := s.keys.metadata(metadata.ID(metadata.SucceededJobsCounterName, metadata.ClusterOwner))

	pipe := s.client.Pipeline()
	counterCmd := pipe.HGet(ctx, counterKey, "value")
	queueCmds := make(map[job.State]*goredis.IntCmd, len(job.States()))
	for _, st := range job.States() {
		queueCmds[st] = pipe.ZCard(ctx, s.keys.queue(st))
	}
	recurringCmd := pipe.SCard(ctx, s.keys.recurringJobs())
	serversCmd := pipe.ZCard(ctx, s.keys.serversUpdated())
	if _, err := pipe.Exec(ctx); err != nil && !isNil(err) {
		return nil, storage.Transient("redis: job stats", err)
	}

	stats := &storage.JobStats{
		At:                   at,
		Awaiting:             queueCmds[job.StateAwaiting].Val(),
		Scheduled:            queueCmds[job.StateScheduled].Val(),
		Enqueued:             queueCmds[job.StateEnqueued].Val(),
		Processing:           queueCmds[job.StateProcessing].Val(),
		Succeeded:            queueCmds[job.StateSucceeded].Val(),
		Failed:               queueCmds[job.StateFailed].Val(),
		Deleted:              queueCmds[job.StateDeleted].Val(),
		RecurringJobs:        int(recurringCmd.Val()),
		BackgroundJobServers: int(serversCmd.Val()),
	}
	if raw, err := counterCmd.Result(); err == nil {
		stats.AllTimeSucceeded, _ = strconv.ParseInt(raw, 10, 64)
	}
	stats.Sum()
	return stats, nil
}

func isNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// ── hash codecs ──

func metadataToMap(m *metadata.Metadata) map[string]interface{} {
	return map[string]interface{}{
		"name":       m.Name,
		"owner":      m.Owner,
		"value":      m.Value,
		"created_at": m.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": m.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToMetadata(fields map[string]string) *metadata.Metadata {
	m := &metadata.Metadata{
		Name:  fields["name"],
		Owner: fields["owner"],
		Value: fields["value"],
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return m
}
