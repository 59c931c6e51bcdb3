package storage

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/job"
)

// Mapper serializes jobs and recurring jobs for backends that persist them
// as opaque blobs. The indexed columns and index entries are derived from
// the in-memory record, never parsed back out of the blob.
type Mapper interface {
	MarshalJob(j *job.Job) ([]byte, error)
	UnmarshalJob(data []byte) (*job.Job, error)
	MarshalRecurringJob(r *cron.RecurringJob) ([]byte, error)
	UnmarshalRecurringJob(data []byte) (*cron.RecurringJob, error)
}

// JSONMapper serializes records as JSON. The default.
type JSONMapper struct{}

func (JSONMapper) MarshalJob(j *job.Job) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal job %s: %w", j.ID, err)
	}
	return data, nil
}

func (JSONMapper) UnmarshalJob(data []byte) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("storage: unmarshal job: %w", err)
	}
	return &j, nil
}

func (JSONMapper) MarshalRecurringJob(r *cron.RecurringJob) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal recurring job %s: %w", r.ID, err)
	}
	return data, nil
}

func (JSONMapper) UnmarshalRecurringJob(data []byte) (*cron.RecurringJob, error) {
	var r cron.RecurringJob
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("storage: unmarshal recurring job: %w", err)
	}
	return &r, nil
}

// MsgpackMapper serializes records as MessagePack: denser than JSON and
// faster to round-trip, at the cost of opaque payloads in store tooling.
type MsgpackMapper struct{}

func (MsgpackMapper) MarshalJob(j *job.Job) ([]byte, error) {
	data, err := msgpack.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal job %s: %w", j.ID, err)
	}
	return data, nil
}

func (MsgpackMapper) UnmarshalJob(data []byte) (*job.Job, error) {
	var j job.Job
	if err := msgpack.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("storage: unmarshal job: %w", err)
	}
	return &j, nil
}

func (MsgpackMapper) MarshalRecurringJob(r *cron.RecurringJob) ([]byte, error) {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal recurring job %s: %w", r.ID, err)
	}
	return data, nil
}

func (MsgpackMapper) UnmarshalRecurringJob(data []byte) (*cron.RecurringJob, error) {
	var r cron.RecurringJob
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("storage: unmarshal recurring job: %w", err)
	}
	return &r, nil
}
