package job

import (
	"time"

	"github.com/hoistq/hoist/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateAwaiting means the job is waiting on an external trigger and is
	// not yet eligible for dispatch.
	StateAwaiting State = "AWAITING"
	// StateScheduled means the job will become enqueued at its fire-at
	// instant.
	StateScheduled State = "SCHEDULED"
	// StateEnqueued means the job is ready to be picked up by a worker.
	StateEnqueued State = "ENQUEUED"
	// StateProcessing means a worker is currently executing the job.
	StateProcessing State = "PROCESSING"
	// StateSucceeded means the job finished successfully.
	StateSucceeded State = "SUCCEEDED"
	// StateFailed means the job failed.
	StateFailed State = "FAILED"
	// StateDeleted means the job was soft-deleted and awaits permanent
	// removal.
	StateDeleted State = "DELETED"
)

// States lists every job state. The order is the dashboard display order and
// is relied on nowhere else.
func States() []State {
	return []State{
		StateAwaiting,
		StateScheduled,
		StateEnqueued,
		StateProcessing,
		StateSucceeded,
		StateFailed,
		StateDeleted,
	}
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	switch s {
	case StateAwaiting, StateScheduled, StateEnqueued, StateProcessing,
		StateSucceeded, StateFailed, StateDeleted:
		return true
	}
	return false
}

// StateChange is one entry in a job's state history. The state-specific
// payload fields are only set for the states that carry them: ScheduledAt and
// RecurringJobID for SCHEDULED, ServerID for PROCESSING, Reason for FAILED
// and DELETED.
type StateChange struct {
	State          State       `json:"state" msgpack:"state"`
	At             time.Time   `json:"at" msgpack:"at"`
	ScheduledAt    time.Time   `json:"scheduled_at,omitempty" msgpack:"scheduled_at,omitempty"`
	RecurringJobID string      `json:"recurring_job_id,omitempty" msgpack:"recurring_job_id,omitempty"`
	ServerID       id.ServerID `json:"server_id,omitempty" msgpack:"server_id,omitempty"`
	Reason         string      `json:"reason,omitempty" msgpack:"reason,omitempty"`
}
