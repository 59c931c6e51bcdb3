package job

import (
	"time"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
)

// Job is a unit of background work.
//
// A job is created with Version 0; every committed mutation increments the
// persisted version by exactly one. The History is a non-empty ordered list
// of state records, oldest first; the last entry is the current state and
// UpdatedAt always equals that entry's timestamp.
type Job struct {
	ID        id.JobID      `json:"id" msgpack:"id"`
	Version   int           `json:"version" msgpack:"version"`
	Details   Details       `json:"details" msgpack:"details"`
	History   []StateChange `json:"history" msgpack:"history"`
	UpdatedAt time.Time     `json:"updated_at" msgpack:"updated_at"`
}

// NewEnqueued creates a job in ENQUEUED state, ready for dispatch.
func NewEnqueued(details Details) *Job {
	j := &Job{ID: id.NewJobID(), Details: details}
	j.Enqueue()
	return j
}

// NewScheduled creates a job in SCHEDULED state that fires at the given
// instant. recurringJobID is empty unless the job was spawned from a
// recurring job template.
func NewScheduled(details Details, at time.Time, recurringJobID string) *Job {
	j := &Job{ID: id.NewJobID(), Details: details}
	j.Schedule(at, recurringJobID)
	return j
}

// IsNew reports whether the job has never been persisted.
func (j *Job) IsNew() bool { return j.Version == 0 }

// State returns the current state: the state of the most recent history
// entry, or AWAITING for a job with no history yet.
func (j *Job) State() State {
	if len(j.History) == 0 {
		return StateAwaiting
	}
	return j.History[len(j.History)-1].State
}

// Current returns the most recent history entry.
func (j *Job) Current() StateChange {
	if len(j.History) == 0 {
		return StateChange{State: StateAwaiting}
	}
	return j.History[len(j.History)-1]
}

// Previous returns the state record before the current one, if any.
func (j *Job) Previous() (StateChange, bool) {
	if len(j.History) < 2 {
		return StateChange{}, false
	}
	return j.History[len(j.History)-2], true
}

// FirstOfState returns the oldest history entry with the given state.
func (j *Job) FirstOfState(s State) (StateChange, bool) {
	for _, sc := range j.History {
		if sc.State == s {
			return sc, true
		}
	}
	return StateChange{}, false
}

// RecurringJobID returns the id of the recurring job this job was spawned
// from, or "" for ad-hoc jobs. The id travels on the first SCHEDULED record.
func (j *Job) RecurringJobID() string {
	sc, ok := j.FirstOfState(StateScheduled)
	if !ok {
		return ""
	}
	return sc.RecurringJobID
}

// ScheduledAt returns the fire-at instant of the current SCHEDULED state.
// The second return is false when the job is not currently scheduled.
func (j *Job) ScheduledAt() (time.Time, bool) {
	cur := j.Current()
	if cur.State != StateScheduled {
		return time.Time{}, false
	}
	return cur.ScheduledAt, true
}

// LastStates returns up to n most recent history entries, newest first.
// Used for conflict diagnostics.
func (j *Job) LastStates(n int) []StateChange {
	if n > len(j.History) {
		n = len(j.History)
	}
	out := make([]StateChange, 0, n)
	for i := len(j.History) - 1; i >= len(j.History)-n; i-- {
		out = append(out, j.History[i])
	}
	return out
}

// Await moves the job to AWAITING.
func (j *Job) Await() { j.apply(StateChange{State: StateAwaiting}) }

// Enqueue moves the job to ENQUEUED.
func (j *Job) Enqueue() { j.apply(StateChange{State: StateEnqueued}) }

// Schedule moves the job to SCHEDULED with the given fire-at instant.
func (j *Job) Schedule(at time.Time, recurringJobID string) {
	j.apply(StateChange{
		State:          StateScheduled,
		ScheduledAt:    at.UTC().Truncate(time.Microsecond),
		RecurringJobID: recurringJobID,
	})
}

// StartProcessing moves the job to PROCESSING on the given server.
func (j *Job) StartProcessing(serverID id.ServerID) {
	j.apply(StateChange{State: StateProcessing, ServerID: serverID})
}

// Succeed moves the job to SUCCEEDED.
func (j *Job) Succeed() { j.apply(StateChange{State: StateSucceeded}) }

// Fail moves the job to FAILED with a reason.
func (j *Job) Fail(reason string) {
	j.apply(StateChange{State: StateFailed, Reason: reason})
}

// Delete soft-deletes the job; permanent removal happens later via
// Store.DeleteJobPermanently.
func (j *Job) Delete(reason string) {
	j.apply(StateChange{State: StateDeleted, Reason: reason})
}

func (j *Job) apply(sc StateChange) {
	if sc.At.IsZero() {
		sc.At = hoist.Now()
	}
	j.History = append(j.History, sc)
	j.UpdatedAt = sc.At
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate shared records.
func (j *Job) Clone() *Job {
	cp := *j
	cp.History = make([]StateChange, len(j.History))
	copy(cp.History, j.History)
	if j.Details.Args != nil {
		cp.Details.Args = make([]string, len(j.Details.Args))
		copy(cp.Details.Args, j.Details.Args)
	}
	return &cp
}
