package storage

import (
	"github.com/hoistq/hoist/job"
)

// QueueEntry is a member of a per-state queue, scored by UpdatedAt in
// microseconds.
type QueueEntry struct {
	State  job.State
	Member string
	Score  int64
}

// ScoredEntry is a member of the scheduled set, scored by fire-at instant in
// microseconds.
type ScoredEntry struct {
	Member string
	Score  int64
}

// SignatureEntry is a member of a per-state signature set.
type SignatureEntry struct {
	State     job.State
	Signature string
}

// RecurringEntry is a member of a per-state recurring-refs set.
type RecurringEntry struct {
	State          job.State
	RecurringJobID string
}

// WriteSet describes the index mutations one job mutation implies. Backends
// lower it into their atomic group: key-value stores map entries to
// ZADD/ZREM/SADD/SREM, the in-memory store applies it to its maps, and
// row/document stores realize the same indexes as indexed columns so the
// primary write subsumes it.
type WriteSet struct {
	QueueRemove []QueueEntry
	QueueAdd    []QueueEntry

	ScheduledRemove []string
	ScheduledAdd    []ScoredEntry

	SignatureRemove []SignatureEntry
	SignatureAdd    []SignatureEntry

	RecurringRemove []RecurringEntry
	RecurringAdd    []RecurringEntry
}

// RewriteIndexes derives the index write-set for persisting updated. The
// removals sweep the old entries out of every index the job could occupy —
// across all states, so a crashed partial write in a non-transactional
// backend heals on the next save — except the SCHEDULED signature set, which
// is cleared only when the job leaves SCHEDULED; the additions reinstate
// exactly the entries the new snapshot implies. Same-state updates still
// rewrite the queue entry because the UpdatedAt score changed.
func RewriteIndexes(updated *job.Job) WriteSet {
	var ws WriteSet
	jid := updated.ID.String()
	sig := updated.Details.Signature()
	state := updated.State()

	ws.ScheduledRemove = append(ws.ScheduledRemove, jid)
	for _, s := range job.States() {
		ws.QueueRemove = append(ws.QueueRemove, QueueEntry{State: s, Member: jid})
		if s != job.StateScheduled {
			ws.SignatureRemove = append(ws.SignatureRemove, SignatureEntry{State: s, Signature: sig})
		}
	}
	// A scheduled signature lingers only while a scheduled representative
	// exists: any transition out of SCHEDULED clears it.
	if prev, ok := updated.Previous(); ok && prev.State == job.StateScheduled && state != job.StateScheduled {
		ws.SignatureRemove = append(ws.SignatureRemove, SignatureEntry{State: job.StateScheduled, Signature: sig})
	}
	if rid := updated.RecurringJobID(); rid != "" {
		for _, s := range job.States() {
			ws.RecurringRemove = append(ws.RecurringRemove, RecurringEntry{State: s, RecurringJobID: rid})
		}
	}

	ws.QueueAdd = append(ws.QueueAdd, QueueEntry{
		State:  state,
		Member: jid,
		Score:  ToMicroSeconds(updated.UpdatedAt),
	})
	ws.SignatureAdd = append(ws.SignatureAdd, SignatureEntry{State: state, Signature: sig})
	if at, ok := updated.ScheduledAt(); ok {
		ws.ScheduledAdd = append(ws.ScheduledAdd, ScoredEntry{Member: jid, Score: ToMicroSeconds(at)})
	}
	if rid := updated.RecurringJobID(); rid != "" {
		ws.RecurringAdd = append(ws.RecurringAdd, RecurringEntry{State: state, RecurringJobID: rid})
	}
	return ws
}

// RemoveAllIndexes derives the write-set for permanent deletion: every index
// entry that could reference the job, with no additions.
func RemoveAllIndexes(j *job.Job) WriteSet {
	var ws WriteSet
	jid := j.ID.String()
	sig := j.Details.Signature()

	ws.ScheduledRemove = append(ws.ScheduledRemove, jid)
	for _, s := range job.States() {
		ws.QueueRemove = append(ws.QueueRemove, QueueEntry{State: s, Member: jid})
		ws.SignatureRemove = append(ws.SignatureRemove, SignatureEntry{State: s, Signature: sig})
	}
	if rid := j.RecurringJobID(); rid != "" {
		for _, s := range job.States() {
			ws.RecurringRemove = append(ws.RecurringRemove, RecurringEntry{State: s, RecurringJobID: rid})
		}
	}
	return ws
}
