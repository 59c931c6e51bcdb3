package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hoistq/hoist/job"
)

// ConcurrentJobModificationError reports that the optimistic version check
// failed for one or more jobs. Jobs holds the callers' local snapshots of
// the conflicting jobs so they can refresh from the store and reapply.
type ConcurrentJobModificationError struct {
	Jobs []*job.Job
}

// NewConcurrentJobModification builds the error for the given local
// snapshots.
func NewConcurrentJobModification(jobs ...*job.Job) *ConcurrentJobModificationError {
	return &ConcurrentJobModificationError{Jobs: jobs}
}

func (e *ConcurrentJobModificationError) Error() string {
	ids := make([]string, len(e.Jobs))
	for i, j := range e.Jobs {
		ids[i] = j.ID.String()
	}
	return fmt.Sprintf("storage: concurrent modification of %d job(s): %s",
		len(e.Jobs), strings.Join(ids, ", "))
}

// ResolveResult pairs a caller's local snapshot with the stored snapshot it
// conflicted with.
type ResolveResult struct {
	Local  *job.Job
	Stored *job.Job
}

// UnresolvableConcurrentJobModificationError is the structured diagnostic
// for conflicts a higher layer could not reconcile. It is a read-only view;
// building or inspecting it mutates no store state.
type UnresolvableConcurrentJobModificationError struct {
	Results []ResolveResult
}

func (e *UnresolvableConcurrentJobModificationError) Error() string {
	return fmt.Sprintf("storage: unresolvable concurrent modification of %d job(s)", len(e.Results))
}

// Unwrap exposes the underlying conflict set so
// errors.As(&ConcurrentJobModificationError{}) matches.
func (e *UnresolvableConcurrentJobModificationError) Unwrap() error {
	jobs := make([]*job.Job, len(e.Results))
	for i, r := range e.Results {
		jobs[i] = r.Local
	}
	return &ConcurrentJobModificationError{Jobs: jobs}
}

// Diagnostics renders, per conflicting pair, the job id, both version
// numbers, and each side's last three states with timestamps.
func (e *UnresolvableConcurrentJobModificationError) Diagnostics() string {
	var b strings.Builder
	b.WriteString("Concurrent modified jobs:\n")
	for _, r := range e.Results {
		fmt.Fprintf(&b, "Job id: %s\n", r.Local.ID)
		fmt.Fprintf(&b, "\tLocal version: %d; Storage version: %d\n", r.Local.Version, r.Stored.Version)
		fmt.Fprintf(&b, "\tLocal state: %s\n", formatStates(r.Local))
		fmt.Fprintf(&b, "\tStorage state: %s\n", formatStates(r.Stored))
	}
	return b.String()
}

func formatStates(j *job.Job) string {
	states := j.LastStates(3)
	parts := make([]string, len(states))
	for i, sc := range states {
		parts[i] = fmt.Sprintf("%s (at %s)", sc.State, sc.At.Format("2006-01-02T15:04:05.000000Z07:00"))
	}
	return strings.Join(parts, " <- ")
}

// StorageError wraps a backend failure with the failed operation and a
// retryability classification. Transient failures did not commit and may be
// retried by the caller; fatal failures indicate the provider is unusable
// (schema mismatch, authorization).
type StorageError struct {
	Op        string
	Err       error
	Transient bool
}

// Transient marks err as a retryable failure of op.
func Transient(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err, Transient: true}
}

// Fatal marks err as a non-retryable failure of op.
func Fatal(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("storage: %s: %s: %v", e.Op, kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable storage failure.
func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Transient
}
