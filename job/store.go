package job

import (
	"context"
	"time"

	"github.com/hoistq/hoist/id"
)

// Store defines the persistence contract for jobs.
//
// Mutating operations are atomic: the primary record, every secondary index,
// and the version counter commit together or not at all. Version conflicts
// surface as storage.ConcurrentJobModificationError.
type Store interface {
	// SaveJob inserts the job when Version is 0, otherwise updates it after
	// an optimistic version check. On success the job's Version is bumped to
	// the newly committed value.
	SaveJob(ctx context.Context, j *Job) error

	// SaveJobs persists a batch that must be all-new or all-existing; a
	// mixed batch fails with hoist.ErrInvalidArgument. Existing jobs are
	// arbitrated independently and version conflicts are collected, not
	// fast-failed, so callers receive the complete conflict set.
	SaveJobs(ctx context.Context, jobs []*Job) error

	// GetJobByID retrieves a job, failing with hoist.ErrJobNotFound when no
	// primary record exists.
	GetJobByID(ctx context.Context, jobID id.JobID) (*Job, error)

	// DeleteJobPermanently removes the primary record and every index entry.
	// Returns the number of jobs removed (0 or 1).
	DeleteJobPermanently(ctx context.Context, jobID id.JobID) (int, error)

	// GetJobs returns one page of jobs in the given state, ordered by
	// UpdatedAt per the page request.
	GetJobs(ctx context.Context, state State, page PageRequest) ([]*Job, error)

	// GetJobsUpdatedBefore is GetJobs restricted to jobs whose UpdatedAt is
	// at or before the cutoff.
	GetJobsUpdatedBefore(ctx context.Context, state State, updatedBefore time.Time, page PageRequest) ([]*Job, error)

	// GetScheduledJobs returns scheduled jobs whose fire-at instant is at or
	// before the cutoff.
	GetScheduledJobs(ctx context.Context, scheduledBefore time.Time, page PageRequest) ([]*Job, error)

	// GetJobPage returns the total count for the state plus one page.
	GetJobPage(ctx context.Context, state State, page PageRequest) (*Page, error)

	// DeleteJobsPermanently removes jobs in the given state whose UpdatedAt
	// is at or before the cutoff, oldest first, and returns the count
	// actually deleted. Interruption leaves the store valid; rerunning
	// resumes where it stopped.
	DeleteJobsPermanently(ctx context.Context, state State, updatedBefore time.Time) (int, error)

	// GetDistinctJobSignatures returns the union of job signatures present
	// in the given states.
	GetDistinctJobSignatures(ctx context.Context, states ...State) ([]string, error)

	// JobExists reports whether any job with the given details is currently
	// in one of the given states.
	JobExists(ctx context.Context, details Details, states ...State) (bool, error)
}
