package cron

import (
	"context"

	"github.com/hoistq/hoist/job"
)

// Store defines the persistence contract for recurring jobs.
type Store interface {
	// SaveRecurringJob inserts or overwrites the template by id.
	SaveRecurringJob(ctx context.Context, r *RecurringJob) error

	// GetRecurringJobs returns all templates.
	GetRecurringJobs(ctx context.Context) ([]*RecurringJob, error)

	// DeleteRecurringJob removes the template by id and returns the number
	// removed (0 or 1). Job instances already spawned are untouched.
	DeleteRecurringJob(ctx context.Context, id string) (int, error)

	// RecurringJobExists reports whether at least one job spawned from the
	// template is currently in one of the given states.
	RecurringJobExists(ctx context.Context, id string, states ...job.State) (bool, error)
}
