package storage

import (
	"context"

	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/metadata"
	"github.com/hoistq/hoist/server"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface; a single backend implements all of them. No other
// means of mutating core state is permitted.
type Store interface {
	job.Store
	cron.Store
	server.Store
	metadata.Store
	StatsStore
	ChangeListeners

	// Migrate prepares the backing schema per the configured
	// DatabaseOptions.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store. The redis and mongo
	// backends leave the caller's client open; the SQL backend closes the
	// *sql.DB it was given.
	Close() error
}

// StatsStore provides aggregate job statistics.
type StatsStore interface {
	// GetJobStats returns per-state counts, the all-time succeeded counter,
	// the recurring-job count, and the live-server count.
	GetJobStats(ctx context.Context) (*JobStats, error)

	// PublishTotalAmountOfSucceededJobs atomically adds amount to the
	// all-time succeeded counter.
	PublishTotalAmountOfSucceededJobs(ctx context.Context, amount int) error
}

// ChangeListeners registers in-process observers of storage mutations.
// Registration hands back a scoped Subscription; delivery is best-effort.
// Job-stats deliveries are rate-limited and coalescing; metadata deliveries
// are neither.
type ChangeListeners interface {
	// OnJobStatsChange registers a listener for job-count changes.
	OnJobStatsChange(l JobStatsListener) *Subscription

	// OnMetadataChange registers a listener for metadata changes.
	OnMetadataChange(l MetadataListener) *Subscription
}
