package sql

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/metadata"
	"github.com/hoistq/hoist/storage"
)

// SaveMetadata inserts or overwrites the record keyed by (name, owner).
func (s *Store) SaveMetadata(ctx context.Context, m *metadata.Metadata) error {
	cp := m.Clone()
	cp.Touch()

	query, args, err := s.builder().
		Insert(s.table("metadata")).
		Columns("name", "owner", "value", "created_at", "updated_at").
		Values(cp.Name, cp.Owner, cp.Value,
			storage.ToMicroSeconds(cp.CreatedAt), storage.ToMicroSeconds(cp.UpdatedAt)).
		Suffix("ON CONFLICT (name, owner) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build save metadata", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Transient("sql: save metadata", err)
	}
	s.MetadataChanged(m.Name)
	return nil
}

func (s *Store) scanMetadata(rows interface {
	Scan(dest ...interface{}) error
}) (*metadata.Metadata, error) {
	var (
		m         metadata.Metadata
		createdUs int64
		updatedUs int64
	)
	if err := rows.Scan(&m.Name, &m.Owner, &m.Value, &createdUs, &updatedUs); err != nil {
		return nil, err
	}
	m.CreatedAt = storage.FromMicroSeconds(createdUs)
	m.UpdatedAt = storage.FromMicroSeconds(updatedUs)
	return &m, nil
}

// GetMetadataByName returns every record with the given name, across owners.
func (s *Store) GetMetadataByName(ctx context.Context, name string) ([]*metadata.Metadata, error) {
	query, args, err := s.builder().
		Select("name", "owner", "value", "created_at", "updated_at").
		From(s.table("metadata")).
		Where(sq.Eq{"name": name}).
		OrderBy("owner ASC").
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build metadata by name", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Transient("sql: metadata by name", err)
	}
	defer rows.Close()

	var out []*metadata.Metadata
	for rows.Next() {
		m, err := s.scanMetadata(rows)
		if err != nil {
			return nil, storage.Transient("sql: scan metadata", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Transient("sql: iterate metadata", err)
	}
	return out, nil
}

// GetMetadata returns the record for (name, owner).
func (s *Store) GetMetadata(ctx context.Context, name, owner string) (*metadata.Metadata, error) {
	query, args, err := s.builder().
		Select("name", "owner", "value", "created_at", "updated_at").
		From(s.table("metadata")).
		Where(sq.Eq{"name": name, "owner": owner}).
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build get metadata", err)
	}
	m, err := s.scanMetadata(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", hoist.ErrMetadataNotFound, metadata.ID(name, owner))
		}
		return nil, storage.Transient("sql: get metadata", err)
	}
	return m, nil
}

// DeleteMetadata removes every record with the given name.
func (s *Store) DeleteMetadata(ctx context.Context, name string) error {
	query, args, err := s.builder().
		Delete(s.table("metadata")).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build delete metadata", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Transient("sql: delete metadata", err)
	}
	if affected, aErr := res.RowsAffected(); aErr == nil && affected > 0 {
		s.MetadataChanged(name)
	}
	return nil
}

// PublishTotalAmountOfSucceededJobs atomically adds amount to the all-time
// succeeded counter, creating the record on first use.
func (s *Store) PublishTotalAmountOfSucceededJobs(ctx context.Context, amount int) error {
	nowUs := storage.ToMicroSeconds(hoist.Now())
	update := s.expand(
		"UPDATE {prefix}metadata " +
			"SET value = CAST(CAST(value AS BIGINT) + ? AS TEXT), updated_at = ? " +
			"WHERE name = ? AND owner = ?")
	update, err := s.dialect.Placeholder.ReplacePlaceholders(update)
	if err != nil {
		return storage.Fatal("sql: build publish succeeded", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Transient("sql: publish succeeded begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx, update, amount, nowUs,
		metadata.SucceededJobsCounterName, metadata.ClusterOwner)
	if err != nil {
		return storage.Transient("sql: publish succeeded", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Transient("sql: publish succeeded", err)
	}
	if affected == 0 {
		query, args, bErr := s.builder().
			Insert(s.table("metadata")).
			Columns("name", "owner", "value", "created_at", "updated_at").
			Values(metadata.SucceededJobsCounterName, metadata.ClusterOwner,
				fmt.Sprintf("%d", amount), nowUs, nowUs).
			ToSql()
		if bErr != nil {
			return storage.Fatal("sql: build publish succeeded insert", bErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return storage.Transient("sql: publish succeeded insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storage.Transient("sql: publish succeeded commit", err)
	}
	return nil
}

// GetJobStats reads the per-state counts from the stats view plus the
// cluster counters.
func (s *Store) GetJobStats(ctx context.Context) (*storage.JobStats, error) {
	stats := &storage.JobStats{At: time.Now().UTC()}

	viewQuery := "SELECT awaiting, scheduled, enqueued, processing, succeeded, failed, deleted FROM " +
		s.table("jobs_stats")
	if err := s.db.QueryRowContext(ctx, viewQuery).Scan(
		&stats.Awaiting, &stats.Scheduled, &stats.Enqueued, &stats.Processing,
		&stats.Succeeded, &stats.Failed, &stats.Deleted,
	); err != nil {
		return nil, storage.Transient("sql: job stats view", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+s.table("recurring_jobs"),
	).Scan(&stats.RecurringJobs); err != nil {
		return nil, storage.Transient("sql: recurring count", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+s.table("background_job_servers"),
	).Scan(&stats.BackgroundJobServers); err != nil {
		return nil, storage.Transient("sql: server count", err)
	}

	counter, err := s.GetMetadata(ctx, metadata.SucceededJobsCounterName, metadata.ClusterOwner)
	switch {
	case err == nil:
		fmt.Sscanf(counter.Value, "%d", &stats.AllTimeSucceeded) //nolint:errcheck // zero on parse failure
	case !errors.Is(err, hoist.ErrMetadataNotFound):
		return nil, err
	}
	stats.Sum()
	return stats, nil
}
