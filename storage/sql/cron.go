package sql

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
)

// SaveRecurringJob inserts or overwrites the template by id.
func (s *Store) SaveRecurringJob(ctx context.Context, r *cron.RecurringJob) error {
	if err := r.Validate(); err != nil {
		return err
	}
	cp := r.Clone()
	cp.Touch()
	data, err := s.mapper.MarshalRecurringJob(cp)
	if err != nil {
		return err
	}

	query, args, err := s.builder().
		Insert(s.table("recurring_jobs")).
		Columns("id", "job_as_json", "created_at").
		Values(cp.ID, data, storage.ToMicroSeconds(cp.CreatedAt)).
		Suffix("ON CONFLICT (id) DO UPDATE SET job_as_json = excluded.job_as_json").
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build save recurring job", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Transient("sql: save recurring job", err)
	}
	return nil
}

// GetRecurringJobs returns all templates ordered by creation time.
func (s *Store) GetRecurringJobs(ctx context.Context) ([]*cron.RecurringJob, error) {
	query, args, err := s.builder().
		Select("job_as_json").
		From(s.table("recurring_jobs")).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build list recurring jobs", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Transient("sql: list recurring jobs", err)
	}
	defer rows.Close()

	var out []*cron.RecurringJob
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storage.Transient("sql: scan recurring job", err)
		}
		r, err := s.mapper.UnmarshalRecurringJob(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Transient("sql: iterate recurring jobs", err)
	}
	return out, nil
}

// DeleteRecurringJob removes the template by id.
func (s *Store) DeleteRecurringJob(ctx context.Context, rid string) (int, error) {
	query, args, err := s.builder().
		Delete(s.table("recurring_jobs")).
		Where(sq.Eq{"id": rid}).
		ToSql()
	if err != nil {
		return 0, storage.Fatal("sql: build delete recurring job", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Transient("sql: delete recurring job", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Transient("sql: delete recurring job", err)
	}
	return int(affected), nil
}

// RecurringJobExists reports whether a job spawned from the template is in
// one of the given states, via the recurring_job_id column.
func (s *Store) RecurringJobExists(ctx context.Context, rid string, states ...job.State) (bool, error) {
	query, args, err := s.builder().
		Select("1").
		From(s.table("jobs")).
		Where(sq.Eq{"recurring_job_id": rid}).
		Where(sq.Eq{"state": stateStrings(states)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, storage.Fatal("sql: build recurring job exists", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, storage.Transient("sql: recurring job exists", err)
	}
	return true, nil
}
