package sql

import (
	"context"
	dbsql "database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
)

// SaveJob inserts or optimistically updates one job. The version-guarded
// statement is the whole atomic group: primary, derived columns, and the
// version counter commit in one row write.
func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	var err error
	if j.IsNew() {
		err = s.insertJob(ctx, j)
	} else {
		err = s.updateJob(ctx, j)
	}
	if err != nil {
		return err
	}
	s.JobStatsChanged()
	return nil
}

// SaveJobs persists an all-new or all-existing batch, collecting version
// conflicts.
func (s *Store) SaveJobs(ctx context.Context, jobs []*job.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	allNew, err := storage.ValidateSaveBatch(jobs)
	if err != nil {
		return err
	}
	if allNew {
		err = storage.CollectConcurrentModifications(jobs, func(j *job.Job) error {
			return s.insertJob(ctx, j)
		})
	} else {
		err = storage.CollectConcurrentModifications(jobs, func(j *job.Job) error {
			return s.updateJob(ctx, j)
		})
	}
	if err != nil {
		return err
	}
	s.JobStatsChanged()
	return nil
}

// jobRow derives the indexed columns for one snapshot.
func jobRow(j *job.Job) (scheduledAt dbsql.NullInt64, recurringID dbsql.NullString) {
	if at, ok := j.ScheduledAt(); ok {
		scheduledAt = dbsql.NullInt64{Int64: storage.ToMicroSeconds(at), Valid: true}
	}
	if rid := j.RecurringJobID(); rid != "" {
		recurringID = dbsql.NullString{String: rid, Valid: true}
	}
	return scheduledAt, recurringID
}

func (s *Store) insertJob(ctx context.Context, j *job.Job) error {
	cp := j.Clone()
	cp.Version = j.Version + 1
	data, err := s.mapper.MarshalJob(cp)
	if err != nil {
		return err
	}
	scheduledAt, recurringID := jobRow(cp)

	query, args, err := s.builder().
		Insert(s.table("jobs")).
		Columns("id", "version", "state", "job_signature", "updated_at",
			"scheduled_at", "recurring_job_id", "job_as_json").
		Values(cp.ID.String(), cp.Version, string(cp.State()), cp.Details.Signature(),
			storage.ToMicroSeconds(cp.UpdatedAt), scheduledAt, recurringID, data).
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build insert job", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if s.dialect.IsDuplicateKey != nil && s.dialect.IsDuplicateKey(err) {
			return storage.NewConcurrentJobModification(j)
		}
		return storage.Transient("sql: insert job", err)
	}
	j.Version = cp.Version
	return nil
}

func (s *Store) updateJob(ctx context.Context, j *job.Job) error {
	cp := j.Clone()
	cp.Version = j.Version + 1
	data, err := s.mapper.MarshalJob(cp)
	if err != nil {
		return err
	}
	scheduledAt, recurringID := jobRow(cp)

	query, args, err := s.builder().
		Update(s.table("jobs")).
		Set("version", cp.Version).
		Set("state", string(cp.State())).
		Set("job_signature", cp.Details.Signature()).
		Set("updated_at", storage.ToMicroSeconds(cp.UpdatedAt)).
		Set("scheduled_at", scheduledAt).
		Set("recurring_job_id", recurringID).
		Set("job_as_json", data).
		Where(sq.Eq{"id": j.ID.String(), "version": j.Version}).
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build update job", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Transient("sql: update job", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Transient("sql: update job", err)
	}
	if affected == 0 {
		return storage.NewConcurrentJobModification(j)
	}
	j.Version = cp.Version
	return nil
}

// GetJobByID retrieves a job by id.
func (s *Store) GetJobByID(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	query, args, err := s.builder().
		Select("job_as_json").
		From(s.table("jobs")).
		Where(sq.Eq{"id": jobID.String()}).
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build get job", err)
	}

	var data []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, dbsql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", hoist.ErrJobNotFound, jobID)
		}
		return nil, storage.Transient("sql: get job", err)
	}
	return s.mapper.UnmarshalJob(data)
}

// DeleteJobPermanently removes the job row; the derived columns go with it.
func (s *Store) DeleteJobPermanently(ctx context.Context, jobID id.JobID) (int, error) {
	query, args, err := s.builder().
		Delete(s.table("jobs")).
		Where(sq.Eq{"id": jobID.String()}).
		ToSql()
	if err != nil {
		return 0, storage.Fatal("sql: build delete job", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Transient("sql: delete job", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Transient("sql: delete job", err)
	}
	s.JobStatsChangedIf(affected > 0)
	return int(affected), nil
}

func (s *Store) queryJobs(ctx context.Context, q sq.SelectBuilder) ([]*job.Job, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build job query", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Transient("sql: query jobs", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storage.Transient("sql: scan job", err)
		}
		j, err := s.mapper.UnmarshalJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Transient("sql: iterate jobs", err)
	}
	return jobs, nil
}

func orderClause(page job.PageRequest) string {
	if page.Order == job.OrderUpdatedAtDesc {
		return "updated_at DESC"
	}
	return "updated_at ASC"
}

// GetJobs returns one page of jobs in the given state.
func (s *Store) GetJobs(ctx context.Context, state job.State, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.queryJobs(ctx, s.builder().
		Select("job_as_json").
		From(s.table("jobs")).
		Where(sq.Eq{"state": string(state)}).
		OrderBy(orderClause(page)).
		Offset(uint64(page.Offset)).
		Limit(uint64(page.Limit)))
}

// GetJobsUpdatedBefore returns one page of jobs in the given state updated
// at or before the cutoff.
func (s *Store) GetJobsUpdatedBefore(ctx context.Context, state job.State, updatedBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.queryJobs(ctx, s.builder().
		Select("job_as_json").
		From(s.table("jobs")).
		Where(sq.Eq{"state": string(state)}).
		Where(sq.LtOrEq{"updated_at": storage.ToMicroSeconds(updatedBefore)}).
		OrderBy(orderClause(page)).
		Offset(uint64(page.Offset)).
		Limit(uint64(page.Limit)))
}

// GetScheduledJobs returns scheduled jobs firing at or before the cutoff,
// ordered by fire-at ascending.
func (s *Store) GetScheduledJobs(ctx context.Context, scheduledBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.queryJobs(ctx, s.builder().
		Select("job_as_json").
		From(s.table("jobs")).
		Where(sq.Eq{"state": string(job.StateScheduled)}).
		Where(sq.LtOrEq{"scheduled_at": storage.ToMicroSeconds(scheduledBefore)}).
		OrderBy("scheduled_at ASC").
		Offset(uint64(page.Offset)).
		Limit(uint64(page.Limit)))
}

// GetJobPage returns the total count for the state plus one page.
func (s *Store) GetJobPage(ctx context.Context, state job.State, page job.PageRequest) (*job.Page, error) {
	query, args, err := s.builder().
		Select("COUNT(*)").
		From(s.table("jobs")).
		Where(sq.Eq{"state": string(state)}).
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build job count", err)
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, storage.Transient("sql: count jobs", err)
	}

	items := []*job.Job{}
	if total > 0 {
		items, err = s.GetJobs(ctx, state, page)
		if err != nil {
			return nil, err
		}
	}
	return &job.Page{Total: total, Items: items, Offset: page.Offset, Limit: page.Limit}, nil
}

// DeleteJobsPermanently removes jobs in the state updated at or before the
// cutoff. One conditional DELETE is both atomic and restartable.
func (s *Store) DeleteJobsPermanently(ctx context.Context, state job.State, updatedBefore time.Time) (int, error) {
	query, args, err := s.builder().
		Delete(s.table("jobs")).
		Where(sq.Eq{"state": string(state)}).
		Where(sq.LtOrEq{"updated_at": storage.ToMicroSeconds(updatedBefore)}).
		ToSql()
	if err != nil {
		return 0, storage.Fatal("sql: build bulk delete", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Transient("sql: bulk delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Transient("sql: bulk delete", err)
	}
	s.JobStatsChangedIf(affected > 0)
	return int(affected), nil
}

// GetDistinctJobSignatures returns the union of signatures across states.
func (s *Store) GetDistinctJobSignatures(ctx context.Context, states ...job.State) ([]string, error) {
	query, args, err := s.builder().
		Select("DISTINCT job_signature").
		From(s.table("jobs")).
		Where(sq.Eq{"state": stateStrings(states)}).
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build distinct signatures", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Transient("sql: distinct signatures", err)
	}
	defer rows.Close()

	var sigs []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, storage.Transient("sql: scan signature", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Transient("sql: iterate signatures", err)
	}
	return sigs, nil
}

// JobExists reports whether any job with the given details is in one of the
// given states.
func (s *Store) JobExists(ctx context.Context, details job.Details, states ...job.State) (bool, error) {
	query, args, err := s.builder().
		Select("1").
		From(s.table("jobs")).
		Where(sq.Eq{"job_signature": details.Signature()}).
		Where(sq.Eq{"state": stateStrings(states)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, storage.Fatal("sql: build job exists", err)
	}
	var one int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&one); err != nil {
		if errors.Is(err, dbsql.ErrNoRows) {
			return false, nil
		}
		return false, storage.Transient("sql: job exists", err)
	}
	return true, nil
}

func stateStrings(states []job.State) []string {
	out := make([]string, len(states))
	for i, st := range states {
		out[i] = string(st)
	}
	return out
}
