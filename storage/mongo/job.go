package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
)

// jobDoc is the persisted job document: the opaque serialized record plus
// the derived fields the queries filter and sort on.
type jobDoc struct {
	ID             string `bson:"_id"`
	Version        int    `bson:"version"`
	State          string `bson:"state"`
	Signature      string `bson:"job_signature"`
	UpdatedAt      int64  `bson:"updated_at"`
	ScheduledAt    *int64 `bson:"scheduled_at,omitempty"`
	RecurringJobID string `bson:"recurring_job_id,omitempty"`
	JobAsJSON      []byte `bson:"job_as_json"`
}

func (s *Store) jobToDoc(j *job.Job) (*jobDoc, error) {
	data, err := s.mapper.MarshalJob(j)
	if err != nil {
		return nil, err
	}
	doc := &jobDoc{
		ID:             j.ID.String(),
		Version:        j.Version,
		State:          string(j.State()),
		Signature:      j.Details.Signature(),
		UpdatedAt:      storage.ToMicroSeconds(j.UpdatedAt),
		RecurringJobID: j.RecurringJobID(),
		JobAsJSON:      data,
	}
	if at, ok := j.ScheduledAt(); ok {
		us := storage.ToMicroSeconds(at)
		doc.ScheduledAt = &us
	}
	return doc, nil
}

// SaveJob inserts or optimistically updates one job.
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

func (s *Store) insertJob(ctx context.Context, j *job.Job) error {
	cp := j.Clone()
	cp.Version = j.Version + 1
	doc, err := s.jobToDoc(cp)
	if err != nil {
		return err
	}
	if _, err := s.jobs().InsertOne(ctx, doc); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return storage.NewConcurrentJobModification(j)
		}
		return storage.Transient("mongo: insert job", err)
	}
	j.Version = cp.Version
	return nil
}

// updateJob replaces the document through a conditional filter on
// (_id, version); a concurrent commit empties the match and surfaces as a
// conflict.
func (s *Store) updateJob(ctx context.Context, j *job.Job) error {
	cp := j.Clone()
	cp.Version = j.Version + 1
	doc, err := s.jobToDoc(cp)
	if err != nil {
		return err
	}

	res, err := s.jobs().ReplaceOne(ctx,
		bson.M{"_id": j.ID.String(), "version": j.Version},
		doc,
	)
	if err != nil {
		return storage.Transient("mongo: update job", err)
	}
	if res.MatchedCount == 0 {
		return storage.NewConcurrentJobModification(j)
	}
	j.Version = cp.Version
	return nil
}

// GetJobByID retrieves a job by id.
func (s *Store) GetJobByID(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var doc jobDoc
	err := s.jobs().FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", hoist.ErrJobNotFound, jobID)
		}
		return nil, storage.Transient("mongo: get job", err)
	}
	return s.mapper.UnmarshalJob(doc.JobAsJSON)
}

// DeleteJobPermanently removes the job document; the derived fields go with
// it.
func (s *Store) DeleteJobPermanently(ctx context.Context, jobID id.JobID) (int, error) {
	res, err := s.jobs().DeleteOne(ctx, bson.M{"_id": jobID.String()})
	if err != nil {
		return 0, storage.Transient("mongo: delete job", err)
	}
	s.JobStatsChangedIf(res.DeletedCount > 0)
	return int(res.DeletedCount), nil
}

// findJobs runs one batched query and decodes the payloads.
func (s *Store) findJobs(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*job.Job, error) {
	cur, err := s.jobs().Find(ctx, filter, opts)
	if err != nil {
		return nil, storage.Transient("mongo: find jobs", err)
	}
	defer cur.Close(ctx)

	var jobs []*job.Job
	for cur.Next(ctx) {
		var doc jobDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storage.Transient("mongo: decode job", err)
		}
		j, err := s.mapper.UnmarshalJob(doc.JobAsJSON)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := cur.Err(); err != nil {
		return nil, storage.Transient("mongo: iterate jobs", err)
	}
	return jobs, nil
}

func sortOrder(page job.PageRequest) int {
	if page.Order == job.OrderUpdatedAtDesc {
		return -1
	}
	return 1
}

// GetJobs returns one page of jobs in the given state.
func (s *Store) GetJobs(ctx context.Context, state job.State, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.findJobs(ctx,
		bson.M{"state": string(state)},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: sortOrder(page)}}).
			SetSkip(page.Offset).
			SetLimit(int64(page.Limit)))
}

// GetJobsUpdatedBefore returns one page of jobs in the given state updated
// at or before the cutoff.
func (s *Store) GetJobsUpdatedBefore(ctx context.Context, state job.State, updatedBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.findJobs(ctx,
		bson.M{
			"state":      string(state),
			"updated_at": bson.M{"$lte": storage.ToMicroSeconds(updatedBefore)},
		},
		options.Find().
			SetSort(bson.D{{Key: "updated_at", Value: sortOrder(page)}}).
			SetSkip(page.Offset).
			SetLimit(int64(page.Limit)))
}

// GetScheduledJobs returns scheduled jobs firing at or before the cutoff,
// ordered by fire-at ascending.
func (s *Store) GetScheduledJobs(ctx context.Context, scheduledBefore time.Time, page job.PageRequest) ([]*job.Job, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return s.findJobs(ctx,
		bson.M{
			"state":        string(job.StateScheduled),
			"scheduled_at": bson.M{"$lte": storage.ToMicroSeconds(scheduledBefore)},
		},
		options.Find().
			SetSort(bson.D{{Key: "scheduled_at", Value: 1}}).
			SetSkip(page.Offset).
			SetLimit(int64(page.Limit)))
}

// GetJobPage returns the total count for the state plus one page.
func (s *Store) GetJobPage(ctx context.Context, state job.State, page job.PageRequest) (*job.Page, error) {
	total, err := s.jobs().CountDocuments(ctx, bson.M{"state": string(state)})
	if err != nil {
		return nil, storage.Transient("mongo: count jobs", err)
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
// cutoff. One conditional DeleteMany is both atomic per document and
// restartable.
func (s *Store) DeleteJobsPermanently(ctx context.Context, state job.State, updatedBefore time.Time) (int, error) {
	res, err := s.jobs().DeleteMany(ctx, bson.M{
		"state":      string(state),
		"updated_at": bson.M{"$lte": storage.ToMicroSeconds(updatedBefore)},
	})
	if err != nil {
		return 0, storage.Transient("mongo: bulk delete", err)
	}
	s.JobStatsChangedIf(res.DeletedCount > 0)
	return int(res.DeletedCount), nil
}

// GetDistinctJobSignatures returns the union of signatures across states.
func (s *Store) GetDistinctJobSignatures(ctx context.Context, states ...job.State) ([]string, error) {
	res := s.jobs().Distinct(ctx, "job_signature", bson.M{
		"state": bson.M{"$in": stateStrings(states)},
	})
	var sigs []string
	if err := res.Decode(&sigs); err != nil {
		return nil, storage.Transient("mongo: distinct signatures", err)
	}
	return sigs, nil
}

// JobExists reports whether any job with the given details is in one of the
// given states.
func (s *Store) JobExists(ctx context.Context, details job.Details, states ...job.State) (bool, error) {
	err := s.jobs().FindOne(ctx, bson.M{
		"job_signature": details.Signature(),
		"state":         bson.M{"$in": stateStrings(states)},
	}).Err()
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return false, nil
		}
		return false, storage.Transient("mongo: job exists", err)
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
