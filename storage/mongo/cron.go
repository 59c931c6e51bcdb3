package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/storage"
)

type recurringDoc struct {
	ID        string `bson:"_id"`
	JobAsJSON []byte `bson:"job_as_json"`
	CreatedAt int64  `bson:"created_at"`
}

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

	doc := recurringDoc{
		ID:        cp.ID,
		JobAsJSON: data,
		CreatedAt: storage.ToMicroSeconds(cp.CreatedAt),
	}
	_, err = s.recurring().ReplaceOne(ctx,
		bson.M{"_id": cp.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return storage.Transient("mongo: save recurring job", err)
	}
	return nil
}

// GetRecurringJobs returns all templates ordered by creation time.
func (s *Store) GetRecurringJobs(ctx context.Context) ([]*cron.RecurringJob, error) {
	cur, err := s.recurring().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, storage.Transient("mongo: list recurring jobs", err)
	}
	defer cur.Close(ctx)

	var out []*cron.RecurringJob
	for cur.Next(ctx) {
		var doc recurringDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storage.Transient("mongo: decode recurring job", err)
		}
		r, err := s.mapper.UnmarshalRecurringJob(doc.JobAsJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, storage.Transient("mongo: iterate recurring jobs", err)
	}
	return out, nil
}

// DeleteRecurringJob removes the template by id.
func (s *Store) DeleteRecurringJob(ctx context.Context, rid string) (int, error) {
	res, err := s.recurring().DeleteOne(ctx, bson.M{"_id": rid})
	if err != nil {
		return 0, storage.Transient("mongo: delete recurring job", err)
	}
	return int(res.DeletedCount), nil
}

// RecurringJobExists reports whether a job spawned from the template is in
// one of the given states, via the recurring_job_id field.
func (s *Store) RecurringJobExists(ctx context.Context, rid string, states ...job.State) (bool, error) {
	err := s.jobs().FindOne(ctx, bson.M{
		"recurring_job_id": rid,
		"state":            bson.M{"$in": stateStrings(states)},
	}).Err()
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return false, nil
		}
		return false, storage.Transient("mongo: recurring job exists", err)
	}
	return true, nil
}
