package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/job"
	"github.com/hoistq/hoist/metadata"
	"github.com/hoistq/hoist/storage"
)

type metadataDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Owner     string `bson:"owner"`
	Value     string `bson:"value"`
	Counter   int64  `bson:"counter,omitempty"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
}

func docToMetadata(doc metadataDoc) *metadata.Metadata {
	m := &metadata.Metadata{
		Name:  doc.Name,
		Owner: doc.Owner,
		Value: doc.Value,
	}
	// The succeeded counter is held in a numeric field so $inc can maintain
	// it; surface it through Value like every other record.
	if doc.Value == "" && doc.Counter != 0 {
		m.Value = strconv.FormatInt(doc.Counter, 10)
	}
	m.CreatedAt = storage.FromMicroSeconds(doc.CreatedAt)
	m.UpdatedAt = storage.FromMicroSeconds(doc.UpdatedAt)
	return m
}

// SaveMetadata inserts or overwrites the record keyed by (name, owner).
func (s *Store) SaveMetadata(ctx context.Context, m *metadata.Metadata) error {
	cp := m.Clone()
	cp.Touch()
	doc := metadataDoc{
		ID:        cp.ID(),
		Name:      cp.Name,
		Owner:     cp.Owner,
		Value:     cp.Value,
		CreatedAt: storage.ToMicroSeconds(cp.CreatedAt),
		UpdatedAt: storage.ToMicroSeconds(cp.UpdatedAt),
	}
	_, err := s.metadata().ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return storage.Transient("mongo: save metadata", err)
	}
	s.MetadataChanged(m.Name)
	return nil
}

// GetMetadataByName returns every record with the given name, across owners.
func (s *Store) GetMetadataByName(ctx context.Context, name string) ([]*metadata.Metadata, error) {
	cur, err := s.metadata().Find(ctx, bson.M{"name": name},
		options.Find().SetSort(bson.D{{Key: "owner", Value: 1}}))
	if err != nil {
		return nil, storage.Transient("mongo: metadata by name", err)
	}
	defer cur.Close(ctx)

	var out []*metadata.Metadata
	for cur.Next(ctx) {
		var doc metadataDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storage.Transient("mongo: decode metadata", err)
		}
		out = append(out, docToMetadata(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, storage.Transient("mongo: iterate metadata", err)
	}
	return out, nil
}

// GetMetadata returns the record for (name, owner).
func (s *Store) GetMetadata(ctx context.Context, name, owner string) (*metadata.Metadata, error) {
	var doc metadataDoc
	err := s.metadata().FindOne(ctx, bson.M{"_id": metadata.ID(name, owner)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", hoist.ErrMetadataNotFound, metadata.ID(name, owner))
		}
		return nil, storage.Transient("mongo: get metadata", err)
	}
	return docToMetadata(doc), nil
}

// DeleteMetadata removes every record with the given name.
func (s *Store) DeleteMetadata(ctx context.Context, name string) error {
	res, err := s.metadata().DeleteMany(ctx, bson.M{"name": name})
	if err != nil {
		return storage.Transient("mongo: delete metadata", err)
	}
	if res.DeletedCount > 0 {
		s.MetadataChanged(name)
	}
	return nil
}

// PublishTotalAmountOfSucceededJobs atomically adds amount to the all-time
// succeeded counter via $inc, upserting on first use.
func (s *Store) PublishTotalAmountOfSucceededJobs(ctx context.Context, amount int) error {
	nowUs := storage.ToMicroSeconds(hoist.Now())
	_, err := s.metadata().UpdateOne(ctx,
		bson.M{"_id": metadata.ID(metadata.SucceededJobsCounterName, metadata.ClusterOwner)},
		bson.M{
			"$inc": bson.M{"counter": int64(amount)},
			"$set": bson.M{"updated_at": nowUs},
			"$setOnInsert": bson.M{
				"name":       metadata.SucceededJobsCounterName,
				"owner":      metadata.ClusterOwner,
				"created_at": nowUs,
			},
		},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return storage.Transient("mongo: publish succeeded", err)
	}
	return nil
}

// GetJobStats fans the per-state counts out concurrently and assembles one
// snapshot.
func (s *Store) GetJobStats(ctx context.Context) (*storage.JobStats, error) {
	stats := &storage.JobStats{At: time.Now().UTC()}
	counts := make(map[job.State]int64, len(job.States()))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range job.States() {
		g.Go(func() error {
			n, err := s.jobs().CountDocuments(gctx, bson.M{"state": string(st)})
			if err != nil {
				return err
			}
			mu.Lock()
			counts[st] = n
			mu.Unlock()
			return nil
		})
	}
	var recurringCount, serverCount int64
	g.Go(func() error {
		n, err := s.recurring().CountDocuments(gctx, bson.M{})
		recurringCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.servers().CountDocuments(gctx, bson.M{})
		serverCount = n
		return err
	})
	var succeededAll int64
	g.Go(func() error {
		var doc metadataDoc
		err := s.metadata().FindOne(gctx,
			bson.M{"_id": metadata.ID(metadata.SucceededJobsCounterName, metadata.ClusterOwner)},
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongod.ErrNoDocuments) {
				return nil
			}
			return err
		}
		succeededAll = doc.Counter
		if succeededAll == 0 && doc.Value != "" {
			succeededAll, _ = strconv.ParseInt(doc.Value, 10, 64)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, storage.Transient("mongo: job stats", err)
	}

	stats.Awaiting = counts[job.StateAwaiting]
	stats.Scheduled = counts[job.StateScheduled]
	stats.Enqueued = counts[job.StateEnqueued]
	stats.Processing = counts[job.StateProcessing]
	stats.Succeeded = counts[job.StateSucceeded]
	stats.Failed = counts[job.StateFailed]
	stats.Deleted = counts[job.StateDeleted]
	stats.AllTimeSucceeded = succeededAll
	stats.RecurringJobs = int(recurringCount)
	stats.BackgroundJobServers = int(serverCount)
	stats.Sum()
	return stats, nil
}
