// Package mongo implements storage.Store on MongoDB using the official v2
// driver.
//
// Jobs are one document each: the serialized record plus the derived fields
// (state, version, updated_at, scheduled_at, recurring_job_id,
// job_signature) the queries index on. The atomic group for an update is a
// single document-level conditional update filtered on (_id, version), so
// the optimistic protocol needs no multi-document transaction.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hoistq/hoist/storage"
)

// defaultPrefix namespaces the collections.
const defaultPrefix = "hoist_"

var _ storage.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithCollectionPrefix overrides the default "hoist_" collection prefix.
func WithCollectionPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithMapper sets the job serializer. Defaults to JSON.
func WithMapper(m storage.Mapper) Option {
	return func(s *Store) { s.mapper = m }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDatabaseOptions controls what Migrate does with collections and
// indexes.
func WithDatabaseOptions(o storage.DatabaseOptions) Option {
	return func(s *Store) { s.dbOpts = o }
}

// WithRateLimit sets the job-stats notification budget in events per second.
func WithRateLimit(eventsPerSecond float64) Option {
	return func(s *Store) { s.rateLimit = eventsPerSecond }
}

// Store implements storage.Store backed by MongoDB.
type Store struct {
	*storage.Notifier
	db        *mongod.Database
	prefix    string
	mapper    storage.Mapper
	logger    *slog.Logger
	dbOpts    storage.DatabaseOptions
	rateLimit float64
}

// New creates a MongoDB-backed store. The caller owns the client lifecycle;
// Close never disconnects it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:        db,
		prefix:    defaultPrefix,
		mapper:    storage.JSONMapper{},
		logger:    slog.Default(),
		rateLimit: 1,
	}
	for _, o := range opts {
		o(s)
	}
	s.Notifier = storage.NewNotifier(s.GetJobStats,
		storage.WithRateLimit(s.rateLimit),
		storage.WithNotifierLogger(s.logger),
	)
	return s
}

func (s *Store) jobs() *mongod.Collection      { return s.db.Collection(s.prefix + "jobs") }
func (s *Store) recurring() *mongod.Collection { return s.db.Collection(s.prefix + "recurring_jobs") }
func (s *Store) servers() *mongod.Collection {
	return s.db.Collection(s.prefix + "background_job_servers")
}
func (s *Store) metadata() *mongod.Collection { return s.db.Collection(s.prefix + "metadata") }

// Migrate prepares collections and indexes per the configured
// DatabaseOptions.
func (s *Store) Migrate(ctx context.Context) error {
	switch s.dbOpts {
	case storage.DatabaseSkipCreate:
		return nil
	case storage.DatabaseValidate:
		return s.validateCollections(ctx)
	}
	return s.createIndexes(ctx)
}

func (s *Store) createIndexes(ctx context.Context) error {
	jobIndexes := []mongod.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "recurring_job_id", Value: 1}, {Key: "state", Value: 1}}},
		{Keys: bson.D{{Key: "job_signature", Value: 1}, {Key: "state", Value: 1}}},
	}
	if _, err := s.jobs().Indexes().CreateMany(ctx, jobIndexes); err != nil {
		return storage.Fatal("mongo: create job indexes", err)
	}

	serverIndexes := []mongod.IndexModel{
		{Keys: bson.D{{Key: "first_heartbeat", Value: 1}}},
		{Keys: bson.D{{Key: "last_heartbeat", Value: 1}}},
	}
	if _, err := s.servers().Indexes().CreateMany(ctx, serverIndexes); err != nil {
		return storage.Fatal("mongo: create server indexes", err)
	}

	metaIndexes := []mongod.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}
	if _, err := s.metadata().Indexes().CreateMany(ctx, metaIndexes); err != nil {
		return storage.Fatal("mongo: create metadata indexes", err)
	}
	return nil
}

func (s *Store) validateCollections(ctx context.Context) error {
	names, err := s.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return storage.Fatal("mongo: list collections", err)
	}
	present := make(map[string]struct{}, len(names))
	for _, n := range names {
		present[n] = struct{}{}
	}
	for _, required := range []string{s.prefix + "jobs"} {
		if _, ok := present[required]; !ok {
			return storage.Fatal("mongo: validate schema",
				fmt.Errorf("collection %s missing", required))
		}
	}
	return nil
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close drops listeners. The caller owns the Mongo client lifecycle.
func (s *Store) Close() error {
	s.Notifier.Close()
	return nil
}
