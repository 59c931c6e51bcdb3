package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hoistq/hoist/storage"
)

var _ storage.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithKeyPrefix overrides the default "hoist" key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keys = keys{prefix: prefix} }
}

// WithMapper sets the job serializer. Defaults to JSON.
func WithMapper(m storage.Mapper) Option {
	return func(s *Store) { s.mapper = m }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRateLimit sets the job-stats notification budget in events per second.
func WithRateLimit(eventsPerSecond float64) Option {
	return func(s *Store) { s.rateLimit = eventsPerSecond }
}

// Store implements storage.Store backed by Redis.
type Store struct {
	*storage.Notifier
	client    goredis.UniversalClient
	keys      keys
	mapper    storage.Mapper
	logger    *slog.Logger
	rateLimit float64
}

// New creates a Redis-backed store. The caller owns the client lifecycle;
// Close never closes it.
func New(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keys:      keys{prefix: defaultPrefix},
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

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close drops listeners. The caller owns the Redis client lifecycle.
func (s *Store) Close() error {
	s.Notifier.Close()
	return nil
}
