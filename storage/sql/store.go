package sql

import (
	"context"
	dbsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/storage"
)

// defaultPrefix namespaces every table and the stats view.
const defaultPrefix = "hoist_"

var _ storage.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithTablePrefix overrides the default "hoist_" table prefix.
func WithTablePrefix(prefix string) Option {
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

// WithDatabaseOptions controls what Migrate does with the schema.
func WithDatabaseOptions(o storage.DatabaseOptions) Option {
	return func(s *Store) { s.dbOpts = o }
}

// WithRateLimit sets the job-stats notification budget in events per second.
func WithRateLimit(eventsPerSecond float64) Option {
	return func(s *Store) { s.rateLimit = eventsPerSecond }
}

// Store implements storage.Store over database/sql with a composed Dialect.
type Store struct {
	*storage.Notifier
	db        *dbsql.DB
	dialect   Dialect
	prefix    string
	mapper    storage.Mapper
	logger    *slog.Logger
	dbOpts    storage.DatabaseOptions
	rateLimit float64
}

// New creates a SQL-backed store. The Store takes ownership of db and
// closes it on Close.
func New(db *dbsql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:        db,
		dialect:   dialect,
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

// DB returns the underlying database handle.
func (s *Store) DB() *dbsql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close drops listeners and closes the database handle.
func (s *Store) Close() error {
	s.Notifier.Close()
	return s.db.Close()
}

// table resolves a logical table name against the configured prefix.
func (s *Store) table(name string) string { return s.prefix + name }

// builder returns a statement builder bound to the dialect's placeholders.
func (s *Store) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.dialect.Placeholder)
}

// expand substitutes the {prefix} token in a DDL or raw SQL template.
func (s *Store) expand(template string) string {
	return strings.ReplaceAll(template, "{prefix}", s.prefix)
}

// Migrate prepares the schema per the configured DatabaseOptions.
func (s *Store) Migrate(ctx context.Context) error {
	switch s.dbOpts {
	case storage.DatabaseSkipCreate:
		return nil
	case storage.DatabaseValidate:
		return s.validateSchema(ctx)
	}
	return s.createSchema(ctx)
}

func (s *Store) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.expand(`
		CREATE TABLE IF NOT EXISTS {prefix}migrations (
			id TEXT PRIMARY KEY,
			script TEXT NOT NULL,
			installed_at BIGINT NOT NULL
		)`))
	if err != nil {
		return storage.Fatal("sql: create migrations table", err)
	}

	for _, m := range s.dialect.Migrations {
		var applied bool
		query, args, qErr := s.builder().
			Select("COUNT(*) > 0").
			From(s.table("migrations")).
			Where(sq.Eq{"id": m.Name}).
			ToSql()
		if qErr != nil {
			return storage.Fatal("sql: build migration check", qErr)
		}
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&applied); err != nil {
			return storage.Fatal("sql: check migration "+m.Name, err)
		}
		if applied {
			continue
		}

		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("%w: %s: %w", hoist.ErrMigrationFailed, m.Name, err)
		}
		s.logger.Info("applied migration", "dialect", s.dialect.Name, "migration", m.Name)
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, s.expand(stmt)); err != nil {
			return err
		}
	}

	query, args, err := s.builder().
		Insert(s.table("migrations")).
		Columns("id", "script", "installed_at").
		Values(m.Name, strings.Join(m.Statements, ";\n"), storage.ToMicroSeconds(hoist.Now())).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return tx.Commit()
}

// validateSchema fails fast when any table or the stats view is missing.
func (s *Store) validateSchema(ctx context.Context) error {
	relations := []string{
		s.table("jobs"),
		s.table("recurring_jobs"),
		s.table("background_job_servers"),
		s.table("metadata"),
		s.table("migrations"),
		s.table("jobs_stats"),
	}
	for _, rel := range relations {
		var one int
		query := "SELECT 1 FROM " + rel + " LIMIT 1"
		err := s.db.QueryRowContext(ctx, query).Scan(&one)
		if err != nil && !errors.Is(err, dbsql.ErrNoRows) {
			return storage.Fatal("sql: validate schema", fmt.Errorf("relation %s: %w", rel, err))
		}
	}
	return nil
}
