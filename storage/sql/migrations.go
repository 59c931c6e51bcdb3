package sql

import "strings"

// TypeSet carries the column types that differ between dialects. Everything
// else in the schema is ANSI enough to share.
type TypeSet struct {
	// Blob holds serialized job payloads (BYTEA, BLOB).
	Blob string
	// Float holds CPU-load telemetry (DOUBLE PRECISION, REAL).
	Float string
	// Bool holds the server running flag (BOOLEAN, INTEGER).
	Bool string
}

// BaseMigrations builds the shared schema for a dialect's type set: the four
// tables, their indexes, and the per-state stats view. Dialects append their
// own migrations after these when they need more.
func BaseMigrations(types TypeSet) []Migration {
	expand := func(stmt string) string {
		stmt = strings.ReplaceAll(stmt, "{blob}", types.Blob)
		stmt = strings.ReplaceAll(stmt, "{float}", types.Float)
		stmt = strings.ReplaceAll(stmt, "{bool}", types.Bool)
		return stmt
	}

	migrations := []Migration{
		{
			Name: "001_create_jobs",
			Statements: []string{
				`CREATE TABLE {prefix}jobs (
					id               TEXT PRIMARY KEY,
					version          INTEGER NOT NULL,
					state            TEXT NOT NULL,
					job_signature    TEXT NOT NULL,
					updated_at       BIGINT NOT NULL,
					scheduled_at     BIGINT,
					recurring_job_id TEXT,
					job_as_json      {blob} NOT NULL
				)`,
				`CREATE INDEX {prefix}jobs_state_updated_at ON {prefix}jobs (state, updated_at)`,
				`CREATE INDEX {prefix}jobs_state_scheduled_at ON {prefix}jobs (state, scheduled_at)`,
				`CREATE INDEX {prefix}jobs_recurring_job_id ON {prefix}jobs (recurring_job_id, state)`,
				`CREATE INDEX {prefix}jobs_signature ON {prefix}jobs (job_signature, state)`,
			},
		},
		{
			Name: "002_create_recurring_jobs",
			Statements: []string{
				`CREATE TABLE {prefix}recurring_jobs (
					id          TEXT PRIMARY KEY,
					job_as_json {blob} NOT NULL,
					created_at  BIGINT NOT NULL
				)`,
			},
		},
		{
			Name: "003_create_background_job_servers",
			Statements: []string{
				`CREATE TABLE {prefix}background_job_servers (
					id                       TEXT PRIMARY KEY,
					worker_pool_size         INTEGER NOT NULL,
					poll_interval            BIGINT NOT NULL,
					first_heartbeat          BIGINT NOT NULL,
					last_heartbeat           BIGINT NOT NULL,
					running                  {bool} NOT NULL,
					system_total_memory      BIGINT NOT NULL,
					system_free_memory       BIGINT NOT NULL,
					system_cpu_load          {float} NOT NULL,
					process_max_memory       BIGINT NOT NULL,
					process_free_memory      BIGINT NOT NULL,
					process_allocated_memory BIGINT NOT NULL,
					process_cpu_load         {float} NOT NULL
				)`,
				`CREATE INDEX {prefix}servers_first_heartbeat ON {prefix}background_job_servers (first_heartbeat)`,
				`CREATE INDEX {prefix}servers_last_heartbeat ON {prefix}background_job_servers (last_heartbeat)`,
			},
		},
		{
			Name: "004_create_metadata",
			Statements: []string{
				`CREATE TABLE {prefix}metadata (
					name       TEXT NOT NULL,
					owner      TEXT NOT NULL,
					value      TEXT NOT NULL,
					created_at BIGINT NOT NULL,
					updated_at BIGINT NOT NULL,
					PRIMARY KEY (name, owner)
				)`,
			},
		},
		{
			Name: "005_create_jobs_stats_view",
			Statements: []string{
				`CREATE VIEW {prefix}jobs_stats AS
				SELECT
					COALESCE(SUM(CASE WHEN state = 'AWAITING'   THEN 1 ELSE 0 END), 0) AS awaiting,
					COALESCE(SUM(CASE WHEN state = 'SCHEDULED'  THEN 1 ELSE 0 END), 0) AS scheduled,
					COALESCE(SUM(CASE WHEN state = 'ENQUEUED'   THEN 1 ELSE 0 END), 0) AS enqueued,
					COALESCE(SUM(CASE WHEN state = 'PROCESSING' THEN 1 ELSE 0 END), 0) AS processing,
					COALESCE(SUM(CASE WHEN state = 'SUCCEEDED'  THEN 1 ELSE 0 END), 0) AS succeeded,
					COALESCE(SUM(CASE WHEN state = 'FAILED'     THEN 1 ELSE 0 END), 0) AS failed,
					COALESCE(SUM(CASE WHEN state = 'DELETED'    THEN 1 ELSE 0 END), 0) AS deleted
				FROM {prefix}jobs`,
			},
		},
	}

	for i := range migrations {
		for k := range migrations[i].Statements {
			migrations[i].Statements[k] = expand(migrations[i].Statements[k])
		}
	}
	return migrations
}
