// Package sql implements storage.Store on relational databases through
// database/sql.
//
// The backend is generic: everything dialect-specific — DDL, placeholder
// format, duplicate-key detection — lives in a [Dialect] descriptor composed
// into the store. The storage/sql/postgres and storage/sql/sqlite packages
// wire concrete drivers and dialects.
//
// The secondary indexes of the core data model are realized as indexed
// columns (state, updated_at, scheduled_at, recurring_job_id,
// job_signature), so every job mutation is a single conditional statement:
// the UPDATE guarded by the stored version is the whole atomic group.
// Timestamps are stored as microseconds-since-epoch integers so ordering
// matches the other backends exactly.
package sql
