// Package storage defines the aggregate persistence interface and the
// backend-agnostic machinery every backend shares.
//
// Each subsystem (job, cron, server, metadata) defines its own store
// interface; the composite [Store] composes them all plus stats, change
// notifications, and lifecycle. A single backend implements Store to satisfy
// every subsystem's persistence contract.
//
// # Available Backends
//
//   - storage/memory — in-memory store for development and testing
//   - storage/redis — Redis backend using go-redis/v9
//   - storage/sql — generic SQL backend with pluggable dialects;
//     storage/sql/postgres and storage/sql/sqlite wire the drivers
//   - storage/mongo — MongoDB backend using the official v2 driver
//
// # Atomicity
//
// One Store call is one backend atomic group: the primary write, the index
// deletions implied by the old snapshot, the index additions implied by the
// new snapshot, and the version-counter write commit together or not at all.
// [RewriteIndexes] and [RemoveAllIndexes] derive the index portion of that
// group as data; each backend lowers it to its strongest native mechanism
// (a single version-guarded SQL statement, MULTI/EXEC guarded by WATCH on
// the version key, or a document-level conditional update).
//
// # Optimistic concurrency
//
// Updates are arbitrated by version: read the stored version, compare with
// the caller's, commit at version+1 or fail with
// [ConcurrentJobModificationError]. Batch saves arbitrate each job
// independently and collect the full conflict set.
//
// # Change notifications
//
// Mutations that can affect job counts or metadata fan out to in-process
// listeners through a [Notifier]. Delivery is asynchronous — it never blocks
// or fails a storage operation. Job-stats deliveries are rate-limited and
// coalescing; metadata deliveries go out once per change, with no rate limit
// and no coalescing.
package storage
