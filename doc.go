// Package hoist is the persistence and coordination core of a distributed
// background-job processing engine.
//
// Application code enqueues jobs that are executed reliably across a fleet of
// worker processes sharing a common backing store. This module provides the
// storage contract those processes program against, together with the
// optimistic concurrency protocol, the secondary-index maintenance, and the
// server-liveness bookkeeping that let many processes safely compete for and
// mutate shared job state.
//
// # Subsystems
//
// Each subsystem defines its own model and persistence contract:
//
//   - job — the Job record, its state machine and history, paging, dedupe
//     signatures, and job.Store
//   - cron — recurring job templates and cron.Store
//   - server — background-job-server liveness and server.Store
//   - metadata — named key/value records and metadata.Store
//   - storage — the composite storage.Store interface, the index write-set
//     derivation, concurrency arbitration, change notifications, and stats
//
// # Backends
//
//   - storage/memory — in-memory store for development and testing
//   - storage/redis — Redis backend using go-redis/v9
//   - storage/sql — generic SQL backend; dialects in storage/sql/postgres
//     and storage/sql/sqlite
//   - storage/mongo — MongoDB backend using the official v2 driver
//
// # Concurrency
//
// Every job carries a version counter that increments by exactly one on each
// committed mutation. Writers that lose the race observe a
// storage.ConcurrentJobModificationError carrying the conflicting jobs so
// they can refresh and reapply. One storage call is one backend atomic group:
// either all primary, index, and version writes commit, or none do.
package hoist
