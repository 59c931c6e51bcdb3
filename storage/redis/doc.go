// Package redis implements storage.Store on Redis using go-redis/v9.
//
// Jobs are stored as serialized strings with a separate version key per job.
// The secondary indexes are Sorted Sets (state queues scored by UpdatedAt in
// microseconds, the scheduled set scored by fire-at) and plain Sets
// (signatures per state, recurring refs per state). Updates WATCH the
// version key, read and compare it, then commit the whole write-set in one
// MULTI/EXEC group; a clashing writer trips the watch and surfaces as a
// concurrent-modification conflict.
package redis
