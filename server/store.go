package server

import (
	"context"
	"time"

	"github.com/hoistq/hoist/id"
)

// Store defines the persistence contract for the server registry.
type Store interface {
	// Announce inserts or overwrites the server record and both liveness
	// indexes. Idempotent across restarts with the same id.
	Announce(ctx context.Context, status *Status) error

	// SignalAlive atomically refreshes the heartbeat and telemetry fields
	// and returns the server's stored running flag, so the caller can react
	// to being stopped remotely. Fails with hoist.ErrServerTimedOut when the
	// record no longer exists — typically because it was garbage-collected
	// for a stale heartbeat.
	SignalAlive(ctx context.Context, status *Status) (running bool, err error)

	// SignalStopped removes the server record and its index entries.
	SignalStopped(ctx context.Context, serverID id.ServerID) error

	// GetServers returns all servers ordered by first heartbeat ascending.
	GetServers(ctx context.Context) ([]*Status, error)

	// GetLongestRunning returns the id of the earliest-announced live
	// server, or hoist.ErrNoServers when the registry is empty.
	GetLongestRunning(ctx context.Context) (id.ServerID, error)

	// RemoveTimedOut deletes every server whose last heartbeat is at or
	// before the cutoff, returning the count removed. Removal is
	// transactional per server.
	RemoveTimedOut(ctx context.Context, heartbeatOlderThan time.Time) (int, error)
}
