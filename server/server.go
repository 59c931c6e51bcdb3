// Package server defines the background-job-server liveness records and
// their persistence contract.
//
// Each worker process announces itself once at startup, then heartbeats on
// its poll interval. The registry elects a nominal leader — the
// longest-running live server — which callers use as a unique actor for
// cluster-wide duties such as metadata cleanup and scheduled-job dispatch.
package server

import (
	"time"

	"github.com/hoistq/hoist/id"
)

// Status is the liveness record for one background job server process.
type Status struct {
	ID             id.ServerID   `json:"id"`
	WorkerPoolSize int           `json:"worker_pool_size"`
	PollInterval   time.Duration `json:"poll_interval"`
	FirstHeartbeat time.Time     `json:"first_heartbeat"`
	LastHeartbeat  time.Time     `json:"last_heartbeat"`
	Running        bool          `json:"running"`

	// Resource telemetry, refreshed on every heartbeat.
	SystemTotalMemory      int64   `json:"system_total_memory"`
	SystemFreeMemory       int64   `json:"system_free_memory"`
	SystemCPULoad          float64 `json:"system_cpu_load"`
	ProcessMaxMemory       int64   `json:"process_max_memory"`
	ProcessFreeMemory      int64   `json:"process_free_memory"`
	ProcessAllocatedMemory int64   `json:"process_allocated_memory"`
	ProcessCPULoad         float64 `json:"process_cpu_load"`
}

// New creates a Status for a freshly started server process.
func New(workerPoolSize int, pollInterval time.Duration) *Status {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Status{
		ID:             id.NewServerID(),
		WorkerPoolSize: workerPoolSize,
		PollInterval:   pollInterval,
		FirstHeartbeat: now,
		LastHeartbeat:  now,
		Running:        true,
	}
}

// Clone returns a copy.
func (s *Status) Clone() *Status {
	cp := *s
	return &cp
}
