package storage

import "time"

// JobStats is a point-in-time snapshot of job counts per state plus the
// cluster-level counters.
type JobStats struct {
	At time.Time `json:"at"`

	// Total sums the states a dashboard reports on: scheduled, enqueued,
	// processing, succeeded, and failed.
	Total int64 `json:"total"`

	Awaiting   int64 `json:"awaiting"`
	Scheduled  int64 `json:"scheduled"`
	Enqueued   int64 `json:"enqueued"`
	Processing int64 `json:"processing"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Deleted    int64 `json:"deleted"`

	// AllTimeSucceeded counts every job that ever succeeded, including jobs
	// since deleted. Maintained via PublishTotalAmountOfSucceededJobs.
	AllTimeSucceeded int64 `json:"all_time_succeeded"`

	RecurringJobs        int `json:"recurring_jobs"`
	BackgroundJobServers int `json:"background_job_servers"`
}

// Sum recomputes Total from the per-state counts.
func (s *JobStats) Sum() {
	s.Total = s.Scheduled + s.Enqueued + s.Processing + s.Succeeded + s.Failed
}
