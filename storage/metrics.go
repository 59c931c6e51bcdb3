package storage

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// statsScrapeTimeout bounds the stats fetch done for one scrape.
const statsScrapeTimeout = 5 * time.Second

// StatsCollector exposes job statistics as Prometheus metrics. Register it
// with a prometheus.Registerer; each scrape performs one GetJobStats call.
type StatsCollector struct {
	stats StatsStore

	jobs          *prometheus.Desc
	succeededAll  *prometheus.Desc
	recurringJobs *prometheus.Desc
	servers       *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

// NewStatsCollector creates a collector over the given stats source.
func NewStatsCollector(stats StatsStore) *StatsCollector {
	return &StatsCollector{
		stats: stats,
		jobs: prometheus.NewDesc(
			"hoist_jobs",
			"Number of jobs currently in each state.",
			[]string{"state"}, nil,
		),
		succeededAll: prometheus.NewDesc(
			"hoist_jobs_succeeded_total",
			"All-time number of succeeded jobs, including jobs since deleted.",
			nil, nil,
		),
		recurringJobs: prometheus.NewDesc(
			"hoist_recurring_jobs",
			"Number of recurring job templates.",
			nil, nil,
		),
		servers: prometheus.NewDesc(
			"hoist_background_job_servers",
			"Number of live background job servers.",
			nil, nil,
		),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.succeededAll
	ch <- c.recurringJobs
	ch <- c.servers
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), statsScrapeTimeout)
	defer cancel()

	st, err := c.stats.GetJobStats(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.jobs, err)
		return
	}

	perState := map[string]int64{
		"awaiting":   st.Awaiting,
		"scheduled":  st.Scheduled,
		"enqueued":   st.Enqueued,
		"processing": st.Processing,
		"succeeded":  st.Succeeded,
		"failed":     st.Failed,
		"deleted":    st.Deleted,
	}
	for state, count := range perState {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(count), state)
	}
	ch <- prometheus.MustNewConstMetric(c.succeededAll, prometheus.CounterValue, float64(st.AllTimeSucceeded))
	ch <- prometheus.MustNewConstMetric(c.recurringJobs, prometheus.GaugeValue, float64(st.RecurringJobs))
	ch <- prometheus.MustNewConstMetric(c.servers, prometheus.GaugeValue, float64(st.BackgroundJobServers))
}
