package redis

import "github.com/hoistq/hoist/job"

// defaultPrefix namespaces every key so one Redis can host several
// applications.
const defaultPrefix = "hoist"

// keys builds the key families. Sorted-set scores are always
// microseconds-since-epoch.
type keys struct {
	prefix string
}

func (k keys) job(id string) string        { return k.prefix + ":job:" + id }
func (k keys) jobVersion(id string) string { return k.prefix + ":jobversion:" + id }

// queue is the per-state sorted set scored by UpdatedAt.
func (k keys) queue(state job.State) string { return k.prefix + ":queue:" + string(state) }

// scheduled is the sorted set of SCHEDULED job ids scored by fire-at.
func (k keys) scheduled() string { return k.prefix + ":scheduled" }

// jobDetails is the per-state set of dedupe signatures.
func (k keys) jobDetails(state job.State) string { return k.prefix + ":jobdetails:" + string(state) }

func (k keys) recurringJobs() string         { return k.prefix + ":recurringjobs" }
func (k keys) recurringJob(id string) string { return k.prefix + ":recurringjob:" + id }

// recurringJobState is the per-state set of recurring-job ids represented by
// at least one job in that state.
func (k keys) recurringJobState(state job.State) string {
	return k.prefix + ":recurringjob:" + string(state)
}

func (k keys) metadata(id string) string { return k.prefix + ":metadata:" + id }
func (k keys) metadatas() string         { return k.prefix + ":metadatas" }

func (k keys) server(id string) string { return k.prefix + ":backgroundjobserver:" + id }
func (k keys) serversCreated() string  { return k.prefix + ":backgroundjobservers:created" }
func (k keys) serversUpdated() string  { return k.prefix + ":backgroundjobservers:updated" }
