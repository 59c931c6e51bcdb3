// Package metadata defines the named key/value records shared by the
// cluster. A record is owned by a named owner — a server id, or the literal
// "cluster" for cluster-wide values — and keyed by (name, owner).
package metadata

import (
	"github.com/hoistq/hoist"
)

// ClusterOwner is the owner of cluster-wide metadata records.
const ClusterOwner = "cluster"

// SucceededJobsCounterName is the record holding the all-time count of
// succeeded jobs. Its value is incremented atomically by
// PublishTotalAmountOfSucceededJobs; per-state stats only see jobs that
// still exist.
const SucceededJobsCounterName = "succeeded-jobs-counter"

// Metadata is one named key/value record.
type Metadata struct {
	hoist.Entity

	Name  string `json:"name"`
	Owner string `json:"owner"`
	Value string `json:"value"`
}

// New creates a record with both timestamps set to now.
func New(name, owner, value string) *Metadata {
	return &Metadata{Entity: hoist.NewEntity(), Name: name, Owner: owner, Value: value}
}

// ID returns the compound key in its canonical "name-owner" form.
func (m *Metadata) ID() string {
	return ID(m.Name, m.Owner)
}

// ID builds the canonical compound key for a (name, owner) pair.
func ID(name, owner string) string {
	return name + "-" + owner
}

// Clone returns a copy.
func (m *Metadata) Clone() *Metadata {
	cp := *m
	return &cp
}
