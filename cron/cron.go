// Package cron defines recurring job templates and their persistence
// contract. A recurring job spawns job instances on a cron schedule; its
// lifetime is independent of the jobs it spawns.
package cron

import (
	"fmt"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/job"
)

// parser accepts the classic five-field cron syntax plus descriptors like
// @hourly.
var parser = cronv3.NewParser(
	cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor,
)

// RecurringJob is a template that spawns job instances on a schedule.
// The ID is caller-supplied and stable across saves.
type RecurringJob struct {
	hoist.Entity

	ID       string      `json:"id" msgpack:"id"`
	Name     string      `json:"name,omitempty" msgpack:"name,omitempty"`
	Schedule string      `json:"schedule" msgpack:"schedule"`
	ZoneID   string      `json:"zone_id,omitempty" msgpack:"zone_id,omitempty"`
	Details  job.Details `json:"details" msgpack:"details"`
}

// New creates a recurring job template. The schedule is validated on Save.
func New(id, schedule string, details job.Details) *RecurringJob {
	return &RecurringJob{
		Entity:   hoist.NewEntity(),
		ID:       id,
		Schedule: schedule,
		Details:  details,
	}
}

// Validate checks the id, schedule expression, and zone.
func (r *RecurringJob) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: recurring job id must not be empty", hoist.ErrInvalidArgument)
	}
	if _, err := parser.Parse(r.Schedule); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", hoist.ErrInvalidArgument, r.Schedule, err)
	}
	if _, err := r.location(); err != nil {
		return fmt.Errorf("%w: zone %q: %v", hoist.ErrInvalidArgument, r.ZoneID, err)
	}
	return nil
}

// NextRun returns the first fire instant strictly after the given time,
// evaluated in the recurring job's zone.
func (r *RecurringJob) NextRun(after time.Time) (time.Time, error) {
	sched, err := parser.Parse(r.Schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: schedule %q: %v", hoist.ErrInvalidArgument, r.Schedule, err)
	}
	loc, err := r.location()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: zone %q: %v", hoist.ErrInvalidArgument, r.ZoneID, err)
	}
	return sched.Next(after.In(loc)).UTC(), nil
}

// ToScheduledJob instantiates the next job for this template, scheduled at
// the first fire instant after the given time.
func (r *RecurringJob) ToScheduledJob(after time.Time) (*job.Job, error) {
	at, err := r.NextRun(after)
	if err != nil {
		return nil, err
	}
	return job.NewScheduled(r.Details, at, r.ID), nil
}

func (r *RecurringJob) location() (*time.Location, error) {
	if r.ZoneID == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(r.ZoneID)
}

// Clone returns a deep copy.
func (r *RecurringJob) Clone() *RecurringJob {
	cp := *r
	if r.Details.Args != nil {
		cp.Details.Args = append([]string(nil), r.Details.Args...)
	}
	return &cp
}
