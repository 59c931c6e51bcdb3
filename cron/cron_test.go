package cron

import (
	"errors"
	"testing"
	"time"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/job"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	d := job.Details{Class: "sync", Method: "Run"}

	tests := []struct {
		name    string
		r       *RecurringJob
		wantErr bool
	}{
		{"five fields", New("nightly", "0 3 * * *", d), false},
		{"descriptor", New("hourly", "@hourly", d), false},
		{"with zone", &RecurringJob{ID: "zoned", Schedule: "0 9 * * 1-5", ZoneID: "Europe/Brussels", Details: d}, false},
		{"empty id", New("", "0 3 * * *", d), true},
		{"garbage schedule", New("bad", "not a schedule", d), true},
		{"too few fields", New("short", "3 * *", d), true},
		{"bad zone", &RecurringJob{ID: "z", Schedule: "* * * * *", ZoneID: "Mars/Olympus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.r.Validate()
			if tt.wantErr {
				if !errors.Is(err, hoist.ErrInvalidArgument) {
					t.Fatalf("err = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	t.Parallel()
	r := New("nightly", "0 3 * * *", job.Details{Class: "sync", Method: "Run"})

	after := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	next, err := r.NextRun(after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 8, 7, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextRunHonorsZone(t *testing.T) {
	t.Parallel()
	r := New("morning", "0 9 * * *", job.Details{Class: "sync", Method: "Run"})
	r.ZoneID = "Europe/Brussels"

	// 09:00 in Brussels during CEST is 07:00 UTC.
	after := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	next, err := r.NextRun(after)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 8, 6, 7, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestToScheduledJob(t *testing.T) {
	t.Parallel()
	d := job.Details{Class: "reports", Method: "Generate", Args: []string{"weekly"}}
	r := New("weekly-report", "0 6 * * 1", d)

	after := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC) // a Thursday
	j, err := r.ToScheduledJob(after)
	if err != nil {
		t.Fatalf("to scheduled job: %v", err)
	}

	if j.State() != job.StateScheduled {
		t.Fatalf("state = %s, want SCHEDULED", j.State())
	}
	if j.RecurringJobID() != "weekly-report" {
		t.Fatalf("recurring id = %q, want weekly-report", j.RecurringJobID())
	}
	at, ok := j.ScheduledAt()
	if !ok {
		t.Fatal("scheduled instant missing")
	}
	want := time.Date(2026, 8, 10, 6, 0, 0, 0, time.UTC) // next Monday
	if !at.Equal(want) {
		t.Fatalf("fire-at = %v, want %v", at, want)
	}
	if j.Details.Signature() != d.Signature() {
		t.Fatal("details template not carried onto the instance")
	}
}
