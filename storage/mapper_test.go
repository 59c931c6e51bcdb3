package storage

import (
	"testing"
	"time"

	"github.com/hoistq/hoist/cron"
	"github.com/hoistq/hoist/job"
)

func TestMapperJobRoundTrip(t *testing.T) {
	t.Parallel()
	mappers := []struct {
		name string
		m    Mapper
	}{
		{"json", JSONMapper{}},
		{"msgpack", MsgpackMapper{}},
	}

	for _, tt := range mappers {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			orig := job.NewScheduled(
				job.Details{Class: "reports", Method: "Generate", Args: []string{"2026", "Q2"}},
				time.Date(2026, 8, 6, 9, 30, 0, 123456000, time.UTC),
				"quarterly-report",
			)
			orig.Enqueue()
			orig.Version = 2

			data, err := tt.m.MarshalJob(orig)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := tt.m.UnmarshalJob(data)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if got.ID != orig.ID || got.Version != orig.Version {
				t.Fatalf("identity lost: %v/%d vs %v/%d", got.ID, got.Version, orig.ID, orig.Version)
			}
			if got.State() != job.StateEnqueued {
				t.Fatalf("state = %s, want ENQUEUED", got.State())
			}
			if len(got.History) != 2 {
				t.Fatalf("history = %d entries, want 2", len(got.History))
			}
			sc, ok := got.FirstOfState(job.StateScheduled)
			if !ok {
				t.Fatal("scheduled history entry lost")
			}
			if !sc.ScheduledAt.Equal(time.Date(2026, 8, 6, 9, 30, 0, 123456000, time.UTC)) {
				t.Fatalf("fire-at = %v, microsecond payload lost", sc.ScheduledAt)
			}
			if sc.RecurringJobID != "quarterly-report" {
				t.Fatalf("recurring id = %q, want quarterly-report", sc.RecurringJobID)
			}
			if got.Details.Signature() != orig.Details.Signature() {
				t.Fatalf("signature changed: %q vs %q",
					got.Details.Signature(), orig.Details.Signature())
			}
		})
	}
}

func TestMapperRecurringJobRoundTrip(t *testing.T) {
	t.Parallel()
	for _, m := range []Mapper{JSONMapper{}, MsgpackMapper{}} {
		orig := cron.New("nightly", "0 3 * * *", job.Details{Class: "sync", Method: "Run"})
		orig.ZoneID = "Europe/Brussels"

		data, err := m.MarshalRecurringJob(orig)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got, err := m.UnmarshalRecurringJob(data)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ID != orig.ID || got.Schedule != orig.Schedule || got.ZoneID != orig.ZoneID {
			t.Fatalf("round trip lost fields: %+v vs %+v", got, orig)
		}
	}
}
