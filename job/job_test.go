package job

import (
	"errors"
	"testing"
	"time"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
)

func TestNewEnqueued(t *testing.T) {
	t.Parallel()
	j := NewEnqueued(Details{Class: "mailer", Method: "Send"})

	if j.ID.IsNil() {
		t.Fatal("id not assigned")
	}
	if !j.IsNew() {
		t.Fatal("fresh job not new")
	}
	if j.State() != StateEnqueued {
		t.Fatalf("state = %s, want ENQUEUED", j.State())
	}
	if len(j.History) != 1 {
		t.Fatalf("history = %d entries, want 1", len(j.History))
	}
	if !j.UpdatedAt.Equal(j.History[0].At) {
		t.Fatal("UpdatedAt does not match the current history entry")
	}
	if j.UpdatedAt.Nanosecond()%1000 != 0 {
		t.Fatal("UpdatedAt not truncated to microseconds")
	}
}

func TestTransitions(t *testing.T) {
	t.Parallel()
	serverID := id.NewServerID()
	fireAt := time.Date(2026, 8, 7, 2, 0, 0, 0, time.UTC)

	j := NewScheduled(Details{Class: "sync", Method: "Run"}, fireAt, "nightly")

	if at, ok := j.ScheduledAt(); !ok || !at.Equal(fireAt) {
		t.Fatalf("scheduled at = %v, %v; want %v, true", at, ok, fireAt)
	}
	if j.RecurringJobID() != "nightly" {
		t.Fatalf("recurring id = %q, want nightly", j.RecurringJobID())
	}

	j.Enqueue()
	if j.State() != StateEnqueued {
		t.Fatalf("state = %s, want ENQUEUED", j.State())
	}
	if _, ok := j.ScheduledAt(); ok {
		t.Fatal("ScheduledAt still set after leaving SCHEDULED")
	}
	// The recurring id travels with the history, not the current state.
	if j.RecurringJobID() != "nightly" {
		t.Fatal("recurring id lost after enqueue")
	}
	if prev, ok := j.Previous(); !ok || prev.State != StateScheduled {
		t.Fatalf("previous = %v, %v; want SCHEDULED", prev.State, ok)
	}

	j.StartProcessing(serverID)
	if cur := j.Current(); cur.ServerID != serverID {
		t.Fatalf("processing server = %s, want %s", cur.ServerID, serverID)
	}

	j.Fail("handler panicked")
	if cur := j.Current(); cur.Reason != "handler panicked" {
		t.Fatalf("fail reason = %q", cur.Reason)
	}

	if len(j.History) != 4 {
		t.Fatalf("history = %d entries, want 4", len(j.History))
	}
}

func TestLastStates(t *testing.T) {
	t.Parallel()
	j := NewEnqueued(Details{Class: "a", Method: "Run"})
	j.StartProcessing(id.NewServerID())
	j.Succeed()

	last := j.LastStates(2)
	if len(last) != 2 || last[0].State != StateSucceeded || last[1].State != StateProcessing {
		t.Fatalf("last states = %v, want newest first", last)
	}
	if got := j.LastStates(10); len(got) != 3 {
		t.Fatalf("last 10 = %d entries, want full history of 3", len(got))
	}
}

func TestClone(t *testing.T) {
	t.Parallel()
	j := NewEnqueued(Details{Class: "a", Method: "Run"})
	cp := j.Clone()
	cp.Succeed()

	if j.State() != StateEnqueued {
		t.Fatal("mutating the clone changed the original's state")
	}
	if len(j.History) != 1 {
		t.Fatal("mutating the clone grew the original's history")
	}
}

func TestStateValid(t *testing.T) {
	t.Parallel()
	for _, s := range States() {
		if !s.Valid() {
			t.Fatalf("%s not valid", s)
		}
	}
	if State("RUNNING").Valid() {
		t.Fatal("unknown state accepted")
	}
}

func TestDetailsSignature(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		d    Details
		want string
	}{
		{"no args", Details{Class: "mailer", Method: "Send"}, "mailer.Send()"},
		{"one arg", Details{Class: "mailer", Method: "Send", Args: []string{"42"}}, "mailer.Send(42)"},
		{"many args", Details{Class: "sync", Method: "Run", Args: []string{"a", "b"}}, "sync.Run(a,b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.d.Signature(); got != tt.want {
				t.Fatalf("signature = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPageRequestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		page    PageRequest
		wantErr bool
	}{
		{"ascending", Ascending(0, 10), false},
		{"descending", Descending(5, 20), false},
		{"negative offset", PageRequest{Offset: -1, Limit: 10, Order: OrderUpdatedAtAsc}, true},
		{"negative limit", PageRequest{Offset: 0, Limit: -1, Order: OrderUpdatedAtAsc}, true},
		{"unsupported order", PageRequest{Offset: 0, Limit: 10, Order: "priority:DESC"}, true},
		{"missing order", PageRequest{Offset: 0, Limit: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.page.Validate()
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

func TestPageHasMore(t *testing.T) {
	t.Parallel()
	page := &Page{Total: 10, Items: make([]*Job, 5), Offset: 0, Limit: 5}
	if !page.HasMore() {
		t.Fatal("HasMore = false with half the listing remaining")
	}
	last := &Page{Total: 10, Items: make([]*Job, 5), Offset: 5, Limit: 5}
	if last.HasMore() {
		t.Fatal("HasMore = true on the final page")
	}
}
