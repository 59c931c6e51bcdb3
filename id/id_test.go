package id

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewJobIDUnique(t *testing.T) {
	t.Parallel()
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		jid := NewJobID()
		s := jid.String()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate id %s", s)
		}
		seen[s] = struct{}{}
	}
}

func TestParseJobIDRoundTrip(t *testing.T) {
	t.Parallel()
	orig := NewJobID()
	parsed, err := ParseJobID(orig.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != orig {
		t.Fatalf("round trip changed id: %s vs %s", parsed, orig)
	}
}

func TestParseJobIDInvalid(t *testing.T) {
	t.Parallel()
	tests := []string{"", "not-a-uuid", "1234"}
	for _, in := range tests {
		if _, err := ParseJobID(in); err == nil {
			t.Fatalf("ParseJobID(%q) accepted invalid input", in)
		}
	}
}

func TestJobIDJSON(t *testing.T) {
	t.Parallel()
	orig := NewJobID()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back JobID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != orig {
		t.Fatalf("json round trip changed id: %s vs %s", back, orig)
	}
}

func TestIsNil(t *testing.T) {
	t.Parallel()
	if !NilJobID.IsNil() {
		t.Fatal("NilJobID.IsNil() = false")
	}
	if NewJobID().IsNil() {
		t.Fatal("fresh id reported nil")
	}
	if !NilServerID.IsNil() {
		t.Fatal("NilServerID.IsNil() = false")
	}
	if NewServerID().IsNil() {
		t.Fatal("fresh server id reported nil")
	}
}

func TestServerIDOrderedByTime(t *testing.T) {
	t.Parallel()
	a := NewServerID()
	time.Sleep(2 * time.Millisecond)
	b := NewServerID()
	if a.String() >= b.String() {
		t.Fatalf("UUIDv7 ids not time-ordered: %s then %s", a, b)
	}
}
