package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/job"
)

func TestConcurrentJobModificationError(t *testing.T) {
	t.Parallel()
	a := job.NewEnqueued(job.Details{Class: "a", Method: "Run"})
	b := job.NewEnqueued(job.Details{Class: "b", Method: "Run"})

	err := NewConcurrentJobModification(a, b)
	msg := err.Error()
	if !strings.Contains(msg, a.ID.String()) || !strings.Contains(msg, b.ID.String()) {
		t.Fatalf("message %q does not name the conflicting jobs", msg)
	}

	wrapped := fmt.Errorf("save failed: %w", err)
	var cjm *ConcurrentJobModificationError
	if !errors.As(wrapped, &cjm) {
		t.Fatal("errors.As failed through wrapping")
	}
	if len(cjm.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(cjm.Jobs))
	}
}

func TestUnresolvableDiagnostics(t *testing.T) {
	t.Parallel()
	local := job.NewEnqueued(job.Details{Class: "mailer", Method: "Send"})
	local.StartProcessing(id.NewServerID())
	local.Fail("timeout")
	local.Version = 2

	stored := local.Clone()
	stored.Version = 4
	stored.Enqueue()
	stored.StartProcessing(id.NewServerID())
	stored.Succeed()

	err := &UnresolvableConcurrentJobModificationError{
		Results: []ResolveResult{{Local: local, Stored: stored}},
	}

	diag := err.Diagnostics()
	for _, want := range []string{
		"Job id: " + local.ID.String(),
		"Local version: 2; Storage version: 4",
		string(job.StateFailed),
		string(job.StateSucceeded),
	} {
		if !strings.Contains(diag, want) {
			t.Fatalf("diagnostics missing %q:\n%s", want, diag)
		}
	}

	// Only the last three states are rendered per side.
	if got := strings.Count(diagLine(diag, "Storage state:"), "<-"); got != 2 {
		t.Fatalf("storage state separators = %d, want 2 (three states)", got)
	}

	// The unresolvable form still matches the plain conflict error.
	var cjm *ConcurrentJobModificationError
	if !errors.As(err, &cjm) {
		t.Fatal("errors.As to ConcurrentJobModificationError failed")
	}
}

func diagLine(diag, prefix string) string {
	for _, line := range strings.Split(diag, "\n") {
		if strings.Contains(line, prefix) {
			return line
		}
	}
	return ""
}

func TestStorageErrorClassification(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")

	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{"transient", Transient("redis: save job", cause), true},
		{"fatal", Fatal("sql: migrate", cause), false},
		{"wrapped transient", fmt.Errorf("outer: %w", Transient("op", cause)), true},
		{"unrelated", cause, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tt.err); got != tt.wantTransient {
				t.Fatalf("IsTransient = %v, want %v", got, tt.wantTransient)
			}
		})
	}

	if !errors.Is(Transient("op", cause), cause) {
		t.Fatal("StorageError does not unwrap to its cause")
	}
}
