// Package id defines the identifier types shared by all hoist entities.
//
// Jobs and background job servers are identified by 128-bit UUIDs. New ids
// are UUIDv7 so they sort by creation time, which keeps clustered primary
// keys append-mostly on SQL backends.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// JobID identifies a job.
type JobID struct {
	uuid.UUID
}

// NilJobID is the zero-value JobID.
var NilJobID JobID

// NewJobID generates a new time-ordered JobID.
func NewJobID() JobID {
	return JobID{UUID: uuid.Must(uuid.NewV7())}
}

// ParseJobID parses a JobID from its canonical string form.
func ParseJobID(s string) (JobID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilJobID, fmt.Errorf("id: parse job id %q: %w", s, err)
	}
	return JobID{UUID: u}, nil
}

// MustParseJobID is like ParseJobID but panics on error. Use for hardcoded
// id values in tests.
func MustParseJobID(s string) JobID {
	jid, err := ParseJobID(s)
	if err != nil {
		panic(err)
	}
	return jid
}

// IsNil reports whether the id is the zero value.
func (j JobID) IsNil() bool { return j.UUID == uuid.Nil }

// ServerID identifies a background job server process.
type ServerID struct {
	uuid.UUID
}

// NilServerID is the zero-value ServerID.
var NilServerID ServerID

// NewServerID generates a new time-ordered ServerID.
func NewServerID() ServerID {
	return ServerID{UUID: uuid.Must(uuid.NewV7())}
}

// ParseServerID parses a ServerID from its canonical string form.
func ParseServerID(s string) (ServerID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilServerID, fmt.Errorf("id: parse server id %q: %w", s, err)
	}
	return ServerID{UUID: u}, nil
}

// MustParseServerID is like ParseServerID but panics on error.
func MustParseServerID(s string) ServerID {
	sid, err := ParseServerID(s)
	if err != nil {
		panic(err)
	}
	return sid
}

// IsNil reports whether the id is the zero value.
func (s ServerID) IsNil() bool { return s.UUID == uuid.Nil }
