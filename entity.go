package hoist

import "time"

// Entity carries the creation and modification timestamps shared by
// persisted records. Timestamps are UTC at microsecond resolution, the
// finest granularity every backend can faithfully round-trip.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to now.
func NewEntity() Entity {
	now := Now()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates the modification timestamp.
func (e *Entity) Touch() {
	e.UpdatedAt = Now()
}

// Now returns the current UTC time truncated to microsecond resolution.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
