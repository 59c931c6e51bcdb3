package metadata

import "context"

// Store defines the persistence contract for metadata records.
type Store interface {
	// SaveMetadata inserts or overwrites the record keyed by (name, owner).
	SaveMetadata(ctx context.Context, m *Metadata) error

	// GetMetadataByName returns every record with the given name, across
	// owners.
	GetMetadataByName(ctx context.Context, name string) ([]*Metadata, error)

	// GetMetadata returns the record for (name, owner), or
	// hoist.ErrMetadataNotFound.
	GetMetadata(ctx context.Context, name, owner string) (*Metadata, error)

	// DeleteMetadata removes every record with the given name.
	DeleteMetadata(ctx context.Context, name string) error
}
