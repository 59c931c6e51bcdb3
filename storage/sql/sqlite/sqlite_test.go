package sqlite

import (
	"context"
	"testing"

	"github.com/hoistq/hoist/storage"
	hoistsql "github.com/hoistq/hoist/storage/sql"
	"github.com/hoistq/hoist/storage/storagetest"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := Open(":memory:")
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		ctx := context.Background()
		if err := s.Ping(ctx); err != nil {
			t.Skipf("sqlite driver unavailable: %v", err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}

func TestMigrateIdempotent(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("sqlite driver unavailable: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestValidateAgainstEmptyDatabase(t *testing.T) {
	t.Parallel()
	s, err := Open(":memory:", hoistsql.WithDatabaseOptions(storage.DatabaseValidate))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("sqlite driver unavailable: %v", err)
	}
	if err := s.Migrate(ctx); err == nil {
		t.Fatal("validate against an empty database succeeded, want failure")
	}
}
