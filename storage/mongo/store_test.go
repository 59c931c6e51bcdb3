package mongo

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hoistq/hoist/storage"
	"github.com/hoistq/hoist/storage/storagetest"
)

// TestContract runs the backend contract suite against a real MongoDB.
// Set HOIST_MONGO_URI (e.g. "mongodb://localhost:27017") to enable it.
func TestContract(t *testing.T) {
	uri := os.Getenv("HOIST_MONGO_URI")
	if uri == "" {
		t.Skip("HOIST_MONGO_URI not set")
	}

	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect %s: %v", uri, err)
	}
	ctx := context.Background()
	t.Cleanup(func() {
		if err := client.Disconnect(ctx); err != nil {
			t.Errorf("disconnect: %v", err)
		}
	})
	db := client.Database("hoist_test")
	t.Cleanup(func() {
		if err := db.Drop(ctx); err != nil {
			t.Errorf("drop test database: %v", err)
		}
	})

	var n atomic.Int64
	storagetest.Run(t, func(t *testing.T) storage.Store {
		// A unique collection prefix per subtest keeps the stores isolated.
		prefix := fmt.Sprintf("t%d_", n.Add(1))
		s := New(db, WithCollectionPrefix(prefix))
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}
