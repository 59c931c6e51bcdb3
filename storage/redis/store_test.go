package redis

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hoistq/hoist/storage"
	"github.com/hoistq/hoist/storage/storagetest"
)

// TestContract runs the backend contract suite against a real Redis.
// Set HOIST_REDIS_ADDR (e.g. "localhost:6379") to enable it.
func TestContract(t *testing.T) {
	addr := os.Getenv("HOIST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOIST_REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close client: %v", err)
		}
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping %s: %v", addr, err)
	}

	var n atomic.Int64
	storagetest.Run(t, func(t *testing.T) storage.Store {
		// A unique key prefix per subtest keeps the stores isolated.
		prefix := fmt.Sprintf("hoist-test-%d", n.Add(1))
		return New(client, WithKeyPrefix(prefix))
	})
}
