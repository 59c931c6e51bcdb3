package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/server"
	"github.com/hoistq/hoist/storage"
)

type serverDoc struct {
	ID             string `bson:"_id"`
	WorkerPoolSize int    `bson:"worker_pool_size"`
	PollInterval   int64  `bson:"poll_interval"`
	FirstHeartbeat int64  `bson:"first_heartbeat"`
	LastHeartbeat  int64  `bson:"last_heartbeat"`
	Running        bool   `bson:"running"`

	SystemTotalMemory      int64   `bson:"system_total_memory"`
	SystemFreeMemory       int64   `bson:"system_free_memory"`
	SystemCPULoad          float64 `bson:"system_cpu_load"`
	ProcessMaxMemory       int64   `bson:"process_max_memory"`
	ProcessFreeMemory      int64   `bson:"process_free_memory"`
	ProcessAllocatedMemory int64   `bson:"process_allocated_memory"`
	ProcessCPULoad         float64 `bson:"process_cpu_load"`
}

func serverToDoc(st *server.Status) serverDoc {
	return serverDoc{
		ID:                     st.ID.String(),
		WorkerPoolSize:         st.WorkerPoolSize,
		PollInterval:           int64(st.PollInterval),
		FirstHeartbeat:         storage.ToMicroSeconds(st.FirstHeartbeat),
		LastHeartbeat:          storage.ToMicroSeconds(st.LastHeartbeat),
		Running:                st.Running,
		SystemTotalMemory:      st.SystemTotalMemory,
		SystemFreeMemory:       st.SystemFreeMemory,
		SystemCPULoad:          st.SystemCPULoad,
		ProcessMaxMemory:       st.ProcessMaxMemory,
		ProcessFreeMemory:      st.ProcessFreeMemory,
		ProcessAllocatedMemory: st.ProcessAllocatedMemory,
		ProcessCPULoad:         st.ProcessCPULoad,
	}
}

func docToServer(doc serverDoc) (*server.Status, error) {
	sid, err := id.ParseServerID(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("hoist/mongo: parse server id: %w", err)
	}
	return &server.Status{
		ID:                     sid,
		WorkerPoolSize:         doc.WorkerPoolSize,
		PollInterval:           time.Duration(doc.PollInterval),
		FirstHeartbeat:         storage.FromMicroSeconds(doc.FirstHeartbeat),
		LastHeartbeat:          storage.FromMicroSeconds(doc.LastHeartbeat),
		Running:                doc.Running,
		SystemTotalMemory:      doc.SystemTotalMemory,
		SystemFreeMemory:       doc.SystemFreeMemory,
		SystemCPULoad:          doc.SystemCPULoad,
		ProcessMaxMemory:       doc.ProcessMaxMemory,
		ProcessFreeMemory:      doc.ProcessFreeMemory,
		ProcessAllocatedMemory: doc.ProcessAllocatedMemory,
		ProcessCPULoad:         doc.ProcessCPULoad,
	}, nil
}

// Announce inserts or overwrites the server record.
func (s *Store) Announce(ctx context.Context, status *server.Status) error {
	_, err := s.servers().ReplaceOne(ctx,
		bson.M{"_id": status.ID.String()},
		serverToDoc(status),
		options.Replace().SetUpsert(true))
	if err != nil {
		return storage.Transient("mongo: announce", err)
	}
	return nil
}

// SignalAlive refreshes heartbeat and telemetry in one conditional update
// and returns the stored running flag from the pre-image.
func (s *Store) SignalAlive(ctx context.Context, status *server.Status) (bool, error) {
	var doc serverDoc
	err := s.servers().FindOneAndUpdate(ctx,
		bson.M{"_id": status.ID.String()},
		bson.M{"$set": bson.M{
			"last_heartbeat":           storage.ToMicroSeconds(status.LastHeartbeat),
			"system_free_memory":       status.SystemFreeMemory,
			"system_cpu_load":          status.SystemCPULoad,
			"process_free_memory":      status.ProcessFreeMemory,
			"process_allocated_memory": status.ProcessAllocatedMemory,
			"process_cpu_load":         status.ProcessCPULoad,
		}},
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return false, fmt.Errorf("%w: %s", hoist.ErrServerTimedOut, status.ID)
		}
		return false, storage.Transient("mongo: signal alive", err)
	}
	return doc.Running, nil
}

// SignalStopped removes the server record.
func (s *Store) SignalStopped(ctx context.Context, serverID id.ServerID) error {
	if _, err := s.servers().DeleteOne(ctx, bson.M{"_id": serverID.String()}); err != nil {
		return storage.Transient("mongo: signal stopped", err)
	}
	return nil
}

// GetServers returns all servers ordered by first heartbeat ascending.
func (s *Store) GetServers(ctx context.Context) ([]*server.Status, error) {
	cur, err := s.servers().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "first_heartbeat", Value: 1}}))
	if err != nil {
		return nil, storage.Transient("mongo: list servers", err)
	}
	defer cur.Close(ctx)

	var out []*server.Status
	for cur.Next(ctx) {
		var doc serverDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, storage.Transient("mongo: decode server", err)
		}
		st, err := docToServer(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := cur.Err(); err != nil {
		return nil, storage.Transient("mongo: iterate servers", err)
	}
	return out, nil
}

// GetLongestRunning returns the earliest-announced live server.
func (s *Store) GetLongestRunning(ctx context.Context) (id.ServerID, error) {
	var doc serverDoc
	err := s.servers().FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.D{{Key: "first_heartbeat", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return id.NilServerID, hoist.ErrNoServers
		}
		return id.NilServerID, storage.Transient("mongo: longest running", err)
	}
	return id.ParseServerID(doc.ID)
}

// RemoveTimedOut deletes servers whose last heartbeat is at or before the
// cutoff.
func (s *Store) RemoveTimedOut(ctx context.Context, heartbeatOlderThan time.Time) (int, error) {
	res, err := s.servers().DeleteMany(ctx, bson.M{
		"last_heartbeat": bson.M{"$lte": storage.ToMicroSeconds(heartbeatOlderThan)},
	})
	if err != nil {
		return 0, storage.Transient("mongo: remove timed out", err)
	}
	return int(res.DeletedCount), nil
}
