package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/server"
	"github.com/hoistq/hoist/storage"
)

// Announce inserts or overwrites the server record and both liveness
// indexes.
func (s *Store) Announce(ctx context.Context, status *server.Status) error {
	key := s.keys.server(status.ID.String())
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, serverToMap(status))
		pipe.ZAdd(ctx, s.keys.serversCreated(), goredis.Z{
			Score:  float64(storage.ToMicroSeconds(status.FirstHeartbeat)),
			Member: status.ID.String(),
		})
		pipe.ZAdd(ctx, s.keys.serversUpdated(), goredis.Z{
			Score:  float64(storage.ToMicroSeconds(status.LastHeartbeat)),
			Member: status.ID.String(),
		})
		return nil
	})
	if err != nil {
		return storage.Transient("redis: announce server", err)
	}
	return nil
}

// SignalAlive refreshes heartbeat and telemetry in one MULTI/EXEC group and
// returns the stored running flag read inside that group.
func (s *Store) SignalAlive(ctx context.Context, status *server.Status) (bool, error) {
	key := s.keys.server(status.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, storage.Transient("redis: signal alive exists check", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%w: %s", hoist.ErrServerTimedOut, status.ID)
	}

	var runningCmd *goredis.StringCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"last_heartbeat", status.LastHeartbeat.Format(time.RFC3339Nano),
			"system_free_memory", strconv.FormatInt(status.SystemFreeMemory, 10),
			"system_cpu_load", strconv.FormatFloat(status.SystemCPULoad, 'f', -1, 64),
			"process_free_memory", strconv.FormatInt(status.ProcessFreeMemory, 10),
			"process_allocated_memory", strconv.FormatInt(status.ProcessAllocatedMemory, 10),
			"process_cpu_load", strconv.FormatFloat(status.ProcessCPULoad, 'f', -1, 64),
		)
		pipe.ZAdd(ctx, s.keys.serversUpdated(), goredis.Z{
			Score:  float64(storage.ToMicroSeconds(status.LastHeartbeat)),
			Member: status.ID.String(),
		})
		runningCmd = pipe.HGet(ctx, key, "running")
		return nil
	})
	if err != nil {
		return false, storage.Transient("redis: signal alive", err)
	}
	return runningCmd.Val() == "1", nil
}

// SignalStopped removes the server record and its index entries.
func (s *Store) SignalStopped(ctx context.Context, serverID id.ServerID) error {
	sid := serverID.String()
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.keys.server(sid))
		pipe.ZRem(ctx, s.keys.serversCreated(), sid)
		pipe.ZRem(ctx, s.keys.serversUpdated(), sid)
		return nil
	})
	if err != nil {
		return storage.Transient("redis: signal stopped", err)
	}
	return nil
}

// GetServers returns all servers ordered by first heartbeat ascending.
func (s *Store) GetServers(ctx context.Context) ([]*server.Status, error) {
	ids, err := s.client.ZRange(ctx, s.keys.serversCreated(), 0, -1).Result()
	if err != nil {
		return nil, storage.Transient("redis: list servers", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	pipe := s.client.Pipeline()
	for i, sid := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.keys.server(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storage.Transient("redis: read servers", err)
	}

	out := make([]*server.Status, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		st, mErr := mapToServer(fields)
		if mErr != nil {
			return nil, mErr
		}
		out = append(out, st)
	}
	return out, nil
}

// GetLongestRunning returns the earliest-announced live server.
func (s *Store) GetLongestRunning(ctx context.Context) (id.ServerID, error) {
	ids, err := s.client.ZRange(ctx, s.keys.serversCreated(), 0, 0).Result()
	if err != nil {
		return id.NilServerID, storage.Transient("redis: longest running server", err)
	}
	if len(ids) == 0 {
		return id.NilServerID, hoist.ErrNoServers
	}
	return id.ParseServerID(ids[0])
}

// RemoveTimedOut deletes servers whose last heartbeat is at or before the
// cutoff. Each server is removed in its own MULTI/EXEC group so a crash
// leaves every server either present-and-fresh or absent.
func (s *Store) RemoveTimedOut(ctx context.Context, heartbeatOlderThan time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.keys.serversUpdated(), &goredis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(storage.ToMicroSeconds(heartbeatOlderThan), 10),
	}).Result()
	if err != nil {
		return 0, storage.Transient("redis: timed out scan", err)
	}

	for _, sid := range ids {
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, s.keys.server(sid))
			pipe.ZRem(ctx, s.keys.serversCreated(), sid)
			pipe.ZRem(ctx, s.keys.serversUpdated(), sid)
			return nil
		})
		if err != nil {
			return 0, storage.Transient("redis: remove timed out server", err)
		}
	}
	return len(ids), nil
}

// ── hash codecs ──

func serverToMap(st *server.Status) map[string]interface{} {
	return map[string]interface{}{
		"id":                       st.ID.String(),
		"worker_pool_size":         strconv.Itoa(st.WorkerPoolSize),
		"poll_interval":            strconv.FormatInt(int64(st.PollInterval), 10),
		"first_heartbeat":          st.FirstHeartbeat.Format(time.RFC3339Nano),
		"last_heartbeat":           st.LastHeartbeat.Format(time.RFC3339Nano),
		"running":                  boolToStr(st.Running),
		"system_total_memory":      strconv.FormatInt(st.SystemTotalMemory, 10),
		"system_free_memory":       strconv.FormatInt(st.SystemFreeMemory, 10),
		"system_cpu_load":          strconv.FormatFloat(st.SystemCPULoad, 'f', -1, 64),
		"process_max_memory":       strconv.FormatInt(st.ProcessMaxMemory, 10),
		"process_free_memory":      strconv.FormatInt(st.ProcessFreeMemory, 10),
		"process_allocated_memory": strconv.FormatInt(st.ProcessAllocatedMemory, 10),
		"process_cpu_load":         strconv.FormatFloat(st.ProcessCPULoad, 'f', -1, 64),
	}
}

func mapToServer(m map[string]string) (*server.Status, error) {
	sid, err := id.ParseServerID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("hoist/redis: parse server id: %w", err)
	}

	poolSize, _ := strconv.Atoi(m["worker_pool_size"])
	pollNs, _ := strconv.ParseInt(m["poll_interval"], 10, 64)
	first, _ := time.Parse(time.RFC3339Nano, m["first_heartbeat"])
	last, _ := time.Parse(time.RFC3339Nano, m["last_heartbeat"])
	sysTotal, _ := strconv.ParseInt(m["system_total_memory"], 10, 64)
	sysFree, _ := strconv.ParseInt(m["system_free_memory"], 10, 64)
	sysCPU, _ := strconv.ParseFloat(m["system_cpu_load"], 64)
	procMax, _ := strconv.ParseInt(m["process_max_memory"], 10, 64)
	procFree, _ := strconv.ParseInt(m["process_free_memory"], 10, 64)
	procAlloc, _ := strconv.ParseInt(m["process_allocated_memory"], 10, 64)
	procCPU, _ := strconv.ParseFloat(m["process_cpu_load"], 64)

	return &server.Status{
		ID:                     sid,
		WorkerPoolSize:         poolSize,
		PollInterval:           time.Duration(pollNs),
		FirstHeartbeat:         first,
		LastHeartbeat:          last,
		Running:                m["running"] == "1",
		SystemTotalMemory:      sysTotal,
		SystemFreeMemory:       sysFree,
		SystemCPULoad:          sysCPU,
		ProcessMaxMemory:       procMax,
		ProcessFreeMemory:      procFree,
		ProcessAllocatedMemory: procAlloc,
		ProcessCPULoad:         procCPU,
	}, nil
}

func boolToStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
