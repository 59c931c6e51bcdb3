package sql

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hoistq/hoist"
	"github.com/hoistq/hoist/id"
	"github.com/hoistq/hoist/server"
	"github.com/hoistq/hoist/storage"
)

const serverColumns = "id, worker_pool_size, poll_interval, first_heartbeat, last_heartbeat, running, " +
	"system_total_memory, system_free_memory, system_cpu_load, " +
	"process_max_memory, process_free_memory, process_allocated_memory, process_cpu_load"

// Announce inserts or overwrites the server record.
func (s *Store) Announce(ctx context.Context, status *server.Status) error {
	query, args, err := s.builder().
		Insert(s.table("background_job_servers")).
		Columns("id", "worker_pool_size", "poll_interval", "first_heartbeat", "last_heartbeat", "running",
			"system_total_memory", "system_free_memory", "system_cpu_load",
			"process_max_memory", "process_free_memory", "process_allocated_memory", "process_cpu_load").
		Values(status.ID.String(), status.WorkerPoolSize, int64(status.PollInterval),
			storage.ToMicroSeconds(status.FirstHeartbeat), storage.ToMicroSeconds(status.LastHeartbeat),
			status.Running,
			status.SystemTotalMemory, status.SystemFreeMemory, status.SystemCPULoad,
			status.ProcessMaxMemory, status.ProcessFreeMemory, status.ProcessAllocatedMemory,
			status.ProcessCPULoad).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			worker_pool_size = excluded.worker_pool_size,
			poll_interval = excluded.poll_interval,
			first_heartbeat = excluded.first_heartbeat,
			last_heartbeat = excluded.last_heartbeat,
			running = excluded.running,
			system_total_memory = excluded.system_total_memory,
			system_free_memory = excluded.system_free_memory,
			system_cpu_load = excluded.system_cpu_load,
			process_max_memory = excluded.process_max_memory,
			process_free_memory = excluded.process_free_memory,
			process_allocated_memory = excluded.process_allocated_memory,
			process_cpu_load = excluded.process_cpu_load`).
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build announce", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Transient("sql: announce", err)
	}
	return nil
}

// SignalAlive refreshes heartbeat and telemetry and returns the stored
// running flag, both inside one transaction.
func (s *Store) SignalAlive(ctx context.Context, status *server.Status) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storage.Transient("sql: signal alive begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query, args, err := s.builder().
		Update(s.table("background_job_servers")).
		Set("last_heartbeat", storage.ToMicroSeconds(status.LastHeartbeat)).
		Set("system_free_memory", status.SystemFreeMemory).
		Set("system_cpu_load", status.SystemCPULoad).
		Set("process_free_memory", status.ProcessFreeMemory).
		Set("process_allocated_memory", status.ProcessAllocatedMemory).
		Set("process_cpu_load", status.ProcessCPULoad).
		Where(sq.Eq{"id": status.ID.String()}).
		ToSql()
	if err != nil {
		return false, storage.Fatal("sql: build signal alive", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storage.Transient("sql: signal alive", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storage.Transient("sql: signal alive", err)
	}
	if affected == 0 {
		return false, fmt.Errorf("%w: %s", hoist.ErrServerTimedOut, status.ID)
	}

	query, args, err = s.builder().
		Select("running").
		From(s.table("background_job_servers")).
		Where(sq.Eq{"id": status.ID.String()}).
		ToSql()
	if err != nil {
		return false, storage.Fatal("sql: build signal alive read", err)
	}
	var running bool
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&running); err != nil {
		return false, storage.Transient("sql: signal alive read", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storage.Transient("sql: signal alive commit", err)
	}
	return running, nil
}

// SignalStopped removes the server record.
func (s *Store) SignalStopped(ctx context.Context, serverID id.ServerID) error {
	query, args, err := s.builder().
		Delete(s.table("background_job_servers")).
		Where(sq.Eq{"id": serverID.String()}).
		ToSql()
	if err != nil {
		return storage.Fatal("sql: build signal stopped", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storage.Transient("sql: signal stopped", err)
	}
	return nil
}

// GetServers returns all servers ordered by first heartbeat ascending.
func (s *Store) GetServers(ctx context.Context) ([]*server.Status, error) {
	query, args, err := s.builder().
		Select(serverColumns).
		From(s.table("background_job_servers")).
		OrderBy("first_heartbeat ASC").
		ToSql()
	if err != nil {
		return nil, storage.Fatal("sql: build list servers", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Transient("sql: list servers", err)
	}
	defer rows.Close()

	var out []*server.Status
	for rows.Next() {
		var (
			st       server.Status
			sid      string
			pollNs   int64
			firstUs  int64
			lastUs   int64
		)
		if err := rows.Scan(&sid, &st.WorkerPoolSize, &pollNs, &firstUs, &lastUs, &st.Running,
			&st.SystemTotalMemory, &st.SystemFreeMemory, &st.SystemCPULoad,
			&st.ProcessMaxMemory, &st.ProcessFreeMemory, &st.ProcessAllocatedMemory,
			&st.ProcessCPULoad); err != nil {
			return nil, storage.Transient("sql: scan server", err)
		}
		st.ID, err = id.ParseServerID(sid)
		if err != nil {
			return nil, fmt.Errorf("hoist/sql: parse server id: %w", err)
		}
		st.PollInterval = time.Duration(pollNs)
		st.FirstHeartbeat = storage.FromMicroSeconds(firstUs)
		st.LastHeartbeat = storage.FromMicroSeconds(lastUs)
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Transient("sql: iterate servers", err)
	}
	return out, nil
}

// GetLongestRunning returns the earliest-announced live server.
func (s *Store) GetLongestRunning(ctx context.Context) (id.ServerID, error) {
	query, args, err := s.builder().
		Select("id").
		From(s.table("background_job_servers")).
		OrderBy("first_heartbeat ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return id.NilServerID, storage.Fatal("sql: build longest running", err)
	}
	var sid string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sid); err != nil {
		if isNoRows(err) {
			return id.NilServerID, hoist.ErrNoServers
		}
		return id.NilServerID, storage.Transient("sql: longest running", err)
	}
	return id.ParseServerID(sid)
}

// RemoveTimedOut deletes servers whose last heartbeat is at or before the
// cutoff.
func (s *Store) RemoveTimedOut(ctx context.Context, heartbeatOlderThan time.Time) (int, error) {
	query, args, err := s.builder().
		Delete(s.table("background_job_servers")).
		Where(sq.LtOrEq{"last_heartbeat": storage.ToMicroSeconds(heartbeatOlderThan)}).
		ToSql()
	if err != nil {
		return 0, storage.Fatal("sql: build remove timed out", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Transient("sql: remove timed out", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Transient("sql: remove timed out", err)
	}
	return int(affected), nil
}
