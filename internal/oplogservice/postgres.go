package oplogservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/golemproject/workerexec/internal/oplog"
)

// PostgresService is the production oplog backend: one row per entry,
// keyed by (project_id, component_id, worker_name, index), following the
// teacher's row-per-record-with-JSONB-payload convention
// (internal/store/postgres.go).
type PostgresService struct {
	pool *pgxpool.Pool
}

// NewPostgresService opens a pool against dsn and ensures the oplog schema
// exists.
func NewPostgresService(ctx context.Context, dsn string) (*PostgresService, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create oplog postgres pool: %w", err)
	}
	s := &PostgresService{pool: pool}
	if err := s.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping oplog postgres pool: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresService) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oplog_entries (
			project_id TEXT NOT NULL,
			component_id TEXT NOT NULL,
			worker_name TEXT NOT NULL,
			idx BIGINT NOT NULL,
			kind TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (project_id, component_id, worker_name, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_oplog_entries_worker
			ON oplog_entries(project_id, component_id, worker_name, idx)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure oplog schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresService) Append(ctx context.Context, owner oplog.OwnedWorkerId, entries []oplog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal oplog entry: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO oplog_entries (project_id, component_id, worker_name, idx, kind, data)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)
			ON CONFLICT (project_id, component_id, worker_name, idx) DO NOTHING
		`, owner.ProjectId.String(), owner.WorkerId.ComponentId.String(), owner.WorkerId.WorkerName,
			int64(e.Index), string(e.Kind), data)
		if err != nil {
			return fmt.Errorf("append oplog entry %d: %w", e.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (s *PostgresService) Read(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) ([]oplog.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM oplog_entries
		WHERE project_id = $1 AND component_id = $2 AND worker_name = $3
		  AND idx >= $4 AND idx <= $5
		ORDER BY idx ASC
	`, owner.ProjectId.String(), owner.WorkerId.ComponentId.String(), owner.WorkerId.WorkerName,
		int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("read oplog range: %w", err)
	}
	defer rows.Close()

	var out []oplog.Entry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan oplog entry: %w", err)
		}
		var e oplog.Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal oplog entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read oplog range rows: %w", err)
	}
	return out, nil
}

func (s *PostgresService) LastIndex(ctx context.Context, owner oplog.OwnedWorkerId) (oplog.OplogIndex, error) {
	var idx int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(idx), 0) FROM oplog_entries
		WHERE project_id = $1 AND component_id = $2 AND worker_name = $3
	`, owner.ProjectId.String(), owner.WorkerId.ComponentId.String(), owner.WorkerId.WorkerName).Scan(&idx)
	if err != nil && err != pgx.ErrNoRows {
		return oplog.OplogIndexNone, fmt.Errorf("last oplog index: %w", err)
	}
	return oplog.OplogIndex(idx), nil
}

func (s *PostgresService) DeleteRange(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM oplog_entries
		WHERE project_id = $1 AND component_id = $2 AND worker_name = $3
		  AND idx >= $4 AND idx <= $5
	`, owner.ProjectId.String(), owner.WorkerId.ComponentId.String(), owner.WorkerId.WorkerName,
		int64(from), int64(to))
	if err != nil {
		return fmt.Errorf("delete oplog range: %w", err)
	}
	return nil
}

var _ Service = (*PostgresService)(nil)
