// Package logsink defines an abstraction for invocation log persistence.
// engine.NewRegistry defaults to NoopSink; cmd/golem-worker-executor wires
// a PostgresSink only when the oplog backend is postgres. The LogSink
// interface allows routing logs to external systems (ClickHouse,
// Elasticsearch, OpenTelemetry collectors, etc.) without the engine
// needing to know which backend is in use.
package logsink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/golemproject/workerexec/internal/logging"
)

// LogSink abstracts the destination for invocation logs.
// Implementations must be safe for concurrent use.
type LogSink interface {
	// Save persists a single invocation log entry.
	Save(ctx context.Context, log *logging.InvocationLog) error

	// SaveBatch persists a batch of invocation log entries.
	// Implementations should use bulk insert for efficiency.
	SaveBatch(ctx context.Context, logs []*logging.InvocationLog) error

	// Close releases any resources held by the sink.
	Close() error
}

// PostgresSink writes invocation logs to PostgreSQL.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink opens a pool against dsn and ensures the invocation_logs
// table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("logsink: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("logsink: ping: %w", err)
	}
	s := &PostgresSink{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invocation_logs (
	id BIGSERIAL PRIMARY KEY,
	worker_id TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	function_name TEXT NOT NULL,
	oplog_index_from BIGINT NOT NULL,
	oplog_index_to BIGINT NOT NULL,
	duration_ms BIGINT NOT NULL,
	success BOOLEAN NOT NULL,
	error TEXT,
	retries INT NOT NULL DEFAULT 0,
	consumed_fuel BIGINT NOT NULL DEFAULT 0,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("logsink: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, log *logging.InvocationLog) error {
	return s.SaveBatch(ctx, []*logging.InvocationLog{log})
}

func (s *PostgresSink) SaveBatch(ctx context.Context, logs []*logging.InvocationLog) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("logsink: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, log := range logs {
		_, err := tx.Exec(ctx, `
INSERT INTO invocation_logs
	(worker_id, idempotency_key, function_name, oplog_index_from, oplog_index_to,
	 duration_ms, success, error, retries, consumed_fuel)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			log.WorkerId, log.IdempotencyKey, log.FunctionName,
			log.OplogIndexFrom, log.OplogIndexTo, log.DurationMs,
			log.Success, log.Error, log.Retries, log.ConsumedFuel)
		if err != nil {
			return fmt.Errorf("logsink: insert: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}

// MultiSink fans out log writes to multiple sinks. This allows writing
// to PostgreSQL (for query) and an external system (for analytics)
// simultaneously during a migration period.
type MultiSink struct {
	sinks []LogSink
}

// NewMultiSink creates a LogSink that writes to all provided sinks.
// The first error encountered from any sink is returned.
func NewMultiSink(primary LogSink, secondary ...LogSink) *MultiSink {
	sinks := make([]LogSink, 0, 1+len(secondary))
	sinks = append(sinks, primary)
	sinks = append(sinks, secondary...)
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Save(ctx context.Context, log *logging.InvocationLog) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Save(ctx, log); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) SaveBatch(ctx context.Context, logs []*logging.InvocationLog) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.SaveBatch(ctx, logs); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoopSink discards all logs. Useful for testing or when log persistence
// is handled entirely by external observability infrastructure.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (n *NoopSink) Save(_ context.Context, _ *logging.InvocationLog) error        { return nil }
func (n *NoopSink) SaveBatch(_ context.Context, _ []*logging.InvocationLog) error { return nil }
func (n *NoopSink) Close() error                                                 { return nil }
