package hostservices

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RdbmsRow is one result row from Query, as column name to driver value;
// callers that need typed access decode individual columns themselves.
type RdbmsRow map[string]any

// RdbmsService implements the golem:rdbms host contract: workers issue
// parameterised statements against a connection identified by an opaque
// handle (obtained out of band, e.g. from config), with the durability
// requirement that a replayed Query/Exec returns exactly the rows/rows-
// affected it returned live rather than re-querying the database.
type RdbmsService interface {
	Query(ctx context.Context, handle string, statement string, args []any) ([]RdbmsRow, error)
	Exec(ctx context.Context, handle string, statement string, args []any) (rowsAffected int64, err error)
}

// PostgresRdbmsService is the production golem:rdbms backend, following
// oplogservice.PostgresService's pgxpool setup convention: one pool per
// configured handle, opened lazily on first use.
type PostgresRdbmsService struct {
	dsns  map[string]string
	pools map[string]*pgxpool.Pool
}

func NewPostgresRdbmsService(dsns map[string]string) *PostgresRdbmsService {
	return &PostgresRdbmsService{dsns: dsns, pools: make(map[string]*pgxpool.Pool)}
}

func (r *PostgresRdbmsService) pool(ctx context.Context, handle string) (*pgxpool.Pool, error) {
	if p, ok := r.pools[handle]; ok {
		return p, nil
	}
	dsn, ok := r.dsns[handle]
	if !ok {
		return nil, fmt.Errorf("rdbms: no connection configured for handle %q", handle)
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("rdbms: open pool for handle %q: %w", handle, err)
	}
	r.pools[handle] = p
	return p, nil
}

func (r *PostgresRdbmsService) Query(ctx context.Context, handle string, statement string, args []any) ([]RdbmsRow, error) {
	pool, err := r.pool(ctx, handle)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("rdbms query on %q: %w", handle, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []RdbmsRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("rdbms scan row on %q: %w", handle, err)
		}
		row := make(RdbmsRow, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rdbms iterate rows on %q: %w", handle, err)
	}
	return out, nil
}

func (r *PostgresRdbmsService) Exec(ctx context.Context, handle string, statement string, args []any) (int64, error) {
	pool, err := r.pool(ctx, handle)
	if err != nil {
		return 0, err
	}

	tag, err := pool.Exec(ctx, statement, args...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("rdbms exec on %q: %w", handle, err)
	}
	return tag.RowsAffected(), nil
}

var _ RdbmsService = (*PostgresRdbmsService)(nil)
