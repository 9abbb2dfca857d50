// Package oplogservice provides durable storage backends for worker oplogs,
// implementing the oplog.Backend contract consumed by a worker's
// in-memory front buffer (internal/oplog).
package oplogservice

import (
	"context"

	"github.com/golemproject/workerexec/internal/oplog"
)

// Service is the durable oplog storage contract. Both backends in this
// package (Postgres and embedded bbolt) implement it, so callers can switch
// backend by configuration alone (internal/config OplogConfig). They differ
// on an Append of an index already stored: BoltService overwrites the
// entry, PostgresService keeps the existing one.
type Service interface {
	// Append durably persists entries in order, assigning no new indices
	// (the caller, oplog.WorkerOplog, already assigned them).
	Append(ctx context.Context, owner oplog.OwnedWorkerId, entries []oplog.Entry) error

	// Read returns committed entries with index in [from, to]. Indices
	// removed by DeleteRange are absent from backing storage and are not
	// returned, so callers must not assume a contiguous result. Entries
	// inside a replay deleted region (internal/replay) are still stored
	// and are returned.
	Read(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) ([]oplog.Entry, error)

	// LastIndex returns the highest index durably stored for owner, or
	// oplog.OplogIndexNone if the worker has no oplog yet.
	LastIndex(ctx context.Context, owner oplog.OwnedWorkerId) (oplog.OplogIndex, error)

	// DeleteRange removes entries in [from, to] from durable storage.
	// oplogarchive.Export does not call it, and a region skipped by a Jump
	// entry is only marked deleted in replay state, not removed.
	DeleteRange(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) error

	Close() error
}
