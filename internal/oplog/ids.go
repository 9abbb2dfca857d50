// Package oplog defines the durable, append-only per-worker event log that
// underlies Golem's replay model: every observable effect a worker performs
// is recorded as an OplogEntry before it is allowed to become visible, so a
// crashed or migrated worker can be reconstructed by replaying its oplog.
package oplog

import (
	"fmt"

	"github.com/google/uuid"
)

// ComponentId identifies an uploaded component (the compiled artifact a
// worker is an instance of).
type ComponentId struct {
	UUID uuid.UUID
}

func (c ComponentId) String() string { return c.UUID.String() }

// ProjectId identifies the project/account a worker belongs to. Project and
// account management themselves are out of scope; this is carried purely as
// an opaque partition key for storage and payload namespacing.
type ProjectId struct {
	UUID uuid.UUID
}

func (p ProjectId) String() string { return p.UUID.String() }

// WorkerId names a single durable worker instance within a component.
type WorkerId struct {
	ComponentId ComponentId
	WorkerName  string
}

func (w WorkerId) String() string {
	return fmt.Sprintf("%s/%s", w.ComponentId, w.WorkerName)
}

// OwnedWorkerId scopes a WorkerId to the project that owns it. Almost every
// storage and replay operation takes an OwnedWorkerId rather than a bare
// WorkerId, so that cross-project collisions in worker naming can never
// corrupt another tenant's oplog.
type OwnedWorkerId struct {
	ProjectId ProjectId
	WorkerId  WorkerId
}

func (o OwnedWorkerId) String() string {
	return fmt.Sprintf("%s/%s", o.ProjectId, o.WorkerId)
}

// OplogIndex is a 1-based position within a worker's oplog. Index 0 (None)
// never refers to a real entry; it is used as a sentinel for "nothing
// written yet" and as the zero value of the type.
type OplogIndex uint64

const (
	// OplogIndexNone is the sentinel "no index" value, distinct from any
	// real entry position.
	OplogIndexNone OplogIndex = 0
	// OplogIndexInitial is the position of the first entry ever written
	// to a worker's oplog (always a Create entry).
	OplogIndexInitial OplogIndex = 1
)

// Previous returns the index immediately before this one. Calling Previous
// on OplogIndexInitial or OplogIndexNone returns OplogIndexNone.
func (i OplogIndex) Previous() OplogIndex {
	if i <= OplogIndexInitial {
		return OplogIndexNone
	}
	return i - 1
}

// Next returns the index immediately after this one.
func (i OplogIndex) Next() OplogIndex {
	if i == OplogIndexNone {
		return OplogIndexInitial
	}
	return i + 1
}

// IsNone reports whether this index is the "no index" sentinel.
func (i OplogIndex) IsNone() bool { return i == OplogIndexNone }

// IdempotencyKey identifies a logical invocation attempt. The same key
// reused across retries lets a caller observe a worker's invocation exactly
// once even if the underlying call is retried transport-side.
type IdempotencyKey struct {
	Value string
}

func NewIdempotencyKey() IdempotencyKey {
	return IdempotencyKey{Value: uuid.NewString()}
}

func (k IdempotencyKey) String() string { return k.Value }

// TransactionId identifies a remote transaction begun by
// BeginRemoteTransaction, scoping the PreCommit/PreRollback/Committed/
// RolledBack entries that record its eventual outcome.
type TransactionId struct {
	UUID uuid.UUID
}

func NewTransactionId() TransactionId { return TransactionId{UUID: uuid.New()} }

func (t TransactionId) String() string { return t.UUID.String() }

// SpanId identifies a node in an invocation's span tree (StartSpan/
// FinishSpan/SetSpanAttribute entries), mirrored into the exported tracing
// backend by internal/observability.
type SpanId struct {
	UUID uuid.UUID
}

func NewSpanId() SpanId { return SpanId{UUID: uuid.New()} }

func (s SpanId) String() string { return s.UUID.String() }

// WorkerResourceId names a resource instance (a component-model handle)
// created by a worker, scoped to that worker's resource table.
type WorkerResourceId uint64

// PluginInstallationId identifies an activated plugin installation
// (ActivatePlugin/DeactivatePlugin entries).
type PluginInstallationId struct {
	UUID uuid.UUID
}

func (p PluginInstallationId) String() string { return p.UUID.String() }
