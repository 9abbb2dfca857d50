package oplog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golemproject/workerexec/internal/logging"
)

// CommitLevel controls how aggressively a WorkerOplog flushes pending
// entries to durable storage. It mirrors the batch-then-flush shape of the
// teacher's invocation log batcher, but commits are driven by the caller
// (the durability wrapper) rather than by a timer, since oplog entries must
// never be invisible to a crash for longer than the durability contract of
// the function that produced them allows.
type CommitLevel int

const (
	// CommitImmediate flushes synchronously after every Add.
	CommitImmediate CommitLevel = iota
	// CommitAlways flushes synchronously after every Add that is not a
	// hint entry; hints may ride along with the next non-hint flush.
	CommitAlways
	// CommitDurableOnly only flushes when the caller explicitly calls
	// Commit, batching everything in between. Used while a worker is
	// executing functions with ReadLocal/WriteLocal durability, where a
	// crash simply replays from the last durable point.
	CommitDurableOnly
)

// Backend is the durable storage contract a WorkerOplog flushes into.
// Concrete implementations live in internal/oplogservice.
type Backend interface {
	Append(ctx context.Context, owner OwnedWorkerId, entries []Entry) error
	LastIndex(ctx context.Context, owner OwnedWorkerId) (OplogIndex, error)
	Read(ctx context.Context, owner OwnedWorkerId, from, to OplogIndex) ([]Entry, error)
}

// WorkerOplog is the per-worker front buffer described by spec.md §3/§4 B:
// an in-process accumulator over a durable Backend that batches writes
// according to CommitLevel and tracks the current index without a round
// trip to storage on every Add.
type WorkerOplog struct {
	mu sync.Mutex

	owner   OwnedWorkerId
	backend Backend
	level   CommitLevel

	pending []Entry
	current OplogIndex // index of the last entry handed out (committed or pending)

	lastNonHint OplogIndex
}

// Open attaches a WorkerOplog to a worker's existing durable history,
// seeding current from the backend's last committed index.
func Open(ctx context.Context, backend Backend, owner OwnedWorkerId, level CommitLevel) (*WorkerOplog, error) {
	last, err := backend.LastIndex(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("open worker oplog %s: %w", owner, err)
	}
	return &WorkerOplog{
		owner:   owner,
		backend: backend,
		level:   level,
		current: last,
	}, nil
}

// CurrentOplogIndex returns the index of the most recently added entry,
// whether or not it has been flushed to durable storage yet.
func (w *WorkerOplog) CurrentOplogIndex() OplogIndex {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// LastAddedNonHintEntry returns the index of the most recent non-hint entry
// added, or OplogIndexNone if none has been added yet. Durability decisions
// (internal/durability) key off this rather than off CurrentOplogIndex,
// since hint entries (logs, pending worker invocations, span entries)
// never themselves represent the "last observable effect".
func (w *WorkerOplog) LastAddedNonHintEntry() OplogIndex {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastNonHint
}

// Add appends an entry to the in-memory buffer, assigning it the next
// index, and flushes according to the configured CommitLevel.
func (w *WorkerOplog) Add(ctx context.Context, e Entry) (OplogIndex, error) {
	w.mu.Lock()
	w.current = w.current.Next()
	e.Index = w.current
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if !e.Kind.IsHint() {
		w.lastNonHint = e.Index
	}
	w.pending = append(w.pending, e)
	idx := w.current
	shouldFlush := w.level == CommitImmediate || (w.level == CommitAlways && !e.Kind.IsHint())
	w.mu.Unlock()

	if shouldFlush {
		if err := w.Commit(ctx); err != nil {
			return idx, err
		}
	}
	return idx, nil
}

// AddAndCommit appends an entry and flushes it synchronously regardless of
// the configured CommitLevel. Used for entries that gate durability
// decisions for other workers (e.g. Jump, EndRemoteTransaction outcomes).
func (w *WorkerOplog) AddAndCommit(ctx context.Context, e Entry) (OplogIndex, error) {
	idx, err := w.Add(ctx, e)
	if err != nil {
		return idx, err
	}
	if err := w.Commit(ctx); err != nil {
		return idx, err
	}
	return idx, nil
}

// Commit flushes any pending entries to durable storage.
func (w *WorkerOplog) Commit(ctx context.Context) error {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if err := w.backend.Append(ctx, w.owner, batch); err != nil {
		logging.Op().Error("failed to persist oplog entries",
			"worker", w.owner.String(), "count", len(batch), "error", err)
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		w.mu.Unlock()
		return fmt.Errorf("commit oplog %s: %w", w.owner, err)
	}
	return nil
}

// Read returns committed entries in [from, to], flushing any pending
// entries first so a read never misses writes made through this handle.
func (w *WorkerOplog) Read(ctx context.Context, from, to OplogIndex) ([]Entry, error) {
	if err := w.Commit(ctx); err != nil {
		return nil, err
	}
	return w.backend.Read(ctx, w.owner, from, to)
}
