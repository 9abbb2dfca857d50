// Package replay implements the cursor/target/deleted-regions/seen-logs
// state machine a worker uses while replaying its oplog back to the point
// where it last executed live, grounded directly on
// golem-worker-executor/src/durable_host/mod.rs's replay_state handling.
package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/golemproject/workerexec/internal/oplog"
)

// PersistenceLevel controls how aggressively non-deterministic effects are
// recorded, matching the three levels named in spec.md §3.
type PersistenceLevel int

const (
	PersistNothing PersistenceLevel = iota
	PersistRemoteSideEffects
	Smart
)

// logKey identifies a single (level, context, message) triple for the
// seen_logs dedup multiset, so a log emitted once during replay is not
// re-emitted to the live event stream (SPEC_FULL.md §C.2).
type logKey struct {
	level, context, message string
}

// State is the per-worker replay cursor. A worker starts in replay (unless
// its oplog is empty) and transitions to live exactly once, via
// SwitchToLive, after which GetOplogEntry always returns ok=false and new
// entries are produced instead of replayed.
type State struct {
	mu sync.Mutex

	backend oplog.Backend
	owner   oplog.OwnedWorkerId

	replayTarget OplogIndex
	cursor       OplogIndex // next index to read
	live         bool

	lastReplayedIndex        OplogIndex
	lastReplayedNonHintIndex OplogIndex

	deletedRegions []oplog.Region
	seenLogs       map[logKey]int
}

// OplogIndex is re-exported for readability within this package's API;
// identical to oplog.OplogIndex.
type OplogIndex = oplog.OplogIndex

// New creates replay state targeting the worker's last durable index. If
// the oplog is empty the worker starts live immediately.
func New(ctx context.Context, backend oplog.Backend, owner oplog.OwnedWorkerId) (*State, error) {
	target, err := backend.LastIndex(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("replay state for %s: %w", owner, err)
	}
	s := &State{
		backend:      backend,
		owner:        owner,
		replayTarget: target,
		cursor:       oplog.OplogIndexInitial,
		seenLogs:     make(map[logKey]int),
	}
	if target.IsNone() {
		s.live = true
	}
	return s, nil
}

func (s *State) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *State) ReplayTarget() OplogIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayTarget
}

func (s *State) SetReplayTarget(idx OplogIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replayTarget = idx
}

// SwitchToLive ends replay immediately, regardless of how much of the oplog
// up to replayTarget remains unread. Used whenever a lookup determines the
// remaining replay cannot be trusted (e.g. a non-idempotent remote write
// that never completed) and the worker must re-execute live from here on.
func (s *State) SwitchToLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = true
}

// LastReplayedNonHintIndex returns the index of the last non-hint entry
// consumed during replay, used by begin_function to compute the current
// retry point while replaying (internal/durability).
func (s *State) LastReplayedNonHintIndex() OplogIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReplayedNonHintIndex
}

// AddDeletedRegion marks [region] as containing no entries a replayer
// should stop at, e.g. after a Jump entry instructs skipping a failed
// batched-write attempt.
func (s *State) AddDeletedRegion(r oplog.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedRegions = append(s.deletedRegions, r)
}

func (s *State) inDeletedRegion(idx OplogIndex) bool {
	for _, r := range s.deletedRegions {
		if r.Contains(idx) {
			return true
		}
	}
	return false
}

// GetOplogEntry returns the next entry in replay order, advancing the
// cursor past any deleted regions, or (zero, false, nil) once the cursor
// passes replayTarget (the caller should then treat the worker as live).
func (s *State) GetOplogEntry(ctx context.Context) (oplog.Entry, bool, error) {
	s.mu.Lock()
	if s.live {
		s.mu.Unlock()
		return oplog.Entry{}, false, nil
	}
	for s.inDeletedRegion(s.cursor) {
		s.cursor = s.cursor.Next()
	}
	if s.cursor > s.replayTarget {
		s.mu.Unlock()
		return oplog.Entry{}, false, nil
	}
	idx := s.cursor
	s.mu.Unlock()

	entries, err := s.backend.Read(ctx, s.owner, idx, idx)
	if err != nil {
		return oplog.Entry{}, false, fmt.Errorf("read oplog entry %v for %s: %w", idx, s.owner, err)
	}
	if len(entries) == 0 {
		// The index fell inside a region that was physically deleted
		// from storage (a backend DeleteRange) rather than merely marked deleted
		// in this replay's own deletedRegions: skip it the same way.
		s.mu.Lock()
		s.cursor = s.cursor.Next()
		s.mu.Unlock()
		return s.GetOplogEntry(ctx)
	}

	entry := entries[0]
	s.mu.Lock()
	s.cursor = s.cursor.Next()
	s.lastReplayedIndex = idx
	if !entry.Kind.IsHint() {
		s.lastReplayedNonHintIndex = idx
	}
	s.mu.Unlock()

	return entry, true, nil
}

// Predicate tests whether an entry satisfies a lookup condition, e.g.
// "is an EndRemoteWrite entry".
type Predicate func(oplog.Entry) bool

// LookupOplogEntry scans forward from `from` (exclusive) to replayTarget
// looking for the first entry matching pred, without consuming the main
// replay cursor. Returns (index, true) if found.
func (s *State) LookupOplogEntry(ctx context.Context, from OplogIndex, pred Predicate) (OplogIndex, bool, error) {
	s.mu.Lock()
	target := s.replayTarget
	s.mu.Unlock()

	for idx := from.Next(); idx <= target; idx = idx.Next() {
		if s.inDeletedRegion(idx) {
			continue
		}
		entries, err := s.backend.Read(ctx, s.owner, idx, idx)
		if err != nil {
			return oplog.OplogIndexNone, false, fmt.Errorf("lookup oplog entry from %v: %w", from, err)
		}
		if len(entries) == 0 {
			continue
		}
		if pred(entries[0]) {
			return idx, true, nil
		}
	}
	return oplog.OplogIndexNone, false, nil
}

// LookupResult is the three-way outcome of
// LookupOplogEntryWithConditionAndState, mirroring
// OplogEntryLookupResult::{Found, NotFound{violates_for_all}} in
// public_oplog.rs / durable_host/mod.rs exactly.
type LookupResult struct {
	Found          bool
	Index          OplogIndex
	Entry          oplog.Entry
	ViolatesForAll bool // only meaningful when !Found
}

// TrackFn advances a PersistenceLevel as entries are scanned past, deciding
// whether a concurrent side effect has invalidated the in-flight lookup.
// See persistence_tracking.go for the concrete transition table
// (SPEC_FULL.md §D.3).
type TrackFn func(level PersistenceLevel, entry oplog.Entry) PersistenceLevel

// NoConcurrentSideEffectFn reports whether, given the current persistence
// level, a concurrent (non-retryable) side effect has occurred that means
// the in-flight lookup can never succeed even by scanning further.
type NoConcurrentSideEffectFn func(level PersistenceLevel) bool

// LookupOplogEntryWithConditionAndState scans forward from `from` looking
// for the first entry matching pred. At every step it also tracks
// PersistenceLevel via track and checks noConcurrentSideEffect: if a
// concurrent side effect is detected before pred matches, the scan stops
// early and reports NotFound{ViolatesForAll: true} (replay can never
// recover; the caller must switch to live and fail the in-flight
// operation). If the scan reaches replayTarget without violation, it
// reports NotFound{ViolatesForAll: false} (replay should switch to live and
// retry the operation from here, via a Jump).
func (s *State) LookupOplogEntryWithConditionAndState(
	ctx context.Context,
	from OplogIndex,
	pred Predicate,
	noConcurrentSideEffect NoConcurrentSideEffectFn,
	level PersistenceLevel,
	track TrackFn,
) (LookupResult, error) {
	s.mu.Lock()
	target := s.replayTarget
	s.mu.Unlock()

	current := level
	for idx := from.Next(); idx <= target; idx = idx.Next() {
		if s.inDeletedRegion(idx) {
			continue
		}
		entries, err := s.backend.Read(ctx, s.owner, idx, idx)
		if err != nil {
			return LookupResult{}, fmt.Errorf("lookup with state from %v: %w", from, err)
		}
		if len(entries) == 0 {
			continue
		}
		entry := entries[0]

		if pred(entry) {
			return LookupResult{Found: true, Index: idx, Entry: entry}, nil
		}

		current = track(current, entry)
		if !noConcurrentSideEffect(current) {
			return LookupResult{Found: false, ViolatesForAll: true}, nil
		}
	}
	return LookupResult{Found: false, ViolatesForAll: false}, nil
}

// SeenLog reports whether a log with this (level, context, message) was
// registered by RecordSeenLog and not yet consumed; if so, it consumes one
// occurrence, the same way RemoveSeenLog does. This mirrors
// replay_state.seen_log/remove_seen_log exactly: it is a multiset, not a
// set, because the same (level, context, message) triple may legitimately
// be logged more than once by a worker.
func (s *State) SeenLog(level, context, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := logKey{level, context, message}
	seen := s.seenLogs[k] > 0
	if seen {
		s.seenLogs[k]--
		if s.seenLogs[k] == 0 {
			delete(s.seenLogs, k)
		}
	}
	return seen
}

// RemoveSeenLog explicitly clears one occurrence of a previously recorded
// log signature, used once a replayed log has been matched and should not
// be matched again by a subsequent identical log call.
func (s *State) RemoveSeenLog(level, context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := logKey{level, context, message}
	if s.seenLogs[k] > 0 {
		s.seenLogs[k]--
		if s.seenLogs[k] == 0 {
			delete(s.seenLogs, k)
		}
	}
}

// RecordSeenLog registers that a log with this signature was replayed, so a
// subsequent live occurrence of the same signature can be deduplicated by
// SeenLog.
func (s *State) RecordSeenLog(level, context, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seenLogs[logKey{level, context, message}]++
}
