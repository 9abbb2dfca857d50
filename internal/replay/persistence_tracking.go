package replay

import "github.com/golemproject/workerexec/internal/oplog"

// TrackPersistenceLevel is the state-effect function passed as the TrackFn
// argument to LookupOplogEntryWithConditionAndState. It mirrors
// OplogEntry::track_persistence_level from durable_host/mod.rs: scanning
// past a BeginAtomicRegion raises the level to PersistNothing for the
// duration of the region (nothing inside an atomic region can be treated as
// an independent side effect), EndAtomicRegion restores Smart tracking, and
// ChangeRetryPolicy is a pure bookkeeping entry that never changes the
// level (decision recorded in SPEC_FULL.md §D.3: nested ChangeRetryPolicy
// entries do not reset whatever atomic-region nesting is already active).
func TrackPersistenceLevel(level PersistenceLevel, entry oplog.Entry) PersistenceLevel {
	switch entry.Kind {
	case oplog.EntryBeginAtomicRegion:
		return PersistNothing
	case oplog.EntryEndAtomicRegion:
		return Smart
	case oplog.EntryChangeRetryPolicy:
		return level
	default:
		return level
	}
}

// NoConcurrentSideEffect reports whether, at the given persistence level, an
// observed entry can be treated as a concurrent side effect that rules out
// recovering the in-flight lookup. At PersistNothing (inside an atomic
// region) nothing counts as a disqualifying side effect, since the whole
// region is replayed atomically; at PersistRemoteSideEffects and Smart,
// any further write-shaped entry observed while scanning is disqualifying.
func NoConcurrentSideEffect(level PersistenceLevel) bool {
	return level == PersistNothing
}
