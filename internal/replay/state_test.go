package replay

import (
	"context"
	"sync"
	"testing"

	"github.com/golemproject/workerexec/internal/oplog"
)

type fakeBackend struct {
	mu      sync.Mutex
	entries map[oplog.OwnedWorkerId][]oplog.Entry
}

func newFakeBackend(entries ...oplog.Entry) *fakeBackend {
	owner := testOwner()
	return &fakeBackend{entries: map[oplog.OwnedWorkerId][]oplog.Entry{owner: entries}}
}

func (f *fakeBackend) Append(ctx context.Context, owner oplog.OwnedWorkerId, entries []oplog.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[owner] = append(f.entries[owner], entries...)
	return nil
}

func (f *fakeBackend) LastIndex(ctx context.Context, owner oplog.OwnedWorkerId) (oplog.OplogIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	es := f.entries[owner]
	if len(es) == 0 {
		return oplog.OplogIndexNone, nil
	}
	return es[len(es)-1].Index, nil
}

func (f *fakeBackend) Read(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) ([]oplog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []oplog.Entry
	for _, e := range f.entries[owner] {
		if e.Index >= from && e.Index <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func testOwner() oplog.OwnedWorkerId {
	return oplog.OwnedWorkerId{WorkerId: oplog.WorkerId{WorkerName: "w1"}}
}

func TestStateReplaysEntriesInOrder(t *testing.T) {
	backend := newFakeBackend(
		oplog.Entry{Index: 1, Kind: oplog.EntryCreate},
		oplog.Entry{Index: 2, Kind: oplog.EntryExportedFunctionInvoked},
		oplog.Entry{Index: 3, Kind: oplog.EntryExportedFunctionCompleted},
	)
	ctx := context.Background()
	s, err := New(ctx, backend, testOwner())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.IsLive() {
		t.Fatalf("state with entries should start in replay")
	}

	var got []oplog.EntryKind
	for {
		e, ok, err := s.GetOplogEntry(ctx)
		if err != nil {
			t.Fatalf("GetOplogEntry: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, e.Kind)
	}
	want := []oplog.EntryKind{oplog.EntryCreate, oplog.EntryExportedFunctionInvoked, oplog.EntryExportedFunctionCompleted}
	if len(got) != len(want) {
		t.Fatalf("got %v entries, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}

	if s.LastReplayedNonHintIndex() != 3 {
		t.Fatalf("LastReplayedNonHintIndex = %v, want 3", s.LastReplayedNonHintIndex())
	}
}

func TestStateEmptyOplogStartsLive(t *testing.T) {
	backend := newFakeBackend()
	s, err := New(context.Background(), backend, testOwner())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !s.IsLive() {
		t.Fatalf("state with empty oplog should start live")
	}
}

func TestDeletedRegionIsSkippedDuringReplay(t *testing.T) {
	backend := newFakeBackend(
		oplog.Entry{Index: 1, Kind: oplog.EntryCreate},
		oplog.Entry{Index: 2, Kind: oplog.EntryBeginRemoteWrite},
		oplog.Entry{Index: 3, Kind: oplog.EntryJump},
	)
	ctx := context.Background()
	s, err := New(ctx, backend, testOwner())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.AddDeletedRegion(oplog.Region{Start: 2, End: 2})

	var got []oplog.EntryKind
	for {
		e, ok, err := s.GetOplogEntry(ctx)
		if err != nil {
			t.Fatalf("GetOplogEntry: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, e.Kind)
	}
	if len(got) != 2 || got[0] != oplog.EntryCreate || got[1] != oplog.EntryJump {
		t.Fatalf("got %v, want [create jump] with index 2 skipped", got)
	}
}

func TestLookupOplogEntryWithConditionAndStateFindsMatch(t *testing.T) {
	backend := newFakeBackend(
		oplog.Entry{Index: 1, Kind: oplog.EntryBeginRemoteWrite},
		oplog.Entry{Index: 2, Kind: oplog.EntryNoOp},
		oplog.Entry{Index: 3, Kind: oplog.EntryEndRemoteWrite},
	)
	ctx := context.Background()
	s, err := New(ctx, backend, testOwner())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetReplayTarget(3)

	result, err := s.LookupOplogEntryWithConditionAndState(
		ctx, 1,
		func(e oplog.Entry) bool { return e.Kind == oplog.EntryEndRemoteWrite },
		NoConcurrentSideEffect,
		Smart,
		TrackPersistenceLevel,
	)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !result.Found || result.Index != 3 {
		t.Fatalf("result = %+v, want Found at index 3", result)
	}
}

func TestLookupOplogEntryWithConditionAndStateNotFoundViolatesForAll(t *testing.T) {
	backend := newFakeBackend(
		oplog.Entry{Index: 1, Kind: oplog.EntryBeginRemoteWrite},
		oplog.Entry{Index: 2, Kind: oplog.EntryImportedFunctionInvoked},
	)
	ctx := context.Background()
	s, err := New(ctx, backend, testOwner())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetReplayTarget(2)

	alwaysViolates := func(level PersistenceLevel) bool { return false }

	result, err := s.LookupOplogEntryWithConditionAndState(
		ctx, 1,
		func(e oplog.Entry) bool { return e.Kind == oplog.EntryEndRemoteWrite },
		alwaysViolates,
		Smart,
		TrackPersistenceLevel,
	)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if result.Found || !result.ViolatesForAll {
		t.Fatalf("result = %+v, want NotFound{ViolatesForAll: true}", result)
	}
}

func TestSeenLogDedup(t *testing.T) {
	backend := newFakeBackend()
	s, err := New(context.Background(), backend, testOwner())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if s.SeenLog("info", "ctx", "hello") {
		t.Fatalf("expected not-seen before recording")
	}
	s.RecordSeenLog("info", "ctx", "hello")
	if !s.SeenLog("info", "ctx", "hello") {
		t.Fatalf("expected seen after recording")
	}
	if s.SeenLog("info", "ctx", "hello") {
		t.Fatalf("expected not-seen after the single recorded occurrence was consumed")
	}
}
