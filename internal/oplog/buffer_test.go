package oplog

import (
	"context"
	"sync"
	"testing"
)

type memBackend struct {
	mu      sync.Mutex
	entries map[OwnedWorkerId][]Entry
}

func newMemBackend() *memBackend {
	return &memBackend{entries: make(map[OwnedWorkerId][]Entry)}
}

func (m *memBackend) Append(ctx context.Context, owner OwnedWorkerId, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[owner] = append(m.entries[owner], entries...)
	return nil
}

func (m *memBackend) LastIndex(ctx context.Context, owner OwnedWorkerId) (OplogIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	es := m.entries[owner]
	if len(es) == 0 {
		return OplogIndexNone, nil
	}
	return es[len(es)-1].Index, nil
}

func (m *memBackend) Read(ctx context.Context, owner OwnedWorkerId, from, to OplogIndex) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries[owner] {
		if e.Index >= from && e.Index <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func testOwner() OwnedWorkerId {
	return OwnedWorkerId{WorkerId: WorkerId{WorkerName: "w1"}}
}

func TestWorkerOplogAddAssignsSequentialIndices(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()
	w, err := Open(ctx, backend, testOwner(), CommitDurableOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	idx1, err := w.Add(ctx, Entry{Kind: EntryCreate})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx1 != OplogIndexInitial {
		t.Fatalf("first index = %v, want %v", idx1, OplogIndexInitial)
	}

	idx2, err := w.Add(ctx, Entry{Kind: EntryExportedFunctionInvoked})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx2 != idx1.Next() {
		t.Fatalf("second index = %v, want %v", idx2, idx1.Next())
	}

	if w.LastAddedNonHintEntry() != idx2 {
		t.Fatalf("LastAddedNonHintEntry = %v, want %v", w.LastAddedNonHintEntry(), idx2)
	}
}

func TestWorkerOplogDurableOnlyDefersFlush(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()
	owner := testOwner()
	w, err := Open(ctx, backend, owner, CommitDurableOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := w.Add(ctx, Entry{Kind: EntryCreate}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if last, _ := backend.LastIndex(ctx, owner); !last.IsNone() {
		t.Fatalf("entry flushed before Commit: last = %v", last)
	}

	if err := w.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	entries, err := backend.Read(ctx, owner, OplogIndexInitial, OplogIndexInitial)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != EntryCreate {
		t.Fatalf("Read after commit = %+v, want one create entry", entries)
	}
}

func TestWorkerOplogImmediateFlushesEveryAdd(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()
	owner := testOwner()
	w, err := Open(ctx, backend, owner, CommitImmediate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := w.Add(ctx, Entry{Kind: EntryCreate}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	last, err := backend.LastIndex(ctx, owner)
	if err != nil {
		t.Fatalf("LastIndex: %v", err)
	}
	if last != OplogIndexInitial {
		t.Fatalf("CommitImmediate did not flush synchronously: last = %v", last)
	}
}

func TestOplogIndexPreviousNext(t *testing.T) {
	if OplogIndexInitial.Previous() != OplogIndexNone {
		t.Fatalf("Initial.Previous() = %v, want None", OplogIndexInitial.Previous())
	}
	if OplogIndexNone.Next() != OplogIndexInitial {
		t.Fatalf("None.Next() = %v, want Initial", OplogIndexNone.Next())
	}
	if OplogIndexNone.Previous() != OplogIndexNone {
		t.Fatalf("None.Previous() = %v, want None", OplogIndexNone.Previous())
	}
}

func TestRegionContainsAndOverlaps(t *testing.T) {
	r := Region{Start: 5, End: 10}
	if !r.Contains(5) || !r.Contains(10) || r.Contains(4) || r.Contains(11) {
		t.Fatalf("Contains boundary check failed for %+v", r)
	}
	if !r.Overlaps(Region{Start: 10, End: 20}) {
		t.Fatalf("expected overlap at boundary")
	}
	if r.Overlaps(Region{Start: 11, End: 20}) {
		t.Fatalf("unexpected overlap")
	}
	if r.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", r.Len())
	}
}
