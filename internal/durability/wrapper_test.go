package durability

import (
	"context"
	"sync"
	"testing"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/replay"
	"github.com/golemproject/workerexec/internal/retrypolicy"
)

type memBackend struct {
	mu      sync.Mutex
	entries map[oplog.OwnedWorkerId][]oplog.Entry
}

func newMemBackend() *memBackend { return &memBackend{entries: make(map[oplog.OwnedWorkerId][]oplog.Entry)} }

func (m *memBackend) Append(ctx context.Context, owner oplog.OwnedWorkerId, entries []oplog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[owner] = append(m.entries[owner], entries...)
	return nil
}

func (m *memBackend) LastIndex(ctx context.Context, owner oplog.OwnedWorkerId) (oplog.OplogIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	es := m.entries[owner]
	if len(es) == 0 {
		return oplog.OplogIndexNone, nil
	}
	return es[len(es)-1].Index, nil
}

func (m *memBackend) Read(ctx context.Context, owner oplog.OwnedWorkerId, from, to oplog.OplogIndex) ([]oplog.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []oplog.Entry
	for _, e := range m.entries[owner] {
		if e.Index >= from && e.Index <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

func testOwner() oplog.OwnedWorkerId {
	return oplog.OwnedWorkerId{WorkerId: oplog.WorkerId{WorkerName: "w1"}}
}

func TestBeginEndFunctionLiveRecordsBrackets(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	owner := testOwner()

	ol, err := oplog.Open(ctx, backend, owner, oplog.CommitDurableOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rs, err := replay.New(ctx, backend, owner)
	if err != nil {
		t.Fatalf("replay.New: %v", err)
	}
	w := NewWrapper(ol, rs, false)

	beginIdx, err := w.BeginFunction(ctx, oplog.FunctionWriteRemote, nil)
	if err != nil {
		t.Fatalf("BeginFunction: %v", err)
	}
	if beginIdx != oplog.OplogIndexInitial {
		t.Fatalf("beginIdx = %v, want %v", beginIdx, oplog.OplogIndexInitial)
	}

	if err := w.EndFunction(ctx, oplog.FunctionWriteRemote, beginIdx); err != nil {
		t.Fatalf("EndFunction: %v", err)
	}

	entries, err := ol.Read(ctx, oplog.OplogIndexInitial, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 || entries[0].Kind != oplog.EntryBeginRemoteWrite || entries[1].Kind != oplog.EntryEndRemoteWrite {
		t.Fatalf("entries = %+v, want [BeginRemoteWrite EndRemoteWrite]", entries)
	}
}

func TestBeginFunctionReadLocalDoesNotRecordBrackets(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	owner := testOwner()

	ol, err := oplog.Open(ctx, backend, owner, oplog.CommitDurableOnly)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rs, err := replay.New(ctx, backend, owner)
	if err != nil {
		t.Fatalf("replay.New: %v", err)
	}
	w := NewWrapper(ol, rs, false)

	if _, err := w.BeginFunction(ctx, oplog.FunctionReadLocal, nil); err != nil {
		t.Fatalf("BeginFunction: %v", err)
	}

	entries, _ := backend.Read(ctx, owner, oplog.OplogIndexInitial, 10)
	if len(entries) != 0 {
		t.Fatalf("ReadLocal should not write any brackets, got %+v", entries)
	}
}

func TestGetRecoveryDecisionOnTrapInterrupt(t *testing.T) {
	cfg := retrypolicy.Default()
	result := GetRecoveryDecisionOnTrap(cfg, nil, Trap{Kind: TrapInterrupt, Interrupt: InterruptSuspend})
	if result.Decision != retrypolicy.DecisionNone {
		t.Fatalf("Suspend should never retry, got %v", result.Decision)
	}
}

func TestGetRecoveryDecisionOnTrapOutOfMemory(t *testing.T) {
	cfg := retrypolicy.Default()
	result := GetRecoveryDecisionOnTrap(cfg, nil, Trap{Kind: TrapError, Err: &WorkerError{Kind: ErrOutOfMemory}})
	if result.Decision != retrypolicy.DecisionReacquirePermits {
		t.Fatalf("OutOfMemory should ask to reacquire permits, got %v", result.Decision)
	}
}

func TestGetRecoveryDecisionOnTrapUnknownRetriesUntilExhausted(t *testing.T) {
	cfg := retrypolicy.Config{MaxAttempts: 1, MinDelay: 0, Multiplier: 1}
	previous := map[OplogIndex]uint32{1: 0}
	result := GetRecoveryDecisionOnTrap(cfg, previous, Trap{Kind: TrapError, Err: &WorkerError{Kind: ErrUnknown, RetryFrom: 1}})
	if result.Decision != retrypolicy.DecisionDelayed {
		t.Fatalf("first unknown error should retry, got %v", result.Decision)
	}

	previous[1] = 1
	result = GetRecoveryDecisionOnTrap(cfg, previous, Trap{Kind: TrapError, Err: &WorkerError{Kind: ErrUnknown, RetryFrom: 1}})
	if result.Decision != retrypolicy.DecisionNone {
		t.Fatalf("exhausted unknown error should not retry, got %v", result.Decision)
	}
}
