package workerctx

import (
	"context"
	"sync"
	"testing"

	"github.com/golemproject/workerexec/internal/durability"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/replay"
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

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx := context.Background()
	backend := newMemBackend()
	owner := oplog.OwnedWorkerId{WorkerId: oplog.WorkerId{WorkerName: "w1"}}

	ol, err := oplog.Open(ctx, backend, owner, oplog.CommitDurableOnly)
	if err != nil {
		t.Fatalf("oplog.Open: %v", err)
	}
	rs, err := replay.New(ctx, backend, owner)
	if err != nil {
		t.Fatalf("replay.New: %v", err)
	}
	w := durability.NewWrapper(ol, rs, true)

	return New(owner, "acct-1", ComponentMetadata{Version: 1}, ol, rs, w,
		map[string]string{"LOG_LEVEL": "info"}, map[string]IFSFile{
			"/etc/config.json": {Path: "/etc/config.json", Content: []byte("{}"), ReadOnly: true},
		})
}

func TestNewContextStartsIdleAndLive(t *testing.T) {
	c := newTestContext(t)
	if c.Lifecycle() != LifecycleIdle {
		t.Fatalf("lifecycle = %v, want idle", c.Lifecycle())
	}
	if !c.IsLive() {
		t.Fatalf("expected a fresh worker with an empty oplog to start live")
	}
}

func TestIdempotencyKeyRoundTrips(t *testing.T) {
	c := newTestContext(t)
	if c.GetCurrentIdempotencyKey() != nil {
		t.Fatalf("expected no idempotency key set initially")
	}
	key := oplog.NewIdempotencyKey()
	c.SetCurrentIdempotencyKey(key)
	got := c.GetCurrentIdempotencyKey()
	if got == nil || got.Value != key.Value {
		t.Fatalf("got = %v, want %v", got, key)
	}
}

func TestInvocationLifecycleTransitions(t *testing.T) {
	c := newTestContext(t)
	c.OnExportedFunctionInvoked(oplog.NewIdempotencyKey())
	if c.Lifecycle() != LifecycleRunning {
		t.Fatalf("lifecycle = %v, want running", c.Lifecycle())
	}

	c.OnInvocationFailure("boom")
	if c.Lifecycle() != LifecycleFailed {
		t.Fatalf("lifecycle = %v, want failed", c.Lifecycle())
	}
	msg, count := c.LastErrorAndRetryCount()
	if msg != "boom" || count != 1 {
		t.Fatalf("last error = (%q, %d), want (boom, 1)", msg, count)
	}

	c.OnInvocationFailure("boom")
	_, count = c.LastErrorAndRetryCount()
	if count != 2 {
		t.Fatalf("retry count = %d, want 2", count)
	}

	c.OnInvocationSuccess()
	if c.Lifecycle() != LifecycleIdle {
		t.Fatalf("lifecycle = %v, want idle", c.Lifecycle())
	}
	msg, count = c.LastErrorAndRetryCount()
	if msg != "" || count != 0 {
		t.Fatalf("expected last error cleared on success, got (%q, %d)", msg, count)
	}
}

func TestAtomicRegionOverridesRetryPoint(t *testing.T) {
	c := newTestContext(t)
	c.SetCurrentRetryPoint(5)
	if c.CurrentRetryPoint() != 5 {
		t.Fatalf("retry point = %v, want 5", c.CurrentRetryPoint())
	}

	c.BeginAtomicRegion(2)
	if c.CurrentRetryPoint() != 2 {
		t.Fatalf("inside atomic region retry point = %v, want 2", c.CurrentRetryPoint())
	}

	c.EndAtomicRegion()
	if c.CurrentRetryPoint() != 5 {
		t.Fatalf("after region ends retry point = %v, want 5", c.CurrentRetryPoint())
	}
}

func TestResourceTableAddGetBorrowDrop(t *testing.T) {
	c := newTestContext(t)
	id := c.AddResource("counter", 42)

	typeName, handle, ok := c.GetResource(id)
	if !ok || typeName != "counter" || handle.(int) != 42 {
		t.Fatalf("GetResource = (%q, %v, %v)", typeName, handle, ok)
	}

	borrowed, err := c.BorrowResource(id)
	if err != nil || borrowed.(int) != 42 {
		t.Fatalf("BorrowResource = (%v, %v)", borrowed, err)
	}

	c.DropResource(id)
	if _, _, ok := c.GetResource(id); ok {
		t.Fatalf("expected resource to be gone after Drop")
	}
}

func TestIFSReadOnlyPathsAndReadFile(t *testing.T) {
	c := newTestContext(t)
	if !c.IsReadOnlyPath("/etc/config.json") {
		t.Fatalf("expected /etc/config.json to be read-only")
	}
	data, ok := c.ReadFile("/etc/config.json")
	if !ok || string(data) != "{}" {
		t.Fatalf("ReadFile = (%q, %v)", data, ok)
	}

	c.SetFile("/tmp/scratch", IFSFile{Path: "/tmp/scratch", Content: []byte("x")})
	if c.IsReadOnlyPath("/tmp/scratch") {
		t.Fatalf("new file should not be read-only before RecomputeReadOnlyPaths")
	}
}

func TestWasiConfigVarsSnapshotIsIndependent(t *testing.T) {
	c := newTestContext(t)
	vars := c.WasiConfigVars()
	vars["LOG_LEVEL"] = "debug"

	if got := c.WasiConfigVars()["LOG_LEVEL"]; got != "info" {
		t.Fatalf("mutating the returned snapshot should not affect context state, got %q", got)
	}
}

func TestInvocationContextSpanTree(t *testing.T) {
	ic := NewInvocationContext()
	root := ic.Root()
	child := ic.StartSpan(nil)
	if ic.Current() != child {
		t.Fatalf("StartSpan should move Current to the new span")
	}

	stack := ic.Stack()
	if len(stack) != 2 || stack[0] != child || stack[1] != root {
		t.Fatalf("stack = %v, want [child root]", stack)
	}

	ic.FinishSpan(child)
	if ic.Current() != root {
		t.Fatalf("finishing the current span should move Current back to its parent")
	}
}
