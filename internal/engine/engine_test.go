package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/golemproject/workerexec/internal/durability"
	"github.com/golemproject/workerexec/internal/hostservices"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/valuetype"
	"github.com/golemproject/workerexec/internal/workerctx"
)

type memBackend struct {
	mu      sync.Mutex
	entries map[oplog.OwnedWorkerId][]oplog.Entry
}

func newMemBackend() *memBackend {
	return &memBackend{entries: make(map[oplog.OwnedWorkerId][]oplog.Entry)}
}

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

func strArg(s string) valuetype.ValueAndType {
	return valuetype.New(
		valuetype.Value{Kind: valuetype.KindString, String: s},
		valuetype.AnalysedType{Kind: valuetype.TypeString},
	)
}

// echoExecutor returns its first argument unchanged as a single-value
// result, unless primed to trap with a retryable error the first
// `failures` times it is called for a given function.
type echoExecutor struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (e *echoExecutor) Invoke(ctx context.Context, wctx *workerctx.Context, functionName string, args []valuetype.ValueAndType) (Outcome, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.mu.Unlock()

	if call <= e.failures {
		return Outcome{Trap: &durability.Trap{
			Kind: durability.TrapError,
			Err:  durability.NewWorkerError(durability.ErrUnknown, wctx.CurrentRetryPoint(), fmt.Errorf("transient failure %d", call)),
		}}, nil
	}
	return Outcome{Result: args}, nil
}

func newTestRegistry(t *testing.T) (*Registry, oplog.ComponentId, *echoExecutor) {
	t.Helper()
	componentId := oplog.ComponentId{UUID: uuid.New()}
	components := hostservices.NewStaticComponentService()
	components.Put(hostservices.ComponentDescriptor{
		ComponentId: componentId,
		Version:     1,
		Exports:     []hostservices.AnalysedExport{{Name: "greet"}},
	})

	exec := &echoExecutor{}
	reg := NewRegistry(newMemBackend(), components, hostservices.NewContentAddressedFileLoader(nil))
	reg.NewExecutor = func(oplog.ComponentId, uint64) (WasmExecutor, error) {
		return exec, nil
	}
	return reg, componentId, exec
}

func testOwner() oplog.OwnedWorkerId {
	return oplog.OwnedWorkerId{
		ProjectId: oplog.ProjectId{UUID: uuid.New()},
		WorkerId:  oplog.WorkerId{WorkerName: "w1"},
	}
}

func TestCreateWorkerThenInvoke(t *testing.T) {
	ctx := context.Background()
	reg, componentId, _ := newTestRegistry(t)
	owner := testOwner()

	w, err := reg.CreateWorker(ctx, CreateParams{Owner: owner, Component: componentId, CreatedBy: "acct-1"})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	result, err := reg.Invoke(ctx, w, "greet", oplog.NewIdempotencyKey(), []valuetype.ValueAndType{strArg("hi")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Value.String != "hi" {
		t.Fatalf("result = %+v, want [hi]", result)
	}
	if w.Oplog.CurrentOplogIndex() != 3 {
		t.Fatalf("oplog index = %v, want 3 (Create, Invoked, Completed)", w.Oplog.CurrentOplogIndex())
	}
}

func TestInvokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg, componentId, exec := newTestRegistry(t)
	owner := testOwner()

	w, err := reg.CreateWorker(ctx, CreateParams{Owner: owner, Component: componentId, CreatedBy: "acct-1"})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	key := oplog.NewIdempotencyKey()
	if _, err := reg.Invoke(ctx, w, "greet", key, []valuetype.ValueAndType{strArg("hi")}); err != nil {
		t.Fatalf("first Invoke: %v", err)
	}
	if _, err := reg.Invoke(ctx, w, "greet", key, []valuetype.ValueAndType{strArg("hi")}); err != nil {
		t.Fatalf("second Invoke: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("executor calls = %d, want 1 (second call should hit the result cache)", exec.calls)
	}
}

func TestInvokeRetriesTransientTrap(t *testing.T) {
	ctx := context.Background()
	reg, componentId, exec := newTestRegistry(t)
	exec.failures = 2
	owner := testOwner()

	w, err := reg.CreateWorker(ctx, CreateParams{Owner: owner, Component: componentId, CreatedBy: "acct-1"})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	result, err := reg.Invoke(ctx, w, "greet", oplog.NewIdempotencyKey(), []valuetype.ValueAndType{strArg("hi")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(result) != 1 || result[0].Value.String != "hi" {
		t.Fatalf("result = %+v, want [hi]", result)
	}
	if exec.calls != 3 {
		t.Fatalf("executor calls = %d, want 3 (2 failures then success)", exec.calls)
	}
}

func TestLoadOrGetReplaysToTailAndCachesCompletedResult(t *testing.T) {
	ctx := context.Background()
	reg, componentId, exec := newTestRegistry(t)
	owner := testOwner()

	w, err := reg.CreateWorker(ctx, CreateParams{Owner: owner, Component: componentId, CreatedBy: "acct-1"})
	if err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	key := oplog.NewIdempotencyKey()
	if _, err := reg.Invoke(ctx, w, "greet", key, []valuetype.ValueAndType{strArg("hi")}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// A second registry over the same backend models a restart: no
	// in-process worker is resident, so LoadOrGet must reconstruct one by
	// replaying the oplog written above.
	reg2 := NewRegistry(reg.Backend, reg.Components, reg.FileLoader)
	reg2.NewExecutor = reg.NewExecutor

	w2, err := reg2.LoadOrGet(ctx, owner, exec)
	if err != nil {
		t.Fatalf("LoadOrGet: %v", err)
	}
	if !w2.Ctx.IsLive() {
		t.Fatalf("expected worker to be live after replay reaches the tail")
	}

	callsBefore := exec.calls
	result, err := reg2.Invoke(ctx, w2, "greet", key, []valuetype.ValueAndType{strArg("hi")})
	if err != nil {
		t.Fatalf("Invoke after reload: %v", err)
	}
	if len(result) != 1 || result[0].Value.String != "hi" {
		t.Fatalf("result = %+v, want [hi]", result)
	}
	if exec.calls != callsBefore {
		t.Fatalf("executor called %d more time(s); a duplicate request replaying to a cached key should not re-execute", exec.calls-callsBefore)
	}
}
