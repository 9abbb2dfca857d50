package hostservices

import (
	"context"
	"testing"
	"time"

	"github.com/golemproject/workerexec/internal/oplog"
)

func TestInMemoryPromiseServiceCompleteBeforeAwait(t *testing.T) {
	svc := NewInMemoryPromiseService()
	ctx := context.Background()
	workerId := oplog.WorkerId{WorkerName: "w1"}

	id, err := svc.Create(ctx, workerId, oplog.OplogIndex(5))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Complete(ctx, id, []byte("done")); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	data, err := svc.Await(ctx, id)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if string(data) != "done" {
		t.Fatalf("Await returned %q, want %q", data, "done")
	}
}

func TestInMemoryPromiseServiceAwaitBlocksUntilComplete(t *testing.T) {
	svc := NewInMemoryPromiseService()
	ctx := context.Background()
	workerId := oplog.WorkerId{WorkerName: "w2"}

	id, err := svc.Create(ctx, workerId, oplog.OplogIndex(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resultCh := make(chan []byte, 1)
	go func() {
		data, _ := svc.Await(ctx, id)
		resultCh <- data
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-resultCh:
		t.Fatalf("Await returned before Complete was called")
	default:
	}

	if err := svc.Complete(ctx, id, []byte("later")); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	select {
	case data := <-resultCh:
		if string(data) != "later" {
			t.Fatalf("Await returned %q, want %q", data, "later")
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock after Complete")
	}
}

func TestInMemoryPromiseServiceAwaitRespectsContextCancellation(t *testing.T) {
	svc := NewInMemoryPromiseService()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	id, err := svc.Create(context.Background(), oplog.WorkerId{WorkerName: "w3"}, oplog.OplogIndex(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Await(ctx, id); err == nil {
		t.Fatalf("expected Await to return an error once its context expired")
	}
}

func TestInMemoryPromiseServiceCompleteIsIdempotent(t *testing.T) {
	svc := NewInMemoryPromiseService()
	ctx := context.Background()
	id, _ := svc.Create(ctx, oplog.WorkerId{WorkerName: "w4"}, oplog.OplogIndex(1))

	if err := svc.Complete(ctx, id, []byte("first")); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if err := svc.Complete(ctx, id, []byte("second")); err != nil {
		t.Fatalf("second Complete: %v", err)
	}

	data, _ := svc.Await(ctx, id)
	if string(data) != "first" {
		t.Fatalf("expected the first Complete's data to win, got %q", data)
	}
}
