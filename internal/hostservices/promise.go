package hostservices

import (
	"context"
	"fmt"
	"sync"

	"github.com/golemproject/workerexec/internal/oplog"
)

// PromiseId names one outstanding promise a worker is awaiting, scoped to
// the worker and the oplog index it was created at.
type PromiseId struct {
	WorkerId      oplog.WorkerId
	AwaitingIndex oplog.OplogIndex
}

func (p PromiseId) String() string {
	return fmt.Sprintf("%s@%d", p.WorkerId, p.AwaitingIndex)
}

// PromiseService lets a worker suspend awaiting an externally-completed
// value, and lets an external caller complete it. Completion triggers a
// scheduler wake so the awaiting worker is re-polled rather than relying on
// the scheduler's own poll interval.
type PromiseService interface {
	Create(ctx context.Context, workerId oplog.WorkerId, awaitingIndex oplog.OplogIndex) (PromiseId, error)
	Complete(ctx context.Context, id PromiseId, data []byte) error

	// Await blocks until id is completed or ctx is done, returning the
	// data passed to Complete.
	Await(ctx context.Context, id PromiseId) ([]byte, error)
}

type promiseState struct {
	done chan struct{}
	data []byte
	once sync.Once
}

// InMemoryPromiseService is the single-node promise backend: completion
// fans out to any in-process waiter via a closed channel. It holds no
// SchedulerService and notifies none on completion.
type InMemoryPromiseService struct {
	mu       sync.Mutex
	promises map[PromiseId]*promiseState
}

func NewInMemoryPromiseService() *InMemoryPromiseService {
	return &InMemoryPromiseService{promises: make(map[PromiseId]*promiseState)}
}

func (s *InMemoryPromiseService) Create(ctx context.Context, workerId oplog.WorkerId, awaitingIndex oplog.OplogIndex) (PromiseId, error) {
	id := PromiseId{WorkerId: workerId, AwaitingIndex: awaitingIndex}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.promises[id]; !exists {
		s.promises[id] = &promiseState{done: make(chan struct{})}
	}
	return id, nil
}

func (s *InMemoryPromiseService) Complete(ctx context.Context, id PromiseId, data []byte) error {
	s.mu.Lock()
	st, ok := s.promises[id]
	if !ok {
		st = &promiseState{done: make(chan struct{})}
		s.promises[id] = st
	}
	s.mu.Unlock()

	st.once.Do(func() {
		st.data = data
		close(st.done)
	})
	return nil
}

func (s *InMemoryPromiseService) Await(ctx context.Context, id PromiseId) ([]byte, error) {
	s.mu.Lock()
	st, ok := s.promises[id]
	if !ok {
		st = &promiseState{done: make(chan struct{})}
		s.promises[id] = st
	}
	s.mu.Unlock()

	select {
	case <-st.done:
		return st.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ PromiseService = (*InMemoryPromiseService)(nil)
