package hostservices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/golemproject/workerexec/internal/logging"
)

// ScheduleId names one scheduled action, assigned on Schedule.
type ScheduleId struct {
	UUID uuid.UUID
}

func (s ScheduleId) String() string { return s.UUID.String() }

// ActionKind is the closed set of things a scheduled entry can do once its
// time arrives. CompletePromise is the only kind spec.md names; it is kept
// as its own type rather than an interface so the scheduler can persist and
// replay its queue without needing a registry of action implementations.
type ActionKind string

const ActionCompletePromise ActionKind = "complete_promise"

// Action is what fires when a scheduled entry's time arrives.
type Action struct {
	Kind      ActionKind
	Account   string
	Project   string
	PromiseId PromiseId
	Data      []byte
}

// SchedulerService queues an Action to run at an absolute time, following
// the teacher's own scheduler (internal/scheduler/scheduler.go) for its
// mutex-guarded entry map, generalized
// from cron expressions to one-shot absolute-time firing since promise
// completion deadlines are computed at creation time, not recurring.
type SchedulerService interface {
	Schedule(ctx context.Context, when time.Time, action Action) (ScheduleId, error)
	Cancel(id ScheduleId) error
}

type scheduledEntry struct {
	action Action
	timer  *time.Timer
}

// TimerScheduler is the single-node SchedulerService backend: each entry is
// a time.Timer firing a promise completion. A multi-node deployment would
// instead persist entries and poll them the way the teacher's cron-backed
// scheduler loads its table from store on Start.
type TimerScheduler struct {
	promises PromiseService

	mu      sync.Mutex
	entries map[ScheduleId]*scheduledEntry
}

func NewTimerScheduler(promises PromiseService) *TimerScheduler {
	return &TimerScheduler{
		promises: promises,
		entries:  make(map[ScheduleId]*scheduledEntry),
	}
}

func (s *TimerScheduler) Schedule(ctx context.Context, when time.Time, action Action) (ScheduleId, error) {
	id := ScheduleId{UUID: uuid.New()}
	delay := time.Until(when)
	if delay < 0 {
		delay = 0
	}

	entry := &scheduledEntry{action: action}
	entry.timer = time.AfterFunc(delay, func() {
		s.fire(id, action)
	})

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	return id, nil
}

func (s *TimerScheduler) Cancel(id ScheduleId) error {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	entry.timer.Stop()
	return nil
}

func (s *TimerScheduler) fire(id ScheduleId, action Action) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	switch action.Kind {
	case ActionCompletePromise:
		if err := s.promises.Complete(context.Background(), action.PromiseId, action.Data); err != nil {
			logging.Op().Error("scheduled promise completion failed", "schedule", id, "promise", action.PromiseId, "error", err)
		}
	default:
		logging.Op().Warn("scheduled action with unknown kind fired", "schedule", id, "kind", action.Kind)
	}
}

var _ SchedulerService = (*TimerScheduler)(nil)
