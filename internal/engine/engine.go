// Package engine drives the orchestration loop spec.md §2 describes: create
// context → drive replay to tail → switch to live → accept invocation →
// persist begin+args → execute → persist result → commit. It is the "Glue"
// row of the component table, tying together internal/oplogservice,
// internal/oplog, internal/replay, internal/durability, internal/workerctx
// and internal/publicoplog into a runnable per-worker lifecycle. Grounded on
// the teacher's internal/executor/executor.go (the single entry-point
// Invoke pipeline shape, parallel prefetch via errgroup) and
// internal/pool (the non-owning WorkerId→slot dictionary spec.md §9
// prescribes in place of a back-reference cycle).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/golemproject/workerexec/internal/durability"
	"github.com/golemproject/workerexec/internal/hostservices"
	"github.com/golemproject/workerexec/internal/logging"
	"github.com/golemproject/workerexec/internal/logsink"
	"github.com/golemproject/workerexec/internal/metrics"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/payloadstore"
	"github.com/golemproject/workerexec/internal/replay"
	"github.com/golemproject/workerexec/internal/retrypolicy"
	"github.com/golemproject/workerexec/internal/valuetype"
	"github.com/golemproject/workerexec/internal/workerctx"
)

// Worker is one running instance: its durable handles plus the executor
// this registry will dispatch invocations to. Access is serialised by mu,
// matching spec.md §5's single-threaded cooperative scheduling model — a
// worker's WASM instance, durability wrapper and oplog front buffer are
// manipulated by exactly one task at a time.
type Worker struct {
	mu sync.Mutex

	Owner   oplog.OwnedWorkerId
	Oplog   *oplog.WorkerOplog
	Replay  *replay.State
	Wrapper *durability.Wrapper
	Ctx     *workerctx.Context

	Executor WasmExecutor

	retryPolicy    retrypolicy.Config
	previousTries  map[oplog.OplogIndex]uint32
	invocationOpen oplog.OplogIndex // index of the open ExportedFunctionInvoked, or None
	resultCache    map[oplog.IdempotencyKey][]valuetype.ValueAndType
	lastOpenKey    *oplog.IdempotencyKey // set by replay bookkeeping between Invoked and Completed
}

// Registry owns the dictionary WorkerId → *Worker. Per spec.md §9's
// prescribed fix for the back-reference/cycle problem, callers never hold a
// worker across a yield point by strong reference into another worker's
// state — they look a worker back up by OwnedWorkerId through the registry.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Worker

	Backend       oplog.Backend
	Components    hostservices.ComponentService
	FileLoader    hostservices.FileLoader
	DefaultLevel  replay.PersistenceLevel
	DefaultRetry  retrypolicy.Config
	CommitLevel   oplog.CommitLevel
	NewExecutor   func(oplog.ComponentId, uint64) (WasmExecutor, error)

	// LogSink receives one InvocationLog per completed or failed
	// invocation, if set. Left nil it defaults to a no-op (not every
	// deployment wants invocations mirrored into Postgres).
	LogSink logsink.LogSink

	// Payloads backs oversized request/response spill (see
	// invoke.go's inlinePayloadLimit). Defaults to an in-process
	// store; production deployments wire an S3-backed one.
	Payloads payloadstore.Store
}

// NewRegistry constructs an empty worker registry over the given durable
// oplog backend and host service contracts.
func NewRegistry(backend oplog.Backend, components hostservices.ComponentService, fileLoader hostservices.FileLoader) *Registry {
	return &Registry{
		workers:      make(map[string]*Worker),
		Backend:      backend,
		Components:   components,
		FileLoader:   fileLoader,
		DefaultLevel: replay.Smart,
		DefaultRetry: retrypolicy.Default(),
		CommitLevel:  oplog.CommitDurableOnly,
		LogSink:      logsink.NewNoopSink(),
		Payloads:     payloadstore.NewMemoryStore(),
	}
}

func (r *Registry) lookup(owner oplog.OwnedWorkerId) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[owner.String()]
	return w, ok
}

func (r *Registry) store(owner oplog.OwnedWorkerId, w *Worker) {
	r.mu.Lock()
	r.workers[owner.String()] = w
	r.mu.Unlock()
}

// Evict drops a worker from the registry (e.g. after a prolonged idle
// period). It does not delete its oplog — only explicit worker deletion
// (out of scope, §3 "Lifecycle") does that.
func (r *Registry) Evict(owner oplog.OwnedWorkerId) {
	r.mu.Lock()
	delete(r.workers, owner.String())
	r.mu.Unlock()
}

// CreateParams describes a brand-new worker invocation (the Create oplog
// entry's payload).
type CreateParams struct {
	Owner     oplog.OwnedWorkerId
	Component oplog.ComponentId
	Version   *uint64
	Args      []string
	Env       map[string]string
	CreatedBy string
	Parent    *oplog.WorkerId
}

// CreateWorker appends the worker's Create entry (index 1) and returns a
// live Worker ready to accept invocations. Fails if the worker already has
// an oplog (last_index != NONE).
func (r *Registry) CreateWorker(ctx context.Context, p CreateParams) (*Worker, error) {
	last, err := r.Backend.LastIndex(ctx, p.Owner)
	if err != nil {
		return nil, fmt.Errorf("create worker %s: %w", p.Owner, err)
	}
	if !last.IsNone() {
		return nil, fmt.Errorf("create worker %s: already exists at index %v", p.Owner, last)
	}

	var desc hostservices.ComponentDescriptor
	var ol *oplog.WorkerOplog
	var rs *replay.State

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		desc, err = r.Components.GetMetadata(gctx, p.Component, p.Version)
		if err != nil {
			return fmt.Errorf("fetch component metadata: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ol, err = oplog.Open(gctx, r.Backend, p.Owner, r.CommitLevel)
		return err
	})
	g.Go(func() error {
		var err error
		rs, err = replay.New(gctx, r.Backend, p.Owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("create worker %s: %w", p.Owner, err)
	}
	wrapper := durability.NewWrapper(ol, rs, true)

	files := materializeIFS(desc)
	wctx := workerctx.New(p.Owner, p.CreatedBy, workerctx.ComponentMetadata{
		ComponentId: desc.ComponentId,
		Version:     desc.Version,
		MemoryPages: desc.MemoryPages,
	}, ol, rs, wrapper, configVarsFromEnv(p.Env), files)

	if _, err := ol.AddAndCommit(ctx, oplog.Entry{
		Kind:             oplog.EntryCreate,
		ComponentId:      &p.Component,
		ComponentVersion: &desc.Version,
		WorkerArgs:       p.Args,
		WorkerEnv:        p.Env,
		CreatedBy:        &p.CreatedBy,
		ParentWorker:     p.Parent,
	}); err != nil {
		return nil, fmt.Errorf("create worker %s: persist Create entry: %w", p.Owner, err)
	}

	exec, err := r.newExecutor(desc)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		Owner:         p.Owner,
		Oplog:         ol,
		Replay:        rs,
		Wrapper:       wrapper,
		Ctx:           wctx,
		Executor:      exec,
		retryPolicy:   r.DefaultRetry,
		previousTries: make(map[oplog.OplogIndex]uint32),
	}
	r.store(p.Owner, w)
	logging.Op().Info("worker created", "worker", p.Owner.String(), "component", p.Component.String())
	metrics.Global().RecordOplogAppend()
	return w, nil
}

func (r *Registry) newExecutor(desc hostservices.ComponentDescriptor) (WasmExecutor, error) {
	if r.NewExecutor == nil {
		return NewNullExecutor(), nil
	}
	return r.NewExecutor(desc.ComponentId, desc.Version)
}

func configVarsFromEnv(env map[string]string) map[string]string {
	vars := make(map[string]string, len(env))
	for k, v := range env {
		vars[k] = v
	}
	return vars
}

func materializeIFS(desc hostservices.ComponentDescriptor) map[string]workerctx.IFSFile {
	files := make(map[string]workerctx.IFSFile, len(desc.Files))
	for _, f := range desc.Files {
		files[f.Path] = workerctx.IFSFile{
			Path:     f.Path,
			ReadOnly: f.Permissions != "read-write",
		}
	}
	return files
}

// LoadOrGet returns the Worker for owner, reconstructing it from its oplog
// (driving replay to the tail, then switching to live) if it is not already
// resident in the registry.
func (r *Registry) LoadOrGet(ctx context.Context, owner oplog.OwnedWorkerId, exec WasmExecutor) (*Worker, error) {
	if w, ok := r.lookup(owner); ok {
		return w, nil
	}

	last, err := r.Backend.LastIndex(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load worker %s: %w", owner, err)
	}
	if last.IsNone() {
		return nil, fmt.Errorf("load worker %s: no oplog (worker was never created)", owner)
	}

	var ol *oplog.WorkerOplog
	var rs *replay.State
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ol, err = oplog.Open(gctx, r.Backend, owner, r.CommitLevel)
		return err
	})
	g.Go(func() error {
		var err error
		rs, err = replay.New(gctx, r.Backend, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load worker %s: %w", owner, err)
	}
	wrapper := durability.NewWrapper(ol, rs, true)
	wctx := workerctx.New(owner, "", workerctx.ComponentMetadata{}, ol, rs, wrapper, nil, nil)

	w := &Worker{
		Owner:         owner,
		Oplog:         ol,
		Replay:        rs,
		Wrapper:       wrapper,
		Ctx:           wctx,
		Executor:      exec,
		retryPolicy:   r.DefaultRetry,
		previousTries: make(map[oplog.OplogIndex]uint32),
	}

	if err := r.driveReplay(ctx, w); err != nil {
		return nil, fmt.Errorf("load worker %s: replay: %w", owner, err)
	}
	r.store(owner, w)
	return w, nil
}

// driveReplay consumes every entry up to the replay target, reconstructing
// in-memory state deterministically (invariant 1, spec.md §8), then
// switches the worker to live and applies any replay event queued up along
// the way (§4.E "Replay event processing").
func (r *Registry) driveReplay(ctx context.Context, w *Worker) error {
	for {
		entry, ok, err := w.Ctx.Replay.GetOplogEntry(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := r.applyReplayedEntry(ctx, w, entry); err != nil {
			return fmt.Errorf("apply replayed entry %v (%s): %w", entry.Index, entry.Kind, err)
		}
	}
	w.Ctx.Replay.SwitchToLive()
	logging.Op().Debug("worker replay finished, switched to live", "worker", w.Owner.String())

	if pu := w.Ctx.GetPendingUpdate(); pu != nil {
		if err := r.applyPendingUpdate(ctx, w, pu); err != nil {
			return err
		}
	}
	return nil
}

// applyReplayedEntry folds one oplog entry into a worker's in-memory state
// during replay. It never performs real I/O: every effect here is pure
// bookkeeping reconstruction, mirroring what the corresponding live
// operation already recorded. Entries belonging to the begin/end remote
// write and transaction protocol are intentionally not replayed here —
// those are consumed by internal/durability.Wrapper.BeginFunction/
// EndFunction while the worker's exported function is itself being
// re-invoked (see Invoke in invoke.go), since only the actual re-execution
// of the component knows which host calls it is about to make.
func (r *Registry) applyReplayedEntry(ctx context.Context, w *Worker, entry oplog.Entry) error {
	switch entry.Kind {
	case oplog.EntryCreate:
		if entry.ComponentId != nil {
			w.Ctx.ComponentMetadata.ComponentId = *entry.ComponentId
		}
		if entry.ComponentVersion != nil {
			w.Ctx.ComponentMetadata.Version = *entry.ComponentVersion
		}
		if entry.CreatedBy != nil {
			w.Ctx.CreatedBy = *entry.CreatedBy
		}
	case oplog.EntryExportedFunctionInvoked:
		if entry.IdempotencyKey != nil {
			w.Ctx.OnExportedFunctionInvoked(*entry.IdempotencyKey)
			key := *entry.IdempotencyKey
			w.lastOpenKey = &key
		}
		w.invocationOpen = entry.Index
	case oplog.EntryExportedFunctionCompleted:
		w.Ctx.OnInvocationSuccess()
		w.invocationOpen = oplog.OplogIndexNone
		if w.lastOpenKey != nil {
			if data, err := r.loadPayload(ctx, entry.Response, entry.PayloadRef); err == nil {
				if result, err := valuetype.DecodeMany(data); err == nil {
					w.cacheResult(*w.lastOpenKey, result)
				} else {
					logging.Op().Warn("replay: failed to decode cached invocation result", "worker", w.Owner.String(), "error", err)
				}
			} else {
				logging.Op().Warn("replay: failed to load cached invocation payload", "worker", w.Owner.String(), "error", err)
			}
			w.lastOpenKey = nil
		}
	case oplog.EntryError:
		w.Ctx.OnInvocationFailure(entry.ErrorMessage)
		if entry.RetryFrom != nil {
			w.previousTries[*entry.RetryFrom]++
		}
	case oplog.EntrySuspend:
		w.Ctx.SetLifecycle(workerctx.LifecycleSuspended)
	case oplog.EntryInterrupted:
		w.Ctx.SetLifecycle(workerctx.LifecycleInterrupted)
	case oplog.EntryExited:
		w.Ctx.SetLifecycle(workerctx.LifecycleExited)
	case oplog.EntryRestart:
		w.Ctx.SetLifecycle(workerctx.LifecycleRetrying)
	case oplog.EntryCreateResource:
		w.Ctx.AddResource(entry.ResourceName, nil)
	case oplog.EntryDropResource:
		if entry.ResourceId != nil {
			w.Ctx.DropResource(*entry.ResourceId)
		}
	case oplog.EntryGrowMemory:
		w.Ctx.GrowLinearMemory(uint64(entry.DeltaBytes))
	case oplog.EntryChangeRetryPolicy:
		if entry.RetryPolicy != nil {
			w.Ctx.SetOverriddenRetryPolicy(retrypolicy.Config{
				MaxAttempts: uint32(entry.RetryPolicy.MaxAttempts),
				MinDelay:    entry.RetryPolicy.MinDelay,
				MaxDelay:    entry.RetryPolicy.MaxDelay,
				Multiplier:  entry.RetryPolicy.Multiplier,
			})
		}
	case oplog.EntryBeginAtomicRegion:
		w.Ctx.BeginAtomicRegion(entry.Index)
	case oplog.EntryEndAtomicRegion:
		w.Ctx.EndAtomicRegion()
	case oplog.EntryStartSpan:
		ic := w.Ctx.InvocationContextTree()
		if entry.SpanId != nil {
			ic.InsertSpan(*entry.SpanId, entry.ParentSpanId)
		}
	case oplog.EntryFinishSpan:
		if entry.SpanId != nil {
			w.Ctx.InvocationContextTree().FinishSpan(*entry.SpanId)
		}
	case oplog.EntrySetSpanAttribute:
		if entry.SpanId != nil {
			w.Ctx.InvocationContextTree().SetSpanAttribute(*entry.SpanId, entry.SpanAttrKey, entry.SpanAttrVal)
		}
	case oplog.EntryPendingUpdate:
		if entry.TargetVersion != nil && entry.UpdateKind != nil {
			w.Ctx.SetPendingUpdate(&workerctx.PendingUpdate{
				TargetVersion: *entry.TargetVersion,
				Kind:          *entry.UpdateKind,
				RecordedAt:    entry.Timestamp,
			})
		}
	case oplog.EntrySuccessfulUpdate:
		if entry.TargetVersion != nil {
			w.Ctx.ComponentMetadata.Version = *entry.TargetVersion
		}
		w.Ctx.OnWorkerUpdateSucceeded()
	case oplog.EntryFailedUpdate:
		w.Ctx.OnWorkerUpdateFailed(entry.UpdateDetails)
	case oplog.EntryLog:
		w.Ctx.Replay.RecordSeenLog(entry.LogLevel, entry.LogContext, entry.LogMessage)
	case oplog.EntryNoOp,
		oplog.EntryJump,
		oplog.EntryBeginRemoteWrite,
		oplog.EntryEndRemoteWrite,
		oplog.EntryBeginRemoteTransaction,
		oplog.EntryPreCommitTransaction,
		oplog.EntryPreRollbackTransaction,
		oplog.EntryCommittedTransaction,
		oplog.EntryRolledBackTransaction,
		oplog.EntryPendingWorkerInvocation,
		oplog.EntryDescribeResource,
		oplog.EntryActivatePlugin,
		oplog.EntryDeactivatePlugin:
		// No engine-level bookkeeping: these are either consumed by the
		// durability wrapper while an invocation's host calls are
		// actually being re-executed (begin/end write & transaction
		// markers), or carry no state this registry reconstructs
		// (plugin activation, resource descriptions, hint-only queueing).
	}
	return nil
}

// waitBackoff sleeps for d, honouring ctx cancellation, used by Invoke's
// retry loop (invoke.go) between a Delayed retry decision and its next
// attempt.
func waitBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
