// Package workerctx holds the full mutable state a single worker's
// execution carries between host calls: its oplog/replay handles, resource
// table, invocation context tree, IFS file view, config vars and the
// invocation lifecycle state machine. Grounded on
// PrivateDurableWorkerState in durable_host/mod.rs.
package workerctx

import (
	"sync"
	"time"

	"github.com/golemproject/workerexec/internal/durability"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/replay"
	"github.com/golemproject/workerexec/internal/retrypolicy"
)

// ComponentMetadata is the subset of a component's description a worker
// needs at runtime (exported/imported function names, memory limits).
type ComponentMetadata struct {
	ComponentId oplog.ComponentId
	Version     uint64
	MemoryPages uint32
}

// PersistenceLevel re-exports replay.PersistenceLevel for this package's
// public surface.
type PersistenceLevel = replay.PersistenceLevel

// Context is the full per-worker execution state threaded through every
// host call. Unlike durability.Wrapper (which only implements the
// begin/end protocol) Context owns everything a worker accumulates across
// its lifetime: resources, spans, files, retry overrides.
type Context struct {
	OwnedWorkerId oplog.OwnedWorkerId
	CreatedBy     string
	AgentId       string // empty if this worker is not an agent instance

	ComponentMetadata ComponentMetadata

	Oplog     *oplog.WorkerOplog
	Replay    *replay.State
	Wrapper   *durability.Wrapper

	mu                          sync.Mutex
	currentIdempotencyKey       *oplog.IdempotencyKey
	overriddenRetryPolicy       *retrypolicy.Config
	assumeIdempotence           bool
	persistenceLevel            PersistenceLevel
	snapshottingMode            *PersistenceLevel
	totalLinearMemorySize       uint64
	forwardTraceContextHeaders  bool
	setOutgoingHTTPIdempotency  bool
	activeAtomicRegions         []oplog.OplogIndex
	currentRetryPoint           oplog.OplogIndex
	pendingUpdate               *PendingUpdate
	lifecycle                   LifecycleState
	lastError                   string
	lastErrorRetryCount         uint32

	resources *resourceTable

	invocationContext *InvocationContext

	initialWasiConfigVars map[string]string
	wasiConfigVars        map[string]string

	readOnlyPaths map[string]struct{}
	files         map[string]IFSFile
}

// PendingUpdate mirrors TimestampedUpdateDescription: an update request
// that arrived while the worker was running and will be applied once
// replay reaches the end of the oplog.
type PendingUpdate struct {
	TargetVersion uint64
	Kind          oplog.UpdateKind
	RecordedAt    time.Time
}

// IFSFile describes one file in a worker's initial filesystem.
type IFSFile struct {
	Path     string
	Content  []byte
	ReadOnly bool
}

// LifecycleState is the worker invocation state machine: Idle when no
// invocation is running, Running while one executes, and one of
// Suspended/Interrupted/Exited/Failed/Retrying once it stops, before
// returning to Idle for the next invocation.
type LifecycleState int

const (
	LifecycleIdle LifecycleState = iota
	LifecycleRunning
	LifecycleSuspended
	LifecycleInterrupted
	LifecycleExited
	LifecycleFailed
	LifecycleRetrying
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleIdle:
		return "idle"
	case LifecycleRunning:
		return "running"
	case LifecycleSuspended:
		return "suspended"
	case LifecycleInterrupted:
		return "interrupted"
	case LifecycleExited:
		return "exited"
	case LifecycleFailed:
		return "failed"
	case LifecycleRetrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// New constructs a Context for a freshly loaded or newly created worker.
func New(
	owner oplog.OwnedWorkerId,
	createdBy string,
	meta ComponentMetadata,
	ol *oplog.WorkerOplog,
	rs *replay.State,
	wrapper *durability.Wrapper,
	initialWasiConfigVars map[string]string,
	files map[string]IFSFile,
) *Context {
	wasiConfigVars := make(map[string]string, len(initialWasiConfigVars))
	for k, v := range initialWasiConfigVars {
		wasiConfigVars[k] = v
	}
	if files == nil {
		files = map[string]IFSFile{}
	}

	c := &Context{
		OwnedWorkerId:              owner,
		CreatedBy:                  createdBy,
		ComponentMetadata:          meta,
		Oplog:                      ol,
		Replay:                     rs,
		Wrapper:                    wrapper,
		assumeIdempotence:          true,
		persistenceLevel:           replay.Smart,
		forwardTraceContextHeaders: true,
		setOutgoingHTTPIdempotency: true,
		currentRetryPoint:          oplog.OplogIndexInitial,
		resources:                  newResourceTable(),
		invocationContext:          NewInvocationContext(),
		initialWasiConfigVars:      initialWasiConfigVars,
		wasiConfigVars:             wasiConfigVars,
		readOnlyPaths:              computeReadOnlyPaths(files),
		files:                      files,
		lifecycle:                  LifecycleIdle,
	}
	return c
}

func computeReadOnlyPaths(files map[string]IFSFile) map[string]struct{} {
	out := make(map[string]struct{}, len(files))
	for path, f := range files {
		if f.ReadOnly {
			out[path] = struct{}{}
		}
	}
	return out
}

// IsLive reports whether the worker is executing live (vs. replaying).
func (c *Context) IsLive() bool { return c.Replay.IsLive() }

// IsReplay is the negation of IsLive, provided for call sites that read
// more naturally asking "are we replaying".
func (c *Context) IsReplay() bool { return !c.IsLive() }

// SetCurrentIdempotencyKey records the idempotency key for the invocation
// now in scope.
func (c *Context) SetCurrentIdempotencyKey(key oplog.IdempotencyKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentIdempotencyKey = &key
}

// GetCurrentIdempotencyKey returns the idempotency key set by
// SetCurrentIdempotencyKey, or nil if none is in scope.
func (c *Context) GetCurrentIdempotencyKey() *oplog.IdempotencyKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentIdempotencyKey
}

// TotalLinearMemorySize returns the worker's current linear memory size in
// bytes.
func (c *Context) TotalLinearMemorySize() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalLinearMemorySize
}

// SetTotalLinearMemorySize overwrites the tracked memory size, used when
// initializing a worker from its last recorded GrowMemory entry.
func (c *Context) SetTotalLinearMemorySize(size uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalLinearMemorySize = size
}

// GrowLinearMemory increases the tracked memory size by delta bytes.
func (c *Context) GrowLinearMemory(delta uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalLinearMemorySize += delta
}

// AssumeIdempotence reports whether non-idempotent remote writes may be
// safely retried as if they were idempotent.
func (c *Context) AssumeIdempotence() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assumeIdempotence
}

// SetAssumeIdempotence overrides the idempotence assumption.
func (c *Context) SetAssumeIdempotence(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assumeIdempotence = v
}

// OverriddenRetryPolicy returns the worker-level retry override, if any
// ChangeRetryPolicy entry has set one.
func (c *Context) OverriddenRetryPolicy() *retrypolicy.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overriddenRetryPolicy
}

// SetOverriddenRetryPolicy installs a worker-level retry override. It does
// not reset PersistenceLevel or any other part of the replay state machine
// (see internal/replay/persistence_tracking.go's TrackPersistenceLevel,
// which ChangeRetryPolicy leaves untouched on purpose).
func (c *Context) SetOverriddenRetryPolicy(cfg retrypolicy.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overriddenRetryPolicy = &cfg
}

// ForwardTraceContextHeaders reports whether outgoing HTTP requests should
// carry this worker's invocation context as trace headers.
func (c *Context) ForwardTraceContextHeaders() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forwardTraceContextHeaders
}

func (c *Context) SetForwardTraceContextHeaders(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwardTraceContextHeaders = v
}

// SetOutgoingHTTPIdempotencyKeyFlag reports whether outgoing HTTP requests
// should carry the current idempotency key as a header.
func (c *Context) SetOutgoingHTTPIdempotencyKeyFlag() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setOutgoingHTTPIdempotency
}

func (c *Context) SetSetOutgoingHTTPIdempotencyKeyFlag(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setOutgoingHTTPIdempotency = v
}

// CurrentRetryPoint returns the oplog index an error happening right now
// should be attributed to, accounting for any open atomic region (an error
// inside an atomic region is always attributed to the region's start, so
// retrying re-runs the whole region rather than resuming mid-way through
// it).
func (c *Context) CurrentRetryPoint() oplog.OplogIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.activeAtomicRegions) > 0 {
		return c.activeAtomicRegions[0]
	}
	return c.currentRetryPoint
}

// SetCurrentRetryPoint is called after every persisted host call to update
// the point a future retry would resume from.
func (c *Context) SetCurrentRetryPoint(idx oplog.OplogIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentRetryPoint = idx
}

// BeginAtomicRegion pushes a new atomic region boundary.
func (c *Context) BeginAtomicRegion(idx oplog.OplogIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeAtomicRegions = append(c.activeAtomicRegions, idx)
}

// EndAtomicRegion pops the innermost atomic region boundary.
func (c *Context) EndAtomicRegion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.activeAtomicRegions) > 0 {
		c.activeAtomicRegions = c.activeAtomicRegions[:len(c.activeAtomicRegions)-1]
	}
}

// InvocationContextTree exposes the worker's span tree.
func (c *Context) InvocationContextTree() *InvocationContext {
	return c.invocationContext
}

// SetInvocationContext replaces the active span tree, used when a caller's
// invocation context stack is received from an RPC call.
func (c *Context) SetInvocationContext(ic *InvocationContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocationContext = ic
}

// SetLifecycle transitions the worker's invocation state machine.
func (c *Context) SetLifecycle(s LifecycleState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifecycle = s
}

// Lifecycle returns the worker's current invocation state.
func (c *Context) Lifecycle() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle
}

// OnExportedFunctionInvoked transitions the worker into Running and
// records the invocation's idempotency key, matching the bookkeeping
// on_exported_function_invoked performs before a call is dispatched.
func (c *Context) OnExportedFunctionInvoked(key oplog.IdempotencyKey) {
	c.SetCurrentIdempotencyKey(key)
	c.SetLifecycle(LifecycleRunning)
}

// OnInvocationSuccess transitions the worker back to Idle after a
// successful invocation.
func (c *Context) OnInvocationSuccess() {
	c.mu.Lock()
	c.lastError = ""
	c.lastErrorRetryCount = 0
	c.mu.Unlock()
	c.SetLifecycle(LifecycleIdle)
}

// OnInvocationFailure records the failure and transitions to Failed,
// tracking how many times this retry point has already failed so
// GetRecoveryDecisionOnTrap's exhaustion check has something to count
// against.
func (c *Context) OnInvocationFailure(errMessage string) {
	c.mu.Lock()
	c.lastError = errMessage
	c.lastErrorRetryCount++
	c.mu.Unlock()
	c.SetLifecycle(LifecycleFailed)
}

// LastErrorAndRetryCount returns the most recently recorded failure and how
// many consecutive times it has been hit at the current retry point,
// reconstructed from the oplog tail when a worker is first loaded.
func (c *Context) LastErrorAndRetryCount() (string, uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError, c.lastErrorRetryCount
}

// GetPendingUpdate returns the update queued to apply once replay finishes, or
// nil if none is pending.
func (c *Context) GetPendingUpdate() *PendingUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingUpdate
}

func (c *Context) SetPendingUpdate(u *PendingUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingUpdate = u
}

// OnWorkerUpdateFailed clears the pending update and records the failure so
// a FailedUpdate oplog entry can be written by the caller.
func (c *Context) OnWorkerUpdateFailed(details string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingUpdate = nil
	c.lastError = details
}

// OnWorkerUpdateSucceeded clears the pending update on successful
// application.
func (c *Context) OnWorkerUpdateSucceeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingUpdate = nil
}

// BeginCallSnapshottingFunction switches the worker into snapshotting mode
// (used while invoking a component's save-snapshot/load-snapshot exports),
// remembering the previously active PersistenceLevel to restore afterward.
func (c *Context) BeginCallSnapshottingFunction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	level := c.persistenceLevel
	c.snapshottingMode = &level
	c.persistenceLevel = replay.PersistNothing
}

// EndCallSnapshottingFunction restores the PersistenceLevel saved by
// BeginCallSnapshottingFunction.
func (c *Context) EndCallSnapshottingFunction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshottingMode != nil {
		c.persistenceLevel = *c.snapshottingMode
		c.snapshottingMode = nil
	}
}
