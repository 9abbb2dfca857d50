package hostservices

import (
	"context"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/valuetype"
)

// InvocationResult is what a completed InvokeAndAwait call returns: the
// result value and the fuel consumed, mirrored after
// ExportedFunctionCompletedParameters's response/consumed-fuel shape. A
// worker-level error is returned as InvokeAndAwait's error instead.
type InvocationResult struct {
	Result      *valuetype.ValueAndType
	ConsumedFuel int64
}

// Rpc is the contract every inter-component call an imported host function
// makes must satisfy: given the same replayed request it returns the same
// response, or the call happened inside the batched/transactional protocol
// instead (durability.Wrapper's WriteRemoteBatched/WriteRemoteTransaction
// paths). No transport is specified here; a production implementation
// would dial the target worker's executor node directly.
type Rpc interface {
	// InvokeAndAwait calls function on target with args and blocks for the
	// result, the synchronous RPC shape used by WriteRemote host calls.
	InvokeAndAwait(ctx context.Context, caller oplog.WorkerId, target oplog.WorkerId, function string, args []valuetype.ValueAndType) (InvocationResult, error)

	// InvokeFireAndForget starts function on target without waiting for
	// completion, recorded as a single WriteRemote entry regardless of the
	// callee's own durability.
	InvokeFireAndForget(ctx context.Context, caller oplog.WorkerId, target oplog.WorkerId, function string, args []valuetype.ValueAndType) error
}

// WorkerProxy resolves and manages the lifecycle of the worker a caller is
// targeting before an Rpc call can be made against it: locating which node
// owns it, or creating it on demand, matching golem-worker-executor's
// worker-proxy abstraction that sits in front of Rpc.
type WorkerProxy interface {
	// ResolveWorker finds or creates the node-local handle for target,
	// returning an opaque address an Rpc implementation's transport
	// layer understands.
	ResolveWorker(ctx context.Context, target oplog.WorkerId) (string, error)

	// Interrupt requests target suspend at its next host call boundary,
	// used when a caller's own invocation is interrupted and its
	// outstanding fire-and-forget calls must not outlive it.
	Interrupt(ctx context.Context, target oplog.WorkerId) error
}
