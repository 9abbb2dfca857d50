package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golemproject/workerexec/internal/component/agent"
	"github.com/golemproject/workerexec/internal/durability"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/valuetype"
	"github.com/golemproject/workerexec/internal/workerctx"
)

// ResourceEventKind is the lifecycle transition a live invocation reported
// for a component-model resource handle.
type ResourceEventKind int

const (
	ResourceCreated ResourceEventKind = iota
	ResourceDescribed
	ResourceDropped
)

// ResourceEvent is one resource lifecycle transition reported back from a
// live invocation. Resource handles live inside the guest's host-call
// boundary, out of reach of the durable core, so the engine process reports
// their lifecycle the same way it already reports fuel consumption: as part
// of the tagged Outcome, never by hijacking the error channel.
type ResourceEvent struct {
	Kind ResourceEventKind
	// ResourceId identifies the resource for Described/Dropped events; it is
	// nil for Created, whose id is assigned by AddResource once recorded.
	ResourceId *oplog.WorkerResourceId
	TypeName   string
	Args       json.RawMessage
}

// Outcome is what one exported-function call produces: either a result or a
// trap. It is returned by value (never both populated) matching
// HostCallOutcome from spec.md §9 ("tagged result... do not hijack the
// error channel").
type Outcome struct {
	Result         []valuetype.ValueAndType
	ConsumedFuel   int64
	ResourceEvents []ResourceEvent
	Trap           *durability.Trap
}

// WasmExecutor runs one exported function call against a worker's component
// instance. It receives the worker's Context so that whatever concrete
// engine it wraps can route the function's host imports through
// Ctx.Wrapper's begin/end protocol during replay as well as live execution.
// The WASM engine itself is out of scope (spec.md §1 Non-goals); this is the
// seam a real implementation plugs into.
type WasmExecutor interface {
	Invoke(ctx context.Context, wctx *workerctx.Context, functionName string, args []valuetype.ValueAndType) (Outcome, error)
}

// AgentExecutor is the production WasmExecutor: it delegates the call to an
// out-of-process component engine over internal/component/agent's framed
// transport. consumedFuel and the result are round-tripped opaquely; any
// host-call-level replay fidelity happens inside the engine process, which
// is handed the worker's oplog index range to consult for recorded
// responses (contract only, per spec.md §6 "WASM host ABI (design-level)").
type AgentExecutor struct {
	Client        *agent.Client
	InvokeTimeout time.Duration
}

func NewAgentExecutor(client *agent.Client, timeout time.Duration) *AgentExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AgentExecutor{Client: client, InvokeTimeout: timeout}
}

func (e *AgentExecutor) Invoke(ctx context.Context, wctx *workerctx.Context, functionName string, args []valuetype.ValueAndType) (Outcome, error) {
	encoded, err := valuetype.EncodeMany(args)
	if err != nil {
		return Outcome{}, err
	}

	key := ""
	if k := wctx.GetCurrentIdempotencyKey(); k != nil {
		key = k.Value
	}

	resp, err := e.Client.Invoke(agent.InvokePayload{
		FunctionName:   functionName,
		IdempotencyKey: key,
		EncodedArgs:    encoded,
	}, e.InvokeTimeout)
	if err != nil {
		return Outcome{Trap: &durability.Trap{
			Kind: durability.TrapError,
			Err:  durability.NewWorkerError(durability.ErrUnknown, wctx.CurrentRetryPoint(), err),
		}}, nil
	}
	if resp.Error != "" {
		return Outcome{Trap: &durability.Trap{
			Kind: durability.TrapError,
			Err:  durability.NewWorkerError(durability.ErrUnknown, wctx.CurrentRetryPoint(), errString(resp.Error)),
		}}, nil
	}

	result, err := valuetype.DecodeMany(resp.EncodedResult)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Result:         result,
		ConsumedFuel:   resp.ConsumedFuel,
		ResourceEvents: decodeResourceEvents(resp.ResourceEvents),
	}, nil
}

// decodeResourceEvents translates the wire-level resource lifecycle payload
// into engine-level ResourceEvents, dropping any event of a kind this
// executor doesn't recognise rather than failing the whole invocation over
// informational bookkeeping.
func decodeResourceEvents(payloads []agent.ResourceEventPayload) []ResourceEvent {
	if len(payloads) == 0 {
		return nil
	}
	events := make([]ResourceEvent, 0, len(payloads))
	for _, p := range payloads {
		var kind ResourceEventKind
		switch p.Kind {
		case "create":
			kind = ResourceCreated
		case "describe":
			kind = ResourceDescribed
		case "drop":
			kind = ResourceDropped
		default:
			continue
		}
		var rid *oplog.WorkerResourceId
		if p.ResourceId != nil {
			id := oplog.WorkerResourceId(*p.ResourceId)
			rid = &id
		}
		events = append(events, ResourceEvent{Kind: kind, ResourceId: rid, TypeName: p.TypeName, Args: p.Args})
	}
	return events
}

type errString string

func (e errString) Error() string { return string(e) }

// NullExecutor is a stub used when no agent connection is configured (e.g.
// a registry built only to exercise oplog/replay bookkeeping in tests). It
// always traps with InvalidRequest, never producing a result.
type NullExecutor struct{}

func NewNullExecutor() *NullExecutor { return &NullExecutor{} }

func (e *NullExecutor) Invoke(ctx context.Context, wctx *workerctx.Context, functionName string, args []valuetype.ValueAndType) (Outcome, error) {
	return Outcome{Trap: &durability.Trap{
		Kind: durability.TrapError,
		Err:  durability.NewWorkerError(durability.ErrInvalidRequest, oplog.OplogIndexNone, errString("no executor configured")),
	}}, nil
}
