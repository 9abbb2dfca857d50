package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golemproject/workerexec/internal/durability"
	"github.com/golemproject/workerexec/internal/logging"
	"github.com/golemproject/workerexec/internal/metrics"
	"github.com/golemproject/workerexec/internal/observability"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/retrypolicy"
	"github.com/golemproject/workerexec/internal/valuetype"
	"github.com/golemproject/workerexec/internal/workerctx"
)

// Invoke is the single entry point for a synchronous exported-function
// call, matching spec.md §2's orchestration loop: accept invocation →
// persist begin+args → execute WASM → persist result → commit. It serialises
// on the worker's mutex (spec.md §5: exactly one task drives a worker's
// WASM instance, durability wrapper and oplog buffer at a time).
//
// If the worker is still replaying when Invoke is called (a duplicate
// request for an invocation already recorded, delivered again before the
// caller learned it had completed), the call is validated against the
// recorded ExportedFunctionCompleted instead of re-persisting anything:
// recomputing the same result and comparing it against what was already
// recorded is invariant 4's divergence check; a mismatch is fatal and is
// never retried (spec.md §7).
func (r *Registry) Invoke(ctx context.Context, w *Worker, functionName string, idempotencyKey oplog.IdempotencyKey, args []valuetype.ValueAndType) ([]valuetype.ValueAndType, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, span := observability.StartSpan(ctx, "worker.invoke",
		observability.AttrWorkerID.String(w.Owner.String()),
		observability.AttrFunctionName.String(functionName),
		observability.AttrIdempotencyKey.String(idempotencyKey.Value),
	)
	defer span.End()

	if cached, ok := w.resultCache[idempotencyKey]; ok {
		observability.SetSpanOK(span)
		return cached, nil
	}

	replaying := w.Ctx.IsReplay()

	if replaying {
		entry, ok, err := w.Ctx.Replay.GetOplogEntry(ctx)
		if err != nil {
			return nil, err
		}
		if !ok || entry.Kind != oplog.EntryExportedFunctionInvoked {
			return nil, fmt.Errorf("unexpected oplog entry: expected ExportedFunctionInvoked, got %v", entry.Kind)
		}
		if entry.FunctionName != functionName {
			return nil, fmt.Errorf(
				"unexpected oplog entry: invocation diverges, oplog records call to %q but replay requested %q",
				entry.FunctionName, functionName)
		}
		w.invocationOpen = entry.Index
	} else {
		argBytes, err := valuetype.EncodeMany(args)
		if err != nil {
			return nil, err
		}
		raw, ref, err := r.storePayload(ctx, w, argBytes)
		if err != nil {
			return nil, err
		}
		idx, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
			Kind:           oplog.EntryExportedFunctionInvoked,
			FunctionName:   functionName,
			IdempotencyKey: &idempotencyKey,
			Request:        raw,
			PayloadRef:     ref,
		})
		if err != nil {
			return nil, err
		}
		w.invocationOpen = idx
		metrics.Global().RecordOplogAppend()
	}
	w.Ctx.OnExportedFunctionInvoked(idempotencyKey)

	invokeStart := time.Now()
	outcome, err := r.runWithRetry(ctx, w, functionName, args)
	duration := time.Since(invokeStart).Milliseconds()

	if err != nil {
		retries := int(w.previousTries[w.Ctx.CurrentRetryPoint()])
		metrics.Global().RecordInvocation(w.Ctx.ComponentMetadata.ComponentId.String(), duration, false, retries)
		observability.SetSpanError(span, err)
		r.saveInvocationLog(ctx, w, functionName, idempotencyKey, duration, false, err.Error(), retries)
		return nil, err
	}
	result := outcome.Result

	// Resource events are only persisted on the live path: during replay
	// the guest's create/drop calls are being re-executed to validate
	// determinism, not to be recorded again, and the resource table is
	// instead reconstructed from the CreateResource/DropResource entries
	// already in the oplog (see applyReplayedEntry).
	if !replaying {
		if err := r.persistResourceEvents(ctx, w, outcome.ResourceEvents); err != nil {
			return nil, err
		}
	}

	if replaying {
		entry, ok, gerr := w.Ctx.Replay.GetOplogEntry(ctx)
		if gerr != nil {
			return nil, gerr
		}
		if !ok || entry.Kind != oplog.EntryExportedFunctionCompleted {
			return nil, fmt.Errorf("unexpected oplog entry: expected ExportedFunctionCompleted")
		}
		recomputed, err := valuetype.EncodeMany(result)
		if err != nil {
			return nil, err
		}
		recorded, err := r.loadPayload(ctx, entry.Response, entry.PayloadRef)
		if err != nil {
			return nil, fmt.Errorf("load recorded response: %w", err)
		}
		if !bytesEqual(recomputed, recorded) {
			return nil, fmt.Errorf("unexpected oplog entry: recomputed ExportedFunctionCompleted differs from recorded output for %q", functionName)
		}
	} else {
		respBytes, err := valuetype.EncodeMany(result)
		if err != nil {
			return nil, err
		}
		raw, ref, err := r.storePayload(ctx, w, respBytes)
		if err != nil {
			return nil, err
		}
		if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
			Kind:         oplog.EntryExportedFunctionCompleted,
			Response:     raw,
			PayloadRef:   ref,
			ConsumedFuel: 0,
		}); err != nil {
			return nil, err
		}
		metrics.Global().RecordOplogAppend()
	}

	w.invocationOpen = oplog.OplogIndexNone
	w.Ctx.OnInvocationSuccess()
	w.cacheResult(idempotencyKey, result)
	retries := int(w.previousTries[w.Ctx.CurrentRetryPoint()])
	metrics.Global().RecordInvocation(w.Ctx.ComponentMetadata.ComponentId.String(), duration, true, retries)
	observability.SetSpanOK(span)
	r.saveInvocationLog(ctx, w, functionName, idempotencyKey, duration, true, "", retries)
	logging.Op().Info("invocation completed", "worker", w.Owner.String(), "function", functionName)
	return result, nil
}

// saveInvocationLog mirrors one invocation's outcome into the configured
// LogSink, best-effort: a sink failure is logged but never fails the
// invocation itself, matching the teacher's own log-batcher discipline of
// never letting log persistence block the request path.
func (r *Registry) saveInvocationLog(ctx context.Context, w *Worker, functionName string, key oplog.IdempotencyKey, durationMs int64, success bool, errMsg string, retries int) {
	if r.LogSink == nil {
		return
	}
	entry := &logging.InvocationLog{
		Timestamp:      time.Now(),
		WorkerId:       w.Owner.String(),
		IdempotencyKey: key.Value,
		FunctionName:   functionName,
		OplogIndexTo:   uint64(w.Oplog.CurrentOplogIndex()),
		DurationMs:     durationMs,
		Success:        success,
		Error:          errMsg,
		Retries:        retries,
	}
	if err := r.LogSink.Save(ctx, entry); err != nil {
		logging.Op().Debug("invocation log sink save failed", "worker", w.Owner.String(), "error", err)
	}
}

// runWithRetry executes the component function, applying
// GetRecoveryDecisionOnTrap to any trap and retrying according to the
// worker's effective retry policy until success, exhaustion, or a
// non-retryable outcome.
func (r *Registry) runWithRetry(ctx context.Context, w *Worker, functionName string, args []valuetype.ValueAndType) (Outcome, error) {
	policy := w.retryPolicy
	if override := w.Ctx.OverriddenRetryPolicy(); override != nil {
		policy = *override
	}

	for {
		outcome, err := w.Executor.Invoke(ctx, w.Ctx, functionName, args)
		if err != nil {
			return Outcome{}, err
		}
		if outcome.Trap == nil {
			return outcome, nil
		}

		retryFrom := w.Ctx.CurrentRetryPoint()

		if outcome.Trap.Kind == durability.TrapInterrupt {
			switch outcome.Trap.Interrupt {
			case durability.InterruptSuspend:
				_, _ = w.Oplog.AddAndCommit(ctx, oplog.Entry{Kind: oplog.EntrySuspend})
				w.Ctx.SetLifecycle(workerctx.LifecycleSuspended)
				return Outcome{}, fmt.Errorf("worker suspended")
			case durability.InterruptInterrupt:
				_, _ = w.Oplog.AddAndCommit(ctx, oplog.Entry{Kind: oplog.EntryInterrupted})
				return Outcome{}, fmt.Errorf("worker interrupted")
			}
		}

		if outcome.Trap.Kind == durability.TrapExit {
			_, _ = w.Oplog.AddAndCommit(ctx, oplog.Entry{Kind: oplog.EntryExited})
			return Outcome{}, fmt.Errorf("worker exited")
		}

		decision := durability.GetRecoveryDecisionOnTrap(policy, w.previousTries, *outcome.Trap)

		if w.Ctx.IsReplay() {
			w.Ctx.Replay.SwitchToLive()
		}

		if outcome.Trap.Kind == durability.TrapError {
			w.previousTries[retryFrom]++
			w.Ctx.OnInvocationFailure(outcome.Trap.Err.Error())
			if _, perr := w.Oplog.AddAndCommit(ctx, oplog.Entry{
				Kind:         oplog.EntryError,
				ErrorMessage: outcome.Trap.Err.Error(),
				RetryFrom:    &retryFrom,
			}); perr != nil {
				return Outcome{}, perr
			}
			metrics.Global().RecordOplogAppend()
		}

		switch decision.Decision {
		case retrypolicy.DecisionNone:
			return Outcome{}, outcome.Trap.Err
		case retrypolicy.DecisionImmediate, retrypolicy.DecisionReacquirePermits:
			continue
		case retrypolicy.DecisionDelayed:
			if err := waitBackoff(ctx, decision.Delay); err != nil {
				return Outcome{}, err
			}
			continue
		default:
			return Outcome{}, outcome.Trap.Err
		}
	}
}

// inlinePayloadLimit is the largest encoded request/response inlined
// directly into an oplog entry; anything bigger spills to Registry.Payloads
// and the entry carries a PayloadRef instead, matching
// upload_payload/download_payload's "oversized parameters and results don't
// bloat the oplog" contract.
const inlinePayloadLimit = 64 * 1024

// storePayload inlines data as a JSON entry field, or spills it to
// r.Payloads and returns a PayloadRef when it exceeds inlinePayloadLimit.
// Exactly one of the two return values is non-nil.
func (r *Registry) storePayload(ctx context.Context, w *Worker, data []byte) (json.RawMessage, *oplog.PayloadRef, error) {
	if len(data) <= inlinePayloadLimit || r.Payloads == nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, nil, err
		}
		return raw, nil, nil
	}
	ref, err := r.Payloads.Upload(ctx, w.Owner, data)
	if err != nil {
		return nil, nil, err
	}
	return nil, &ref, nil
}

// loadPayload reverses storePayload, fetching from r.Payloads when the
// entry carries a PayloadRef rather than inline bytes.
func (r *Registry) loadPayload(ctx context.Context, inline json.RawMessage, ref *oplog.PayloadRef) ([]byte, error) {
	if ref != nil {
		if r.Payloads == nil {
			return nil, fmt.Errorf("payload %s spilled but no payload store configured", ref.Key)
		}
		return r.Payloads.Download(ctx, *ref)
	}
	var data []byte
	if err := json.Unmarshal(inline, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (w *Worker) cacheResult(key oplog.IdempotencyKey, result []valuetype.ValueAndType) {
	if w.resultCache == nil {
		w.resultCache = make(map[oplog.IdempotencyKey][]valuetype.ValueAndType)
	}
	w.resultCache[key] = result
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
