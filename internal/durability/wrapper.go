package durability

import (
	"context"
	"fmt"

	"github.com/golemproject/workerexec/internal/logging"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/replay"
)

// OplogIndex is re-exported for readability within this package's public
// API; identical to oplog.OplogIndex.
type OplogIndex = oplog.OplogIndex

// Wrapper implements the begin/end protocol every durable host call goes
// through: begin_function decides (depending on live/replay and on the
// function's DurableFunctionType) whether the call must actually execute or
// whether its previously recorded effect can simply be trusted, and
// end_function records that the call completed. Grounded 1:1 on
// golem-worker-executor/src/durable_host/mod.rs's begin_function/
// end_function/begin_transaction_function (translating the Rust
// Result/? chains into explicit Go error returns).
type Wrapper struct {
	oplog  *oplog.WorkerOplog
	replay *replay.State

	assumeIdempotence bool
	persistenceLevel  replay.PersistenceLevel

	currentRetryPoint OplogIndex
}

func NewWrapper(ol *oplog.WorkerOplog, rs *replay.State, assumeIdempotence bool) *Wrapper {
	return &Wrapper{
		oplog:             ol,
		replay:            rs,
		assumeIdempotence: assumeIdempotence,
		persistenceLevel:  replay.Smart,
	}
}

func (w *Wrapper) IsLive() bool { return w.replay.IsLive() }

// CurrentRetryPoint returns the oplog index a retry should resume from,
// as last computed by BeginFunction.
func (w *Wrapper) CurrentRetryPoint() OplogIndex { return w.currentRetryPoint }

func isEndRemoteWrite(e oplog.Entry) bool { return e.Kind == oplog.EntryEndRemoteWrite }

// BeginFunction records (if live) or validates (if replaying) the start of
// a durable host call of the given type, returning the oplog index the
// call should be associated with for its matching EndFunction.
func (w *Wrapper) BeginFunction(ctx context.Context, functionType oplog.DurableFunctionType, batchedWriteRetryIdx *OplogIndex) (OplogIndex, error) {
	nonIdempotentWrite := functionType == oplog.FunctionWriteRemote && !w.assumeIdempotence
	openBatchedWrite := functionType == oplog.FunctionWriteRemoteBatched && batchedWriteRetryIdx == nil

	if nonIdempotentWrite || openBatchedWrite {
		result, err := w.beginTrackedWrite(ctx, functionType)
		if err != nil {
			return oplog.OplogIndexNone, err
		}
		w.currentRetryPoint = result
		return result, nil
	}

	// No BeginRemoteWrite entry: the retry point can only be the last
	// written non-hint entry (hints are nondeterministic and must be
	// ignored when deciding where a retry resumes from).
	var beginIndex OplogIndex
	if w.replay.IsLive() {
		beginIndex = w.oplog.CurrentOplogIndex()
	} else {
		beginIndex = w.replay.LastReplayedNonHintIndex()
	}

	switch {
	case functionType == oplog.FunctionWriteRemoteBatched && batchedWriteRetryIdx != nil:
		w.currentRetryPoint = *batchedWriteRetryIdx
	case functionType == oplog.FunctionWriteRemoteTransaction && batchedWriteRetryIdx != nil:
		w.currentRetryPoint = *batchedWriteRetryIdx
	default:
		last := w.oplog.LastAddedNonHintEntry()
		if last.IsNone() {
			last = w.replay.LastReplayedNonHintIndex()
		}
		w.currentRetryPoint = last
	}

	return beginIndex, nil
}

func (w *Wrapper) beginTrackedWrite(ctx context.Context, functionType oplog.DurableFunctionType) (OplogIndex, error) {
	if w.replay.IsLive() {
		return w.oplog.AddAndCommit(ctx, oplog.Entry{Kind: oplog.EntryBeginRemoteWrite})
	}

	entry, ok, err := w.replay.GetOplogEntry(ctx)
	if err != nil {
		return oplog.OplogIndexNone, err
	}
	if !ok || entry.Kind != oplog.EntryBeginRemoteWrite {
		return oplog.OplogIndexNone, fmt.Errorf("expected BeginRemoteWrite oplog entry during replay")
	}
	beginIndex := entry.Index

	if !w.assumeIdempotence {
		_, found, err := w.replay.LookupOplogEntry(ctx, beginIndex, isEndRemoteWrite)
		if err != nil {
			return oplog.OplogIndexNone, err
		}
		if !found {
			w.replay.SwitchToLive()
			return oplog.OplogIndexNone, fmt.Errorf("non-idempotent remote write operation was not completed, cannot retry")
		}
		return beginIndex, nil
	}

	if functionType != oplog.FunctionWriteRemoteBatched {
		return beginIndex, nil
	}

	lookup, err := w.replay.LookupOplogEntryWithConditionAndState(
		ctx, beginIndex, isEndRemoteWrite,
		replay.NoConcurrentSideEffect, w.persistenceLevel, replay.TrackPersistenceLevel,
	)
	if err != nil {
		return oplog.OplogIndexNone, err
	}

	switch {
	case lookup.Found:
		logging.Op().Debug("remote write operation already completed, continuing replay",
			"begin_index", beginIndex, "found_index", lookup.Index)
		return beginIndex, nil
	case lookup.ViolatesForAll:
		w.replay.SwitchToLive()
		return oplog.OplogIndexNone, fmt.Errorf("non-idempotent remote write operation was not completed, cannot retry")
	default:
		// Retry succeeded at some point after replayTarget: jump ahead
		// and mark the original attempt's region as dead so a future
		// replay skips straight to the second attempt.
		w.replay.SwitchToLive()
		region := oplog.Region{Start: beginIndex.Next(), End: w.replay.ReplayTarget().Next()}
		if _, err := w.oplog.AddAndCommit(ctx, oplog.Entry{Kind: oplog.EntryJump, JumpRegion: &region}); err != nil {
			return oplog.OplogIndexNone, err
		}
		return beginIndex, nil
	}
}

// EndFunction records (if live) or validates (if replaying) the end of a
// durable host call begun by BeginFunction at beginIndex.
func (w *Wrapper) EndFunction(ctx context.Context, functionType oplog.DurableFunctionType, beginIndex OplogIndex) error {
	nonIdempotentWrite := functionType == oplog.FunctionWriteRemote && !w.assumeIdempotence
	openBatchedWrite := functionType == oplog.FunctionWriteRemoteBatched

	if !nonIdempotentWrite && !openBatchedWrite {
		return nil
	}

	if w.replay.IsLive() {
		_, err := w.oplog.Add(ctx, oplog.Entry{Kind: oplog.EntryEndRemoteWrite})
		return err
	}

	entry, ok, err := w.replay.GetOplogEntry(ctx)
	if err != nil {
		return err
	}
	if !ok || entry.Kind != oplog.EntryEndRemoteWrite {
		return fmt.Errorf("expected EndRemoteWrite oplog entry during replay")
	}
	return nil
}

// IncreaseMemory records a worker's linear memory growth, skipping the
// actual permit acquisition during replay since live execution already
// recorded the amount the worker was initialized with.
func (w *Wrapper) IncreaseMemory(ctx context.Context, delta int64, acquire func(context.Context, int64) error) error {
	if !w.replay.IsLive() {
		return nil
	}
	if _, err := w.oplog.AddAndCommit(ctx, oplog.Entry{Kind: oplog.EntryGrowMemory, DeltaBytes: delta}); err != nil {
		return err
	}
	return acquire(ctx, delta)
}
