package engine

import (
	"context"
	"fmt"

	"github.com/golemproject/workerexec/internal/logging"
	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/valuetype"
	"github.com/golemproject/workerexec/internal/workerctx"
)

// applyPendingUpdate runs a queued component update once a worker's replay
// has caught up to the tail, matching spec.md §8 scenarios S4/S5.
//
// Automatic updates simply point the worker at the new component version:
// the next invocation loads whatever the new version's exports resolve to,
// with no attempt to carry over in-memory state beyond what the oplog
// already reconstructs.
//
// SnapshotBased updates instead call the current version's save-snapshot
// export, switch ComponentMetadata to the target version, then call the new
// version's load-snapshot export with the saved bytes, all while the
// worker's persistence level is pinned to PersistNothing via
// BeginCallSnapshottingFunction so neither call pollutes the oplog with its
// own host-call bookkeeping (golem-worker-executor/src/durable_host/mod.rs's
// update handling does the same: snapshot calls are not themselves
// replayable host calls).
func (r *Registry) applyPendingUpdate(ctx context.Context, w *Worker, pu *workerctx.PendingUpdate) error {
	switch pu.Kind {
	case oplog.UpdateAutomatic:
		return r.applyAutomaticUpdate(ctx, w, pu)
	case oplog.UpdateSnapshotBased:
		return r.applySnapshotUpdate(ctx, w, pu)
	default:
		return fmt.Errorf("unknown pending update kind %q", pu.Kind)
	}
}

func (r *Registry) applyAutomaticUpdate(ctx context.Context, w *Worker, pu *workerctx.PendingUpdate) error {
	desc, err := r.Components.GetMetadata(ctx, w.Ctx.ComponentMetadata.ComponentId, &pu.TargetVersion)
	if err != nil {
		if _, perr := w.Oplog.AddAndCommit(ctx, oplog.Entry{
			Kind:          oplog.EntryFailedUpdate,
			TargetVersion: &pu.TargetVersion,
			UpdateKind:    &pu.Kind,
			UpdateDetails: err.Error(),
		}); perr != nil {
			return perr
		}
		w.Ctx.OnWorkerUpdateFailed(err.Error())
		return nil
	}

	exec, err := r.newExecutor(desc)
	if err != nil {
		return err
	}
	w.Executor = exec
	w.Ctx.ComponentMetadata.Version = desc.Version

	target := pu.TargetVersion
	if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
		Kind:          oplog.EntrySuccessfulUpdate,
		TargetVersion: &target,
		UpdateKind:    &pu.Kind,
	}); err != nil {
		return err
	}
	w.Ctx.OnWorkerUpdateSucceeded()
	logging.Op().Info("worker updated (automatic)", "worker", w.Owner.String(), "target_version", target)
	return nil
}

func (r *Registry) applySnapshotUpdate(ctx context.Context, w *Worker, pu *workerctx.PendingUpdate) error {
	const saveSnapshotFn = "golem:api/save-snapshot@1.1.0.{save}"
	const loadSnapshotFn = "golem:api/load-snapshot@1.1.0.{load}"

	policy := w.retryPolicy
	if override := w.Ctx.OverriddenRetryPolicy(); override != nil {
		policy = *override
	}
	retryPoint := w.Oplog.CurrentOplogIndex()

	for {
		w.Ctx.BeginCallSnapshottingFunction()
		saveOutcome, err := w.Executor.Invoke(ctx, w.Ctx, saveSnapshotFn, nil)
		w.Ctx.EndCallSnapshottingFunction()
		if err != nil {
			return err
		}
		if saveOutcome.Trap != nil {
			return r.failUpdate(ctx, w, pu, fmt.Errorf("save-snapshot trapped: %w", saveOutcome.Trap.Err))
		}

		desc, err := r.Components.GetMetadata(ctx, w.Ctx.ComponentMetadata.ComponentId, &pu.TargetVersion)
		if err != nil {
			return r.failUpdate(ctx, w, pu, err)
		}
		exec, err := r.newExecutor(desc)
		if err != nil {
			return err
		}
		priorVersion := w.Ctx.ComponentMetadata.Version
		w.Executor = exec
		w.Ctx.ComponentMetadata.Version = desc.Version

		w.Ctx.BeginCallSnapshottingFunction()
		loadOutcome, err := w.Executor.Invoke(ctx, w.Ctx, loadSnapshotFn, saveOutcome.Result)
		w.Ctx.EndCallSnapshottingFunction()
		if err != nil {
			return err
		}
		if loadOutcome.Trap != nil {
			w.Ctx.ComponentMetadata.Version = priorVersion
			return r.failUpdate(ctx, w, pu, fmt.Errorf("load-snapshot trapped: %w", loadOutcome.Trap.Err))
		}

		// load-snapshot's ABI is result<_, string> (spec §6): a guest
		// that fails returns err(...) as a normal value, not a trap.
		if guestErr, failed := snapshotLoadError(loadOutcome.Result); failed {
			w.Ctx.ComponentMetadata.Version = priorVersion
			cause := fmt.Errorf("Manual update failed to load snapshot: %s", guestErr)
			if err := r.failUpdate(ctx, w, pu, cause); err != nil {
				return err
			}

			// A manual update failure retries immediately rather than
			// backing off: it was triggered explicitly, not by a
			// transient invocation trap, so the only thing bounding it
			// is the same attempt budget runWithRetry enforces.
			w.previousTries[retryPoint]++
			if w.previousTries[retryPoint] >= policy.MaxAttempts {
				return nil
			}
			continue
		}

		target := pu.TargetVersion
		if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
			Kind:          oplog.EntrySuccessfulUpdate,
			TargetVersion: &target,
			UpdateKind:    &pu.Kind,
		}); err != nil {
			return err
		}
		w.Ctx.OnWorkerUpdateSucceeded()
		logging.Op().Info("worker updated (snapshot)", "worker", w.Owner.String(), "target_version", target)
		return nil
	}
}

// snapshotLoadError inspects a load-snapshot call's decoded result for the
// err case of its result<_, string> return type, since a guest-reported
// failure here is a normal return value rather than a trap.
func snapshotLoadError(result []valuetype.ValueAndType) (string, bool) {
	if len(result) != 1 {
		return "", false
	}
	v := result[0].Value
	if v.Kind != valuetype.KindResult || !v.IsErr {
		return "", false
	}
	if v.Err != nil && v.Err.Kind == valuetype.KindString {
		return v.Err.String, true
	}
	return "", true
}

func (r *Registry) failUpdate(ctx context.Context, w *Worker, pu *workerctx.PendingUpdate, cause error) error {
	target := pu.TargetVersion
	if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
		Kind:          oplog.EntryFailedUpdate,
		TargetVersion: &target,
		UpdateKind:    &pu.Kind,
		UpdateDetails: cause.Error(),
	}); err != nil {
		return err
	}
	w.Ctx.OnWorkerUpdateFailed(cause.Error())
	logging.Op().Info("worker update failed", "worker", w.Owner.String(), "target_version", target, "reason", cause.Error())
	return nil
}
