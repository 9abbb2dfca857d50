package engine

import (
	"context"

	"github.com/golemproject/workerexec/internal/metrics"
	"github.com/golemproject/workerexec/internal/oplog"
)

// persistResourceEvents appends one oplog entry per resource lifecycle
// transition a live invocation reported, and mutates the worker's in-memory
// resource table to match. It is only ever called on the live path:
// applyReplayedEntry already reconstructs the same table from
// CreateResource/DropResource entries while replaying, the same split
// durability.Wrapper.IncreaseMemory uses for memory growth.
func (r *Registry) persistResourceEvents(ctx context.Context, w *Worker, events []ResourceEvent) error {
	for _, ev := range events {
		switch ev.Kind {
		case ResourceCreated:
			id := w.Ctx.AddResource(ev.TypeName, nil)
			if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
				Kind:         oplog.EntryCreateResource,
				ResourceId:   &id,
				ResourceName: ev.TypeName,
				ResourceArgs: ev.Args,
			}); err != nil {
				return err
			}
		case ResourceDescribed:
			if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
				Kind:         oplog.EntryDescribeResource,
				ResourceId:   ev.ResourceId,
				ResourceName: ev.TypeName,
				ResourceArgs: ev.Args,
			}); err != nil {
				return err
			}
		case ResourceDropped:
			if ev.ResourceId != nil {
				w.Ctx.DropResource(*ev.ResourceId)
			}
			if _, err := w.Oplog.AddAndCommit(ctx, oplog.Entry{
				Kind:       oplog.EntryDropResource,
				ResourceId: ev.ResourceId,
			}); err != nil {
				return err
			}
		default:
			continue
		}
		metrics.Global().RecordOplogAppend()
	}
	return nil
}
