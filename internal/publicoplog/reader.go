package publicoplog

import (
	"context"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/oplogservice"
)

// Page reads up to limit entries starting at cur, projecting each one and
// keeping only those matching query (pass a zero Query to keep everything).
// It returns the cursor to resume from on the next call, which is
// one past the last index it actually inspected (not the last index that
// matched), so a caller can page through a sparse match set without
// re-scanning entries it already rejected.
func Page(ctx context.Context, svc oplogservice.Service, owner oplog.OwnedWorkerId, cur Cursor, limit int, query *Query) ([]PublicOplogEntry, Cursor, error) {
	if limit <= 0 {
		limit = 100
	}

	last, err := svc.LastIndex(ctx, owner)
	if err != nil {
		return nil, cur, err
	}

	var out []PublicOplogEntry
	idx := cur.NextOplogIndex
	version := cur.CurrentComponentVersion

	for idx <= last && len(out) < limit {
		batchEnd := idx + oplog.OplogIndex(limit)
		if batchEnd > last {
			batchEnd = last
		}
		entries, err := svc.Read(ctx, owner, idx, batchEnd)
		if err != nil {
			return nil, cur, err
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			if e.Kind == oplog.EntryCreate && e.ComponentVersion != nil {
				version = *e.ComponentVersion
			}
			if e.Kind == oplog.EntrySuccessfulUpdate && e.TargetVersion != nil {
				version = *e.TargetVersion
			}
			projected := Project(e)
			idx = e.Index.Next()
			if query == nil || Matches(projected, *query) {
				out = append(out, projected)
				if len(out) >= limit {
					break
				}
			}
		}
	}

	return out, Cursor{NextOplogIndex: idx, CurrentComponentVersion: version}, nil
}
