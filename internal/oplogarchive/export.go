// Package oplogarchive compacts a worker's oplog for offline analytics: it
// drops hint entries (the bookkeeping markers EntryKind.IsHint reports)
// and flattens what remains into a columnar export, since a replayer never
// needs to read compacted history and an analytics query never wants to
// pay for the hint entries' volume.
package oplogarchive

import (
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/oplogservice"
)

// Record is one compacted, columnar oplog entry. It only carries the
// fields that are both kind-independent and analytics-relevant; request/
// response payloads are left in the value store (internal/payloadstore)
// and are not duplicated here.
type Record struct {
	Project      string `parquet:"project"`
	Component    string `parquet:"component"`
	WorkerName   string `parquet:"worker_name"`
	Index        uint64 `parquet:"index"`
	Kind         string `parquet:"kind"`
	TimestampUTC int64  `parquet:"timestamp_utc"`

	FunctionName string `parquet:"function_name,optional"`
	ErrorMessage string `parquet:"error_message,optional"`
	ConsumedFuel int64  `parquet:"consumed_fuel,optional"`
}

func toRecord(owner oplog.OwnedWorkerId, e oplog.Entry) Record {
	return Record{
		Project:      owner.ProjectId.String(),
		Component:    owner.WorkerId.ComponentId.String(),
		WorkerName:   owner.WorkerId.WorkerName,
		Index:        uint64(e.Index),
		Kind:         string(e.Kind),
		TimestampUTC: e.Timestamp.UTC().UnixMilli(),
		FunctionName: e.FunctionName,
		ErrorMessage: e.ErrorMessage,
		ConsumedFuel: e.ConsumedFuel,
	}
}

// Export reads owner's full oplog from svc, drops hint entries, and writes
// the remaining entries as Parquet rows to w. Returns the number of rows
// written.
func Export(ctx context.Context, svc oplogservice.Service, owner oplog.OwnedWorkerId, w io.Writer) (int, error) {
	last, err := svc.LastIndex(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("oplogarchive: last index for %s: %w", owner, err)
	}
	if last.IsNone() {
		return 0, nil
	}

	entries, err := svc.Read(ctx, owner, oplog.OplogIndexInitial, last)
	if err != nil {
		return 0, fmt.Errorf("oplogarchive: read %s: %w", owner, err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		if e.Kind.IsHint() {
			continue
		}
		records = append(records, toRecord(owner, e))
	}

	pw := parquet.NewGenericWriter[Record](w)
	if _, err := pw.Write(records); err != nil {
		return 0, fmt.Errorf("oplogarchive: write parquet rows for %s: %w", owner, err)
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("oplogarchive: close parquet writer for %s: %w", owner, err)
	}

	return len(records), nil
}
