package oplogarchive

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/oplogservice"
)

func openTestBolt(t *testing.T) *oplogservice.BoltService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oplog.db")
	s, err := oplogservice.NewBoltService(path)
	if err != nil {
		t.Fatalf("NewBoltService: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestExportDropsHintEntries(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()
	owner := oplog.OwnedWorkerId{WorkerId: oplog.WorkerId{WorkerName: "w1"}}

	now := time.Unix(1700000000, 0)
	entries := []oplog.Entry{
		{Index: 1, Kind: oplog.EntryCreate, Timestamp: now},
		{Index: 2, Kind: oplog.EntryLog, LogMessage: "starting", Timestamp: now},
		{Index: 3, Kind: oplog.EntryExportedFunctionInvoked, FunctionName: "run", Timestamp: now},
		{Index: 4, Kind: oplog.EntrySetSpanAttribute, SpanAttrKey: "k", SpanAttrVal: "v", Timestamp: now},
		{Index: 5, Kind: oplog.EntryExportedFunctionCompleted, ConsumedFuel: 42, Timestamp: now},
	}
	if err := s.Append(ctx, owner, entries); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var buf bytes.Buffer
	n, err := Export(ctx, s, owner, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 3 {
		t.Fatalf("Export wrote %d rows, want 3 (hints dropped)", n)
	}

	rows, err := parquet.Read[Record](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("parquet.Read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("read back %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Kind == string(oplog.EntryLog) || r.Kind == string(oplog.EntrySetSpanAttribute) {
			t.Fatalf("hint entry %q leaked into export", r.Kind)
		}
	}
	if rows[2].ConsumedFuel != 42 {
		t.Fatalf("ConsumedFuel = %d, want 42", rows[2].ConsumedFuel)
	}
}

func TestExportEmptyOplog(t *testing.T) {
	s := openTestBolt(t)
	ctx := context.Background()
	owner := oplog.OwnedWorkerId{WorkerId: oplog.WorkerId{WorkerName: "empty"}}

	var buf bytes.Buffer
	n, err := Export(ctx, s, owner, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 0 {
		t.Fatalf("Export on an empty oplog wrote %d rows, want 0", n)
	}
	if buf.Len() != 0 {
		t.Fatalf("Export on an empty oplog should write nothing, wrote %d bytes", buf.Len())
	}
}
