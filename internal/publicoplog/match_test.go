package publicoplog

import (
	"testing"
	"time"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/valuetype"
)

func TestMatchesTermAgainstFunctionName(t *testing.T) {
	entry := Project(oplog.Entry{
		Kind:         oplog.EntryExportedFunctionInvoked,
		FunctionName: "process-order",
		Timestamp:    time.Now(),
	})

	if !Matches(entry, Term("process-order")) {
		t.Fatalf("expected term match on function name")
	}
	if Matches(entry, Term("nope")) {
		t.Fatalf("unexpected match")
	}
}

func TestMatchesFieldScopedQuery(t *testing.T) {
	entry := Project(oplog.Entry{
		Kind:       oplog.EntryLog,
		LogContext: "worker",
		LogMessage: "started up",
		Timestamp:  time.Now(),
	})

	if !Matches(entry, Term("started up")) {
		t.Fatalf("expected unscoped match on log message")
	}
	if !Matches(entry, Field("message", Term("started up"))) {
		t.Fatalf("expected match scoped to the message field")
	}
}

func TestMatchesAndOrNot(t *testing.T) {
	entry := Project(oplog.Entry{Kind: oplog.EntryGrowMemory, DeltaBytes: 4096, Timestamp: time.Now()})

	if !Matches(entry, And(Term("grow-memory"), Not(Term("shrink")))) {
		t.Fatalf("expected And/Not to match")
	}
	if !Matches(entry, Or(Term("nope"), Term("growmemory"))) {
		t.Fatalf("expected Or to match on second branch")
	}
	if Matches(entry, And(Term("growmemory"), Term("nope"))) {
		t.Fatalf("And should fail when one branch fails")
	}
}

func TestMatchValueWalksRecordFields(t *testing.T) {
	vt := valuetype.New(
		valuetype.Value{Kind: valuetype.KindRecord, Record: []valuetype.Value{
			{Kind: valuetype.KindString, String: "alice"},
		}},
		valuetype.AnalysedType{Kind: valuetype.TypeRecord, Fields: []valuetype.NameTypePair{
			{Name: "name", Type: valuetype.AnalysedType{Kind: valuetype.TypeString}},
		}},
	)
	data, err := valuetype.Encode(vt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	entry := Project(oplog.Entry{
		Kind:         oplog.EntryImportedFunctionInvoked,
		FunctionName: "lookup-user",
		Request:      data,
		Timestamp:    time.Now(),
	})

	if !Matches(entry, Term("alice")) {
		t.Fatalf("expected match inside decoded record value")
	}
}
