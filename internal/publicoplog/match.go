package publicoplog

import (
	"strconv"
	"strings"

	"github.com/golemproject/workerexec/internal/oplog"
)

// Matches evaluates query against entry, mirroring PublicOplogEntry::matches
// and matches_impl: Or/And/Not combine subqueries, Field narrows the path a
// leaf must match against, and leaves (Term/Phrase/Regex) are evaluated by
// matchesLeaf against every field the given entry kind exposes.
func Matches(entry PublicOplogEntry, query Query) bool {
	return matchesImpl(entry, query, nil)
}

func matchesImpl(entry PublicOplogEntry, query Query, fieldStack []string) bool {
	switch query.Kind {
	case QueryOr:
		for _, q := range query.Queries {
			if matchesImpl(entry, q, fieldStack) {
				return true
			}
		}
		return false
	case QueryAnd:
		for _, q := range query.Queries {
			if !matchesImpl(entry, q, fieldStack) {
				return false
			}
		}
		return true
	case QueryNot:
		return !matchesImpl(entry, *query.Inner, fieldStack)
	case QueryField:
		newStack := append(append([]string{}, fieldStack...), strings.Split(query.Field, ".")...)
		return matchesImpl(entry, *query.FieldQuery, newStack)
	case QueryTerm, QueryPhrase, QueryRegex:
		return matchesLeaf(entry, fieldStack, query)
	default:
		return false
	}
}

func matchesLeaf(entry PublicOplogEntry, queryPath []string, q Query) bool {
	sm := func(s string, path ...string) bool { return stringMatch(s, path, queryPath, q) }

	switch entry.Kind {
	case oplog.EntryCreate:
		return sm("create")
	case oplog.EntryImportedFunctionInvoked:
		if sm("importedfunctioninvoked") || sm("imported-function-invoked") || sm("imported-function") || sm(entry.FunctionName) {
			return true
		}
		return matchValue(entry.Request, nil, queryPath, q) || matchValue(entry.Response, nil, queryPath, q)
	case oplog.EntryExportedFunctionInvoked:
		if sm("exportedfunctioninvoked") || sm("exported-function-invoked") || sm("exported-function") || sm(entry.FunctionName) {
			return true
		}
		for _, v := range entry.RequestMulti {
			if matchValue(&v, nil, queryPath, q) {
				return true
			}
		}
		if entry.IdempotencyKey != nil && sm(entry.IdempotencyKey.Value) {
			return true
		}
		return false
	case oplog.EntryExportedFunctionCompleted:
		return sm("exportedfunctioncompleted") || sm("exported-function-completed") || sm("exported-function") ||
			matchValue(entry.Response, nil, queryPath, q)
	case oplog.EntrySuspend:
		return sm("suspend")
	case oplog.EntryError:
		return sm("error") || sm(entry.ErrorMessage)
	case oplog.EntryNoOp:
		return sm("noop")
	case oplog.EntryJump:
		return sm("jump")
	case oplog.EntryInterrupted:
		return sm("interrupted")
	case oplog.EntryExited:
		return sm("exited")
	case oplog.EntryChangeRetryPolicy:
		return sm("changeretrypolicy") || sm("change-retry-policy")
	case oplog.EntryBeginAtomicRegion:
		return sm("beginatomicregion") || sm("begin-atomic-region")
	case oplog.EntryEndAtomicRegion:
		return sm("endatomicregion") || sm("end-atomic-region")
	case oplog.EntryBeginRemoteWrite:
		return sm("beginremotewrite") || sm("begin-remote-write")
	case oplog.EntryEndRemoteWrite:
		return sm("endremotewrite") || sm("end-remote-write")
	case oplog.EntryPendingWorkerInvocation:
		return sm("pendingworkerinvocation") || sm("pending-worker-invocation") || sm(entry.InvokedFunctionName)
	case oplog.EntryPendingUpdate:
		return sm("pendingupdate") || sm("pending-update") || sm("update") || sm(strconv.FormatUint(entry.TargetVersion, 10))
	case oplog.EntrySuccessfulUpdate:
		return sm("successfulupdate") || sm("successful-update") || sm("update") || sm(strconv.FormatUint(entry.TargetVersion, 10))
	case oplog.EntryFailedUpdate:
		return sm("failedupdate") || sm("failed-update") || sm("update") || sm(strconv.FormatUint(entry.TargetVersion, 10)) || sm(entry.UpdateDetails)
	case oplog.EntryGrowMemory:
		return sm("growmemory") || sm("grow-memory")
	case oplog.EntryCreateResource:
		return sm("createresource") || sm("create-resource")
	case oplog.EntryDropResource:
		return sm("dropresource") || sm("drop-resource")
	case oplog.EntryDescribeResource:
		return sm("describeresource") || sm("describe-resource") || sm(entry.ResourceName)
	case oplog.EntryLog:
		return sm("log") || sm(entry.LogContext, "context") || sm(entry.LogMessage, "message")
	case oplog.EntryRestart:
		return sm("restart")
	case oplog.EntryActivatePlugin:
		return sm("activateplugin") || sm("activate-plugin")
	case oplog.EntryDeactivatePlugin:
		return sm("deactivateplugin") || sm("deactivate-plugin")
	default:
		return false
	}
}
