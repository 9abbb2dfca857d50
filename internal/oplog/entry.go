package oplog

import (
	"encoding/json"
	"time"
)

// EntryKind is the closed set of oplog entry variants. Every observable
// effect (or hint about replay-vs-live state) a worker produces is one of
// these kinds; there is no open extension point, by design: a replayer must
// be able to exhaustively switch over EntryKind.
type EntryKind string

const (
	EntryCreate                  EntryKind = "create"
	EntrySuspend                 EntryKind = "suspend"
	EntryInterrupted             EntryKind = "interrupted"
	EntryExited                  EntryKind = "exited"
	EntryRestart                 EntryKind = "restart"
	EntryError                   EntryKind = "error"
	EntryNoOp                    EntryKind = "no_op"
	EntryJump                    EntryKind = "jump"
	EntryExportedFunctionInvoked EntryKind = "exported_function_invoked"
	EntryExportedFunctionCompleted EntryKind = "exported_function_completed"
	EntryImportedFunctionInvoked EntryKind = "imported_function_invoked"
	EntryBeginAtomicRegion       EntryKind = "begin_atomic_region"
	EntryEndAtomicRegion         EntryKind = "end_atomic_region"
	EntryBeginRemoteWrite        EntryKind = "begin_remote_write"
	EntryEndRemoteWrite          EntryKind = "end_remote_write"
	EntryBeginRemoteTransaction  EntryKind = "begin_remote_transaction"
	EntryPreCommitTransaction    EntryKind = "pre_commit_transaction"
	EntryPreRollbackTransaction  EntryKind = "pre_rollback_transaction"
	EntryCommittedTransaction    EntryKind = "committed_transaction"
	EntryRolledBackTransaction   EntryKind = "rolled_back_transaction"
	EntryChangeRetryPolicy       EntryKind = "change_retry_policy"
	EntryPendingWorkerInvocation EntryKind = "pending_worker_invocation"
	EntryPendingUpdate           EntryKind = "pending_update"
	EntrySuccessfulUpdate        EntryKind = "successful_update"
	EntryFailedUpdate            EntryKind = "failed_update"
	EntryGrowMemory              EntryKind = "grow_memory"
	EntryCreateResource          EntryKind = "create_resource"
	EntryDescribeResource        EntryKind = "describe_resource"
	EntryDropResource            EntryKind = "drop_resource"
	EntryLog                     EntryKind = "log"
	EntryStartSpan               EntryKind = "start_span"
	EntryFinishSpan               EntryKind = "finish_span"
	EntrySetSpanAttribute        EntryKind = "set_span_attribute"
	EntryActivatePlugin          EntryKind = "activate_plugin"
	EntryDeactivatePlugin        EntryKind = "deactivate_plugin"
)

// IsHint reports whether an entry kind is bookkeeping that does not itself
// represent an observable worker-level side effect. Hints are dropped by
// internal/oplogarchive compaction and are transparent to
// internal/replay's persistence-level state machine (see
// internal/replay/persistence_tracking.go).
func (k EntryKind) IsHint() bool {
	switch k {
	case EntryLog, EntryPendingWorkerInvocation,
		EntryStartSpan, EntryFinishSpan, EntrySetSpanAttribute:
		return true
	default:
		return false
	}
}

// UpdateKind distinguishes the two ways a pending update can be applied,
// named PendingUpdate in spec.md.
type UpdateKind string

const (
	UpdateAutomatic     UpdateKind = "automatic"
	UpdateSnapshotBased UpdateKind = "snapshot_based"
)

// DurableFunctionType classifies an imported host call by its durability
// contract (internal/durability consumes this to decide replay behaviour).
type DurableFunctionType string

const (
	FunctionReadLocal            DurableFunctionType = "read_local"
	FunctionWriteLocal           DurableFunctionType = "write_local"
	FunctionReadRemote           DurableFunctionType = "read_remote"
	FunctionWriteRemote          DurableFunctionType = "write_remote"
	FunctionWriteRemoteBatched   DurableFunctionType = "write_remote_batched"
	FunctionWriteRemoteTransaction DurableFunctionType = "write_remote_transaction"
)

// Entry is a single oplog record. It is modelled as one struct with
// kind-specific optional fields rather than as a Go sum type (Go has none);
// Kind determines which of the optional fields are populated. Request and
// Response carry an opaque, msgpack-encoded ValueAndType list for entries
// that record function parameters/results (see internal/valuetype), oversized payloads
// being spilled to internal/payloadstore and referenced by PayloadRef.
type Entry struct {
	Index     OplogIndex `json:"index"`
	Kind      EntryKind  `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`

	// EntryCreate
	ComponentId       *ComponentId      `json:"component_id,omitempty"`
	ComponentVersion  *uint64           `json:"component_version,omitempty"`
	WorkerArgs        []string          `json:"worker_args,omitempty"`
	WorkerEnv         map[string]string `json:"worker_env,omitempty"`
	CreatedBy         *string           `json:"created_by,omitempty"`
	ParentWorker      *WorkerId         `json:"parent_worker,omitempty"`

	// EntryError
	ErrorMessage string      `json:"error_message,omitempty"`
	RetryFrom    *OplogIndex `json:"retry_from,omitempty"`

	// EntryJump
	JumpRegion *Region `json:"jump_region,omitempty"`

	// EntryExportedFunctionInvoked / EntryImportedFunctionInvoked
	FunctionName    string               `json:"function_name,omitempty"`
	IdempotencyKey  *IdempotencyKey      `json:"idempotency_key,omitempty"`
	DurableFnType   *DurableFunctionType `json:"durable_function_type,omitempty"`
	Request         json.RawMessage      `json:"request,omitempty"`
	PayloadRef      *PayloadRef          `json:"payload_ref,omitempty"`

	// EntryExportedFunctionCompleted
	Response         json.RawMessage `json:"response,omitempty"`
	ConsumedFuel     int64           `json:"consumed_fuel,omitempty"`

	// EntryBeginRemoteTransaction / PreCommit / PreRollback / Committed / RolledBack
	TransactionId *TransactionId `json:"transaction_id,omitempty"`

	// EntryChangeRetryPolicy
	RetryPolicy *RetryPolicyDescription `json:"retry_policy,omitempty"`

	// EntryPendingWorkerInvocation
	InvokedFunctionName string          `json:"invoked_function_name,omitempty"`
	InvokedParams       json.RawMessage `json:"invoked_params,omitempty"`

	// EntryPendingUpdate / SuccessfulUpdate / FailedUpdate
	TargetVersion *uint64     `json:"target_version,omitempty"`
	UpdateKind    *UpdateKind `json:"update_kind,omitempty"`
	UpdateDetails string      `json:"update_details,omitempty"`

	// EntryGrowMemory
	DeltaBytes int64 `json:"delta_bytes,omitempty"`

	// EntryCreateResource / DescribeResource / DropResource
	ResourceId   *WorkerResourceId `json:"resource_id,omitempty"`
	ResourceName string            `json:"resource_name,omitempty"`
	ResourceArgs json.RawMessage   `json:"resource_args,omitempty"`

	// EntryLog
	LogLevel   string `json:"log_level,omitempty"`
	LogContext string `json:"log_context,omitempty"`
	LogMessage string `json:"log_message,omitempty"`

	// EntryStartSpan / FinishSpan / SetSpanAttribute
	SpanId       *SpanId `json:"span_id,omitempty"`
	ParentSpanId *SpanId `json:"parent_span_id,omitempty"`
	SpanAttrKey  string  `json:"span_attr_key,omitempty"`
	SpanAttrVal  string  `json:"span_attr_val,omitempty"`

	// EntryActivatePlugin / DeactivatePlugin
	PluginInstallationId *PluginInstallationId `json:"plugin_installation_id,omitempty"`
}

// PayloadRef points at an oversized payload spilled to internal/payloadstore
// instead of being inlined into the oplog entry itself.
type PayloadRef struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// RetryPolicyDescription is the value recorded by a ChangeRetryPolicy entry.
type RetryPolicyDescription struct {
	MaxAttempts int           `json:"max_attempts"`
	MinDelay    time.Duration `json:"min_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`
}
