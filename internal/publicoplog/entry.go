package publicoplog

import (
	"time"

	"github.com/golemproject/workerexec/internal/oplog"
	"github.com/golemproject/workerexec/internal/valuetype"
)

// PublicOplogEntry is a read-only projection of an internal oplog.Entry
// meant for external consumption: it carries decoded request/response
// values instead of opaque payload bytes, and knows its own type name for
// search and display purposes. Grounded on public_oplog.rs's
// PublicOplogEntry enum.
type PublicOplogEntry struct {
	Index     oplog.OplogIndex `json:"oplogIndex"`
	Kind      oplog.EntryKind  `json:"type"`
	Timestamp time.Time        `json:"timestamp"`

	// Create
	ComponentId      *oplog.ComponentId `json:"componentId,omitempty"`
	ComponentVersion uint64             `json:"componentVersion,omitempty"`
	WorkerArgs       []string           `json:"args,omitempty"`
	WorkerEnv        map[string]string  `json:"env,omitempty"`
	ParentWorker     *oplog.WorkerId    `json:"parent,omitempty"`

	// ImportedFunctionInvoked / ExportedFunctionInvoked / ExportedFunctionCompleted
	FunctionName   string                        `json:"functionName,omitempty"`
	Request        *valuetype.ValueAndType       `json:"request,omitempty"`
	RequestMulti   []valuetype.ValueAndType       `json:"requestMulti,omitempty"`
	Response       *valuetype.ValueAndType       `json:"response,omitempty"`
	IdempotencyKey *oplog.IdempotencyKey         `json:"idempotencyKey,omitempty"`
	ConsumedFuel   int64                         `json:"consumedFuel,omitempty"`

	// Error
	ErrorMessage string `json:"error,omitempty"`

	// Jump / EndRemoteWrite / EndAtomicRegion
	Region *oplog.Region `json:"region,omitempty"`

	// ChangeRetryPolicy
	RetryPolicy *oplog.RetryPolicyDescription `json:"retryPolicy,omitempty"`

	// PendingWorkerInvocation
	InvokedFunctionName string `json:"invokedFunctionName,omitempty"`

	// PendingUpdate / SuccessfulUpdate / FailedUpdate
	TargetVersion uint64          `json:"targetVersion,omitempty"`
	UpdateKind    oplog.UpdateKind `json:"updateKind,omitempty"`
	UpdateDetails string          `json:"updateDetails,omitempty"`

	// GrowMemory
	DeltaBytes int64 `json:"deltaBytes,omitempty"`

	// CreateResource / DescribeResource / DropResource
	ResourceId   *oplog.WorkerResourceId `json:"resourceId,omitempty"`
	ResourceName string                  `json:"resourceName,omitempty"`

	// Log
	LogContext string `json:"logContext,omitempty"`
	LogMessage string `json:"logMessage,omitempty"`

	// ActivatePlugin / DeactivatePlugin
	PluginInstallationId *oplog.PluginInstallationId `json:"pluginInstallationId,omitempty"`
}

// Project converts a raw internal oplog entry into its public projection,
// decoding any msgpack-encoded request/response payload along the way.
// Decode failures are not fatal: the projection is still returned with the
// value fields left nil, since display/search must not crash on an entry
// whose payload predates a value-model change.
func Project(e oplog.Entry) PublicOplogEntry {
	p := PublicOplogEntry{
		Index:                e.Index,
		Kind:                 e.Kind,
		Timestamp:            e.Timestamp,
		ComponentId:          e.ComponentId,
		WorkerArgs:           e.WorkerArgs,
		WorkerEnv:            e.WorkerEnv,
		ParentWorker:         e.ParentWorker,
		FunctionName:         e.FunctionName,
		IdempotencyKey:       e.IdempotencyKey,
		ConsumedFuel:         e.ConsumedFuel,
		ErrorMessage:         e.ErrorMessage,
		InvokedFunctionName:  e.InvokedFunctionName,
		UpdateDetails:        e.UpdateDetails,
		DeltaBytes:           e.DeltaBytes,
		ResourceId:           e.ResourceId,
		ResourceName:         e.ResourceName,
		LogContext:           e.LogContext,
		LogMessage:           e.LogMessage,
		PluginInstallationId: e.PluginInstallationId,
		RetryPolicy:          e.RetryPolicy,
	}

	if e.ComponentVersion != nil {
		p.ComponentVersion = *e.ComponentVersion
	}
	if e.TargetVersion != nil {
		p.TargetVersion = *e.TargetVersion
	}
	if e.UpdateKind != nil {
		p.UpdateKind = *e.UpdateKind
	}

	switch e.Kind {
	case oplog.EntryJump:
		p.Region = e.JumpRegion
	case oplog.EntryEndRemoteWrite, oplog.EntryEndAtomicRegion:
		if e.JumpRegion != nil {
			p.Region = e.JumpRegion
		}
	}

	if len(e.Request) > 0 {
		if e.Kind == oplog.EntryExportedFunctionInvoked {
			if vts, err := valuetype.DecodeMany(e.Request); err == nil {
				p.RequestMulti = vts
			}
		} else if vt, err := valuetype.Decode(e.Request); err == nil {
			p.Request = &vt
		}
	}
	if len(e.Response) > 0 {
		if vt, err := valuetype.Decode(e.Response); err == nil {
			p.Response = &vt
		}
	}

	return p
}
