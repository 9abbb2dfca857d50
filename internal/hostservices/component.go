// Package hostservices defines the contracts a worker's host functions call
// out to: component metadata lookup, the content-addressed file loader,
// promises, the action scheduler, inter-worker RPC, and the wasi-keyvalue/
// wasi-blobstore/rdbms backends. Only the durability contract each service
// must satisfy is in scope here; transport and storage policy live behind
// whichever implementation is wired in by internal/config.
package hostservices

import (
	"context"
	"fmt"

	"github.com/golemproject/workerexec/internal/oplog"
)

// ComponentKind distinguishes a component that persists its state across
// invocations (Durable) from one that is torn down after each call
// (Ephemeral).
type ComponentKind string

const (
	ComponentDurable  ComponentKind = "durable"
	ComponentEphemeral ComponentKind = "ephemeral"
)

// AnalysedExport names one exported function a worker can be invoked
// through, with the WIT parameter/result types callers need to encode
// arguments and decode results (see internal/valuetype).
type AnalysedExport struct {
	Name    string
	Params  []string // WIT-level parameter type names
	Results []string
}

// InitialComponentFile is one file the file loader must stage into a
// worker's IFS before it starts, keyed by content hash.
type InitialComponentFile struct {
	Path        string
	Key         string // content-addressed key into the file loader's store
	Permissions string // "read-only" | "read-write"
}

// InstalledPlugin names a plugin activated on a component, by installation
// id (oplog.PluginInstallationId ties an ActivatePlugin/DeactivatePlugin
// entry back to one of these).
type InstalledPlugin struct {
	InstallationId oplog.PluginInstallationId
	PluginName     string
	PluginVersion  string
}

// ComponentDescriptor is everything a worker needs to know about the
// component it is an instance of, returned by ComponentService.GetMetadata.
type ComponentDescriptor struct {
	ComponentId      oplog.ComponentId
	Version          uint64
	Exports          []AnalysedExport
	Files            []InitialComponentFile
	InstalledPlugins []InstalledPlugin
	Kind             ComponentKind
	ComponentSize    uint64
	MemoryPages      uint32
}

// ComponentService resolves a component id (and optionally a pinned
// version) to its descriptor. Implementations typically cache results
// since a component's compiled artifact is immutable once published.
type ComponentService interface {
	GetMetadata(ctx context.Context, componentId oplog.ComponentId, version *uint64) (ComponentDescriptor, error)
}

// StaticComponentService serves descriptors from a fixed in-memory table,
// the shape a single-node dev deployment or a test harness needs; a
// production deployment would instead fetch these from the component
// registry the control plane maintains.
type StaticComponentService struct {
	descriptors map[oplog.ComponentId]map[uint64]ComponentDescriptor
}

func NewStaticComponentService() *StaticComponentService {
	return &StaticComponentService{descriptors: make(map[oplog.ComponentId]map[uint64]ComponentDescriptor)}
}

func (s *StaticComponentService) Put(d ComponentDescriptor) {
	byVersion, ok := s.descriptors[d.ComponentId]
	if !ok {
		byVersion = make(map[uint64]ComponentDescriptor)
		s.descriptors[d.ComponentId] = byVersion
	}
	byVersion[d.Version] = d
}

func (s *StaticComponentService) GetMetadata(ctx context.Context, componentId oplog.ComponentId, version *uint64) (ComponentDescriptor, error) {
	byVersion, ok := s.descriptors[componentId]
	if !ok {
		return ComponentDescriptor{}, fmt.Errorf("component %s not found", componentId)
	}
	if version != nil {
		d, ok := byVersion[*version]
		if !ok {
			return ComponentDescriptor{}, fmt.Errorf("component %s version %d not found", componentId, *version)
		}
		return d, nil
	}
	var latest ComponentDescriptor
	var latestVersion uint64
	found := false
	for v, d := range byVersion {
		if !found || v > latestVersion {
			latest, latestVersion, found = d, v, true
		}
	}
	if !found {
		return ComponentDescriptor{}, fmt.Errorf("component %s has no versions", componentId)
	}
	return latest, nil
}

var _ ComponentService = (*StaticComponentService)(nil)
