package hostservices

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/golemproject/workerexec/internal/oplog"
)

func TestStaticComponentServiceReturnsLatestWithoutVersion(t *testing.T) {
	svc := NewStaticComponentService()
	componentId := oplog.ComponentId{UUID: uuid.New()}

	svc.Put(ComponentDescriptor{ComponentId: componentId, Version: 1, Kind: ComponentDurable})
	svc.Put(ComponentDescriptor{ComponentId: componentId, Version: 3, Kind: ComponentDurable})
	svc.Put(ComponentDescriptor{ComponentId: componentId, Version: 2, Kind: ComponentDurable})

	ctx := context.Background()
	d, err := svc.GetMetadata(ctx, componentId, nil)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if d.Version != 3 {
		t.Fatalf("GetMetadata without version = %d, want latest (3)", d.Version)
	}
}

func TestStaticComponentServicePinnedVersion(t *testing.T) {
	svc := NewStaticComponentService()
	componentId := oplog.ComponentId{UUID: uuid.New()}
	svc.Put(ComponentDescriptor{ComponentId: componentId, Version: 1, Kind: ComponentDurable})
	svc.Put(ComponentDescriptor{ComponentId: componentId, Version: 2, Kind: ComponentEphemeral})

	ctx := context.Background()
	v := uint64(1)
	d, err := svc.GetMetadata(ctx, componentId, &v)
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if d.Kind != ComponentDurable {
		t.Fatalf("GetMetadata(v=1).Kind = %v, want durable", d.Kind)
	}
}

func TestStaticComponentServiceUnknownComponent(t *testing.T) {
	svc := NewStaticComponentService()
	ctx := context.Background()
	if _, err := svc.GetMetadata(ctx, oplog.ComponentId{UUID: uuid.New()}, nil); err == nil {
		t.Fatalf("expected an error for an unregistered component id")
	}
}
