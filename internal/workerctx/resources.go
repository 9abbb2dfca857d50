package workerctx

import (
	"fmt"
	"sync"

	"github.com/golemproject/workerexec/internal/oplog"
)

// resourceEntry is one live component-model resource handle owned by a
// worker: the constructor name it was created with, plus an opaque handle
// value the engine-boundary layer (internal/component) uses to look the
// actual resource instance back up.
type resourceEntry struct {
	typeName string
	handle   any
}

// resourceTable is the per-worker map from WorkerResourceId to live
// resource instances, matching PrivateDurableWorkerState's
// resources/last_resource_id fields.
type resourceTable struct {
	mu      sync.Mutex
	entries map[oplog.WorkerResourceId]resourceEntry
	lastID  oplog.WorkerResourceId
}

func newResourceTable() *resourceTable {
	return &resourceTable{entries: make(map[oplog.WorkerResourceId]resourceEntry)}
}

// Add allocates a new resource id for handle and records it under typeName.
func (t *resourceTable) Add(typeName string, handle any) oplog.WorkerResourceId {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastID++
	id := t.lastID
	t.entries[id] = resourceEntry{typeName: typeName, handle: handle}
	return id
}

// Get returns the handle and type name for id, or ok=false if it is not
// (or no longer) live.
func (t *resourceTable) Get(id oplog.WorkerResourceId) (typeName string, handle any, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e.typeName, e.handle, ok
}

// Drop removes a resource from the table, matching DropResource.
func (t *resourceTable) Drop(id oplog.WorkerResourceId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Borrow checks out a resource for the duration of a single host call
// without removing it from the table (component-model borrow semantics:
// the callee may not outlive the call holding it).
func (t *resourceTable) Borrow(id oplog.WorkerResourceId) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, fmt.Errorf("resource %d not found", id)
	}
	return e.handle, nil
}

// AddResource allocates and records a new resource, returning its id,
// matching CreateResource's effect on the resource table.
func (c *Context) AddResource(typeName string, handle any) oplog.WorkerResourceId {
	return c.resources.Add(typeName, handle)
}

// GetResource looks up a live resource by id.
func (c *Context) GetResource(id oplog.WorkerResourceId) (typeName string, handle any, ok bool) {
	return c.resources.Get(id)
}

// BorrowResource checks out a resource without removing it from the table.
func (c *Context) BorrowResource(id oplog.WorkerResourceId) (any, error) {
	return c.resources.Borrow(id)
}

// DropResource removes a resource from the table.
func (c *Context) DropResource(id oplog.WorkerResourceId) {
	c.resources.Drop(id)
}
