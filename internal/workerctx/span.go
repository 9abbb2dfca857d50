package workerctx

import (
	"sync"

	"github.com/golemproject/workerexec/internal/oplog"
)

// span is one node of an invocation context tree. Every invocation of an
// exported function starts (or inherits) a span; spans nest as the worker
// calls further exported functions on other workers, forming a tree whose
// root is the invocation that first reached this worker.
type span struct {
	id        oplog.SpanId
	parent    *oplog.SpanId
	inherited bool // received from a caller's stack rather than started locally
	attrs     map[string]string
}

// InvocationContext is the span tree for a single worker, plus a pointer at
// the span currently "in scope" for whatever host call runs next. Grounded
// on InvocationContext/InvocationContextStack from durable_host/mod.rs
// (start_span/finish_span/set_span_attribute/get_current_invocation_context/
// set_current_invocation_context).
type InvocationContext struct {
	mu      sync.Mutex
	spans   map[oplog.SpanId]*span
	root    oplog.SpanId
	current oplog.SpanId
}

// NewInvocationContext creates a context with a single root span and no
// parent, matching InvocationContext::new(None).
func NewInvocationContext() *InvocationContext {
	root := oplog.NewSpanId()
	ic := &InvocationContext{
		spans: map[oplog.SpanId]*span{
			root: {id: root, attrs: map[string]string{}},
		},
		root:    root,
		current: root,
	}
	return ic
}

// Root returns the context's root span id.
func (ic *InvocationContext) Root() oplog.SpanId {
	return ic.root
}

// Current returns the span currently in scope.
func (ic *InvocationContext) Current() oplog.SpanId {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.current
}

// StartSpan creates a new child span under parent (or under Current if
// parent is nil) and makes it the current span, returning its id.
func (ic *InvocationContext) StartSpan(parent *oplog.SpanId) oplog.SpanId {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	p := ic.current
	if parent != nil {
		p = *parent
	}
	id := oplog.NewSpanId()
	ic.spans[id] = &span{id: id, parent: &p, attrs: map[string]string{}}
	ic.current = id
	return id
}

// FinishSpan removes id from the tree and, if it was the current span,
// moves current back to its parent.
func (ic *InvocationContext) FinishSpan(id oplog.SpanId) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	s, ok := ic.spans[id]
	if !ok {
		return
	}
	delete(ic.spans, id)
	if ic.current == id && s.parent != nil {
		ic.current = *s.parent
	}
}

// SetSpanAttribute attaches a string attribute to span id. Silently a no-op
// if the span does not exist (it may already have been finished).
func (ic *InvocationContext) SetSpanAttribute(id oplog.SpanId, key, value string) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if s, ok := ic.spans[id]; ok {
		s.attrs[key] = value
	}
}

// Stack returns the chain of span ids from Current up to Root, matching
// InvocationContextStack's ordering (innermost first).
func (ic *InvocationContext) Stack() []oplog.SpanId {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	var out []oplog.SpanId
	cur := ic.current
	for {
		out = append(out, cur)
		s := ic.spans[cur]
		if s == nil || s.parent == nil {
			break
		}
		cur = *s.parent
	}
	return out
}

// SpanIDs splits the tree into locally started spans and spans inherited
// from a caller's stack, matching invocation_context.span_ids() which is
// consulted when deciding what to forward to a callee.
func (ic *InvocationContext) SpanIDs() (local, inherited []oplog.SpanId) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	for id, s := range ic.spans {
		if s.inherited {
			inherited = append(inherited, id)
		} else {
			local = append(local, id)
		}
	}
	return local, inherited
}

// SwitchTo replaces the current span pointer without touching the rest of
// the tree, matching InvocationContext::switch_to.
func (ic *InvocationContext) SwitchTo(id oplog.SpanId) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.current = id
}

// AddSpan inserts an externally constructed span (e.g. one received from a
// caller's invocation context stack) as inherited.
func (ic *InvocationContext) AddSpan(id oplog.SpanId, parent *oplog.SpanId) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.spans[id] = &span{id: id, parent: parent, inherited: true, attrs: map[string]string{}}
}

// InsertSpan reconstructs a locally-started span with an id recorded by a
// prior StartSpan oplog entry, making it current. Unlike StartSpan (which
// mints a fresh random id for live execution) replay must reuse the exact
// id the original run persisted, since that id may already be referenced by
// a SetSpanAttribute or FinishSpan entry later in the same oplog.
func (ic *InvocationContext) InsertSpan(id oplog.SpanId, parent *oplog.SpanId) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	p := parent
	if p == nil {
		cur := ic.current
		p = &cur
	}
	ic.spans[id] = &span{id: id, parent: p, attrs: map[string]string{}}
	ic.current = id
}

// CloneAsInheritedStack returns the chain from span up to the root as a
// fresh stack of (id, attributes) pairs suitable for forwarding to a callee
// as its inherited invocation context, matching clone_as_inherited_stack.
func (ic *InvocationContext) CloneAsInheritedStack(from oplog.SpanId) []SpanSnapshot {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	var out []SpanSnapshot
	cur := from
	for {
		s := ic.spans[cur]
		if s == nil {
			break
		}
		attrs := make(map[string]string, len(s.attrs))
		for k, v := range s.attrs {
			attrs[k] = v
		}
		out = append(out, SpanSnapshot{Id: s.id, Attributes: attrs})
		if s.parent == nil {
			break
		}
		cur = *s.parent
	}
	return out
}

// SpanSnapshot is one entry of a CloneAsInheritedStack result.
type SpanSnapshot struct {
	Id         oplog.SpanId
	Attributes map[string]string
}

// FromStack rebuilds an InvocationContext from a received stack of span
// ids (innermost first), returning the new context and its current span,
// matching InvocationContext::from_stack.
func FromStack(stack []oplog.SpanId) (*InvocationContext, oplog.SpanId) {
	ic := NewInvocationContext()
	if len(stack) == 0 {
		return ic, ic.root
	}

	ic.mu.Lock()
	delete(ic.spans, ic.root)
	var parent *oplog.SpanId
	for i := len(stack) - 1; i >= 0; i-- {
		id := stack[i]
		ic.spans[id] = &span{id: id, parent: parent, inherited: true, attrs: map[string]string{}}
		p := id
		parent = &p
	}
	ic.root = stack[len(stack)-1]
	ic.current = stack[0]
	ic.mu.Unlock()

	return ic, ic.current
}
