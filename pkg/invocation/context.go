// Package invocation carries the per-operation state of a command flowing
// through a node pipeline: the entry context, the factory that registers
// entries into it and the Handler contract of pipeline stages.
package invocation

import (
	"context"
	"slices"
	"sync"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

// Context is the entry context of one operation. It is scoped to a single
// operation, but continuations of that operation may register entries
// concurrently, so access is serialized.
type Context struct {
	mu      sync.Mutex
	origin  cluster.NodeID
	local   bool
	entries map[string]*Entry
	order   []string
}

// NewLocal returns the context of an operation started on this node.
func NewLocal() *Context {
	return &Context{local: true, entries: map[string]*Entry{}}
}

// NewRemote returns the context of an operation received from origin.
func NewRemote(origin cluster.NodeID) *Context {
	return &Context{origin: origin, entries: map[string]*Entry{}}
}

// IsOriginLocal reports whether the operation started on this node.
func (c *Context) IsOriginLocal() bool { return c.local }

// Origin returns the node that started a remote operation.
func (c *Context) Origin() cluster.NodeID { return c.origin }

// LookupEntry returns the entry registered for key, nil when absent.
func (c *Context) LookupEntry(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.entries[key]
}

// PutEntry registers e under key, replacing any previous entry.
func (c *Context) PutEntry(key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}

	c.entries[key] = e
}

// PutIfAbsent registers e under key unless an entry exists. It reports whether e was registered.
func (c *Context) PutIfAbsent(key string, e *Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return false
	}

	c.order = append(c.order, key)
	c.entries[key] = e

	return true
}

// Keys returns the registered keys in registration order.
func (c *Context) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.order)
}

// Entries returns the registered entries in registration order.
func (c *Context) Entries() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k])
	}

	return out
}

// EntryFactory registers entries into a context.
type EntryFactory interface {
	// WrapExternalEntry registers an entry obtained outside the local container.
	// A nil entry stands for "no value". Trusted entries skip validation; forWrite
	// entries are registered as mutable copies even when the key is already present.
	WrapExternalEntry(ictx *Context, key string, entry *Entry, trusted, forWrite bool)
}

// Handler is a pipeline stage. It never blocks on remote replies: the returned
// future completes with the result of the command, or fails.
type Handler interface {
	Handle(ctx context.Context, ictx *Context, cmd command.Command) *future.Future[any]
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ictx *Context, cmd command.Command) *future.Future[any]

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ictx *Context, cmd command.Command) *future.Future[any] {
	return f(ctx, ictx, cmd)
}
