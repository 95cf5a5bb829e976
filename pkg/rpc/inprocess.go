package rpc

import (
	"context"
	"sync"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

// InProcessTransport connects nodes living in the same process.
type InProcessTransport struct {
	mu       sync.RWMutex
	handlers map[cluster.NodeID]Handler
}

// NewInProcessTransport creates a new empty transport.
func NewInProcessTransport() *InProcessTransport {
	return &InProcessTransport{handlers: map[cluster.NodeID]Handler{}}
}

// Register attaches the handler of node id; safe to call multiple times.
func (t *InProcessTransport) Register(id cluster.NodeID, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[id] = h
}

// Unregister detaches a node (simulates a leaver in tests).
func (t *InProcessTransport) Unregister(id cluster.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.handlers, id)
}

// Send implements Transport. The target runs on its own goroutine and receives its own copy of cmd.
func (t *InProcessTransport) Send(ctx context.Context, origin, target cluster.NodeID, cmd command.Command) *future.Future[Response] {
	t.mu.RLock()
	h, ok := t.handlers[target]
	t.mu.RUnlock()

	if !ok {
		return future.Failed[Response](ewrap.Wrap(sentinel.ErrBackendNotFound, string(target)))
	}

	out := future.New[Response]()
	cp := cmd.Copy()

	go func() {
		res := h.HandleRemote(ctx, origin, cp)

		select {
		case <-res.Done():
			out.Resolve(res.Result())
		case <-ctx.Done():
			out.Fail(ewrap.Wrap(sentinel.ErrTimeoutOrCanceled, ctx.Err().Error()))
		}
	}()

	return out
}
