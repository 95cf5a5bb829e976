package node

import (
	"context"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
)

// wrapStage registers the entries the node owns in the invocation context before the
// command is routed, and commits the changed entries once it completed.
type wrapStage struct {
	node *Node
	next invocation.Handler
}

func (w *wrapStage) Handle(ctx context.Context, ictx *invocation.Context, cmd command.Command) *future.Future[any] {
	topo := w.node.CacheTopology()
	local := cmd.Meta().Flags.Has(command.CacheModeLocal)

	switch c := cmd.(type) {
	case *command.GetKeyValue:
		w.wrapRead(ictx, topo, c.Key, local)
	case *command.ReadOnlyKey:
		w.wrapRead(ictx, topo, c.Key, local)
	case *command.GetAll:
		for _, key := range c.Keys {
			w.wrapRead(ictx, topo, key, local)
		}
	case *command.ReadOnlyMany:
		for _, key := range c.Keys {
			w.wrapRead(ictx, topo, key, local)
		}
	case *command.GetKeysInGroup:
		// recomputed on every attempt, ownership may have moved since the last one
		c.GroupOwner = local || topo.GroupDistribution(c.Group).IsReadOwner()
		if c.GroupOwner {
			for _, key := range w.node.container.Keys(func(key string) bool { return topo.InGroup(key, c.Group) }) {
				w.wrapFromContainer(ictx, key, false)
			}
		}
	case command.DataWrite:
		state := c.WriteState()

		info := topo.Distribution(state.Key)
		if !local && !info.IsWriteOwner() {
			break
		}

		// a write owner that is not yet a read owner only sees what it already stores
		if local || info.IsReadOwner() {
			w.wrapFromContainer(ictx, state.Key, true)
		} else if _, ok := w.node.container.Get(state.Key); ok {
			w.wrapFromContainer(ictx, state.Key, true)
		}

		if info.IsPrimary() && state.Load != command.DontLoad {
			w.node.loadMissing(ctx, ictx, state.Key)
		}

		return future.Then(w.next.Handle(ctx, ictx, cmd), func(rv any) (any, error) {
			return rv, w.node.commit(ctx, ictx, state, info.IsPrimary() || local)
		})
	}

	return w.next.Handle(ctx, ictx, cmd)
}

func (w *wrapStage) wrapRead(ictx *invocation.Context, topo *cluster.LocalizedTopology, key string, local bool) {
	if local || topo.Distribution(key).IsReadOwner() {
		w.wrapFromContainer(ictx, key, false)
	}
}

func (w *wrapStage) wrapFromContainer(ictx *invocation.Context, key string, forWrite bool) {
	var entry *invocation.Entry
	if it, ok := w.node.container.Get(key); ok {
		entry = invocation.NewEntry(key, it.Value, it.Version)
	}

	invocation.ExternalEntryFactory{}.WrapExternalEntry(ictx, key, entry, true, forWrite)
}
