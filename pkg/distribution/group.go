package distribution

import (
	"context"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

// VisitGetKeysInGroup lists a key group. A node that does not own the group fetches its
// entries from the group's primary owner and then answers from the fetched entries.
func (i *Interceptor) VisitGetKeysInGroup(ctx context.Context, ictx *invocation.Context, cmd *command.GetKeysInGroup) *future.Future[any] {
	if cmd.GroupOwner || !ictx.IsOriginLocal() || cmd.Flags.LocalOnly() {
		return i.next.Handle(ctx, ictx, cmd)
	}

	topo, err := i.CheckTopology(cmd)
	if err != nil {
		return failed(err)
	}

	info := topo.GroupDistribution(cmd.Group)

	remote, _ := cmd.Copy().(*command.GetKeysInGroup)
	remote.TopologyID = topo.ID()

	fut, err := i.rpc.InvokeRemotely(ctx, []cluster.NodeID{info.Primary}, remote, rpc.Synchronous)
	if err != nil {
		return failed(err)
	}

	fetched := future.Then(fut, func(resps rpc.Responses) (struct{}, error) {
		for node, resp := range resps {
			ok, isSuccess := resp.(rpc.SuccessfulResponse)
			if !isSuccess {
				continue
			}

			entries, isEntries := ok.Value.([]*command.RemoteValue)
			if !isEntries && ok.Value != nil {
				return struct{}{}, sentinel.NewProtocolError("group owner %s answered with %T", node, ok.Value)
			}

			for _, rv := range entries {
				if rv == nil {
					continue
				}

				i.wrapRemoteEntry(ictx, rv.Key, invocation.NewEntry(rv.Key, rv.Value, rv.Version), false)
			}

			return struct{}{}, nil
		}

		return struct{}{}, sentinel.NewOutdatedTopology(topo.ID(), "group owner did not answer successfully")
	})

	return future.Compose(fetched, func(struct{}) *future.Future[any] {
		return i.next.Handle(ctx, ictx, cmd)
	})
}

// VisitClear broadcasts a clear originated here to every other member, then clears locally.
func (i *Interceptor) VisitClear(ctx context.Context, ictx *invocation.Context, cmd *command.Clear) *future.Future[any] {
	if !ictx.IsOriginLocal() || cmd.Flags.Has(command.CacheModeLocal) {
		return i.next.Handle(ctx, ictx, cmd)
	}

	mode := rpc.Asynchronous
	if i.isSynchronous(cmd) {
		mode = rpc.SynchronousIgnoreLeavers
	}

	fut, err := i.rpc.InvokeRemotely(ctx, nil, cmd, mode)
	if err != nil {
		return failed(err)
	}

	return future.Compose(fut, func(rpc.Responses) *future.Future[any] {
		return i.next.Handle(ctx, ictx, cmd)
	})
}
