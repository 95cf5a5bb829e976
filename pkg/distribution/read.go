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

// VisitGetKeyValue routes a single-key read.
func (i *Interceptor) VisitGetKeyValue(ctx context.Context, ictx *invocation.Context, cmd *command.GetKeyValue) *future.Future[any] {
	if ictx.LookupEntry(cmd.Key) != nil {
		return i.next.Handle(ctx, ictx, cmd)
	}

	if !ictx.IsOriginLocal() {
		return i.missingEntryOnRead(cmd)
	}

	if cmd.Flags.LocalOnly() {
		i.entries.WrapExternalEntry(ictx, cmd.Key, nil, false, false)

		return i.next.Handle(ctx, ictx, cmd)
	}

	return future.Compose(i.remoteGet(ctx, ictx, cmd, cmd.Key, false), func(struct{}) *future.Future[any] {
		return i.next.Handle(ctx, ictx, cmd)
	})
}

// remoteGet fetches key from its read owners and registers the result in ictx.
// Owners are asked one after the other; the first successful answer wins.
func (i *Interceptor) remoteGet(
	ctx context.Context,
	ictx *invocation.Context,
	cmd command.Command,
	key string,
	isWrite bool,
) *future.Future[struct{}] {
	topo, err := i.CheckTopology(cmd)
	if err != nil {
		return future.Failed[struct{}](err)
	}

	info := topo.Distribution(key)

	err = i.checkNotReadOwner(cmd, topo, info, key)
	if err != nil {
		return future.Failed[struct{}](err)
	}

	get := &command.ClusteredGet{
		Header: command.Header{TopologyID: topo.ID(), Flags: cmd.Meta().Flags},
		Key:    key,
		Write:  isWrite,
	}

	i.logger.Trace("fetching remote entry", "key", key, "owners", info.ReadOwners, "topology", topo.ID())

	fut, err := i.rpc.InvokeRemotely(ctx, info.ReadOwners, get, rpc.Staggered)
	if err != nil {
		return future.Failed[struct{}](err)
	}

	return future.Then(fut, func(resps rpc.Responses) (struct{}, error) {
		for _, resp := range resps {
			ok, isSuccess := resp.(rpc.SuccessfulResponse)
			if !isSuccess {
				continue
			}

			i.registerRemoteValue(ictx, key, ok.Value, isWrite)

			return struct{}{}, nil
		}

		return struct{}{}, sentinel.NewOutdatedTopology(topo.ID(), "did not get any successful response")
	})
}

func (i *Interceptor) registerRemoteValue(ictx *invocation.Context, key string, value any, isWrite bool) {
	rv, _ := value.(*command.RemoteValue)
	if rv == nil {
		if i.listener != nil {
			i.listener.RemoteValueNotFound(key)
		}

		i.wrapRemoteEntry(ictx, key, nil, isWrite)

		return
	}

	if i.listener != nil {
		i.listener.RemoteValueFound(rv)
	}

	i.wrapRemoteEntry(ictx, key, invocation.NewEntry(key, rv.Value, rv.Version), isWrite)
}

// VisitReadOnlyKey routes a single-key functional read. Unlike a plain read, the
// function runs where the entry lives and only its result travels back.
func (i *Interceptor) VisitReadOnlyKey(ctx context.Context, ictx *invocation.Context, cmd *command.ReadOnlyKey) *future.Future[any] {
	if entry := ictx.LookupEntry(cmd.Key); entry != nil {
		if ictx.IsOriginLocal() {
			return i.next.Handle(ctx, ictx, cmd)
		}

		return future.Then(i.next.Handle(ctx, ictx, cmd), func(rv any) (any, error) {
			return i.wrapNonOrigin(rv, ictx.LookupEntry(cmd.Key))
		})
	}

	if !ictx.IsOriginLocal() {
		return i.missingEntryOnRead(cmd)
	}

	if cmd.Flags.LocalOnly() {
		i.entries.WrapExternalEntry(ictx, cmd.Key, nil, false, false)

		return i.next.Handle(ctx, ictx, cmd)
	}

	topo, err := i.CheckTopology(cmd)
	if err != nil {
		return failed(err)
	}

	info := topo.Distribution(cmd.Key)

	err = i.checkNotReadOwner(cmd, topo, info, cmd.Key)
	if err != nil {
		return failed(err)
	}

	remote, _ := cmd.Copy().(*command.ReadOnlyKey)
	remote.TopologyID = topo.ID()

	fut, err := i.rpc.InvokeRemotely(ctx, info.ReadOwners, remote, rpc.Staggered)
	if err != nil {
		return failed(err)
	}

	return future.Then(fut, func(resps rpc.Responses) (any, error) {
		for _, resp := range resps {
			if ok, isSuccess := resp.(rpc.SuccessfulResponse); isSuccess {
				return i.unwrapOnOrigin(ictx, cmd.Key, ok.Value)
			}
		}

		return nil, sentinel.NewOutdatedTopology(topo.ID(), "no read owner answered successfully")
	})
}

// checkNotReadOwner fails a remote read of key when the local node is itself a read owner.
// Within the command's own topology that means the entry was never wrapped; otherwise the
// topology moved on between wrapping and routing.
func (i *Interceptor) checkNotReadOwner(
	cmd command.Command,
	topo *cluster.LocalizedTopology,
	info cluster.DistributionInfo,
	key string,
) error {
	if !info.IsReadOwner() {
		return nil
	}

	if cmd.Meta().TopologyID == topo.ID() {
		return sentinel.NewProtocolError("read owner %s did not wrap key %q", i.rpc.Address(), key)
	}

	return sentinel.NewOutdatedTopology(topo.ID(), "local node became a read owner")
}
