package distribution

import (
	"context"
	"fmt"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

// VisitWrite routes a single-key write.
//
// The primary owner applies every write first and replicates it to the other write
// owners. Any other originator forwards the write to the primary. Once a write has
// been sent anywhere, its matcher is relaxed to the retry variant: a re-run after a
// topology change must accept the value the first attempt may already have stored.
func (i *Interceptor) VisitWrite(ctx context.Context, ictx *invocation.Context, cmd command.DataWrite) *future.Future[any] {
	w := cmd.WriteState()

	if w.Flags.Has(command.CacheModeLocal) {
		if ictx.LookupEntry(w.Key) == nil {
			i.entries.WrapExternalEntry(ictx, w.Key, nil, false, true)
		}

		return i.next.Handle(ctx, ictx, cmd)
	}

	topo, err := i.CheckTopology(cmd)
	if err != nil {
		return failed(err)
	}

	info := topo.Distribution(w.Key)

	if ictx.LookupEntry(w.Key) == nil {
		switch {
		case info.IsPrimary():
			return failed(sentinel.NewProtocolError("primary owner %s did not wrap key %q", info.Primary, w.Key))
		case ictx.IsOriginLocal():
			return i.forwardToPrimary(ctx, cmd, info)
		case i.shouldLoad(ictx, w, info):
			return future.Compose(i.remoteGet(ctx, ictx, cmd, w.Key, true), func(struct{}) *future.Future[any] {
				return i.next.Handle(ctx, ictx, cmd)
			})
		}

		i.entries.WrapExternalEntry(ictx, w.Key, nil, false, true)

		return i.next.Handle(ctx, ictx, cmd)
	}

	switch {
	case info.IsPrimary():
		return future.Compose(i.next.Handle(ctx, ictx, cmd), func(rv any) *future.Future[any] {
			return i.replicateFromPrimary(ctx, ictx, cmd, rv)
		})
	case ictx.IsOriginLocal():
		return i.forwardToPrimary(ctx, cmd, info)
	}

	return i.next.Handle(ctx, ictx, cmd)
}

// shouldLoad reports whether a write owner without the entry must fetch it before applying w.
func (*Interceptor) shouldLoad(ictx *invocation.Context, w *command.Write, info cluster.DistributionInfo) bool {
	if w.Flags.Has(command.SkipRemoteLookup) {
		return false
	}

	switch w.Load {
	case command.Owner:
		return info.IsPrimary() || (info.IsWriteOwner() && !ictx.IsOriginLocal())
	case command.Primary:
		return info.IsPrimary()
	case command.DontLoad:
	}

	return false
}

// forwardToPrimary sends cmd to the primary owner and relays its answer.
func (i *Interceptor) forwardToPrimary(ctx context.Context, cmd command.DataWrite, info cluster.DistributionInfo) *future.Future[any] {
	w := cmd.WriteState()
	sync := i.isSynchronous(cmd) || cmd.ReturnValueExpected()

	mode := rpc.Asynchronous
	if sync {
		mode = rpc.Synchronous
	}

	primary := info.Primary

	i.logger.Trace("forwarding write to primary", "key", w.Key, "kind", cmd.Kind(), "primary", primary, "mode", mode.String())

	fut, err := i.rpc.InvokeRemotely(ctx, []cluster.NodeID{primary}, cmd, mode)
	if err != nil {
		w.Matcher = w.Matcher.ForRetry()

		return failed(err)
	}

	if !sync {
		w.Matcher = w.Matcher.ForRetry()

		return future.Completed[any](nil)
	}

	return future.Handle(fut, func(resps rpc.Responses, err error) (any, error) {
		w.Matcher = w.Matcher.ForRetry()

		if err != nil {
			return nil, err
		}

		rv, err := responseFromPrimary(w.TopologyID, primary, resps)
		if err != nil {
			return nil, err
		}

		cmd.UpdateStatusFromRemote(rv)

		return rv, nil
	})
}

// responseFromPrimary extracts the value the primary answered with.
// A primary that left or stopped its cache means the topology is about to change.
func responseFromPrimary(topologyID int, primary cluster.NodeID, resps rpc.Responses) (any, error) {
	resp, ok := resps[primary]
	if !ok {
		return nil, nil
	}

	switch r := resp.(type) {
	case rpc.SuccessfulResponse:
		return r.Value, nil
	case rpc.CacheNotFoundResponse:
		return nil, sentinel.NewOutdatedTopology(topologyID, fmt.Sprintf("primary owner %s is not running the cache", primary))
	case rpc.ExceptionResponse:
		return nil, &sentinel.RemoteError{Node: string(primary), Cause: r.Err}
	case rpc.UnsuccessfulResponse:
		return nil, ewrap.Wrapf(sentinel.ErrUnsuccessfulResponse, "primary owner %s", primary)
	}

	return nil, sentinel.NewProtocolError("primary owner %s answered with %T", primary, resp)
}

// replicateFromPrimary sends the outcome of a write the primary applied to the other
// write owners. The primary's local result is returned once the backups acknowledged it.
func (i *Interceptor) replicateFromPrimary(
	ctx context.Context,
	ictx *invocation.Context,
	cmd command.DataWrite,
	localResult any,
) *future.Future[any] {
	w := cmd.WriteState()
	if !w.Successful {
		return future.Completed(localResult)
	}

	topo, err := i.CheckTopology(cmd)
	if err != nil {
		return failed(err)
	}

	info := topo.Distribution(w.Key)
	if len(info.WriteOwners) == 1 {
		return future.Completed(localResult)
	}

	var recipients []cluster.NodeID
	if !i.replicated {
		recipients = info.WriteOwners
	}

	// backups apply the primary's outcome, they never re-evaluate the condition
	backup := cmd.BackupWrite()

	mode := rpc.Asynchronous

	if i.isSynchronous(cmd) {
		mode = rpc.Synchronous
		if recipients == nil {
			mode = rpc.SynchronousIgnoreLeavers
		}
	}

	i.logger.Trace("replicating write", "key", w.Key, "kind", backup.WriteKind, "recipients", recipients,
		"mode", mode.String(), "origin", ictx.Origin())

	fut, err := i.rpc.InvokeRemotely(ctx, recipients, backup, mode)
	if err != nil {
		w.Matcher = w.Matcher.ForRetry()

		return failed(sentinel.UnwrapRemote(err))
	}

	if mode == rpc.Asynchronous {
		w.Matcher = w.Matcher.ForRetry()

		return future.Completed(localResult)
	}

	return future.Handle(fut, func(_ rpc.Responses, err error) (any, error) {
		w.Matcher = w.Matcher.ForRetry()

		if err != nil {
			return nil, sentinel.UnwrapRemote(err)
		}

		return localResult, nil
	})
}
