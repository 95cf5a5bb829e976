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

// ReadManyHelper adapts the batch read router to one batch command type.
// Values handed between the router and the helper are aligned with the keys they were produced for.
type ReadManyHelper[C command.MultiKeyed] interface {
	Keys(cmd C) []string
	// CopyForLocal returns the part of cmd the local node answers itself.
	CopyForLocal(cmd C, keys []string) C
	// CopyForRemote returns the command sent to one owner for its share of the keys.
	CopyForRemote(cmd C, keys []string) command.Command
	// UnwrapLocalResult splits the result of a local copy into per-key values.
	UnwrapLocalResult(rv any, keys []string) ([]any, error)
	// UnwrapRemoteResult splits the answer of an owner into per-key values.
	UnwrapRemoteResult(ictx *invocation.Context, keys []string, rv any) ([]any, error)
	// MergeUnderLock reports whether unwrapping must happen in the merge critical section.
	MergeUnderLock() bool
	// WrapResultOnNonOrigin shapes the local result returned to a remote requester.
	WrapResultOnNonOrigin(ictx *invocation.Context, keys []string, rv any) (any, error)
	// TransformResult builds the caller's result from the per-key values.
	TransformResult(values []any) (any, error)
}

// VisitGetAll routes a batch read of entries.
func (i *Interceptor) VisitGetAll(ctx context.Context, ictx *invocation.Context, cmd *command.GetAll) *future.Future[any] {
	return handleReadMany[*command.GetAll](ctx, i, ictx, cmd, i.getAll)
}

// VisitReadOnlyMany routes a batch functional read.
func (i *Interceptor) VisitReadOnlyMany(ctx context.Context, ictx *invocation.Context, cmd *command.ReadOnlyMany) *future.Future[any] {
	return handleReadMany[*command.ReadOnlyMany](ctx, i, ictx, cmd, i.readOnlyMany)
}

type ownerGroup struct {
	owner     cluster.NodeID
	keys      []string
	positions []int
}

func handleReadMany[C command.MultiKeyed](
	ctx context.Context,
	i *Interceptor,
	ictx *invocation.Context,
	cmd C,
	h ReadManyHelper[C],
) *future.Future[any] {
	keys := h.Keys(cmd)

	if cmd.Meta().Flags.LocalOnly() {
		for _, key := range keys {
			if ictx.LookupEntry(key) != nil {
				continue
			}

			if !ictx.IsOriginLocal() {
				return i.missingEntryOnRead(cmd)
			}

			i.entries.WrapExternalEntry(ictx, key, nil, false, false)
		}

		return i.next.Handle(ctx, ictx, cmd)
	}

	if !ictx.IsOriginLocal() {
		for _, key := range keys {
			if ictx.LookupEntry(key) == nil {
				return i.missingEntryOnRead(cmd)
			}
		}

		return future.Then(i.next.Handle(ctx, ictx, cmd), func(rv any) (any, error) {
			if command.IsUnsuccessful(rv) {
				return rv, nil
			}

			return h.WrapResultOnNonOrigin(ictx, keys, rv)
		})
	}

	topo, err := i.CheckTopology(cmd)
	if err != nil {
		return failed(err)
	}

	if len(keys) == 0 {
		f := future.New[any]()
		f.Resolve(h.TransformResult(nil))

		return f
	}

	local, localPositions, groups, err := i.keysByOwner(ictx, keys, topo)
	if err != nil {
		return failed(err)
	}

	if len(groups) == 0 {
		return i.next.Handle(ctx, ictx, cmd)
	}

	participants := len(groups)
	if len(local) > 0 {
		participants++
	}

	mf := future.NewMerging[any](participants, len(keys), h.TransformResult)

	contribute := func(positions []int, unwrap func() ([]any, error)) {
		if h.MergeUnderLock() {
			mf.Merge(func(results []any) error {
				values, err := unwrap()
				if err != nil {
					return err
				}

				for j, pos := range positions {
					results[pos] = values[j]
				}

				return nil
			})

			return
		}

		values, err := unwrap()
		if err == nil {
			err = mf.Scatter(positions, values)
		}

		if err != nil {
			mf.Fail(err)

			return
		}

		mf.CountDown()
	}

	if len(local) > 0 {
		i.next.Handle(ctx, ictx, h.CopyForLocal(cmd, local)).WhenComplete(func(rv any, err error) {
			if err != nil {
				mf.Fail(err)

				return
			}

			contribute(localPositions, func() ([]any, error) {
				return h.UnwrapLocalResult(rv, local)
			})
		})
	}

	for _, g := range groups {
		remote := h.CopyForRemote(cmd, g.keys)
		remote.Meta().TopologyID = topo.ID()

		i.logger.Trace("fetching batch share", "owner", g.owner, "keys", len(g.keys), "topology", topo.ID())

		fut, err := i.rpc.InvokeRemotely(ctx, []cluster.NodeID{g.owner}, remote, rpc.Synchronous)
		if err != nil {
			mf.Fail(err)

			break
		}

		fut.WhenComplete(func(resps rpc.Responses, err error) {
			if err != nil {
				mf.Fail(err)

				return
			}

			rv, err := singleSuccessfulResponse(topo.ID(), resps)
			if err != nil {
				mf.Fail(err)

				return
			}

			contribute(g.positions, func() ([]any, error) {
				return h.UnwrapRemoteResult(ictx, g.keys, rv)
			})
		})
	}

	return mf.Future
}

// keysByOwner splits keys between the local node and remote read owners. Keys already in
// ictx stay local; every other key goes to an owner that already has a share when one of
// its read owners does, otherwise to its primary. Positions refer to the index in keys.
func (i *Interceptor) keysByOwner(
	ictx *invocation.Context,
	keys []string,
	topo *cluster.LocalizedTopology,
) ([]string, []int, []*ownerGroup, error) {
	var (
		local          []string
		localPositions []int
		groups         []*ownerGroup
	)

	byOwner := make(map[cluster.NodeID]*ownerGroup)
	self := i.rpc.Address()

	for pos, key := range keys {
		if ictx.LookupEntry(key) != nil {
			local = append(local, key)
			localPositions = append(localPositions, pos)

			continue
		}

		info := topo.Distribution(key)

		var target *ownerGroup

		for _, owner := range info.ReadOwners {
			if owner == self {
				return nil, nil, nil, sentinel.NewProtocolError("key %q should have been wrapped on read owner %s", key, self)
			}

			if g, ok := byOwner[owner]; ok {
				target = g

				break
			}
		}

		if target == nil {
			target = &ownerGroup{owner: info.Primary}
			byOwner[info.Primary] = target
			groups = append(groups, target)
		}

		target.keys = append(target.keys, key)
		target.positions = append(target.positions, pos)
	}

	return local, localPositions, groups, nil
}

// singleSuccessfulResponse extracts the value of a call sent to exactly one owner.
func singleSuccessfulResponse(topologyID int, resps rpc.Responses) (any, error) {
	switch {
	case len(resps) == 0:
		return nil, sentinel.NewProtocolError("expected one response, got none")
	case len(resps) > 1:
		return nil, sentinel.NewProtocolError("expected one response, got %d", len(resps))
	}

	for node, resp := range resps {
		if !resp.IsSuccessful() {
			return nil, sentinel.NewOutdatedTopology(topologyID, "owner "+string(node)+" answered unsuccessfully")
		}

		ok, isSuccess := resp.(rpc.SuccessfulResponse)
		if !isSuccess {
			return nil, sentinel.NewProtocolError("unexpected response type %T from %s", resp, node)
		}

		return ok.Value, nil
	}

	return nil, nil
}
