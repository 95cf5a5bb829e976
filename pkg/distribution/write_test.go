package distribution

import (
	"errors"
	"testing"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

func ackAll(call rpcCall) (rpc.Responses, error) {
	resps := rpc.Responses{}
	for _, target := range call.targets {
		resps[target] = rpc.SuccessfulResponse{}
	}

	return resps, nil
}

func TestPrimaryWriteReplicatesToWriteOwners(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })
	info := topo.topo.Distribution(key)

	manager := &scriptedRPC{self: "A", reply: ackAll}
	next := &localExecutor{}
	i := New(topo, manager, next)

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NullEntry(key))

	cmd := command.NewPutIfAbsent(key, "v")

	v, err := await(t, i.Handle(t.Context(), ictx, cmd))
	assert.NoError(t, err)
	assert.Equal(t, command.WriteResult{Successful: true}, v)
	assert.Equal(t, 1, next.count())

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.Equal(t, info.WriteOwners, calls[0].targets)
	assert.Equal(t, rpc.Synchronous, calls[0].mode)

	sent, ok := calls[0].cmd.(*command.Write)
	assert.True(t, ok)
	assert.Equal(t, command.MatchAlways, sent.Matcher)
	assert.Equal(t, command.MatchExpectedOrNew, cmd.Matcher)
}

func TestReplicatedModeBroadcasts(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })

	manager := &scriptedRPC{self: "A", reply: ackAll}
	i := New(topo, manager, &localExecutor{}, WithReplicated(true))

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NullEntry(key))

	_, err := await(t, i.Handle(t.Context(), ictx, command.NewPut(key, "v")))
	assert.NoError(t, err)

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.True(t, calls[0].targets == nil)
	assert.Equal(t, rpc.SynchronousIgnoreLeavers, calls[0].mode)
}

func TestAsynchronousReplicationDoesNotWait(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })

	manager := &scriptedRPC{self: "A", reply: func(rpcCall) (rpc.Responses, error) {
		return nil, errors.New("never awaited")
	}}
	i := New(topo, manager, &localExecutor{}, WithSynchronous(false))

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NullEntry(key))

	_, err := await(t, i.Handle(t.Context(), ictx, command.NewPut(key, "v")))
	assert.NoError(t, err)
	assert.Equal(t, rpc.Asynchronous, manager.recorded()[0].mode)
}

func TestUnsuccessfulWriteIsNotReplicated(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })

	manager := &scriptedRPC{self: "A", reply: ackAll}
	i := New(topo, manager, &localExecutor{})

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NewEntry(key, "old", 1))

	cmd := command.NewPutIfAbsent(key, "v")
	cmd.Successful = false

	_, err := await(t, i.Handle(t.Context(), ictx, cmd))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(manager.recorded()))
}

func TestWriteFromNonOwnerForwardsToPrimary(t *testing.T) {
	topo := newTopology(1, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })
	info := topo.topo.Distribution(key)

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.SuccessfulResponse{
			Value: command.WriteResult{Previous: "old", Successful: false},
		}}, nil
	}}
	next := &localExecutor{}
	i := New(topo, manager, next)

	cmd := command.NewReplaceIfEquals(key, "expected", "v")

	v, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), cmd))
	assert.NoError(t, err)
	assert.Equal(t, command.WriteResult{Previous: "old", Successful: false}, v)
	assert.False(t, cmd.Successful)
	assert.Equal(t, command.MatchExpectedOrNew, cmd.Matcher)
	assert.Equal(t, 0, next.count())

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.Equal(t, []cluster.NodeID{info.Primary}, calls[0].targets)
	assert.Equal(t, rpc.Synchronous, calls[0].mode)

	sent, _ := calls[0].cmd.(*command.Write)
	assert.Equal(t, command.MatchExpected, sent.Matcher)
}

func TestForwardFailureRelaxesMatcher(t *testing.T) {
	topo := newTopology(1, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })

	boom := errors.New("connection reset")
	manager := &scriptedRPC{self: "C", reply: func(rpcCall) (rpc.Responses, error) { return nil, boom }}
	i := New(topo, manager, &localExecutor{})

	cmd := command.NewPutIfAbsent(key, "v")

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), cmd))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, command.MatchExpectedOrNew, cmd.Matcher)
}

func TestPrimaryWithoutCacheIsOutdated(t *testing.T) {
	topo := newTopology(4, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.CacheNotFoundResponse{}}, nil
	}}
	i := New(topo, manager, &localExecutor{})

	cmd := command.NewPut(key, "v")
	cmd.TopologyID = 4

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), cmd))

	var outdated *sentinel.OutdatedTopologyError
	assert.True(t, errors.As(err, &outdated))
	assert.Equal(t, 4, outdated.TopologyID)
}

func TestPrimaryUnsuccessfulResponse(t *testing.T) {
	topo := newTopology(4, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.UnsuccessfulResponse{}}, nil
	}}
	i := New(topo, manager, &localExecutor{})

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), command.NewPut(key, "v")))
	assert.True(t, errors.Is(err, sentinel.ErrUnsuccessfulResponse))
}

func TestPrimaryExceptionKeepsCause(t *testing.T) {
	topo := newTopology(4, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })
	primary := topo.topo.Distribution(key).Primary

	cause := errors.New("store unavailable")
	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.ExceptionResponse{Err: cause}}, nil
	}}
	i := New(topo, manager, &localExecutor{})

	cmd := command.NewPutIfAbsent(key, "v")

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), cmd))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, sentinel.ErrUnsuccessfulResponse))

	var remoteErr *sentinel.RemoteError

	assert.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, string(primary), remoteErr.Node)
	assert.Equal(t, command.MatchExpectedOrNew, cmd.Matcher)
}

func TestPrimaryUnexpectedResponseIsProtocolError(t *testing.T) {
	topo := newTopology(4, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: nil}, nil
	}}
	i := New(topo, manager, &localExecutor{})

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), command.NewPut(key, "v")))
	assert.True(t, errors.Is(err, sentinel.ErrProtocolViolation))
}

func TestBackupOutdatedDuringReplication(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })
	backup := topo.topo.Distribution(key).WriteOwners[1]

	manager := &scriptedRPC{self: "A", reply: func(rpcCall) (rpc.Responses, error) {
		return nil, &sentinel.RemoteError{Node: string(backup), Cause: sentinel.NewOutdatedTopology(2, "backup moved on")}
	}}
	i := New(topo, manager, &localExecutor{})

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NullEntry(key))

	cmd := command.NewPutIfAbsent(key, "v")

	_, err := await(t, i.Handle(t.Context(), ictx, cmd))

	var remoteErr *sentinel.RemoteError

	assert.False(t, errors.As(err, &remoteErr))
	assert.True(t, sentinel.IsOutdatedTopology(err))
	assert.Equal(t, command.MatchExpectedOrNew, cmd.Matcher)
}

func TestMatcherRelaxedOnceReplicationCompletes(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })

	sent := make(chan struct{})
	release := make(chan struct{})
	manager := &scriptedRPC{self: "A", reply: func(call rpcCall) (rpc.Responses, error) {
		close(sent)
		<-release

		return ackAll(call)
	}}
	i := New(topo, manager, &localExecutor{})

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NullEntry(key))

	cmd := command.NewPutIfAbsent(key, "v")
	fut := i.Handle(t.Context(), ictx, cmd)

	<-sent
	assert.Equal(t, command.MatchExpected, cmd.Matcher)

	close(release)

	_, err := await(t, fut)
	assert.NoError(t, err)
	assert.Equal(t, command.MatchExpectedOrNew, cmd.Matcher)

	replica, ok := manager.recorded()[0].cmd.(*command.Write)
	assert.True(t, ok)
	assert.Equal(t, command.MatchAlways, replica.Matcher)
}

func TestReadWriteKeyForwardedToPrimary(t *testing.T) {
	topo := newTopology(2, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })
	primary := topo.topo.Distribution(key).Primary

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.SuccessfulResponse{Value: command.ReadWriteResult{Result: int64(5), Successful: true}}}, nil
	}}
	next := &localExecutor{}
	i := New(topo, manager, next, WithSynchronous(false))

	cmd := command.NewReadWriteKey(key, command.FuncIncrement, int64(5))

	v, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), cmd))
	assert.NoError(t, err)
	assert.Equal(t, command.ReadWriteResult{Result: int64(5), Successful: true}, v)
	assert.Equal(t, 0, next.count())

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.Equal(t, []cluster.NodeID{primary}, calls[0].targets)
	// the caller waits for the function result even when writes are asynchronous
	assert.Equal(t, rpc.Synchronous, calls[0].mode)

	sent, ok := calls[0].cmd.(*command.ReadWriteKey)
	assert.True(t, ok)
	assert.Equal(t, command.FuncIncrement, sent.Function)
	assert.Equal(t, int64(5), sent.Arg)
}

func TestReadWriteKeyReplicatesOutcome(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })
	info := topo.topo.Distribution(key)

	manager := &scriptedRPC{self: "A", reply: ackAll}
	next := &localExecutor{}
	i := New(topo, manager, next)

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NewEntry(key, int64(41), 3))

	v, err := await(t, i.Handle(t.Context(), ictx, command.NewReadWriteKey(key, command.FuncIncrement, nil)))
	assert.NoError(t, err)
	assert.Equal(t, command.ReadWriteResult{Result: int64(42), Successful: true}, v)
	assert.Equal(t, int64(42), ictx.LookupEntry(key).Value)

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.Equal(t, info.WriteOwners, calls[0].targets)

	// backups store the computed value instead of running the function again
	backup, ok := calls[0].cmd.(*command.Write)
	assert.True(t, ok)
	assert.Equal(t, command.Put, backup.WriteKind)
	assert.Equal(t, int64(42), backup.Value)
	assert.Equal(t, command.MatchAlways, backup.Matcher)
	assert.Equal(t, command.KindWrite, backup.Kind())
}

func TestReadWriteKeyMatchNeverIsNotReplicated(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })

	manager := &scriptedRPC{self: "A", reply: ackAll}
	i := New(topo, manager, &localExecutor{})

	ictx := invocation.NewLocal()
	ictx.PutEntry(key, invocation.NewEntry(key, int64(7), 1))

	cmd := command.NewReadWriteKey(key, command.FuncIncrement, nil)
	cmd.Matcher = command.MatchNever

	v, err := await(t, i.Handle(t.Context(), ictx, cmd))
	assert.NoError(t, err)
	assert.Equal(t, command.ReadWriteResult{}, v)
	assert.False(t, cmd.Successful)
	assert.Equal(t, int64(7), ictx.LookupEntry(key).Value)
	assert.Equal(t, 0, len(manager.recorded()))
	assert.Equal(t, command.MatchNever, cmd.Matcher)
}

func TestMissingEntryOnPrimaryIsProtocolError(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsPrimary() })

	manager := &scriptedRPC{self: "A"}
	i := New(topo, manager, &localExecutor{})

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), command.NewPut(key, "v")))
	assert.True(t, errors.Is(err, sentinel.ErrProtocolViolation))
	assert.Equal(t, 0, len(manager.recorded()))
}

func TestBackupAppliesForwardedWrite(t *testing.T) {
	topo := newTopology(1, "B", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsWriteOwner() && !d.IsPrimary() })

	manager := &scriptedRPC{self: "B"}
	next := &localExecutor{}
	i := New(topo, manager, next)

	ictx := invocation.NewRemote("A")
	ictx.PutEntry(key, invocation.NullEntry(key))

	cmd := command.NewPut(key, "v")
	cmd.Matcher = command.MatchAlways

	_, err := await(t, i.Handle(t.Context(), ictx, cmd))
	assert.NoError(t, err)
	assert.Equal(t, 1, next.count())
	assert.Equal(t, "v", ictx.LookupEntry(key).Value)
	assert.Equal(t, 0, len(manager.recorded()))
}

func TestPendingOwnerLoadsEntryBeforeWrite(t *testing.T) {
	m := cluster.NewMembership(cluster.WithRingOptions(cluster.WithReplication(1)))
	m.Upsert(cluster.NewMember("A", "a:1"))
	m.Upsert(cluster.NewMember("B", "b:1"))
	rebalancing := m.BeginRebalance(cluster.NewMember("C", "c:1"))

	topo := &staticTopology{topo: rebalancing.Localize("C"), stateTransfer: rebalancing.ID()}
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsWriteOwner() && !d.IsReadOwner() })

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.SuccessfulResponse{Value: &command.RemoteValue{Key: key, Value: "old", Version: 2}}}, nil
	}}
	next := &localExecutor{}
	i := New(topo, manager, next)
	ictx := invocation.NewRemote("A")

	v, err := await(t, i.Handle(t.Context(), ictx, command.NewPut(key, "v")))
	assert.NoError(t, err)
	assert.Equal(t, command.WriteResult{Previous: "old", Successful: true}, v)

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.Equal(t, rpc.Staggered, calls[0].mode)

	get, _ := calls[0].cmd.(*command.ClusteredGet)
	assert.True(t, get.Write)
	assert.True(t, ictx.LookupEntry(key).ForWrite)
}

func TestWriteOwnerWithoutEntryIsProtocolError(t *testing.T) {
	topo := newTopology(1, "B", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return d.IsWriteOwner() && !d.IsPrimary() })

	manager := &scriptedRPC{self: "B"}
	i := New(topo, manager, &localExecutor{})

	cmd := command.NewPut(key, "v")
	cmd.TopologyID = 1

	_, err := await(t, i.Handle(t.Context(), invocation.NewRemote("A"), cmd))
	assert.True(t, errors.Is(err, sentinel.ErrProtocolViolation))
}

func TestLocalModeWriteSkipsRouting(t *testing.T) {
	topo := newTopology(1, "C", 2, "A", "B", "C")
	key := keyWhere(t, topo.topo, func(d cluster.DistributionInfo) bool { return !d.IsWriteOwner() })

	manager := &scriptedRPC{self: "C"}
	next := &localExecutor{}
	i := New(topo, manager, next)
	ictx := invocation.NewLocal()

	_, err := await(t, i.Handle(t.Context(), ictx, command.NewPut(key, "v", command.CacheModeLocal)))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(manager.recorded()))
	assert.Equal(t, "v", ictx.LookupEntry(key).Value)
}
