package distribution

import (
	"errors"
	"fmt"
	"testing"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

// foreignGroup returns a group the local node of topo is not primary for.
func foreignGroup(topo *staticTopology) string {
	for n := 0; ; n++ {
		if g := fmt.Sprintf("group-%d", n); !topo.topo.GroupDistribution(g).IsPrimary() {
			return g
		}
	}
}

func TestGroupFetchedFromGroupPrimary(t *testing.T) {
	topo := newTopology(1, "C", 1, "A", "B", "C")
	group := foreignGroup(topo)

	primary := topo.topo.GroupDistribution(group).Primary

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.SuccessfulResponse{Value: []*command.RemoteValue{
			{Key: "{" + group + "}:1", Value: 1, Version: 1},
			{Key: "{" + group + "}:2", Value: 2, Version: 1},
		}}}, nil
	}}
	next := &localExecutor{}
	i := New(topo, manager, next)
	ictx := invocation.NewLocal()

	_, err := await(t, i.Handle(t.Context(), ictx, command.NewGetKeysInGroup(group)))
	assert.NoError(t, err)
	assert.Equal(t, 1, next.count())
	assert.Equal(t, 2, len(ictx.Keys()))

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.Equal(t, []cluster.NodeID{primary}, calls[0].targets)
	assert.Equal(t, rpc.Synchronous, calls[0].mode)
}

func TestGroupOwnerPayloadMustBeEntries(t *testing.T) {
	topo := newTopology(1, "C", 1, "A", "B", "C")
	group := foreignGroup(topo)

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.SuccessfulResponse{Value: map[string]any{"garbage": 1}}}, nil
	}}
	next := &localExecutor{}
	i := New(topo, manager, next)
	ictx := invocation.NewLocal()

	_, err := await(t, i.Handle(t.Context(), ictx, command.NewGetKeysInGroup(group)))
	assert.True(t, errors.Is(err, sentinel.ErrProtocolViolation))
	assert.Equal(t, 0, next.count())
	assert.Equal(t, 0, len(ictx.Keys()))
}

func TestEmptyGroupFromOwner(t *testing.T) {
	topo := newTopology(1, "C", 1, "A", "B", "C")
	group := foreignGroup(topo)

	manager := &scriptedRPC{self: "C", reply: func(call rpcCall) (rpc.Responses, error) {
		return rpc.Responses{call.targets[0]: rpc.SuccessfulResponse{}}, nil
	}}
	next := &localExecutor{}
	i := New(topo, manager, next)

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), command.NewGetKeysInGroup(group)))
	assert.NoError(t, err)
	assert.Equal(t, 1, next.count())
}

func TestGroupOwnerAnswersLocally(t *testing.T) {
	topo := newTopology(1, "A", 1, "A")
	manager := &scriptedRPC{self: "A"}
	next := &localExecutor{}
	i := New(topo, manager, next)

	cmd := command.NewGetKeysInGroup("orders")
	cmd.GroupOwner = true

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), cmd))
	assert.NoError(t, err)
	assert.Equal(t, 0, len(manager.recorded()))
	assert.Equal(t, 1, next.count())
}

func TestClearBroadcastsThenClearsLocally(t *testing.T) {
	topo := newTopology(1, "A", 2, "A", "B", "C")
	manager := &scriptedRPC{self: "A", reply: ackAll}
	next := &localExecutor{}
	i := New(topo, manager, next)

	_, err := await(t, i.Handle(t.Context(), invocation.NewLocal(), command.NewClear()))
	assert.NoError(t, err)
	assert.Equal(t, 1, next.count())

	calls := manager.recorded()
	assert.Equal(t, 1, len(calls))
	assert.True(t, calls[0].targets == nil)
	assert.Equal(t, rpc.SynchronousIgnoreLeavers, calls[0].mode)

	// a clear received from a peer is applied locally only
	_, err = await(t, i.Handle(t.Context(), invocation.NewRemote("B"), command.NewClear()))
	assert.NoError(t, err)
	assert.Equal(t, 1, len(manager.recorded()))
}
