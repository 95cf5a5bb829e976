package distribution

import (
	"errors"
	"testing"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
)

func TestCheckTopology(t *testing.T) {
	topo := newTopology(6, "A", 2, "A", "B", "C")
	i := New(topo, &scriptedRPC{self: "A"}, &localExecutor{})

	cmd := command.NewGetKeyValue("k")
	got, err := i.CheckTopology(cmd)
	assert.NoError(t, err)
	assert.Equal(t, 6, got.ID())

	cmd.TopologyID = 6
	_, err = i.CheckTopology(cmd)
	assert.NoError(t, err)

	cmd.TopologyID = 5
	_, err = i.CheckTopology(cmd)

	var outdated *sentinel.OutdatedTopologyError
	assert.True(t, errors.As(err, &outdated))
	assert.Equal(t, 6, outdated.TopologyID)
}

func TestMissingEntryOnNonOriginRead(t *testing.T) {
	topo := newTopology(6, "A", 2, "A", "B", "C")
	topo.stateTransfer = 5

	tests := []struct {
		name     string
		topology int
		check    func(t *testing.T, v any, err error)
	}{
		{
			name:     "same topology re-routes",
			topology: 5,
			check: func(t *testing.T, _ any, err error) {
				var outdated *sentinel.OutdatedTopologyError
				assert.True(t, errors.As(err, &outdated))
				assert.Equal(t, 5, outdated.TopologyID)
			},
		},
		{
			name:     "older command is unsuccessful",
			topology: 4,
			check: func(t *testing.T, v any, err error) {
				assert.NoError(t, err)
				assert.True(t, command.IsUnsuccessful(v))
			},
		},
		{
			name:     "newer command is a protocol error",
			topology: 7,
			check: func(t *testing.T, _ any, err error) {
				assert.True(t, errors.Is(err, sentinel.ErrProtocolViolation))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := &scriptedRPC{self: "A"}
			next := &localExecutor{}
			i := New(topo, manager, next)

			cmd := command.NewGetKeyValue("k")
			cmd.TopologyID = tt.topology

			v, err := await(t, i.Handle(t.Context(), invocation.NewRemote(cluster.NodeID("B")), cmd))
			tt.check(t, v, err)
			assert.Equal(t, 0, next.count())
			assert.Equal(t, 0, len(manager.recorded()))
		})
	}
}
