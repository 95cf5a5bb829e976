package node

import (
	"errors"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/config"
	"github.com/hyp3rd/hypergrid/internal/constants"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

func TestLatencyBuckets(t *testing.T) {
	c := newLatencyCollector()

	c.observe(opGet, 10*time.Microsecond)
	c.observe(opGet, 3*time.Millisecond)
	c.observe(opGet, time.Minute)
	c.observe(opClear, time.Millisecond)

	snap := c.snapshot()

	get := snap[opGet.String()]
	assert.Equal(t, len(latencyBuckets)+1, len(get))
	assert.Equal(t, uint64(1), get[0])
	assert.Equal(t, uint64(1), get[6])
	assert.Equal(t, uint64(1), get[len(latencyBuckets)])

	assert.Equal(t, uint64(1), snap[opClear.String()][4])
}

func TestNodeRecordsLatency(t *testing.T) {
	tc := newTestCluster(t, 1, nil)

	n, err := New("solo", tc.membership, tc.transport)
	assert.NoError(t, err)
	assert.NoError(t, n.Start(t.Context()))

	_, err = n.Put(t.Context(), "k", "v")
	assert.NoError(t, err)

	_, _, err = n.Get(t.Context(), "k")
	assert.NoError(t, err)

	var total uint64
	for _, v := range n.Metrics().Latency[opWrite.String()] {
		total += v
	}

	assert.Equal(t, uint64(1), total)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.NodeID = "node-1"
	cfg.AdvertiseAddr = "10.0.0.1:7946"
	cfg.Mode = constants.ModeReplicated

	n, m, err := NewFromConfig(cfg, rpc.NewInProcessTransport())
	assert.NoError(t, err)
	assert.Equal(t, "10.0.0.1:7946", n.Address())
	assert.True(t, m == n.Membership())
	assert.True(t, n.replicated)

	cfg.NodeID = ""
	_, _, err = NewFromConfig(cfg, rpc.NewInProcessTransport())
	assert.True(t, errors.Is(err, sentinel.ErrInvalidConfig))
}

func TestNewRequiresIdentity(t *testing.T) {
	_, err := New("", nil, rpc.NewInProcessTransport())
	assert.True(t, errors.Is(err, sentinel.ErrParamCannotBeEmpty))

	_, err = New("a", nil, rpc.NewInProcessTransport())
	assert.True(t, errors.Is(err, sentinel.ErrNoMembers))
}

func TestStartValidatesMember(t *testing.T) {
	membership := cluster.NewMembership()

	n, err := New("a", membership, rpc.NewInProcessTransport(), WithAddress("10.0.0.1"))
	assert.NoError(t, err)

	err = n.Start(t.Context())
	assert.True(t, errors.Is(err, cluster.ErrInvalidMember))
	assert.False(t, n.Running())
	assert.Equal(t, 0, len(n.Members()))

	ok, err := New("b", membership, rpc.NewInProcessTransport(), WithAddress("10.0.0.2:7946"))
	assert.NoError(t, err)
	assert.NoError(t, ok.Start(t.Context()))

	members := n.Members()
	assert.Equal(t, 1, len(members))
	assert.Equal(t, cluster.NodeID("b"), members[0].ID)
	assert.Equal(t, "10.0.0.2:7946", members[0].Address)
	assert.Equal(t, cluster.MemberAlive, members[0].State)
}
