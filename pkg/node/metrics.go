package node

import (
	"context"
	"sync/atomic"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

type metrics struct {
	forwardedWrites  atomic.Int64
	replicaFanout    atomic.Int64
	remoteGets       atomic.Int64
	remoteGetMisses  atomic.Int64
	remoteFunctional atomic.Int64
	batchCalls       atomic.Int64
	groupFetches     atomic.Int64
	clearBroadcasts  atomic.Int64
	outdatedRetries  atomic.Int64
	storeLoads       atomic.Int64
}

// Metrics is a snapshot of the routing counters of a node.
type Metrics struct {
	ForwardedWrites  int64 `json:"forwarded_writes"`
	ReplicaFanout    int64 `json:"replica_fanout"`
	RemoteGets       int64 `json:"remote_gets"`
	RemoteGetMisses  int64 `json:"remote_get_misses"`
	RemoteFunctional int64 `json:"remote_functional"`
	BatchCalls       int64 `json:"batch_calls"`
	GroupFetches     int64 `json:"group_fetches"`
	ClearBroadcasts  int64 `json:"clear_broadcasts"`
	OutdatedRetries  int64 `json:"outdated_retries"`
	StoreLoads       int64 `json:"store_loads"`

	Latency map[string][]uint64 `json:"latency"`
}

// RemoteValueFound implements distribution.RemoteValueListener.
func (m *metrics) RemoteValueFound(*command.RemoteValue) { m.remoteGets.Add(1) }

// RemoteValueNotFound implements distribution.RemoteValueListener.
func (m *metrics) RemoteValueNotFound(string) {
	m.remoteGets.Add(1)
	m.remoteGetMisses.Add(1)
}

// Metrics returns a snapshot of the node counters and latency histograms.
func (n *Node) Metrics() Metrics {
	return Metrics{
		ForwardedWrites:  n.metrics.forwardedWrites.Load(),
		ReplicaFanout:    n.metrics.replicaFanout.Load(),
		RemoteGets:       n.metrics.remoteGets.Load(),
		RemoteGetMisses:  n.metrics.remoteGetMisses.Load(),
		RemoteFunctional: n.metrics.remoteFunctional.Load(),
		BatchCalls:       n.metrics.batchCalls.Load(),
		GroupFetches:     n.metrics.groupFetches.Load(),
		ClearBroadcasts:  n.metrics.clearBroadcasts.Load(),
		OutdatedRetries:  n.metrics.outdatedRetries.Load(),
		StoreLoads:       n.metrics.storeLoads.Load(),
		Latency:          n.latency.snapshot(),
	}
}

// countingManager counts the remote calls the distribution stage issues.
type countingManager struct {
	rpc.Manager

	node *Node
}

func (c *countingManager) InvokeRemotely(
	ctx context.Context,
	targets []cluster.NodeID,
	cmd command.Command,
	mode rpc.Mode,
) (*future.Future[rpc.Responses], error) {
	m := c.node.metrics

	switch typed := cmd.(type) {
	case command.DataWrite:
		if c.node.CacheTopology().Distribution(typed.RoutingKey()).IsPrimary() {
			recipients := targets
			if recipients == nil {
				recipients = c.Members()
			}

			for _, id := range recipients {
				if id != c.node.id {
					m.replicaFanout.Add(1)
				}
			}
		} else {
			m.forwardedWrites.Add(1)
		}
	case *command.ReadOnlyKey, *command.ReadOnlyMany:
		m.remoteFunctional.Add(1)
	case *command.ClusteredGetAll:
		m.batchCalls.Add(1)
	case *command.GetKeysInGroup:
		m.groupFetches.Add(1)
	case *command.Clear:
		m.clearBroadcasts.Add(1)
	}

	return c.Manager.InvokeRemotely(ctx, targets, cmd, mode)
}
