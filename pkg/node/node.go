// Package node assembles a grid node.
//
// A node owns a local container and runs every operation through a pipeline of
// stages: entry wrapping loads the keys the node owns into the invocation
// context, the distribution stage routes the operation between owners, and the
// call stage executes it against the context and commits the changes. Operations
// started on this node are re-routed when the topology changed underneath them.
package node

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/config"
	"github.com/hyp3rd/hypergrid/internal/constants"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/container"
	"github.com/hyp3rd/hypergrid/pkg/distribution"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/persistence"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

// Node is one member of a grid.
type Node struct {
	id         cluster.NodeID
	addr       string
	membership *cluster.Membership
	container  *container.Container
	dispatcher *rpc.Dispatcher
	rpc        rpc.Manager
	dist       *distribution.Interceptor
	pipeline   invocation.Handler
	logger     hclog.Logger

	replicated    bool
	sync          bool
	remoteTimeout time.Duration
	staggerDelay  time.Duration
	maxRetries    int

	loader persistence.Loader
	writer persistence.Writer

	metrics *metrics
	latency *latencyCollector
	running atomic.Bool
}

// New builds a node that routes against membership and reaches peers through transport.
// The node is not serving until Start is called.
func New(id cluster.NodeID, membership *cluster.Membership, transport rpc.Transport, opts ...Option) (*Node, error) {
	if id == "" {
		return nil, sentinel.ErrParamCannotBeEmpty
	}

	if membership == nil {
		return nil, sentinel.ErrNoMembers
	}

	n := &Node{
		id:            id,
		addr:          string(id),
		membership:    membership,
		container:     container.New(),
		logger:        hclog.NewNullLogger(),
		sync:          true,
		remoteTimeout: constants.DefaultRemoteTimeout,
		staggerDelay:  constants.DefaultStaggerDelay,
		maxRetries:    constants.DefaultMaxRetries,
		metrics:       &metrics{},
		latency:       newLatencyCollector(),
	}

	for _, opt := range opts {
		opt(n)
	}

	n.logger = n.logger.Named(string(id))

	n.dispatcher = rpc.NewDispatcher(id, n.members, transport,
		rpc.WithTimeout(n.remoteTimeout),
		rpc.WithStaggerDelay(n.staggerDelay),
		rpc.WithLogger(n.logger.Named("rpc")),
	)
	n.rpc = &countingManager{Manager: n.dispatcher, node: n}

	n.dist = distribution.New(n, n.rpc, &callStage{node: n},
		distribution.WithLogger(n.logger.Named("distribution")),
		distribution.WithReplicated(n.replicated),
		distribution.WithSynchronous(n.sync),
		distribution.WithRemoteValueListener(n.metrics),
	)
	n.pipeline = &wrapStage{node: n, next: n.dist}

	return n, nil
}

// NewFromConfig builds a node from cfg. The membership ring follows the configured
// replication, or spans every member in replicated mode.
func NewFromConfig(cfg config.Config, transport rpc.Transport, opts ...Option) (*Node, *cluster.Membership, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}

	replication := cfg.Replication
	if cfg.Replicated() {
		replication = math.MaxInt32
	}

	membership := cluster.NewMembership(cluster.WithRingOptions(
		cluster.WithReplication(replication),
		cluster.WithVirtualNodes(cfg.VirtualNodes),
	))

	base := []Option{
		WithAddress(cfg.AdvertiseAddr),
		WithReplicated(cfg.Replicated()),
		WithSynchronous(cfg.Sync),
		WithRemoteTimeout(cfg.RemoteTimeout),
		WithStaggerDelay(cfg.StaggerDelay),
		WithMaxRetries(cfg.MaxRetries),
	}

	n, err := New(cluster.NodeID(cfg.NodeID), membership, transport, append(base, opts...)...)
	if err != nil {
		return nil, nil, err
	}

	return n, membership, nil
}

// ID returns the node id.
func (n *Node) ID() cluster.NodeID { return n.id }

// Address returns the advertised address.
func (n *Node) Address() string { return n.addr }

// Container exposes the local data container.
func (n *Node) Container() *container.Container { return n.container }

// Membership returns the membership the node routes against.
func (n *Node) Membership() *cluster.Membership { return n.membership }

// CacheTopology implements distribution.TopologyProvider.
func (n *Node) CacheTopology() *cluster.LocalizedTopology {
	return n.membership.Topology().Localize(n.id)
}

// StateTransferTopologyID implements distribution.TopologyProvider. Entries are never
// moved between nodes, so the local data is always installed for the current topology.
func (n *Node) StateTransferTopologyID() int { return n.membership.Topology().ID() }

// Members lists every member the node knows about, including the ones marked dead.
func (n *Node) Members() []cluster.Member { return n.membership.Members() }

func (n *Node) members() []cluster.NodeID { return n.membership.Topology().Members() }

// Start joins the membership and begins serving commands.
func (n *Node) Start(_ context.Context) error {
	if _, ok := n.membership.Lookup(n.id); !ok {
		member := cluster.NewMember(n.id, n.addr)

		err := member.Validate()
		if err != nil {
			return err
		}

		n.membership.Upsert(member)
	}

	n.running.Store(true)
	n.logger.Info("node started", "address", n.addr, "topology", n.membership.Topology().ID())

	return nil
}

// Stop leaves the membership. Commands received afterwards are answered as cache-not-found.
func (n *Node) Stop(_ context.Context) error {
	if !n.running.Swap(false) {
		return nil
	}

	n.membership.Remove(n.id)
	n.logger.Info("node stopped")

	return nil
}

// Running reports whether the node serves commands.
func (n *Node) Running() bool { return n.running.Load() }

// Execute runs cmd as an operation started on this node and waits for its result.
// An operation that hit a topology change is re-routed, up to the configured retries.
func (n *Node) Execute(ctx context.Context, cmd command.Command) (any, error) {
	if !n.running.Load() {
		return nil, sentinel.ErrCacheNotRunning
	}

	for attempt := 0; ; attempt++ {
		cmd.Meta().TopologyID = n.membership.Topology().ID()

		v, err := n.pipeline.Handle(ctx, invocation.NewLocal(), cmd).Await(ctx)
		if err == nil || !sentinel.IsOutdatedTopology(err) || attempt >= n.maxRetries {
			return v, err
		}

		n.metrics.outdatedRetries.Add(1)
		n.logger.Debug("re-routing after topology change", "kind", cmd.Kind(), "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, sentinel.ErrTimeoutOrCanceled
		case <-time.After(n.staggerDelay):
		}
	}
}

// HandleRemote implements rpc.Handler.
func (n *Node) HandleRemote(ctx context.Context, origin cluster.NodeID, cmd command.Command) *future.Future[rpc.Response] {
	if !n.running.Load() {
		return future.Completed[rpc.Response](rpc.CacheNotFoundResponse{})
	}

	ictx := invocation.NewRemote(origin)

	var result *future.Future[any]

	switch c := cmd.(type) {
	case *command.ClusteredGet:
		get := &command.GetKeyValue{Header: c.Header, Key: c.Key}
		result = future.Then(n.pipeline.Handle(ctx, ictx, get), func(rv any) (any, error) {
			if command.IsUnsuccessful(rv) {
				return rv, nil
			}

			return remoteValueOf(ictx, c.Key), nil
		})
	case *command.ClusteredGetAll:
		result = n.pipeline.Handle(ctx, ictx, &command.GetAll{Header: c.Header, Keys: c.Keys})
	default:
		result = n.pipeline.Handle(ctx, ictx, cmd)
	}

	return future.Handle(result, func(rv any, err error) (rpc.Response, error) {
		switch {
		case err != nil:
			n.logger.Debug("remote command failed", "kind", cmd.Kind(), "origin", origin, "error", err)

			return rpc.ExceptionResponse{Err: err}, nil
		case command.IsUnsuccessful(rv):
			return rpc.UnsuccessfulResponse{}, nil
		}

		return rpc.SuccessfulResponse{Value: rv}, nil
	})
}

func remoteValueOf(ictx *invocation.Context, key string) *command.RemoteValue {
	e := ictx.LookupEntry(key)
	if e == nil || !e.Found() {
		return nil
	}

	return &command.RemoteValue{Key: key, Value: e.Value, Version: e.Version}
}
