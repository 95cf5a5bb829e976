// Package distribution routes grid commands between the owners of their keys.
//
// The Interceptor sits in a node pipeline between entry wrapping and command
// execution. For every command it decides, against the current topology,
// whether to run locally, forward to the primary owner, fetch missing entries
// from read owners or replicate to backup owners. A command routed against a
// topology that is no longer current fails with an OutdatedTopologyError; the
// Interceptor never retries on its own, that is left to the caller.
//
// Routing never blocks on a remote reply: every entry point returns a future
// that completes once the remote calls it issued, and the rest of the
// pipeline, are done.
package distribution

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

// TopologyProvider exposes the topology the node routes against.
type TopologyProvider interface {
	// CacheTopology is the topology commands are routed against.
	CacheTopology() *cluster.LocalizedTopology
	// StateTransferTopologyID is the topology id the local data was last installed for.
	StateTransferTopologyID() int
}

// RemoteValueListener is told about every entry fetched from another node.
type RemoteValueListener interface {
	RemoteValueFound(rv *command.RemoteValue)
	RemoteValueNotFound(key string)
}

// Interceptor is the distribution stage of a node pipeline.
type Interceptor struct {
	topology   TopologyProvider
	rpc        rpc.Manager
	entries    invocation.EntryFactory
	next       invocation.Handler
	logger     hclog.Logger
	replicated bool
	sync       bool
	listener   RemoteValueListener

	// functional results leaving a non-origin node and arriving on the origin
	wrapNonOrigin  func(rv any, entry *invocation.Entry) (any, error)
	unwrapOnOrigin func(ictx *invocation.Context, key string, rv any) (any, error)

	getAll       *GetAllHelper
	readOnlyMany *ReadOnlyManyHelper
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logger routing decisions are traced to.
func WithLogger(l hclog.Logger) Option {
	return func(i *Interceptor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithReplicated switches to replicated mode: backups are reached by broadcast.
func WithReplicated(replicated bool) Option {
	return func(i *Interceptor) { i.replicated = replicated }
}

// WithSynchronous sets whether writes wait for remote acknowledgements by default.
func WithSynchronous(sync bool) Option {
	return func(i *Interceptor) { i.sync = sync }
}

// WithEntryFactory replaces the factory remote entries are registered with.
func WithEntryFactory(f invocation.EntryFactory) Option {
	return func(i *Interceptor) {
		if f != nil {
			i.entries = f
		}
	}
}

// WithRemoteValueListener registers a listener for fetched entries.
func WithRemoteValueListener(l RemoteValueListener) Option {
	return func(i *Interceptor) { i.listener = l }
}

// WithFunctionalTransforms sets the hooks applied to single-key functional results:
// nonOrigin shapes the result a read owner sends back, origin turns it into the caller's result.
func WithFunctionalTransforms(
	nonOrigin func(rv any, entry *invocation.Entry) (any, error),
	origin func(ictx *invocation.Context, key string, rv any) (any, error),
) Option {
	return func(i *Interceptor) {
		if nonOrigin != nil {
			i.wrapNonOrigin = nonOrigin
		}

		if origin != nil {
			i.unwrapOnOrigin = origin
		}
	}
}

// New builds the distribution stage. next is the stage executing commands locally.
func New(topology TopologyProvider, manager rpc.Manager, next invocation.Handler, opts ...Option) *Interceptor {
	i := &Interceptor{
		topology: topology,
		rpc:      manager,
		entries:  invocation.ExternalEntryFactory{},
		next:     next,
		logger:   hclog.NewNullLogger(),
		sync:     true,
		wrapNonOrigin: func(rv any, _ *invocation.Entry) (any, error) {
			return rv, nil
		},
		unwrapOnOrigin: func(_ *invocation.Context, _ string, rv any) (any, error) {
			return rv, nil
		},
	}

	for _, opt := range opts {
		opt(i)
	}

	i.getAll = &GetAllHelper{entries: i.entries}
	i.readOnlyMany = &ReadOnlyManyHelper{}

	return i
}

// Handle implements invocation.Handler.
func (i *Interceptor) Handle(ctx context.Context, ictx *invocation.Context, cmd command.Command) *future.Future[any] {
	switch c := cmd.(type) {
	case *command.GetKeyValue:
		return i.VisitGetKeyValue(ctx, ictx, c)
	case *command.ReadOnlyKey:
		return i.VisitReadOnlyKey(ctx, ictx, c)
	case command.DataWrite:
		return i.VisitWrite(ctx, ictx, c)
	case *command.GetAll:
		return i.VisitGetAll(ctx, ictx, c)
	case *command.ReadOnlyMany:
		return i.VisitReadOnlyMany(ctx, ictx, c)
	case *command.GetKeysInGroup:
		return i.VisitGetKeysInGroup(ctx, ictx, c)
	case *command.Clear:
		return i.VisitClear(ctx, ictx, c)
	}

	return i.next.Handle(ctx, ictx, cmd)
}

// isSynchronous reports whether cmd waits for remote acknowledgements.
func (i *Interceptor) isSynchronous(cmd command.Command) bool {
	flags := cmd.Meta().Flags

	switch {
	case flags.Has(command.ForceSynchronous):
		return true
	case flags.Has(command.ForceAsynchronous):
		return false
	}

	return i.sync
}

func (i *Interceptor) wrapRemoteEntry(ictx *invocation.Context, key string, entry *invocation.Entry, forWrite bool) {
	i.entries.WrapExternalEntry(ictx, key, entry, true, forWrite)
}

func failed(err error) *future.Future[any] { return future.Failed[any](err) }
