package node

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hyp3rd/hypergrid/pkg/persistence"
)

// Option configures a Node.
type Option func(*Node)

// WithAddress sets the address advertised for the node.
func WithAddress(addr string) Option {
	return func(n *Node) {
		if addr != "" {
			n.addr = addr
		}
	}
}

// WithLogger sets the logger; the node names a sub-logger after itself.
func WithLogger(l hclog.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithReplicated runs the node in replicated mode.
func WithReplicated(replicated bool) Option {
	return func(n *Node) { n.replicated = replicated }
}

// WithSynchronous sets whether writes wait for backup acknowledgements.
func WithSynchronous(sync bool) Option {
	return func(n *Node) { n.sync = sync }
}

// WithRemoteTimeout bounds every synchronous remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(n *Node) {
		if d > 0 {
			n.remoteTimeout = d
		}
	}
}

// WithStaggerDelay sets the delay before a staggered read asks the next owner.
func WithStaggerDelay(d time.Duration) Option {
	return func(n *Node) {
		if d >= 0 {
			n.staggerDelay = d
		}
	}
}

// WithMaxRetries bounds how many times an operation is re-routed after a topology change.
func WithMaxRetries(retries int) Option {
	return func(n *Node) {
		if retries >= 0 {
			n.maxRetries = retries
		}
	}
}

// WithStore sets the backing store primaries load misses from and write through to.
func WithStore(store persistence.Store) Option {
	return func(n *Node) {
		n.loader = store
		n.writer = store
	}
}

// WithLoader sets a read-only backing store.
func WithLoader(loader persistence.Loader) Option {
	return func(n *Node) { n.loader = loader }
}
