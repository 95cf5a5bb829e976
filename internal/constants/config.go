// Package constants holds the default settings of a grid node and its backing store.
package constants

import "time"

const (
	// DefaultVirtualNodes is the number of ring points per member.
	DefaultVirtualNodes = 64
	// DefaultReplication is the number of owners per key in distributed mode.
	DefaultReplication = 2
	// DefaultRemoteTimeout bounds every remote invocation issued by a node.
	DefaultRemoteTimeout = 5 * time.Second
	// DefaultStaggerDelay is the pause before a staggered fetch tries the next owner.
	DefaultStaggerDelay = 100 * time.Millisecond
	// DefaultMaxRetries bounds how many times a node re-routes after an outdated topology.
	DefaultMaxRetries = 3
	// DefaultLogLevel is the hclog level of a node logger.
	DefaultLogLevel = "info"
	// DefaultSerializer is the value codec of the backing store.
	DefaultSerializer = "msgpack"
	// ModeDistributed routes every key to a bounded set of owners.
	ModeDistributed = "dist"
	// ModeReplicated makes every member an owner of every key.
	ModeReplicated = "repl"
)
