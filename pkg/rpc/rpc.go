// Package rpc is the remote call gateway of a grid node: it sends a command
// to a set of peers and completes a future with their responses, according
// to a response mode.
//
// Self is never a target. A nil target list broadcasts to every member.
// Transport failures complete the returned future exceptionally; a failure
// raised by a peer's own processing travels back as an ExceptionResponse.
package rpc

import (
	"context"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

// Mode selects how the responses of a remote invocation are gathered.
type Mode int

// Response modes.
const (
	// Synchronous waits for every target; a peer exception or a transport failure fails the call.
	Synchronous Mode = iota
	// SynchronousIgnoreLeavers is Synchronous, except that targets that left the
	// cluster answer CacheNotFoundResponse instead of failing the call.
	SynchronousIgnoreLeavers
	// Asynchronous sends and completes immediately with no responses.
	Asynchronous
	// Staggered tries the targets one after the other, moving on after a delay or
	// as soon as a target fails, and completes on the first successful response.
	Staggered
)

func (m Mode) String() string {
	switch m {
	case Synchronous:
		return "sync"
	case SynchronousIgnoreLeavers:
		return "sync-ignore-leavers"
	case Asynchronous:
		return "async"
	case Staggered:
		return "staggered"
	}

	return "unknown"
}

// Responses maps each answering node to its response.
type Responses map[cluster.NodeID]Response

// Manager sends commands to other nodes.
type Manager interface {
	// Address returns the local node id.
	Address() cluster.NodeID
	// Members returns the members of the current topology.
	Members() []cluster.NodeID
	// InvokeRemotely sends cmd to targets (every member when nil). The error is
	// returned when the call could not even be issued.
	InvokeRemotely(ctx context.Context, targets []cluster.NodeID, cmd command.Command, mode Mode) (*future.Future[Responses], error)
}

// Handler executes commands received from other nodes.
type Handler interface {
	HandleRemote(ctx context.Context, origin cluster.NodeID, cmd command.Command) *future.Future[Response]
}

// Transport delivers one command to one node.
type Transport interface {
	Send(ctx context.Context, origin, target cluster.NodeID, cmd command.Command) *future.Future[Response]
}
