// Package sentinel provides standardized error definitions for the hypergrid system.
// This package centralizes all error types used across the grid components,
// ensuring consistent error handling and messaging throughout the application.
//
// The errors defined here cover various scenarios including:
// - Topology staleness (the operation was routed against an old topology)
// - Protocol violations (wrong response cardinality, self-targeted remote calls)
// - Remote failures (an exception raised by a peer while processing a command)
// - Transport and runtime errors (unknown peers, timeouts, stopped nodes)
//
// All errors are created using the ewrap package to provide enhanced error
// wrapping and context capabilities.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrOutdatedTopology is returned when a command was routed against a topology that is no
	// longer current. It is always retryable: the invocation pipeline re-routes the whole
	// operation against a fresh topology.
	ErrOutdatedTopology = ewrap.New("outdated topology")

	// ErrProtocolViolation is returned when an internal routing invariant is breached,
	// for example a remote call answered by the wrong number of nodes. Never retried.
	ErrProtocolViolation = ewrap.New("protocol violation")

	// ErrRemoteInvocation is returned when a peer failed while processing a command.
	ErrRemoteInvocation = ewrap.New("remote invocation failed")

	// ErrUnsuccessfulResponse is returned when the primary owner answered a forwarded write
	// with a response that is neither successful nor a cache-not-found marker.
	ErrUnsuccessfulResponse = ewrap.New("unsuccessful response from primary owner")

	// ErrCacheNotRunning is returned when a command reaches a node that is stopped.
	ErrCacheNotRunning = ewrap.New("cache is not running")

	// ErrInvalidKey is returned when an invalid key is used to access an entry.
	// An invalid key is a key that is either empty or consists only of whitespace characters.
	ErrInvalidKey = ewrap.New("invalid key")

	// ErrNilValue is returned when a nil value is attempted to be stored.
	ErrNilValue = ewrap.New("nil value")

	// ErrUnknownCommand is returned when a handler receives a command type it does not support.
	ErrUnknownCommand = ewrap.New("unknown command")

	// ErrUnknownFunction is returned when a functional command references an unregistered function.
	ErrUnknownFunction = ewrap.New("unknown function")

	// ErrParamCannotBeEmpty is returned when a parameter cannot be empty.
	ErrParamCannotBeEmpty = ewrap.New("param cannot be empty")

	// ErrSerializerNotFound is returned when a serializer is not found.
	ErrSerializerNotFound = ewrap.New("serializer not found")

	// ErrBackendNotFound is returned when a peer is not registered with the transport.
	ErrBackendNotFound = ewrap.New("backend not found")

	// ErrTimeoutOrCanceled is returned when a timeout or cancellation occurs.
	ErrTimeoutOrCanceled = ewrap.New("the operation timed out or was canceled")

	// ErrNoMembers is returned when a topology cannot be built because no member is alive.
	ErrNoMembers = ewrap.New("no cluster members")

	// ErrInvalidConfig is returned when a configuration value is out of range.
	ErrInvalidConfig = ewrap.New("invalid configuration")

	// ErrHTTPShutdownTimeout is returned when the intra-cluster HTTP server fails to shutdown before context deadline.
	ErrHTTPShutdownTimeout = ewrap.New("http shutdown timeout")
)
