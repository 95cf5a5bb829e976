package sentinel

import (
	"errors"
	"fmt"
)

// OutdatedTopologyError signals that an operation must be re-routed against a newer topology.
// It matches ErrOutdatedTopology with errors.Is.
type OutdatedTopologyError struct {
	TopologyID int
	Reason     string
}

// NewOutdatedTopology builds an OutdatedTopologyError for the given topology id.
func NewOutdatedTopology(topologyID int, reason string) *OutdatedTopologyError {
	return &OutdatedTopologyError{TopologyID: topologyID, Reason: reason}
}

func (e *OutdatedTopologyError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: topology %d", ErrOutdatedTopology.Error(), e.TopologyID)
	}

	return fmt.Sprintf("%s: topology %d: %s", ErrOutdatedTopology.Error(), e.TopologyID, e.Reason)
}

// Is reports whether target is ErrOutdatedTopology.
func (*OutdatedTopologyError) Is(target error) bool { return target == ErrOutdatedTopology }

// ProtocolError is a fatal routing invariant breach.
type ProtocolError struct {
	Msg string
}

// NewProtocolError formats a ProtocolError.
func NewProtocolError(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string { return ErrProtocolViolation.Error() + ": " + e.Msg }

// Is reports whether target is ErrProtocolViolation.
func (*ProtocolError) Is(target error) bool { return target == ErrProtocolViolation }

// RemoteError carries an error raised by a peer's own processing of a command,
// as opposed to a failure to reach the peer.
type RemoteError struct {
	Node  string
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s on %s: %v", ErrRemoteInvocation.Error(), e.Node, e.Cause)
}

// Unwrap returns the peer-side cause.
func (e *RemoteError) Unwrap() error { return e.Cause }

// Is reports whether target is ErrRemoteInvocation.
func (*RemoteError) Is(target error) bool { return target == ErrRemoteInvocation }

// UnwrapRemote returns the cause of a RemoteError, or err unchanged.
func UnwrapRemote(err error) error {
	var re *RemoteError
	if errors.As(err, &re) && re.Cause != nil {
		return re.Cause
	}

	return err
}

// IsOutdatedTopology reports whether err asks for a re-route.
func IsOutdatedTopology(err error) bool { return errors.Is(err, ErrOutdatedTopology) }
