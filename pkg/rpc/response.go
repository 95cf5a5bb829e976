package rpc

// Response is the answer of one node to a remote invocation.
type Response interface {
	IsSuccessful() bool
}

// SuccessfulResponse carries the result of the command. A nil Value is a valid result.
type SuccessfulResponse struct {
	Value any
}

// IsSuccessful implements Response.
func (SuccessfulResponse) IsSuccessful() bool { return true }

// UnsuccessfulResponse is returned by a node that could not serve the command
// under the topology it was routed against.
type UnsuccessfulResponse struct{}

// IsSuccessful implements Response.
func (UnsuccessfulResponse) IsSuccessful() bool { return false }

// ExceptionResponse carries a failure raised while the node processed the command.
type ExceptionResponse struct {
	Err error
}

// IsSuccessful implements Response.
func (ExceptionResponse) IsSuccessful() bool { return false }

// CacheNotFoundResponse is returned by, or on behalf of, a node that no longer runs the grid.
type CacheNotFoundResponse struct{}

// IsSuccessful implements Response.
func (CacheNotFoundResponse) IsSuccessful() bool { return false }
