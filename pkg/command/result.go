package command

// unsuccessful marks a read that could not be served under the command's topology.
type unsuccessful struct{}

// Unsuccessful is returned by a node that can no longer answer a read routed
// against an older topology. The requester is stale and retries on its own.
var Unsuccessful any = unsuccessful{}

// IsUnsuccessful reports whether v is the Unsuccessful marker.
func IsUnsuccessful(v any) bool {
	_, ok := v.(unsuccessful)

	return ok
}

// WriteResult is the outcome of a Write.
type WriteResult struct {
	Previous   any  `json:"previous,omitempty"`
	Successful bool `json:"successful"`
}

// RemoteValue is the wire form of a stored entry.
type RemoteValue struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	Version uint64 `json:"version"`
}

// KeyValue is one element of a batch read result.
type KeyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
	Found bool   `json:"found"`
}
