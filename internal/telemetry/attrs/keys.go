// Package attrs holds the OpenTelemetry attribute keys shared by the grid middlewares.
package attrs

const (
	// AttrKey is the routed key.
	AttrKey = "grid.key"
	// AttrKeyLength is the length of the routed key in bytes.
	AttrKeyLength = "grid.key.len"
	// AttrKeysCount is the number of keys of a batch operation.
	AttrKeysCount = "grid.keys.count"
	// AttrResultCount is the number of entries returned by a batch operation.
	AttrResultCount = "grid.result.count"
	// AttrNode is the id of the node serving the call.
	AttrNode = "grid.node"
	// AttrTopologyID is the topology id the operation was routed against.
	AttrTopologyID = "grid.topology.id"
	// AttrGroup is the group name of a group-keyed operation.
	AttrGroup = "grid.group"
	// AttrWriteKind is the kind of a write command.
	AttrWriteKind = "grid.write.kind"
)
