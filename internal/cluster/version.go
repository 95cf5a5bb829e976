package cluster

import "sync/atomic"

// TopologyVersion hands out monotonically increasing topology ids.
type TopologyVersion struct {
	v atomic.Int64
}

// Next increments and returns the next id.
func (tv *TopologyVersion) Next() int { return int(tv.v.Add(1)) }

// Get returns the last id handed out.
func (tv *TopologyVersion) Get() int { return int(tv.v.Load()) }
