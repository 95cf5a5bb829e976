package cluster

import (
	"slices"
)

// UnsetTopologyID marks a command that was never routed.
const UnsetTopologyID = -1

// Topology is an immutable snapshot of cluster membership and the ownership derived from it.
// While a rebalance is in progress the pending ring is set: reads keep following the read ring,
// writes go to the union of read and pending owners.
type Topology struct {
	id      int
	members []NodeID
	read    *Ring
	pending *Ring
	grouper Grouper
}

// NewTopology builds a stable topology over members.
func NewTopology(id int, members []NodeID, grouper Grouper, opts ...RingOption) *Topology {
	sorted := slices.Clone(members)
	slices.Sort(sorted)

	read := NewRing(opts...)
	read.Build(sorted)

	return &Topology{id: id, members: sorted, read: read, grouper: grouper}
}

// withPending returns a rebalancing successor that keeps t's read ring and writes to pendingMembers too.
func (t *Topology) withPending(id int, pendingMembers []NodeID, opts ...RingOption) *Topology {
	sorted := slices.Clone(pendingMembers)
	slices.Sort(sorted)

	pending := NewRing(opts...)
	pending.Build(sorted)

	members := slices.Clone(t.members)
	for _, m := range sorted {
		if !slices.Contains(members, m) {
			members = append(members, m)
		}
	}

	slices.Sort(members)

	return &Topology{id: id, members: members, read: t.read, pending: pending, grouper: t.grouper}
}

// ID returns the topology id.
func (t *Topology) ID() int { return t.id }

// Members returns a copy of the member ids, sorted.
func (t *Topology) Members() []NodeID { return slices.Clone(t.members) }

// Rebalancing reports whether read and write ownership currently differ.
func (t *Topology) Rebalancing() bool { return t.pending != nil }

// RoutingKey returns the key used for hashing: the group when the key has one.
func (t *Topology) RoutingKey(key string) string {
	if t.grouper != nil {
		if g, ok := t.grouper(key); ok {
			return g
		}
	}

	return key
}

// InGroup reports whether key belongs to group.
func (t *Topology) InGroup(key, group string) bool { return GroupOf(t.grouper, key, group) }

// ReadOwners returns the owners allowed to serve reads for key, primary first.
func (t *Topology) ReadOwners(key string) []NodeID { return t.read.Lookup(t.RoutingKey(key)) }

// WriteOwners returns the owners that must receive writes for key, read owners first.
func (t *Topology) WriteOwners(key string) []NodeID {
	owners := t.ReadOwners(key)
	if t.pending == nil {
		return owners
	}

	for _, id := range t.pending.Lookup(t.RoutingKey(key)) {
		if !slices.Contains(owners, id) {
			owners = append(owners, id)
		}
	}

	return owners
}

// Localize binds the topology to the node evaluating it.
func (t *Topology) Localize(local NodeID) *LocalizedTopology {
	return &LocalizedTopology{Topology: t, local: local}
}

// LocalizedTopology answers ownership questions from the point of view of one node.
type LocalizedTopology struct {
	*Topology

	local NodeID
}

// LocalNode returns the node this view belongs to.
func (lt *LocalizedTopology) LocalNode() NodeID { return lt.local }

// Distribution computes the ownership of key. The result is never cached.
func (lt *LocalizedTopology) Distribution(key string) DistributionInfo {
	read := lt.ReadOwners(key)
	write := lt.WriteOwners(key)

	var primary NodeID
	if len(read) > 0 {
		primary = read[0]
	}

	return NewDistributionInfo(lt.local, primary, read, write)
}

// GroupDistribution computes the ownership shared by every key of group.
func (lt *LocalizedTopology) GroupDistribution(group string) DistributionInfo {
	read := lt.read.Lookup(group)
	write := slices.Clone(read)

	if lt.pending != nil {
		for _, id := range lt.pending.Lookup(group) {
			if !slices.Contains(write, id) {
				write = append(write, id)
			}
		}
	}

	var primary NodeID
	if len(read) > 0 {
		primary = read[0]
	}

	return NewDistributionInfo(lt.local, primary, read, write)
}

// DistributionInfo is the ownership of one key under one topology, relative to the local node.
type DistributionInfo struct {
	Primary     NodeID
	ReadOwners  []NodeID
	WriteOwners []NodeID

	local NodeID
}

// NewDistributionInfo assembles ownership information for local.
func NewDistributionInfo(local, primary NodeID, readOwners, writeOwners []NodeID) DistributionInfo {
	return DistributionInfo{Primary: primary, ReadOwners: readOwners, WriteOwners: writeOwners, local: local}
}

// IsPrimary reports whether the local node is the primary owner.
func (d DistributionInfo) IsPrimary() bool { return d.Primary != "" && d.Primary == d.local }

// IsReadOwner reports whether the local node may serve reads.
func (d DistributionInfo) IsReadOwner() bool { return slices.Contains(d.ReadOwners, d.local) }

// IsWriteOwner reports whether the local node must receive writes.
func (d DistributionInfo) IsWriteOwner() bool { return slices.Contains(d.WriteOwners, d.local) }
