// Package cluster contains primitives for node identity, membership tracking,
// consistent hashing and the topology snapshots derived from them.
package cluster

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Membership tracks current cluster nodes and publishes a new Topology on every change.
type Membership struct {
	mu        sync.RWMutex
	nodes     map[NodeID]*Member
	ringOpts  []RingOption
	grouper   Grouper
	ver       TopologyVersion
	current   atomic.Pointer[Topology]
	listeners []func(*Topology)
}

// MembershipOption configures a Membership.
type MembershipOption func(*Membership)

// WithRingOptions sets the options every topology ring is built with.
func WithRingOptions(opts ...RingOption) MembershipOption {
	return func(m *Membership) { m.ringOpts = append(m.ringOpts, opts...) }
}

// WithGrouper sets the key grouper used by every topology.
func WithGrouper(g Grouper) MembershipOption {
	return func(m *Membership) { m.grouper = g }
}

// NewMembership creates an empty membership container.
func NewMembership(opts ...MembershipOption) *Membership {
	m := &Membership{nodes: map[NodeID]*Member{}, grouper: HashTagGrouper}
	for _, o := range opts {
		o(m)
	}

	m.current.Store(NewTopology(m.ver.Get(), nil, m.grouper, m.ringOpts...))

	return m
}

// Subscribe registers fn to be called with every topology published after this call.
func (m *Membership) Subscribe(fn func(*Topology)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Topology returns the current topology snapshot.
func (m *Membership) Topology() *Topology { return m.current.Load() }

// Upsert adds or updates a member and publishes a stable topology.
func (m *Membership) Upsert(n *Member) *Topology {
	m.mu.Lock()

	n.LastSeen = time.Now()
	m.nodes[n.ID] = n

	return m.publishLocked(NewTopology(m.ver.Next(), m.aliveLocked(), m.grouper, m.ringOpts...))
}

// Remove deletes a node and publishes a stable topology. Returns true if removed.
func (m *Membership) Remove(id NodeID) bool {
	m.mu.Lock()

	if _, ok := m.nodes[id]; !ok {
		m.mu.Unlock()

		return false
	}

	delete(m.nodes, id)
	m.publishLocked(NewTopology(m.ver.Next(), m.aliveLocked(), m.grouper, m.ringOpts...))

	return true
}

// Mark records state for the member id, bumping its incarnation. Returns false for an unknown id.
// Transitions into or out of MemberDead change ownership and publish a new topology.
func (m *Membership) Mark(id NodeID, state MemberState) bool {
	m.mu.Lock()

	n, ok := m.nodes[id]
	if !ok {
		m.mu.Unlock()

		return false
	}

	wasDead := n.State == MemberDead
	n.State = state
	n.Incarnation++
	n.LastSeen = time.Now()

	if wasDead == (state == MemberDead) {
		m.mu.Unlock()

		return true
	}

	m.publishLocked(NewTopology(m.ver.Next(), m.aliveLocked(), m.grouper, m.ringOpts...))

	return true
}

// BeginRebalance adds n as a pending member: reads keep their owners, writes also reach the new owners.
func (m *Membership) BeginRebalance(n *Member) *Topology {
	m.mu.Lock()

	n.LastSeen = time.Now()
	m.nodes[n.ID] = n

	cur := m.current.Load()

	return m.publishLocked(cur.withPending(m.ver.Next(), m.aliveLocked(), m.ringOpts...))
}

// CompleteRebalance makes the pending ownership the read ownership.
func (m *Membership) CompleteRebalance() *Topology {
	m.mu.Lock()

	return m.publishLocked(NewTopology(m.ver.Next(), m.aliveLocked(), m.grouper, m.ringOpts...))
}

// Members returns a copy of every known member, dead ones included, ordered by id.
func (m *Membership) Members() []Member {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Member, 0, len(m.nodes))
	for _, v := range m.nodes {
		out = append(out, *v)
	}

	slices.SortFunc(out, func(a, b Member) int { return strings.Compare(string(a.ID), string(b.ID)) })

	return out
}

// Lookup returns a copy of the member registered under id.
func (m *Membership) Lookup(id NodeID) (*Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, false
	}

	cp := *n

	return &cp, true
}

// aliveLocked returns the ids of every non-dead node. Caller holds mu.
func (m *Membership) aliveLocked() []NodeID {
	ids := make([]NodeID, 0, len(m.nodes))
	for id, n := range m.nodes {
		if n.State != MemberDead {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids
}

// publishLocked stores t, releases mu and notifies listeners outside the lock.
func (m *Membership) publishLocked(t *Topology) *Topology {
	m.current.Store(t)
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}

	return t
}
