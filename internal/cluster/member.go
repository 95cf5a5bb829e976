package cluster

import (
	"net"
	"strconv"
	"time"

	"github.com/hyp3rd/ewrap"
)

// NodeID is a stable identifier for a node. It is the address commands are routed to.
type NodeID string

// MemberState is the liveness a member was last marked with.
type MemberState int

// Member states. Only dead members are left out of the ownership ring.
const (
	MemberAlive MemberState = iota
	MemberSuspect
	MemberDead
)

func (s MemberState) String() string {
	switch s {
	case MemberAlive:
		return "alive"
	case MemberSuspect:
		return "suspect"
	case MemberDead:
		return "dead"
	}

	return "unknown"
}

// MarshalText renders the state by name in member listings.
func (s MemberState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state rendered by MarshalText.
func (s *MemberState) UnmarshalText(text []byte) error {
	for _, st := range []MemberState{MemberAlive, MemberSuspect, MemberDead} {
		if st.String() == string(text) {
			*s = st

			return nil
		}
	}

	return ewrap.Newf("unknown member state %q", text)
}

// ErrInvalidMember is returned for a member that cannot take part in routing.
var ErrInvalidMember = ewrap.New("invalid cluster member")

// Member is one node of the grid as the membership knows it.
type Member struct {
	ID NodeID `json:"id"`
	// Address is the host:port peers invoke commands on. Empty for in-process members.
	Address     string      `json:"address,omitempty"`
	State       MemberState `json:"state"`
	Incarnation uint64      `json:"incarnation"`
	LastSeen    time.Time   `json:"last_seen"`
}

// NewMember returns an alive member at its first incarnation.
func NewMember(id NodeID, addr string) *Member {
	return &Member{ID: id, Address: addr, State: MemberAlive, Incarnation: 1, LastSeen: time.Now()}
}

// Validate checks that m can own keys and, when it has an address, be reached.
func (m *Member) Validate() error {
	if m.ID == "" {
		return ewrap.Wrap(ErrInvalidMember, "member id is empty")
	}

	if m.Address == "" {
		return nil
	}

	_, port, err := net.SplitHostPort(m.Address)
	if err != nil {
		return ewrap.Wrapf(ErrInvalidMember, "member %s address %q: %v", m.ID, m.Address, err)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return ewrap.Wrapf(ErrInvalidMember, "member %s port %q", m.ID, port)
	}

	return nil
}

func (m *Member) String() string { return string(m.ID) + "(" + m.Address + "," + m.State.String() + ")" }
