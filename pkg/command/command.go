// Package command defines the operations routed through a grid node.
//
// Every command embeds a Header carrying the topology id it was routed against
// and its flags. Commands are plain value carriers: the routing layer reads and
// re-assigns their fields, the call stage executes them against the entries of
// an invocation context. Remote peers receive a Copy, never the caller's value.
package command

import (
	"slices"

	"github.com/google/uuid"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// Kind names a command type on the wire.
type Kind string

// Command kinds.
const (
	KindGetKeyValue     Kind = "get"
	KindReadOnlyKey     Kind = "read_only_key"
	KindWrite           Kind = "write"
	KindReadWriteKey    Kind = "read_write_key"
	KindGetAll          Kind = "get_all"
	KindReadOnlyMany    Kind = "read_only_many"
	KindGetKeysInGroup  Kind = "get_keys_in_group"
	KindClear           Kind = "clear"
	KindClusteredGet    Kind = "clustered_get"
	KindClusteredGetAll Kind = "clustered_get_all"
)

// Header is the routing metadata shared by every command.
type Header struct {
	TopologyID int   `json:"topology_id"`
	Flags      Flags `json:"flags"`
}

// NewHeader returns a header that was never routed.
func NewHeader(flags ...Flag) Header {
	return Header{TopologyID: cluster.UnsetTopologyID, Flags: NewFlags(flags...)}
}

// Meta gives access to the header of the embedding command.
func (h *Header) Meta() *Header { return h }

// Command is an operation routed through the grid.
type Command interface {
	Meta() *Header
	Kind() Kind
	// Copy returns an independent copy safe to hand to another node.
	Copy() Command
}

// Keyed is implemented by single-key commands.
type Keyed interface {
	Command
	RoutingKey() string
}

// MultiKeyed is implemented by batch commands.
type MultiKeyed interface {
	Command
	AllKeys() []string
}

// GetKeyValue reads the value of one key.
type GetKeyValue struct {
	Header

	Key string `json:"key"`
}

// NewGetKeyValue builds a read of key.
func NewGetKeyValue(key string, flags ...Flag) *GetKeyValue {
	return &GetKeyValue{Header: NewHeader(flags...), Key: key}
}

func (*GetKeyValue) Kind() Kind { return KindGetKeyValue }
func (c *GetKeyValue) RoutingKey() string { return c.Key }
func (c *GetKeyValue) Copy() Command {
	cp := *c

	return &cp
}

// ReadOnlyKey applies a registered read function to one key.
type ReadOnlyKey struct {
	Header

	Key      string `json:"key"`
	Function string `json:"function"`
	Arg      any    `json:"arg,omitempty"`
}

// NewReadOnlyKey builds a functional read of key.
func NewReadOnlyKey(key, function string, arg any, flags ...Flag) *ReadOnlyKey {
	return &ReadOnlyKey{Header: NewHeader(flags...), Key: key, Function: function, Arg: arg}
}

func (*ReadOnlyKey) Kind() Kind { return KindReadOnlyKey }
func (c *ReadOnlyKey) RoutingKey() string { return c.Key }
func (c *ReadOnlyKey) Copy() Command {
	cp := *c

	return &cp
}

// GetAll reads a batch of keys. The result lists one KeyValue per requested key, in order.
type GetAll struct {
	Header

	Keys []string `json:"keys"`
}

// NewGetAll builds a batch read.
func NewGetAll(keys []string, flags ...Flag) *GetAll {
	return &GetAll{Header: NewHeader(flags...), Keys: keys}
}

func (*GetAll) Kind() Kind { return KindGetAll }
func (c *GetAll) AllKeys() []string { return c.Keys }

func (c *GetAll) Copy() Command {
	cp := *c
	cp.Keys = slices.Clone(c.Keys)

	return &cp
}

// WithKeys returns a copy restricted to keys.
func (c *GetAll) WithKeys(keys []string) *GetAll {
	cp := *c
	cp.Keys = keys

	return &cp
}

// ReadOnlyMany applies a registered read function to a batch of keys.
// The result lists one function result per requested key, in order.
type ReadOnlyMany struct {
	Header

	Keys     []string `json:"keys"`
	Function string   `json:"function"`
	Arg      any      `json:"arg,omitempty"`
}

// NewReadOnlyMany builds a functional batch read.
func NewReadOnlyMany(keys []string, function string, arg any, flags ...Flag) *ReadOnlyMany {
	return &ReadOnlyMany{Header: NewHeader(flags...), Keys: keys, Function: function, Arg: arg}
}

func (*ReadOnlyMany) Kind() Kind { return KindReadOnlyMany }
func (c *ReadOnlyMany) AllKeys() []string { return c.Keys }

func (c *ReadOnlyMany) Copy() Command {
	cp := *c
	cp.Keys = slices.Clone(c.Keys)

	return &cp
}

// WithKeys returns a copy restricted to keys.
func (c *ReadOnlyMany) WithKeys(keys []string) *ReadOnlyMany {
	cp := *c
	cp.Keys = keys

	return &cp
}

// GetKeysInGroup lists the entries of a key group.
type GetKeysInGroup struct {
	Header

	Group string `json:"group"`
	// GroupOwner is set by the node when the local node owns the group.
	GroupOwner bool `json:"-"`
}

// NewGetKeysInGroup builds a group listing.
func NewGetKeysInGroup(group string, flags ...Flag) *GetKeysInGroup {
	return &GetKeysInGroup{Header: NewHeader(flags...), Group: group}
}

func (*GetKeysInGroup) Kind() Kind { return KindGetKeysInGroup }

func (c *GetKeysInGroup) Copy() Command {
	cp := *c
	cp.GroupOwner = false

	return &cp
}

// Clear removes every entry of the grid.
type Clear struct {
	Header
}

// NewClear builds a clear.
func NewClear(flags ...Flag) *Clear { return &Clear{Header: NewHeader(flags...)} }

func (*Clear) Kind() Kind { return KindClear }
func (c *Clear) Copy() Command {
	cp := *c

	return &cp
}

// ClusteredGet fetches the stored entry of a key from a read owner.
// The result is a *RemoteValue, nil when the owner has no value.
type ClusteredGet struct {
	Header

	Key   string `json:"key"`
	Write bool   `json:"write"`
}

func (*ClusteredGet) Kind() Kind { return KindClusteredGet }
func (c *ClusteredGet) RoutingKey() string { return c.Key }
func (c *ClusteredGet) Copy() Command {
	cp := *c

	return &cp
}

// ClusteredGetAll fetches the stored entries of a batch of keys from one owner.
// The result is a []*RemoteValue aligned with Keys, nil where the owner has no value.
type ClusteredGetAll struct {
	Header

	Keys []string `json:"keys"`
}

func (*ClusteredGetAll) Kind() Kind { return KindClusteredGetAll }
func (c *ClusteredGetAll) AllKeys() []string { return c.Keys }

func (c *ClusteredGetAll) Copy() Command {
	cp := *c
	cp.Keys = slices.Clone(c.Keys)

	return &cp
}

// New returns an empty command of kind, ready to be decoded into.
func New(kind Kind) (Command, error) {
	switch kind {
	case KindGetKeyValue:
		return &GetKeyValue{}, nil
	case KindReadOnlyKey:
		return &ReadOnlyKey{}, nil
	case KindWrite:
		return &Write{}, nil
	case KindReadWriteKey:
		return &ReadWriteKey{}, nil
	case KindGetAll:
		return &GetAll{}, nil
	case KindReadOnlyMany:
		return &ReadOnlyMany{}, nil
	case KindGetKeysInGroup:
		return &GetKeysInGroup{}, nil
	case KindClear:
		return &Clear{}, nil
	case KindClusteredGet:
		return &ClusteredGet{}, nil
	case KindClusteredGetAll:
		return &ClusteredGetAll{}, nil
	}

	return nil, ewrap.Wrap(sentinel.ErrUnknownCommand, string(kind))
}

// Keys returns every key a command touches, nil for keyless commands.
func Keys(cmd Command) []string {
	switch c := cmd.(type) {
	case Keyed:
		return []string{c.RoutingKey()}
	case MultiKeyed:
		return c.AllKeys()
	}

	return nil
}

// NewInvocationID returns a fresh id for a write.
func NewInvocationID() uuid.UUID { return uuid.New() }
