package command

import (
	"github.com/google/uuid"
)

// WriteKind selects the mutation a Write performs.
type WriteKind string

// Write kinds.
const (
	Put             WriteKind = "put"
	PutIfAbsent     WriteKind = "put_if_absent"
	Replace         WriteKind = "replace"
	ReplaceIfEquals WriteKind = "replace_if_equals"
	Remove          WriteKind = "remove"
	RemoveIfEquals  WriteKind = "remove_if_equals"
)

// DefaultMatcher returns the matcher a fresh write of kind starts with.
func (k WriteKind) DefaultMatcher() ValueMatcher {
	switch k {
	case PutIfAbsent, ReplaceIfEquals, RemoveIfEquals:
		return MatchExpected
	case Replace:
		return MatchNonNull
	default:
		return MatchAlways
	}
}

// Conditional reports whether the outcome of the write depends on the previous value.
func (k WriteKind) Conditional() bool { return k.DefaultMatcher() != MatchAlways }

// Removes reports whether the write deletes the entry.
func (k WriteKind) Removes() bool { return k == Remove || k == RemoveIfEquals }

// LoadType says whether a node that does not hold the entry must fetch it before applying a write.
type LoadType int

// Load types.
const (
	DontLoad LoadType = iota
	// Owner loads on the primary and on non-originating write owners.
	Owner
	// Primary loads on the primary only.
	Primary
)

// Write mutates one key.
type Write struct {
	Header

	WriteKind    WriteKind    `json:"write_kind"`
	Key          string       `json:"key"`
	Value        any          `json:"value,omitempty"`
	Expected     any          `json:"expected,omitempty"`
	Matcher      ValueMatcher `json:"matcher"`
	Load         LoadType     `json:"load"`
	InvocationID uuid.UUID    `json:"invocation_id"`
	// Successful is cleared by the call stage when the matcher rejected the write.
	Successful bool `json:"successful"`
}

func newWrite(kind WriteKind, key string, value, expected any, flags []Flag) *Write {
	load := DontLoad
	if kind.Conditional() || !NewFlags(flags...).Has(IgnoreReturnValues) {
		load = Owner
	}

	return &Write{
		Header:       NewHeader(flags...),
		WriteKind:    kind,
		Key:          key,
		Value:        value,
		Expected:     expected,
		Matcher:      kind.DefaultMatcher(),
		Load:         load,
		InvocationID: NewInvocationID(),
		Successful:   true,
	}
}

// NewPut stores value under key.
func NewPut(key string, value any, flags ...Flag) *Write {
	return newWrite(Put, key, value, nil, flags)
}

// NewPutIfAbsent stores value only when key has no value.
func NewPutIfAbsent(key string, value any, flags ...Flag) *Write {
	return newWrite(PutIfAbsent, key, value, nil, flags)
}

// NewReplace stores value only when key has a value.
func NewReplace(key string, value any, flags ...Flag) *Write {
	return newWrite(Replace, key, value, nil, flags)
}

// NewReplaceIfEquals stores value only when the current value equals expected.
func NewReplaceIfEquals(key string, expected, value any, flags ...Flag) *Write {
	return newWrite(ReplaceIfEquals, key, value, expected, flags)
}

// NewRemove deletes key.
func NewRemove(key string, flags ...Flag) *Write {
	return newWrite(Remove, key, nil, nil, flags)
}

// NewRemoveIfEquals deletes key only when the current value equals expected.
func NewRemoveIfEquals(key string, expected any, flags ...Flag) *Write {
	return newWrite(RemoveIfEquals, key, nil, expected, flags)
}

func (*Write) Kind() Kind { return KindWrite }

func (c *Write) RoutingKey() string { return c.Key }

func (c *Write) Copy() Command {
	cp := *c

	return &cp
}

// ReturnValueExpected reports whether the caller waits for the outcome of the write.
func (c *Write) ReturnValueExpected() bool {
	return c.WriteKind.Conditional() || !c.Flags.Has(IgnoreReturnValues)
}

// UpdateStatusFromRemote records the outcome reported by the primary owner.
func (c *Write) UpdateStatusFromRemote(result any) {
	if wr, ok := result.(WriteResult); ok {
		c.Successful = wr.Successful
	}
}

func (c *Write) WriteState() *Write { return c }

func (c *Write) BackupWrite() *Write {
	backup := *c
	backup.Matcher = MatchAlways

	return &backup
}
