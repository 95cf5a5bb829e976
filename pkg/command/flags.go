package command

import "strings"

// Flag alters how a command is routed.
type Flag uint32

// Flags.
const (
	// CacheModeLocal executes the command on the local node only.
	CacheModeLocal Flag = 1 << iota
	// SkipRemoteLookup forbids fetching missing entries from other nodes.
	SkipRemoteLookup
	// IgnoreReturnValues tells the grid the caller does not need previous values.
	IgnoreReturnValues
	// ForceSynchronous waits for remote acknowledgements regardless of the node mode.
	ForceSynchronous
	// ForceAsynchronous does not wait for remote acknowledgements regardless of the node mode.
	ForceAsynchronous
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{CacheModeLocal, "CACHE_MODE_LOCAL"},
	{SkipRemoteLookup, "SKIP_REMOTE_LOOKUP"},
	{IgnoreReturnValues, "IGNORE_RETURN_VALUES"},
	{ForceSynchronous, "FORCE_SYNCHRONOUS"},
	{ForceAsynchronous, "FORCE_ASYNCHRONOUS"},
}

// Flags is a set of Flag values.
type Flags uint32

// NewFlags builds a set.
func NewFlags(flags ...Flag) Flags {
	var fs Flags
	for _, f := range flags {
		fs |= Flags(f)
	}

	return fs
}

// Has reports whether f is set.
func (fs Flags) Has(f Flag) bool { return fs&Flags(f) != 0 }

// HasAny reports whether any of flags is set.
func (fs Flags) HasAny(flags ...Flag) bool {
	for _, f := range flags {
		if fs.Has(f) {
			return true
		}
	}

	return false
}

// With returns fs plus f.
func (fs Flags) With(f Flag) Flags { return fs | Flags(f) }

func (fs Flags) String() string {
	parts := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if fs.Has(fn.f) {
			parts = append(parts, fn.name)
		}
	}

	return strings.Join(parts, "|")
}

// LocalOnly reports whether the flags forbid any remote interaction for reads.
func (fs Flags) LocalOnly() bool { return fs.HasAny(CacheModeLocal, SkipRemoteLookup) }
