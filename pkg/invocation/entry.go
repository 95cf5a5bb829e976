package invocation

// Entry is the view of one key registered in an invocation context.
type Entry struct {
	Key     string
	Value   any
	Version uint64
	// Null marks a key known to have no value.
	Null bool
	// ForWrite marks an entry wrapped to be mutated.
	ForWrite bool
	Changed  bool
	Removed  bool
}

// NewEntry returns a found entry.
func NewEntry(key string, value any, version uint64) *Entry {
	return &Entry{Key: key, Value: value, Version: version}
}

// NullEntry returns the not-found entry of key.
func NullEntry(key string) *Entry {
	return &Entry{Key: key, Null: true}
}

// Found reports whether the entry holds a value.
func (e *Entry) Found() bool { return !e.Null && !e.Removed }

// SetValue replaces the value and marks the entry changed.
func (e *Entry) SetValue(v any) {
	e.Value = v
	e.Null = false
	e.Removed = false
	e.Changed = true
}

// Remove marks the entry removed.
func (e *Entry) Remove() {
	e.Value = nil
	e.Removed = true
	e.Changed = true
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	cp := *e

	return &cp
}
