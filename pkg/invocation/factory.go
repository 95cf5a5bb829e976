package invocation

// ExternalEntryFactory is the EntryFactory used by grid nodes.
type ExternalEntryFactory struct{}

// WrapExternalEntry implements EntryFactory.
// A read never replaces an entry already in the context; a write replaces it with a mutable copy.
func (ExternalEntryFactory) WrapExternalEntry(ictx *Context, key string, entry *Entry, _ bool, forWrite bool) {
	var e *Entry
	if entry == nil {
		e = NullEntry(key)
	} else {
		e = entry.Clone()
		e.Key = key
	}

	e.ForWrite = forWrite

	if forWrite {
		ictx.PutEntry(key, e)

		return
	}

	ictx.PutIfAbsent(key, e)
}
