// Package persistence defines the optional backing store of a grid node and
// provides a Redis implementation of it.
//
// A primary owner that misses a key in its container asks the Loader before
// applying a command that needs the previous value. Committed changes made on
// the primary are written through the Writer.
package persistence

import "context"

// Record is the stored form of an entry.
type Record struct {
	Key     string `json:"key"     msgpack:"key"`
	Value   any    `json:"value"   msgpack:"value"`
	Version uint64 `json:"version" msgpack:"version"`
}

// Loader reads records from the backing store.
type Loader interface {
	// Load returns the record of key. The boolean is false when the store has none.
	Load(ctx context.Context, key string) (*Record, bool, error)
}

// Writer persists committed changes.
type Writer interface {
	Store(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Store is a backing store that can be read and written.
type Store interface {
	Loader
	Writer
}
