package container

import (
	"strings"
	"time"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

// Item is a stored entry.
type Item struct {
	Key         string    // key of the item
	Value       any       // value of the item
	Version     uint64    // logical version (monotonic per key)
	LastUpdated time.Time // last write time
	Origin      string    // node that coordinated the last write
}

// Valid returns an error if the item cannot be stored.
func (it *Item) Valid() error {
	if strings.TrimSpace(it.Key) == "" {
		return sentinel.ErrInvalidKey
	}

	if it.Value == nil {
		return sentinel.ErrNilValue
	}

	return nil
}

// Clone returns a copy of the item.
func (it *Item) Clone() *Item {
	cp := *it

	return &cp
}
