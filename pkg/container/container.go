package container

import (
	"context"
	"slices"
	"time"
)

// Container is the data held by one node.
type Container struct {
	items *ConcurrentMap
	clock func() time.Time
}

// New returns an empty container.
func New() *Container {
	return &Container{items: NewConcurrentMap(), clock: time.Now}
}

// Get returns a copy of the item stored under key.
func (c *Container) Get(key string) (*Item, bool) {
	it, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}

	return it.Clone(), true
}

// Put stores value under key, bumping the version, and returns the stored copy.
func (c *Container) Put(key string, value any, origin string) *Item {
	var stored *Item

	c.items.Update(key, func(cur *Item, ok bool) *Item {
		version := uint64(1)
		if ok {
			version = cur.Version + 1
		}

		stored = &Item{Key: key, Value: value, Version: version, LastUpdated: c.clock(), Origin: origin}

		return stored
	})

	return stored.Clone()
}

// Restore stores item as is, keeping its version unless the local copy is newer.
func (c *Container) Restore(item *Item) {
	c.items.Update(item.Key, func(cur *Item, ok bool) *Item {
		if ok && cur.Version > item.Version {
			return cur
		}

		return item.Clone()
	})
}

// Remove deletes key and reports whether it was present.
func (c *Container) Remove(key string) bool { return c.items.Remove(key) }

// Len returns the number of stored items.
func (c *Container) Len() int { return c.items.Count() }

// Clear removes every item.
func (c *Container) Clear() { c.items.Clear() }

// Keys returns the stored keys matching filter (every key when filter is nil), sorted.
func (c *Container) Keys(filter func(key string) bool) []string {
	keys := []string{}

	c.items.Range(func(it *Item) bool {
		if filter == nil || filter(it.Key) {
			keys = append(keys, it.Key)
		}

		return true
	})

	slices.Sort(keys)

	return keys
}

// Items returns copies of the stored items matching filter, sorted by key.
// It stops early when ctx is done.
func (c *Container) Items(ctx context.Context, filter func(key string) bool) []*Item {
	items := []*Item{}

	c.items.Range(func(it *Item) bool {
		if ctx.Err() != nil {
			return false
		}

		if filter == nil || filter(it.Key) {
			items = append(items, it)
		}

		return true
	})

	slices.SortFunc(items, func(a, b *Item) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}

		return 0
	})

	return items
}
