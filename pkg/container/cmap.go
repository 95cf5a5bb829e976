// Package container is the local data container of a grid node: a sharded
// concurrent map of items.
//
// The map is divided into ShardCount shards, each guarded by its own RWMutex,
// and keys are spread with an inline FNV-1a hash. Callers always receive
// copies of the stored items.
package container

import (
	"sync"
)

const (
	// ShardCount is the number of shards used by the map.
	ShardCount = 32
	// ShardCount32 is ShardCount pre-casted to uint32.
	ShardCount32 uint32 = uint32(ShardCount)
)

// ConcurrentMap is a sharded string to *Item map.
type ConcurrentMap struct {
	shards []*shard
}

type shard struct {
	sync.RWMutex

	items map[string]*Item
}

// NewConcurrentMap creates an empty map.
func NewConcurrentMap() *ConcurrentMap {
	shards := make([]*shard, ShardCount)
	for i := range ShardCount {
		shards[i] = &shard{items: make(map[string]*Item)}
	}

	return &ConcurrentMap{shards: shards}
}

func (cm *ConcurrentMap) shardFor(key string) *shard {
	return cm.shards[shardIndex(key)]
}

func shardIndex(key string) uint32 {
	const (
		fnvOffset32 = 2166136261
		fnvPrime32  = 16777619
	)

	var sum uint32 = fnvOffset32
	for i := range key {
		sum ^= uint32(key[i])

		sum *= fnvPrime32
	}

	return sum & (ShardCount32 - 1)
}

// Set stores item under key.
func (cm *ConcurrentMap) Set(key string, item *Item) {
	s := cm.shardFor(key)
	s.Lock()
	s.items[key] = item
	s.Unlock()
}

// Get returns the item stored under key.
func (cm *ConcurrentMap) Get(key string) (*Item, bool) {
	s := cm.shardFor(key)
	s.RLock()
	item, ok := s.items[key]
	s.RUnlock()

	return item, ok
}

// Update runs fn on the current item under the shard lock and stores the item it returns.
// A nil return removes the key.
func (cm *ConcurrentMap) Update(key string, fn func(cur *Item, ok bool) *Item) {
	s := cm.shardFor(key)
	s.Lock()
	defer s.Unlock()

	cur, ok := s.items[key]

	next := fn(cur, ok)
	if next == nil {
		delete(s.items, key)

		return
	}

	s.items[key] = next
}

// Remove deletes key and reports whether it was present.
func (cm *ConcurrentMap) Remove(key string) bool {
	s := cm.shardFor(key)
	s.Lock()
	_, ok := s.items[key]
	delete(s.items, key)
	s.Unlock()

	return ok
}

// Count returns the number of stored items.
func (cm *ConcurrentMap) Count() int {
	count := 0

	for _, s := range cm.shards {
		s.RLock()
		count += len(s.items)
		s.RUnlock()
	}

	return count
}

// Clear removes every item.
func (cm *ConcurrentMap) Clear() {
	for _, s := range cm.shards {
		s.Lock()
		s.items = make(map[string]*Item)
		s.Unlock()
	}
}

// Range calls fn with a copy of every item until fn returns false. Shards are visited one at a time.
func (cm *ConcurrentMap) Range(fn func(item *Item) bool) {
	for _, s := range cm.shards {
		s.RLock()

		local := make([]*Item, 0, len(s.items))
		for _, it := range s.items {
			local = append(local, it.Clone())
		}

		s.RUnlock()

		for _, it := range local {
			if !fn(it) {
				return
			}
		}
	}
}
