package container

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/longbridgeapp/assert"
)

func TestShardIndexInRange(t *testing.T) {
	for _, key := range []string{"", "a", "test", "very_long_key_to_test_hash_distribution"} {
		if idx := shardIndex(key); idx >= ShardCount32 {
			t.Fatalf("shard index %d for %q exceeds %d", idx, key, ShardCount32)
		}
	}
}

func TestContainerPutBumpsVersion(t *testing.T) {
	c := New()

	first := c.Put("k", "v1", "A")
	second := c.Put("k", "v2", "B")

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(2), second.Version)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v2", got.Value)
	assert.Equal(t, "B", got.Origin)

	// copies never alias the stored item
	got.Value = "mutated"
	again, _ := c.Get("k")
	assert.Equal(t, "v2", again.Value)
}

func TestContainerRestoreKeepsNewer(t *testing.T) {
	c := New()
	c.Put("k", "v1", "A")
	c.Put("k", "v2", "A")

	c.Restore(&Item{Key: "k", Value: "old", Version: 1})

	got, _ := c.Get("k")
	assert.Equal(t, "v2", got.Value)

	c.Restore(&Item{Key: "k", Value: "new", Version: 9})

	got, _ = c.Get("k")
	assert.Equal(t, "new", got.Value)
	assert.Equal(t, uint64(9), got.Version)
}

func TestContainerKeysAndClear(t *testing.T) {
	c := New()
	for i := range 40 {
		c.Put(fmt.Sprintf("key-%02d", i), i, "A")
	}

	c.Put("{g}:a", 1, "A")
	c.Put("{g}:b", 2, "A")

	assert.Equal(t, 42, c.Len())
	assert.Equal(t, []string{"{g}:a", "{g}:b"}, c.Keys(func(k string) bool { return strings.HasPrefix(k, "{g}") }))

	items := c.Items(context.Background(), func(k string) bool { return strings.HasPrefix(k, "{g}") })
	assert.Equal(t, 2, len(items))
	assert.Equal(t, "{g}:a", items[0].Key)

	assert.True(t, c.Remove("{g}:a"))
	assert.False(t, c.Remove("{g}:a"))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentPuts(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				c.Put(fmt.Sprintf("k%d", i), w, "A")
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 100, c.Len())

	got, ok := c.Get("k0")
	assert.True(t, ok)
	assert.Equal(t, uint64(8), got.Version)
}

func TestItemValid(t *testing.T) {
	assert.True(t, (&Item{Key: " ", Value: 1}).Valid() != nil)
	assert.True(t, (&Item{Key: "k"}).Valid() != nil)
	assert.NoError(t, (&Item{Key: "k", Value: 1}).Valid())
}
