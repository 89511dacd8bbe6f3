/*
	Package cache provides the CPU-side brick cache: a byte-budgeted store of brick
	buffers read from datasets so repeated uploads of the same brick skip the dataset.

	The cache is not safe for concurrent use.  Eviction is least recently used,
	which is deterministic for a fixed sequence of operations.
*/
package cache

import (
	"github.com/golang/groupcache/lru"

	"github.com/tuvok/tuvok/tuvok"
)

// DatasetID identifies one loaded dataset.  Two datasets opened from files with
// the same base name get distinct ids.
type DatasetID uint64

// Key identifies a cached brick.
type Key struct {
	Dataset DatasetID
	Brick   tuvok.BrickKey
}

// Stats are cumulative cache counters plus the current residency.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     uint64
	Capacity  uint64
}

// BrickCache holds brick buffers up to a byte capacity.
type BrickCache struct {
	lru      *lru.Cache
	size     uint64
	capacity uint64

	// index lists the cached bricks of each dataset.
	index map[DatasetID]map[tuvok.BrickKey]struct{}

	hits, misses, evictions uint64
}

// New returns a cache holding at most capacity bytes.  A capacity of 0 means
// no limit.
func New(capacity uint64) *BrickCache {
	c := &BrickCache{
		lru:      lru.New(0),
		capacity: capacity,
		index:    make(map[DatasetID]map[tuvok.BrickKey]struct{}),
	}
	c.lru.OnEvicted = c.onEvicted
	return c
}

func (c *BrickCache) onEvicted(k lru.Key, value interface{}) {
	key := k.(Key)
	c.size -= uint64(len(value.([]byte)))
	if bricks, found := c.index[key.Dataset]; found {
		delete(bricks, key.Brick)
		if len(bricks) == 0 {
			delete(c.index, key.Dataset)
		}
	}
}

// Add inserts or replaces the buffer for key, evicting least recently used
// entries until it fits.  The cache keeps data without copying, so the caller
// must not modify it afterwards.  Buffers larger than the whole capacity are not
// cached and Add returns false.
func (c *BrickCache) Add(key Key, data []byte) bool {
	n := uint64(len(data))
	if c.capacity != 0 && n > c.capacity {
		tuvok.Debugf("Brick %s of dataset %d (%s) exceeds brick cache capacity %s, not caching.\n",
			key.Brick, key.Dataset, tuvok.ByteSize(n), tuvok.ByteSize(c.capacity))
		return false
	}
	if _, found := c.lru.Get(key); found {
		c.lru.Remove(key)
	}
	for c.capacity != 0 && c.size+n > c.capacity && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
		c.evictions++
	}
	c.lru.Add(key, data)
	c.size += n
	bricks, found := c.index[key.Dataset]
	if !found {
		bricks = make(map[tuvok.BrickKey]struct{})
		c.index[key.Dataset] = bricks
	}
	bricks[key.Brick] = struct{}{}
	return true
}

// Lookup returns the cached buffer for key without copying it.  The buffer
// stays owned by the cache and must not be modified.
func (c *BrickCache) Lookup(key Key) ([]byte, bool) {
	v, found := c.lru.Get(key)
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	return v.([]byte), true
}

// Remove evicts the least recently used entry.  It returns false if the cache
// was empty.
func (c *BrickCache) Remove() bool {
	if c.lru.Len() == 0 {
		return false
	}
	c.lru.RemoveOldest()
	c.evictions++
	return true
}

// RemoveKey drops the entry for key if present.
func (c *BrickCache) RemoveKey(key Key) {
	c.lru.Remove(key)
}

// RemoveDataset drops every entry of the given dataset and returns how many
// were dropped.
func (c *BrickCache) RemoveDataset(id DatasetID) int {
	bricks := c.index[id]
	keys := make([]Key, 0, len(bricks))
	for b := range bricks {
		keys = append(keys, Key{Dataset: id, Brick: b})
	}
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return len(keys)
}

// Clear drops every entry.
func (c *BrickCache) Clear() {
	c.lru.Clear()
	c.size = 0
	c.index = make(map[DatasetID]map[tuvok.BrickKey]struct{})
}

// Size returns the number of bytes held.
func (c *BrickCache) Size() uint64 {
	return c.size
}

// Len returns the number of entries.
func (c *BrickCache) Len() int {
	return c.lru.Len()
}

// Capacity returns the byte capacity, 0 if unlimited.
func (c *BrickCache) Capacity() uint64 {
	return c.capacity
}

// SetCapacity changes the capacity, evicting entries until the cache fits.
func (c *BrickCache) SetCapacity(capacity uint64) {
	c.capacity = capacity
	for capacity != 0 && c.size > capacity {
		if !c.Remove() {
			break
		}
	}
}

func (c *BrickCache) Stats() Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.lru.Len(),
		Bytes:     c.size,
		Capacity:  c.capacity,
	}
}
