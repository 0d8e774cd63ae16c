// Package hotcache implements the concurrent key -> value map that absorbs
// writes to hot ranges on behalf of the hybrid tree. It carries no
// ordering of its own; the working set decides which ranges it currently
// holds.
package hotcache

import (
	"sort"
	"sync"

	"github.com/mark-i-m/hot-spots/pkg/datastructs/shardedmap"
	"github.com/mark-i-m/hot-spots/pkg/hash"
)

// Key is the scalar, totally-ordered, hashable key constraint this cache
// accepts - the intersection of what hash.KeyToHash switches on and what
// the < operator supports, which excludes hash.Key's []byte case.
type Key interface {
	uint64 | string | byte | int | uint | int32 | uint32 | int64
}

// HotCache is a thread-safe Key -> Value map built on a sharded-bucket
// map, with a range snapshot operation layered on top for the purge
// path.
type HotCache[K Key, V any] struct {
	m *shardedmap.Map[K, V]

	// snapMu serialises SnapshotRange against itself and nothing else;
	// reads and writes of individual keys still go straight through to
	// the sharded map's own per-bucket locks. It gives SnapshotRange the
	// "brief exclusive acquisition" the design permits, without blocking
	// unrelated keys in other shards for its duration.
	snapMu sync.Mutex
}

// New returns an empty HotCache sharded across shards buckets (rounded up
// to a power of two by the underlying map).
func New[K Key, V any](shards int) *HotCache[K, V] {
	return &HotCache[K, V]{
		m: shardedmap.New[K, V](shards, func(k K) uint64 {
			h, _ := hash.KeyToHash(k)
			return h
		}),
	}
}

// Insert inserts or overwrites the value for k.
func (c *HotCache[K, V]) Insert(k K, v V) {
	c.m.Set(k, v)
}

// Find returns a copy of the value for k, if present.
func (c *HotCache[K, V]) Find(k K) (V, bool) {
	return c.m.Get(k)
}

// Erase removes k.
func (c *HotCache[K, V]) Erase(k K) {
	c.m.Del(k)
}

// Entry is one (key, value) pair returned by SnapshotRange.
type Entry[K Key, V any] struct {
	Key   K
	Value V
}

// SnapshotRange atomically collects every (k, v) with k in [lo, hi),
// sorted ascending by key. "Atomically" here means relative to other
// SnapshotRange calls; ordinary Insert/Erase on unrelated keys from other
// goroutines are not blocked, matching the "brief exclusive acquisition"
// allowance in the design.
func (c *HotCache[K, V]) SnapshotRange(lo, hi K) []Entry[K, V] {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	var out []Entry[K, V]
	c.m.Do(func(k K, v V) {
		if k >= lo && k < hi {
			out = append(out, Entry[K, V]{Key: k, Value: v})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
