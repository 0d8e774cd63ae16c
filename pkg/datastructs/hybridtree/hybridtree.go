// Package hybridtree composes the OLC tree with a WorkingSet policy and a
// HotCache to absorb writes to hot key ranges, reconciling them back into
// the tree via a purge/bulk-insert path.
package hybridtree

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mark-i-m/hot-spots/pkg/contract"
	"github.com/mark-i-m/hot-spots/pkg/datastructs/btree"
	"github.com/mark-i-m/hot-spots/pkg/datastructs/hotcache"
	"github.com/mark-i-m/hot-spots/pkg/datastructs/workingset"
	"github.com/mark-i-m/hot-spots/pkg/settings"
)

var _ contract.Tree[int, int] = (*HybridTree[int, int])(nil)

// Key is the key constraint for the hybrid tree: a fixed-width integer,
// wide enough to support the synthetic parent-bound arithmetic the policy
// check needs at the tree's edges, and narrow enough to satisfy both the
// OLC tree's ordering requirement and the cache's hashing requirement.
type Key interface {
	int | uint | int32 | uint32 | int64 | uint64
}

// HybridTree is a concurrent ordered map that diverts writes to hot key
// ranges into an in-memory cache, reconciling them back into an OLC
// B+-tree when the policy's range table fills up.
type HybridTree[K Key, V any] struct {
	tree *btree.Tree[K, V]
	ws   *workingset.WorkingSet[K]
	hc   *hotcache.HotCache[K, V]

	// bigLock governs every policy<->cache transition: readers take it
	// around a policy consultation or cache insertion, writers take it
	// to run a purge. Lookups never take it.
	bigLock sync.RWMutex

	log *zap.Logger
}

// New returns an empty hybrid tree whose working set tracks at most
// policyCapacity ranges and whose cache is sharded across cacheShards
// buckets.
func New[K Key, V any](policyCapacity, cacheShards int, log *zap.Logger) *HybridTree[K, V] {
	if log == nil {
		log = zap.NewNop()
	}
	return &HybridTree[K, V]{
		tree: btree.New[K, V](),
		ws:   workingset.New[K](policyCapacity, log),
		hc:   hotcache.New[K, V](cacheShards),
		log:  log,
	}
}

// NewFromConfig returns an empty hybrid tree sized from cfg's
// PolicyCapacity, sharded across cacheShards cache buckets. cfg.PageSize is
// not consulted: node fan-out is fixed at compile time (see
// btree.DefaultPageSize) rather than threaded through as a runtime option.
func NewFromConfig[K Key, V any](cfg settings.Config, cacheShards int, log *zap.Logger) *HybridTree[K, V] {
	return New[K, V](cfg.PolicyCapacity, cacheShards, log)
}

// Insert associates k with v. A write to a range the policy has marked
// hot is diverted into the cache rather than the tree; everything else
// goes straight into its leaf.
func (h *HybridTree[K, V]) Insert(k K, v V) bool {
	for {
		inserted, retry := h.tryInsert(k, v)
		if !retry {
			return inserted
		}
	}
}

func (h *HybridTree[K, V]) tryInsert(k K, v V) (inserted bool, retry bool) {
	leaf, restart := h.tree.DescendForInsert(k)
	if restart {
		return false, true
	}

	if leaf.IsRoot() {
		added, restart := h.tree.CommitLeafInsert(leaf, k, v)
		if restart {
			return false, true
		}
		return added, false
	}

	minParent, maxParent := h.parentBounds(leaf)

	h.bigLock.RLock()
	if h.ws.NeedsPurge() {
		h.bigLock.RUnlock()
		h.runPurge()
		return false, true
	}

	hot := h.ws.Touch(minParent, maxParent, k)
	if hot {
		h.hc.Insert(k, v)
		h.bigLock.RUnlock()
		return true, false
	}
	h.bigLock.RUnlock()

	added, restart := h.tree.CommitLeafInsert(leaf, k, v)
	if restart {
		return false, true
	}
	return added, false
}

// parentBounds converts the separators bounding a leaf (see
// btree.LeafHandle.Bounds) into the [low, high) range the policy is asked
// about, inventing an edge offset of M where the leaf has no separator on
// one side. An invented bound stops at the key type's minimum or maximum
// instead of wrapping around.
func (h *HybridTree[K, V]) parentBounds(leaf btree.LeafHandle[K, V]) (low, high K) {
	edgeSpan := K(btree.MaxLeafEntries)
	lower, hasLower, upper, hasUpper := leaf.Bounds()
	switch {
	case hasLower && hasUpper:
		return lower, upper
	case hasUpper:
		low = upper - edgeSpan
		if low > upper { // wrapped past the key type's minimum
			for low = upper; low-1 < low; low-- {
			}
		}
		return low, upper
	case hasLower:
		high = lower + edgeSpan
		if high < lower { // wrapped past the key type's maximum
			for high = lower; high+1 > high; high++ {
			}
		}
		return lower, high
	default:
		return 0, edgeSpan
	}
}

// runPurge re-checks needs_purge under the write lock, then moves the
// single coldest tracked range from the cache back into the tree.
func (h *HybridTree[K, V]) runPurge() {
	h.bigLock.Lock()
	defer h.bigLock.Unlock()

	if !h.ws.NeedsPurge() {
		return
	}
	pl, ph, ok := h.ws.PurgeRange()
	if !ok {
		return
	}

	entries := h.hc.SnapshotRange(pl, ph)
	h.log.Debug("purging range",
		zap.Any("low", pl), zap.Any("high", ph), zap.Int("keys", len(entries)))

	pending := make([]btree.KV[K, V], len(entries))
	for i, e := range entries {
		pending[i] = btree.KV[K, V]{Key: e.Key, Value: e.Value}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Key < pending[j].Key })

	h.bulkInsert(pending)

	for _, e := range entries {
		h.hc.Erase(e.Key)
	}
	h.ws.Remove(pl, ph)

	h.log.Debug("purge complete", zap.Any("low", pl), zap.Any("high", ph))
}

// bulkInsert installs a sorted list of (k, v) pairs into the tree,
// amortising leaf locking over runs of keys destined for the same leaf.
func (h *HybridTree[K, V]) bulkInsert(pending []btree.KV[K, V]) {
	for len(pending) > 0 {
		leaf := h.tree.BulkTraverse(pending[0].Key)
		consumed := leaf.Consume(pending)
		leaf.Unlock()

		if consumed == 0 {
			// The head key didn't fit (leaf already full past its
			// upper bound, or is otherwise unconsumable) - fall back to
			// a normal single-key insert, which may trigger a split,
			// then resume bulk consumption on the remainder.
			h.tree.Insert(pending[0].Key, pending[0].Value)
			pending = pending[1:]
			continue
		}
		pending = pending[consumed:]
	}
}

// Lookup returns the value associated with k, if any. A key always lives in
// at least one of the tree and the cache, and can be in both (during a purge,
// or when it was written to the tree before its range was tracked and later
// cached); Lookup checks the cache first, then falls back to the tree.
// Lookups never take the big lock.
func (h *HybridTree[K, V]) Lookup(k K) (V, bool) {
	if v, ok := h.hc.Find(k); ok {
		return v, true
	}
	return h.tree.Lookup(k)
}

// Scan delegates to the underlying tree only. The cache is not consulted:
// a hot key diverted into it may be missed by a concurrent scan, per the
// documented open question on scan-under-hybrid visibility.
func (h *HybridTree[K, V]) Scan(lo, hi K, fn func(K, V) bool) {
	h.tree.Scan(lo, hi, fn)
}
