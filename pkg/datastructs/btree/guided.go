package btree

import (
	"github.com/mark-i-m/hot-spots/pkg/datastructs/olock"
)

// LeafHandle names a leaf located by DescendForInsert: read-locked (not
// yet write-locked), guaranteed to have room for one more insert, along
// with enough parent context for a caller to classify it (root / leftmost
// / rightmost / interior) before deciding whether to actually write into
// it. This is the hook the hybrid tree uses to interleave its policy
// check between "found the target leaf" and "committed the write".
type LeafHandle[K Ordered, V any] struct {
	leaf          *LeafNode[K, V]
	version       uint64
	parent        *InnerNode[K, V]
	parentVersion uint64

	isRoot   bool
	hasLower bool
	lower    K
	hasUpper bool
	upper    K
}

// IsRoot reports whether the located leaf is also the tree's root.
func (h LeafHandle[K, V]) IsRoot() bool { return h.isRoot }

// Bounds returns the nearest separator keys on the descent path bounding this
// leaf, per the same rule that bounds every child (children[i] holds keys <=
// keys[i]): where the leaf is the first or last child of its parent, the
// bound comes from the closest ancestor that has a separator on that side.
// hasLower/hasUpper are false at the tree's leftmost / rightmost edge, where
// no separator exists on that side.
func (h LeafHandle[K, V]) Bounds() (lower K, hasLower bool, upper K, hasUpper bool) {
	return h.lower, h.hasLower, h.upper, h.hasUpper
}

// DescendForInsert walks from the root to the leaf that would own k,
// performing any eager splits along the way exactly as Insert does, but
// stops just short of writing (k, v). On success the returned handle's
// leaf is guaranteed to have room for one more entry. Like Insert, this
// can require several internal restarts; restart is only true if the
// caller's backoff should run before calling again.
func (t *Tree[K, V]) DescendForInsert(k K) (h LeafHandle[K, V], restart bool) {
	root := t.loadRoot()

	if inner, ok := root.(*InnerNode[K, V]); ok && inner.IsFull() {
		return h, t.splitRoot(root)
	}
	if leaf, ok := root.(*LeafNode[K, V]); ok && leaf.IsFull() {
		return h, t.splitLeafRoot(leaf)
	}

	var parent *InnerNode[K, V]
	var parentVersion uint64
	var hasLower, hasUpper bool
	var lower, upper K

	cur := t.loadRoot()
	curVersion, r := cur.Lock().ReadLockOrRestart()
	if r {
		return h, true
	}

	for {
		inner, isInner := cur.(*InnerNode[K, V])
		if !isInner {
			break
		}

		pos := inner.childFor(k)
		child := inner.children[pos]

		childVersion, r := child.Lock().ReadLockOrRestart()
		if r {
			return h, true
		}
		if inner.Lock().CheckOrRestart(curVersion) {
			return h, true
		}

		needsSplit := false
		switch c := child.(type) {
		case *InnerNode[K, V]:
			needsSplit = c.IsFull()
		case *LeafNode[K, V]:
			needsSplit = c.IsFull()
		}
		if needsSplit {
			return h, t.splitChild(inner, curVersion, child, childVersion)
		}

		if pos > 0 {
			hasLower, lower = true, inner.keys[pos-1]
		}
		if pos < int(inner.count) {
			hasUpper, upper = true, inner.keys[pos]
		}

		parent = inner
		parentVersion = curVersion
		cur = child
		curVersion = childVersion
	}

	leaf := cur.(*LeafNode[K, V])
	if leaf.Lock().CheckOrRestart(curVersion) {
		return h, true
	}

	return LeafHandle[K, V]{
		leaf:          leaf,
		version:       curVersion,
		parent:        parent,
		parentVersion: parentVersion,
		isRoot:        parent == nil,
		hasLower:      hasLower,
		lower:         lower,
		hasUpper:      hasUpper,
		upper:         upper,
	}, false
}

// CommitLeafInsert upgrades h's leaf to a write lock (validating the
// parent link is unchanged first) and writes (k, v) into it. restart is
// true if either lock could not be acquired or the parent moved on since
// DescendForInsert observed it; the caller must call DescendForInsert
// again from scratch.
func (t *Tree[K, V]) CommitLeafInsert(h LeafHandle[K, V], k K, v V) (added bool, restart bool) {
	if h.parent != nil && h.parent.Lock().CheckOrRestart(h.parentVersion) {
		return false, true
	}

	_, r := h.leaf.Lock().UpgradeToWriteLockOrRestart(h.version)
	if r {
		return false, true
	}
	if h.parent != nil && h.parent.Lock().CheckOrRestart(h.parentVersion) {
		h.leaf.Lock().WriteUnlock()
		return false, true
	}

	added = h.leaf.insert(k, v)
	h.leaf.Lock().WriteUnlock()
	return added, false
}

// Backoff re-exports olock.Backoff so callers composing on top of this
// package (the hybrid tree) don't need a separate import for the same
// restart discipline.
type Backoff = olock.Backoff
