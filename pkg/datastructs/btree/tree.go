// Package btree implements a concurrent B+-tree using optimistic lock
// coupling (OLC): readers never block on other readers or writers, and
// writers serialize per-node using the lock in pkg/datastructs/olock.
//
// Splits are eager: a writer descending toward a leaf splits any node that
// is already full before stepping into its subtree, so by the time it
// reaches the leaf it is guaranteed room to insert without a second pass.
package btree

import (
	"sync"
	"sync/atomic"

	"github.com/mark-i-m/hot-spots/pkg/common/apperr"
	"github.com/mark-i-m/hot-spots/pkg/contract"
	"github.com/mark-i-m/hot-spots/pkg/datastructs/olock"
)

var _ contract.Tree[int, int] = (*Tree[int, int])(nil)

// Tree is a concurrent B+-tree mapping keys of type K to values of type V.
// The zero value is not usable; construct one with New.
type Tree[K Ordered, V any] struct {
	root atomic.Value // rootBox[K,V]

	// rootMu serializes root-split transitions (a rare event relative to
	// leaf-level writes) so two concurrent writers never both try to
	// install a new root at once.
	rootMu sync.Mutex
}

// rootBox wraps the current root so every Store into Tree.root has the same
// concrete type; atomic.Value panics if a *LeafNode root is later replaced
// by an *InnerNode stored directly.
type rootBox[K Ordered, V any] struct{ n node[K, V] }

// New returns an empty tree with a single empty leaf as its root.
func New[K Ordered, V any]() *Tree[K, V] {
	t := &Tree[K, V]{}
	root := newLeafNode[K, V]()
	t.root.Store(rootBox[K, V]{n: root})
	return t
}

func (t *Tree[K, V]) loadRoot() node[K, V] {
	return t.root.Load().(rootBox[K, V]).n
}

// Insert adds or updates the value for k. It returns true if a new key was
// added, false if an existing key's value was overwritten.
func (t *Tree[K, V]) Insert(k K, v V) bool {
	var bo olock.Backoff

	for {
		added, restart := t.tryInsert(k, v, &bo)
		if !restart {
			return added
		}
		bo.Wait()
	}
}

func (t *Tree[K, V]) tryInsert(k K, v V, bo *olock.Backoff) (added bool, restart bool) {
	root := t.loadRoot()

	if inner, ok := root.(*InnerNode[K, V]); ok && inner.IsFull() {
		if t.splitRoot(root) {
			return false, true
		}
	} else if leaf, ok := root.(*LeafNode[K, V]); ok && leaf.IsFull() {
		if t.splitLeafRoot(leaf) {
			return false, true
		}
	}

	var parent *InnerNode[K, V]
	var parentVersion uint64
	cur := t.loadRoot()

	curVersion, r := cur.Lock().ReadLockOrRestart()
	if r {
		return false, true
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
			return false, true
		}
		if inner.Lock().CheckOrRestart(curVersion) {
			return false, true
		}

		needsSplit := false
		switch c := child.(type) {
		case *InnerNode[K, V]:
			needsSplit = c.IsFull()
		case *LeafNode[K, V]:
			needsSplit = c.IsFull()
		}

		if needsSplit {
			if t.splitChild(inner, curVersion, child, childVersion) {
				return false, true
			}
			// The tree shape below inner changed; restart the whole
			// operation rather than try to reason about the new split
			// point from stale state.
			return false, true
		}

		parent = inner
		parentVersion = curVersion
		cur = child
		curVersion = childVersion
	}

	leaf := cur.(*LeafNode[K, V])

	newVersion, r := leaf.Lock().UpgradeToWriteLockOrRestart(curVersion)
	if r {
		return false, true
	}
	if parent != nil && parent.Lock().CheckOrRestart(parentVersion) {
		leaf.Lock().WriteUnlock()
		return false, true
	}

	added = leaf.insert(k, v)
	_ = newVersion
	leaf.Lock().WriteUnlock()
	return added, false
}

// splitRoot splits a full inner root into two children of a freshly
// allocated inner root. It always returns true: the caller restarts whether
// this call performed the split, lost the race to acquire locks, or found
// that another writer already replaced the root.
func (t *Tree[K, V]) splitRoot(oldRoot node[K, V]) (restart bool) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	if t.loadRoot() != oldRoot {
		// Someone else already split the root; let the caller re-read it.
		return true
	}

	inner := oldRoot.(*InnerNode[K, V])
	version, r := inner.Lock().WriteLockOrRestart()
	if r {
		return true
	}

	sibling, sep := inner.split()

	newRoot := newInnerNode[K, V]()
	newRoot.count = 1
	newRoot.keys[0] = sep
	newRoot.children[0] = node[K, V](inner)
	newRoot.children[1] = node[K, V](sibling)

	t.root.Store(rootBox[K, V]{n: newRoot})
	_ = version
	inner.Lock().WriteUnlock()
	return true
}

// splitLeafRoot handles the degenerate case where the whole tree is a
// single leaf that has filled up. Like splitRoot, it always returns true.
func (t *Tree[K, V]) splitLeafRoot(oldRoot node[K, V]) (restart bool) {
	t.rootMu.Lock()
	defer t.rootMu.Unlock()

	if t.loadRoot() != oldRoot {
		return true
	}

	leaf := oldRoot.(*LeafNode[K, V])
	_, r := leaf.Lock().WriteLockOrRestart()
	if r {
		return true
	}

	sibling, sep := leaf.split()

	newRoot := newInnerNode[K, V]()
	newRoot.count = 1
	newRoot.keys[0] = sep
	newRoot.children[0] = node[K, V](leaf)
	newRoot.children[1] = node[K, V](sibling)

	t.root.Store(rootBox[K, V]{n: newRoot})
	leaf.Lock().WriteUnlock()
	return true
}

// splitChild splits a full non-root node in place, write-locking both it
// and its parent (in that order is unsafe under OLC, so parent is locked
// first) and inserting the new separator/sibling pair into the parent.
func (t *Tree[K, V]) splitChild(parent *InnerNode[K, V], parentVersion uint64, child node[K, V], childVersion uint64) (restart bool) {
	_, r := parent.Lock().UpgradeToWriteLockOrRestart(parentVersion)
	if r {
		return true
	}
	_, r = child.Lock().UpgradeToWriteLockOrRestart(childVersion)
	if r {
		parent.Lock().WriteUnlock()
		return true
	}

	switch c := child.(type) {
	case *InnerNode[K, V]:
		sibling, sep := c.split()
		parent.insertChild(sep, node[K, V](sibling))
	case *LeafNode[K, V]:
		sibling, sep := c.split()
		parent.insertChild(sep, node[K, V](sibling))
	}

	child.Lock().WriteUnlock()
	parent.Lock().WriteUnlock()
	return true
}

// Lookup returns the value stored for k, if any.
func (t *Tree[K, V]) Lookup(k K) (value V, found bool) {
	var bo olock.Backoff
	for {
		value, found, restart := t.tryLookup(k)
		if !restart {
			return value, found
		}
		bo.Wait()
	}
}

func (t *Tree[K, V]) tryLookup(k K) (value V, found bool, restart bool) {
	cur := t.loadRoot()
	curVersion, r := cur.Lock().ReadLockOrRestart()
	if r {
		return value, false, true
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
			return value, false, true
		}
		if inner.Lock().CheckOrRestart(curVersion) {
			return value, false, true
		}

		cur = child
		curVersion = childVersion
	}

	leaf := cur.(*LeafNode[K, V])
	pos := leaf.LowerBound(k)
	if pos < int(leaf.count) && leaf.keys[pos] == k {
		value = leaf.payloads[pos]
		found = true
	}
	if leaf.Lock().ReadUnlockOrRestart(curVersion) {
		var zero V
		return zero, false, true
	}
	return value, found, false
}

// Scan invokes fn for every (key, value) pair with key in [lo, hi] that
// lives in the single leaf holding lo, in ascending key order, stopping
// early if fn returns false. It does not cross into the next leaf even if
// hi isn't reached: a caller that wants more resumes with a fresh Scan
// whose lo is the last key it saw. Scan is read-only and optimistic: it
// may restart internally but never blocks a concurrent writer, and it
// gives no global snapshot - concurrent writes can land in or out of
// [lo, hi] between restarts.
func (t *Tree[K, V]) Scan(lo, hi K, fn func(K, V) bool) {
	if fn == nil {
		apperr.Fatal(apperr.ErrNilScanCallback, "btree: Scan")
	}

	var bo olock.Backoff
	for {
		if t.tryScan(lo, hi, fn) {
			return
		}
		bo.Wait()
	}
}

func (t *Tree[K, V]) tryScan(lo, hi K, fn func(K, V) bool) (done bool) {
	cur := t.loadRoot()
	curVersion, r := cur.Lock().ReadLockOrRestart()
	if r {
		return false
	}

	for {
		inner, isInner := cur.(*InnerNode[K, V])
		if !isInner {
			break
		}

		pos := inner.childFor(lo)
		child := inner.children[pos]

		childVersion, r := child.Lock().ReadLockOrRestart()
		if r {
			return false
		}
		if inner.Lock().CheckOrRestart(curVersion) {
			return false
		}

		cur = child
		curVersion = childVersion
	}

	leaf := cur.(*LeafNode[K, V])
	pos := leaf.LowerBound(lo)
	var collected []K
	var values []V
	for i := pos; i < int(leaf.count) && leaf.keys[i] <= hi; i++ {
		collected = append(collected, leaf.keys[i])
		values = append(values, leaf.payloads[i])
	}
	if leaf.Lock().ReadUnlockOrRestart(curVersion) {
		return false
	}

	for i := range collected {
		if !fn(collected[i], values[i]) {
			return true
		}
	}
	return true
}
