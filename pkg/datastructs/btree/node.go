package btree

import (
	"github.com/mark-i-m/hot-spots/pkg/datastructs/olock"
)

// kind tags a node as an inner or leaf page.
type kind uint8

const (
	kindInner kind = 1
	kindLeaf  kind = 2
)

// header is the common prefix of every tree node: its optimistic lock, its
// kind tag, and its entry count. Every InnerNode and LeafNode embeds one.
type header struct {
	lock  olock.OptLock
	kind  kind
	count uint16
}

func (h *header) Lock() *olock.OptLock { return &h.lock }
func (h *header) Kind() kind           { return h.kind }

// node is satisfied by *InnerNode[K,V] and *LeafNode[K,V]. An InnerNode's
// children are stored as node[K,V] so a single child array can hold either
// kind, mirroring the tagged NodeBase pointer in the reference
// implementation.
type node[K Ordered, V any] interface {
	Lock() *olock.OptLock
	Kind() kind
}

// InnerNode holds up to maxInnerEntries-1 ascending separator keys and
// maxInnerEntries child pointers. children[i] owns every key <= keys[i];
// children[count] owns every key > keys[count-1].
type InnerNode[K Ordered, V any] struct {
	header
	keys     [maxInnerEntries]K
	children [maxInnerEntries]node[K, V]
}

// LeafNode holds up to maxLeafEntries (key, value) pairs in parallel arrays,
// sorted ascending by key.
type LeafNode[K Ordered, V any] struct {
	header
	keys     [maxLeafEntries]K
	payloads [maxLeafEntries]V
}

func newInnerNode[K Ordered, V any]() *InnerNode[K, V] {
	n := &InnerNode[K, V]{}
	n.kind = kindInner
	return n
}

func newLeafNode[K Ordered, V any]() *LeafNode[K, V] {
	n := &LeafNode[K, V]{}
	n.kind = kindLeaf
	return n
}

// IsFull reports whether one more insert would overflow this inner node.
func (n *InnerNode[K, V]) IsFull() bool {
	return int(n.count) == maxInnerEntries-1
}

// IsFull reports whether one more insert would overflow this leaf.
func (n *LeafNode[K, V]) IsFull() bool {
	return int(n.count) == maxLeafEntries
}

// lowerBound returns the smallest index i with keys[i] >= k, using binary
// search over the first count entries. Ties return the exact match index.
func lowerBound[K Ordered](keys []K, count int, k K) int {
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case keys[mid] < k:
			lo = mid + 1
		case keys[mid] > k:
			hi = mid
		default:
			return mid
		}
	}
	return lo
}

// LowerBound exposes lowerBound for inner nodes.
func (n *InnerNode[K, V]) LowerBound(k K) int {
	return lowerBound(n.keys[:n.count], int(n.count), k)
}

// LowerBound exposes lowerBound for leaves.
func (n *LeafNode[K, V]) LowerBound(k K) int {
	return lowerBound(n.keys[:n.count], int(n.count), k)
}

// childFor returns the index of the child that owns k.
func (n *InnerNode[K, V]) childFor(k K) int {
	pos := n.LowerBound(k)
	if pos < int(n.count) && n.keys[pos] == k {
		return pos
	}
	return pos
}

// insertChild inserts separator k and child into this (not-full) inner
// node, keeping keys ascending. Used only by the split/eager-split
// protocol, which always already holds this node's write lock.
func (n *InnerNode[K, V]) insertChild(k K, child node[K, V]) {
	pos := n.LowerBound(k)
	copy(n.keys[pos+1:n.count+1], n.keys[pos:n.count])
	copy(n.children[pos+2:n.count+2], n.children[pos+1:n.count+1])
	n.keys[pos] = k
	n.children[pos+1] = child
	n.count++
}

// split moves the upper half of this inner node's entries into a freshly
// allocated sibling and returns it along with the separator key that
// should be pushed up into the parent.
func (n *InnerNode[K, V]) split() (sibling *InnerNode[K, V], sep K) {
	sib := newInnerNode[K, V]()
	mid := int(n.count) / 2
	sep = n.keys[mid]

	sib.count = n.count - uint16(mid) - 1
	copy(sib.keys[:sib.count], n.keys[mid+1:n.count])
	copy(sib.children[:sib.count+1], n.children[mid+1:n.count+1])

	n.count = uint16(mid)
	return sib, sep
}

// insert inserts (k, v) into this (not-full) leaf, upserting if k is
// already present. Returns true if a new entry was added (as opposed to an
// overwrite).
func (n *LeafNode[K, V]) insert(k K, v V) (added bool) {
	pos := n.LowerBound(k)
	if pos < int(n.count) && n.keys[pos] == k {
		n.payloads[pos] = v
		return false
	}
	copy(n.keys[pos+1:n.count+1], n.keys[pos:n.count])
	copy(n.payloads[pos+1:n.count+1], n.payloads[pos:n.count])
	n.keys[pos] = k
	n.payloads[pos] = v
	n.count++
	return true
}

// remove deletes the entry for k, if present, shifting later entries down.
func (n *LeafNode[K, V]) remove(k K) (removed bool) {
	pos := n.LowerBound(k)
	if pos >= int(n.count) || n.keys[pos] != k {
		return false
	}
	copy(n.keys[pos:n.count-1], n.keys[pos+1:n.count])
	copy(n.payloads[pos:n.count-1], n.payloads[pos+1:n.count])
	n.count--
	return true
}

// split moves the upper half of this leaf's entries into a freshly
// allocated sibling and returns it along with the separator key, which is
// the last (maximum) key retained on this node.
func (n *LeafNode[K, V]) split() (sibling *LeafNode[K, V], sep K) {
	sib := newLeafNode[K, V]()
	mid := int(n.count) / 2

	sib.count = n.count - uint16(mid)
	copy(sib.keys[:sib.count], n.keys[mid:n.count])
	copy(sib.payloads[:sib.count], n.payloads[mid:n.count])

	n.count = uint16(mid)
	sep = n.keys[n.count-1]
	return sib, sep
}
