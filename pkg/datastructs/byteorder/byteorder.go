// Package byteorder implements the byte-reordering tree variant: a thin
// wrapper over the OLC tree that swaps the most- and least-significant
// bytes of every key before it touches the tree.
//
// The swap is a self-inverse involution (applying it twice is the
// identity) and preserves injectivity, so point lookups stay correct.
// It does not preserve order, so range scans are not supported - a
// monotonically increasing insert stream is spread uniformly across
// leaves instead of concentrating on the rightmost one.
//
// Restricted to uint64 keys: the swap is only meaningful for a
// fixed-width scalar key, and uint64 is the width the design's own
// examples use.
package byteorder

import (
	"github.com/mark-i-m/hot-spots/pkg/contract"
	"github.com/mark-i-m/hot-spots/pkg/datastructs/btree"
)

var _ contract.Tree[uint64, int] = (*Tree[int])(nil)

// Tree wraps a btree.Tree[uint64, V], reordering keys on every operation.
type Tree[V any] struct {
	inner *btree.Tree[uint64, V]
}

// New returns an empty byte-reordering tree.
func New[V any]() *Tree[V] {
	return &Tree[V]{inner: btree.New[uint64, V]()}
}

// swap exchanges the most- and least-significant bytes of k.
func swap(k uint64) uint64 {
	msb := (k >> 56) & 0xff
	lsb := k & 0xff
	return (k &^ (0xff<<56 | 0xff)) | (lsb << 56) | msb
}

// Insert associates k with v, upserting if k is already present.
func (t *Tree[V]) Insert(k uint64, v V) bool {
	return t.inner.Insert(swap(k), v)
}

// Lookup returns the value associated with k, if any.
func (t *Tree[V]) Lookup(k uint64) (V, bool) {
	return t.inner.Lookup(swap(k))
}

// Scan is not supported: the byte swap destroys key order, so a range
// scan over user keys has no meaningful bound to internal keys. Present
// only to satisfy pkg/contract.Tree; it always returns without invoking
// fn.
func (t *Tree[V]) Scan(lo, hi uint64, fn func(uint64, V) bool) {
	_ = lo
	_ = hi
	_ = fn
}
