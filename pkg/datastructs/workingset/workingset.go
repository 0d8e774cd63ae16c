// Package workingset implements the approximate-LRU policy layer that
// tracks hot key ranges for the hybrid tree. It never materialises a
// linked list; recency is tracked with a single atomic monotonic counter
// per slot, following the reference implementation's counter-based MRU.
package workingset

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mark-i-m/hot-spots/pkg/common/apperr"
)

// Ordered is the range-endpoint constraint: any totally ordered scalar.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~string
}

type slot[K Ordered] struct {
	low, high K
	used      bool
}

func (s slot[K]) contains(k K) bool {
	return s.used && s.low <= k && k < s.high
}

func (s slot[K]) overlaps(lo, hi K) bool {
	if !s.used {
		return false
	}
	// A candidate [lo,hi) overlaps s if either endpoint lands strictly
	// inside s, or s lands inside the candidate - any intersection,
	// including an exact re-registration of the same range, is rejected.
	return lo < s.high && hi > s.low
}

// WorkingSet tracks at most capacity disjoint key ranges and their
// approximate recency.
type WorkingSet[K Ordered] struct {
	mu         sync.RWMutex
	capacity   int
	slots      []slot[K]
	counters   []atomic.Int64
	size       atomic.Int32
	next       atomic.Int64
	needsPurge atomic.Bool
	log        *zap.Logger
}

// New returns an empty WorkingSet that tracks at most capacity ranges.
func New[K Ordered](capacity int, log *zap.Logger) *WorkingSet[K] {
	if capacity <= 0 {
		capacity = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &WorkingSet[K]{
		capacity: capacity,
		slots:    make([]slot[K], capacity),
		counters: make([]atomic.Int64, capacity),
		log:      log,
	}
	w.next.Store(1)
	return w
}

// locate returns the index of the used slot containing k, or -1. Callers
// must hold mu (read or write).
func (w *WorkingSet[K]) locate(k K) int {
	for i := range w.slots {
		if w.slots[i].contains(k) {
			return i
		}
	}
	return -1
}

// bump publishes a fresh MRU timestamp into slot i. The store is
// deliberately not part of the same atomic operation as the fetch-add, so
// two concurrent bumps on the same slot can interleave and leave a
// slightly stale counter - an accepted, documented race (see the MRU-race
// open question).
func (w *WorkingSet[K]) bump(i int) {
	n := w.next.Add(1)
	w.counters[i].Store(n)
}

// Touch reports whether k falls in an already-tracked range, bumping its
// recency if so. If not, it attempts to register [kl, kh) as a new hot
// range, evicting nothing itself - a full policy only flags needs_purge. A
// range that does not contain k is not registered, and Touch reports false.
func (w *WorkingSet[K]) Touch(kl, kh, k K) bool {
	if kh < kl {
		apperr.Fatal(apperr.ErrNegativeRange, "workingset: Touch")
	}

	w.mu.RLock()
	if idx := w.locate(k); idx >= 0 {
		w.bump(idx)
		w.mu.RUnlock()
		return true
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	if idx := w.locate(k); idx >= 0 {
		w.bump(idx)
		return true
	}

	if k < kl || !(k < kh) {
		return false
	}

	if int(w.size.Load()) == w.capacity {
		w.needsPurge.Store(true)
		w.log.Warn("working set full, deferring insert",
			zap.Any("low", kl), zap.Any("high", kh))
		return false
	}

	for i := range w.slots {
		if w.slots[i].overlaps(kl, kh) {
			w.log.Warn("rejected overlapping range",
				zap.Any("low", kl), zap.Any("high", kh))
			return false
		}
	}

	freeIdx := -1
	for i := range w.slots {
		if !w.slots[i].used {
			freeIdx = i
			break
		}
	}
	if freeIdx < 0 {
		// size said there was room; this would be a bookkeeping bug.
		w.needsPurge.Store(true)
		return false
	}

	w.slots[freeIdx] = slot[K]{low: kl, high: kh, used: true}
	w.size.Add(1)
	w.bump(freeIdx)
	return true
}

// NeedsPurge reports whether the policy is full and has refused at least
// one touch since the last purge.
func (w *WorkingSet[K]) NeedsPurge() bool {
	return int(w.size.Load()) == w.capacity && w.needsPurge.Load()
}

// PurgeRange returns the least-recently-touched tracked range. Must be
// called only while the caller holds its own lock for writing (the
// hybrid tree's big lock).
func (w *WorkingSet[K]) PurgeRange() (lo, hi K, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	minIdx := -1
	var minVal int64
	for i := range w.slots {
		if !w.slots[i].used {
			continue
		}
		v := w.counters[i].Load()
		if v <= 0 {
			continue
		}
		if minIdx < 0 || v < minVal {
			minIdx, minVal = i, v
		}
	}
	if minIdx < 0 {
		return lo, hi, false
	}
	return w.slots[minIdx].low, w.slots[minIdx].high, true
}

// Remove un-registers the range [kl, kh), freeing its slot and clearing
// the needs-purge flag. Must be called only under the caller's write lock.
func (w *WorkingSet[K]) Remove(kl, kh K) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.slots {
		if w.slots[i].used && w.slots[i].low == kl && w.slots[i].high == kh {
			w.slots[i] = slot[K]{}
			w.counters[i].Store(0)
			w.size.Add(-1)
			w.needsPurge.Store(false)
			return
		}
	}
}
