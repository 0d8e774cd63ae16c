package btree_test

import (
	"math"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/mark-i-m/hot-spots/pkg/datastructs/btree"
	"github.com/mark-i-m/hot-spots/pkg/runtime"
)

// =============================================================================
// Basic insert/lookup
// =============================================================================

func TestInsertLookup(t *testing.T) {
	tests := []struct {
		name string
		keys []int
	}{
		{"single", []int{42}},
		{"ascending", []int{1, 2, 3, 4, 5}},
		{"descending", []int{5, 4, 3, 2, 1}},
		{"enough_to_split", seqRange(0, 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := btree.New[int, int]()
			for _, k := range tt.keys {
				tr.Insert(k, k*2)
			}
			for _, k := range tt.keys {
				v, ok := tr.Lookup(k)
				if !ok {
					t.Fatalf("lookup(%d) missing", k)
				}
				if v != k*2 {
					t.Fatalf("lookup(%d) = %d, want %d", k, v, k*2)
				}
			}
		})
	}
}

func TestLookupAbsent(t *testing.T) {
	tr := btree.New[int, string]()
	tr.Insert(1, "a")
	if _, ok := tr.Lookup(2); ok {
		t.Fatal("lookup found a key that was never inserted")
	}
}

func TestUpsert(t *testing.T) {
	tr := btree.New[int, string]()
	if added := tr.Insert(1, "a"); !added {
		t.Fatal("first insert should report added=true")
	}
	if added := tr.Insert(1, "b"); added {
		t.Fatal("second insert of the same key should report added=false")
	}
	v, ok := tr.Lookup(1)
	if !ok || v != "b" {
		t.Fatalf("lookup(1) = %q, %v, want %q, true", v, ok, "b")
	}
}

func TestMinimumKey(t *testing.T) {
	tr := btree.New[int, int]()
	tr.Insert(math.MinInt, 1)
	v, ok := tr.Lookup(math.MinInt)
	if !ok || v != 1 {
		t.Fatalf("lookup(min) = %d, %v, want 1, true", v, ok)
	}
}

// =============================================================================
// Bulk insert over an empty tree (scenario 1)
// =============================================================================

func TestBulkInsertSequential(t *testing.T) {
	const n = 100_000
	tr := btree.New[int, int]()
	for i := 0; i < n; i++ {
		tr.Insert(i, i)
	}
	for i := 0; i < n; i++ {
		v, ok := tr.Lookup(i)
		if !ok || v != i {
			t.Fatalf("lookup(%d) = %d, %v, want %d, true", i, v, ok, i)
		}
	}
}

// =============================================================================
// Scan
// =============================================================================

func TestScanWithinOneLeaf(t *testing.T) {
	tr := btree.New[int, int]()
	for _, k := range seqRange(0, 50) {
		tr.Insert(k, k)
	}

	var got []int
	tr.Scan(10, 30, func(k, v int) bool {
		got = append(got, k)
		return true
	})
	if len(got) != 21 {
		t.Fatalf("scan(10,30) returned %d keys, want 21", len(got))
	}
	for i, k := range got {
		if k != 10+i {
			t.Fatalf("scan out of order at index %d: got %d", i, k)
		}
	}
}

// TestScanStopsAtLeafBoundary confirms Scan never crosses into the next
// leaf on its own: a range wide enough to span many leaves still returns
// only the prefix living in the leaf holding lo.
func TestScanStopsAtLeafBoundary(t *testing.T) {
	const n = 2000
	tr := btree.New[int, int]()
	for _, k := range seqRange(0, n) {
		tr.Insert(k, k)
	}

	var got []int
	tr.Scan(0, n-1, func(k, v int) bool {
		got = append(got, k)
		return true
	})

	if len(got) == 0 || len(got) >= n {
		t.Fatalf("scan(0,%d) returned %d keys, want a single leaf's worth (strictly between 0 and %d)", n-1, len(got), n)
	}
	for i, k := range got {
		if k != i {
			t.Fatalf("scan out of order at index %d: got %d", i, k)
		}
	}
}

// TestScanResumptionCoversAllKeys drives the caller-resumed scan loop: each
// call picks up where the last one stopped, and the union of every call's
// results is every key, in order, with no gaps or repeats.
func TestScanResumptionCoversAllKeys(t *testing.T) {
	const n = 2000
	tr := btree.New[int, int]()
	for _, k := range seqRange(0, n) {
		tr.Insert(k, k)
	}

	var got []int
	lo := 0
	for len(got) < n {
		before := len(got)
		tr.Scan(lo, n-1, func(k, v int) bool {
			got = append(got, k)
			return true
		})
		if len(got) == before {
			t.Fatalf("scan(%d,%d) made no progress", lo, n-1)
		}
		lo = got[len(got)-1] + 1
	}

	if len(got) != n {
		t.Fatalf("resumed scan collected %d keys, want %d", len(got), n)
	}
	for i, k := range got {
		if k != i {
			t.Fatalf("resumed scan out of order at index %d: got %d", i, k)
		}
	}
}

func TestScanEarlyStop(t *testing.T) {
	tr := btree.New[int, int]()
	for _, k := range seqRange(0, 2000) {
		tr.Insert(k, k)
	}

	var got []int
	tr.Scan(0, 1999, func(k, v int) bool {
		got = append(got, k)
		return len(got) < 5
	})
	if len(got) != 5 {
		t.Fatalf("scan did not stop early: got %d keys", len(got))
	}
}

// =============================================================================
// Concurrency (scenarios 3 and 4)
// =============================================================================

func TestConcurrentHighContentionOneLeaf(t *testing.T) {
	tr := btree.New[uint64, uint64]()
	const threads = 10
	const opsPerThread = 20_000
	const span = 4000

	var g errgroup.Group
	for th := 0; th < threads; th++ {
		g.Go(func() error {
			for i := 0; i < opsPerThread; i++ {
				// Jittered rather than round-robin, so threads don't settle
				// into a lockstep access pattern across the shared span.
				k := uint64(0xDEADBEEF) + uint64(runtime.Uint32n(span))
				tr.Insert(k, 0xCAFEBABE)
				if v, ok := tr.Lookup(k); !ok || v != 0xCAFEBABE {
					return errUnexpectedLookup(k, v, ok)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentSequentialInsertion(t *testing.T) {
	tr := btree.New[int, int]()
	const threads = 10
	const n = 50_000

	var g errgroup.Group
	for th := 0; th < threads; th++ {
		g.Go(func() error {
			for _, i := range jitteredPermutation(n) {
				tr.Insert(i, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		v, ok := tr.Lookup(i)
		if !ok || v != i {
			t.Fatalf("lookup(%d) = %d, %v, want %d, true", i, v, ok, i)
		}
	}
}

// jitteredPermutation returns 0..n-1 in a Fisher-Yates shuffled order, so
// concurrent threads race to insert the same key set via different paths
// through the tree instead of all converging on the same ascending one.
func jitteredPermutation(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := int(runtime.Uint32n(uint32(i + 1)))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// =============================================================================
// Caller precondition violations
// =============================================================================

func TestScanNilCallbackPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Scan with a nil callback should panic")
		}
	}()

	tr := btree.New[int, int]()
	tr.Insert(1, 1)
	tr.Scan(0, 10, nil)
}

func seqRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func errUnexpectedLookup(k, v uint64, ok bool) error {
	return &lookupMismatchError{k: k, v: v, ok: ok}
}

type lookupMismatchError struct {
	k, v uint64
	ok   bool
}

func (e *lookupMismatchError) Error() string {
	if !e.ok {
		return "lookup missing key that was just inserted"
	}
	return "lookup returned stale value after insert"
}
