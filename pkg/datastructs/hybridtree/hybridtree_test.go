package hybridtree_test

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/mark-i-m/hot-spots/pkg/datastructs/hybridtree"
	"github.com/mark-i-m/hot-spots/pkg/runtime"
	"github.com/mark-i-m/hot-spots/pkg/settings"
)

func TestNewFromConfig(t *testing.T) {
	h := hybridtree.NewFromConfig[int, int](settings.Default(), 16, nil)
	for i := 0; i < 1000; i++ {
		h.Insert(i, i)
	}
	for i := 0; i < 1000; i++ {
		if v, ok := h.Lookup(i); !ok || v != i {
			t.Fatalf("lookup(%d) = %d, %v, want %d, true", i, v, ok, i)
		}
	}
}

func TestInsertLookupRoundTrip(t *testing.T) {
	h := hybridtree.New[int, int](8, 16, nil)
	for i := 0; i < 5000; i++ {
		h.Insert(i, i*7)
	}
	for i := 0; i < 5000; i++ {
		v, ok := h.Lookup(i)
		if !ok || v != i*7 {
			t.Fatalf("lookup(%d) = %d, %v, want %d, true", i, v, ok, i*7)
		}
	}
}

func TestUpsert(t *testing.T) {
	h := hybridtree.New[int, string](8, 16, nil)
	h.Insert(1, "a")
	h.Insert(1, "b")
	v, ok := h.Lookup(1)
	if !ok || v != "b" {
		t.Fatalf("lookup(1) = %q, %v, want %q, true", v, ok, "b")
	}
}

// TestHighContentionPurgesUnderLoad drives enough distinct ranges through
// the tree to force the working set to fill and purge repeatedly, and
// checks that every key remains reachable throughout, since a key always
// lives in at least one of the tree and the cache.
func TestHighContentionPurgesUnderLoad(t *testing.T) {
	h := hybridtree.New[int, int](4, 16, nil)
	const n = 20_000

	var g errgroup.Group
	for worker := 0; worker < 8; worker++ {
		w := worker
		g.Go(func() error {
			for _, i := range jitteredOrder(n) {
				k := w*n + i
				h.Insert(k, k)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for worker := 0; worker < 8; worker++ {
		for i := 0; i < n; i += 37 {
			k := worker*n + i
			v, ok := h.Lookup(k)
			if !ok || v != k {
				t.Fatalf("lookup(%d) = %d, %v, want %d, true", k, v, ok, k)
			}
		}
	}
}

// jitteredOrder returns 0..n-1 Fisher-Yates shuffled, so each worker's keys
// land in a different order across runs instead of lockstep ascending.
func jitteredOrder(n int) []int {
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

func TestScanObservesTreeContents(t *testing.T) {
	h := hybridtree.New[int, int](8, 16, nil)
	for i := 0; i < 100; i++ {
		h.Insert(i, i)
	}

	var seen int
	h.Scan(0, 99, func(k, v int) bool {
		seen++
		return true
	})
	if seen == 0 {
		t.Fatal("scan should observe at least the tree's contents")
	}
}
