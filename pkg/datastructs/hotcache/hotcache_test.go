package hotcache_test

import (
	"testing"

	"github.com/mark-i-m/hot-spots/pkg/datastructs/hotcache"
)

func TestInsertFindErase(t *testing.T) {
	c := hotcache.New[int, int](16)

	if _, ok := c.Find(1); ok {
		t.Fatal("find on an empty cache should miss")
	}

	c.Insert(1, 100)
	v, ok := c.Find(1)
	if !ok || v != 100 {
		t.Fatalf("find(1) = %d, %v, want 100, true", v, ok)
	}

	c.Insert(1, 200)
	v, ok = c.Find(1)
	if !ok || v != 200 {
		t.Fatalf("find(1) after overwrite = %d, %v, want 200, true", v, ok)
	}

	c.Erase(1)
	if _, ok := c.Find(1); ok {
		t.Fatal("find after erase should miss")
	}
}

// TestSnapshotRange reproduces the literal range-snapshot scenario.
func TestSnapshotRange(t *testing.T) {
	c := hotcache.New[int, int](16)
	for k := 1; k <= 5; k++ {
		c.Insert(k, 3*k)
	}
	c.Insert(100, 999) // outside the requested range

	got := c.SnapshotRange(0, 10)
	if len(got) != 5 {
		t.Fatalf("snapshot_range(0,10) returned %d pairs, want 5", len(got))
	}
	for i, e := range got {
		wantKey := i + 1
		if e.Key != wantKey || e.Value != 3*wantKey {
			t.Fatalf("entry %d = (%d,%d), want (%d,%d)", i, e.Key, e.Value, wantKey, 3*wantKey)
		}
	}
}

func TestSnapshotRangeEmpty(t *testing.T) {
	c := hotcache.New[int, int](16)
	got := c.SnapshotRange(0, 10)
	if len(got) != 0 {
		t.Fatalf("snapshot_range on an empty cache returned %d pairs, want 0", len(got))
	}
}
