package tile

import (
	"errors"
	"math/rand"
	"testing"

	"terrainforge.dev/internal/biome"
)

func flatTile(x, z int) *Tile {
	return New(GridPosition{X: x, Z: z}, 2, 1, []float64{0, 0, 0, 0}, biome.Map{})
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []*Tile
	c := NewCache(3, func(t *Tile) {
		evicted = append(evicted, t)
		t.Destroy()
	})
	a, b, cc, d := flatTile(0, 0), flatTile(1, 0), flatTile(2, 0), flatTile(3, 0)
	for _, tl := range []*Tile{a, b, cc, d} {
		c.Insert(tl)
	}

	if c.Len() != 3 {
		t.Fatalf("Len=%d want 3", c.Len())
	}
	if len(evicted) != 1 || evicted[0] != a {
		t.Fatalf("evicted=%v want [A]", evicted)
	}
	if !a.Destroyed() || a.Heights() != nil {
		t.Fatalf("evicted tile still holds data")
	}
	if _, err := c.Get(a.Position()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(A) err=%v want ErrNotFound", err)
	}
	for _, tl := range []*Tile{b, cc, d} {
		if !c.Contains(tl.Position()) {
			t.Fatalf("%v missing", tl.Position())
		}
	}
}

func TestCacheStampsLastAccess(t *testing.T) {
	c := NewCache(3, nil)
	a, b := flatTile(0, 0), flatTile(1, 0)
	c.Insert(a)
	c.Insert(b)
	if a.LastAccess() == 0 || b.LastAccess() <= a.LastAccess() {
		t.Fatalf("insert stamps: a=%d b=%d", a.LastAccess(), b.LastAccess())
	}
	if _, err := c.Get(a.Position()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.LastAccess() <= b.LastAccess() {
		t.Fatalf("Get did not refresh LastAccess: a=%d b=%d", a.LastAccess(), b.LastAccess())
	}
}

func TestCacheGetRefreshes(t *testing.T) {
	c := NewCache(3, nil)
	a, b, cc, d := flatTile(0, 0), flatTile(0, 1), flatTile(0, 2), flatTile(0, 3)
	c.Insert(a)
	c.Insert(b)
	c.Insert(cc)
	if got, err := c.Get(a.Position()); err != nil || got != a {
		t.Fatalf("Get(A)=%v,%v", got, err)
	}
	c.Insert(d)
	if c.Contains(b.Position()) {
		t.Fatalf("B should have been evicted after A was refreshed")
	}
	if !b.Destroyed() {
		t.Fatalf("default eviction hook did not destroy B")
	}
	want := []GridPosition{d.Position(), a.Position(), cc.Position()}
	got := c.Positions()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Positions=%v want %v", got, want)
		}
	}
}

func TestCacheTakeTransfersOwnership(t *testing.T) {
	c := NewCache(2, nil)
	a := flatTile(5, 5)
	c.Insert(a)
	got, err := c.Take(a.Position())
	if err != nil || got != a {
		t.Fatalf("Take=%v,%v", got, err)
	}
	if c.Len() != 0 || a.Destroyed() {
		t.Fatalf("Take left state behind: len=%d destroyed=%v", c.Len(), a.Destroyed())
	}
	if _, err := c.Take(a.Position()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Take err=%v", err)
	}
}

func TestCacheNeverExceedsCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, capacity := range []int{0, 1, 4, 16} {
		c := NewCache(capacity, nil)
		for i := 0; i < 2000; i++ {
			pos := GridPosition{X: rng.Intn(12), Z: rng.Intn(12)}
			switch rng.Intn(3) {
			case 0:
				c.Insert(flatTile(pos.X, pos.Z))
			case 1:
				_, _ = c.Get(pos)
			default:
				_, _ = c.Take(pos)
			}
			if c.Len() > capacity {
				t.Fatalf("capacity %d: Len=%d", capacity, c.Len())
			}
		}
	}
}

func TestCacheReplaceAndClear(t *testing.T) {
	c := NewCache(4, nil)
	old := flatTile(1, 1)
	c.Insert(old)
	c.Insert(old)
	if old.Destroyed() {
		t.Fatalf("re-inserting the same tile destroyed it")
	}
	fresh := flatTile(1, 1)
	c.Insert(fresh)
	if !old.Destroyed() || c.Len() != 1 {
		t.Fatalf("replacement did not evict the old tile")
	}
	c.Insert(flatTile(2, 2))
	c.Clear()
	if c.Len() != 0 || !fresh.Destroyed() {
		t.Fatalf("Clear left %d tiles", c.Len())
	}
}
