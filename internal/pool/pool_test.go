package pool

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/scatter"
	"terrainforge.dev/internal/tile"
)

func TestContainerReusesInactive(t *testing.T) {
	c := NewContainer("rock", "rock.prefab", nil)
	a := c.GetObject(tile.GridPosition{X: 1})
	b := c.GetObject(tile.GridPosition{X: 1})
	if a.ID == b.ID || !a.Active() {
		t.Fatalf("fresh instances: %v %v", a.ID, b.ID)
	}
	if !c.RemoveObject(a) || a.Active() {
		t.Fatalf("RemoveObject failed")
	}
	again := c.GetObject(tile.GridPosition{X: 2})
	if again != a {
		t.Fatalf("inactive instance not reused")
	}
	if again.Parent != (tile.GridPosition{X: 2}) || !again.Active() {
		t.Fatalf("reused instance not reparented: %+v", again)
	}
	if s := c.Stats(); s.Created != 2 || s.Active != 2 || s.Inactive != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestContainerRemoveUntrackedWarns(t *testing.T) {
	var buf bytes.Buffer
	c := NewContainer("tree", "", log.New(&buf, "", 0))
	inst := c.GetObject(tile.GridPosition{})
	c.RemoveObject(inst)
	if c.RemoveObject(inst) {
		t.Fatalf("double remove succeeded")
	}
	other := NewContainer("tree", "", nil).GetObject(tile.GridPosition{})
	if c.RemoveObject(other) {
		t.Fatalf("foreign instance accepted")
	}
	if c.RemoveObject(nil) {
		t.Fatalf("nil accepted")
	}
	if n := strings.Count(buf.String(), "WARN"); n != 3 {
		t.Fatalf("warnings=%d log=%q", n, buf.String())
	}
	if s := c.Stats(); s.Inactive != 1 || s.Active != 0 {
		t.Fatalf("stats=%+v", s)
	}
}

func flat(x, z int) *tile.Tile {
	h := make([]float64, 9)
	return tile.New(tile.GridPosition{X: x, Z: z}, 3, 16, h, biome.Map{})
}

func testPlacer() *scatter.Placer {
	spec := func(name string, spacing float64, limit int) scatter.DetailSpec {
		return scatter.DetailSpec{
			Name: name, Prefab: name + ".prefab", Spacing: spacing, MaxInstances: limit,
			Height: biome.NewConstraint(0, 1), Slope: biome.NewConstraint(0, 90),
		}
	}
	return &scatter.Placer{Seed: 3, Details: []scatter.DetailSpec{spec("tree", 4, 5), spec("rock", 2, 10)}}
}

func TestPoolActivateDeactivate(t *testing.T) {
	bus := events.NewBus()
	var kinds []events.Kind
	bus.Subscribe(func(e events.Event) { kinds = append(kinds, e.Kind) })
	p := New(testPlacer(), bus, nil)

	a := flat(0, 0)
	insts := p.Activate(a)
	if len(insts) != 15 {
		t.Fatalf("instances=%d want 15", len(insts))
	}
	if again := p.Activate(a); len(again) != len(insts) {
		t.Fatalf("re-activation placed more instances")
	}
	for _, inst := range insts {
		if inst.Parent != a.Position() || !inst.Active() {
			t.Fatalf("instance %+v not attached", inst)
		}
	}

	if n := p.Deactivate(a.Position()); n != 15 {
		t.Fatalf("released=%d", n)
	}
	if n := p.Deactivate(a.Position()); n != 0 {
		t.Fatalf("second deactivate released %d", n)
	}

	p.Activate(flat(1, 0))
	for _, s := range p.Stats() {
		if s.Inactive != 0 {
			t.Fatalf("%s: inactive=%d after reuse", s.Type, s.Inactive)
		}
		want := map[string]int{"rock": 10, "tree": 5}[s.Type]
		if s.Created != want {
			t.Fatalf("%s: created=%d want %d", s.Type, s.Created, want)
		}
	}

	want := []events.Kind{events.InstancesActivated, events.InstancesDeactivated, events.InstancesActivated}
	if len(kinds) != len(want) {
		t.Fatalf("kinds=%v", kinds)
	}
}

func TestPoolClear(t *testing.T) {
	p := New(testPlacer(), nil, nil)
	p.Activate(flat(0, 0))
	p.Activate(flat(0, 1))
	if got := p.Tiles(); len(got) != 2 {
		t.Fatalf("tiles=%v", got)
	}
	p.Clear()
	if len(p.Tiles()) != 0 {
		t.Fatalf("Clear left tiles")
	}
	c, _ := p.Container("rock")
	if s := c.Stats(); s.Active != 0 || s.Inactive != 20 {
		t.Fatalf("rock stats=%+v", s)
	}
}
