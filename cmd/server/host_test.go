package main

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/observerproto"
	"terrainforge.dev/internal/pool"
	"terrainforge.dev/internal/tile"
	"terrainforge.dev/internal/tuning"
	"terrainforge.dev/internal/world"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	cfg := tuning.Default()
	cfg.Tile.Length = 16
	cfg.Tile.Resolution = 9
	cfg.Tile.Radius = 2
	w, err := world.New(context.Background(), world.Config{ID: "w1", Tuning: cfg})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestHost_FollowsTrackedPosition(t *testing.T) {
	w := testWorld(t)
	tracks := make(chan mgl64.Vec2, 4)
	h := newHost(w, tracks, mgl64.Vec2{0, 0}, log.New(io.Discard, "", 0))
	var boot observerproto.BootstrapResponse
	h.onStep = func(b observerproto.BootstrapResponse) { boot = b }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.run(ctx, 100) }()

	waitFor := func(cond func(hostMetrics) bool) hostMetrics {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			m := h.Metrics()
			if cond(m) {
				return m
			}
			if time.Now().After(deadline) {
				t.Fatalf("condition not reached, last metrics %+v", m)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	waitFor(func(m hostMetrics) bool { return m.Active == 9 })
	tracks <- mgl64.Vec2{500, 500}
	m := waitFor(func(m hostMetrics) bool { return m.Tracked == [2]float64{500, 500} })
	if m.Active != 9 {
		t.Fatalf("active after move: got %d want 9", m.Active)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := w.Tiles().Active(tile.PositionOf(mgl64.Vec2{500, 500}, 16)); !ok {
		t.Fatalf("tile under the new tracked position is not active")
	}
	if boot.WorldID != "w1" || boot.WorldParams.TileResolution != 9 || len(boot.Biomes) != 4 {
		t.Fatalf("unexpected bootstrap: %+v", boot)
	}
}

func TestWriteMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	writeMetrics(rec, "w1", hostMetrics{
		Tick: 3, Active: 9, Cached: 2,
		Containers: []pool.Stats{{Type: "tree", Active: 4, Inactive: 1, Created: 5}},
	}, 1)
	body := rec.Body.String()
	for _, want := range []string{
		`terrainforge_tick{world="w1"} 3`,
		`terrainforge_tiles{world="w1",state="active"} 9`,
		`terrainforge_tiles{world="w1",state="cached"} 2`,
		`terrainforge_instances{world="w1",type="tree",state="active"} 4`,
		`terrainforge_observers{world="w1"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}
