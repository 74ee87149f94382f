package main

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/observerproto"
	"terrainforge.dev/internal/pool"
	"terrainforge.dev/internal/tile"
	"terrainforge.dev/internal/world"
)

// hostMetrics is copied out of the control loop after every step so HTTP
// handlers never touch the world.
type hostMetrics struct {
	Tick       uint64       `json:"tick"`
	Tracked    [2]float64   `json:"tracked"`
	Active     int          `json:"active_tiles"`
	Cached     int          `json:"cached_tiles"`
	Pending    int          `json:"pending_tiles"`
	Failed     int          `json:"failed_tiles"`
	StepMS     float64      `json:"step_ms"`
	Containers []pool.Stats `json:"containers"`
}

// host drives a world from one goroutine. TRACK positions arrive on tracks
// and are applied on the next tick.
type host struct {
	w      *world.World
	tracks <-chan mgl64.Vec2
	onStep func(observerproto.BootstrapResponse)
	logger *log.Logger

	tick    uint64
	tracked mgl64.Vec2
	dirty   bool
	pending int

	mu      sync.Mutex
	metrics hostMetrics
}

func newHost(w *world.World, tracks <-chan mgl64.Vec2, start mgl64.Vec2, logger *log.Logger) *host {
	return &host{w: w, tracks: tracks, tracked: start, dirty: true, logger: logger}
}

func (h *host) Metrics() hostMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}

// run steps the world at hz until ctx is done.
func (h *host) run(ctx context.Context, hz int) error {
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	if err := h.step(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-h.tracks:
			if p != h.tracked {
				h.tracked = p
				h.dirty = true
			}
		case <-ticker.C:
			if err := h.step(ctx); err != nil {
				return err
			}
		}
	}
}

func (h *host) step(ctx context.Context) error {
	start := time.Now()
	h.tick++
	if h.dirty {
		h.dirty = false
		ch, err := h.w.Update(ctx, h.tracked)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		h.pending = len(ch.Pending)
		if !ch.Empty() {
			h.logger.Printf("tick %d: tracked=(%.1f,%.1f) +%d -%d failed=%d pending=%d",
				h.tick, h.tracked[0], h.tracked[1], len(ch.Activated), len(ch.Deactivated), len(ch.Failed), len(ch.Pending))
		}
	} else {
		ch := h.w.Tick()
		h.pending = len(ch.Pending)
	}
	h.snapshot(time.Since(start))
	return nil
}

func (h *host) snapshot(d time.Duration) {
	tiles := h.w.Tiles()
	t := h.w.Tuning()
	failed := 0
	for _, pos := range tile.ComputeDesiredSet(h.tracked, t.Tile.Radius, t.Tile.Length) {
		if tiles.Failed(pos) != nil {
			failed++
		}
	}
	m := hostMetrics{
		Tick:       h.tick,
		Tracked:    [2]float64{h.tracked[0], h.tracked[1]},
		Active:     len(tiles.ActiveTiles()),
		Cached:     tiles.Cache().Len(),
		Pending:    h.pending,
		Failed:     failed,
		StepMS:     float64(d.Microseconds()) / 1000,
		Containers: h.w.Objects().Stats(),
	}
	h.mu.Lock()
	h.metrics = m
	h.mu.Unlock()

	if h.onStep != nil {
		h.onStep(bootstrapFor(h.w, h.tracked))
	}
}

func bootstrapFor(w *world.World, tracked mgl64.Vec2) observerproto.BootstrapResponse {
	t := w.Tuning()
	b := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldID:         w.ID(),
		WorldParams: observerproto.WorldParams{
			TickRateHz:     t.TickRateHz,
			Seed:           t.Seed,
			TileLength:     t.Tile.Length,
			TileResolution: t.Tile.Resolution,
			Radius:         t.Tile.Radius,
		},
		Tracked: [2]float64{tracked[0], tracked[1]},
	}
	for _, bc := range t.Biomes.List {
		b.Biomes = append(b.Biomes, bc.Name)
	}
	for _, dc := range t.Details {
		b.Details = append(b.Details, dc.Name)
	}
	return b
}
