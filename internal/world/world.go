// Package world assembles a streaming terrain world from a tuning document and
// drives it from a single control goroutine.
package world

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/noise"
	"terrainforge.dev/internal/pool"
	"terrainforge.dev/internal/tile"
	"terrainforge.dev/internal/tuning"
)

type Config struct {
	// ID names the world in logs and snapshots. Empty generates one.
	ID     string
	Tuning tuning.Tuning
	Bus    *events.Bus
	Logger *log.Logger
}

// World owns the generators, the tile pool and the object pool. Every method
// must be called from the control goroutine.
type World struct {
	id      string
	tuning  tuning.Tuning
	height  noise.Generator
	sampler *biome.Sampler
	builder *tile.TerrainBuilder
	tiles   *tile.Pool
	objects *pool.Pool
	loader  tile.Loader
	bus     *events.Bus
	logger  *log.Logger

	tracked   mgl64.Vec2
	closeOnce sync.Once
}

// New builds every generator up front; a world that constructs cannot fail on
// a malformed generator later.
func New(ctx context.Context, cfg Config) (*World, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := cfg.Tuning
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	height, err := buildHeight(t)
	if err != nil {
		return nil, err
	}
	sampler, err := buildSampler(t)
	if err != nil {
		return nil, err
	}
	placer, err := buildPlacer(t)
	if err != nil {
		return nil, err
	}

	builder := &tile.TerrainBuilder{
		Height:       height,
		Sampler:      sampler,
		Amplitude:    t.Height.Amplitude,
		Spread:       t.Height.Spread,
		Resolution:   t.Tile.Resolution,
		Length:       t.Tile.Length,
		CellsPerStep: t.Tile.CellsPerStep,
	}

	var loader tile.Loader
	switch {
	case t.Tile.Paced:
		loader = tile.NewPacedLoader(builder, t.Tile.StepsPerTick)
	case t.Tile.Workers > 0:
		loader = tile.NewWorkerLoader(ctx, builder, t.Tile.Workers)
	}

	w := &World{
		id:      id,
		tuning:  t,
		height:  height,
		sampler: sampler,
		builder: builder,
		objects: pool.New(placer, bus, logger),
		loader:  loader,
		bus:     bus,
		logger:  logger,
	}
	w.tiles = tile.NewPool(tile.PoolOptions{
		Capacity: t.Tile.CacheCapacity,
		Radius:   t.Tile.Radius,
		Length:   t.Tile.Length,
		Builder:  builder,
		Loader:   loader,
		Bus:      bus,
		Logger:   logger,
	})
	logger.Printf("world %s: seed=%d tile=%gm res=%d radius=%d biomes=%d details=%d",
		id, t.Seed, t.Tile.Length, t.Tile.Resolution, t.Tile.Radius, len(sampler.Biomes), len(placer.Details))
	return w, nil
}

func (w *World) ID() string                    { return w.id }
func (w *World) Tuning() tuning.Tuning         { return w.tuning }
func (w *World) Bus() *events.Bus              { return w.bus }
func (w *World) Tiles() *tile.Pool             { return w.tiles }
func (w *World) Objects() *pool.Pool           { return w.objects }
func (w *World) Sampler() *biome.Sampler       { return w.sampler }
func (w *World) Height() noise.Generator       { return w.height }
func (w *World) Builder() *tile.TerrainBuilder { return w.builder }
func (w *World) Tracked() mgl64.Vec2           { return w.tracked }
func (w *World) Seed() int64                   { return w.tuning.Seed }
func (w *World) Loader() tile.Loader           { return w.loader }

// Update moves the tracked position, reconciles the tile pool and applies any
// finished asynchronous builds. Instances follow tile activation.
func (w *World) Update(ctx context.Context, tracked mgl64.Vec2) (tile.Change, error) {
	w.tracked = tracked
	ch, err := w.tiles.ReconcileAt(ctx, tracked)
	w.apply(ch)
	if err != nil {
		return ch, err
	}
	drained := w.Tick()
	ch.Activated = append(ch.Activated, drained.Activated...)
	ch.Failed = append(ch.Failed, drained.Failed...)
	ch.Pending = drained.Pending
	return ch, nil
}

// Tick applies finished asynchronous builds without moving the tracked
// position.
func (w *World) Tick() tile.Change {
	ch := w.tiles.Drain()
	w.apply(ch)
	return ch
}

func (w *World) apply(ch tile.Change) {
	for _, t := range ch.Deactivated {
		w.objects.Deactivate(t.Position())
	}
	for _, t := range ch.Activated {
		w.objects.Activate(t)
	}
}

// Retry clears the failure recorded for pos; the next Update rebuilds it.
func (w *World) Retry(pos tile.GridPosition) { w.tiles.Retry(pos) }

// Reset releases every instance and tile. The next Update regenerates from
// scratch.
func (w *World) Reset() {
	w.objects.Clear()
	w.tiles.Clear()
}

// Close stops background loaders and releases everything the world holds.
func (w *World) Close() {
	w.closeOnce.Do(func() {
		if w.loader != nil {
			w.loader.Close()
		}
		w.Reset()
	})
}
