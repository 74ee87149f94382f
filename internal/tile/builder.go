package tile

import (
	"context"
	"errors"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/noise"
)

// Builder generates the tile at a position. Implementations must be safe for
// concurrent calls.
type Builder interface {
	Build(ctx context.Context, pos GridPosition) (*Tile, error)
}

// BuilderFunc adapts a func to Builder.
type BuilderFunc func(ctx context.Context, pos GridPosition) (*Tile, error)

func (f BuilderFunc) Build(ctx context.Context, pos GridPosition) (*Tile, error) { return f(ctx, pos) }

const DefaultCellsPerStep = 1024

// TerrainBuilder samples a height generator and a biome sampler over the tile
// grid. Each job works on forked generators so tiles can be generated in
// parallel.
type TerrainBuilder struct {
	Height     noise.Generator
	Sampler    *biome.Sampler
	Amplitude  float64
	Spread     float64
	Resolution int
	Length     float64

	// CellsPerStep bounds the cell operations performed per Job.Step,
	// counting height samples and biome passes.
	CellsPerStep int
}

func (b *TerrainBuilder) validate() error {
	switch {
	case b.Height == nil:
		return errors.New("tile: builder has no height generator")
	case b.Resolution < 2:
		return errors.New("tile: resolution must be at least 2")
	case b.Length <= 0:
		return errors.New("tile: length must be positive")
	}
	return nil
}

// NewJob prepares an incremental build of pos.
func (b *TerrainBuilder) NewJob(pos GridPosition) Stepper { return b.newJob(pos) }

func (b *TerrainBuilder) newJob(pos GridPosition) *Job {
	j := &Job{pos: pos}
	if err := b.validate(); err != nil {
		j.fail(err)
		return j
	}
	j.height = noise.Fork(b.Height)
	if b.Sampler != nil {
		j.sampler = b.Sampler.Fork()
	}
	j.amplitude = b.Amplitude
	if j.amplitude == 0 {
		j.amplitude = 1
	}
	j.spread = b.Spread
	if j.spread == 0 {
		j.spread = 1
	}
	j.length = b.Length
	j.res = b.Resolution
	j.perStep = b.CellsPerStep
	if j.perStep <= 0 {
		j.perStep = DefaultCellsPerStep
	}
	j.heights = make([]float64, j.res*j.res)
	return j
}

func (b *TerrainBuilder) Build(ctx context.Context, pos GridPosition) (*Tile, error) {
	return b.newJob(pos).Run(ctx)
}
