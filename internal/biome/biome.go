// Package biome turns masked generators into per-cell biome weight maps.
package biome

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/mathx"
	"terrainforge.dev/internal/noise"
)

// Grid is a square res x res map of values, row-major with z as the row.
type Grid struct {
	Res   int
	Cells []float64
}

func NewGrid(res int) Grid {
	if res < 0 {
		res = 0
	}
	return Grid{Res: res, Cells: make([]float64, res*res)}
}

func (g Grid) At(x, z int) float64 { return g.Cells[z*g.Res+x] }

func (g Grid) Set(x, z int, v float64) { g.Cells[z*g.Res+x] = v }

// CellPosition returns the world position of grid cell (x,z) for a tile whose
// corner is origin and whose side is length. Cells sit on the tile's edges so
// neighbouring tiles share their border samples.
func CellPosition(origin mgl64.Vec2, res int, length float64, x, z int) mgl64.Vec2 {
	if res <= 1 {
		return origin
	}
	step := length / float64(res-1)
	return mgl64.Vec2{origin[0] + float64(x)*step, origin[1] + float64(z)*step}
}

// Mask restricts a biome to cells where its generator, normalized over the
// sampled grid, falls inside Constraint.
type Mask struct {
	Generator  noise.Generator
	Constraint Constraint
}

// Biome is a named region classifier. Nil masks are disabled. A biome with no
// enabled mask is present everywhere with weight 1.
type Biome struct {
	Name        string
	Height      *Mask
	Temperature *Mask
	Moisture    *Mask
	Blend       float64
}

func (b *Biome) masks() []*Mask {
	out := make([]*Mask, 0, 3)
	for _, m := range []*Mask{b.Height, b.Temperature, b.Moisture} {
		if m != nil && m.Generator != nil {
			out = append(out, m)
		}
	}
	return out
}

// Weights samples the biome over a res x res grid. Each mask is normalized to
// [0,1] against the min and max seen on this grid. A cell's weight is the mean
// of Constraint.Weight over the masks whose constraint the cell fits; masks
// the cell does not fit are left out of the mean entirely.
func (b *Biome) Weights(origin mgl64.Vec2, res int, spread, length float64) Grid {
	out := NewGrid(res)
	g := grid{origin: origin, res: res, spread: spread, length: length}
	p := pass{total: len(out.Cells), stages: b.stages(g, out, newScratch(len(out.Cells)))}
	p.advance(math.MaxInt)
	return out
}

// stages appends the passes computing b's weights into out. A biome without
// masks is a single fill pass. Otherwise every mask costs an evaluate pass and
// an accumulate pass, followed by one averaging pass.
func (b *Biome) stages(g grid, out Grid, sc *scratch) []stage {
	masks := b.masks()
	if len(masks) == 0 {
		return []stage{{cell: func(i int) { out.Cells[i] = 1 }}}
	}
	st := make([]stage, 0, 2*len(masks)+1)
	for mi, m := range masks {
		var lo, hi, span float64
		st = append(st, stage{
			begin: func() { lo, hi = math.Inf(1), math.Inf(-1) },
			cell: func(i int) {
				if mi == 0 {
					sc.acc[i], sc.count[i] = 0, 0
				}
				p := g.position(i)
				v := m.Generator.Evaluate(p[0]/g.scale(), p[1]/g.scale(), 0)
				sc.values[i] = v
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			},
		}, stage{
			begin: func() { span = hi - lo },
			cell: func(i int) {
				// A flat field normalizes to 0.
				v := 0.0
				if span != 0 {
					v = (sc.values[i] - lo) / span
				}
				if m.Constraint.Fits(v) {
					sc.acc[i] += m.Constraint.Weight(v, b.Blend)
					sc.count[i]++
				}
			},
		})
	}
	st = append(st, stage{cell: func(i int) {
		if sc.count[i] > 0 {
			out.Cells[i] = mathx.Clamp01(sc.acc[i] / float64(sc.count[i]))
		}
	}})
	return st
}

// Fork returns a copy whose mask generators can be evaluated on another
// goroutine.
func (b *Biome) Fork() *Biome {
	cp := *b
	cp.Height = forkMask(b.Height)
	cp.Temperature = forkMask(b.Temperature)
	cp.Moisture = forkMask(b.Moisture)
	return &cp
}

func forkMask(m *Mask) *Mask {
	if m == nil {
		return nil
	}
	return &Mask{Generator: noise.Fork(m.Generator), Constraint: m.Constraint}
}
