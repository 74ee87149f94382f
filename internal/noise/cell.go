package noise

import (
	"fmt"
	"math"
)

// DistanceFunc measures the distance between a sample point and a control point
// given their per-axis offsets.
type DistanceFunc func(dx, dy, dz float64) float64

func Euclidean(dx, dy, dz float64) float64 { return math.Sqrt(dx*dx + dy*dy + dz*dz) }
func Manhattan(dx, dy, dz float64) float64 { return math.Abs(dx) + math.Abs(dy) + math.Abs(dz) }
func Chebyshev(dx, dy, dz float64) float64 {
	return math.Max(math.Abs(dx), math.Max(math.Abs(dy), math.Abs(dz)))
}

// CellCombineFunc combines the distances to the 1st, 2nd and 3rd nearest control
// points into the output value.
type CellCombineFunc func(f1, f2, f3 float64) float64

func CellF1(f1, _, _ float64) float64         { return f1 }
func CellF2(_, f2, _ float64) float64         { return f2 }
func CellF3(_, _, f3 float64) float64         { return f3 }
func CellF2MinusF1(f1, f2, _ float64) float64 { return f2 - f1 }
func CellF3MinusF1(f1, _, f3 float64) float64 { return f3 - f1 }
func CellF1PlusF2(f1, f2, _ float64) float64  { return f1 + f2 }

// ParseDistance maps a metric name to a DistanceFunc. Empty selects Euclidean.
func ParseDistance(name string) (DistanceFunc, error) {
	switch name {
	case "", "euclidean":
		return Euclidean, nil
	case "manhattan":
		return Manhattan, nil
	case "chebyshev":
		return Chebyshev, nil
	}
	return nil, fmt.Errorf("unknown distance %q", name)
}

// ParseCellCombine maps a combination name to a CellCombineFunc. Empty selects F1.
func ParseCellCombine(name string) (CellCombineFunc, error) {
	switch name {
	case "", "f1":
		return CellF1, nil
	case "f2":
		return CellF2, nil
	case "f3":
		return CellF3, nil
	case "f2-f1":
		return CellF2MinusF1, nil
	case "f3-f1":
		return CellF3MinusF1, nil
	case "f1+f2":
		return CellF1PlusF2, nil
	}
	return nil, fmt.Errorf("unknown cell combine %q", name)
}

// cellLattice places one control point per unit lattice cell. Each axis offset
// comes from its own lattice-value channel, mapped into [0,1].
type cellLattice struct {
	seeds     [3]int32
	frequency float64
	distance  DistanceFunc
}

func newCellLattice(seed int64) cellLattice {
	s := int32(seed)
	return cellLattice{
		seeds:     [3]int32{s, s + 1, s + 2},
		frequency: 1,
		distance:  Euclidean,
	}
}

func (c *cellLattice) controlPoint(ix, iy, iz int32) (float64, float64, float64) {
	px := float64(ix) + (latticeValue(ix, iy, iz, c.seeds[0])+1)*0.5
	py := float64(iy) + (latticeValue(ix, iy, iz, c.seeds[1])+1)*0.5
	pz := float64(iz) + (latticeValue(ix, iy, iz, c.seeds[2])+1)*0.5
	return px, py, pz
}

type nearest struct {
	dist  [3]float64
	cellX int32
	cellY int32
	cellZ int32
}

func (c *cellLattice) search(x, y, z float64) nearest {
	x *= c.frequency
	y *= c.frequency
	z *= c.frequency
	cx, cy, cz := floor32(x), floor32(y), floor32(z)

	n := nearest{dist: [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}}
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				ix, iy, iz := cx+dx, cy+dy, cz+dz
				px, py, pz := c.controlPoint(ix, iy, iz)
				d := c.distance(px-x, py-y, pz-z)
				switch {
				case d < n.dist[0]:
					n.dist[2] = n.dist[1]
					n.dist[1] = n.dist[0]
					n.dist[0] = d
					n.cellX, n.cellY, n.cellZ = ix, iy, iz
				case d < n.dist[1]:
					n.dist[2] = n.dist[1]
					n.dist[1] = d
				case d < n.dist[2]:
					n.dist[2] = d
				}
			}
		}
	}
	return n
}

// Cell is Worley/Voronoi distance noise.
type Cell struct {
	lattice cellLattice
	combine CellCombineFunc
}

func NewCell(seed int64) *Cell {
	return &Cell{lattice: newCellLattice(seed), combine: CellF1}
}

func (c *Cell) WithFrequency(f float64) *Cell {
	cp := *c
	cp.lattice.frequency = f
	return &cp
}

func (c *Cell) WithDistance(d DistanceFunc) *Cell {
	if d == nil {
		panic("noise: nil distance func")
	}
	cp := *c
	cp.lattice.distance = d
	return &cp
}

func (c *Cell) WithCombine(fn CellCombineFunc) *Cell {
	if fn == nil {
		panic("noise: nil cell combine func")
	}
	cp := *c
	cp.combine = fn
	return &cp
}

func (c *Cell) Evaluate(x, y, z float64) float64 {
	n := c.lattice.search(x, y, z)
	return c.combine(n.dist[0], n.dist[1], n.dist[2])
}

// CellValue returns a per-cell constant in [-1,1] taken from the cell owning the
// nearest control point. Useful for region and biome classification.
type CellValue struct {
	lattice cellLattice
	seed    int32
}

func NewCellValue(seed int64) *CellValue {
	return &CellValue{lattice: newCellLattice(seed), seed: int32(seed) + 3}
}

func (c *CellValue) WithFrequency(f float64) *CellValue {
	cp := *c
	cp.lattice.frequency = f
	return &cp
}

func (c *CellValue) WithDistance(d DistanceFunc) *CellValue {
	if d == nil {
		panic("noise: nil distance func")
	}
	cp := *c
	cp.lattice.distance = d
	return &cp
}

func (c *CellValue) Evaluate(x, y, z float64) float64 {
	n := c.lattice.search(x, y, z)
	return latticeValue(n.cellX, n.cellY, n.cellZ, c.seed)
}
