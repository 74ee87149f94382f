package tile

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// GridPosition identifies a tile in the infinite tile grid.
type GridPosition struct {
	X int
	Z int
}

func (p GridPosition) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Z)
}

// Origin returns the world position of the tile's minimum corner.
func (p GridPosition) Origin(length float64) mgl64.Vec2 {
	return mgl64.Vec2{float64(p.X) * length, float64(p.Z) * length}
}

// PositionOf returns the tile containing world point w.
func PositionOf(w mgl64.Vec2, length float64) GridPosition {
	if length <= 0 {
		return GridPosition{}
	}
	return GridPosition{X: int(math.Floor(w[0] / length)), Z: int(math.Floor(w[1] / length))}
}

// SortPositions orders positions by X, then Z.
func SortPositions(ps []GridPosition) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Z < ps[j].Z
	})
}

// ComputeDesiredSet returns every tile whose offset (dx,dz) from the tile under
// tracked satisfies dx*dx+dz*dz < radius*radius. The set is a disc, sorted.
func ComputeDesiredSet(tracked mgl64.Vec2, radius int, length float64) []GridPosition {
	if radius <= 0 {
		return nil
	}
	center := PositionOf(tracked, length)
	r2 := radius * radius
	out := make([]GridPosition, 0, 4*r2)
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			if dx*dx+dz*dz < r2 {
				out = append(out, GridPosition{X: center.X + dx, Z: center.Z + dz})
			}
		}
	}
	return out
}
