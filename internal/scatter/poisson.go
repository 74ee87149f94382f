// Package scatter produces blue-noise placement points and filters them into
// per-tile detail placements.
package scatter

import (
	"iter"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultMaxTries is the number of candidates tried around an active point
// before it is retired.
const DefaultMaxTries = 30

// PoissonDiscSampler lazily yields points in [0,width] x [0,height] with no two
// points closer than the minimum distance (Bridson's algorithm). The sequence
// is finite and depends only on the rng's state.
type PoissonDiscSampler struct {
	width, height float64
	radius        float64
	cell          float64
	gridW, gridH  int
	grid          []int
	points        []mgl64.Vec2
	active        []int
	rng           *rand.Rand
	started       bool

	MaxTries int
}

func NewPoissonDiscSampler(width, height, minDistance float64, rng *rand.Rand) *PoissonDiscSampler {
	s := &PoissonDiscSampler{width: width, height: height, radius: minDistance, rng: rng, MaxTries: DefaultMaxTries}
	if minDistance <= 0 || width < 0 || height < 0 || rng == nil {
		s.started = true
		return s
	}
	s.cell = minDistance / math.Sqrt2
	s.gridW = int(width/s.cell) + 1
	s.gridH = int(height/s.cell) + 1
	s.grid = make([]int, s.gridW*s.gridH)
	for i := range s.grid {
		s.grid[i] = -1
	}
	return s
}

// Next returns the next point, or false once the domain is saturated.
func (s *PoissonDiscSampler) Next() (mgl64.Vec2, bool) {
	if !s.started {
		s.started = true
		return s.insert(mgl64.Vec2{s.rng.Float64() * s.width, s.rng.Float64() * s.height}), true
	}
	tries := s.MaxTries
	if tries <= 0 {
		tries = DefaultMaxTries
	}
	for len(s.active) > 0 {
		ai := s.rng.Intn(len(s.active))
		p := s.points[s.active[ai]]
		for k := 0; k < tries; k++ {
			angle := s.rng.Float64() * 2 * math.Pi
			dist := s.radius * (1 + s.rng.Float64())
			c := mgl64.Vec2{p[0] + dist*math.Cos(angle), p[1] + dist*math.Sin(angle)}
			if s.accepts(c) {
				return s.insert(c), true
			}
		}
		s.active[ai] = s.active[len(s.active)-1]
		s.active = s.active[:len(s.active)-1]
	}
	return mgl64.Vec2{}, false
}

// Samples iterates the remaining points.
func (s *PoissonDiscSampler) Samples() iter.Seq[mgl64.Vec2] {
	return func(yield func(mgl64.Vec2) bool) {
		for {
			p, ok := s.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

func (s *PoissonDiscSampler) cellOf(p mgl64.Vec2) (int, int) {
	return int(p[0] / s.cell), int(p[1] / s.cell)
}

func (s *PoissonDiscSampler) insert(p mgl64.Vec2) mgl64.Vec2 {
	idx := len(s.points)
	s.points = append(s.points, p)
	s.active = append(s.active, idx)
	gx, gz := s.cellOf(p)
	s.grid[gz*s.gridW+gx] = idx
	return p
}

func (s *PoissonDiscSampler) accepts(p mgl64.Vec2) bool {
	if p[0] < 0 || p[0] > s.width || p[1] < 0 || p[1] > s.height {
		return false
	}
	gx, gz := s.cellOf(p)
	r2 := s.radius * s.radius
	for dz := -2; dz <= 2; dz++ {
		for dx := -2; dx <= 2; dx++ {
			nx, nz := gx+dx, gz+dz
			if nx < 0 || nx >= s.gridW || nz < 0 || nz >= s.gridH {
				continue
			}
			idx := s.grid[nz*s.gridW+nx]
			if idx < 0 {
				continue
			}
			if d := s.points[idx].Sub(p); d.Dot(d) < r2 {
				return false
			}
		}
	}
	return true
}
