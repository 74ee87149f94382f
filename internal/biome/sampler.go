package biome

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// MixRule decides how several biomes share a cell.
type MixRule int

const (
	// MixMax gives the cell to the biome with the highest weight.
	MixMax MixRule = iota
	// MixMin gives the cell to the biome with the lowest non-zero weight.
	MixMin
	// MixAdd keeps every biome and normalizes the weights to sum to 1.
	MixAdd
)

func (r MixRule) String() string {
	switch r {
	case MixMax:
		return "max"
	case MixMin:
		return "min"
	case MixAdd:
		return "add"
	}
	return fmt.Sprintf("mix(%d)", int(r))
}

func ParseMixRule(s string) (MixRule, error) {
	switch s {
	case "", "max":
		return MixMax, nil
	case "min":
		return MixMin, nil
	case "add":
		return MixAdd, nil
	}
	return MixMax, fmt.Errorf("unknown mix rule %q", s)
}

// Combiner resolves per-biome weights into the final per-cell shares.
type Combiner struct {
	Rule MixRule
}

// Combine rewrites w, one weight per biome, in place and returns the dominant
// biome index or -1 when every weight is 0. Ties go to the lowest index.
func (c Combiner) Combine(w []float64) int {
	switch c.Rule {
	case MixMax, MixMin:
		dom := -1
		for i, v := range w {
			if v <= 0 {
				continue
			}
			if dom < 0 || (c.Rule == MixMax && v > w[dom]) || (c.Rule == MixMin && v < w[dom]) {
				dom = i
			}
		}
		for i := range w {
			w[i] = 0
		}
		if dom >= 0 {
			w[dom] = 1
		}
		return dom
	default:
		sum := 0.0
		dom := -1
		for i, v := range w {
			if v <= 0 {
				w[i] = 0
				continue
			}
			sum += v
			if dom < 0 || v > w[dom] {
				dom = i
			}
		}
		if sum == 0 {
			return -1
		}
		for i := range w {
			w[i] /= sum
		}
		return dom
	}
}

// Map is the combined output of a Sampler over one grid.
type Map struct {
	Res      int
	Weights  []Grid
	Dominant []int
}

// Sampler evaluates a fixed list of biomes and combines them per cell. The
// output for a given origin, resolution and length is a pure function of the
// biome definitions.
type Sampler struct {
	Biomes   []*Biome
	Combiner Combiner
	Spread   float64
}

func NewSampler(c Combiner, spread float64, biomes ...*Biome) *Sampler {
	return &Sampler{Biomes: biomes, Combiner: c, Spread: spread}
}

// Sample evaluates every biome over the grid and combines the weights per cell.
func (s *Sampler) Sample(origin mgl64.Vec2, res int, length float64) Map {
	sg := s.Sampling(origin, res, length)
	for !sg.Advance(math.MaxInt) {
	}
	return sg.Map()
}

// GetWeights returns one combined weight grid per biome.
func (s *Sampler) GetWeights(origin mgl64.Vec2, res int, length float64) []Grid {
	return s.Sample(origin, res, length).Weights
}

// GetDominantBiome returns, per cell, the index of the owning biome or -1.
func (s *Sampler) GetDominantBiome(origin mgl64.Vec2, res int, length float64) []int {
	return s.Sample(origin, res, length).Dominant
}

// Fork returns a sampler safe to run on another goroutine.
func (s *Sampler) Fork() *Sampler {
	cp := &Sampler{Combiner: s.Combiner, Spread: s.Spread, Biomes: make([]*Biome, len(s.Biomes))}
	for i, b := range s.Biomes {
		cp.Biomes[i] = b.Fork()
	}
	return cp
}
