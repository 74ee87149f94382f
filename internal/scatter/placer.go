package scatter

import (
	"math"
	"math/rand"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/mathx"
)

// Surface is the tile data a Placer reads. Coordinates are local to the tile,
// in [0,Length()] on both axes.
type Surface interface {
	Key() (x, z int)
	Origin() mgl64.Vec2
	Length() float64
	HeightAt(x, z float64) float64
	// NormalizedHeightAt maps the height to [0,1] within the tile's range.
	NormalizedHeightAt(x, z float64) float64
	// SlopeAt returns the steepness in degrees.
	SlopeAt(x, z float64) float64
	// BiomeAt returns the dominant biome index or -1.
	BiomeAt(x, z float64) int
}

// DetailSpec describes one placement type.
type DetailSpec struct {
	Name   string
	Prefab string
	// Spacing is the minimum distance between two instances of this type.
	Spacing float64
	// MaxInstances caps placements per tile. Zero places nothing, negative is
	// unbounded.
	MaxInstances int
	// Height is matched against the normalized height, Slope against degrees.
	Height      biome.Constraint
	Slope       biome.Constraint
	Probability biome.Curve
	// Biomes restricts placement to these dominant biome indexes. Empty allows all.
	Biomes []int
}

// Placement is one accepted point for a detail type.
type Placement struct {
	Type     string
	Position mgl64.Vec3
	Rotation float64
	Scale    float64
}

// Placer scatters every configured detail type over a surface. The output for
// a surface depends only on Seed, the specs and the surface contents.
type Placer struct {
	Seed    int64
	Details []DetailSpec
}

func (p *Placer) Place(s Surface) map[string][]Placement {
	out := make(map[string][]Placement, len(p.Details))
	for i := range p.Details {
		d := &p.Details[i]
		out[d.Name] = p.placeType(s, i, d)
	}
	return out
}

func (p *Placer) placeType(s Surface, index int, d *DetailSpec) []Placement {
	if d.Spacing <= 0 || d.MaxInstances == 0 {
		return nil
	}
	tx, tz := s.Key()
	seed := mathx.Hash3(p.Seed, tx, index, tz)
	rng := rand.New(rand.NewSource(int64(seed)))

	origin := s.Origin()
	length := s.Length()
	var out []Placement
	sampler := NewPoissonDiscSampler(length, length, d.Spacing, rng)
	for pt := range sampler.Samples() {
		// The roll is drawn before filtering so rejected points do not shift
		// the rolls of later ones.
		roll := rng.Float64()
		yaw := rng.Float64() * 360

		x, z := pt[0], pt[1]
		if !d.accepts(s, x, z) {
			continue
		}
		if roll >= d.Probability.Evaluate(s.NormalizedHeightAt(x, z)) {
			continue
		}
		out = append(out, Placement{
			Type:     d.Name,
			Position: mgl64.Vec3{origin[0] + x, s.HeightAt(x, z), origin[1] + z},
			Rotation: yaw,
			Scale:    1,
		})
		if d.MaxInstances > 0 && len(out) >= d.MaxInstances {
			break
		}
	}
	return out
}

func (d *DetailSpec) accepts(s Surface, x, z float64) bool {
	if !d.Height.Fits(s.NormalizedHeightAt(x, z)) {
		return false
	}
	if !d.Slope.Fits(s.SlopeAt(x, z)) {
		return false
	}
	if len(d.Biomes) > 0 && !slices.Contains(d.Biomes, s.BiomeAt(x, z)) {
		return false
	}
	return true
}

// SlopeDegrees converts a height gradient to an angle from horizontal.
func SlopeDegrees(dhdx, dhdz float64) float64 {
	return mgl64.RadToDeg(math.Atan(math.Hypot(dhdx, dhdz)))
}
