// Package tile owns generated terrain tiles: their data, the LRU cache of
// inactive tiles and the pool that keeps the tiles around a tracked position
// active.
package tile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/mathx"
	"terrainforge.dev/internal/scatter"
)

// Tile is one generated square of terrain. Heights and biome data are
// res x res grids sampled on the tile's edges. A Tile is owned by exactly one
// of the pool's active set or its cache; Destroy releases its data for good.
type Tile struct {
	pos     GridPosition
	res     int
	length  float64
	heights []float64
	minH    float64
	maxH    float64
	biomes  biome.Map

	lastAccess uint64
	destroyed  bool
	digest     [32]byte
	hashed     bool
}

// New assembles a tile from generated data. heights must hold res*res values.
func New(pos GridPosition, res int, length float64, heights []float64, m biome.Map) *Tile {
	t := &Tile{pos: pos, res: res, length: length, heights: heights, biomes: m}
	t.minH, t.maxH = math.Inf(1), math.Inf(-1)
	for _, h := range heights {
		t.minH = math.Min(t.minH, h)
		t.maxH = math.Max(t.maxH, h)
	}
	if len(heights) == 0 {
		t.minH, t.maxH = 0, 0
	}
	return t
}

func (t *Tile) Position() GridPosition { return t.pos }
func (t *Tile) Key() (int, int)        { return t.pos.X, t.pos.Z }
func (t *Tile) Resolution() int        { return t.res }
func (t *Tile) Length() float64        { return t.length }
func (t *Tile) Origin() mgl64.Vec2     { return t.pos.Origin(t.length) }
func (t *Tile) Heights() []float64     { return t.heights }
func (t *Tile) Weights() []biome.Grid  { return t.biomes.Weights }
func (t *Tile) Dominant() []int        { return t.biomes.Dominant }
func (t *Tile) LastAccess() uint64     { return t.lastAccess }
func (t *Tile) Destroyed() bool        { return t.destroyed }

// HeightRange returns the lowest and highest sampled height.
func (t *Tile) HeightRange() (float64, float64) { return t.minH, t.maxH }

func (t *Tile) touch(clock uint64) { t.lastAccess = clock }

// grid maps a local coordinate to fractional cell space.
func (t *Tile) grid(v float64) float64 {
	if t.res <= 1 || t.length <= 0 {
		return 0
	}
	return mathx.Clamp(v/t.length*float64(t.res-1), 0, float64(t.res-1))
}

func (t *Tile) cell(x, z int) float64 {
	return t.heights[z*t.res+x]
}

// HeightAt bilinearly interpolates the height at local (x,z).
func (t *Tile) HeightAt(x, z float64) float64 {
	if t.destroyed || len(t.heights) == 0 {
		return 0
	}
	gx, gz := t.grid(x), t.grid(z)
	x0, z0 := int(gx), int(gz)
	x1, z1 := min(x0+1, t.res-1), min(z0+1, t.res-1)
	fx, fz := gx-float64(x0), gz-float64(z0)
	a := mathx.Lerp(t.cell(x0, z0), t.cell(x1, z0), fx)
	b := mathx.Lerp(t.cell(x0, z1), t.cell(x1, z1), fx)
	return mathx.Lerp(a, b, fz)
}

func (t *Tile) NormalizedHeightAt(x, z float64) float64 {
	if t.maxH == t.minH {
		return 0
	}
	return (t.HeightAt(x, z) - t.minH) / (t.maxH - t.minH)
}

// SlopeAt estimates the slope in degrees with central differences over one
// cell.
func (t *Tile) SlopeAt(x, z float64) float64 {
	if t.res <= 1 || t.length <= 0 {
		return 0
	}
	step := t.length / float64(t.res-1)
	dx := (t.HeightAt(x+step, z) - t.HeightAt(x-step, z)) / (2 * step)
	dz := (t.HeightAt(x, z+step) - t.HeightAt(x, z-step)) / (2 * step)
	return scatter.SlopeDegrees(dx, dz)
}

// BiomeAt returns the dominant biome of the nearest cell, or -1.
func (t *Tile) BiomeAt(x, z float64) int {
	if t.destroyed || len(t.biomes.Dominant) == 0 {
		return -1
	}
	gx, gz := int(math.Round(t.grid(x))), int(math.Round(t.grid(z)))
	return t.biomes.Dominant[gz*t.res+gx]
}

// Digest hashes the tile's position and generated data. Two tiles built from
// the same definitions have equal digests.
func (t *Tile) Digest() [32]byte {
	if t.hashed {
		return t.digest
	}
	h := sha256.New()
	var tmp [8]byte
	putInt := func(v int64) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
		h.Write(tmp[:])
	}
	putInt(int64(t.pos.X))
	putInt(int64(t.pos.Z))
	putInt(int64(t.res))
	putFloat(t.length)
	for _, v := range t.heights {
		putFloat(v)
	}
	for _, g := range t.biomes.Weights {
		for _, v := range g.Cells {
			putFloat(v)
		}
	}
	for _, d := range t.biomes.Dominant {
		putInt(int64(d))
	}
	copy(t.digest[:], h.Sum(nil))
	t.hashed = true
	return t.digest
}

func (t *Tile) DigestHex() string {
	d := t.Digest()
	return hex.EncodeToString(d[:])
}

// Destroy frees the generated data. The tile must be regenerated to be used
// again.
func (t *Tile) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.heights = nil
	t.biomes = biome.Map{}
}
