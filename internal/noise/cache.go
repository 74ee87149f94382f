package noise

import (
	"math"
	"sync"
)

// Cache remembers the last evaluated point. It is intended for trees where the
// same subgraph is reached through several parents at the same coordinates.
// A Cache is not safe for concurrent use; Fork gives each goroutine its own slot.
type Cache struct {
	src     Generator
	valid   bool
	x, y, z float64
	value   float64
	rev     uint64
}

func NewCache(src Generator) *Cache {
	mustGenerator(src, "Cache")
	return &Cache{src: src}
}

func (c *Cache) Evaluate(x, y, z float64) float64 {
	rev := Revision(c.src)
	if c.valid && c.rev == rev && c.x == x && c.y == y && c.z == z {
		return c.value
	}
	c.value = c.src.Evaluate(x, y, z)
	c.x, c.y, c.z = x, y, z
	c.rev = rev
	c.valid = true
	return c.value
}

func (c *Cache) Fork() Generator {
	return &Cache{src: Fork(c.src)}
}

func (c *Cache) Revision() uint64 {
	return Revision(c.src)
}

// RemapBounds is the sampling window Remap uses to estimate the source range.
type RemapBounds struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
	Steps      int
}

var defaultRemapBounds = RemapBounds{MinX: -64, MinZ: -64, MaxX: 64, MaxZ: 64, Steps: 64}

// Remap rescales its source to roughly [0,1] using the min and max observed over
// a sample grid. The range is computed lazily and recomputed whenever the
// source's revision changes. A flat source maps to 0.
type Remap struct {
	src    Generator
	bounds RemapBounds

	mu       sync.Mutex
	computed bool
	rev      uint64
	min, max float64
}

func NewRemap(src Generator) *Remap {
	return NewRemapBounds(src, defaultRemapBounds)
}

func NewRemapBounds(src Generator, b RemapBounds) *Remap {
	mustGenerator(src, "Remap")
	if b.Steps < 2 {
		b.Steps = 2
	}
	return &Remap{src: src, bounds: b}
}

func (r *Remap) Evaluate(x, y, z float64) float64 {
	lo, hi := r.Range()
	if hi == lo {
		return 0
	}
	return (r.src.Evaluate(x, y, z) - lo) / (hi - lo)
}

// Range returns the current estimate of the source range.
func (r *Remap) Range() (float64, float64) {
	rev := Revision(r.src)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.computed || r.rev != rev {
		r.min, r.max = sampleRange(r.src, r.bounds)
		r.rev = rev
		r.computed = true
	}
	return r.min, r.max
}

func sampleRange(g Generator, b RemapBounds) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	n := b.Steps - 1
	for i := 0; i <= n; i++ {
		x := b.MinX + (b.MaxX-b.MinX)*float64(i)/float64(n)
		for j := 0; j <= n; j++ {
			z := b.MinZ + (b.MaxZ-b.MinZ)*float64(j)/float64(n)
			v := g.Evaluate(x, z, 0)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

// Fork shares nothing with the receiver. The cached range is copied so the fork
// does not resample until its source changes.
func (r *Remap) Fork() Generator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Remap{src: Fork(r.src), bounds: r.bounds, computed: r.computed, rev: r.rev, min: r.min, max: r.max}
}

func (r *Remap) Revision() uint64 {
	return Revision(r.src)
}
