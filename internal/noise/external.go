package noise

import (
	"github.com/aquilax/go-perlin"
	"github.com/ojrac/opensimplex-go"
)

// Perlin wraps the classic permutation-table Perlin implementation. alpha is the
// per-octave weight divisor, beta the per-octave frequency multiplier and n the
// octave count of the underlying implementation.
type Perlin struct {
	p         *perlin.Perlin
	frequency float64
}

func NewPerlin(seed int64, alpha, beta float64, n int32) *Perlin {
	if alpha <= 0 {
		alpha = 2
	}
	if beta <= 0 {
		beta = 2
	}
	if n <= 0 {
		n = 3
	}
	return &Perlin{p: perlin.NewPerlin(alpha, beta, n, seed), frequency: 1}
}

func (g *Perlin) WithFrequency(f float64) *Perlin {
	return &Perlin{p: g.p, frequency: f}
}

func (g *Perlin) Evaluate(x, y, z float64) float64 {
	f := g.frequency
	return g.p.Noise3D(x*f, y*f, z*f)
}

// Simplex wraps OpenSimplex noise. Output is in [-1,1].
type Simplex struct {
	n         opensimplex.Noise
	frequency float64
}

func NewSimplex(seed int64) *Simplex {
	return &Simplex{n: opensimplex.New(seed), frequency: 1}
}

func (g *Simplex) WithFrequency(f float64) *Simplex {
	return &Simplex{n: g.n, frequency: f}
}

func (g *Simplex) Evaluate(x, y, z float64) float64 {
	f := g.frequency
	return g.n.Eval3(x*f, y*f, z*f)
}
