package noise

import (
	"math"

	"terrainforge.dev/internal/mathx"
)

// Binary combines two generators point-wise.
type Binary struct {
	a, b Generator
	op   func(a, b float64) float64
}

func newBinary(a, b Generator, what string, op func(a, b float64) float64) *Binary {
	mustGenerator(a, what)
	mustGenerator(b, what)
	return &Binary{a: a, b: b, op: op}
}

func Add(a, b Generator) *Binary {
	return newBinary(a, b, "Add", func(a, b float64) float64 { return a + b })
}

func Sub(a, b Generator) *Binary {
	return newBinary(a, b, "Sub", func(a, b float64) float64 { return a - b })
}

func Mul(a, b Generator) *Binary {
	return newBinary(a, b, "Mul", func(a, b float64) float64 { return a * b })
}

func Min(a, b Generator) *Binary {
	return newBinary(a, b, "Min", math.Min)
}

func Max(a, b Generator) *Binary {
	return newBinary(a, b, "Max", math.Max)
}

func (g *Binary) Evaluate(x, y, z float64) float64 {
	return g.op(g.a.Evaluate(x, y, z), g.b.Evaluate(x, y, z))
}

func (g *Binary) Fork() Generator {
	return &Binary{a: Fork(g.a), b: Fork(g.b), op: g.op}
}

func (g *Binary) Revision() uint64 {
	return Revision(g.a) + Revision(g.b)
}

// Unary transforms the output of a single generator.
type Unary struct {
	src Generator
	op  func(v float64) float64
}

func newUnary(src Generator, what string, op func(v float64) float64) *Unary {
	mustGenerator(src, what)
	return &Unary{src: src, op: op}
}

func Abs(src Generator) *Unary {
	return newUnary(src, "Abs", math.Abs)
}

func Invert(src Generator) *Unary {
	return newUnary(src, "Invert", func(v float64) float64 { return -v })
}

// Clamp limits the output to [lo,hi]. Bounds are swapped when given reversed.
func Clamp(src Generator, lo, hi float64) *Unary {
	if lo > hi {
		lo, hi = hi, lo
	}
	return newUnary(src, "Clamp", func(v float64) float64 { return mathx.Clamp(v, lo, hi) })
}

func ScaleBias(src Generator, scale, bias float64) *Unary {
	return newUnary(src, "ScaleBias", func(v float64) float64 { return v*scale + bias })
}

func Power(src Generator, exponent float64) *Unary {
	return newUnary(src, "Power", func(v float64) float64 { return math.Pow(v, exponent) })
}

func (g *Unary) Evaluate(x, y, z float64) float64 {
	return g.op(g.src.Evaluate(x, y, z))
}

func (g *Unary) Fork() Generator {
	return &Unary{src: Fork(g.src), op: g.op}
}

func (g *Unary) Revision() uint64 {
	return Revision(g.src)
}

// Blend interpolates between a and b. The control output is mapped from [-1,1]
// to [0,1] and clamped.
type Blend struct {
	a, b, control Generator
}

func NewBlend(a, b, control Generator) *Blend {
	mustGenerator(a, "Blend")
	mustGenerator(b, "Blend")
	mustGenerator(control, "Blend")
	return &Blend{a: a, b: b, control: control}
}

func (g *Blend) Evaluate(x, y, z float64) float64 {
	t := mathx.Clamp01((g.control.Evaluate(x, y, z) + 1) * 0.5)
	return lerp(g.a.Evaluate(x, y, z), g.b.Evaluate(x, y, z), t)
}

func (g *Blend) Fork() Generator {
	return &Blend{a: Fork(g.a), b: Fork(g.b), control: Fork(g.control)}
}

func (g *Blend) Revision() uint64 {
	return Revision(g.a) + Revision(g.b) + Revision(g.control)
}

// Select outputs a where control is below threshold and b above it, cross-fading
// over falloff on either side of the threshold.
type Select struct {
	a, b, control Generator
	threshold     float64
	falloff       float64
}

func NewSelect(a, b, control Generator, threshold, falloff float64) *Select {
	mustGenerator(a, "Select")
	mustGenerator(b, "Select")
	mustGenerator(control, "Select")
	if falloff < 0 {
		falloff = 0
	}
	return &Select{a: a, b: b, control: control, threshold: threshold, falloff: falloff}
}

func (g *Select) Evaluate(x, y, z float64) float64 {
	c := g.control.Evaluate(x, y, z)
	if g.falloff > 0 {
		lo := g.threshold - g.falloff
		hi := g.threshold + g.falloff
		switch {
		case c <= lo:
			return g.a.Evaluate(x, y, z)
		case c >= hi:
			return g.b.Evaluate(x, y, z)
		}
		t := Cubic.apply((c - lo) / (hi - lo))
		return lerp(g.a.Evaluate(x, y, z), g.b.Evaluate(x, y, z), t)
	}
	if c < g.threshold {
		return g.a.Evaluate(x, y, z)
	}
	return g.b.Evaluate(x, y, z)
}

func (g *Select) Fork() Generator {
	return &Select{a: Fork(g.a), b: Fork(g.b), control: Fork(g.control), threshold: g.threshold, falloff: g.falloff}
}

func (g *Select) Revision() uint64 {
	return Revision(g.a) + Revision(g.b) + Revision(g.control)
}

// Domain transforms the input coordinates before sampling src.
type Domain struct {
	src       Generator
	scale     [3]float64
	translate [3]float64
}

// Translate offsets the sample position.
func Translate(src Generator, dx, dy, dz float64) *Domain {
	mustGenerator(src, "Translate")
	return &Domain{src: src, scale: [3]float64{1, 1, 1}, translate: [3]float64{dx, dy, dz}}
}

// Scale multiplies the sample position per axis.
func Scale(src Generator, sx, sy, sz float64) *Domain {
	mustGenerator(src, "Scale")
	return &Domain{src: src, scale: [3]float64{sx, sy, sz}}
}

func (g *Domain) Evaluate(x, y, z float64) float64 {
	return g.src.Evaluate(
		x*g.scale[0]+g.translate[0],
		y*g.scale[1]+g.translate[1],
		z*g.scale[2]+g.translate[2],
	)
}

func (g *Domain) Fork() Generator {
	return &Domain{src: Fork(g.src), scale: g.scale, translate: g.translate}
}

func (g *Domain) Revision() uint64 {
	return Revision(g.src)
}
