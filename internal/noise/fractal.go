package noise

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// OctaveCombiner folds one octave's signal into the accumulated value. carry
// starts at 1 on every evaluation and lets a combiner thread state from one
// octave to the next without storing it on the generator.
type OctaveCombiner interface {
	CombineOctave(octave int, signal, value float64, carry *float64) float64
}

// octaveRotation is applied between octaves so lattice artifacts of successive
// octaves do not line up with the axes.
var octaveRotation = func() mgl64.Mat3 {
	a := mgl64.DegToRad(30)
	return mgl64.Rotate3DY(a).Mul3(mgl64.Rotate3DX(a)).Mul3(mgl64.Rotate3DZ(a))
}()

const (
	defaultLacunarity  = 2.17
	defaultOctaves     = 6
	defaultPersistence = 0.5
)

// Fractal samples a source generator over several octaves. It is embedded by
// Pink, Billow and Ridge, which supply the octave combination.
type Fractal struct {
	source     Generator
	frequency  float64
	lacunarity float64
	octaves    int
	combiner   OctaveCombiner
	revision   atomic.Uint64
}

func (f *Fractal) init(source Generator, combiner OctaveCombiner) {
	mustGenerator(source, "fractal")
	f.source = source
	f.frequency = 1
	f.lacunarity = defaultLacunarity
	f.octaves = defaultOctaves
	f.combiner = combiner
}

func (f *Fractal) Evaluate(x, y, z float64) float64 {
	x *= f.frequency
	y *= f.frequency
	z *= f.frequency

	value := 0.0
	carry := 1.0
	for octave := 0; octave < f.octaves; octave++ {
		signal := f.source.Evaluate(x, y, z)
		value = f.combiner.CombineOctave(octave, signal, value, &carry)

		p := octaveRotation.Mul3x1(mgl64.Vec3{x, y, z})
		x = p[0] * f.lacunarity
		y = p[1] * f.lacunarity
		z = p[2] * f.lacunarity
	}
	return value
}

func (f *Fractal) Frequency() float64  { return f.frequency }
func (f *Fractal) Lacunarity() float64 { return f.lacunarity }
func (f *Fractal) OctaveCount() int    { return f.octaves }
func (f *Fractal) Source() Generator   { return f.source }

func (f *Fractal) SetFrequency(v float64) {
	f.frequency = v
	f.touch()
}

func (f *Fractal) SetLacunarity(v float64) {
	f.lacunarity = v
	f.touch()
}

// SetOctaveCount sets the number of octaves. Zero or negative counts make the
// fractal evaluate to 0 everywhere.
func (f *Fractal) SetOctaveCount(n int) {
	f.octaves = n
	f.touch()
}

func (f *Fractal) SetSource(g Generator) {
	mustGenerator(g, "fractal source")
	f.source = g
	f.touch()
}

func (f *Fractal) Revision() uint64 {
	return f.revision.Load() + Revision(f.source)
}

func (f *Fractal) touch() {
	f.revision.Add(1)
}

// forkSource returns a forked source and whether it differs from the current one.
func (f *Fractal) forkSource() (Generator, bool) {
	src := Fork(f.source)
	return src, src != f.source
}

func (f *Fractal) copyFrom(o *Fractal, source Generator, combiner OctaveCombiner) {
	f.source = source
	f.frequency = o.frequency
	f.lacunarity = o.lacunarity
	f.octaves = o.octaves
	f.combiner = combiner
	f.revision.Store(o.revision.Load())
}

// Pink is classic 1/f fractal noise.
type Pink struct {
	Fractal
	persistence float64
}

func NewPink(seed int64) *Pink {
	return NewPinkFrom(NewGradient(seed))
}

func NewPinkFrom(source Generator) *Pink {
	p := &Pink{persistence: defaultPersistence}
	p.init(source, p)
	return p
}

func (p *Pink) CombineOctave(octave int, signal, value float64, _ *float64) float64 {
	return value + signal*math.Pow(p.persistence, float64(octave))
}

func (p *Pink) Persistence() float64 { return p.persistence }

func (p *Pink) SetPersistence(v float64) {
	p.persistence = v
	p.touch()
}

func (p *Pink) Fork() Generator {
	src, changed := p.forkSource()
	if !changed {
		return p
	}
	cp := &Pink{persistence: p.persistence}
	cp.copyFrom(&p.Fractal, src, cp)
	return cp
}

// Billow folds each octave's signal into a non-negative bump, giving rounded,
// cloud-like features.
type Billow struct {
	Fractal
	persistence float64
}

func NewBillow(seed int64) *Billow {
	return NewBillowFrom(NewGradient(seed))
}

func NewBillowFrom(source Generator) *Billow {
	b := &Billow{persistence: defaultPersistence}
	b.init(source, b)
	return b
}

func (b *Billow) CombineOctave(octave int, signal, value float64, _ *float64) float64 {
	return value + (2*math.Abs(signal)-1)*math.Pow(b.persistence, float64(octave))
}

func (b *Billow) Persistence() float64 { return b.persistence }

func (b *Billow) SetPersistence(v float64) {
	b.persistence = v
	b.touch()
}

func (b *Billow) Fork() Generator {
	src, changed := b.forkSource()
	if !changed {
		return b
	}
	cp := &Billow{persistence: b.persistence}
	cp.copyFrom(&b.Fractal, src, cp)
	return cp
}

// Ridge is ridged multifractal noise: sharp crests where the source crosses zero,
// with each octave weighted by the previous one.
type Ridge struct {
	Fractal
	offset   float64
	gain     float64
	exponent float64
	weights  []float64
}

func NewRidge(seed int64) *Ridge {
	return NewRidgeFrom(NewGradient(seed))
}

func NewRidgeFrom(source Generator) *Ridge {
	r := &Ridge{offset: 1, gain: 2, exponent: 1}
	r.init(source, r)
	r.computeWeights()
	return r
}

func (r *Ridge) CombineOctave(octave int, signal, value float64, carry *float64) float64 {
	signal = r.offset - math.Abs(signal)
	signal *= signal
	signal *= *carry

	w := signal * r.gain
	if w > 1 {
		w = 1
	}
	if w < 0 {
		w = 0
	}
	*carry = w

	return value + signal*r.spectralWeight(octave)
}

func (r *Ridge) spectralWeight(octave int) float64 {
	if octave < len(r.weights) {
		return r.weights[octave]
	}
	return math.Pow(math.Pow(r.lacunarity, float64(octave)), -r.exponent)
}

func (r *Ridge) computeWeights() {
	n := r.octaves
	if n < 0 {
		n = 0
	}
	weights := make([]float64, n)
	freq := 1.0
	for i := range weights {
		weights[i] = math.Pow(freq, -r.exponent)
		freq *= r.lacunarity
	}
	r.weights = weights
}

func (r *Ridge) Offset() float64   { return r.offset }
func (r *Ridge) Gain() float64     { return r.gain }
func (r *Ridge) Exponent() float64 { return r.exponent }

func (r *Ridge) SetOffset(v float64) {
	r.offset = v
	r.touch()
}

func (r *Ridge) SetGain(v float64) {
	r.gain = v
	r.touch()
}

func (r *Ridge) SetExponent(v float64) {
	r.exponent = v
	r.computeWeights()
	r.touch()
}

func (r *Ridge) SetLacunarity(v float64) {
	r.Fractal.SetLacunarity(v)
	r.computeWeights()
}

func (r *Ridge) SetOctaveCount(n int) {
	r.Fractal.SetOctaveCount(n)
	r.computeWeights()
}

func (r *Ridge) Fork() Generator {
	src, changed := r.forkSource()
	if !changed {
		return r
	}
	cp := &Ridge{offset: r.offset, gain: r.gain, exponent: r.exponent, weights: r.weights}
	cp.copyFrom(&r.Fractal, src, cp)
	return cp
}
