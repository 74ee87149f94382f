package noise

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType is returned by Build for a type name that has no factory.
var ErrUnknownType = errors.New("noise: unknown generator type")

// Spec is the declarative description of a generator tree, as read from tuning
// documents. Fields that do not apply to a type are ignored.
type Spec struct {
	Type string `yaml:"type" json:"type"`
	Seed int64  `yaml:"seed,omitempty" json:"seed,omitempty"`

	Frequency   float64 `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Lacunarity  float64 `yaml:"lacunarity,omitempty" json:"lacunarity,omitempty"`
	Persistence float64 `yaml:"persistence,omitempty" json:"persistence,omitempty"`
	// Octaves 0 selects the default count. Negative disables every octave.
	Octaves  int     `yaml:"octaves,omitempty" json:"octaves,omitempty"`
	Offset   float64 `yaml:"offset,omitempty" json:"offset,omitempty"`
	Gain     float64 `yaml:"gain,omitempty" json:"gain,omitempty"`
	Exponent float64 `yaml:"exponent,omitempty" json:"exponent,omitempty"`
	Curve    string  `yaml:"curve,omitempty" json:"curve,omitempty"`

	Distance string `yaml:"distance,omitempty" json:"distance,omitempty"`
	Combine  string `yaml:"combine,omitempty" json:"combine,omitempty"`

	Value float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Scale float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
	Bias  float64 `yaml:"bias,omitempty" json:"bias,omitempty"`
	Min   float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max   float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Alpha float64 `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Beta  float64 `yaml:"beta,omitempty" json:"beta,omitempty"`

	// Threshold and Falloff configure select.
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Falloff   float64 `yaml:"falloff,omitempty" json:"falloff,omitempty"`
	// X, Y and Z are the per-axis offsets of translate and factors of scale.
	// A zero scale factor means 1.
	X float64 `yaml:"x,omitempty" json:"x,omitempty"`
	Y float64 `yaml:"y,omitempty" json:"y,omitempty"`
	Z float64 `yaml:"z,omitempty" json:"z,omitempty"`

	// Source feeds fractals and unary operators. A fractal without a source
	// samples gradient noise seeded with Seed.
	Source *Spec `yaml:"source,omitempty" json:"source,omitempty"`
	// Inputs feeds binary operators (two entries) and blend (a, b, control).
	Inputs []Spec `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// Factory builds a generator from a spec. r resolves nested specs.
type Factory func(r *Registry, s Spec) (Generator, error)

// Registry maps type names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding every built-in generator type.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	registerBuiltins(r)
	return r
}

// Default is the registry used by the package-level Build.
var Default = NewRegistry()

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("noise: Register requires a name and a factory")
	}
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the generator tree described by s.
func (r *Registry) Build(s Spec) (Generator, error) {
	r.mu.RLock()
	f, ok := r.factories[s.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	g, err := f(r, s)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", s.Type, err)
	}
	return g, nil
}

func Register(name string, f Factory) { Default.Register(name, f) }

func Build(s Spec) (Generator, error) { return Default.Build(s) }

func registerBuiltins(r *Registry) {
	r.factories["constant"] = func(_ *Registry, s Spec) (Generator, error) {
		return NewConstant(s.Value), nil
	}
	r.factories["gradient"] = func(_ *Registry, s Spec) (Generator, error) {
		c, err := ParseSCurve(s.Curve)
		if err != nil {
			return nil, err
		}
		return NewGradient(s.Seed).WithCurve(c).WithFrequency(orOne(s.Frequency)), nil
	}
	r.factories["value"] = func(_ *Registry, s Spec) (Generator, error) {
		c, err := ParseSCurve(s.Curve)
		if err != nil {
			return nil, err
		}
		return NewValue(s.Seed).WithCurve(c).WithFrequency(orOne(s.Frequency)), nil
	}
	r.factories["cell"] = func(_ *Registry, s Spec) (Generator, error) {
		d, err := ParseDistance(s.Distance)
		if err != nil {
			return nil, err
		}
		comb, err := ParseCellCombine(s.Combine)
		if err != nil {
			return nil, err
		}
		return NewCell(s.Seed).WithFrequency(orOne(s.Frequency)).WithDistance(d).WithCombine(comb), nil
	}
	r.factories["cell_value"] = func(_ *Registry, s Spec) (Generator, error) {
		d, err := ParseDistance(s.Distance)
		if err != nil {
			return nil, err
		}
		return NewCellValue(s.Seed).WithFrequency(orOne(s.Frequency)).WithDistance(d), nil
	}
	r.factories["perlin"] = func(_ *Registry, s Spec) (Generator, error) {
		return NewPerlin(s.Seed, s.Alpha, s.Beta, int32(s.Octaves)).WithFrequency(orOne(s.Frequency)), nil
	}
	r.factories["simplex"] = func(_ *Registry, s Spec) (Generator, error) {
		return NewSimplex(s.Seed).WithFrequency(orOne(s.Frequency)), nil
	}

	r.factories["pink"] = func(r *Registry, s Spec) (Generator, error) {
		src, err := r.fractalSource(s)
		if err != nil {
			return nil, err
		}
		p := NewPinkFrom(src)
		applyFractal(&p.Fractal, s)
		if s.Persistence != 0 {
			p.SetPersistence(s.Persistence)
		}
		return p, nil
	}
	r.factories["billow"] = func(r *Registry, s Spec) (Generator, error) {
		src, err := r.fractalSource(s)
		if err != nil {
			return nil, err
		}
		b := NewBillowFrom(src)
		applyFractal(&b.Fractal, s)
		if s.Persistence != 0 {
			b.SetPersistence(s.Persistence)
		}
		return b, nil
	}
	r.factories["ridge"] = func(r *Registry, s Spec) (Generator, error) {
		src, err := r.fractalSource(s)
		if err != nil {
			return nil, err
		}
		g := NewRidgeFrom(src)
		if s.Frequency != 0 {
			g.SetFrequency(s.Frequency)
		}
		if s.Lacunarity != 0 {
			g.SetLacunarity(s.Lacunarity)
		}
		if s.Octaves != 0 {
			g.SetOctaveCount(s.Octaves)
		}
		if s.Offset != 0 {
			g.SetOffset(s.Offset)
		}
		if s.Gain != 0 {
			g.SetGain(s.Gain)
		}
		if s.Exponent != 0 {
			g.SetExponent(s.Exponent)
		}
		return g, nil
	}

	binary := map[string]func(a, b Generator) *Binary{
		"add": Add, "sub": Sub, "mul": Mul, "min": Min, "max": Max,
	}
	for name, op := range binary {
		r.factories[name] = func(r *Registry, s Spec) (Generator, error) {
			in, err := r.inputs(s, 2)
			if err != nil {
				return nil, err
			}
			return op(in[0], in[1]), nil
		}
	}
	r.factories["blend"] = func(r *Registry, s Spec) (Generator, error) {
		in, err := r.inputs(s, 3)
		if err != nil {
			return nil, err
		}
		return NewBlend(in[0], in[1], in[2]), nil
	}
	r.factories["select"] = func(r *Registry, s Spec) (Generator, error) {
		in, err := r.inputs(s, 3)
		if err != nil {
			return nil, err
		}
		return NewSelect(in[0], in[1], in[2], s.Threshold, s.Falloff), nil
	}

	r.factories["abs"] = unaryFactory(func(g Generator, _ Spec) Generator { return Abs(g) })
	r.factories["invert"] = unaryFactory(func(g Generator, _ Spec) Generator { return Invert(g) })
	r.factories["scale_bias"] = unaryFactory(func(g Generator, s Spec) Generator {
		return ScaleBias(g, orOne(s.Scale), s.Bias)
	})
	r.factories["clamp"] = unaryFactory(func(g Generator, s Spec) Generator { return Clamp(g, s.Min, s.Max) })
	r.factories["power"] = unaryFactory(func(g Generator, s Spec) Generator { return Power(g, orOne(s.Exponent)) })
	r.factories["cache"] = unaryFactory(func(g Generator, _ Spec) Generator { return NewCache(g) })
	r.factories["remap"] = unaryFactory(func(g Generator, _ Spec) Generator { return NewRemap(g) })
	r.factories["translate"] = unaryFactory(func(g Generator, s Spec) Generator { return Translate(g, s.X, s.Y, s.Z) })
	r.factories["scale"] = unaryFactory(func(g Generator, s Spec) Generator {
		return Scale(g, orOne(s.X), orOne(s.Y), orOne(s.Z))
	})
}

func unaryFactory(wrap func(g Generator, s Spec) Generator) Factory {
	return func(r *Registry, s Spec) (Generator, error) {
		if s.Source == nil {
			return nil, errors.New("missing source")
		}
		src, err := r.Build(*s.Source)
		if err != nil {
			return nil, err
		}
		return wrap(src, s), nil
	}
}

func (r *Registry) fractalSource(s Spec) (Generator, error) {
	if s.Source == nil {
		return NewGradient(s.Seed), nil
	}
	return r.Build(*s.Source)
}

func (r *Registry) inputs(s Spec, n int) ([]Generator, error) {
	if len(s.Inputs) != n {
		return nil, fmt.Errorf("want %d inputs, got %d", n, len(s.Inputs))
	}
	out := make([]Generator, n)
	for i, in := range s.Inputs {
		g, err := r.Build(in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out[i] = g
	}
	return out, nil
}

func applyFractal(f *Fractal, s Spec) {
	if s.Frequency != 0 {
		f.SetFrequency(s.Frequency)
	}
	if s.Lacunarity != 0 {
		f.SetLacunarity(s.Lacunarity)
	}
	if s.Octaves != 0 {
		f.SetOctaveCount(s.Octaves)
	}
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
