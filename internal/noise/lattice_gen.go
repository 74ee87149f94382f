package noise

// Gradient is lattice gradient noise. Values lie roughly in [-1,1] and are 0 on
// every integer lattice point.
type Gradient struct {
	seed      int32
	frequency float64
	curve     SCurve
}

func NewGradient(seed int64) *Gradient {
	return &Gradient{seed: int32(seed), frequency: 1, curve: Quintic}
}

func (g *Gradient) WithCurve(c SCurve) *Gradient {
	cp := *g
	cp.curve = c
	return &cp
}

func (g *Gradient) WithFrequency(f float64) *Gradient {
	cp := *g
	cp.frequency = f
	return &cp
}

func (g *Gradient) Evaluate(x, y, z float64) float64 {
	f := g.frequency
	return gradientCoherent(x*f, y*f, z*f, g.seed, g.curve)
}

// Value is interpolated lattice value noise in [-1,1].
type Value struct {
	seed      int32
	frequency float64
	curve     SCurve
}

func NewValue(seed int64) *Value {
	return &Value{seed: int32(seed), frequency: 1, curve: Quintic}
}

func (v *Value) WithCurve(c SCurve) *Value {
	cp := *v
	cp.curve = c
	return &cp
}

func (v *Value) WithFrequency(f float64) *Value {
	cp := *v
	cp.frequency = f
	return &cp
}

func (v *Value) Evaluate(x, y, z float64) float64 {
	f := v.frequency
	return valueCoherent(x*f, y*f, z*f, v.seed, v.curve)
}
