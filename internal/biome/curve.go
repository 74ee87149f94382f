package biome

import "sort"

// Key is one curve keyframe.
type Key struct {
	T float64 `yaml:"t" json:"t"`
	V float64 `yaml:"v" json:"v"`
}

// Curve is a piecewise-linear function through its keys. Outside the first and
// last key the curve is flat. An empty curve evaluates to 1 everywhere.
type Curve struct {
	keys []Key
}

func NewCurve(keys ...Key) Curve {
	ks := append([]Key(nil), keys...)
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].T < ks[j].T })
	return Curve{keys: ks}
}

func (c Curve) Keys() []Key { return append([]Key(nil), c.keys...) }

func (c Curve) Evaluate(t float64) float64 {
	n := len(c.keys)
	if n == 0 {
		return 1
	}
	if t <= c.keys[0].T {
		return c.keys[0].V
	}
	if t >= c.keys[n-1].T {
		return c.keys[n-1].V
	}
	i := sort.Search(n, func(i int) bool { return c.keys[i].T > t })
	a, b := c.keys[i-1], c.keys[i]
	if b.T == a.T {
		return b.V
	}
	u := (t - a.T) / (b.T - a.T)
	return a.V + u*(b.V-a.V)
}
