package biome

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/noise"
)

func TestConstraintKeepsOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := NewConstraint(0.8, 0.2)
	if c.Min() > c.Max() {
		t.Fatalf("constructor left min > max: %v", c)
	}
	for i := 0; i < 1000; i++ {
		v := rng.Float64()*4 - 2
		if rng.Intn(2) == 0 {
			c.SetMin(v)
		} else {
			c.SetMax(v)
		}
		if c.Min() > c.Max() {
			t.Fatalf("step %d: min %v > max %v", i, c.Min(), c.Max())
		}
	}
}

func TestConstraintSetters(t *testing.T) {
	c := NewConstraint(0.2, 0.6)
	c.SetMin(0.9)
	if c.Min() != 0.6 || c.Max() != 0.6 {
		t.Fatalf("SetMin above max: %v", c)
	}
	c.SetMax(0.1)
	if c.Min() != 0.6 || c.Max() != 0.6 {
		t.Fatalf("SetMax below min: %v", c)
	}
}

func TestConstraintWeight(t *testing.T) {
	c := NewConstraint(0.25, 0.75)
	cases := []struct {
		v, blend, want float64
	}{
		{0.1, 0.1, 0},
		{0.9, 0.1, 0},
		{0.5, 0, 1},
		{0.25, 0.1, 0},
		{0.3, 0.1, 0.5},
		{0.5, 0.1, 1},
		{0.7, 0.1, 0.5},
		{0.75, 0.1, 0},
	}
	for _, tc := range cases {
		if got := c.Weight(tc.v, tc.blend); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Weight(%v,%v)=%v want %v", tc.v, tc.blend, got, tc.want)
		}
	}

	full := NewConstraint(0, 1)
	for _, v := range []float64{0, 0.5, 1} {
		if w := full.Weight(v, 0.2); w != 1 {
			t.Fatalf("unit range Weight(%v)=%v want 1", v, w)
		}
	}
}

func TestCurve(t *testing.T) {
	if v := NewCurve().Evaluate(0.3); v != 1 {
		t.Fatalf("empty curve=%v", v)
	}
	c := NewCurve(Key{T: 1, V: 0}, Key{T: 0, V: 1})
	cases := map[float64]float64{-1: 1, 0: 1, 0.25: 0.75, 1: 0, 2: 0}
	for in, want := range cases {
		if got := c.Evaluate(in); math.Abs(got-want) > 1e-12 {
			t.Fatalf("curve(%v)=%v want %v", in, got, want)
		}
	}
}

// ramp returns a generator equal to the world x coordinate.
func ramp() noise.Generator {
	return noise.NewFunction(func(x, _, _ float64) float64 { return x })
}

func TestBiomeWithoutMasksIsEverywhere(t *testing.T) {
	g := (&Biome{Name: "plains"}).Weights(mgl64.Vec2{}, 4, 1, 3)
	for i, v := range g.Cells {
		if v != 1 {
			t.Fatalf("cell %d=%v want 1", i, v)
		}
	}
}

func TestFlatMaskNormalizesToZero(t *testing.T) {
	b := &Biome{Height: &Mask{Generator: noise.NewConstant(3), Constraint: NewConstraint(0, 0.1)}}
	g := b.Weights(mgl64.Vec2{}, 3, 1, 2)
	for i, v := range g.Cells {
		if v != 1 {
			t.Fatalf("cell %d=%v want 1 (flat map normalizes to 0, which fits)", i, v)
		}
	}
}

// The mean is taken over the masks a cell fits, so a mask entering its range
// lowers the weight abruptly. This pins that behaviour.
func TestContributingMaskCountDiscontinuity(t *testing.T) {
	b := &Biome{
		Height:      &Mask{Generator: noise.NewConstant(1), Constraint: NewConstraint(0, 1)},
		Temperature: &Mask{Generator: ramp(), Constraint: NewConstraint(0.5, 1)},
		Blend:       0.5,
	}
	g := b.Weights(mgl64.Vec2{}, 5, 1, 4)
	want := []float64{1, 1, 0.5, 0.75, 1}
	for x, w := range want {
		for z := 0; z < 5; z++ {
			if got := g.At(x, z); math.Abs(got-w) > 1e-12 {
				t.Fatalf("cell (%d,%d)=%v want %v", x, z, got, w)
			}
		}
	}
}

func TestCombinerRules(t *testing.T) {
	cases := []struct {
		name string
		rule MixRule
		in   []float64
		want []float64
		dom  int
	}{
		{"max", MixMax, []float64{0.2, 0.7, 0.7}, []float64{0, 1, 0}, 1},
		{"min", MixMin, []float64{0.2, 0, 0.7}, []float64{1, 0, 0}, 0},
		{"add", MixAdd, []float64{0.25, 0.75, 0}, []float64{0.25, 0.75, 0}, 1},
		{"add_scaled", MixAdd, []float64{0.5, 0.5}, []float64{0.5, 0.5}, 0},
		{"all_zero", MixAdd, []float64{0, 0}, []float64{0, 0}, -1},
		{"all_zero_max", MixMax, []float64{0, 0}, []float64{0, 0}, -1},
	}
	for _, tc := range cases {
		w := append([]float64(nil), tc.in...)
		dom := Combiner{Rule: tc.rule}.Combine(w)
		if dom != tc.dom {
			t.Fatalf("%s: dominant=%d want %d", tc.name, dom, tc.dom)
		}
		for i := range w {
			if math.Abs(w[i]-tc.want[i]) > 1e-12 {
				t.Fatalf("%s: weights=%v want %v", tc.name, w, tc.want)
			}
		}
	}
}

func testSampler(rule MixRule) *Sampler {
	low := &Biome{Name: "low", Height: &Mask{Generator: noise.NewPink(1), Constraint: NewConstraint(0, 0.5)}, Blend: 0.1}
	high := &Biome{Name: "high", Height: &Mask{Generator: noise.NewPink(1), Constraint: NewConstraint(0.4, 1)}, Blend: 0.1}
	wet := &Biome{Name: "wet", Moisture: &Mask{Generator: noise.NewBillow(2), Constraint: NewConstraint(0.3, 0.9)}, Blend: 0.2}
	return NewSampler(Combiner{Rule: rule}, 16, low, high, wet)
}

func TestSamplerWeightsSumToOneOrZero(t *testing.T) {
	for _, rule := range []MixRule{MixMax, MixMin, MixAdd} {
		s := testSampler(rule)
		m := s.Sample(mgl64.Vec2{-32, 64}, 17, 32)
		for c := 0; c < 17*17; c++ {
			sum := 0.0
			for _, g := range m.Weights {
				v := g.Cells[c]
				if v < 0 || v > 1 {
					t.Fatalf("%v: weight %v out of range", rule, v)
				}
				sum += v
			}
			if sum != 0 && math.Abs(sum-1) > 1e-9 {
				t.Fatalf("%v: cell %d sums to %v", rule, c, sum)
			}
			if (sum == 0) != (m.Dominant[c] == -1) {
				t.Fatalf("%v: cell %d sum %v dominant %d", rule, c, sum, m.Dominant[c])
			}
		}
	}
}

func TestSamplerDeterministic(t *testing.T) {
	a := testSampler(MixAdd).GetWeights(mgl64.Vec2{100, -50}, 9, 64)
	b := testSampler(MixAdd).Fork().GetWeights(mgl64.Vec2{100, -50}, 9, 64)
	for i := range a {
		for c := range a[i].Cells {
			if a[i].Cells[c] != b[i].Cells[c] {
				t.Fatalf("biome %d cell %d: %v vs %v", i, c, a[i].Cells[c], b[i].Cells[c])
			}
		}
	}
	d1 := testSampler(MixMax).GetDominantBiome(mgl64.Vec2{0, 0}, 9, 64)
	d2 := testSampler(MixMax).GetDominantBiome(mgl64.Vec2{0, 0}, 9, 64)
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("dominant cell %d: %d vs %d", i, d1[i], d2[i])
		}
	}
}

func TestCellPosition(t *testing.T) {
	p := CellPosition(mgl64.Vec2{10, 20}, 5, 8, 4, 2)
	if p != (mgl64.Vec2{18, 24}) {
		t.Fatalf("CellPosition=%v", p)
	}
	if p := CellPosition(mgl64.Vec2{1, 2}, 1, 8, 0, 0); p != (mgl64.Vec2{1, 2}) {
		t.Fatalf("single-cell grid=%v", p)
	}
}

func TestSamplingMatchesSample(t *testing.T) {
	origin := mgl64.Vec2{48, -16}
	want := testSampler(MixAdd).Sample(origin, 9, 32)
	for _, n := range []int{1, 7, 81, 1000} {
		sg := testSampler(MixAdd).Sampling(origin, 9, 32)
		steps := 0
		for !sg.Advance(n) {
			steps++
			if steps > 10000 {
				t.Fatalf("n=%d: sampling never finished", n)
			}
		}
		if !sg.Done() {
			t.Fatalf("n=%d: Advance reported done but Done is false", n)
		}
		got := sg.Map()
		for c := range want.Dominant {
			if got.Dominant[c] != want.Dominant[c] {
				t.Fatalf("n=%d cell %d: dominant %d want %d", n, c, got.Dominant[c], want.Dominant[c])
			}
			for b := range want.Weights {
				if got.Weights[b].Cells[c] != want.Weights[b].Cells[c] {
					t.Fatalf("n=%d cell %d biome %d: %v want %v", n, c, b, got.Weights[b].Cells[c], want.Weights[b].Cells[c])
				}
			}
		}
	}
}
