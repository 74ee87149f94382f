package tile

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/noise"
)

func TestComputeDesiredSetIsDisc(t *testing.T) {
	cases := []struct {
		radius int
		want   int
	}{
		{0, 0},
		{1, 1},
		{2, 9},
		{3, 25},
	}
	for _, tc := range cases {
		got := ComputeDesiredSet(mgl64.Vec2{5, 5}, tc.radius, 10)
		if len(got) != tc.want {
			t.Fatalf("radius %d: %d tiles want %d", tc.radius, len(got), tc.want)
		}
		for _, p := range got {
			if p.X*p.X+p.Z*p.Z >= tc.radius*tc.radius {
				t.Fatalf("radius %d: %v outside disc", tc.radius, p)
			}
		}
	}
}

func TestPositionOf(t *testing.T) {
	cases := []struct {
		w    mgl64.Vec2
		want GridPosition
	}{
		{mgl64.Vec2{0, 0}, GridPosition{0, 0}},
		{mgl64.Vec2{-0.5, 3}, GridPosition{-1, 1}},
		{mgl64.Vec2{4, -4}, GridPosition{2, -2}},
	}
	for _, tc := range cases {
		if got := PositionOf(tc.w, 2); got != tc.want {
			t.Fatalf("PositionOf(%v)=%v want %v", tc.w, got, tc.want)
		}
	}
}

func TestTileSampling(t *testing.T) {
	// 3x3 grid over length 2: height = x + 10*z in cell units.
	h := []float64{
		0, 1, 2,
		10, 11, 12,
		20, 21, 22,
	}
	m := biome.Map{Res: 3, Dominant: []int{0, 0, 1, 0, 1, 1, 2, 2, 2}}
	tl := New(GridPosition{1, -1}, 3, 2, h, m)

	if v := tl.HeightAt(0.5, 0.5); math.Abs(v-5.5) > 1e-12 {
		t.Fatalf("HeightAt=%v want 5.5", v)
	}
	if v := tl.HeightAt(5, 5); v != 22 {
		t.Fatalf("HeightAt clamps: %v", v)
	}
	if v := tl.NormalizedHeightAt(2, 2); v != 1 {
		t.Fatalf("NormalizedHeightAt=%v", v)
	}
	if b := tl.BiomeAt(2, 0); b != 1 {
		t.Fatalf("BiomeAt=%d", b)
	}
	if s := tl.SlopeAt(1, 1); s <= 0 || s >= 90 {
		t.Fatalf("SlopeAt=%v", s)
	}
	if o := tl.Origin(); o != (mgl64.Vec2{2, -2}) {
		t.Fatalf("Origin=%v", o)
	}

	d := tl.DigestHex()
	tl.Destroy()
	if tl.HeightAt(1, 1) != 0 || tl.BiomeAt(1, 1) != -1 {
		t.Fatalf("destroyed tile still answers queries")
	}
	if tl.DigestHex() != d {
		t.Fatalf("digest changed after destroy")
	}
}

func testBuilder() *TerrainBuilder {
	height := noise.NewPink(42)
	s := biome.NewSampler(biome.Combiner{Rule: biome.MixAdd}, 32,
		&biome.Biome{Name: "low", Height: &biome.Mask{Generator: height, Constraint: biome.NewConstraint(0, 0.6)}, Blend: 0.1},
		&biome.Biome{Name: "high", Height: &biome.Mask{Generator: height, Constraint: biome.NewConstraint(0.4, 1)}, Blend: 0.1},
	)
	return &TerrainBuilder{
		Height:       height,
		Sampler:      s,
		Amplitude:    20,
		Spread:       32,
		Resolution:   9,
		Length:       16,
		CellsPerStep: 10,
	}
}

func TestTerrainBuilderDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := testBuilder().Build(ctx, GridPosition{3, -7})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := testBuilder().Build(ctx, GridPosition{3, -7})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("digests differ for identical definitions")
	}
	c, _ := testBuilder().Build(ctx, GridPosition{4, -7})
	if c.Digest() == a.Digest() {
		t.Fatalf("different tiles share a digest")
	}
	if len(a.Heights()) != 81 || len(a.Weights()) != 2 || len(a.Dominant()) != 81 {
		t.Fatalf("unexpected grid sizes")
	}
}

func TestJobStepsAreBounded(t *testing.T) {
	st := testBuilder().NewJob(GridPosition{0, 0})
	steps := 1
	for !st.Step() {
		steps++
	}
	// 81 height cells at 10 per step, then two single-mask biomes of three
	// passes each plus the combine pass: 567 operations at 10 per step.
	if steps != 9+57 {
		t.Fatalf("steps=%d want 66", steps)
	}
	if tl, err := st.Result(); err != nil || tl == nil {
		t.Fatalf("Result=%v,%v", tl, err)
	}
	if !st.Step() {
		t.Fatalf("Step after completion should report done")
	}
}

func TestJobBoundsBiomeEvaluations(t *testing.T) {
	evals := 0
	mask := noise.NewFunction(func(x, _, z float64) float64 {
		evals++
		return x + z
	})
	b := &TerrainBuilder{
		Height: noise.NewConstant(0),
		Sampler: biome.NewSampler(biome.Combiner{Rule: biome.MixMax}, 1,
			&biome.Biome{Name: "all", Height: &biome.Mask{Generator: mask, Constraint: biome.NewConstraint(0, 1)}},
		),
		Resolution:   33,
		Length:       32,
		CellsPerStep: 16,
	}
	st := b.NewJob(GridPosition{0, 0})
	worst := 0
	for {
		before := evals
		done := st.Step()
		worst = max(worst, evals-before)
		if done {
			break
		}
	}
	if worst > 16 {
		t.Fatalf("one step evaluated %d mask cells, want <= 16", worst)
	}
	if evals != 33*33 {
		t.Fatalf("mask evaluations=%d want %d", evals, 33*33)
	}
	tl, err := st.Result()
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	direct := b.Sampler.Sample(tl.Origin(), 33, 32)
	for i, d := range direct.Dominant {
		if tl.Dominant()[i] != d {
			t.Fatalf("cell %d: stepped dominant %d, direct %d", i, tl.Dominant()[i], d)
		}
	}
}

func TestJobRejectsNonFiniteHeights(t *testing.T) {
	b := testBuilder()
	b.Height = noise.NewFunction(func(x, _, _ float64) float64 {
		if x > 0.1 {
			return math.NaN()
		}
		return 0
	})
	b.Sampler = nil
	_, err := b.Build(context.Background(), GridPosition{0, 0})
	if err == nil || !strings.Contains(err.Error(), "non-finite") {
		t.Fatalf("err=%v", err)
	}
}

func TestJobRecoversPanics(t *testing.T) {
	b := testBuilder()
	b.Height = noise.NewFunction(func(_, _, _ float64) float64 { panic("boom") })
	_, err := b.Build(context.Background(), GridPosition{0, 0})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err=%v", err)
	}
}

func TestBuilderValidation(t *testing.T) {
	b := &TerrainBuilder{Resolution: 4, Length: 1}
	if _, err := b.Build(context.Background(), GridPosition{}); err == nil {
		t.Fatalf("missing height generator accepted")
	}
	b = &TerrainBuilder{Height: noise.NewConstant(1), Resolution: 1, Length: 1}
	if _, err := b.Build(context.Background(), GridPosition{}); err == nil {
		t.Fatalf("resolution 1 accepted")
	}
}

func TestBuildHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := testBuilder().Build(ctx, GridPosition{}); err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
