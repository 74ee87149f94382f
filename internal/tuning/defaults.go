package tuning

import (
	"fmt"
	"strings"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/noise"
)

// Default returns the built-in world: rolling billow hills cut by ridges, four
// biomes and three detail layers.
func Default() Tuning {
	return Tuning{
		Seed:       1337,
		TickRateHz: 10,
		Tile: TileConfig{
			Length:        64,
			Resolution:    33,
			Radius:        3,
			CacheCapacity: 32,
			CellsPerStep:  1024,
			StepsPerTick:  8,
		},
		Height: HeightConfig{
			Generator: noise.Spec{
				Type: "sub",
				Inputs: []noise.Spec{
					{Type: "billow", Seed: 534},
					{Type: "add", Inputs: []noise.Spec{
						{Type: "ridge", Seed: 1337, Frequency: 2},
						{Type: "pink", Seed: 234},
					}},
				},
			},
			Amplitude: 24,
			Spread:    256,
		},
		Biomes: BiomesConfig{
			Combiner: "max",
			Spread:   512,
			List: []BiomeConfig{
				{
					Name:   "ocean",
					Blend:  0.05,
					Height: &MaskConfig{Generator: noise.Spec{Type: "pink", Seed: 11}, Min: 0, Max: 0.3},
				},
				{
					Name:        "plains",
					Blend:       0.1,
					Height:      &MaskConfig{Generator: noise.Spec{Type: "pink", Seed: 11}, Min: 0.25, Max: 0.7},
					Temperature: &MaskConfig{Generator: noise.Spec{Type: "simplex", Seed: 21}, Min: 0.3, Max: 1},
				},
				{
					Name:     "forest",
					Blend:    0.1,
					Height:   &MaskConfig{Generator: noise.Spec{Type: "pink", Seed: 11}, Min: 0.25, Max: 0.8},
					Moisture: &MaskConfig{Generator: noise.Spec{Type: "value", Seed: 31, Frequency: 2}, Min: 0.5, Max: 1},
				},
				{
					Name:   "mountains",
					Blend:  0.15,
					Height: &MaskConfig{Generator: noise.Spec{Type: "pink", Seed: 11}, Min: 0.65, Max: 1},
				},
			},
		},
		Details: []DetailConfig{
			{
				Name: "tree", Prefab: "props/tree", Spacing: 6, MaxInstances: 64,
				Height: &RangeConfig{Min: 0.2, Max: 0.8}, Slope: &RangeConfig{Min: 0, Max: 30},
				Biomes: []string{"forest", "plains"},
			},
			{
				Name: "rock", Prefab: "props/rock", Spacing: 9, MaxInstances: 32,
				Slope:       &RangeConfig{Min: 10, Max: 90},
				Probability: []biome.Key{{T: 0, V: 0.2}, {T: 1, V: 0.9}},
			},
			{
				Name: "grass", Prefab: "props/grass", Spacing: 2, MaxInstances: 256,
				Height: &RangeConfig{Min: 0.1, Max: 0.6}, Slope: &RangeConfig{Min: 0, Max: 20},
				Biomes: []string{"plains"},
			},
		},
	}
}

// Normalize fills unset fields with their defaults.
func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	def := Default()
	if t.TickRateHz <= 0 {
		t.TickRateHz = def.TickRateHz
	}
	if t.Tile.Length <= 0 {
		t.Tile.Length = def.Tile.Length
	}
	if t.Tile.Resolution <= 0 {
		t.Tile.Resolution = def.Tile.Resolution
	}
	if t.Tile.Radius <= 0 {
		t.Tile.Radius = def.Tile.Radius
	}
	if t.Tile.CacheCapacity < 0 {
		t.Tile.CacheCapacity = 0
	}
	if t.Tile.CellsPerStep <= 0 {
		t.Tile.CellsPerStep = def.Tile.CellsPerStep
	}
	if t.Tile.StepsPerTick <= 0 {
		t.Tile.StepsPerTick = def.Tile.StepsPerTick
	}
	if t.Height.Amplitude == 0 {
		t.Height.Amplitude = 1
	}
	if t.Height.Spread <= 0 {
		t.Height.Spread = 1
	}
	t.Biomes.Combiner = strings.ToLower(strings.TrimSpace(t.Biomes.Combiner))
	if t.Biomes.Combiner == "" {
		t.Biomes.Combiner = "max"
	}
	if t.Biomes.Spread <= 0 {
		t.Biomes.Spread = 1
	}
	for i := range t.Biomes.List {
		t.Biomes.List[i].Name = strings.TrimSpace(t.Biomes.List[i].Name)
	}
	for i := range t.Details {
		d := &t.Details[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Height == nil {
			d.Height = &RangeConfig{Min: 0, Max: 1}
		}
		if d.Slope == nil {
			d.Slope = &RangeConfig{Min: 0, Max: 90}
		}
		if d.MaxInstances == 0 {
			d.MaxInstances = -1
		}
	}
}

// Validate checks the cross-field rules the schema cannot express.
func (t Tuning) Validate() error {
	if t.Tile.Resolution < 2 {
		return fmt.Errorf("%w: tile.resolution must be >= 2", ErrInvalid)
	}
	if _, err := biome.ParseMixRule(t.Biomes.Combiner); err != nil {
		return fmt.Errorf("%w: biomes.combiner: %v", ErrInvalid, err)
	}
	if _, err := noise.Build(t.Height.Generator); err != nil {
		return fmt.Errorf("%w: height.generator: %v", ErrInvalid, err)
	}

	names := map[string]bool{}
	for i, b := range t.Biomes.List {
		if b.Name == "" {
			return fmt.Errorf("%w: biomes.list[%d] name must not be empty", ErrInvalid, i)
		}
		if names[b.Name] {
			return fmt.Errorf("%w: duplicate biome name: %s", ErrInvalid, b.Name)
		}
		names[b.Name] = true
		for _, m := range []struct {
			field string
			mask  *MaskConfig
		}{{"height", b.Height}, {"temperature", b.Temperature}, {"moisture", b.Moisture}} {
			if m.mask == nil {
				continue
			}
			if _, err := noise.Build(m.mask.Generator); err != nil {
				return fmt.Errorf("%w: biome %s %s: %v", ErrInvalid, b.Name, m.field, err)
			}
		}
	}

	details := map[string]bool{}
	for i, d := range t.Details {
		if d.Name == "" {
			return fmt.Errorf("%w: details[%d] name must not be empty", ErrInvalid, i)
		}
		if details[d.Name] {
			return fmt.Errorf("%w: duplicate detail name: %s", ErrInvalid, d.Name)
		}
		details[d.Name] = true
		if d.Spacing <= 0 {
			return fmt.Errorf("%w: detail %s spacing must be > 0", ErrInvalid, d.Name)
		}
		for _, bn := range d.Biomes {
			if !names[bn] {
				return fmt.Errorf("%w: detail %s references unknown biome %q", ErrInvalid, d.Name, bn)
			}
		}
	}
	return nil
}

// BiomeIndex returns the position of the named biome in the list, or -1.
func (t Tuning) BiomeIndex(name string) int {
	for i, b := range t.Biomes.List {
		if b.Name == name {
			return i
		}
	}
	return -1
}

// Seeded returns a copy of s with every seed in the tree offset by the world
// seed.
func (t Tuning) Seeded(s noise.Spec) noise.Spec {
	out := s
	out.Seed += t.Seed
	if s.Source != nil {
		src := t.Seeded(*s.Source)
		out.Source = &src
	}
	if len(s.Inputs) > 0 {
		out.Inputs = make([]noise.Spec, len(s.Inputs))
		for i, in := range s.Inputs {
			out.Inputs[i] = t.Seeded(in)
		}
	}
	return out
}
