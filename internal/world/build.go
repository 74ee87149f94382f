package world

import (
	"fmt"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/noise"
	"terrainforge.dev/internal/scatter"
	"terrainforge.dev/internal/tuning"
)

// buildHeight builds the height generator with the world seed folded in.
func buildHeight(t tuning.Tuning) (noise.Generator, error) {
	g, err := noise.Build(t.Seeded(t.Height.Generator))
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	return g, nil
}

func buildMask(t tuning.Tuning, m *tuning.MaskConfig) (*biome.Mask, error) {
	if m == nil {
		return nil, nil
	}
	g, err := noise.Build(t.Seeded(m.Generator))
	if err != nil {
		return nil, err
	}
	return &biome.Mask{Generator: g, Constraint: biome.NewConstraint(m.Min, m.Max)}, nil
}

// buildSampler builds one biome per configured entry, in list order.
func buildSampler(t tuning.Tuning) (*biome.Sampler, error) {
	rule, err := biome.ParseMixRule(t.Biomes.Combiner)
	if err != nil {
		return nil, err
	}
	biomes := make([]*biome.Biome, 0, len(t.Biomes.List))
	for _, bc := range t.Biomes.List {
		b := &biome.Biome{Name: bc.Name, Blend: bc.Blend}
		if b.Height, err = buildMask(t, bc.Height); err != nil {
			return nil, fmt.Errorf("biome %s height: %w", bc.Name, err)
		}
		if b.Temperature, err = buildMask(t, bc.Temperature); err != nil {
			return nil, fmt.Errorf("biome %s temperature: %w", bc.Name, err)
		}
		if b.Moisture, err = buildMask(t, bc.Moisture); err != nil {
			return nil, fmt.Errorf("biome %s moisture: %w", bc.Name, err)
		}
		biomes = append(biomes, b)
	}
	return biome.NewSampler(biome.Combiner{Rule: rule}, t.Biomes.Spread, biomes...), nil
}

// buildPlacer resolves detail biome names to sampler indices.
func buildPlacer(t tuning.Tuning) (*scatter.Placer, error) {
	p := &scatter.Placer{Seed: t.Seed}
	for _, dc := range t.Details {
		d := scatter.DetailSpec{
			Name:         dc.Name,
			Prefab:       dc.Prefab,
			Spacing:      dc.Spacing,
			MaxInstances: dc.MaxInstances,
			Height:       biome.NewConstraint(0, 1),
			Slope:        biome.NewConstraint(0, 90),
			Probability:  biome.NewCurve(dc.Probability...),
		}
		if dc.Height != nil {
			d.Height = biome.NewConstraint(dc.Height.Min, dc.Height.Max)
		}
		if dc.Slope != nil {
			d.Slope = biome.NewConstraint(dc.Slope.Min, dc.Slope.Max)
		}
		for _, name := range dc.Biomes {
			idx := t.BiomeIndex(name)
			if idx < 0 {
				return nil, fmt.Errorf("detail %s: unknown biome %q", dc.Name, name)
			}
			d.Biomes = append(d.Biomes, idx)
		}
		p.Details = append(p.Details, d)
	}
	return p, nil
}
