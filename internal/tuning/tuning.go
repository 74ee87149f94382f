// Package tuning loads the terrain tuning document.
package tuning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/noise"
	"terrainforge.dev/schemas"
)

// ErrInvalid wraps every schema or semantic validation failure.
var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	Seed       int64 `yaml:"seed" json:"seed"`
	TickRateHz int   `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	Tile    TileConfig     `yaml:"tile" json:"tile"`
	Height  HeightConfig   `yaml:"height" json:"height"`
	Biomes  BiomesConfig   `yaml:"biomes" json:"biomes"`
	Details []DetailConfig `yaml:"details" json:"details"`
}

type TileConfig struct {
	Length        float64 `yaml:"length" json:"length"`
	Resolution    int     `yaml:"resolution" json:"resolution"`
	Radius        int     `yaml:"radius" json:"radius"`
	CacheCapacity int     `yaml:"cache_capacity" json:"cache_capacity"`
	Workers       int     `yaml:"workers" json:"workers"`
	Paced         bool    `yaml:"paced" json:"paced"`
	CellsPerStep  int     `yaml:"cells_per_step" json:"cells_per_step"`
	StepsPerTick  int     `yaml:"steps_per_tick" json:"steps_per_tick"`
}

type HeightConfig struct {
	Generator noise.Spec `yaml:"generator" json:"generator"`
	Amplitude float64    `yaml:"amplitude" json:"amplitude"`
	Spread    float64    `yaml:"spread" json:"spread"`
}

type BiomesConfig struct {
	Combiner string        `yaml:"combiner" json:"combiner"`
	Spread   float64       `yaml:"spread" json:"spread"`
	List     []BiomeConfig `yaml:"list" json:"list"`
}

type BiomeConfig struct {
	Name        string      `yaml:"name" json:"name"`
	Blend       float64     `yaml:"blend" json:"blend"`
	Height      *MaskConfig `yaml:"height,omitempty" json:"height,omitempty"`
	Temperature *MaskConfig `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Moisture    *MaskConfig `yaml:"moisture,omitempty" json:"moisture,omitempty"`
}

// MaskConfig bounds are in the mask's normalized [0,1] space.
type MaskConfig struct {
	Generator noise.Spec `yaml:"generator" json:"generator"`
	Min       float64    `yaml:"min" json:"min"`
	Max       float64    `yaml:"max" json:"max"`
}

type RangeConfig struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

type DetailConfig struct {
	Name         string       `yaml:"name" json:"name"`
	Prefab       string       `yaml:"prefab" json:"prefab"`
	Spacing      float64      `yaml:"spacing" json:"spacing"`
	MaxInstances int          `yaml:"max_instances" json:"max_instances"`
	Height       *RangeConfig `yaml:"height,omitempty" json:"height,omitempty"`
	Slope        *RangeConfig `yaml:"slope,omitempty" json:"slope,omitempty"`
	Probability  []biome.Key  `yaml:"probability,omitempty" json:"probability,omitempty"`
	Biomes       []string     `yaml:"biomes,omitempty" json:"biomes,omitempty"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		src, err := schemas.Read("tuning.schema.json")
		if err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = jsonschema.CompileString("https://terrainforge.dev/schemas/tuning.schema.json", src)
	})
	return schema, schemaErr
}

// Load reads a tuning document. An empty path yields Default(). The document
// is checked against the tuning schema, merged over the defaults, normalized
// and validated.
func Load(path string) (Tuning, error) {
	t := Default()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	t, err = Parse(raw)
	if err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Parse decodes, normalizes and validates a YAML tuning document.
func Parse(raw []byte) (Tuning, error) {
	t := Default()
	if err := CheckSchema(raw); err != nil {
		return t, err
	}
	// Lists replace the defaults wholesale rather than merging by index.
	t.Biomes.List = nil
	t.Details = nil
	if hasKey(raw, "height", "generator") {
		t.Height.Generator = noise.Spec{}
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, err
	}
	if len(t.Biomes.List) == 0 && !hasKey(raw, "biomes", "list") {
		t.Biomes.List = Default().Biomes.List
	}
	if t.Details == nil && !hasKey(raw, "details") {
		t.Details = Default().Details
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// CheckSchema validates a YAML document against the tuning schema.
func CheckSchema(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile tuning schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types only.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func hasKey(raw []byte, path ...string) bool {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return false
	}
	cur := doc
	for i, k := range path {
		v, ok := cur[k]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}
