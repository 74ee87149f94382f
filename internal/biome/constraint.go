package biome

import (
	"fmt"
	"math"

	"terrainforge.dev/internal/mathx"
)

// Constraint is an inclusive range [min,max]. min <= max holds after every
// mutation: out-of-order input is corrected rather than rejected.
type Constraint struct {
	min float64
	max float64
}

// NewConstraint returns [min,max]. When min > max the range collapses to min.
func NewConstraint(min, max float64) Constraint {
	if min > max {
		max = min
	}
	return Constraint{min: min, max: max}
}

func (c Constraint) Min() float64 { return c.min }
func (c Constraint) Max() float64 { return c.max }

// SetMin moves the lower bound. A value above max is clamped to max.
func (c *Constraint) SetMin(v float64) {
	if v > c.max {
		v = c.max
	}
	c.min = v
}

// SetMax moves the upper bound. A value below min is clamped to min.
func (c *Constraint) SetMax(v float64) {
	if v < c.min {
		v = c.min
	}
	c.max = v
}

func (c Constraint) Fits(v float64) bool {
	return v >= c.min && v <= c.max
}

// Weight returns the membership of a normalized value v in [0,1]. Inside the
// range the weight ramps up linearly over blend from each bound that lies
// strictly inside (0,1); bounds at or beyond the normalized extremes have no
// falloff. Values outside the range weigh 0.
func (c Constraint) Weight(v, blend float64) float64 {
	if !c.Fits(v) {
		return 0
	}
	if blend <= 0 {
		return 1
	}
	edge := math.Inf(1)
	if c.min > 0 {
		edge = v - c.min
	}
	if c.max < 1 {
		edge = math.Min(edge, c.max-v)
	}
	if math.IsInf(edge, 1) {
		return 1
	}
	return mathx.Clamp01(edge / blend)
}

func (c Constraint) String() string {
	return fmt.Sprintf("[%g,%g]", c.min, c.max)
}
