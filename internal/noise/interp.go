package noise

import "fmt"

// SCurve selects the interpolation curve used between lattice points.
type SCurve int

const (
	Linear SCurve = iota
	Cubic
	Quintic
)

func (c SCurve) apply(t float64) float64 {
	switch c {
	case Linear:
		return t
	case Cubic:
		return t * t * (3 - 2*t)
	default:
		return t * t * t * (t*(t*6-15) + 10)
	}
}

func (c SCurve) String() string {
	switch c {
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	case Quintic:
		return "quintic"
	}
	return fmt.Sprintf("scurve(%d)", int(c))
}

// ParseSCurve maps a curve name to an SCurve. Empty selects Quintic.
func ParseSCurve(s string) (SCurve, error) {
	switch s {
	case "", "quintic":
		return Quintic, nil
	case "cubic":
		return Cubic, nil
	case "linear":
		return Linear, nil
	}
	return Quintic, fmt.Errorf("unknown s-curve %q", s)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}
