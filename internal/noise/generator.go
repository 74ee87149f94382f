// Package noise implements composable scalar fields used to drive terrain heights,
// biome masks and placement probabilities.
//
// Every Generator is a pure function of its coordinates and parameters. The only
// mutable state lives in Cache and Remap nodes; use Fork to obtain a copy of a tree
// that is safe to evaluate on another goroutine.
package noise

// Generator is a scalar field f(x,y,z).
type Generator interface {
	Evaluate(x, y, z float64) float64
}

// Forker is implemented by generators that carry per-evaluation state (or own
// children that do). Fork returns a copy that shares no mutable state with the
// receiver.
type Forker interface {
	Fork() Generator
}

// Revisioner is implemented by generators whose parameters can change after
// construction. The revision increases on every parameter change.
type Revisioner interface {
	Revision() uint64
}

// Fork returns an evaluation-context copy of g. Stateless generators are returned
// unchanged.
func Fork(g Generator) Generator {
	if g == nil {
		return nil
	}
	if f, ok := g.(Forker); ok {
		return f.Fork()
	}
	return g
}

// Revision reports the aggregated parameter revision of the tree rooted at g.
func Revision(g Generator) uint64 {
	if r, ok := g.(Revisioner); ok {
		return r.Revision()
	}
	return 0
}

func mustGenerator(g Generator, what string) {
	if g == nil {
		panic("noise: nil generator passed to " + what)
	}
}

// Constant returns the same value everywhere.
type Constant struct {
	value float64
}

func NewConstant(v float64) *Constant {
	return &Constant{value: v}
}

func (c *Constant) Evaluate(_, _, _ float64) float64 { return c.value }

// Function adapts an arbitrary func into a Generator. The func must be pure.
type Function struct {
	fn func(x, y, z float64) float64
}

func NewFunction(fn func(x, y, z float64) float64) *Function {
	if fn == nil {
		panic("noise: nil func passed to NewFunction")
	}
	return &Function{fn: fn}
}

func (f *Function) Evaluate(x, y, z float64) float64 { return f.fn(x, y, z) }
