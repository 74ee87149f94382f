package biome

import "github.com/go-gl/mathgl/mgl64"

// grid locates the cells of one sampled tile.
type grid struct {
	origin mgl64.Vec2
	res    int
	spread float64
	length float64
}

func (g grid) position(i int) mgl64.Vec2 {
	return CellPosition(g.origin, g.res, g.length, i%g.res, i/g.res)
}

func (g grid) scale() float64 {
	if g.spread == 0 {
		return 1
	}
	return g.spread
}

// scratch holds per-cell buffers shared by the passes of one sampling.
type scratch struct {
	values []float64
	acc    []float64
	count  []int
}

func newScratch(n int) *scratch {
	return &scratch{values: make([]float64, n), acc: make([]float64, n), count: make([]int, n)}
}

// stage is one sweep over every cell. begin runs before the first cell.
type stage struct {
	begin func()
	cell  func(i int)
}

// pass runs stages in order, resumable at any cell.
type pass struct {
	stages  []stage
	total   int
	stage   int
	next    int
	started bool
}

// advance processes at most n cells and reports whether every stage is done.
func (p *pass) advance(n int) bool {
	for n > 0 && p.stage < len(p.stages) {
		st := p.stages[p.stage]
		if !p.started {
			if st.begin != nil {
				st.begin()
			}
			p.started = true
		}
		end := p.total
		if n < end-p.next {
			end = p.next + n
		}
		for i := p.next; i < end; i++ {
			st.cell(i)
		}
		n -= end - p.next
		p.next = end
		if p.next == p.total {
			p.stage++
			p.next = 0
			p.started = false
		}
	}
	return p.stage >= len(p.stages)
}

// Sampling is an in-progress Sample that can be advanced a bounded number of
// cell operations at a time. A cell operation is one mask evaluation, one
// accumulate, one average or one combine of a cell. Results are identical to
// Sample.
type Sampling struct {
	m    Map
	pass pass
}

// Sampling prepares an incremental Sample of the grid.
func (s *Sampler) Sampling(origin mgl64.Vec2, res int, length float64) *Sampling {
	if res < 0 {
		res = 0
	}
	total := res * res
	m := Map{Res: res, Weights: make([]Grid, len(s.Biomes)), Dominant: make([]int, total)}
	g := grid{origin: origin, res: res, spread: s.Spread, length: length}
	sc := newScratch(total)

	var st []stage
	for i, b := range s.Biomes {
		m.Weights[i] = NewGrid(res)
		st = append(st, b.stages(g, m.Weights[i], sc)...)
	}
	w := make([]float64, len(s.Biomes))
	st = append(st, stage{cell: func(c int) {
		for i := range w {
			w[i] = m.Weights[i].Cells[c]
		}
		m.Dominant[c] = s.Combiner.Combine(w)
		for i := range w {
			m.Weights[i].Cells[c] = w[i]
		}
	}})
	return &Sampling{m: m, pass: pass{stages: st, total: total}}
}

// Advance performs up to n cell operations and reports whether the sampling
// is complete.
func (sg *Sampling) Advance(n int) bool { return sg.pass.advance(n) }

// Done reports whether every cell operation has run.
func (sg *Sampling) Done() bool { return sg.pass.stage >= len(sg.pass.stages) }

// Map returns the result. It is only complete once Done reports true.
func (sg *Sampling) Map() Map { return sg.m }
