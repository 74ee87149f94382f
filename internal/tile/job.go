package tile

import (
	"context"
	"fmt"
	"math"

	"terrainforge.dev/internal/biome"
	"terrainforge.dev/internal/noise"
)

// Stepper is an incremental unit of tile work. Each Step does a bounded amount
// of computation and reports whether the work is complete.
type Stepper interface {
	Position() GridPosition
	Step() bool
	Result() (*Tile, error)
}

// Job generates one tile in steps: height cells first, then the biome passes.
// Every step spends at most perStep cell operations.
type Job struct {
	pos       GridPosition
	height    noise.Generator
	sampler   *biome.Sampler
	amplitude float64
	spread    float64
	length    float64
	res       int
	perStep   int

	heights  []float64
	next     int
	sampling *biome.Sampling
	done     bool
	tile    *Tile
	err     error
}

func (j *Job) Position() GridPosition { return j.pos }

// Step advances the job. Once it returns true further calls are no-ops.
func (j *Job) Step() (done bool) {
	if j.done {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			j.fail(fmt.Errorf("generate tile %s: panic: %v", j.pos, r))
			done = true
		}
	}()

	total := j.res * j.res
	if j.next < total {
		end := min(j.next+j.perStep, total)
		origin := j.pos.Origin(j.length)
		for i := j.next; i < end; i++ {
			x, z := i%j.res, i/j.res
			p := biome.CellPosition(origin, j.res, j.length, x, z)
			h := j.height.Evaluate(p[0]/j.spread, p[1]/j.spread, 0) * j.amplitude
			if math.IsNaN(h) || math.IsInf(h, 0) {
				j.fail(fmt.Errorf("generate tile %s: non-finite height at cell (%d,%d)", j.pos, x, z))
				return true
			}
			j.heights[i] = h
		}
		j.next = end
		return false
	}

	var m biome.Map
	if j.sampler != nil {
		if j.sampling == nil {
			j.sampling = j.sampler.Sampling(j.pos.Origin(j.length), j.res, j.length)
		}
		if !j.sampling.Advance(j.perStep) {
			return false
		}
		m = j.sampling.Map()
		j.sampling = nil
	}
	j.tile = New(j.pos, j.res, j.length, j.heights, m)
	j.tile.Digest()
	j.done = true
	return true
}

func (j *Job) fail(err error) {
	j.err = err
	j.heights = nil
	j.sampling = nil
	j.done = true
}

func (j *Job) Result() (*Tile, error) {
	return j.tile, j.err
}

// Run steps the job to completion, checking ctx between steps.
func (j *Job) Run(ctx context.Context) (*Tile, error) {
	for !j.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return j.Result()
}

// Scheduler runs queued steppers cooperatively, a bounded number of steps per
// Tick. Jobs complete in submission order.
type Scheduler struct {
	queue []Stepper
}

func (s *Scheduler) Submit(st Stepper) {
	s.queue = append(s.queue, st)
}

func (s *Scheduler) Len() int { return len(s.queue) }

// Tick spends up to budget steps and returns the jobs that finished.
func (s *Scheduler) Tick(budget int) []Stepper {
	var finished []Stepper
	for budget > 0 && len(s.queue) > 0 {
		head := s.queue[0]
		budget--
		if head.Step() {
			finished = append(finished, head)
			s.queue[0] = nil
			s.queue = s.queue[1:]
		}
	}
	return finished
}

// Remove drops a queued job for pos. It reports whether one was found.
func (s *Scheduler) Remove(pos GridPosition) bool {
	for i, st := range s.queue {
		if st.Position() == pos {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}
