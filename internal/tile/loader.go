package tile

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Loaded is the outcome of an asynchronous tile build.
type Loaded struct {
	Pos  GridPosition
	Tile *Tile
	Err  error
}

// Loader builds tiles off the control thread. Request never blocks; results are
// collected with Poll on the control thread.
type Loader interface {
	Request(pos GridPosition)
	Poll() []Loaded
	Close()
}

// Forgetter is implemented by loaders that can drop a request before its build
// starts. Forget reports whether the request was dropped; a build already
// under way still delivers its result.
type Forgetter interface {
	Forget(pos GridPosition) bool
}

// WorkerLoader builds requested tiles on a fixed set of goroutines.
type WorkerLoader struct {
	builder Builder
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    chan GridPosition
	wg      sync.WaitGroup

	mu      sync.Mutex
	backlog []GridPosition
	results []Loaded
	closed  bool
}

// NewWorkerLoader starts workers goroutines; workers <= 0 uses GOMAXPROCS.
func NewWorkerLoader(ctx context.Context, b Builder, workers int) *WorkerLoader {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &WorkerLoader{
		builder: b,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan GridPosition, workers*4),
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

func (l *WorkerLoader) worker() {
	defer l.wg.Done()
	for pos := range l.jobs {
		if l.ctx.Err() != nil {
			continue
		}
		t, err := safeBuild(l.ctx, l.builder, pos)
		if l.ctx.Err() != nil {
			continue
		}
		l.mu.Lock()
		l.results = append(l.results, Loaded{Pos: pos, Tile: t, Err: err})
		l.mu.Unlock()
	}
}

func safeBuild(ctx context.Context, b Builder, pos GridPosition) (t *Tile, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("generate tile %s: panic: %v", pos, r)
		}
	}()
	return b.Build(ctx, pos)
}

func (l *WorkerLoader) Request(pos GridPosition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if len(l.backlog) == 0 {
		select {
		case l.jobs <- pos:
			return
		default:
		}
	}
	l.backlog = append(l.backlog, pos)
}

func (l *WorkerLoader) Poll() []Loaded {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.backlog) > 0 && !l.closed {
		select {
		case l.jobs <- l.backlog[0]:
			l.backlog = l.backlog[1:]
			continue
		default:
		}
		break
	}
	out := l.results
	l.results = nil
	return out
}

// Forget drops pos from the backlog of requests not yet handed to a worker.
func (l *WorkerLoader) Forget(pos GridPosition) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.backlog {
		if p == pos {
			l.backlog = append(l.backlog[:i], l.backlog[i+1:]...)
			return true
		}
	}
	return false
}

// Close stops the workers and waits for in-flight builds to return. Results
// of builds interrupted by Close are discarded.
func (l *WorkerLoader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.backlog = nil
	close(l.jobs)
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

// JobSource creates incremental builds.
type JobSource interface {
	NewJob(pos GridPosition) Stepper
}

// PacedLoader builds tiles on the control thread, spending at most
// StepsPerPoll job steps in each Poll.
type PacedLoader struct {
	source       JobSource
	sched        Scheduler
	StepsPerPoll int
}

func NewPacedLoader(src JobSource, stepsPerPoll int) *PacedLoader {
	if stepsPerPoll <= 0 {
		stepsPerPoll = 1
	}
	return &PacedLoader{source: src, StepsPerPoll: stepsPerPoll}
}

func (l *PacedLoader) Request(pos GridPosition) {
	l.sched.Submit(l.source.NewJob(pos))
}

func (l *PacedLoader) Poll() []Loaded {
	done := l.sched.Tick(l.StepsPerPoll)
	out := make([]Loaded, 0, len(done))
	for _, st := range done {
		t, err := st.Result()
		out = append(out, Loaded{Pos: st.Position(), Tile: t, Err: err})
	}
	return out
}

// Pending reports the number of queued jobs.
func (l *PacedLoader) Pending() int { return l.sched.Len() }

// Forget drops a queued job that has not finished, including one partially
// stepped.
func (l *PacedLoader) Forget(pos GridPosition) bool { return l.sched.Remove(pos) }

func (l *PacedLoader) Close() { l.sched = Scheduler{} }
