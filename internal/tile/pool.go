package tile

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"terrainforge.dev/internal/events"
)

var (
	ErrNoBuilder = errors.New("tile: pool has no builder")
	ErrNoTile    = errors.New("tile: build returned no tile")
)

// Failure records a tile whose generation failed.
type Failure struct {
	Pos GridPosition
	Err error
}

// Change reports what one Reconcile or Drain did. Slices are sorted by
// position.
type Change struct {
	Activated   []*Tile
	Deactivated []*Tile
	Failed      []Failure
	// Pending lists desired tiles whose build is still in flight.
	Pending []GridPosition
}

// Empty reports whether nothing was activated, deactivated or failed.
func (c Change) Empty() bool {
	return len(c.Activated) == 0 && len(c.Deactivated) == 0 && len(c.Failed) == 0
}

type PoolOptions struct {
	Capacity int
	Radius   int
	Length   float64
	Builder  Builder
	// Loader moves generation off the control thread. When nil, Reconcile
	// builds missing tiles synchronously.
	Loader Loader
	Bus    *events.Bus
	Logger *log.Logger
}

// Pool keeps the tiles around a tracked position active. Tiles leave the
// active set into the cache and come back from it without regeneration. Pool
// is driven from a single control goroutine.
type Pool struct {
	opts    PoolOptions
	cache   *Cache
	active  map[GridPosition]*Tile
	desired map[GridPosition]struct{}
	pending map[GridPosition]struct{}
	failed  map[GridPosition]error
	bus     *events.Bus
	logger  *log.Logger
}

func NewPool(opts PoolOptions) *Pool {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Pool{
		opts:    opts,
		active:  map[GridPosition]*Tile{},
		desired: map[GridPosition]struct{}{},
		pending: map[GridPosition]struct{}{},
		failed:  map[GridPosition]error{},
		bus:     opts.Bus,
		logger:  logger,
	}
	p.cache = NewCache(opts.Capacity, p.evict)
	return p
}

func (p *Pool) evict(t *Tile) {
	p.publish(events.TileEvicted, t.Position(), func(e *events.Event) { e.Digest = t.DigestHex() })
	t.Destroy()
}

func (p *Pool) publish(kind events.Kind, pos GridPosition, fill func(*events.Event)) {
	if p.bus == nil {
		return
	}
	e := events.Event{Kind: kind, X: pos.X, Z: pos.Z}
	if fill != nil {
		fill(&e)
	}
	p.bus.Publish(e)
}

func (p *Pool) Cache() *Cache { return p.cache }

// Active returns the active tile at pos.
func (p *Pool) Active(pos GridPosition) (*Tile, bool) {
	t, ok := p.active[pos]
	return t, ok
}

// ActiveTiles returns the active tiles sorted by position.
func (p *Pool) ActiveTiles() []*Tile {
	keys := make([]GridPosition, 0, len(p.active))
	for k := range p.active {
		keys = append(keys, k)
	}
	SortPositions(keys)
	out := make([]*Tile, len(keys))
	for i, k := range keys {
		out[i] = p.active[k]
	}
	return out
}

// Failed returns the error recorded for pos, or nil.
func (p *Pool) Failed(pos GridPosition) error {
	return p.failed[pos]
}

// Retry forgets a recorded failure so the next Reconcile builds pos again.
func (p *Pool) Retry(pos GridPosition) {
	delete(p.failed, pos)
}

// ReconcileAt reconciles against the disc of tiles around tracked.
func (p *Pool) ReconcileAt(ctx context.Context, tracked mgl64.Vec2) (Change, error) {
	return p.Reconcile(ctx, ComputeDesiredSet(tracked, p.opts.Radius, p.opts.Length))
}

// Reconcile makes the active set match desired. Active tiles not desired move
// to the cache. Queued builds that are no longer desired are dropped when the
// loader is a Forgetter. Desired tiles come from the cache when present, otherwise they
// are built, synchronously or through the loader. A tile whose build failed
// is not retried while it stays desired. When ctx is cancelled the remaining
// builds are skipped and ctx's error is returned with the partial change.
func (p *Pool) Reconcile(ctx context.Context, desired []GridPosition) (Change, error) {
	var ch Change
	want := make(map[GridPosition]struct{}, len(desired))
	for _, pos := range desired {
		want[pos] = struct{}{}
	}

	var leaving []GridPosition
	for pos := range p.active {
		if _, ok := want[pos]; !ok {
			leaving = append(leaving, pos)
		}
	}
	SortPositions(leaving)
	for _, pos := range leaving {
		t := p.active[pos]
		delete(p.active, pos)
		ch.Deactivated = append(ch.Deactivated, t)
		p.publish(events.TileDeactivated, pos, nil)
		p.cache.Insert(t)
		if p.cache.Contains(pos) {
			p.publish(events.TileCached, pos, nil)
		}
	}

	for pos := range p.failed {
		if _, ok := want[pos]; !ok {
			delete(p.failed, pos)
		}
	}
	p.desired = want

	if f, ok := p.opts.Loader.(Forgetter); ok {
		for pos := range p.pending {
			if _, ok := want[pos]; !ok && f.Forget(pos) {
				delete(p.pending, pos)
			}
		}
	}

	arriving := make([]GridPosition, 0, len(want))
	for pos := range want {
		if _, ok := p.active[pos]; !ok {
			arriving = append(arriving, pos)
		}
	}
	SortPositions(arriving)
	for _, pos := range arriving {
		if _, ok := p.failed[pos]; ok {
			continue
		}
		if _, ok := p.pending[pos]; ok {
			ch.Pending = append(ch.Pending, pos)
			continue
		}
		if t, err := p.cache.Take(pos); err == nil {
			p.activate(t, &ch)
			continue
		}
		if p.opts.Loader != nil {
			p.pending[pos] = struct{}{}
			p.opts.Loader.Request(pos)
			ch.Pending = append(ch.Pending, pos)
			continue
		}
		if err := ctx.Err(); err != nil {
			return ch, err
		}
		t, err := p.build(ctx, pos)
		if err != nil {
			if ctx.Err() != nil {
				return ch, ctx.Err()
			}
			p.fail(pos, err, &ch)
			continue
		}
		if t == nil {
			p.fail(pos, ErrNoTile, &ch)
			continue
		}
		p.generated(t)
		p.activate(t, &ch)
	}
	return ch, nil
}

func (p *Pool) build(ctx context.Context, pos GridPosition) (*Tile, error) {
	if p.opts.Builder == nil {
		return nil, ErrNoBuilder
	}
	return safeBuild(ctx, p.opts.Builder, pos)
}

// Drain applies finished loader results. Results for tiles that are no longer
// desired are destroyed without being activated.
func (p *Pool) Drain() Change {
	var ch Change
	if p.opts.Loader == nil {
		return ch
	}
	results := p.opts.Loader.Poll()
	for _, r := range results {
		delete(p.pending, r.Pos)
	}
	SortLoaded(results)
	for _, r := range results {
		_, want := p.desired[r.Pos]
		_, isActive := p.active[r.Pos]
		switch {
		case !want || isActive:
			if r.Tile != nil {
				r.Tile.Destroy()
			}
		case r.Err != nil:
			p.fail(r.Pos, r.Err, &ch)
		case r.Tile == nil:
			p.fail(r.Pos, ErrNoTile, &ch)
		default:
			p.generated(r.Tile)
			p.activate(r.Tile, &ch)
		}
	}
	for pos := range p.pending {
		if _, ok := p.desired[pos]; ok {
			ch.Pending = append(ch.Pending, pos)
		}
	}
	SortPositions(ch.Pending)
	return ch
}

func (p *Pool) generated(t *Tile) {
	p.publish(events.TileGenerated, t.Position(), func(e *events.Event) { e.Digest = t.DigestHex() })
}

func (p *Pool) activate(t *Tile, ch *Change) {
	p.cache.touch(t)
	p.active[t.Position()] = t
	ch.Activated = append(ch.Activated, t)
	p.publish(events.TileActivated, t.Position(), func(e *events.Event) {
		e.Digest = t.DigestHex()
		e.Resolution = t.Resolution()
		e.Length = t.Length()
		e.Heights = t.Heights()
	})
}

func (p *Pool) fail(pos GridPosition, err error, ch *Change) {
	p.failed[pos] = err
	ch.Failed = append(ch.Failed, Failure{Pos: pos, Err: err})
	p.logger.Printf("tile %s generation failed: %v", pos, err)
	p.publish(events.TileFailed, pos, func(e *events.Event) { e.Err = err.Error() })
}

// Clear destroys every active and cached tile and forgets failures. Builds
// still in flight are dropped when they finish.
func (p *Pool) Clear() {
	for _, t := range p.ActiveTiles() {
		delete(p.active, t.Position())
		p.publish(events.TileDeactivated, t.Position(), nil)
		t.Destroy()
	}
	p.cache.Clear()
	p.failed = map[GridPosition]error{}
	p.desired = map[GridPosition]struct{}{}
}

// SortLoaded orders results by position.
func SortLoaded(rs []Loaded) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Pos.X != rs[j].Pos.X {
			return rs[i].Pos.X < rs[j].Pos.X
		}
		return rs[i].Pos.Z < rs[j].Pos.Z
	})
}
