package pool

import (
	"io"
	"log"
	"sort"

	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/scatter"
	"terrainforge.dev/internal/tile"
)

// Pool materializes a placer's output for active tiles, one container per
// placement type. It is driven from the same control goroutine as the tile
// pool.
type Pool struct {
	placer     *scatter.Placer
	containers map[string]*Container
	byTile     map[tile.GridPosition][]*Instance
	bus        *events.Bus
	logger     *log.Logger
}

func New(placer *scatter.Placer, bus *events.Bus, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Pool{
		placer:     placer,
		containers: map[string]*Container{},
		byTile:     map[tile.GridPosition][]*Instance{},
		bus:        bus,
		logger:     logger,
	}
	if placer != nil {
		for _, d := range placer.Details {
			p.containers[d.Name] = NewContainer(d.Name, d.Prefab, logger)
		}
	}
	return p
}

// Container returns the container for a placement type.
func (p *Pool) Container(typ string) (*Container, bool) {
	c, ok := p.containers[typ]
	return c, ok
}

// Activate places instances on s. Activating a tile that already holds
// instances returns them unchanged.
func (p *Pool) Activate(s scatter.Surface) []*Instance {
	x, z := s.Key()
	pos := tile.GridPosition{X: x, Z: z}
	if insts, ok := p.byTile[pos]; ok {
		return insts
	}
	var insts []*Instance
	if p.placer != nil {
		placed := p.placer.Place(s)
		for _, d := range p.placer.Details {
			c := p.containers[d.Name]
			for _, pl := range placed[d.Name] {
				inst := c.GetObject(pos)
				inst.Position = pl.Position
				inst.Rotation = pl.Rotation
				inst.Scale = pl.Scale
				insts = append(insts, inst)
			}
		}
	}
	p.byTile[pos] = insts
	p.bus.Publish(events.Event{Kind: events.InstancesActivated, X: x, Z: z, Instances: len(insts)})
	return insts
}

// Deactivate returns the tile's instances to their containers and reports how
// many were released.
func (p *Pool) Deactivate(pos tile.GridPosition) int {
	insts, ok := p.byTile[pos]
	if !ok {
		return 0
	}
	delete(p.byTile, pos)
	n := 0
	for _, inst := range insts {
		c, ok := p.containers[inst.Type]
		if !ok {
			p.logger.Printf("WARN pool: instance %s has unknown type %q", inst.ID, inst.Type)
			continue
		}
		if c.RemoveObject(inst) {
			n++
		}
	}
	p.bus.Publish(events.Event{Kind: events.InstancesDeactivated, X: pos.X, Z: pos.Z, Instances: n})
	return n
}

// Instances returns the active instances on pos.
func (p *Pool) Instances(pos tile.GridPosition) []*Instance {
	return p.byTile[pos]
}

// Tiles returns the positions holding instances, sorted.
func (p *Pool) Tiles() []tile.GridPosition {
	out := make([]tile.GridPosition, 0, len(p.byTile))
	for pos := range p.byTile {
		out = append(out, pos)
	}
	tile.SortPositions(out)
	return out
}

// Stats reports every container's counters sorted by type.
func (p *Pool) Stats() []Stats {
	out := make([]Stats, 0, len(p.containers))
	for _, c := range p.containers {
		out = append(out, c.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Clear deactivates every tile.
func (p *Pool) Clear() {
	for _, pos := range p.Tiles() {
		p.Deactivate(pos)
	}
}
