// Package pool recycles placed-object instances as tiles activate and
// deactivate.
package pool

import (
	"io"
	"log"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"terrainforge.dev/internal/tile"
)

// Instance is a pooled handle for one placed object. It is either active
// (attached to Parent and visible) or inactive (parked in its container).
type Instance struct {
	ID       uuid.UUID
	Type     string
	Prefab   string
	Parent   tile.GridPosition
	Position mgl64.Vec3
	Rotation float64
	Scale    float64

	active bool
}

func (i *Instance) Active() bool { return i.active }

// Container holds the instances of one placement type. Inactive instances are
// reused last-in first-out before new ones are created.
type Container struct {
	typ      string
	prefab   string
	active   map[uuid.UUID]*Instance
	inactive []*Instance
	created  int
	logger   *log.Logger
}

func NewContainer(typ, prefab string, logger *log.Logger) *Container {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Container{
		typ:    typ,
		prefab: prefab,
		active: map[uuid.UUID]*Instance{},
		logger: logger,
	}
}

func (c *Container) Type() string { return c.typ }

// GetObject returns an active instance attached to parent, reusing an inactive
// one when available.
func (c *Container) GetObject(parent tile.GridPosition) *Instance {
	var inst *Instance
	if n := len(c.inactive); n > 0 {
		inst = c.inactive[n-1]
		c.inactive[n-1] = nil
		c.inactive = c.inactive[:n-1]
	} else {
		inst = &Instance{ID: uuid.New(), Type: c.typ, Prefab: c.prefab}
		c.created++
	}
	inst.Parent = parent
	inst.active = true
	c.active[inst.ID] = inst
	return inst
}

// RemoveObject deactivates inst and parks it for reuse. Removing an instance
// this container does not hold as active is logged and ignored.
func (c *Container) RemoveObject(inst *Instance) bool {
	if inst == nil {
		c.logger.Printf("WARN pool %s: remove of nil instance", c.typ)
		return false
	}
	if cur, ok := c.active[inst.ID]; !ok || cur != inst {
		c.logger.Printf("WARN pool %s: remove of untracked instance %s", c.typ, inst.ID)
		return false
	}
	delete(c.active, inst.ID)
	inst.active = false
	inst.Parent = tile.GridPosition{}
	c.inactive = append(c.inactive, inst)
	return true
}

// Stats is a snapshot of a container's counters.
type Stats struct {
	Type     string `json:"type"`
	Active   int    `json:"active"`
	Inactive int    `json:"inactive"`
	Created  int    `json:"created"`
}

func (c *Container) Stats() Stats {
	return Stats{Type: c.typ, Active: len(c.active), Inactive: len(c.inactive), Created: c.created}
}
