package tile

import (
	"container/list"
	"errors"
)

// ErrNotFound is returned by Cache lookups that miss.
var ErrNotFound = errors.New("tile: not found")

// Cache is a bounded LRU of inactive tiles. Tiles pushed past capacity are
// removed from the least-recently-used end and handed to the eviction hook,
// which is expected to destroy them. Cache is not safe for concurrent use.
type Cache struct {
	capacity int
	order    *list.List // front = most recently used
	items    map[GridPosition]*list.Element
	onEvict  func(*Tile)

	// clock orders Tile.LastAccess across cached and active tiles.
	clock uint64
}

// NewCache returns an empty cache. A capacity below zero is treated as zero,
// which evicts every inserted tile immediately. onEvict may be nil, in which
// case evicted tiles are destroyed.
func NewCache(capacity int, onEvict func(*Tile)) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	if onEvict == nil {
		onEvict = func(t *Tile) { t.Destroy() }
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		items:    map[GridPosition]*list.Element{},
		onEvict:  onEvict,
	}
}

func (c *Cache) Capacity() int { return c.capacity }
func (c *Cache) Len() int      { return c.order.Len() }

func (c *Cache) Contains(pos GridPosition) bool {
	_, ok := c.items[pos]
	return ok
}

// Get returns the cached tile and marks it most recently used.
func (c *Cache) Get(pos GridPosition) (*Tile, error) {
	el, ok := c.items[pos]
	if !ok {
		return nil, ErrNotFound
	}
	c.order.MoveToFront(el)
	t := el.Value.(*Tile)
	c.touch(t)
	return t, nil
}

// Take removes the tile from the cache and returns it. Ownership passes to
// the caller.
func (c *Cache) Take(pos GridPosition) (*Tile, error) {
	el, ok := c.items[pos]
	if !ok {
		return nil, ErrNotFound
	}
	c.order.Remove(el)
	delete(c.items, pos)
	return el.Value.(*Tile), nil
}

// Insert adds t as the most recently used tile, replacing any tile cached at
// the same position, then evicts down to capacity.
func (c *Cache) Insert(t *Tile) {
	if t == nil {
		return
	}
	pos := t.Position()
	if el, ok := c.items[pos]; ok {
		old := el.Value.(*Tile)
		c.order.Remove(el)
		delete(c.items, pos)
		if old != t {
			c.onEvict(old)
		}
	}
	c.touch(t)
	c.items[pos] = c.order.PushFront(t)
	for c.order.Len() > c.capacity {
		el := c.order.Back()
		victim := el.Value.(*Tile)
		c.order.Remove(el)
		delete(c.items, victim.Position())
		c.onEvict(victim)
	}
}

func (c *Cache) touch(t *Tile) {
	c.clock++
	t.touch(c.clock)
}

// Positions lists cached positions from most to least recently used.
func (c *Cache) Positions() []GridPosition {
	out := make([]GridPosition, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Tile).Position())
	}
	return out
}

// Clear evicts every cached tile.
func (c *Cache) Clear() {
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		t := el.Value.(*Tile)
		c.order.Remove(el)
		delete(c.items, t.Position())
		c.onEvict(t)
	}
}
