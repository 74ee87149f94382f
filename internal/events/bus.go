// Package events carries tile and instance lifecycle notifications from the
// world to its observers.
package events

import "sync"

type Kind string

const (
	TileGenerated   Kind = "TILE_GENERATED"
	TileActivated   Kind = "TILE_ACTIVATED"
	TileDeactivated Kind = "TILE_DEACTIVATED"
	TileCached      Kind = "TILE_CACHED"
	TileEvicted     Kind = "TILE_EVICTED"
	TileFailed      Kind = "TILE_FAILED"

	InstancesActivated   Kind = "INSTANCES_ACTIVATED"
	InstancesDeactivated Kind = "INSTANCES_DEACTIVATED"
)

// Event describes one lifecycle transition of the tile at (X,Z). Fields that do
// not apply to a Kind are zero.
type Event struct {
	Kind Kind
	X    int
	Z    int

	Digest     string
	Err        string
	Resolution int
	Length     float64
	Heights    []float64
	Instances  int
}

// Bus is a synchronous publish/subscribe hub. Handlers run on the publishing
// goroutine in subscription order. A nil *Bus drops everything.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a func that removes it.
func (b *Bus) Subscribe(fn func(Event)) func() {
	if b == nil || fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(e)
	}
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
