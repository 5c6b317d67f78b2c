// Package ids implements the process-wide tick generator and document key
// handling used throughout the storage engine.
package ids

import "sync/atomic"

// Tick is a monotonically increasing 48-bit-range identifier drawn from a
// Generator. Every persisted marker carries one: file ids, revision ids,
// transaction ids and collection ids are all Ticks.
type Tick uint64

// Generator hands out Ticks that are unique across the lifetime of a
// process. The original implementation protects a plain counter with a
// spin-lock (sequence.c); a single atomic counter gives the same
// uncontended-fast-path behaviour in Go without hand-rolling a spin-lock.
type Generator struct {
	value atomic.Uint64
}

// NewGenerator returns a Generator seeded at initial. Recovery callers pass
// the maximum tick observed on disk so that freshly issued ticks never
// collide with one already persisted.
func NewGenerator(initial Tick) *Generator {
	g := &Generator{}
	g.value.Store(uint64(initial))
	return g
}

// NewTick atomically increases the counter and returns the new value.
func (g *Generator) NewTick() Tick {
	return Tick(g.value.Add(1))
}

// Observe raises the counter to tick if tick is greater than the current
// value, and is a no-op otherwise. Recovery calls this once per marker
// scanned from disk so that, after a full scan, the generator's value is at
// least the maximum tick found anywhere on disk.
func (g *Generator) Observe(tick Tick) {
	for {
		current := g.value.Load()
		if uint64(tick) <= current {
			return
		}
		if g.value.CompareAndSwap(current, uint64(tick)) {
			return
		}
	}
}

// Value returns the current counter value without advancing it.
func (g *Generator) Value() Tick {
	return Tick(g.value.Load())
}
