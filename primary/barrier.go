package primary

import (
	"sync"

	"vocbase/logger"
)

// Barrier is the reference-counted guard described by §3.6: readers
// acquire it before taking an Mptr's DataPtr, deferring any datafile
// unmap or compaction reclaim until the count drops back to zero. It is
// held outside every other lock in the ordering from §5.
type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
	name  string
}

// NewBarrier returns an unheld Barrier.
func NewBarrier() *Barrier {
	b := &Barrier{name: "collection.barrier"}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Acquire increments the hold count. Every Acquire must be matched by a
// Release.
func (b *Barrier) Acquire() {
	logger.LogLockOperation("", "Barrier", b.name, "lock_acquire")
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	logger.LogLockOperation("", "Barrier", b.name, "lock_acquired")
}

// Release decrements the hold count, waking any goroutine blocked in
// WaitForZero if it reaches zero.
func (b *Barrier) Release() {
	b.mu.Lock()
	b.count--
	if b.count < 0 {
		b.count = 0
	}
	if b.count == 0 {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
	logger.LogLockOperation("", "Barrier", b.name, "unlock")
}

// WaitForZero blocks until the hold count is zero. A writer that wants to
// unmap a datafile calls this before doing so.
func (b *Barrier) WaitForZero() {
	b.mu.Lock()
	for b.count > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()
}

// Count returns the current hold count, for diagnostics/tests only.
func (b *Barrier) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
