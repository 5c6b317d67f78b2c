package shaper

import (
	"container/list"
	"sync"
)

// internEntry is one entry in the attribute-name intern pool: the
// canonical string plus its position in the LRU list.
type internEntry struct {
	value   string
	element *list.Element
}

// nameIntern deduplicates attribute-name strings so that every occurrence
// of the same JSON key across every document shares one backing string.
// The shaper's attribute dictionary is append-only — names are never
// evicted from attribute_names/attribute_ids once assigned an aid — but
// the intern pool itself is LRU-bounded so a workload with a very large
// number of distinct, rarely reused key names doesn't grow it unboundedly.
type nameIntern struct {
	mu      sync.RWMutex
	entries map[string]*internEntry
	lru     *list.List
	maxSize int
}

const defaultInternMaxSize = 65536

func newNameIntern() *nameIntern {
	return &nameIntern{
		entries: make(map[string]*internEntry),
		lru:     list.New(),
		maxSize: defaultInternMaxSize,
	}
}

// intern returns the canonical copy of s, inserting it if this is the
// first time s has been seen.
func (n *nameIntern) intern(s string) string {
	n.mu.RLock()
	if e, ok := n.entries[s]; ok {
		n.mu.RUnlock()
		n.mu.Lock()
		n.lru.MoveToFront(e.element)
		n.mu.Unlock()
		return e.value
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()

	// Re-check: another goroutine may have interned s while we waited
	// for the write lock.
	if e, ok := n.entries[s]; ok {
		n.lru.MoveToFront(e.element)
		return e.value
	}

	canonical := string([]byte(s)) // force a private copy, not an alias of s
	elem := n.lru.PushFront(canonical)
	n.entries[canonical] = &internEntry{value: canonical, element: elem}

	if len(n.entries) > n.maxSize {
		oldest := n.lru.Back()
		if oldest != nil {
			n.lru.Remove(oldest)
			delete(n.entries, oldest.Value.(string))
		}
	}

	return canonical
}

// size returns the number of distinct strings currently interned.
func (n *nameIntern) size() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.entries)
}
