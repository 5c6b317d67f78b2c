package shaper

import (
	"vocbase/cache"
	"vocbase/storage/pools"
)

// Path is a dotted attribute path resolved down into nested array shapes,
// e.g. []string{"address", "city"} for a field reached as doc.address.city.
type Path []string

func (p Path) key() string {
	sb := pools.GetStringBuilder()
	defer pools.PutStringBuilder(sb)
	for i, seg := range p {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(seg)
	}
	return sb.String()
}

// Accessor extracts the field Path names at the shape it was compiled for
// out of a document's top-level (Shape, Value) pair. found is false if the
// document (this particular shape) doesn't have that field at all — a
// legitimate outcome for schema-free documents, not an error.
type Accessor func(topShape *Shape, topValue *Value) (fieldShape *Shape, fieldValue *Value, found bool)

// accessorKey is the memoization key: component G's "(sid, path) →
// extractor" from §4.2. sid alone isn't enough, since unrelated documents
// can share a shape id only if their bytes are identical, but distinct
// shapes need their own compiled accessor for the same path.
type accessorKey struct {
	sid  uint64
	path string
}

// AccessorCache memoises (shape, path) → extractor lookups on top of the
// shared cache.LRU: a compiled accessor for a given shape is valid
// forever, since shapes are immutable and content-addressed, so it is
// built with ttl == 0 and only capacity pressure ever evicts an entry.
type AccessorCache struct {
	lru *cache.LRU[accessorKey, Accessor]
}

const defaultAccessorCacheSize = 4096

// NewAccessorCache returns an empty cache bounded to maxSize compiled
// accessors. maxSize <= 0 uses defaultAccessorCacheSize.
func NewAccessorCache(maxSize int) *AccessorCache {
	if maxSize <= 0 {
		maxSize = defaultAccessorCacheSize
	}
	return &AccessorCache{lru: cache.New[accessorKey, Accessor](maxSize, 0)}
}

// Get returns the accessor compiled for (sid, path) if cached.
func (c *AccessorCache) Get(sid uint64, path Path) (Accessor, bool) {
	return c.lru.Get(accessorKey{sid: sid, path: path.key()})
}

// Put installs the accessor compiled for (sid, path), evicting the least
// recently used entry if the cache is at capacity.
func (c *AccessorCache) Put(sid uint64, path Path, a Accessor) {
	c.lru.Put(accessorKey{sid: sid, path: path.key()}, a)
}

// Stats returns the entry count and cumulative hit/miss counters, for
// diagnostics and tests.
func (c *AccessorCache) Stats() (size int, hits int64, misses int64) {
	return c.lru.Stats()
}

// Accessor returns (compiling and caching on first use) the extractor for
// path under sid. A nil Shaper-level error means the shape itself was
// found; the extractor may still legitimately report !found per document,
// since two documents sharing a shape can still disagree on optional
// nested fields only if their shapes actually differ — homogeneous arrays
// aside, every field named in Shape.Entries is present in every value of
// that shape, so !found here means the path doesn't exist in this shape
// at all, e.g. a typo or a path that only appears in a sibling shape.
func (s *Shaper) Accessor(sid uint64, path Path) (Accessor, error) {
	if a, ok := s.cache.Get(sid, path); ok {
		return a, nil
	}

	shape, err := s.dict.Shape(sid)
	if err != nil {
		return nil, err
	}

	a := s.compileAccessor(shape, path)
	s.cache.Put(sid, path, a)
	return a, nil
}

// compileAccessor builds the extractor closure for path against shape by
// resolving each path segment's attribute id once (LookupAttribute is not
// called again after this — the closure captures the resolved entry index) and
// walking shape.Entries for a match at each level.
func (s *Shaper) compileAccessor(shape *Shape, path Path) Accessor {
	if len(path) == 0 {
		return func(topShape *Shape, topValue *Value) (*Shape, *Value, bool) {
			return topShape, topValue, true
		}
	}

	aid, ok := s.dict.LookupAttribute(path[0])
	if !ok {
		return func(*Shape, *Value) (*Shape, *Value, bool) { return nil, nil, false }
	}

	idx := -1
	if shape.Kind == KindArray {
		for i, e := range shape.Entries {
			if e.AID == aid {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return func(*Shape, *Value) (*Shape, *Value, bool) { return nil, nil, false }
	}

	childSID := shape.Entries[idx].ChildSID
	childShape, err := s.dict.Shape(childSID)
	if err != nil {
		return func(*Shape, *Value) (*Shape, *Value, bool) { return nil, nil, false }
	}

	rest := s.compileAccessor(childShape, path[1:])

	return func(topShape *Shape, topValue *Value) (*Shape, *Value, bool) {
		if topShape.Kind != KindArray || idx >= len(topValue.Fields) {
			return nil, nil, false
		}
		return rest(childShape, topValue.Fields[idx])
	}
}
