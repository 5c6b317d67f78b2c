package shaper

import (
	"sort"
	"sync"

	"vocbase/datafile"
	"vocbase/ids"
	"vocbase/logger"
)

// shapeEntry is a dictionary-resident, dereferenced shape plus its
// assigned sid.
type shapeEntry struct {
	sid   uint64
	shape *Shape
	bytes string // Shape.Bytes(), as a map key
}

// Dictionary is the shaper's persistent attribute-name and shape registry:
// find_or_insert_attribute and find_or_insert_shape live here. Per §5, the
// attribute mutex and the shape mutex are independent and never held
// together.
type Dictionary struct {
	df *datafile.Datafile
	ig *ids.Generator

	attrMu       sync.Mutex
	byName       map[string]*attribute
	byAID        map[uint64]*attribute
	sortedByName []*attribute // kept sorted by name; binary-searched on insert
	nextAID      uint64
	intern       *nameIntern

	shapeMu  sync.Mutex
	byBytes  map[string]*shapeEntry
	bySID    map[uint64]*shapeEntry
	nextSID  uint64
}

// OpenDictionary scans df (the shaper's own datafile) and repopulates the
// in-memory dictionaries from every attribute/shape marker found, then
// rebuilds attribute weights by sorting all names lexicographically, per
// the rebuild pass voc-shaper.c performs at open.
func OpenDictionary(df *datafile.Datafile, ig *ids.Generator) (*Dictionary, error) {
	d := &Dictionary{
		df:      df,
		ig:      ig,
		byName:  make(map[string]*attribute),
		byAID:   make(map[uint64]*attribute),
		intern:  newNameIntern(),
		byBytes: make(map[string]*shapeEntry),
		bySID:   make(map[uint64]*shapeEntry),
	}

	err := df.Iterate(func(h datafile.Header, body []byte) error {
		switch h.Type {
		case datafile.TypeAttribute:
			ab := decodeAttributeBody(body)
			name := d.intern.intern(ab.name)
			a := &attribute{aid: ab.aid, name: name, weight: ab.weight}
			d.byName[name] = a
			d.byAID[ab.aid] = a
			if ab.aid >= d.nextAID {
				d.nextAID = ab.aid + 1
			}
		case datafile.TypeShape:
			sb := decodeShapeBody(body)
			shape, derr := decodeShape(sb.bytes)
			if derr != nil {
				return derr
			}
			// sb.bytes carries the marker's zero padding; key on the
			// canonical encoding so FindOrInsertShape finds it again.
			key := string(shape.Bytes())
			e := &shapeEntry{sid: sb.sid, shape: shape, bytes: key}
			d.byBytes[key] = e
			d.bySID[sb.sid] = e
			if sb.sid >= d.nextSID {
				d.nextSID = sb.sid + 1
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.rebuildSortedByName()
	rebalanceWeights(d.byName)
	d.rebuildSortedByName() // re-sort pointers; weights changed in place so order is unaffected, kept for clarity

	logger.Debug("shaper: opened dictionary with %d attributes, %d shapes", len(d.byAID), len(d.bySID))
	return d, nil
}

func (d *Dictionary) rebuildSortedByName() {
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	d.sortedByName = make([]*attribute, len(names))
	for i, name := range names {
		d.sortedByName[i] = d.byName[name]
	}
}

// FindOrInsertAttribute returns the aid for name, assigning and persisting
// a new one if name has never been seen before.
func (d *Dictionary) FindOrInsertAttribute(name string) (uint64, error) {
	d.attrMu.Lock()
	defer d.attrMu.Unlock()

	if a, ok := d.byName[name]; ok {
		return a.aid, nil
	}

	name = d.intern.intern(name)
	aid := d.nextAID
	d.nextAID++

	// Locate the lexicographic insertion point.
	i := sort.Search(len(d.sortedByName), func(i int) bool { return d.sortedByName[i].name >= name })
	var prev, next *attribute
	if i > 0 {
		prev = d.sortedByName[i-1]
	}
	if i < len(d.sortedByName) {
		next = d.sortedByName[i]
	}
	if needsRebalance(prev, next) {
		rebalanceWeights(d.byName)
		// Neighbours' weights changed in place; re-read them.
		if i > 0 {
			prev = d.sortedByName[i-1]
		}
		if i < len(d.sortedByName) {
			next = d.sortedByName[i]
		}
	}
	weight := splitWeight(prev, next)

	a := &attribute{aid: aid, name: name, weight: weight}

	body := (&attributeBody{aid: aid, weight: weight, name: name}).encode()
	tick := d.ig.NewTick()
	offset, err := d.df.Reserve(len(body))
	if err != nil {
		return 0, err
	}
	if err := d.df.Write(offset, datafile.TypeAttribute, tick, body, false); err != nil {
		return 0, err
	}

	d.byName[name] = a
	d.byAID[aid] = a
	d.sortedByName = append(d.sortedByName, nil)
	copy(d.sortedByName[i+1:], d.sortedByName[i:])
	d.sortedByName[i] = a

	return aid, nil
}

// LookupAttribute returns the aid already assigned to name, without
// inserting one if name has never been seen. Callers that need to extract
// a field by path (the accessor cache) use this instead of
// FindOrInsertAttribute: a document simply lacking an optional field must
// not mint a new attribute id as a side effect of reading it.
func (d *Dictionary) LookupAttribute(name string) (uint64, bool) {
	d.attrMu.Lock()
	defer d.attrMu.Unlock()
	a, ok := d.byName[name]
	if !ok {
		return 0, false
	}
	return a.aid, true
}

// AttributeName returns the name assigned to aid.
func (d *Dictionary) AttributeName(aid uint64) (string, error) {
	d.attrMu.Lock()
	defer d.attrMu.Unlock()
	a, ok := d.byAID[aid]
	if !ok {
		return "", errUnknownAID
	}
	return a.name, nil
}

// AttributeWeight returns the total-order weight assigned to aid, used by
// Compare to order array members deterministically.
func (d *Dictionary) AttributeWeight(aid uint64) (int64, error) {
	d.attrMu.Lock()
	defer d.attrMu.Unlock()
	a, ok := d.byAID[aid]
	if !ok {
		return 0, errUnknownAID
	}
	return a.weight, nil
}

// FindOrInsertShape returns the sid for shape, assigning and persisting a
// new one if this exact shape (by byte-equality) has never been seen.
func (d *Dictionary) FindOrInsertShape(shape *Shape) (uint64, error) {
	key := string(shape.Bytes())

	d.shapeMu.Lock()
	defer d.shapeMu.Unlock()

	if e, ok := d.byBytes[key]; ok {
		return e.sid, nil
	}

	sid := d.nextSID
	d.nextSID++

	body := (&shapeBody{sid: sid, bytes: []byte(key)}).encode()
	tick := d.ig.NewTick()
	offset, err := d.df.Reserve(len(body))
	if err != nil {
		return 0, err
	}
	if err := d.df.Write(offset, datafile.TypeShape, tick, body, false); err != nil {
		return 0, err
	}

	e := &shapeEntry{sid: sid, shape: shape, bytes: key}
	d.byBytes[key] = e
	d.bySID[sid] = e
	return sid, nil
}

// Shape returns the Shape registered under sid.
func (d *Dictionary) Shape(sid uint64) (*Shape, error) {
	d.shapeMu.Lock()
	defer d.shapeMu.Unlock()
	e, ok := d.bySID[sid]
	if !ok {
		return nil, errUnknownSID
	}
	return e.shape, nil
}
