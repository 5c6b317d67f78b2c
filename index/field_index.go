// Package index implements secondary indexes over shaped document fields,
// the integration point where the skip-list package (§4.4) is parameterised
// over shaper values (§4.2) and plugged into a primary collection (§4.3)
// through the SecondaryIndex contract.
package index

import (
	"fmt"
	"sync"

	"vocbase/shaper"
	"vocbase/skiplist"
)

// Query is a lookup key for a FieldIndex: a shaped value to compare the
// indexed field against. Build one with (*FieldIndex).ValueQuery.
type Query struct {
	Shape *shaper.Shape
	Value *shaper.Value
}

// entry is one indexed (field value, owning document key) pair. Two
// entries with the same field value but different keys are "equal" under
// compareElementElement — exactly what makes a Unique FieldIndex reject
// the second insert as ErrUniqueViolation.
type entry struct {
	shape *shaper.Shape
	value *shaper.Value
	key   string
}

// FieldIndex indexes one attribute path (§4.2's accessor path) of every
// document passing through a collection, ordering entries by
// shaper.Compare. It implements primary.SecondaryIndex without importing
// the primary package, so primary and index have no cyclic dependency;
// primary.Collection.AddSecondaryIndex accepts it through the interface.
type FieldIndex struct {
	shp  *shaper.Shaper
	path shaper.Path

	unique     bool
	list       *skiplist.List[Query, entry]
	uniqueList *skiplist.Unique[Query, entry]
	multiList  *skiplist.Multi[Query, entry]

	mu         sync.Mutex
	keyToEntry map[string]entry
}

func compareKeyElement(shp *shaper.Shaper) skiplist.KeyElementCompare[Query, entry] {
	return func(q Query, e entry) int {
		return shp.Compare(q.Shape, q.Value, e.shape, e.value)
	}
}

func compareElementElement(shp *shaper.Shaper) skiplist.ElementElementCompare[entry] {
	return func(a, b entry) int {
		return shp.Compare(a.shape, a.value, b.shape, b.value)
	}
}

// NewUnique builds a FieldIndex that rejects a second document whose field
// at path compares equal (by shaper.Compare) to one already indexed.
func NewUnique(shp *shaper.Shaper, path shaper.Path, maxHeight int, prob skiplist.Probability) *FieldIndex {
	u := skiplist.NewSyncedUnique(maxHeight, prob, compareKeyElement(shp), compareElementElement(shp))
	return &FieldIndex{
		shp: shp, path: path, unique: true,
		list: u.List, uniqueList: u,
		keyToEntry: make(map[string]entry),
	}
}

// NewMulti builds a FieldIndex permitting any number of documents to share
// the same field value at path, ordered among themselves by insertion
// order.
func NewMulti(shp *shaper.Shaper, path shaper.Path, maxHeight int, prob skiplist.Probability) *FieldIndex {
	equalCmp := func(a, b entry) bool { return a.key == b.key }
	m := skiplist.NewSyncedMulti(maxHeight, prob, compareKeyElement(shp), compareElementElement(shp), equalCmp)
	return &FieldIndex{
		shp: shp, path: path, unique: false,
		list: m.List, multiList: m,
		keyToEntry: make(map[string]entry),
	}
}

// ValueQuery shapes a raw scalar (as decoded by encoding/json: nil, bool,
// float64, string) into a Query comparable against this index's entries.
// It never mutates the shaper's dictionary: a bare scalar registers no
// attribute or shape marker, unlike a full document's object fields.
func (fi *FieldIndex) ValueQuery(raw interface{}) (Query, error) {
	shape, value, err := fi.shp.FromJSON(raw)
	if err != nil {
		return Query{}, fmt.Errorf("index: build query: %w", err)
	}
	return Query{Shape: shape, Value: value}, nil
}

// InsertDocument extracts the field at fi.path from the document's shaped
// body and indexes it under key. A document whose shape doesn't carry the
// field at all is silently skipped — the index only ever orders documents
// that actually have this field, matching a schema-free collection's
// expectation that secondary indexes are sparse by default.
func (fi *FieldIndex) InsertDocument(key string, sid uint64, shaped []byte) error {
	shape, err := fi.shp.Dictionary().Shape(sid)
	if err != nil {
		return fmt.Errorf("index: resolve shape %d: %w", sid, err)
	}
	value, err := fi.shp.DecodeValue(shape, shaped)
	if err != nil {
		return fmt.Errorf("index: decode shaped body: %w", err)
	}

	accessor, err := fi.shp.Accessor(sid, fi.path)
	if err != nil {
		return fmt.Errorf("index: compile accessor: %w", err)
	}
	fieldShape, fieldValue, found := accessor(shape, value)
	if !found {
		return nil
	}

	e := entry{shape: fieldShape, value: fieldValue, key: key}

	var status skiplist.Status
	if fi.unique {
		status, err = fi.uniqueList.Insert(e, false)
	} else {
		status, err = fi.multiList.Insert(e, false)
	}
	if status == skiplist.StatusUniqueViolation {
		return err
	}
	if err != nil {
		return err
	}

	fi.mu.Lock()
	fi.keyToEntry[key] = e
	fi.mu.Unlock()
	return nil
}

// RemoveDocument removes key's entry, if it had one (documents the index
// skipped via InsertDocument's !found path have nothing to remove).
func (fi *FieldIndex) RemoveDocument(key string) error {
	fi.mu.Lock()
	e, ok := fi.keyToEntry[key]
	if ok {
		delete(fi.keyToEntry, key)
	}
	fi.mu.Unlock()
	if !ok {
		return nil
	}

	if fi.unique {
		fi.uniqueList.Remove(e)
	} else {
		fi.multiList.Remove(e)
	}
	return nil
}

// LookupByKey returns the document key indexed under exactly q, per §4.4.
func (fi *FieldIndex) LookupByKey(q Query) (string, bool) {
	n, ok := fi.list.LookupByKey(q)
	if !ok {
		return "", false
	}
	return n.Element().key, true
}

// LeftLookup returns the node for the greatest indexed value strictly less
// than q, or Start() if none.
func (fi *FieldIndex) LeftLookup(q Query) *skiplist.Node[entry] { return fi.list.LeftLookup(q) }

// RightLookup returns the node for the least indexed value strictly
// greater than q, or End() if none.
func (fi *FieldIndex) RightLookup(q Query) *skiplist.Node[entry] { return fi.list.RightLookup(q) }

// Start returns the start sentinel; Next(Start()) is the least entry.
func (fi *FieldIndex) Start() *skiplist.Node[entry] { return fi.list.Start() }

// End returns the end sentinel; Prev(End()) is the greatest entry.
func (fi *FieldIndex) End() *skiplist.Node[entry] { return fi.list.End() }

// Next returns the node after n in ascending order, or End().
func (fi *FieldIndex) Next(n *skiplist.Node[entry]) *skiplist.Node[entry] { return fi.list.NextNode(n) }

// Prev returns the node before n in ascending order, or Start().
func (fi *FieldIndex) Prev(n *skiplist.Node[entry]) *skiplist.Node[entry] { return fi.list.PrevNode(n) }

// Key returns the document key a (non-sentinel) node represents.
func (fi *FieldIndex) Key(n *skiplist.Node[entry]) string { return n.Element().key }

// Len returns the number of documents currently indexed.
func (fi *FieldIndex) Len() int { return fi.list.Len() }
