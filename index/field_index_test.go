package index

import (
	"testing"

	"vocbase/datafile"
	"vocbase/ids"
	"vocbase/shaper"
	"vocbase/skiplist"
)

func newTestShaper(t *testing.T) *shaper.Shaper {
	t.Helper()
	df, err := datafile.Create("", 4*1024*1024, ids.Tick(1))
	if err != nil {
		t.Fatalf("create shape datafile: %v", err)
	}
	shp, err := shaper.Open(df, ids.NewGenerator(0))
	if err != nil {
		t.Fatalf("open shaper: %v", err)
	}
	return shp
}

func insertDoc(t *testing.T, shp *shaper.Shaper, fi *FieldIndex, key string, doc map[string]interface{}) error {
	t.Helper()
	sid, shaped, err := shp.ShapeDocument(doc)
	if err != nil {
		t.Fatalf("shape document: %v", err)
	}
	return fi.InsertDocument(key, sid, shaped)
}

func TestUniqueFieldIndexOrdersByValue(t *testing.T) {
	shp := newTestShaper(t)
	fi := NewUnique(shp, shaper.Path{"age"}, 8, skiplist.ProbHalf)

	docs := map[string]float64{"alice": 30, "bob": 25, "carol": 40}
	for key, age := range docs {
		if err := insertDoc(t, shp, fi, key, map[string]interface{}{"age": age}); err != nil {
			t.Fatalf("insert %s: %v", key, err)
		}
	}
	if fi.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", fi.Len())
	}

	var order []string
	n := fi.Next(fi.Start())
	for n != fi.End() {
		order = append(order, fi.Key(n))
		n = fi.Next(n)
	}
	want := []string{"bob", "alice", "carol"} // 25, 30, 40
	if len(order) != len(want) {
		t.Fatalf("order=%v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v, want %v", order, want)
		}
	}
}

func TestUniqueFieldIndexRejectsDuplicateValue(t *testing.T) {
	shp := newTestShaper(t)
	fi := NewUnique(shp, shaper.Path{"email"}, 8, skiplist.ProbHalf)

	if err := insertDoc(t, shp, fi, "u1", map[string]interface{}{"email": "a@example.com"}); err != nil {
		t.Fatalf("insert u1: %v", err)
	}
	err := insertDoc(t, shp, fi, "u2", map[string]interface{}{"email": "a@example.com"})
	if err == nil {
		t.Fatal("expected unique violation inserting a duplicate email")
	}
}

func TestFieldIndexSkipsDocumentsMissingPath(t *testing.T) {
	shp := newTestShaper(t)
	fi := NewUnique(shp, shaper.Path{"age"}, 8, skiplist.ProbHalf)

	if err := insertDoc(t, shp, fi, "noage", map[string]interface{}{"name": "dana"}); err != nil {
		t.Fatalf("insert without the indexed field should not error: %v", err)
	}
	if fi.Len() != 0 {
		t.Fatalf("Len()=%d, want 0 for a document lacking the indexed field", fi.Len())
	}
}

func TestFieldIndexRemoveDocument(t *testing.T) {
	shp := newTestShaper(t)
	fi := NewUnique(shp, shaper.Path{"age"}, 8, skiplist.ProbHalf)

	insertDoc(t, shp, fi, "alice", map[string]interface{}{"age": 30.0})
	if err := fi.RemoveDocument("alice"); err != nil {
		t.Fatalf("RemoveDocument: %v", err)
	}
	if fi.Len() != 0 {
		t.Fatalf("Len()=%d, want 0 after remove", fi.Len())
	}
	// Removing a key never inserted (or already removed) is a no-op, not
	// an error — a collection's delete path may race a secondary index
	// that already dropped the entry via a prior update.
	if err := fi.RemoveDocument("nobody"); err != nil {
		t.Fatalf("RemoveDocument on absent key: %v", err)
	}
}

func TestMultiFieldIndexAllowsDuplicateValues(t *testing.T) {
	shp := newTestShaper(t)
	fi := NewMulti(shp, shaper.Path{"status"}, 8, skiplist.ProbHalf)

	insertDoc(t, shp, fi, "t1", map[string]interface{}{"status": "open"})
	insertDoc(t, shp, fi, "t2", map[string]interface{}{"status": "open"})
	insertDoc(t, shp, fi, "t3", map[string]interface{}{"status": "closed"})

	if fi.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", fi.Len())
	}

	q, err := fi.ValueQuery("open")
	if err != nil {
		t.Fatalf("ValueQuery: %v", err)
	}
	left := fi.LeftLookup(q)
	right := fi.RightLookup(q)
	// "closed" < "open" lexicographically, so left of "open" is a
	// "closed" entry and right of "open" is the sentinel end.
	if left == fi.Start() {
		t.Fatal("expected a node strictly less than \"open\"")
	}
	if right != fi.End() {
		t.Fatalf("expected End() to the right of the greatest value, got key=%s", fi.Key(right))
	}
}
