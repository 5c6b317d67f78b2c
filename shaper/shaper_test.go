package shaper

import (
	"reflect"
	"testing"

	"vocbase/datafile"
	"vocbase/ids"
)

func newTestShaper(t *testing.T) *Shaper {
	t.Helper()
	df, err := datafile.Create("", 4*1024*1024, ids.Tick(1))
	if err != nil {
		t.Fatalf("create shape datafile: %v", err)
	}
	shp, err := Open(df, ids.NewGenerator(0))
	if err != nil {
		t.Fatalf("open shaper: %v", err)
	}
	return shp
}

// TestShapeDeterminismAcrossKeyOrder is the literal scenario from §8.3.6:
// {a:1,b:2} and {b:2,a:1} must resolve to the same sid.
func TestShapeDeterminismAcrossKeyOrder(t *testing.T) {
	shp := newTestShaper(t)

	sidAB, _, err := shp.ShapeDocument(map[string]interface{}{"a": 1.0, "b": 2.0})
	if err != nil {
		t.Fatalf("shape {a,b}: %v", err)
	}
	sidBA, _, err := shp.ShapeDocument(map[string]interface{}{"b": 2.0, "a": 1.0})
	if err != nil {
		t.Fatalf("shape {b,a}: %v", err)
	}
	if sidAB != sidBA {
		t.Fatalf("sid(ab)=%d != sid(ba)=%d, want equal", sidAB, sidBA)
	}
}

func TestCompareEqualDocumentsIsZero(t *testing.T) {
	shp := newTestShaper(t)
	doc := map[string]interface{}{"a": 1.0, "b": 2.0}

	shapeA, valueA, err := shp.FromJSON(doc)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	shapeB, valueB, err := shp.FromJSON(doc)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got := shp.Compare(shapeA, valueA, shapeB, valueB); got != 0 {
		t.Fatalf("Compare(doc, doc) = %d, want 0", got)
	}
}

// TestNewFieldAllocatesNewShapeWithoutDisturbingWeights is the second half
// of §8.3.6: inserting {a:1,b:2,c:3} allocates a new sid and leaves a's and
// b's weights untouched.
func TestNewFieldAllocatesNewShapeWithoutDisturbingWeights(t *testing.T) {
	shp := newTestShaper(t)

	sidAB, _, err := shp.ShapeDocument(map[string]interface{}{"a": 1.0, "b": 2.0})
	if err != nil {
		t.Fatalf("shape {a,b}: %v", err)
	}

	aidA, ok := shp.Dictionary().LookupAttribute("a")
	if !ok {
		t.Fatal("expected attribute a to exist")
	}
	aidB, ok := shp.Dictionary().LookupAttribute("b")
	if !ok {
		t.Fatal("expected attribute b to exist")
	}
	weightABeforeC, err := shp.Dictionary().AttributeWeight(aidA)
	if err != nil {
		t.Fatalf("AttributeWeight(a): %v", err)
	}
	weightBBeforeC, err := shp.Dictionary().AttributeWeight(aidB)
	if err != nil {
		t.Fatalf("AttributeWeight(b): %v", err)
	}

	sidABC, _, err := shp.ShapeDocument(map[string]interface{}{"a": 1.0, "b": 2.0, "c": 3.0})
	if err != nil {
		t.Fatalf("shape {a,b,c}: %v", err)
	}
	if sidABC == sidAB {
		t.Fatal("expected a new sid for a document with an extra field")
	}

	weightAAfterC, err := shp.Dictionary().AttributeWeight(aidA)
	if err != nil {
		t.Fatalf("AttributeWeight(a): %v", err)
	}
	weightBAfterC, err := shp.Dictionary().AttributeWeight(aidB)
	if err != nil {
		t.Fatalf("AttributeWeight(b): %v", err)
	}
	if weightAAfterC != weightABeforeC {
		t.Fatalf("a's weight changed: %d -> %d", weightABeforeC, weightAAfterC)
	}
	if weightBAfterC != weightBBeforeC {
		t.Fatalf("b's weight changed: %d -> %d", weightBBeforeC, weightBAfterC)
	}
}

func TestFindOrInsertAttributeIsIdempotent(t *testing.T) {
	shp := newTestShaper(t)
	aid1, err := shp.Dictionary().FindOrInsertAttribute("name")
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	aid2, err := shp.Dictionary().FindOrInsertAttribute("name")
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if aid1 != aid2 {
		t.Fatalf("aid1=%d != aid2=%d, want equal", aid1, aid2)
	}
}

func TestLookupAttributeDoesNotInsert(t *testing.T) {
	shp := newTestShaper(t)
	if _, ok := shp.Dictionary().LookupAttribute("nope"); ok {
		t.Fatal("expected LookupAttribute to report false for an unseen name")
	}
}

func TestDictionaryReopenRestoresState(t *testing.T) {
	df, err := datafile.Create("", 4*1024*1024, ids.Tick(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gen := ids.NewGenerator(0)
	shp, err := Open(df, gen)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sid, _, err := shp.ShapeDocument(map[string]interface{}{"x": 1.0, "y": "hi"})
	if err != nil {
		t.Fatalf("shape: %v", err)
	}

	reopened, err := Open(df, gen)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	shape, err := reopened.Dictionary().Shape(sid)
	if err != nil {
		t.Fatalf("Shape(%d) after reopen: %v", sid, err)
	}
	if shape == nil {
		t.Fatal("expected shape to survive reopen")
	}
	if _, ok := reopened.Dictionary().LookupAttribute("x"); !ok {
		t.Fatal("expected attribute x to survive reopen")
	}
}

// TestHeterogeneousListRoundTripsNestedObject covers §8.2's round-trip
// property for a non-homogeneous list holding an object: the list's own
// shape carries no per-item structure, so each item must bring its own
// shape along or unshaping loses the object's fields.
func TestHeterogeneousListRoundTripsNestedObject(t *testing.T) {
	shp := newTestShaper(t)

	doc := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"a": 1.0, "b": "nested"},
			"plain-string",
			2.0,
		},
	}

	sid, shaped, err := shp.ShapeDocument(doc)
	if err != nil {
		t.Fatalf("ShapeDocument: %v", err)
	}
	got, err := shp.UnshapeDocument(sid, shaped)
	if err != nil {
		t.Fatalf("UnshapeDocument: %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch:\n got  %#v\n want %#v", got, doc)
	}
}
