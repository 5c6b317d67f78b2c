package skiplist

import "testing"

func intKeyElement(key int, elt int) int {
	switch {
	case key < elt:
		return -1
	case key > elt:
		return 1
	default:
		return 0
	}
}

func intElementElement(a, b int) int {
	return intKeyElement(a, b)
}

// TestUniqueRangeLookups is the literal scenario from §8.3.5: keys
// {1,3,5,7,9} in a unique skip list (height bound 8, p=½).
func TestUniqueRangeLookups(t *testing.T) {
	u := NewUnique[int, int](8, ProbHalf, intKeyElement, intElementElement)
	for _, k := range []int{1, 3, 5, 7, 9} {
		if status, err := u.Insert(k, false); status != StatusOK {
			t.Fatalf("insert(%d): status=%v err=%v", k, status, err)
		}
	}

	left := u.LeftLookup(4)
	if IsSentinel(left) || left.Element() != 3 {
		t.Fatalf("LeftLookup(4) = %v, want 3", left.Element())
	}

	right := u.RightLookup(4)
	if IsSentinel(right) || right.Element() != 5 {
		t.Fatalf("RightLookup(4) = %v, want 5", right.Element())
	}

	node3, ok := u.LookupByKey(3)
	if !ok {
		t.Fatal("LookupByKey(3) not found")
	}
	next := u.NextNode(node3)
	if IsSentinel(next) || next.Element() != 5 {
		t.Fatalf("NextNode(3) = %v, want 5", next.Element())
	}

	prevOfEnd := u.PrevNode(u.End())
	if IsSentinel(prevOfEnd) || prevOfEnd.Element() != 9 {
		t.Fatalf("PrevNode(End()) = %v, want 9", prevOfEnd.Element())
	}
}

func TestUniqueInsertDuplicateRejected(t *testing.T) {
	u := NewUnique[int, int](8, ProbHalf, intKeyElement, intElementElement)
	if status, _ := u.Insert(5, false); status != StatusOK {
		t.Fatalf("first insert: status=%v", status)
	}
	status, err := u.Insert(5, false)
	if status != StatusUniqueViolation {
		t.Fatalf("second insert: status=%v, want StatusUniqueViolation", status)
	}
	if err != ErrUniqueViolation {
		t.Fatalf("err=%v, want ErrUniqueViolation", err)
	}
}

func TestUniqueInsertOverwrite(t *testing.T) {
	u := NewUnique[int, int](8, ProbHalf, intKeyElement, intElementElement)
	u.Insert(5, false)
	status, err := u.Insert(5, true)
	if status != StatusOK || err != nil {
		t.Fatalf("overwrite insert: status=%v err=%v", status, err)
	}
	if u.Len() != 1 {
		t.Fatalf("Len()=%d, want 1 after overwrite", u.Len())
	}
}

func TestUniqueRemove(t *testing.T) {
	u := NewUnique[int, int](8, ProbHalf, intKeyElement, intElementElement)
	for _, k := range []int{1, 2, 3} {
		u.Insert(k, false)
	}
	elt, status := u.Remove(2)
	if status != StatusOK || elt != 2 {
		t.Fatalf("Remove(2) = (%d, %v)", elt, status)
	}
	if _, ok := u.LookupByKey(2); ok {
		t.Fatal("expected key 2 to be gone after Remove")
	}
	if u.Len() != 2 {
		t.Fatalf("Len()=%d, want 2", u.Len())
	}

	if _, status := u.Remove(99); status != StatusNotFound {
		t.Fatalf("Remove(99) status=%v, want StatusNotFound", status)
	}
}

// multiElem carries a key plus a tiebreaker so duplicates can be told apart.
type multiElem struct {
	key int
	tag string
}

func multiKeyElement(key int, e multiElem) int { return intKeyElement(key, e.key) }
func multiElementElement(a, b multiElem) int   { return intKeyElement(a.key, b.key) }
func multiEqual(a, b multiElem) bool           { return a.tag == b.tag }

func TestMultiAllowsDuplicatesInInsertionOrder(t *testing.T) {
	m := NewMulti[int, multiElem](8, ProbHalf, multiKeyElement, multiElementElement, multiEqual)
	m.Insert(multiElem{5, "first"}, false)
	m.Insert(multiElem{5, "second"}, false)
	m.Insert(multiElem{5, "third"}, false)

	if m.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", m.Len())
	}

	n := m.NextNode(m.Start())
	var order []string
	for !IsSentinel(n) {
		order = append(order, n.Element().tag)
		n = m.NextNode(n)
	}
	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("order=%v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v, want %v", order, want)
		}
	}
}

func TestMultiRemoveExactElement(t *testing.T) {
	m := NewMulti[int, multiElem](8, ProbHalf, multiKeyElement, multiElementElement, multiEqual)
	m.Insert(multiElem{5, "first"}, false)
	m.Insert(multiElem{5, "second"}, false)

	removed, status := m.Remove(multiElem{5, "first"})
	if status != StatusOK || removed.tag != "first" {
		t.Fatalf("Remove(first) = (%v, %v)", removed, status)
	}
	if m.Len() != 1 {
		t.Fatalf("Len()=%d, want 1", m.Len())
	}
	n := m.NextNode(m.Start())
	if IsSentinel(n) || n.Element().tag != "second" {
		t.Fatalf("remaining element = %v, want second", n.Element())
	}
}

func TestEmptyListSentinelsAreAdjacent(t *testing.T) {
	u := NewUnique[int, int](4, ProbHalf, intKeyElement, intElementElement)
	if next := u.NextNode(u.Start()); next != u.End() {
		t.Fatal("expected Start -> End directly on an empty list")
	}
	if prev := u.PrevNode(u.End()); prev != u.Start() {
		t.Fatal("expected End -> Start directly on an empty list")
	}
}

func TestSyncedVariantsConcurrentInserts(t *testing.T) {
	u := NewSyncedUnique[int, int](16, ProbHalf, intKeyElement, intElementElement)
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(v int) {
			u.Insert(v, false)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	if u.Len() != 50 {
		t.Fatalf("Len()=%d, want 50", u.Len())
	}
}
