package shaper

// Compare orders two shaped values deterministically, per §4.2's
// comparison contract: values are ordered by type first, using the fixed
// order illegal < null < boolean < number < string < list-family < array,
// then by content. It is the primitive the skip-list secondary index
// builds sorted and range queries on top of.
func (s *Shaper) Compare(shapeA *Shape, a *Value, shapeB *Shape, b *Value) int {
	oa, ob := shapeA.Kind.typeOrder(), shapeB.Kind.typeOrder()
	if oa != ob {
		return cmpInt(oa, ob)
	}

	switch shapeA.Kind {
	case KindNull:
		return 0
	case KindBoolean:
		return cmpBool(a.Bool, b.Bool)
	case KindNumber:
		return cmpFloat(a.Num, b.Num)
	case KindShortString, KindLongString:
		return cmpString(a.Str, b.Str)
	case KindList, KindHomogeneousList, KindHomogeneousSizedList:
		return s.compareLists(shapeA, a, shapeB, b)
	case KindArray:
		return s.compareArrays(shapeA, a, shapeB, b)
	default:
		return 0
	}
}

func (s *Shaper) compareLists(shapeA *Shape, a *Value, shapeB *Shape, b *Value) int {
	n := len(a.Items)
	if len(b.Items) < n {
		n = len(b.Items)
	}
	for i := 0; i < n; i++ {
		childShapeA, err := s.childListShape(shapeA, a.Items[i])
		if err != nil {
			return 0
		}
		childShapeB, err := s.childListShape(shapeB, b.Items[i])
		if err != nil {
			return 0
		}
		if c := s.Compare(childShapeA, a.Items[i], childShapeB, b.Items[i]); c != 0 {
			return c
		}
	}
	// Ties are resolved by length, per §4.2.
	return cmpInt(len(a.Items), len(b.Items))
}

func (s *Shaper) childListShape(shape *Shape, v *Value) (*Shape, error) {
	if shape.Kind == KindList {
		return itemsShape(v), nil
	}
	return s.dict.Shape(shape.ElementSID)
}

// compareArrays implements the array rule from §4.2: sort both sides'
// key/value pairs by attribute weight (Shape.Entries is already stored in
// weight order — see shapeArray in value.go), compare pairwise by weight
// then value, and resolve ties by length. An attribute present on one side
// only compares by its weight against the other side's next attribute, so
// the side that has a lower-weight attribute sorts ahead of the side
// missing it.
func (s *Shaper) compareArrays(shapeA *Shape, a *Value, shapeB *Shape, b *Value) int {
	i, j := 0, 0
	for i < len(shapeA.Entries) && j < len(shapeB.Entries) {
		ea, eb := shapeA.Entries[i], shapeB.Entries[j]
		wa, errA := s.dict.AttributeWeight(ea.AID)
		wb, errB := s.dict.AttributeWeight(eb.AID)
		if errA != nil || errB != nil {
			return 0
		}
		if wa != wb {
			return cmpInt64(wa, wb)
		}
		childShapeA, err := s.dict.Shape(ea.ChildSID)
		if err != nil {
			return 0
		}
		childShapeB, err := s.dict.Shape(eb.ChildSID)
		if err != nil {
			return 0
		}
		if c := s.Compare(childShapeA, a.Fields[i], childShapeB, b.Fields[j]); c != 0 {
			return c
		}
		i++
		j++
	}
	return cmpInt(len(shapeA.Entries), len(shapeB.Entries))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
