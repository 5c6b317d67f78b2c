package shaper

// Value is the in-memory representation of a shaped document value: a
// decoded JSON value (map[string]interface{}/[]interface{}/scalars), used
// alongside the Shape that describes its structure so Compare never has to
// re-walk raw bytes to answer an ordering question. Apart from ownShape
// below, a Value does not hold its Shape; callers pass both.
type Value struct {
	Kind Kind

	Bool bool
	Num  float64
	Str  string

	Items []*Value // List / HomogeneousList / HomogeneousSizedList

	// Array: parallel to the owning Shape's Entries, same order.
	Fields []*Value

	// ownShape is this value's own shape, set only on the elements of a
	// heterogeneous KindList. A List shape carries no ElementSID (its
	// items may differ in shape), so each item has to carry its own
	// shape alongside itself for itemsShape to recover later — notably
	// an item that is itself a KindArray, whose Entries are otherwise
	// unreachable from the Value alone.
	ownShape *Shape
}

// FromJSON converts a decoded JSON value (as produced by encoding/json,
// i.e. nil/bool/float64/string/[]interface{}/map[string]interface{}) into
// a Value, interning attribute names and registering every nested shape
// with s's dictionary as it goes. The returned Shape is the top-level
// shape; it is not itself registered (ShapeDocument does that), and a
// scalar registers nothing.
func (s *Shaper) FromJSON(v interface{}) (*Shape, *Value, error) {
	switch vv := v.(type) {
	case nil:
		return &Shape{Kind: KindNull}, &Value{Kind: KindNull}, nil
	case bool:
		return &Shape{Kind: KindBoolean}, &Value{Kind: KindBoolean, Bool: vv}, nil
	case float64:
		return &Shape{Kind: KindNumber}, &Value{Kind: KindNumber, Num: vv}, nil
	case string:
		kind := KindShortString
		if len(vv) > shortStringLimit {
			kind = KindLongString
		}
		return &Shape{Kind: kind}, &Value{Kind: kind, Str: vv}, nil
	case []interface{}:
		return s.shapeList(vv)
	case map[string]interface{}:
		return s.shapeArray(vv)
	default:
		return nil, nil, errUnsupportedJSONType
	}
}

// shortStringLimit is the boundary between short-string and long-string
// shapes; it only affects which Kind is assigned, never correctness.
const shortStringLimit = 127

func (s *Shaper) shapeList(items []interface{}) (*Shape, *Value, error) {
	elementShapes := make([]*Shape, len(items))
	values := make([]*Value, len(items))
	homogeneous := true
	var commonBytes string

	for i, item := range items {
		shape, value, err := s.FromJSON(item)
		if err != nil {
			return nil, nil, err
		}
		elementShapes[i] = shape
		values[i] = value
		b := string(shape.Bytes())
		if i == 0 {
			commonBytes = b
		} else if b != commonBytes {
			homogeneous = false
		}
	}

	if len(items) == 0 {
		shape := &Shape{Kind: KindList}
		return shape, &Value{Kind: KindList}, nil
	}

	if homogeneous {
		sid, err := s.dict.FindOrInsertShape(elementShapes[0])
		if err != nil {
			return nil, nil, err
		}
		shape := &Shape{Kind: KindHomogeneousList, ElementSID: sid}
		return shape, &Value{Kind: KindHomogeneousList, Items: values}, nil
	}

	for i, v := range values {
		v.ownShape = elementShapes[i]
	}
	shape := &Shape{Kind: KindList}
	return shape, &Value{Kind: KindList, Items: values}, nil
}

// shapeField is one object member awaiting weight-ordering in shapeArray.
type shapeField struct {
	aid    uint64
	weight int64
	shape  *Shape
	value  *Value
}

func (s *Shaper) shapeArray(obj map[string]interface{}) (*Shape, *Value, error) {
	// Deterministic order regardless of map iteration: sort by attribute
	// weight once every attribute has been assigned one.
	fields := make([]shapeField, 0, len(obj))

	for name, raw := range obj {
		aid, err := s.dict.FindOrInsertAttribute(name)
		if err != nil {
			return nil, nil, err
		}
		weight, err := s.dict.AttributeWeight(aid)
		if err != nil {
			return nil, nil, err
		}
		childShape, childValue, err := s.FromJSON(raw)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, shapeField{aid: aid, weight: weight, shape: childShape, value: childValue})
	}

	sortFieldsByWeight(fields)

	entries := make([]ArrayEntry, len(fields))
	values := make([]*Value, len(fields))
	for i, f := range fields {
		sid, err := s.dict.FindOrInsertShape(f.shape)
		if err != nil {
			return nil, nil, err
		}
		fixedSize := uint32(0)
		switch f.shape.Kind {
		case KindBoolean:
			fixedSize = 1
		case KindNumber:
			fixedSize = 8
		}
		entries[i] = ArrayEntry{AID: f.aid, ChildSID: sid, FixedSize: fixedSize}
		values[i] = f.value
	}

	shape := &Shape{Kind: KindArray, Entries: entries}
	return shape, &Value{Kind: KindArray, Fields: values}, nil
}

func sortFieldsByWeight(fields []shapeField) {
	for i := 1; i < len(fields); i++ {
		j := i
		for j > 0 && fields[j-1].weight > fields[j].weight {
			fields[j-1], fields[j] = fields[j], fields[j-1]
			j--
		}
	}
}

// ToJSON reconstructs a decoded-JSON-compatible value from shape and v.
func (s *Shaper) ToJSON(shape *Shape, v *Value) (interface{}, error) {
	switch shape.Kind {
	case KindNull:
		return nil, nil
	case KindBoolean:
		return v.Bool, nil
	case KindNumber:
		return v.Num, nil
	case KindShortString, KindLongString:
		return v.Str, nil
	case KindList, KindHomogeneousList, KindHomogeneousSizedList:
		out := make([]interface{}, len(v.Items))
		for i, item := range v.Items {
			var childShape *Shape
			if shape.Kind == KindList {
				childShape = itemsShape(item)
			} else {
				cs, err := s.dict.Shape(shape.ElementSID)
				if err != nil {
					return nil, err
				}
				childShape = cs
			}
			jv, err := s.ToJSON(childShape, item)
			if err != nil {
				return nil, err
			}
			out[i] = jv
		}
		return out, nil
	case KindArray:
		out := make(map[string]interface{}, len(shape.Entries))
		for i, e := range shape.Entries {
			name, err := s.dict.AttributeName(e.AID)
			if err != nil {
				return nil, err
			}
			childShape, err := s.dict.Shape(e.ChildSID)
			if err != nil {
				return nil, err
			}
			jv, err := s.ToJSON(childShape, v.Fields[i])
			if err != nil {
				return nil, err
			}
			out[name] = jv
		}
		return out, nil
	default:
		return nil, errUnsupportedJSONType
	}
}

// itemsShape recovers a heterogeneous list item's own shape, since a plain
// (non-homogeneous) List shape doesn't carry per-item shape information
// itself — shapeList stashes it on the item's Value instead. Falling back
// to a bare Kind-only shape only happens for a Value that predates this
// (e.g. hand-built in a test); it is wrong for KindArray/KindList items,
// whose Entries/Items would be silently dropped.
func itemsShape(v *Value) *Shape {
	if v.ownShape != nil {
		return v.ownShape
	}
	return &Shape{Kind: v.Kind}
}
