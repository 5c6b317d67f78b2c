package shaper

import (
	"encoding/binary"
	"math"
)

// EncodeValue produces the compact, shape-relative binary encoding of v
// under shape: the bytes a key-document or key-edge marker's shaped body
// holds (§3.2, §3.5). A shape carries no type tags of its own in this
// encoding, which is the point of splitting shape from value: decoding
// always requires the same shape the value was encoded with, and every
// document marker keeps its shape id around for exactly that reason.
func (s *Shaper) EncodeValue(shape *Shape, v *Value) ([]byte, error) {
	switch shape.Kind {
	case KindNull:
		return nil, nil

	case KindBoolean:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case KindNumber:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.Num))
		return buf, nil

	case KindShortString:
		b := []byte(v.Str)
		buf := make([]byte, 1+len(b))
		buf[0] = byte(len(b))
		copy(buf[1:], b)
		return buf, nil

	case KindLongString:
		b := []byte(v.Str)
		buf := make([]byte, 4+len(b))
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(b)))
		copy(buf[4:], b)
		return buf, nil

	case KindHomogeneousList, KindHomogeneousSizedList:
		childShape, err := s.dict.Shape(shape.ElementSID)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(len(v.Items)))
		for _, item := range v.Items {
			eb, err := s.EncodeValue(childShape, item)
			if err != nil {
				return nil, err
			}
			buf = appendLenPrefixed(buf, eb)
		}
		return buf, nil

	case KindList:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(len(v.Items)))
		for _, item := range v.Items {
			childShape := itemsShape(item)
			eb, err := s.EncodeValue(childShape, item)
			if err != nil {
				return nil, err
			}
			buf = appendLenPrefixed(buf, childShape.Bytes())
			buf = appendLenPrefixed(buf, eb)
		}
		return buf, nil

	case KindArray:
		var buf []byte
		for i, e := range shape.Entries {
			childShape, err := s.dict.Shape(e.ChildSID)
			if err != nil {
				return nil, err
			}
			eb, err := s.EncodeValue(childShape, v.Fields[i])
			if err != nil {
				return nil, err
			}
			buf = appendLenPrefixed(buf, eb)
		}
		return buf, nil

	default:
		return nil, errUnsupportedJSONType
	}
}

// DecodeValue is EncodeValue's inverse: shaped must be the same shape the
// bytes were produced with.
func (s *Shaper) DecodeValue(shape *Shape, buf []byte) (*Value, error) {
	switch shape.Kind {
	case KindNull:
		return &Value{Kind: KindNull}, nil

	case KindBoolean:
		if len(buf) < 1 {
			return nil, errTruncatedValue
		}
		return &Value{Kind: KindBoolean, Bool: buf[0] != 0}, nil

	case KindNumber:
		if len(buf) < 8 {
			return nil, errTruncatedValue
		}
		return &Value{Kind: KindNumber, Num: math.Float64frombits(binary.LittleEndian.Uint64(buf))}, nil

	case KindShortString:
		if len(buf) < 1 || len(buf) < 1+int(buf[0]) {
			return nil, errTruncatedValue
		}
		n := int(buf[0])
		return &Value{Kind: KindShortString, Str: string(buf[1 : 1+n])}, nil

	case KindLongString:
		if len(buf) < 4 {
			return nil, errTruncatedValue
		}
		n := int(binary.LittleEndian.Uint32(buf[0:4]))
		if len(buf) < 4+n {
			return nil, errTruncatedValue
		}
		return &Value{Kind: KindLongString, Str: string(buf[4 : 4+n])}, nil

	case KindHomogeneousList, KindHomogeneousSizedList:
		childShape, err := s.dict.Shape(shape.ElementSID)
		if err != nil {
			return nil, err
		}
		if len(buf) < 4 {
			return nil, errTruncatedValue
		}
		n := int(binary.LittleEndian.Uint32(buf[0:4]))
		off := 4
		items := make([]*Value, n)
		for i := 0; i < n; i++ {
			item, next, err := readLenPrefixed(buf, off)
			if err != nil {
				return nil, err
			}
			v, err := s.DecodeValue(childShape, item)
			if err != nil {
				return nil, err
			}
			items[i] = v
			off = next
		}
		return &Value{Kind: shape.Kind, Items: items}, nil

	case KindList:
		if len(buf) < 4 {
			return nil, errTruncatedValue
		}
		n := int(binary.LittleEndian.Uint32(buf[0:4]))
		off := 4
		items := make([]*Value, n)
		for i := 0; i < n; i++ {
			sb, next, err := readLenPrefixed(buf, off)
			if err != nil {
				return nil, err
			}
			childShape, err := decodeShape(sb)
			if err != nil {
				return nil, err
			}
			off = next
			eb, next2, err := readLenPrefixed(buf, off)
			if err != nil {
				return nil, err
			}
			v, err := s.DecodeValue(childShape, eb)
			if err != nil {
				return nil, err
			}
			v.ownShape = childShape
			items[i] = v
			off = next2
		}
		return &Value{Kind: KindList, Items: items}, nil

	case KindArray:
		fields := make([]*Value, len(shape.Entries))
		off := 0
		for i, e := range shape.Entries {
			childShape, err := s.dict.Shape(e.ChildSID)
			if err != nil {
				return nil, err
			}
			eb, next, err := readLenPrefixed(buf, off)
			if err != nil {
				return nil, err
			}
			v, err := s.DecodeValue(childShape, eb)
			if err != nil {
				return nil, err
			}
			fields[i] = v
			off = next
		}
		return &Value{Kind: KindArray, Fields: fields}, nil

	default:
		return nil, errUnsupportedJSONType
	}
}

func appendLenPrefixed(buf, payload []byte) []byte {
	lb := make([]byte, 4)
	binary.LittleEndian.PutUint32(lb, uint32(len(payload)))
	buf = append(buf, lb...)
	buf = append(buf, payload...)
	return buf
}

func readLenPrefixed(buf []byte, off int) ([]byte, int, error) {
	if off+4 > len(buf) {
		return nil, 0, errTruncatedValue
	}
	n := int(binary.LittleEndian.Uint32(buf[off : off+4]))
	start := off + 4
	if n < 0 || start+n > len(buf) {
		return nil, 0, errTruncatedValue
	}
	return buf[start : start+n], start + n, nil
}

// ShapeDocument converts a decoded JSON document into a persisted shape id
// and its shaped binary body in one step: the combination every document
// marker's write path needs.
func (s *Shaper) ShapeDocument(doc interface{}) (sid uint64, shaped []byte, err error) {
	shape, value, err := s.FromJSON(doc)
	if err != nil {
		return 0, nil, err
	}
	sid, err = s.dict.FindOrInsertShape(shape)
	if err != nil {
		return 0, nil, err
	}
	shaped, err = s.EncodeValue(shape, value)
	if err != nil {
		return 0, nil, err
	}
	return sid, shaped, nil
}

// UnshapeDocument is ShapeDocument's inverse: given a persisted shape id
// and shaped body, it reconstructs the decoded JSON document.
func (s *Shaper) UnshapeDocument(sid uint64, shaped []byte) (interface{}, error) {
	shape, err := s.dict.Shape(sid)
	if err != nil {
		return nil, err
	}
	value, err := s.DecodeValue(shape, shaped)
	if err != nil {
		return nil, err
	}
	return s.ToJSON(shape, value)
}
