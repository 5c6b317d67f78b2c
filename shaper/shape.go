package shaper

import "encoding/binary"

// Kind discriminates the structural category a Shape describes.
type Kind byte

const (
	KindNull Kind = iota
	KindBoolean
	KindNumber
	KindShortString
	KindLongString
	KindList
	KindHomogeneousList
	KindHomogeneousSizedList
	KindArray
)

// typeOrder gives the fixed ordering used by Compare: illegal < null <
// boolean < number < string < list-family < array.
func (k Kind) typeOrder() int {
	switch k {
	case KindNull:
		return 1
	case KindBoolean:
		return 2
	case KindNumber:
		return 3
	case KindShortString, KindLongString:
		return 4
	case KindList, KindHomogeneousList, KindHomogeneousSizedList:
		return 5
	case KindArray:
		return 6
	default:
		return 0 // illegal
	}
}

// ArrayEntry is one attribute of an array shape: the attribute-id it's
// keyed by and the shape-id of its value. FixedSize records the value's
// inline size (1 for a boolean, 8 for a number, 0 otherwise) and is part
// of the shape's byte encoding; EncodeValue and DecodeValue do not use it,
// and every field of an array value is written length-prefixed.
type ArrayEntry struct {
	AID       uint64
	ChildSID  uint64
	FixedSize uint32
}

// Shape describes the structure of a value. Shapes are content-addressed:
// two shapes with byte-identical Bytes() are the same shape and share one
// SID, which is why Shape intentionally carries no cached SID field of its
// own — the dictionary is the only place an SID is assigned.
type Shape struct {
	Kind Kind

	// List/HomogeneousList/HomogeneousSizedList
	ElementSID  uint64 // for homogeneous variants; 0 for a plain heterogeneous List
	ElementSize uint32 // for HomogeneousSizedList only

	// Array
	Entries []ArrayEntry
}

// Bytes returns the canonical, content-addressable encoding of s. Two
// values produce byte-identical output if and only if they describe the
// same shape.
func (s *Shape) Bytes() []byte {
	switch s.Kind {
	case KindNull, KindBoolean, KindNumber, KindShortString, KindLongString, KindList:
		return []byte{byte(s.Kind)}
	case KindHomogeneousList:
		buf := make([]byte, 9)
		buf[0] = byte(s.Kind)
		binary.LittleEndian.PutUint64(buf[1:9], s.ElementSID)
		return buf
	case KindHomogeneousSizedList:
		buf := make([]byte, 13)
		buf[0] = byte(s.Kind)
		binary.LittleEndian.PutUint64(buf[1:9], s.ElementSID)
		binary.LittleEndian.PutUint32(buf[9:13], s.ElementSize)
		return buf
	case KindArray:
		buf := make([]byte, 1+4+len(s.Entries)*20)
		buf[0] = byte(s.Kind)
		binary.LittleEndian.PutUint32(buf[1:5], uint32(len(s.Entries)))
		off := 5
		for _, e := range s.Entries {
			binary.LittleEndian.PutUint64(buf[off:off+8], e.AID)
			binary.LittleEndian.PutUint64(buf[off+8:off+16], e.ChildSID)
			binary.LittleEndian.PutUint32(buf[off+16:off+20], e.FixedSize)
			off += 20
		}
		return buf
	default:
		return []byte{byte(s.Kind)}
	}
}

// decodeShape parses the encoding produced by Bytes.
func decodeShape(buf []byte) (*Shape, error) {
	if len(buf) == 0 {
		return nil, errShapeTooShort
	}
	kind := Kind(buf[0])
	s := &Shape{Kind: kind}
	switch kind {
	case KindNull, KindBoolean, KindNumber, KindShortString, KindLongString, KindList:
		return s, nil
	case KindHomogeneousList:
		if len(buf) < 9 {
			return nil, errShapeTooShort
		}
		s.ElementSID = binary.LittleEndian.Uint64(buf[1:9])
		return s, nil
	case KindHomogeneousSizedList:
		if len(buf) < 13 {
			return nil, errShapeTooShort
		}
		s.ElementSID = binary.LittleEndian.Uint64(buf[1:9])
		s.ElementSize = binary.LittleEndian.Uint32(buf[9:13])
		return s, nil
	case KindArray:
		if len(buf) < 5 {
			return nil, errShapeTooShort
		}
		n := binary.LittleEndian.Uint32(buf[1:5])
		s.Entries = make([]ArrayEntry, n)
		off := 5
		for i := range s.Entries {
			if off+20 > len(buf) {
				return nil, errShapeTooShort
			}
			s.Entries[i] = ArrayEntry{
				AID:       binary.LittleEndian.Uint64(buf[off : off+8]),
				ChildSID:  binary.LittleEndian.Uint64(buf[off+8 : off+16]),
				FixedSize: binary.LittleEndian.Uint32(buf[off+16 : off+20]),
			}
			off += 20
		}
		return s, nil
	default:
		return s, nil
	}
}
