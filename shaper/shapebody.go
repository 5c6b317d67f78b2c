package shaper

import "encoding/binary"

// shapeBody is the persisted encoding of one shape marker: the assigned
// sid plus the shape's own content-addressed byte encoding.
type shapeBody struct {
	sid   uint64
	bytes []byte
}

func (b *shapeBody) encode() []byte {
	buf := make([]byte, 8+len(b.bytes))
	binary.LittleEndian.PutUint64(buf[0:8], b.sid)
	copy(buf[8:], b.bytes)
	return buf
}

func decodeShapeBody(buf []byte) shapeBody {
	return shapeBody{
		sid:   binary.LittleEndian.Uint64(buf[0:8]),
		bytes: buf[8:],
	}
}
