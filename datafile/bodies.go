package datafile

import "encoding/binary"

// FileHeaderBody is the body of a TypeFileHeader marker, the first marker
// written to every datafile.
//
// # Binary Layout (Little Endian)
//
//	Offset  Size  Field
//	0x00    4     Version
//	0x04    4     (padding)
//	0x08    8     MaxSize
//	0x10    8     FID
type FileHeaderBody struct {
	Version uint32
	MaxSize uint64
	FID     uint64 // the tick this datafile was created with
}

const fileHeaderBodySize = 24

func (b *FileHeaderBody) encode() []byte {
	buf := make([]byte, fileHeaderBodySize)
	binary.LittleEndian.PutUint32(buf[0:4], b.Version)
	binary.LittleEndian.PutUint64(buf[8:16], b.MaxSize)
	binary.LittleEndian.PutUint64(buf[16:24], b.FID)
	return buf
}

func decodeFileHeaderBody(buf []byte) FileHeaderBody {
	return FileHeaderBody{
		Version: binary.LittleEndian.Uint32(buf[0:4]),
		MaxSize: binary.LittleEndian.Uint64(buf[8:16]),
		FID:     binary.LittleEndian.Uint64(buf[16:24]),
	}
}

// FileFooterBody is the body of a TypeFileFooter marker, appended once by
// Seal. Its presence is what distinguishes a sealed datafile from a journal.
type FileFooterBody struct {
	_ struct{} // no fields today; the marker's existence is the signal
}

func (b *FileFooterBody) encode() []byte { return nil }

// DocumentBody is the body of a TypeDocument marker.
//
// # Binary Layout (Little Endian)
//
//	Offset  Size  Field
//	0x00    8     RevisionID
//	0x08    8     TransactionID
//	0x10    8     ShapeID
//	0x18    2     OffsetKey
//	0x1A    2     OffsetJSON
//	0x1C    ...   key bytes (null-terminated, then padding to alignment)
//	...     ...   shaped body
type DocumentBody struct {
	RevisionID    uint64
	TransactionID uint64
	ShapeID       uint64
	Key           string
	Shaped        []byte
}

const documentBodyFixedSize = 28

// Encode returns the on-disk encoding of b, suitable for passing to
// (*Datafile).Write as the body of a TypeDocument marker.
func (b *DocumentBody) Encode() []byte { return b.encode() }

// DecodeDocumentBody parses the body of a TypeDocument marker. Shaped
// aliases buf; callers that retain it past the datafile's lifetime must
// copy it first.
func DecodeDocumentBody(buf []byte) DocumentBody { return decodeDocumentBody(buf) }

func (b *DocumentBody) encode() []byte {
	keyBytes := append([]byte(b.Key), 0) // null terminator
	offsetKey := documentBodyFixedSize
	offsetJSON := align(offsetKey + len(keyBytes))

	buf := make([]byte, offsetJSON+len(b.Shaped))
	binary.LittleEndian.PutUint64(buf[0:8], b.RevisionID)
	binary.LittleEndian.PutUint64(buf[8:16], b.TransactionID)
	binary.LittleEndian.PutUint64(buf[16:24], b.ShapeID)
	binary.LittleEndian.PutUint16(buf[24:26], uint16(offsetKey))
	binary.LittleEndian.PutUint16(buf[26:28], uint16(offsetJSON))
	copy(buf[offsetKey:], keyBytes)
	copy(buf[offsetJSON:], b.Shaped)
	return buf
}

func decodeDocumentBody(buf []byte) DocumentBody {
	offsetKey := binary.LittleEndian.Uint16(buf[24:26])
	offsetJSON := binary.LittleEndian.Uint16(buf[26:28])
	key := cString(buf[offsetKey:offsetJSON])
	return DocumentBody{
		RevisionID:    binary.LittleEndian.Uint64(buf[0:8]),
		TransactionID: binary.LittleEndian.Uint64(buf[8:16]),
		ShapeID:       binary.LittleEndian.Uint64(buf[16:24]),
		Key:           key,
		Shaped:        buf[offsetJSON:],
	}
}

// EdgeBody extends DocumentBody with the from/to collection and key
// coordinates of a directed edge.
//
// # Binary Layout (Little Endian)
//
//	Offset  Size  Field
//	0x00    28    DocumentBody fixed fields
//	0x1C    8     ToCID
//	0x24    8     FromCID
//	0x2C    2     OffsetToKey
//	0x2E    2     OffsetFromKey
//	0x30    2     OffsetKey
//	0x32    2     OffsetJSON
//	...     ...   to-key, from-key, key (each null-terminated), shaped body
type EdgeBody struct {
	DocumentBody
	ToCID   uint64
	FromCID uint64
	ToKey   string
	FromKey string
}

const edgeBodyFixedSize = 28 + 8 + 8 + 2 + 2 + 2 + 2

// Encode returns the on-disk encoding of b, suitable for passing to
// (*Datafile).Write as the body of a TypeEdge marker.
func (b *EdgeBody) Encode() []byte { return b.encode() }

// DecodeEdgeBody parses the body of a TypeEdge marker.
func DecodeEdgeBody(buf []byte) EdgeBody { return decodeEdgeBody(buf) }

func (b *EdgeBody) encode() []byte {
	toKeyBytes := append([]byte(b.ToKey), 0)
	fromKeyBytes := append([]byte(b.FromKey), 0)
	keyBytes := append([]byte(b.Key), 0)

	offsetToKey := edgeBodyFixedSize
	offsetFromKey := offsetToKey + len(toKeyBytes)
	offsetKey := offsetFromKey + len(fromKeyBytes)
	offsetJSON := align(offsetKey + len(keyBytes))

	buf := make([]byte, offsetJSON+len(b.Shaped))
	binary.LittleEndian.PutUint64(buf[0:8], b.RevisionID)
	binary.LittleEndian.PutUint64(buf[8:16], b.TransactionID)
	binary.LittleEndian.PutUint64(buf[16:24], b.ShapeID)
	binary.LittleEndian.PutUint64(buf[28:36], b.ToCID)
	binary.LittleEndian.PutUint64(buf[36:44], b.FromCID)
	binary.LittleEndian.PutUint16(buf[44:46], uint16(offsetToKey))
	binary.LittleEndian.PutUint16(buf[46:48], uint16(offsetFromKey))
	binary.LittleEndian.PutUint16(buf[48:50], uint16(offsetKey))
	binary.LittleEndian.PutUint16(buf[50:52], uint16(offsetJSON))
	copy(buf[offsetToKey:], toKeyBytes)
	copy(buf[offsetFromKey:], fromKeyBytes)
	copy(buf[offsetKey:], keyBytes)
	copy(buf[offsetJSON:], b.Shaped)
	return buf
}

func decodeEdgeBody(buf []byte) EdgeBody {
	offsetToKey := binary.LittleEndian.Uint16(buf[44:46])
	offsetFromKey := binary.LittleEndian.Uint16(buf[46:48])
	offsetKey := binary.LittleEndian.Uint16(buf[48:50])
	offsetJSON := binary.LittleEndian.Uint16(buf[50:52])
	return EdgeBody{
		DocumentBody: DocumentBody{
			RevisionID:    binary.LittleEndian.Uint64(buf[0:8]),
			TransactionID: binary.LittleEndian.Uint64(buf[8:16]),
			ShapeID:       binary.LittleEndian.Uint64(buf[16:24]),
			Key:           cString(buf[offsetKey:offsetJSON]),
			Shaped:        buf[offsetJSON:],
		},
		ToCID:   binary.LittleEndian.Uint64(buf[28:36]),
		FromCID: binary.LittleEndian.Uint64(buf[36:44]),
		ToKey:   cString(buf[offsetToKey:offsetFromKey]),
		FromKey: cString(buf[offsetFromKey:offsetKey]),
	}
}

// DeletionBody is the body of a TypeDeletion marker (a tombstone).
type DeletionBody struct {
	RevisionID    uint64
	TransactionID uint64
	Key           string
}

const deletionBodyFixedSize = 18

// Encode returns the on-disk encoding of b, suitable for passing to
// (*Datafile).Write as the body of a TypeDeletion marker.
func (b *DeletionBody) Encode() []byte { return b.encode() }

// DecodeDeletionBody parses the body of a TypeDeletion marker.
func DecodeDeletionBody(buf []byte) DeletionBody { return decodeDeletionBody(buf) }

func (b *DeletionBody) encode() []byte {
	keyBytes := append([]byte(b.Key), 0)
	buf := make([]byte, deletionBodyFixedSize+len(keyBytes))
	binary.LittleEndian.PutUint64(buf[0:8], b.RevisionID)
	binary.LittleEndian.PutUint64(buf[8:16], b.TransactionID)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(deletionBodyFixedSize))
	copy(buf[deletionBodyFixedSize:], keyBytes)
	return buf
}

func decodeDeletionBody(buf []byte) DeletionBody {
	offsetKey := binary.LittleEndian.Uint16(buf[16:18])
	return DeletionBody{
		RevisionID:    binary.LittleEndian.Uint64(buf[0:8]),
		TransactionID: binary.LittleEndian.Uint64(buf[8:16]),
		Key:           cString(buf[offsetKey:]),
	}
}

// cString reads a null-terminated string out of buf, stopping at the first
// zero byte (or the end of buf if none is found).
func cString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
