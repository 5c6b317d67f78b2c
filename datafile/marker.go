// Package datafile implements the append-only, CRC-protected, memory-mapped
// marker log every collection (and the shaper's own dictionary) is built on.
package datafile

import (
	"encoding/binary"
	"fmt"

	"vocbase/ids"
)

// MarkerType identifies the kind of record a marker's body holds.
type MarkerType uint32

// Marker type range. A marker whose type falls outside (minMarkerType,
// maxMarkerType) is rejected as corrupt, mirroring TRI_DF_MARKER_MIN/MAX.
const (
	minMarkerType MarkerType = 999

	TypeFileHeader       MarkerType = 1000
	TypeFileFooter       MarkerType = 1001
	TypeAttribute        MarkerType = 1002
	TypeShape            MarkerType = 1003
	TypeCollectionHeader MarkerType = 1004
	TypeDocument         MarkerType = 1005
	TypeEdge             MarkerType = 1006
	TypeDeletion         MarkerType = 1007

	maxMarkerType MarkerType = 1008
)

func (t MarkerType) String() string {
	switch t {
	case TypeFileHeader:
		return "file-header"
	case TypeFileFooter:
		return "file-footer"
	case TypeAttribute:
		return "attribute"
	case TypeShape:
		return "shape"
	case TypeCollectionHeader:
		return "collection-header"
	case TypeDocument:
		return "key-document"
	case TypeEdge:
		return "key-edge"
	case TypeDeletion:
		return "key-deletion"
	default:
		return fmt.Sprintf("marker-type(%d)", uint32(t))
	}
}

// Valid reports whether t falls within the recognised marker type range.
func (t MarkerType) Valid() bool {
	return t > minMarkerType && t < maxMarkerType
}

// alignment is the boundary every marker's total size is padded to, and the
// boundary the next marker must start on.
const alignment = 8

// MaxMarkerSize is the hard ceiling on a single marker's total size,
// independent of any one datafile's capacity.
const MaxMarkerSize = 256 * 1024 * 1024

// headerSize is the fixed, encoded size of a Header in bytes:
// size(4) + crc(4) + type(4) + uuid(12).
const headerSize = 24

// Header is the 8-byte-aligned, length-prefixed prologue of every marker.
// The body immediately follows and is interpreted according to Type.
type Header struct {
	Size uint32     // total marker size, header + body, padded to 8 bytes
	CRC  uint32     // CRC-32 of the marker with this field zeroed
	Type MarkerType // body discriminator

	ServerID ids.ServerID // low 48 bits persisted, big-endian
	Tick     ids.Tick     // low 48 bits persisted, big-endian
}

// align rounds n up to the next multiple of alignment.
func align(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// PaddedSize returns the total marker size (header + bodyLen) rounded up to
// the next 8-byte boundary.
func PaddedSize(bodyLen int) int {
	return align(headerSize + bodyLen)
}

// Validate checks the structural invariants a marker header must satisfy
// independent of CRC: minimum size, maximum size, valid type, and
// size%8==0. CRC is checked separately by checkMarkerCRC since it requires the
// body bytes too.
func (h *Header) Validate() error {
	if h.Size < headerSize {
		return fmt.Errorf("marker size %d smaller than header size %d", h.Size, headerSize)
	}
	if h.Size > MaxMarkerSize {
		return fmt.Errorf("marker size %d exceeds maximum %d", h.Size, MaxMarkerSize)
	}
	if h.Size%alignment != 0 {
		return fmt.Errorf("marker size %d is not a multiple of %d", h.Size, alignment)
	}
	if !h.Type.Valid() {
		return fmt.Errorf("marker type %d out of range", uint32(h.Type))
	}
	return nil
}

// encodeHeader writes h into the first headerSize bytes of buf. buf must be
// at least headerSize bytes.
func encodeHeader(buf []byte, h *Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	binary.LittleEndian.PutUint32(buf[4:8], h.CRC)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Type))
	// uuid field: server_id:u48, sequence:u48, big-endian, human-sortable.
	putUint48BE(buf[12:18], uint64(h.ServerID))
	putUint48BE(buf[18:24], uint64(h.Tick))
}

// decodeHeader reads a Header from the first headerSize bytes of buf.
func decodeHeader(buf []byte) Header {
	return Header{
		Size:     binary.LittleEndian.Uint32(buf[0:4]),
		CRC:      binary.LittleEndian.Uint32(buf[4:8]),
		Type:     MarkerType(binary.LittleEndian.Uint32(buf[8:12])),
		ServerID: ids.ServerID(getUint48BE(buf[12:18])),
		Tick:     ids.Tick(getUint48BE(buf[18:24])),
	}
}

func putUint48BE(buf []byte, v uint64) {
	buf[0] = byte(v >> 40)
	buf[1] = byte(v >> 32)
	buf[2] = byte(v >> 24)
	buf[3] = byte(v >> 16)
	buf[4] = byte(v >> 8)
	buf[5] = byte(v)
}

func getUint48BE(buf []byte) uint64 {
	return uint64(buf[0])<<40 | uint64(buf[1])<<32 | uint64(buf[2])<<24 |
		uint64(buf[3])<<16 | uint64(buf[4])<<8 | uint64(buf[5])
}
