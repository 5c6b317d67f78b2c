package migration

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"vocbase/datafile"
	"vocbase/ids"
)

// legacyRecordHeader is the on-disk encoding of a legacy marker header,
// read directly off the wire — legacy files predate datafile.Header and
// are never opened through the current Datafile type.
type legacyRecordHeader struct {
	Size uint32
	CRC  uint32
	Type uint32
	Tick uint64
}

func readLegacyHeader(r io.Reader) (legacyRecordHeader, error) {
	var raw [legacyHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return legacyRecordHeader{}, err
	}
	return legacyRecordHeader{
		Size: binary.LittleEndian.Uint32(raw[0:4]),
		CRC:  binary.LittleEndian.Uint32(raw[4:8]),
		Type: binary.LittleEndian.Uint32(raw[8:12]),
		Tick: binary.LittleEndian.Uint64(raw[12:20]),
	}, nil
}

// align4 rounds n up to the next multiple of 4, the alignment legacy
// markers were padded to (half the current format's 8-byte alignment).
func align4(n uint32) uint32 {
	return (n + 3) &^ 3
}

// Result summarizes one completed migration run, for operator logging.
type Result struct {
	Converted int
	Skipped   int
	MaxTick   uint64
}

// Migrate reads every legacy marker in srcPath (a legacy-format datafile)
// and writes the equivalent current-format key-document markers into a
// freshly created datafile at dstPath, then seals it. gen is advanced
// past every legacy tick encountered, satisfying §4.5's monotonic-id
// requirement across the upgrade. Non-document legacy markers (legacy
// headers, footers, attribute/shape markers — collections converted by
// this package carry no shapes, since legacy collections had none) are
// counted in Result.Skipped and otherwise ignored.
//
// This is a one-shot, offline conversion: srcPath must not be written to
// concurrently, and dstPath must not already exist. The destination's
// markers carry this process's own ids.LocalServerID(), since legacy
// markers had no server identity of their own to preserve.
func Migrate(srcPath, dstPath string, maxSize int64, gen *ids.Generator) (Result, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return Result{}, fmt.Errorf("migration: open source: %w", err)
	}
	defer src.Close()

	dst, err := datafile.Create(dstPath, maxSize, gen.NewTick())
	if err != nil {
		return Result{}, fmt.Errorf("migration: create destination: %w", err)
	}

	r := bufio.NewReader(src)
	var res Result

	for {
		hdr, err := readLegacyHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			dst.Close()
			return res, fmt.Errorf("migration: read legacy header at record %d: %w", res.Converted+res.Skipped, err)
		}
		if hdr.Size < legacyHeaderSize {
			dst.Close()
			return res, fmt.Errorf("migration: legacy marker size %d smaller than header", hdr.Size)
		}

		bodyLen := hdr.Size - legacyHeaderSize
		body := make([]byte, align4(bodyLen))
		if _, err := io.ReadFull(r, body); err != nil {
			dst.Close()
			return res, fmt.Errorf("migration: read legacy body: %w", err)
		}
		body = body[:bodyLen]

		if hdr.Tick > res.MaxTick {
			res.MaxTick = hdr.Tick
		}
		gen.Observe(ids.Tick(hdr.Tick))

		var doc datafile.DocumentBody
		switch LegacyType(hdr.Type) {
		case LegacyTypeDocumentV11:
			m, err := DecodeV11(hdr.Tick, body)
			if err != nil {
				dst.Close()
				return res, err
			}
			doc = ConvertV11(m, gen)
		case LegacyTypeDocumentV12:
			m, err := DecodeV12(hdr.Tick, body)
			if err != nil {
				dst.Close()
				return res, err
			}
			doc = ConvertV12(m, gen)
		default:
			res.Skipped++
			continue
		}

		encoded := doc.Encode()
		offset, err := dst.Reserve(len(encoded))
		if err != nil {
			dst.Close()
			return res, fmt.Errorf("migration: reserve: %w", err)
		}
		tick := gen.NewTick()
		if err := dst.Write(offset, datafile.TypeDocument, tick, encoded, false); err != nil {
			dst.Close()
			return res, fmt.Errorf("migration: write: %w", err)
		}
		res.Converted++
	}

	if err := dst.Seal(); err != nil {
		dst.Close()
		return res, fmt.Errorf("migration: seal destination: %w", err)
	}
	return res, dst.Close()
}
