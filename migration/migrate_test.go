package migration

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"vocbase/datafile"
	"vocbase/ids"
)

// writeLegacyMarker appends one legacy marker (header + body, padded to a
// 4-byte boundary) to f, mirroring the layout readLegacyHeader expects.
func writeLegacyMarker(t *testing.T, f *os.File, typ LegacyType, tick uint64, body []byte) {
	t.Helper()
	size := legacyHeaderSize + len(body)
	hdr := make([]byte, legacyHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(size))
	binary.LittleEndian.PutUint32(hdr[4:8], 0) // crc unchecked by this reader
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(typ))
	binary.LittleEndian.PutUint64(hdr[12:20], tick)

	if _, err := f.Write(hdr); err != nil {
		t.Fatalf("write legacy header: %v", err)
	}
	padded := make([]byte, align4(uint32(len(body))))
	copy(padded, body)
	if _, err := f.Write(padded); err != nil {
		t.Fatalf("write legacy body: %v", err)
	}
}

func v11Body(did, shapeID uint64, shaped []byte) []byte {
	b := make([]byte, v11BodySize+len(shaped))
	binary.LittleEndian.PutUint64(b[0:8], did)
	binary.LittleEndian.PutUint64(b[8:16], shapeID)
	copy(b[v11BodySize:], shaped)
	return b
}

func v12Body(tid, did, shapeID uint64, shaped []byte) []byte {
	b := make([]byte, v12BodySize+len(shaped))
	binary.LittleEndian.PutUint64(b[0:8], tid)
	binary.LittleEndian.PutUint64(b[8:16], did)
	binary.LittleEndian.PutUint64(b[16:24], shapeID)
	copy(b[v12BodySize:], shaped)
	return b
}

func TestDecodeV11(t *testing.T) {
	body := v11Body(42, 7, []byte("shapeddata"))
	m, err := DecodeV11(100, body)
	if err != nil {
		t.Fatalf("DecodeV11: %v", err)
	}
	if m.Did != 42 || m.ShapeID != 7 || m.Tick != 100 {
		t.Fatalf("decoded = %+v", m)
	}
	if !bytes.Equal(m.Shaped, []byte("shapeddata")) {
		t.Fatalf("shaped = %q", m.Shaped)
	}
}

func TestDecodeV11TooShort(t *testing.T) {
	if _, err := DecodeV11(1, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on short body")
	}
}

func TestConvertV11AdvancesGenerator(t *testing.T) {
	gen := ids.NewGenerator(0)
	m, err := DecodeV11(500, v11Body(9, 3, []byte("xyz")))
	if err != nil {
		t.Fatalf("DecodeV11: %v", err)
	}
	doc := ConvertV11(m, gen)
	if doc.Key != "9" {
		t.Fatalf("Key = %q, want \"9\"", doc.Key)
	}
	if doc.ShapeID != 3 {
		t.Fatalf("ShapeID = %d, want 3", doc.ShapeID)
	}
	if gen.Value() < 500 {
		t.Fatalf("generator not advanced: %d", gen.Value())
	}
}

func TestConvertV12PreservesTransactionID(t *testing.T) {
	gen := ids.NewGenerator(0)
	m, err := DecodeV12(500, v12Body(999, 9, 3, []byte("xyz")))
	if err != nil {
		t.Fatalf("DecodeV12: %v", err)
	}
	doc := ConvertV12(m, gen)
	if doc.TransactionID != 999 {
		t.Fatalf("TransactionID = %d, want 999", doc.TransactionID)
	}
	if doc.RevisionID != 500 {
		t.Fatalf("RevisionID = %d, want 500", doc.RevisionID)
	}
}

func TestMigrateEndToEnd(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "legacy.db")
	dstPath := filepath.Join(dir, "migrated.db")

	src, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("create legacy file: %v", err)
	}
	writeLegacyMarker(t, src, LegacyTypeDocumentV11, 10, v11Body(1, 0, []byte("alice")))
	writeLegacyMarker(t, src, LegacyTypeDocumentV12, 20, v12Body(20, 2, 0, []byte("bob")))
	if err := src.Close(); err != nil {
		t.Fatalf("close legacy file: %v", err)
	}

	gen := ids.NewGenerator(0)
	res, err := Migrate(srcPath, dstPath, 1024*1024, gen)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if res.Converted != 2 {
		t.Fatalf("Converted = %d, want 2", res.Converted)
	}
	if res.MaxTick != 20 {
		t.Fatalf("MaxTick = %d, want 20", res.MaxTick)
	}
	if gen.Value() < 20 {
		t.Fatalf("generator not advanced past legacy ticks: %d", gen.Value())
	}

	df, err := datafile.Open(dstPath)
	if err != nil {
		t.Fatalf("open migrated datafile: %v", err)
	}
	defer df.Close()

	var keys []string
	err = df.Iterate(func(h datafile.Header, body []byte) error {
		if h.Type != datafile.TypeDocument {
			return nil
		}
		doc := datafile.DecodeDocumentBody(body)
		keys = append(keys, doc.Key)
		return nil
	})
	if err != nil {
		t.Fatalf("iterate migrated datafile: %v", err)
	}
	if len(keys) != 2 || keys[0] != "1" || keys[1] != "2" {
		t.Fatalf("keys = %v, want [1 2]", keys)
	}
}

func TestMigrateSkipsUnknownMarkerTypes(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "legacy.db")
	dstPath := filepath.Join(dir, "migrated.db")

	src, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("create legacy file: %v", err)
	}
	writeLegacyMarker(t, src, LegacyType(9999), 5, []byte("irrelevant"))
	writeLegacyMarker(t, src, LegacyTypeDocumentV11, 10, v11Body(1, 0, []byte("alice")))
	if err := src.Close(); err != nil {
		t.Fatalf("close legacy file: %v", err)
	}

	res, err := Migrate(srcPath, dstPath, 1024*1024, ids.NewGenerator(0))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if res.Converted != 1 || res.Skipped != 1 {
		t.Fatalf("res = %+v, want Converted=1 Skipped=1", res)
	}
}
