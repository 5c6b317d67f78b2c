package datafile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"vocbase/ids"
)

func mustCreate(t *testing.T, maxSize int64) (*Datafile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datafile-1.db")
	df, err := Create(path, maxSize, ids.Tick(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return df, path
}

func writeDoc(t *testing.T, df *Datafile, tick ids.Tick, body []byte) int64 {
	t.Helper()
	offset, err := df.Reserve(len(body))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := df.Write(offset, TypeDocument, tick, body, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return offset
}

func TestWriteReadMarkerRoundTrip(t *testing.T) {
	df, _ := mustCreate(t, 1024*1024)
	defer df.Close()

	body := []byte("hello, shaped document")
	offset := writeDoc(t, df, ids.Tick(2), body)

	got, err := df.ReadMarkerBody(offset)
	if err != nil {
		t.Fatalf("ReadMarkerBody: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestCRCDetectsCorruption(t *testing.T) {
	df, _ := mustCreate(t, 1024*1024)
	defer df.Close()

	offset := writeDoc(t, df, ids.Tick(2), []byte("payload"))

	data := df.region.bytes()
	raw := data[offset:]
	h := decodeHeader(raw[:headerSize])
	if !checkMarkerCRC(raw[:h.Size]) {
		t.Fatal("expected CRC to validate the freshly written marker")
	}

	// Corrupt one payload byte and confirm the CRC now fails.
	raw[headerSize] ^= 0xFF
	if checkMarkerCRC(raw[:h.Size]) {
		t.Fatal("expected CRC check to fail after corrupting the payload")
	}
}

func TestSealThenReopenIsInvariant(t *testing.T) {
	df, path := mustCreate(t, 1024*1024)

	writeDoc(t, df, ids.Tick(2), []byte("doc-a"))
	writeDoc(t, df, ids.Tick(3), []byte("doc-b"))

	if err := df.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !df.Sealed() {
		t.Fatal("expected Sealed() == true")
	}
	sizeAfterSeal := df.CurrentSize()
	if err := df.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open sealed datafile: %v", err)
	}
	defer reopened.Close()

	if !reopened.Sealed() {
		t.Fatal("expected reopened datafile to be sealed")
	}
	if reopened.CurrentSize() != sizeAfterSeal {
		t.Fatalf("CurrentSize after reopen = %d, want %d", reopened.CurrentSize(), sizeAfterSeal)
	}

	var bodies [][]byte
	err = reopened.Iterate(func(h Header, body []byte) error {
		if h.Type == TypeDocument {
			cp := make([]byte, len(body))
			copy(cp, body)
			bodies = append(bodies, cp)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(bodies) != 2 || string(bodies[0]) != "doc-a" || string(bodies[1]) != "doc-b" {
		t.Fatalf("bodies = %q", bodies)
	}
}

func TestSealedDatafileRejectsWrites(t *testing.T) {
	df, _ := mustCreate(t, 1024*1024)
	defer df.Close()

	if err := df.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := df.Reserve(16); err != ErrReadOnly {
		t.Fatalf("Reserve after seal = %v, want ErrReadOnly", err)
	}
}

func TestReserveFullJournalTriggersRotation(t *testing.T) {
	// A max_size that fits the header plus exactly one small marker (and
	// its footer), but not a second one, exercising §4.1's
	// ErrDatafileFull and the rotate-and-retry contract it implies.
	df, _ := mustCreate(t, 128)
	defer df.Close()

	if _, err := df.Reserve(16); err != nil {
		t.Fatalf("first small reserve should fit: %v", err)
	}
	if _, err := df.Reserve(16); err != ErrDatafileFull {
		t.Fatalf("second reserve = %v, want ErrDatafileFull", err)
	}
}

func TestReserveDocumentTooLarge(t *testing.T) {
	df, _ := mustCreate(t, 4096)
	defer df.Close()

	if _, err := df.Reserve(1 << 20); err != ErrDocumentTooLarge {
		t.Fatalf("Reserve(too large) = %v, want ErrDocumentTooLarge", err)
	}
}

func TestAnonymousDatafileSkipsCRC(t *testing.T) {
	df, err := Create("", 1024*1024, ids.Tick(1))
	if err != nil {
		t.Fatalf("Create anonymous: %v", err)
	}
	defer df.Close()

	offset := writeDoc(t, df, ids.Tick(2), []byte("volatile"))
	data := df.region.bytes()
	h := decodeHeader(data[offset:])
	if h.CRC != 0 {
		t.Fatalf("expected CRC==0 for an anonymous datafile marker, got %d", h.CRC)
	}
	if df.Path() != "" {
		t.Fatalf("Path() = %q, want empty for an anonymous datafile", df.Path())
	}
}

func TestTornWriteRecovery(t *testing.T) {
	// §8.3 scenario 4: a journal with 5 valid markers followed by garbage
	// recovers to a sealed datafile of exactly those 5 markers, with the
	// damaged original preserved alongside under a *.corrupted name.
	df, path := mustCreate(t, 1<<16)
	for i := 0; i < 5; i++ {
		writeDoc(t, df, ids.Tick(int64(i)+2), []byte("doc"))
	}
	goodSize := df.CurrentSize()
	if err := df.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("reopen raw file: %v", err)
	}
	garbage := bytes.Repeat([]byte{0xAB}, 128)
	if _, err := f.WriteAt(garbage, goodSize); err != nil {
		t.Fatalf("write garbage tail: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close raw file: %v", err)
	}

	forced, err := ForceOpen(path)
	if err != nil {
		t.Fatalf("ForceOpen: %v", err)
	}
	if forced.CurrentSize() != goodSize {
		t.Fatalf("ForceOpen recovered size = %d, want %d", forced.CurrentSize(), goodSize)
	}
	if err := forced.Close(); err != nil {
		t.Fatalf("Close forced: %v", err)
	}

	sealed, err := TruncateAndSeal(path, goodSize, 4096)
	if err != nil {
		t.Fatalf("TruncateAndSeal: %v", err)
	}
	defer sealed.Close()

	if !sealed.Sealed() {
		t.Fatal("expected recovered datafile to be sealed")
	}
	var aliveCount int
	err = sealed.Iterate(func(h Header, body []byte) error {
		if h.Type == TypeDocument {
			aliveCount++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate recovered datafile: %v", err)
	}
	if aliveCount != 5 {
		t.Fatalf("aliveCount = %d, want 5", aliveCount)
	}

	if _, err := os.Stat(path + ".corrupted"); err != nil {
		t.Fatalf("expected damaged original renamed to *.corrupted: %v", err)
	}
}

func TestRenameRequiresSealedPhysicalDatafile(t *testing.T) {
	df, _ := mustCreate(t, 1024*1024)
	defer df.Close()

	newPath := filepath.Join(t.TempDir(), "renamed.db")
	if err := df.Rename(newPath); err == nil {
		t.Fatal("expected Rename to fail on an open journal")
	}

	if err := df.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := df.Rename(newPath); err != nil {
		t.Fatalf("Rename after seal: %v", err)
	}
	if df.Path() != newPath {
		t.Fatalf("Path() = %q, want %q", df.Path(), newPath)
	}
}
