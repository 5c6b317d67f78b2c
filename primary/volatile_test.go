package primary

import (
	"os"
	"path/filepath"
	"testing"
)

// TestVolatileCollectionWritesNoDataFiles checks §6.3's is_volatile
// contract: a volatile collection's journals and sealed datafiles are
// anonymous mappings only, so writes never produce a journal-*.db or
// datafile-*.db on disk, even across rotation.
func TestVolatileCollectionWritesNoDataFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(16 * 1024)
	c, err := Create(dir, Parameter{CID: 1, Name: "volatile-test", IsVolatile: true}, cfg)
	if err != nil {
		t.Fatalf("Create collection: %v", err)
	}
	defer c.Close()

	for i := 0; i < 100; i++ {
		key := "doc" + itoa(i)
		if _, err := c.Create(key, map[string]interface{}{"i": float64(i), "pad": "xxxxxxxxxxxxxxxxxxxxxxxxxxxx"}, OpContext{}); err != nil {
			t.Fatalf("Create %s: %v", key, err)
		}
	}

	f := c.Figures()
	if f.AliveCount != 100 {
		t.Fatalf("AliveCount = %d, want 100", f.AliveCount)
	}
	if f.Datafiles < 1 {
		t.Fatal("expected the journal to have rotated into a sealed, anonymous datafile at least once")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".db" {
			t.Fatalf("volatile collection must not persist any .db file, found %q", name)
		}
	}

	if got, ok := c.Read("doc0"); !ok || got.Key != "doc0" {
		t.Fatal("doc0 should still be readable from the in-memory index")
	}
}
