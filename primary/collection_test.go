package primary

import (
	"errors"
	"testing"

	"vocbase/config"
	"vocbase/ids"
)

func testConfig(maxSize int64) *config.Config {
	return &config.Config{
		PageSize:              4096,
		DefaultMaxSize:        maxSize,
		MaxMarkerSize:         256 * 1024 * 1024,
		ForceOpenOnCorruption: true,
	}
}

func mustCreate(t *testing.T, dir string, maxSize int64) *Collection {
	t.Helper()
	cfg := testConfig(maxSize)
	c, err := Create(dir, Parameter{CID: 1, Name: "test"}, cfg)
	if err != nil {
		t.Fatalf("Create collection: %v", err)
	}
	return c
}

func TestCreateReadReopen(t *testing.T) {
	dir := t.TempDir()
	c := mustCreate(t, dir, 1024*1024)

	mp, err := c.Create("doc1", map[string]interface{}{"name": "alice", "age": 30.0}, OpContext{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if mp.Key != "doc1" {
		t.Fatalf("Key = %q, want doc1", mp.Key)
	}

	got, ok := c.Read("doc1")
	if !ok {
		t.Fatal("Read: not found")
	}
	if got.RevisionCurrent != mp.RevisionCurrent {
		t.Fatalf("revision mismatch: %d != %d", got.RevisionCurrent, mp.RevisionCurrent)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir, testConfig(1024*1024))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	again, ok := reopened.Read("doc1")
	if !ok {
		t.Fatal("Read after reopen: not found")
	}
	if again.RevisionCurrent != mp.RevisionCurrent {
		t.Fatalf("revision after reopen = %d, want %d", again.RevisionCurrent, mp.RevisionCurrent)
	}
}

func TestUpdatePolicyError(t *testing.T) {
	dir := t.TempDir()
	c := mustCreate(t, dir, 1024*1024)
	defer c.Close()

	mp, err := c.Create("doc1", map[string]interface{}{"v": 1.0}, OpContext{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var previous ids.Tick
	if _, err := c.Update("doc1", map[string]interface{}{"v": 2.0}, OpContext{
		Policy:              PolicyError,
		ExpectedRevision:    mp.RevisionCurrent + 1,
		OutPreviousRevision: &previous,
	}); !errors.Is(err, ErrConflict) {
		t.Fatalf("Update with wrong expected revision: want ErrConflict, got %v", err)
	}
	if previous != mp.RevisionCurrent {
		t.Fatalf("OutPreviousRevision = %d, want the stored revision %d", previous, mp.RevisionCurrent)
	}

	updated, err := c.Update("doc1", map[string]interface{}{"v": 2.0}, OpContext{
		Policy:           PolicyError,
		ExpectedRevision: mp.RevisionCurrent,
	})
	if err != nil {
		t.Fatalf("Update with correct expected revision: %v", err)
	}
	if updated.RevisionCurrent == mp.RevisionCurrent {
		t.Fatal("revision did not advance on update")
	}
}

func TestUpdatePolicyConflictNotImplemented(t *testing.T) {
	dir := t.TempDir()
	c := mustCreate(t, dir, 1024*1024)
	defer c.Close()

	if _, err := c.Create("doc1", map[string]interface{}{"v": 1.0}, OpContext{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Update("doc1", map[string]interface{}{"v": 2.0}, OpContext{Policy: PolicyConflict}); err != ErrNotImplemented {
		t.Fatalf("Update with PolicyConflict: got %v, want ErrNotImplemented", err)
	}
}

func TestUniqueViolation(t *testing.T) {
	dir := t.TempDir()
	c := mustCreate(t, dir, 1024*1024)
	defer c.Close()

	if _, err := c.Create("doc1", map[string]interface{}{"v": 1.0}, OpContext{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := c.Create("doc1", map[string]interface{}{"v": 2.0}, OpContext{}); err != ErrUniqueViolation {
		t.Fatalf("duplicate Create: got %v, want ErrUniqueViolation", err)
	}
}

func TestDeleteAndMissing(t *testing.T) {
	dir := t.TempDir()
	c := mustCreate(t, dir, 1024*1024)
	defer c.Close()

	if _, err := c.Create("doc1", map[string]interface{}{"v": 1.0}, OpContext{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Delete("doc1", OpContext{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Read("doc1"); ok {
		t.Fatal("Read after delete: found, want not found")
	}
	if err := c.Delete("doc1", OpContext{}); err != ErrMissingDocument {
		t.Fatalf("double Delete: got %v, want ErrMissingDocument", err)
	}
}

// TestJournalRotation writes enough documents into a deliberately small
// journal that it must seal, rotate and retry at least once, producing one
// sealed datafile and leaving a fresh journal open.
func TestJournalRotation(t *testing.T) {
	dir := t.TempDir()
	const journalSize = 16 * 1024
	c := mustCreate(t, dir, journalSize)
	defer c.Close()

	for i := 0; i < 200; i++ {
		key := "doc" + itoa(i)
		if _, err := c.Create(key, map[string]interface{}{"i": float64(i), "pad": "xxxxxxxxxxxxxxxxxxxxxxxxxxxx"}, OpContext{}); err != nil {
			t.Fatalf("Create %s: %v", key, err)
		}
	}

	f := c.Figures()
	if f.Datafiles < 1 {
		t.Fatalf("Figures.Datafiles = %d, want at least 1 (journal should have rotated)", f.Datafiles)
	}
	if f.AliveCount != 200 {
		t.Fatalf("Figures.AliveCount = %d, want 200", f.AliveCount)
	}
}

func TestCapConstraintEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	c := mustCreate(t, dir, 1024*1024)
	defer c.Close()

	c.SetCapConstraint(CapConstraint{MaxDocuments: 3})

	for i := 0; i < 5; i++ {
		key := "doc" + itoa(i)
		if _, err := c.Create(key, map[string]interface{}{"i": float64(i)}, OpContext{}); err != nil {
			t.Fatalf("Create %s: %v", key, err)
		}
	}

	f := c.Figures()
	if f.AliveCount != 3 {
		t.Fatalf("AliveCount = %d, want 3", f.AliveCount)
	}
	if _, ok := c.Read("doc0"); ok {
		t.Fatal("doc0 should have been evicted as the oldest")
	}
	if _, ok := c.Read("doc4"); !ok {
		t.Fatal("doc4 should still be present")
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
