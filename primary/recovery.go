package primary

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vocbase/datafile"
)

// recover scans c.dir for datafile-*.db (fid-ascending) and then
// journal-*.db, opening each and replaying its markers to rebuild the
// primary index and the sequence generator's high-water mark, per §6.4.
func (c *Collection) recover() error {
	dfPaths, err := listByFID(c.dir, "datafile-")
	if err != nil {
		return err
	}
	for _, path := range dfPaths {
		df, err := c.openRecoveringDatafile(path)
		if err != nil {
			return fmt.Errorf("recover datafile %q: %w", path, err)
		}
		if err := c.replay(df); err != nil {
			return fmt.Errorf("replay datafile %q: %w", path, err)
		}
		c.datafiles = append(c.datafiles, df)
	}

	journalPaths, err := listByFID(c.dir, "journal-")
	if err != nil {
		return err
	}
	if len(journalPaths) > 1 {
		return fmt.Errorf("%w: %d open journals found, expected at most one", ErrIllegalState, len(journalPaths))
	}
	if len(journalPaths) == 0 {
		return c.openNewJournalLocked()
	}

	path := journalPaths[0]
	jf, err := datafile.Open(path)
	if err != nil {
		if !errors.Is(err, datafile.ErrCorruptedDatafile) || !c.cfg.ForceOpenOnCorruption {
			return fmt.Errorf("open journal %q: %w", path, err)
		}
		jf, err = datafile.ForceOpen(path)
		if err != nil {
			return fmt.Errorf("force-open journal %q: %w", path, err)
		}
	}
	if err := c.replay(jf); err != nil {
		return fmt.Errorf("replay journal %q: %w", path, err)
	}
	c.journal = jf
	return nil
}

// openRecoveringDatafile opens a sealed datafile that may have been torn by
// a crash mid-write. A structurally valid file opens normally; a corrupt
// one is force-opened to find its known-good prefix and then
// truncated-and-sealed onto that prefix, matching §6.4's recovery posture
// for already-sealed datafiles (a live journal is force-opened in place
// instead — see recover).
func (c *Collection) openRecoveringDatafile(path string) (*datafile.Datafile, error) {
	df, err := datafile.Open(path)
	if err == nil {
		return df, nil
	}
	if !errors.Is(err, datafile.ErrCorruptedDatafile) || !c.cfg.ForceOpenOnCorruption {
		return nil, err
	}

	forced, ferr := datafile.ForceOpen(path)
	if ferr != nil {
		return nil, ferr
	}
	goodSize := forced.CurrentSize()
	if cerr := forced.Close(); cerr != nil {
		return nil, cerr
	}
	return datafile.TruncateAndSeal(path, goodSize, c.cfg.PageSize)
}

// replay walks every marker in df and applies it to the in-memory primary
// index, advancing c.ig past every tick it observes.
func (c *Collection) replay(df *datafile.Datafile) error {
	return df.Iterate(func(h datafile.Header, body []byte) error {
		c.ig.Observe(h.Tick)
		switch h.Type {
		case datafile.TypeDocument, datafile.TypeEdge:
			return c.replayUpsert(df, h, body)
		case datafile.TypeDeletion:
			return c.replayDeletion(df, h, body)
		default:
			return nil
		}
	})
}

func (c *Collection) replayUpsert(df *datafile.Datafile, h datafile.Header, body []byte) error {
	var key string
	if h.Type == datafile.TypeEdge {
		key = datafile.DecodeEdgeBody(body).Key
	} else {
		key = datafile.DecodeDocumentBody(body).Key
	}

	if mp, ok := c.index[key]; ok {
		c.aliveBytes += int64(len(body)) - int64(len(mp.DataPtr))
		c.recordUpdateLocked(mp.DatafileID, int64(len(mp.DataPtr)), df.FID(), int64(len(body)))
		mp.RevisionCurrent = h.Tick
		mp.MarkerType = h.Type
		mp.DataPtr = body
		mp.DatafileID = df.FID()
		return nil
	}

	mp := &Mptr{
		Key:               key,
		RevisionCurrent:   h.Tick,
		RevisionValidFrom: h.Tick,
		MarkerType:        h.Type,
		DataPtr:           body,
		DatafileID:        df.FID(),
	}
	c.insertIndexLocked(mp)
	c.aliveBytes += int64(len(body))
	c.recordInsertLocked(df.FID(), int64(len(body)))
	return nil
}

func (c *Collection) replayDeletion(df *datafile.Datafile, h datafile.Header, body []byte) error {
	key := datafile.DecodeDeletionBody(body).Key
	if mp, ok := c.index[key]; ok {
		c.aliveBytes -= int64(len(mp.DataPtr))
		c.recordDeleteLocked(mp.DatafileID, int64(len(mp.DataPtr)), df.FID())
		c.removeIndexLocked(key)
	}
	return nil
}

// listByFID returns the collection-directory files matching
// "<prefix><fid>.db", sorted by fid ascending.
func listByFID(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read collection directory: %w", err)
	}

	type fidPath struct {
		fid  uint64
		path string
	}
	var found []fidPath
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		fidStr := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".db")
		fid, err := strconv.ParseUint(fidStr, 10, 64)
		if err != nil {
			continue
		}
		found = append(found, fidPath{fid: fid, path: filepath.Join(dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].fid < found[j].fid })

	paths := make([]string, len(found))
	for i, fp := range found {
		paths[i] = fp.path
	}
	return paths, nil
}
