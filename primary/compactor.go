package primary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"vocbase/datafile"
	"vocbase/ids"
	"vocbase/logger"
)

// CompactionCandidates returns the fids of sealed datafiles whose dead-byte
// ratio is at least threshold, oldest (lowest fid) first — the order
// Compact should process them in, matching §5's fid-ascending iteration
// convention for everything else in this package.
func (c *Collection) CompactionCandidates(threshold float64) []ids.Tick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ids.Tick
	for _, df := range c.datafiles {
		s, ok := c.dfStats[df.FID()]
		if !ok {
			continue
		}
		if s.DeadRatio() >= threshold {
			out = append(out, df.FID())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Compact rewrites the sealed datafile identified by fid into a fresh
// compactor-<fid>.db, keeping only markers that are still each key's
// current revision and dropping everything else — dead updates and
// tombstoned deletions — per §2's "a compactor rolls full journals into
// sealed, read-only datafiles and may rewrite them to drop tombstoned
// revisions" and the on-disk layout in §6.1. The rewritten file gets a new
// fid; it is sealed, renamed to datafile-<new fid>.db, and replaces the
// original in c.datafiles, which is then re-sorted by fid. The original
// is removed from disk once the barrier count
// has dropped to zero, so no reader holding one of its DataPtrs is caught
// mid-read.
func (c *Collection) Compact(fid ids.Tick) error {
	c.mu.RLock()
	var old *datafile.Datafile
	idx := -1
	for i, df := range c.datafiles {
		if df.FID() == fid {
			old = df
			idx = i
			break
		}
	}
	dir := c.dir
	c.mu.RUnlock()

	if old == nil {
		return fmt.Errorf("%w: compact: no sealed datafile with fid %d", ErrIllegalState, fid)
	}

	newFid := c.ig.NewTick()
	cpath := ""
	if !c.param.IsVolatile {
		cpath = compactorPath(dir, newFid)
	}
	nf, err := datafile.Create(cpath, c.param.MaxSize, newFid)
	if err != nil {
		return fmt.Errorf("compact: create compactor file: %w", err)
	}

	type keptMarker struct {
		key    string
		offset int64
	}
	var kept []keptMarker

	iterErr := old.Iterate(func(h datafile.Header, body []byte) error {
		if c.stopping.Load() {
			return ErrShuttingDown
		}
		if h.Type != datafile.TypeDocument && h.Type != datafile.TypeEdge {
			return nil
		}

		var key string
		if h.Type == datafile.TypeEdge {
			key = datafile.DecodeEdgeBody(body).Key
		} else {
			key = datafile.DecodeDocumentBody(body).Key
		}

		c.mu.RLock()
		mp, ok := c.index[key]
		stillCurrent := ok && mp.Live() && mp.DatafileID == fid && mp.RevisionCurrent == h.Tick
		c.mu.RUnlock()
		if !stillCurrent {
			return nil // superseded by a later update, or since tombstoned
		}

		offset, rerr := nf.Reserve(len(body))
		if rerr != nil {
			return fmt.Errorf("compact: reserve in compactor file: %w", rerr)
		}
		if werr := nf.Write(offset, h.Type, h.Tick, body, false); werr != nil {
			return fmt.Errorf("compact: write to compactor file: %w", werr)
		}
		kept = append(kept, keptMarker{key: key, offset: offset})
		return nil
	})
	if iterErr != nil {
		nf.Close()
		if cpath != "" {
			os.Remove(cpath)
		}
		return iterErr
	}

	if err := nf.Seal(); err != nil {
		nf.Close()
		if cpath != "" {
			os.Remove(cpath)
		}
		return fmt.Errorf("compact: seal compactor file: %w", err)
	}

	if !c.param.IsVolatile {
		if err := nf.Rename(c.datafilePath(newFid)); err != nil {
			return fmt.Errorf("compact: rename compactor file: %w", err)
		}
	}

	c.mu.Lock()
	var aliveBytes int64
	for _, k := range kept {
		mp, ok := c.index[k.key]
		if !ok {
			continue
		}
		body, rerr := nf.ReadMarkerBody(k.offset)
		if rerr != nil {
			c.mu.Unlock()
			return fmt.Errorf("compact: read rewritten marker: %w", rerr)
		}
		mp.DataPtr = body
		mp.DatafileID = newFid
		aliveBytes += int64(len(body))
	}
	if idx >= 0 && idx < len(c.datafiles) && c.datafiles[idx].FID() == fid {
		c.datafiles[idx] = nf
		sort.Slice(c.datafiles, func(i, j int) bool { return c.datafiles[i].FID() < c.datafiles[j].FID() })
	}
	delete(c.dfStats, fid)
	c.dfStats[newFid] = &DatafileStats{AliveCount: int64(len(kept)), AliveBytes: aliveBytes}
	c.mu.Unlock()

	// Every reader that took a DataPtr into old before the swap above has
	// released its barrier hold by the time WaitForZero returns, so the
	// original file can be safely unmapped and removed (§3.6).
	c.barrier.WaitForZero()
	if err := old.Close(); err != nil {
		logger.Warn("primary: compact: closing superseded datafile fid=%d: %v", fid, err)
	}
	if old.Path() != "" {
		if err := os.Remove(old.Path()); err != nil && !os.IsNotExist(err) {
			logger.Warn("primary: compact: removing superseded datafile fid=%d: %v", fid, err)
		}
	}

	logger.Info("primary: compacted datafile fid=%d into fid=%d, kept=%d markers", fid, newFid, len(kept))
	return nil
}

func compactorPath(dir string, fid ids.Tick) string {
	return filepath.Join(dir, fmt.Sprintf("compactor-%d.db", uint64(fid)))
}
