// Package primary implements the primary document collection: a
// hash-indexed, journal-backed store of shaped documents built on top of
// the datafile and shaper packages.
package primary

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"vocbase/config"
	"vocbase/datafile"
	"vocbase/ids"
	"vocbase/logger"
	"vocbase/shaper"
)

// UpdatePolicy selects how Update/Delete react to a revision mismatch,
// per §4.3's four update policies.
type UpdatePolicy int

const (
	// PolicyError rejects the write with ErrConflict unless the caller's
	// OpContext.ExpectedRevision matches the document's current revision.
	// A zero ExpectedRevision skips the check.
	PolicyError UpdatePolicy = iota
	// PolicyLastWriteWins applies the write regardless of the document's
	// current revision.
	PolicyLastWriteWins
	// PolicyConflict would merge concurrent writes; no merge strategy is
	// implemented, so this policy always fails with ErrNotImplemented.
	PolicyConflict
	// PolicyIllegal always fails with ErrIllegalState; it exists so a
	// caller can wire an explicitly-disabled update path without a
	// separate boolean.
	PolicyIllegal
)

// OpContext carries the per-call knobs a write operation needs beyond the
// document itself.
type OpContext struct {
	Policy           UpdatePolicy
	ExpectedRevision ids.Tick
	ForceSync        bool

	// OutPreviousRevision, if non-nil, receives the document's current
	// revision as it stood before this call — whether the call goes on
	// to succeed or is rejected with ErrConflict. This is the out-
	// parameter a PolicyError caller uses to learn the stored revision
	// a rejected write collided with, per §4.3/§8.3.
	OutPreviousRevision *ids.Tick
}

// Figures is a point-in-time snapshot of a collection's size, per §4.3's
// figures operation.
type Figures struct {
	AliveCount  int64
	AliveBytes  int64
	DeadCount   int64
	Datafiles   int
	JournalSize int64
}

// Collection is a primary hash-indexed document store: one journal plus
// zero or more sealed datafiles, a key→Mptr hash index, and the secondary
// indexes kept in sync with it (§4.3).
type Collection struct {
	mu sync.RWMutex

	cid   ids.Tick
	dir   string
	param Parameter
	cfg   *config.Config
	ig    *ids.Generator
	shp   *shaper.Shaper

	journal   *datafile.Datafile
	datafiles []*datafile.Datafile // sealed, fid-ascending

	index      map[string]*Mptr
	order      *list.List // key, FIFO by creation, for cap-constraint cascade
	orderElems map[string]*list.Element

	aliveBytes    int64
	deadCount     int64
	dfStats       map[ids.Tick]*DatafileStats
	capConstraint CapConstraint

	secondary []SecondaryIndex

	barrier  *Barrier
	stopping atomic.Bool
}

// Create makes a brand-new collection directory: saves parameter.json,
// opens the shaper's dedicated datafile under SHAPES/, and opens the
// first journal.
func Create(dir string, param Parameter, cfg *config.Config) (*Collection, error) {
	param.applyDefaults(cfg)
	if err := param.Save(dir); err != nil {
		return nil, err
	}

	ig := ids.NewGenerator(0)

	// A volatile collection (§6.3's is_volatile) keeps its shape dictionary
	// anonymous too — an empty SHAPES/ directory on disk would be a
	// half-persisted artifact of a collection that otherwise leaves no
	// trace on restart.
	shapesPath := ""
	if !param.IsVolatile {
		shapesDir := filepath.Join(dir, "SHAPES")
		if err := os.MkdirAll(shapesDir, 0755); err != nil {
			return nil, fmt.Errorf("create shapes directory: %w", err)
		}
		shapesPath = filepath.Join(shapesDir, "shapes.db")
	}
	sdf, err := datafile.Create(shapesPath, cfg.DefaultMaxSize, ig.NewTick())
	if err != nil {
		return nil, fmt.Errorf("create shape datafile: %w", err)
	}
	shp, err := shaper.Open(sdf, ig)
	if err != nil {
		return nil, fmt.Errorf("open shaper: %w", err)
	}

	c := &Collection{
		cid:        param.CID,
		dir:        dir,
		param:      param,
		cfg:        cfg,
		ig:         ig,
		shp:        shp,
		index:      make(map[string]*Mptr),
		order:      list.New(),
		orderElems: make(map[string]*list.Element),
		dfStats:    make(map[ids.Tick]*DatafileStats),
		barrier:    NewBarrier(),
	}
	if err := c.openNewJournalLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open reopens an existing collection directory, replaying every sealed
// datafile (fid-ascending) and then the journal to rebuild the primary
// index, per §6.4's crash recovery ordering.
func Open(dir string, cfg *config.Config) (*Collection, error) {
	param, err := LoadParameter(dir, cfg)
	if err != nil {
		return nil, err
	}

	trace := logger.StartTrace("collection.Open", dir)
	defer trace.EndTrace()

	ig := ids.NewGenerator(0)
	trace.StartSpan("open_shaper")
	var sdf *datafile.Datafile
	if param.IsVolatile {
		// A volatile collection never persisted a shape dictionary (or
		// anything else) to begin with, so "reopening" one starts it fresh
		// rather than reading SHAPES/shapes.db, which never existed.
		sdf, err = datafile.Create("", cfg.DefaultMaxSize, ig.NewTick())
	} else {
		sdf, err = datafile.Open(filepath.Join(dir, "SHAPES", "shapes.db"))
	}
	if err != nil {
		return nil, fmt.Errorf("open shape datafile: %w", err)
	}
	shp, err := shaper.Open(sdf, ig)
	if err != nil {
		return nil, fmt.Errorf("open shaper: %w", err)
	}
	trace.EndSpan("open_shaper")

	c := &Collection{
		cid:        param.CID,
		dir:        dir,
		param:      param,
		cfg:        cfg,
		ig:         ig,
		shp:        shp,
		index:      make(map[string]*Mptr),
		order:      list.New(),
		orderElems: make(map[string]*list.Element),
		dfStats:    make(map[ids.Tick]*DatafileStats),
		barrier:    NewBarrier(),
	}

	trace.StartSpan("recover")
	err = c.recover()
	trace.EndSpan("recover")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Shaper exposes the collection's shape dictionary for callers (secondary
// index builders, readers that need to unshape a document) that need
// aid/sid access without reaching into internals.
func (c *Collection) Shaper() *shaper.Shaper { return c.shp }

// Barrier exposes the collection's reclaim guard directly for callers that
// need to hold it across several operations.
func (c *Collection) Barrier() *Barrier { return c.barrier }

// AcquireBarrier increments the reclaim guard and returns a function that
// releases it. A caller that retains an Mptr's DataPtr across a
// suspension point — most notably while iterating a Scan result and
// dereferencing the shaped body afterwards — should wrap that span with
// this so Compact cannot unmap the datafile out from under it (§3.6).
func (c *Collection) AcquireBarrier() func() {
	c.barrier.Acquire()
	return c.barrier.Release
}

// AddSecondaryIndex registers idx to be kept in sync with every future
// create/update/delete. It does not backfill idx with documents already
// present; the caller does that once, up front, by iterating Scan.
func (c *Collection) AddSecondaryIndex(idx SecondaryIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secondary = append(c.secondary, idx)
}

// Scan calls visit once per live document, in no particular order. visit
// returning an error stops the scan and the error is returned.
func (c *Collection) Scan(visit func(Mptr) error) error {
	c.mu.RLock()
	snapshot := make([]Mptr, 0, len(c.index))
	for _, mp := range c.index {
		snapshot = append(snapshot, *mp)
	}
	c.mu.RUnlock()

	for _, mp := range snapshot {
		if err := visit(mp); err != nil {
			return err
		}
	}
	return nil
}

// Read returns a point-in-time copy of key's Mptr.
func (c *Collection) Read(key string) (Mptr, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mp, ok := c.index[key]
	if !ok {
		return Mptr{}, false
	}
	return *mp, true
}

// Create inserts a new document under key (or a generated key, if key is
// empty) and returns its Mptr. It fails with ErrUniqueViolation if key is
// already in use.
func (c *Collection) Create(key string, doc interface{}, ctx OpContext) (Mptr, error) {
	if c.stopping.Load() {
		return Mptr{}, ErrShuttingDown
	}
	if key == "" {
		key = ids.GenerateKey()
	} else if err := ids.ValidateKey(key); err != nil {
		return Mptr{}, err
	}

	sid, shaped, err := c.shp.ShapeDocument(doc)
	if err != nil {
		return Mptr{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[key]; exists {
		return Mptr{}, ErrUniqueViolation
	}

	tick := c.ig.NewTick()
	body := (&datafile.DocumentBody{
		RevisionID:    uint64(tick),
		TransactionID: uint64(tick),
		ShapeID:       sid,
		Key:           key,
		Shaped:        shaped,
	}).Encode()

	offset, df, err := c.reserveWithRotationLocked(len(body))
	if err != nil {
		return Mptr{}, err
	}
	if err := df.Write(offset, datafile.TypeDocument, tick, body, ctx.ForceSync || c.param.WaitForSync); err != nil {
		return Mptr{}, translateDatafileErr(err)
	}
	dataPtr, err := df.ReadMarkerBody(offset)
	if err != nil {
		return Mptr{}, translateDatafileErr(err)
	}

	mp := &Mptr{
		Key:               key,
		RevisionCurrent:   tick,
		RevisionValidFrom: tick,
		MarkerType:        datafile.TypeDocument,
		DataPtr:           dataPtr,
		DatafileID:        df.FID(),
	}
	c.insertIndexLocked(mp)
	c.aliveBytes += int64(len(dataPtr))
	c.recordInsertLocked(df.FID(), int64(len(dataPtr)))

	c.notifySecondaryInsert(key, sid, shaped)
	if err := c.enforceCapLocked(); err != nil {
		logger.Warn("primary: cap enforcement failed after create: %v", err)
	}

	return *mp, nil
}

// CreateEdge is Create for an edge collection: the document also records
// the from/to vertex coordinates of a directed edge.
func (c *Collection) CreateEdge(key string, toCID, fromCID ids.Tick, toKey, fromKey string, doc interface{}, ctx OpContext) (Mptr, error) {
	if c.stopping.Load() {
		return Mptr{}, ErrShuttingDown
	}
	if key == "" {
		key = ids.GenerateKey()
	} else if err := ids.ValidateKey(key); err != nil {
		return Mptr{}, err
	}

	sid, shaped, err := c.shp.ShapeDocument(doc)
	if err != nil {
		return Mptr{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[key]; exists {
		return Mptr{}, ErrUniqueViolation
	}

	tick := c.ig.NewTick()
	body := (&datafile.EdgeBody{
		DocumentBody: datafile.DocumentBody{
			RevisionID:    uint64(tick),
			TransactionID: uint64(tick),
			ShapeID:       sid,
			Key:           key,
			Shaped:        shaped,
		},
		ToCID:   uint64(toCID),
		FromCID: uint64(fromCID),
		ToKey:   toKey,
		FromKey: fromKey,
	}).Encode()

	offset, df, err := c.reserveWithRotationLocked(len(body))
	if err != nil {
		return Mptr{}, err
	}
	if err := df.Write(offset, datafile.TypeEdge, tick, body, ctx.ForceSync || c.param.WaitForSync); err != nil {
		return Mptr{}, translateDatafileErr(err)
	}
	dataPtr, err := df.ReadMarkerBody(offset)
	if err != nil {
		return Mptr{}, translateDatafileErr(err)
	}

	mp := &Mptr{
		Key:               key,
		RevisionCurrent:   tick,
		RevisionValidFrom: tick,
		MarkerType:        datafile.TypeEdge,
		DataPtr:           dataPtr,
		DatafileID:        df.FID(),
	}
	c.insertIndexLocked(mp)
	c.aliveBytes += int64(len(dataPtr))
	c.recordInsertLocked(df.FID(), int64(len(dataPtr)))

	c.notifySecondaryInsert(key, sid, shaped)
	if err := c.enforceCapLocked(); err != nil {
		logger.Warn("primary: cap enforcement failed after create: %v", err)
	}

	return *mp, nil
}

// Update replaces key's document body, subject to ctx.Policy.
func (c *Collection) Update(key string, doc interface{}, ctx OpContext) (Mptr, error) {
	if c.stopping.Load() {
		return Mptr{}, ErrShuttingDown
	}

	sid, shaped, err := c.shp.ShapeDocument(doc)
	if err != nil {
		return Mptr{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mp, ok := c.index[key]
	if !ok || !mp.Live() {
		return Mptr{}, ErrMissingDocument
	}
	if ctx.OutPreviousRevision != nil {
		*ctx.OutPreviousRevision = mp.RevisionCurrent
	}
	if err := checkPolicy(ctx, mp.RevisionCurrent); err != nil {
		return Mptr{}, err
	}

	tick := c.ig.NewTick()
	markerType := mp.MarkerType
	body := (&datafile.DocumentBody{
		RevisionID:    uint64(tick),
		TransactionID: uint64(tick),
		ShapeID:       sid,
		Key:           key,
		Shaped:        shaped,
	}).Encode()

	offset, df, err := c.reserveWithRotationLocked(len(body))
	if err != nil {
		return Mptr{}, err
	}
	if err := df.Write(offset, markerType, tick, body, ctx.ForceSync || c.param.WaitForSync); err != nil {
		return Mptr{}, translateDatafileErr(err)
	}
	dataPtr, err := df.ReadMarkerBody(offset)
	if err != nil {
		return Mptr{}, translateDatafileErr(err)
	}

	c.aliveBytes += int64(len(dataPtr)) - int64(len(mp.DataPtr))
	c.recordUpdateLocked(mp.DatafileID, int64(len(mp.DataPtr)), df.FID(), int64(len(dataPtr)))
	mp.RevisionCurrent = tick
	mp.DataPtr = dataPtr
	mp.DatafileID = df.FID()

	c.notifySecondaryRemove(key)
	c.notifySecondaryInsert(key, sid, shaped)
	if err := c.enforceCapLocked(); err != nil {
		logger.Warn("primary: cap enforcement failed after update: %v", err)
	}

	return *mp, nil
}

// Delete writes a tombstone for key, subject to ctx.Policy.
func (c *Collection) Delete(key string, ctx OpContext) error {
	if c.stopping.Load() {
		return ErrShuttingDown
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mp, ok := c.index[key]
	if !ok || !mp.Live() {
		return ErrMissingDocument
	}
	if ctx.OutPreviousRevision != nil {
		*ctx.OutPreviousRevision = mp.RevisionCurrent
	}
	if err := checkPolicy(ctx, mp.RevisionCurrent); err != nil {
		return err
	}

	journalFID, err := c.writeDeletionLocked(key)
	if err != nil {
		return err
	}
	c.aliveBytes -= int64(len(mp.DataPtr))
	c.recordDeleteLocked(mp.DatafileID, int64(len(mp.DataPtr)), journalFID)
	c.notifySecondaryRemove(key)
	c.removeIndexLocked(key)
	return nil
}

// Truncate removes every document in the collection, each as its own
// tombstone marker.
func (c *Collection) Truncate() error {
	if c.stopping.Load() {
		return ErrShuttingDown
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	for _, k := range keys {
		mp := c.index[k]
		journalFID, err := c.writeDeletionLocked(k)
		if err != nil {
			return err
		}
		c.aliveBytes -= int64(len(mp.DataPtr))
		c.recordDeleteLocked(mp.DatafileID, int64(len(mp.DataPtr)), journalFID)
		c.notifySecondaryRemove(k)
		c.removeIndexLocked(k)
	}
	return nil
}

// Figures reports a point-in-time size snapshot.
func (c *Collection) Figures() Figures {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := Figures{
		AliveCount: int64(len(c.index)),
		AliveBytes: c.aliveBytes,
		DeadCount:  c.deadCount,
		Datafiles:  len(c.datafiles),
	}
	if c.journal != nil {
		f.JournalSize = c.journal.CurrentSize()
	}
	return f
}

// Close rejects further writes, waits for every barrier hold to be
// released, and closes the journal and every datafile. The journal is not
// sealed: it stays on disk as a valid, reopenable journal.
func (c *Collection) Close() error {
	c.stopping.Store(true)
	c.barrier.WaitForZero()

	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.journal != nil {
		if err := c.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, df := range c.datafiles {
		if err := df.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func checkPolicy(ctx OpContext, current ids.Tick) error {
	switch ctx.Policy {
	case PolicyError:
		if ctx.ExpectedRevision != 0 && ctx.ExpectedRevision != current {
			return ErrConflict
		}
		return nil
	case PolicyLastWriteWins:
		return nil
	case PolicyConflict:
		return ErrNotImplemented
	case PolicyIllegal:
		return ErrIllegalState
	default:
		return ErrIllegalState
	}
}

func (c *Collection) writeDeletionLocked(key string) (ids.Tick, error) {
	tick := c.ig.NewTick()
	body := (&datafile.DeletionBody{RevisionID: uint64(tick), TransactionID: uint64(tick), Key: key}).Encode()
	offset, df, err := c.reserveWithRotationLocked(len(body))
	if err != nil {
		return 0, err
	}
	if err := df.Write(offset, datafile.TypeDeletion, tick, body, c.param.WaitForSync); err != nil {
		return 0, translateDatafileErr(err)
	}
	return df.FID(), nil
}

func (c *Collection) notifySecondaryInsert(key string, sid uint64, shaped []byte) {
	for _, idx := range c.secondary {
		if err := idx.InsertDocument(key, sid, shaped); err != nil {
			logger.Warn("primary: secondary index insert failed for %q: %v", key, err)
		}
	}
}

func (c *Collection) notifySecondaryRemove(key string) {
	for _, idx := range c.secondary {
		if err := idx.RemoveDocument(key); err != nil {
			logger.Warn("primary: secondary index remove failed for %q: %v", key, err)
		}
	}
}

func (c *Collection) insertIndexLocked(mp *Mptr) {
	c.index[mp.Key] = mp
	c.orderElems[mp.Key] = c.order.PushBack(mp.Key)
}

func (c *Collection) removeIndexLocked(key string) {
	delete(c.index, key)
	if elem, ok := c.orderElems[key]; ok {
		c.order.Remove(elem)
		delete(c.orderElems, key)
	}
	c.deadCount++
}

// reserveWithRotationLocked reserves bodyLen bytes in the current journal,
// rotating to a new journal (sealing the old one into a datafile) on
// ErrDatafileFull and retrying exactly once, per §6.2.
func (c *Collection) reserveWithRotationLocked(bodyLen int) (int64, *datafile.Datafile, error) {
	offset, err := c.journal.Reserve(bodyLen)
	if err == nil {
		return offset, c.journal, nil
	}
	if !errors.Is(err, datafile.ErrDatafileFull) {
		return 0, nil, translateDatafileErr(err)
	}
	if err := c.rotateJournalLocked(); err != nil {
		return 0, nil, err
	}
	offset, err = c.journal.Reserve(bodyLen)
	if err != nil {
		return 0, nil, translateDatafileErr(err)
	}
	return offset, c.journal, nil
}

func (c *Collection) rotateJournalLocked() error {
	old := c.journal
	if err := old.Seal(); err != nil {
		return fmt.Errorf("seal journal: %w", err)
	}
	// A volatile collection's datafiles are anonymous mappings with no
	// backing path (§6.3's is_volatile); there is nothing to rename, the
	// sealed journal simply becomes a sealed entry in c.datafiles in place.
	if !c.param.IsVolatile {
		if err := old.Rename(c.datafilePath(old.FID())); err != nil {
			return fmt.Errorf("rename sealed journal: %w", err)
		}
	}
	c.datafiles = append(c.datafiles, old)
	return c.openNewJournalLocked()
}

func (c *Collection) openNewJournalLocked() error {
	tick := c.ig.NewTick()
	path := c.journalPath(tick)
	if c.param.IsVolatile {
		path = ""
	}
	df, err := datafile.Create(path, c.param.MaxSize, tick)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	c.journal = df
	return nil
}

func (c *Collection) journalPath(fid ids.Tick) string {
	return filepath.Join(c.dir, fmt.Sprintf("journal-%d.db", uint64(fid)))
}

func (c *Collection) datafilePath(fid ids.Tick) string {
	return filepath.Join(c.dir, fmt.Sprintf("datafile-%d.db", uint64(fid)))
}

func translateDatafileErr(err error) error {
	switch {
	case errors.Is(err, datafile.ErrDocumentTooLarge):
		return fmt.Errorf("%w: %v", ErrDocumentTooLarge, err)
	case errors.Is(err, datafile.ErrReadOnly):
		return fmt.Errorf("%w: %v", ErrReadOnly, err)
	case errors.Is(err, datafile.ErrFilesystemFull):
		return fmt.Errorf("%w: %v", ErrFilesystemFull, err)
	case errors.Is(err, datafile.ErrCorruptedDatafile):
		return fmt.Errorf("%w: %v", ErrCorruptedDatafile, err)
	case errors.Is(err, datafile.ErrIllegalState):
		return fmt.Errorf("%w: %v", ErrIllegalState, err)
	default:
		return err
	}
}
