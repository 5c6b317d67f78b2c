package datafile

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"vocbase/ids"
	"vocbase/logger"
)

// state is the lifecycle stage of a Datafile, mirroring TRI_DATAFILE_STATE_*
// from the original: a datafile is created or opened for write, reserves
// and writes markers, and is eventually sealed into a read-only file. The
// two error states are terminal — once reached, every subsequent
// reserve/write call fails immediately without retrying the syscall.
type state int

const (
	stateNone state = iota
	stateWrite
	stateRead
	stateOpenError
	stateWriteError
)

// footerSize is the padded size of a bodyless TypeFileFooter marker.
const footerSize = headerSize

// Datafile is a memory-mapped, append-only sequence of markers. It is the
// single representation for both physical (file-backed) and anonymous
// (volatile, in-memory-only) datafiles; region carries the tag that
// distinguishes them so Datafile itself never branches on a vtable.
type Datafile struct {
	mu sync.RWMutex

	path   string // "" for anonymous datafiles
	fid    ids.Tick
	region *region

	maxSize     int64
	currentSize int64
	state       state
	sealed      bool
}

// Create makes a new datafile: a physical sparse file at path, or (if path
// is empty, for volatile collections) an anonymous in-memory region. It
// writes and CRCs a file-header marker and leaves the datafile in the
// write state.
func Create(path string, maxSize int64, fid ids.Tick) (*Datafile, error) {
	var r *region
	var err error
	if path == "" {
		r = newAnonymousRegion(maxSize)
	} else {
		r, err = newPhysicalRegion(path, maxSize, true)
		if err != nil {
			return nil, fmt.Errorf("create datafile: %w", err)
		}
	}

	df := &Datafile{
		path:    path,
		fid:     fid,
		region:  r,
		maxSize: maxSize,
		state:   stateWrite,
	}

	body := (&FileHeaderBody{Version: 1, MaxSize: uint64(maxSize), FID: uint64(fid)}).encode()
	if _, err := df.writeMarkerAt(0, TypeFileHeader, fid, body, true); err != nil {
		df.Close()
		return nil, fmt.Errorf("write file-header marker: %w", err)
	}
	df.currentSize = int64(PaddedSize(len(body)))

	logger.Debug("datafile: created fid=%d path=%q maxSize=%d", fid, path, maxSize)
	return df, nil
}

// Open maps an existing physical datafile read-write, validates its
// file-header, and scans forward (check) to find either a footer (sealed
// datafile, remapped read-only) or the first unused byte (journal,
// remains write-capable). Open refuses to open a file with a corrupt
// marker; ForceOpen opens it anyway.
func Open(path string) (*Datafile, error) {
	return open(path, false)
}

// ForceOpen behaves like Open but does not fail on a corrupt marker. The
// scan still stops at the first corrupt marker, and the datafile opens
// with CurrentSize set to that marker's offset; markers beyond it are not
// scanned. A file-header that fails validation is still an error.
func ForceOpen(path string) (*Datafile, error) {
	return open(path, true)
}

func open(path string, force bool) (*Datafile, error) {
	r, err := newPhysicalRegion(path, 0, false)
	if err != nil {
		return nil, fmt.Errorf("open datafile: %w", err)
	}

	df := &Datafile{path: path, region: r, state: stateWrite}

	if len(r.data) < headerSize {
		df.state = stateOpenError
		df.Close()
		return nil, fmt.Errorf("%w: file too small for a header", ErrCorruptedDatafile)
	}
	h := decodeHeader(r.data[:headerSize])
	if h.Type != TypeFileHeader {
		df.state = stateOpenError
		df.Close()
		return nil, fmt.Errorf("%w: first marker is not a file-header", ErrCorruptedDatafile)
	}
	if !checkMarkerCRC(r.data[:PaddedSize(fileHeaderBodySize)]) {
		df.state = stateOpenError
		df.Close()
		return nil, fmt.Errorf("%w: file-header CRC mismatch", ErrCorruptedDatafile)
	}
	body := decodeFileHeaderBody(r.data[headerSize:PaddedSize(fileHeaderBodySize)])
	df.fid = ids.Tick(body.FID)
	df.maxSize = int64(body.MaxSize)

	sealed, size, err := df.check()
	if err != nil && !force {
		df.state = stateOpenError
		df.Close()
		return nil, err
	}
	df.currentSize = size

	if sealed {
		df.sealed = true
		if err := r.remapReadOnly(); err != nil {
			df.Close()
			return nil, fmt.Errorf("remap sealed datafile read-only: %w", err)
		}
		df.state = stateRead
	}

	return df, nil
}

// check scans markers from just after the file-header to find either a
// file-footer (the datafile is sealed) or the offset of the first
// all-zero slot (the datafile is a live journal). It stops and returns an
// error at the first structurally invalid or CRC-mismatched marker.
func (df *Datafile) check() (sealed bool, size int64, err error) {
	offset := int64(PaddedSize(fileHeaderBodySize))
	data := df.region.bytes()

	for {
		if offset+headerSize > int64(len(data)) {
			return false, offset, nil
		}
		raw := data[offset:]
		if allZero(raw[:headerSize]) {
			return false, offset, nil
		}
		h := decodeHeader(raw[:headerSize])
		if verr := h.Validate(); verr != nil {
			return false, offset, fmt.Errorf("%w at offset %d: %v", ErrCorruptedDatafile, offset, verr)
		}
		if offset+int64(h.Size) > int64(len(data)) {
			return false, offset, fmt.Errorf("%w at offset %d: marker extends past file", ErrCorruptedDatafile, offset)
		}
		if !checkMarkerCRC(raw[:h.Size]) {
			return false, offset, fmt.Errorf("%w at offset %d: CRC mismatch", ErrCorruptedDatafile, offset)
		}
		if h.Type == TypeFileFooter {
			return true, offset + int64(h.Size), nil
		}
		offset += int64(h.Size)
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// FID returns the tick this datafile was created with.
func (df *Datafile) FID() ids.Tick { return df.fid }

// Path returns the backing file's path, or "" for anonymous datafiles.
func (df *Datafile) Path() string { return df.path }

// Sealed reports whether Seal has been called on this datafile.
func (df *Datafile) Sealed() bool {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.sealed
}

// CurrentSize returns the offset of the first unused byte.
func (df *Datafile) CurrentSize() int64 {
	df.mu.RLock()
	defer df.mu.RUnlock()
	return df.currentSize
}

// Reserve advances the write cursor by the padded size of bodyLen bytes
// and returns the offset the caller should write its marker at. It fails
// with ErrDatafileFull if the datafile cannot also fit a footer after the
// reservation, ErrReadOnly if the datafile is sealed or in an error state,
// and ErrDocumentTooLarge if the marker could never fit regardless of
// current occupancy.
func (df *Datafile) Reserve(bodyLen int) (int64, error) {
	padded := int64(PaddedSize(bodyLen))

	df.mu.Lock()
	defer df.mu.Unlock()

	if df.state != stateWrite {
		return 0, ErrReadOnly
	}
	if padded > df.maxSize-int64(PaddedSize(fileHeaderBodySize))-footerSize {
		return 0, ErrDocumentTooLarge
	}
	if df.currentSize+padded+footerSize > df.maxSize {
		return 0, ErrDatafileFull
	}

	offset := df.currentSize
	df.currentSize += padded
	return offset, nil
}

// Write copies a marker of the given type and body at offset (as returned
// by a prior Reserve) and, if forceSync is set, msyncs the affected range.
// A msync failure reported as ENOSPC transitions the datafile to
// write-error and is surfaced as ErrFilesystemFull.
func (df *Datafile) Write(offset int64, markerType MarkerType, tick ids.Tick, body []byte, forceSync bool) error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.state != stateWrite {
		return ErrReadOnly
	}
	if _, err := df.writeMarkerAtLocked(offset, markerType, tick, body, forceSync); err != nil {
		return err
	}
	return nil
}

// writeMarkerAt is writeMarkerAtLocked without requiring the caller to
// already hold df.mu — used only during Create, before df is shared.
func (df *Datafile) writeMarkerAt(offset int64, markerType MarkerType, tick ids.Tick, body []byte, forceSync bool) (int64, error) {
	return df.writeMarkerAtLocked(offset, markerType, tick, body, forceSync)
}

func (df *Datafile) writeMarkerAtLocked(offset int64, markerType MarkerType, tick ids.Tick, body []byte, forceSync bool) (int64, error) {
	size := PaddedSize(len(body))

	bufPtr := getMarkerBuffer()
	defer putMarkerBuffer(bufPtr)
	buf := *bufPtr
	if cap(buf) < size {
		buf = make([]byte, size)
	} else {
		buf = buf[:size]
		for i := range buf {
			buf[i] = 0
		}
	}

	h := Header{Size: uint32(size), Type: markerType, ServerID: ids.LocalServerID(), Tick: tick}
	encodeHeader(buf, &h)
	copy(buf[headerSize:], body)

	if !df.region.isAnonymous {
		crc := computeMarkerCRC(buf)
		buf[4] = byte(crc)
		buf[5] = byte(crc >> 8)
		buf[6] = byte(crc >> 16)
		buf[7] = byte(crc >> 24)
	}

	data := df.region.bytes()
	if offset+int64(size) > int64(len(data)) {
		if err := df.region.grow(offset + int64(size)); err != nil {
			return 0, fmt.Errorf("grow region for write: %w", err)
		}
		data = df.region.bytes()
	}
	copy(data[offset:], buf)

	if forceSync {
		if err := df.region.sync(offset, int64(size)); err != nil {
			df.state = stateWriteError
			if errors.Is(err, errFilesystemFull) {
				return 0, fmt.Errorf("%w: %v", ErrFilesystemFull, err)
			}
			return 0, fmt.Errorf("msync: %w", err)
		}
	}

	*bufPtr = buf
	return offset, nil
}

// ReadMarkerBody returns the body bytes of the marker written at offset (as
// returned by Reserve/Write), aliasing the datafile's mapped region
// directly. This is what lets an Mptr's DataPtr be a true pointer into a
// mapped datafile rather than a private copy; callers that hold onto the
// returned slice across a point where the datafile could be unmapped or
// reclaimed must hold a barrier for the duration.
func (df *Datafile) ReadMarkerBody(offset int64) ([]byte, error) {
	df.mu.RLock()
	defer df.mu.RUnlock()

	data := df.region.bytes()
	if offset < 0 || offset+headerSize > int64(len(data)) {
		return nil, fmt.Errorf("%w: marker offset %d out of range", ErrCorruptedDatafile, offset)
	}
	raw := data[offset:]
	h := decodeHeader(raw[:headerSize])
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedDatafile, err)
	}
	if offset+int64(h.Size) > int64(len(data)) {
		return nil, fmt.Errorf("%w: marker extends past file", ErrCorruptedDatafile)
	}
	return raw[headerSize:h.Size], nil
}

// MarkerVisitor is called once per valid marker encountered by Iterate.
type MarkerVisitor func(h Header, body []byte) error

// Iterate streams every valid marker in file order, starting with the
// file-header, stopping at a zero-sized slot, EOF, or the footer
// (inclusive).
func (df *Datafile) Iterate(visit MarkerVisitor) error {
	df.mu.RLock()
	data := df.region.bytes()
	limit := df.currentSize
	df.mu.RUnlock()

	offset := int64(0)
	for offset+headerSize <= limit {
		raw := data[offset:]
		h := decodeHeader(raw[:headerSize])
		if h.Size == 0 {
			break
		}
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%w at offset %d: %v", ErrCorruptedDatafile, offset, err)
		}
		body := raw[headerSize:h.Size]
		if err := visit(h, body); err != nil {
			return err
		}
		if h.Type == TypeFileFooter {
			break
		}
		offset += int64(h.Size)
	}
	return nil
}

// Seal appends a file-footer marker, flushes everything up to the new
// current size, truncates a physical file to that size, and remaps it
// read-only. After Seal returns successfully the datafile is a sealed
// datafile per §3.3: reserve/write now fail with ErrReadOnly.
func (df *Datafile) Seal() error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.state != stateWrite {
		return ErrReadOnly
	}

	offset, err := df.reserveLocked(0)
	if err != nil {
		return fmt.Errorf("reserve footer: %w", err)
	}
	if _, err := df.writeMarkerAtLocked(offset, TypeFileFooter, df.fid, nil, true); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	if err := df.region.sync(0, df.currentSize); err != nil {
		df.state = stateWriteError
		if errors.Is(err, errFilesystemFull) {
			return fmt.Errorf("%w: %v", ErrFilesystemFull, err)
		}
		return fmt.Errorf("msync on seal: %w", err)
	}

	if err := df.region.truncateTo(df.currentSize); err != nil {
		df.state = stateWriteError
		return fmt.Errorf("truncate on seal: %w", err)
	}
	if err := df.region.remapReadOnly(); err != nil {
		return fmt.Errorf("remap on seal: %w", err)
	}

	df.sealed = true
	df.state = stateRead
	logger.Debug("datafile: sealed fid=%d size=%d", df.fid, df.currentSize)
	return nil
}

// reserveLocked is Reserve without the lock, for internal callers (Seal)
// that already hold df.mu.
func (df *Datafile) reserveLocked(bodyLen int) (int64, error) {
	padded := int64(PaddedSize(bodyLen))
	if df.currentSize+padded > df.maxSize {
		return 0, ErrDatafileFull
	}
	offset := df.currentSize
	df.currentSize += padded
	return offset, nil
}

// Rename moves a sealed, physical datafile to newPath. It is an error to
// rename an anonymous datafile, a datafile that is not sealed, or to a
// path that already exists.
func (df *Datafile) Rename(newPath string) error {
	df.mu.Lock()
	defer df.mu.Unlock()

	if df.region.isAnonymous {
		return fmt.Errorf("%w: cannot rename an anonymous datafile", ErrIllegalState)
	}
	if !df.sealed {
		return fmt.Errorf("%w: cannot rename an open journal", ErrIllegalState)
	}
	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("%w: rename target %q already exists", ErrIllegalState, newPath)
	}
	if err := os.Rename(df.path, newPath); err != nil {
		return fmt.Errorf("rename datafile: %w", err)
	}
	df.path = newPath
	return nil
}

// Close unmaps the datafile and, for physical datafiles, closes the file
// descriptor.
func (df *Datafile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if df.region == nil {
		return nil
	}
	return df.region.close()
}
