package datafile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// region is the single backing-storage abstraction for a Datafile. Rather
// than dispatching through an interface the way the original's
// function-pointer-bearing struct did (close/sync/truncate differed for
// anonymous vs. physical datafiles), region carries an isAnonymous tag and
// each method branches on it directly — there are exactly two constructors
// (newPhysicalRegion, newAnonymousRegion) and no third implementation is
// ever expected.
type region struct {
	isAnonymous bool

	// physical-only
	file *os.File

	// both: data is the mapped (physical) or plain heap (anonymous) slice
	// backing this datafile's bytes.
	data []byte
}

// newPhysicalRegion creates or opens a file-backed region of exactly size
// bytes, memory-mapped read-write.
func newPhysicalRegion(path string, size int64, create bool) (*region, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open datafile: %w", err)
	}

	if create {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate datafile: %w", err)
		}
	} else {
		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat datafile: %w", err)
		}
		size = stat.Size()
	}

	data, err := mmapFile(file, size, true)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &region{isAnonymous: false, file: file, data: data}, nil
}

// newAnonymousRegion creates a volatile, non-persistent region of exactly
// size bytes, grounded on TRI_CreateAnonymousMmapFile: a collection marked
// is_volatile in its parameter.json never touches disk.
func newAnonymousRegion(size int64) *region {
	return &region{isAnonymous: true, data: make([]byte, size)}
}

// mmapFile maps the first size bytes of file, read-write or read-only.
func mmapFile(file *os.File, size int64, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return data, nil
}

// bytes returns the full backing slice.
func (r *region) bytes() []byte {
	return r.data
}

// grow resizes a writable region to newSize, which must be larger than the
// current size. Physical regions are unmapped, truncated, and remapped;
// anonymous regions are reallocated and copied.
func (r *region) grow(newSize int64) error {
	if r.isAnonymous {
		grown := make([]byte, newSize)
		copy(grown, r.data)
		r.data = grown
		return nil
	}

	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("munmap before grow: %w", err)
	}
	if err := r.file.Truncate(newSize); err != nil {
		return fmt.Errorf("truncate for grow: %w", err)
	}
	data, err := mmapFile(r.file, newSize, true)
	if err != nil {
		return err
	}
	r.data = data
	return nil
}

// sync flushes the byte range [offset, offset+length) to disk. msync needs a
// page-aligned start, so the range is widened down to the page boundary
// containing offset. A no-op for anonymous regions, which are never persisted.
func (r *region) sync(offset, length int64) error {
	if r.isAnonymous {
		return nil
	}
	start := offset &^ (int64(os.Getpagesize()) - 1)
	return msync(r.data[start : offset+length])
}

// remapReadOnly remaps a physical region PROT_READ, enforcing the "once
// state=read, the mapping is PROT_READ only" invariant. Anonymous regions
// have no remapping concept; the caller still relies on sealed being
// tracked at the Datafile level to reject further writes.
func (r *region) remapReadOnly() error {
	if r.isAnonymous {
		return nil
	}
	size := len(r.data)
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("munmap before remap: %w", err)
	}
	data, err := mmapFile(r.file, int64(size), false)
	if err != nil {
		return err
	}
	r.data = data
	return nil
}

// truncateTo shrinks the underlying file to exactly size bytes. Used by
// Seal to drop the unused tail of a journal once its footer is written.
func (r *region) truncateTo(size int64) error {
	if r.isAnonymous {
		r.data = r.data[:size]
		return nil
	}
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("munmap before truncate: %w", err)
	}
	if err := r.file.Truncate(size); err != nil {
		return fmt.Errorf("ftruncate: %w", err)
	}
	data, err := mmapFile(r.file, size, true)
	if err != nil {
		return err
	}
	r.data = data
	return nil
}

// close unmaps the region and, for physical regions, closes the file.
func (r *region) close() error {
	if r.data != nil && !r.isAnonymous {
		if err := unix.Munmap(r.data); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
