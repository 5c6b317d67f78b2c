package datafile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// errFilesystemFull is returned by msync when the kernel reports ENOSPC
// while flushing dirty pages — the disk filled up after the in-memory
// write already happened. The datafile transitions to write-error and
// this error becomes ErrFilesystemFull at the Datafile boundary.
var errFilesystemFull = errors.New("msync: no space left on device")

// msync flushes dirty pages in b to their backing file and waits for
// completion (MS_SYNC). ENOSPC is translated to errFilesystemFull so
// callers can distinguish "disk full" from other, genuinely fatal,
// mapping errors.
func msync(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	err := unix.Msync(b, unix.MS_SYNC)
	if errors.Is(err, unix.ENOSPC) {
		return errFilesystemFull
	}
	return err
}
