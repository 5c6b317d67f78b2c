package datafile

import (
	"fmt"
	"os"

	"vocbase/logger"
)

// TruncateAndSeal recovers a datafile that was found corrupt past a known
// good prefix: it creates a fresh file of size ceil((goodSize+footer)/page)
// * page, copies the first goodSize bytes from the damaged file, renames
// the damaged original to "<path>.corrupted", gives the new file the
// original name, and seals it. The returned Datafile is a sealed datafile
// containing exactly the markers found in [0, goodSize).
func TruncateAndSeal(path string, goodSize int64, pageSize int64) (*Datafile, error) {
	damaged, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open damaged datafile: %w", err)
	}
	defer damaged.Close()

	good := make([]byte, goodSize)
	if _, err := damaged.ReadAt(good, 0); err != nil {
		return nil, fmt.Errorf("read known-good prefix: %w", err)
	}

	tmpPath := path + ".recovering"
	newSize := roundUpToPage(goodSize+footerSize, pageSize)

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("create recovery file: %w", err)
	}
	if err := tmp.Truncate(newSize); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("size recovery file: %w", err)
	}
	if _, err := tmp.WriteAt(good, 0); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("copy known-good prefix: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("sync recovery file: %w", err)
	}
	tmp.Close()

	corruptedPath := path + ".corrupted"
	if err := os.Rename(path, corruptedPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename damaged original: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("install recovered datafile: %w", err)
	}

	logger.Warn("datafile: truncated-and-sealed %q at %d bytes (damaged copy kept at %q)", path, goodSize, corruptedPath)

	df, err := open(path, false)
	if err != nil {
		return nil, fmt.Errorf("open recovered datafile: %w", err)
	}
	df.currentSize = goodSize
	if err := df.Seal(); err != nil {
		df.Close()
		return nil, fmt.Errorf("seal recovered datafile: %w", err)
	}
	return df, nil
}

func roundUpToPage(n, pageSize int64) int64 {
	if pageSize <= 0 {
		pageSize = 4096
	}
	return (n + pageSize - 1) / pageSize * pageSize
}
