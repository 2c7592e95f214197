package sanitize

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// outputFile is the part of *os.File that writeAtomic uses.
type outputFile interface {
	io.Writer
	Sync() error
	Close() error
	Name() string
}

// createTemp is swapped in tests to fail writes part way.
var createTemp = func(dir, pattern string) (outputFile, error) {
	return os.CreateTemp(dir, pattern)
}

// trackingWriter counts bytes and remembers the first write error so a
// strategy failure can be told apart from a storage failure.
type trackingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.n += int64(n)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

// writeAtomic runs fill against a temp file in dir and links it to name
// once fill succeeded and the data is synced. The link fails rather than
// replace an existing file. On any error nothing is left behind in dir.
func writeAtomic(dir, name string, fill func(w io.Writer) error) (int64, error) {
	final := filepath.Join(dir, name)
	if _, err := os.Lstat(final); err == nil {
		return 0, fmt.Errorf("destination %s already exists: %w", name, types.ErrStorageIO)
	}

	tmp, err := createTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %v: %w", err, types.ErrStorageIO)
	}
	tmpPath := tmp.Name()

	tw := &trackingWriter{w: tmp}
	err = fill(tw)
	switch {
	case tw.err != nil:
		err = fmt.Errorf("write output: %v: %w", tw.err, types.ErrStorageIO)
	case err == nil:
		if syncErr := tmp.Sync(); syncErr != nil {
			err = fmt.Errorf("sync output: %v: %w", syncErr, types.ErrStorageIO)
		}
	}
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output: %v: %w", closeErr, types.ErrStorageIO)
	}
	if err == nil {
		if linkErr := os.Link(tmpPath, final); linkErr != nil {
			err = fmt.Errorf("publish output: %v: %w", linkErr, types.ErrStorageIO)
		}
	}

	// the temp name goes away on success too; final keeps the inode
	if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		if err == nil {
			os.Remove(final)
		}
		return 0, errors.Join(err, fmt.Errorf("remove temp file: %v: %w", rmErr, types.ErrStorageIO))
	}
	if err != nil {
		return 0, err
	}
	return tw.n, nil
}
