package sanitize

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/ingesttest"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

// fullDisk accepts limit bytes and then fails every write with ENOSPC.
type fullDisk struct {
	*os.File
	limit int
}

func (f *fullDisk) Write(p []byte) (int, error) {
	if len(p) <= f.limit {
		f.limit -= len(p)
		return f.File.Write(p)
	}
	n, err := f.File.Write(p[:f.limit])
	f.limit = 0
	if err != nil {
		return n, err
	}
	return n, syscall.ENOSPC
}

func withFullDisk(t *testing.T, limit int) {
	t.Helper()
	orig := createTemp
	createTemp = func(dir, pattern string) (outputFile, error) {
		f, err := os.CreateTemp(dir, pattern)
		if err != nil {
			return nil, err
		}
		return &fullDisk{File: f, limit: limit}, nil
	}
	t.Cleanup(func() { createTemp = orig })
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()

	n, err := writeAtomic(dir, "out.txt", func(w io.Writer) error {
		_, err := io.WriteString(w, "hello")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is gone")

	_, err = writeAtomic(dir, "out.txt", func(w io.Writer) error { return nil })
	assert.ErrorIs(t, err, types.ErrStorageIO, "existing files are never replaced")
}

func TestWriteAtomic_DiskFullMidWrite(t *testing.T) {
	withFullDisk(t, 3)
	dir := t.TempDir()

	_, err := writeAtomic(dir, "out.txt", func(w io.Writer) error {
		_, err := io.WriteString(w, "hello world")
		return err
	})
	require.ErrorIs(t, err, types.ErrStorageIO)
	assert.Contains(t, err.Error(), syscall.ENOSPC.Error())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscode_DiskFullMidWrite(t *testing.T) {
	withFullDisk(t, 16)
	h := newHarness(t, Options{})
	staged := h.stage(t, ingesttest.PNG(32, 32))

	_, err := h.transcoder.Transcode(context.Background(), staged, detected(t, "image/png"), folder)
	require.ErrorIs(t, err, types.ErrStorageIO)
	assert.NoFileExists(t, staged.Path)
	assert.Empty(t, h.folderEntries(t))

	left, err := os.ReadDir(filepath.Dir(staged.Path))
	require.NoError(t, err)
	assert.Empty(t, left, "staging keeps nothing")
}
