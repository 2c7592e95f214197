package biz

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/ingesttest"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sniff"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
)

func (h *harness) transcoded(t *testing.T) (*sanitize.Output, *quarantine.StagedUpload) {
	t.Helper()
	staged, err := h.intake.Accept(context.Background(), bytes.NewReader(ingesttest.PNG(4, 4)), "a.png")
	require.NoError(t, err)
	detected, ok := sniff.Lookup("image/png")
	require.True(t, ok)
	out, err := h.transcoder.Transcode(context.Background(), staged, detected, avatarFolder)
	require.NoError(t, err)
	return out, staged
}

var meta = Metadata{Uploader: types.Uploader{Type: types.UploaderEmployee, ID: "9"}}

func TestFinalize_LockedStagedFileIsQuarantined(t *testing.T) {
	h := newHarness(t)
	h.finalizer.removeStaged = func(*quarantine.StagedUpload) error { return errors.New("sharing violation") }

	out, staged := h.transcoded(t)
	art, err := h.finalizer.Finalize(context.Background(), out, staged, meta)
	require.NoError(t, err, "a locked staged file never fails the upload")
	require.NotNil(t, art)

	h.stagingEmpty(t)
	entries, err := os.ReadDir(h.quarantine)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), filepath.Base(staged.Path)+"."))

	quarantined := filepath.Join(h.quarantine, entries[0].Name())
	abs, err := filepath.Abs(quarantined)
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, h.purge.queued())
}

func TestFinalize_UnmovableStagedFileIsEnqueued(t *testing.T) {
	h := newHarness(t)
	out, staged := h.transcoded(t)

	// gone before the move, so the rename fails too
	require.NoError(t, os.Remove(staged.Path))
	h.finalizer.removeStaged = func(*quarantine.StagedUpload) error { return errors.New("sharing violation") }

	_, err := h.finalizer.Finalize(context.Background(), out, staged, meta)
	require.NoError(t, err)
	assert.Equal(t, []string{staged.Path}, h.purge.queued())
}

func TestFinalize_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	out, staged := h.transcoded(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.finalizer.Finalize(ctx, out, staged, meta)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out.Path)
	assert.NoFileExists(t, staged.Path)
	assert.Zero(t, h.repo.count())
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, err := fileChecksum(path)
	require.NoError(t, err)
	// BLAKE3("abc")
	assert.Equal(t, "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85", sum)

	_, err = fileChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, types.ErrStorageIO)
}

func TestValidateFolder(t *testing.T) {
	for _, ok := range []string{"upload", "upload/avatar", "a_b-c/d1"} {
		assert.NoError(t, ValidateFolder(ok), ok)
	}
	for _, bad := range []string{"", "/upload", "upload/", "upload//avatar", "Upload", "up load", "..", "a/../b", strings.Repeat("a", 129)} {
		assert.ErrorIs(t, ValidateFolder(bad), ErrInvalidFolder, bad)
	}
}
