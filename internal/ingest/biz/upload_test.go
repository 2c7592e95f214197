package biz

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/ingesttest"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sniff"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
)

const avatarFolder = "upload/avatar"

type harness struct {
	uc         *UploadUseCase
	intake     *quarantine.Intake
	transcoder *sanitize.Transcoder
	finalizer  *Finalizer
	repo       *memRepo
	mirror     *memMirror
	purge      *memPurge
	quarantine string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	intake, err := quarantine.NewIntake(quarantine.Options{
		StagingDir: filepath.Join(dir, "staging"),
		MaxBytes:   4 << 20,
	}, nil)
	require.NoError(t, err)

	sniffer, err := sniff.New(sniff.Options{StagingRoot: intake.Root()}, nil)
	require.NoError(t, err)

	transcoder, err := sanitize.New(sanitize.Options{StorageRoot: filepath.Join(dir, "storage")}, nil, nil)
	require.NoError(t, err)

	h := &harness{
		intake:     intake,
		transcoder: transcoder,
		repo:       newMemRepo(),
		mirror:     newMemMirror(),
		purge:      &memPurge{},
		quarantine: filepath.Join(dir, "quarantine"),
	}

	h.finalizer, err = NewFinalizer(h.quarantine, h.repo, h.mirror, h.purge, nil)
	require.NoError(t, err)

	pool, err := workerpool.New(&workerpool.Config{Workers: 2, QueueSize: 8, EnablePriority: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	h.uc = NewUploadUseCase(Options{AllowedTypes: []string{"image/*", "pdf"}},
		intake, sniffer, transcoder, h.finalizer, h.repo, h.mirror, pool, nil)
	return h
}

func (h *harness) stagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.intake.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory must be empty")
}

func (h *harness) folderFiles(t *testing.T, folder string) []string {
	t.Helper()
	dir, err := h.transcoder.FolderPath(folder)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func storeRequest(data []byte, declared string) StoreRequest {
	return StoreRequest{
		File:         bytes.NewReader(data),
		DeclaredName: declared,
		Folder:       avatarFolder,
		EntityType:   "partner",
		EntityID:     "42",
		UploaderIP:   "fe80::1%eth0",
		UserAgent:    "curl/8.0",
		AdminID:      "7",
	}
}

func TestStore_JPEG(t *testing.T) {
	h := newHarness(t)

	art, err := h.uc.Store(context.Background(), storeRequest(ingesttest.JPEGWithEXIF(8, 4, 6), "../../etc/passwd.jpg"))
	require.NoError(t, err)

	assert.NotEmpty(t, art.ID)
	assert.Equal(t, avatarFolder, art.Folder)
	assert.True(t, sanitize.IsGeneratedFilename(art.Filename))
	assert.Equal(t, "jpg", art.FileType)
	assert.Equal(t, "image/jpeg", art.MIMEType)
	assert.Len(t, art.Checksum, 64)
	assert.Equal(t, types.Uploader{Type: types.UploaderAdmin, ID: "7"}, art.Uploader)
	assert.Equal(t, "fe80::1", art.UploaderIP)

	dir, err := h.transcoder.FolderPath(avatarFolder)
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, art.Filename))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())
	assert.Equal(t, art.Size, info.Size())

	assert.Equal(t, []string{art.Filename}, h.folderFiles(t, avatarFolder))
	assert.Equal(t, 1, h.repo.count())
	assert.True(t, h.mirror.has(art.ObjectKey()))
	assert.Empty(t, h.purge.queued())
	h.stagingEmpty(t)
}

func TestStore_RejectsBeforeReading(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		req  StoreRequest
		want error
	}{
		{"absolute folder", StoreRequest{File: failingReader{}, Folder: "/etc", AdminID: "1"}, ErrInvalidFolder},
		{"traversal", StoreRequest{File: failingReader{}, Folder: "upload/../..", AdminID: "1"}, ErrInvalidFolder},
		{"upper case", StoreRequest{File: failingReader{}, Folder: "Upload", AdminID: "1"}, ErrInvalidFolder},
		{"no uploader", StoreRequest{File: failingReader{}, Folder: avatarFolder}, types.ErrInvalidUploader},
		{"two uploaders", StoreRequest{File: failingReader{}, Folder: avatarFolder, AdminID: "1", EmployeeID: "2"}, types.ErrInvalidUploader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.uc.Store(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	h.stagingEmpty(t)
}

func TestStore_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		allowed  []string
		want     error
	}{
		{"executable named as image", ingesttest.Executable(), "photo.jpg", nil, types.ErrUnsupportedType},
		{"zip archive", ingesttest.Zip(ingesttest.ZipEntry{Name: "a.txt", Body: "hi"}), "a.zip", []string{"zip", "image/*"}, types.ErrUnsupportedType},
		{"type outside allow-list", ingesttest.PlainPDF(), "doc.pdf", []string{"image/*"}, types.ErrUnsupportedType},
		{"corrupt pdf", ingesttest.CorruptPDF(), "doc.pdf", nil, types.ErrCorruptInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := storeRequest(tt.data, tt.declared)
			req.Allowed = tt.allowed

			art, err := h.uc.Store(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, art)

			h.stagingEmpty(t)
			assert.Empty(t, h.folderFiles(t, avatarFolder))
			assert.Zero(t, h.repo.count())
		})
	}
}

func TestStore_RecordFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.repo.createErr = errors.New("connection refused")

	_, err := h.uc.Store(context.Background(), storeRequest(ingesttest.PNG(4, 4), "a.png"))
	require.ErrorIs(t, err, types.ErrStorageIO)

	h.stagingEmpty(t)
	assert.Empty(t, h.folderFiles(t, avatarFolder))
	assert.Empty(t, h.mirror.objects)
}

func TestStore_MirrorFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.mirror.putErr = errors.New("bucket unavailable")

	_, err := h.uc.Store(context.Background(), storeRequest(ingesttest.PNG(4, 4), "a.png"))
	require.ErrorIs(t, err, types.ErrStorageIO)

	h.stagingEmpty(t)
	assert.Empty(t, h.folderFiles(t, avatarFolder))
	assert.Zero(t, h.repo.count())
}

func TestStore_CancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.uc.Store(ctx, storeRequest(ingesttest.PNG(4, 4), "a.png"))
	require.ErrorIs(t, err, context.Canceled)

	h.stagingEmpty(t)
	assert.Empty(t, h.folderFiles(t, avatarFolder))
}

func TestVerify(t *testing.T) {
	h := newHarness(t)

	res, err := h.uc.Verify(context.Background(), bytes.NewReader(ingesttest.PNG(4, 4)), "x.gif", []string{"png"})
	require.NoError(t, err)
	assert.Equal(t, &VerifyResult{OK: true, MIME: "image/png", Extension: "png"}, res)
	h.stagingEmpty(t)

	res, err = h.uc.Verify(context.Background(), bytes.NewReader(ingesttest.Executable()), "x.png", []string{"png"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Empty(t, res.MIME)
	h.stagingEmpty(t)

	// the configured default list applies when none is given
	res, err = h.uc.Verify(context.Background(), bytes.NewReader(ingesttest.PlainPDF()), "x.pdf", nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestDelete_Idempotent(t *testing.T) {
	h := newHarness(t)
	art, err := h.uc.Store(context.Background(), storeRequest(ingesttest.PNG(4, 4), "a.png"))
	require.NoError(t, err)

	removed, err := h.uc.Delete(context.Background(), art.Filename, art.Folder, art.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, h.folderFiles(t, avatarFolder))
	assert.Zero(t, h.repo.count())
	assert.False(t, h.mirror.has(art.ObjectKey()))

	removed, err = h.uc.Delete(context.Background(), art.Filename, art.Folder, art.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDelete_Validation(t *testing.T) {
	h := newHarness(t)
	art, err := h.uc.Store(context.Background(), storeRequest(ingesttest.PNG(4, 4), "a.png"))
	require.NoError(t, err)

	_, err = h.uc.Delete(context.Background(), "../../etc/passwd", avatarFolder, "")
	assert.ErrorIs(t, err, ErrInvalidFilename)

	_, err = h.uc.Delete(context.Background(), art.Filename, "../upload", "")
	assert.ErrorIs(t, err, ErrInvalidFolder)

	_, err = h.uc.Delete(context.Background(), art.Filename, art.Folder, "someone-else")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Equal(t, []string{art.Filename}, h.folderFiles(t, avatarFolder), "a mismatched id removes nothing")
}
