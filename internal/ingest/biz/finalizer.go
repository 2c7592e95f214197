package biz

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/metrics"
)

const (
	artifactMode       = 0o444
	quarantineDirMode  = 0o700
	quarantineTSLayout = "20060102150405"
)

// Finalizer commits a transcoded output: it locks down the file, releases
// the staged upload and writes the audit record.
type Finalizer struct {
	quarantineDir string
	repo          ArtifactRepo
	mirror        Mirror
	purge         PurgeQueue
	now           func() time.Time
	removeStaged  func(*quarantine.StagedUpload) error
	logger        *logger.Logger
}

// NewFinalizer creates the quarantine directory if needed. mirror and purge may be nil.
func NewFinalizer(quarantineDir string, repo ArtifactRepo, mirror Mirror, purge PurgeQueue, log *logger.Logger) (*Finalizer, error) {
	if quarantineDir == "" {
		return nil, errors.New("finalizer: quarantine dir is required")
	}
	if repo == nil {
		return nil, errors.New("finalizer: artifact repository is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	dir, err := filepath.Abs(quarantineDir)
	if err != nil {
		return nil, fmt.Errorf("finalizer: resolve quarantine dir: %w", err)
	}
	if err := os.MkdirAll(dir, quarantineDirMode); err != nil {
		return nil, fmt.Errorf("finalizer: create quarantine dir: %w", err)
	}

	return &Finalizer{
		quarantineDir: dir,
		repo:          repo,
		mirror:        mirror,
		purge:         purge,
		now:           time.Now,
		removeStaged:  (*quarantine.StagedUpload).Discard,
		logger:        log.Named("finalizer"),
	}, nil
}

// Finalize turns out into a StoredArtifact. Any error leaves no output file,
// no mirror object and no staged file behind. A staged file that cannot be
// removed is quarantined and does not fail the call.
func (f *Finalizer) Finalize(ctx context.Context, out *sanitize.Output, staged *quarantine.StagedUpload, meta Metadata) (art *StoredArtifact, err error) {
	start := time.Now()
	defer metrics.ObserveStage("finalize", start)

	log := f.logger.WithContext(ctx).With(zap.String("upload_id", staged.ID), zap.String("filename", out.Filename))

	mirrored := ""
	defer func() {
		if err == nil {
			return
		}
		f.rollback(log, out, staged, mirrored)
		log.Error("finalize failed", zap.String("kind", types.Kind(err)), zap.Error(err))
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.Chmod(out.Path, artifactMode); err != nil {
		return nil, fmt.Errorf("lock down output: %v: %w", err, types.ErrStorageIO)
	}

	checksum, err := fileChecksum(out.Path)
	if err != nil {
		return nil, err
	}

	art = &StoredArtifact{
		ID:         uuid.NewString(),
		Filename:   out.Filename,
		Folder:     out.Folder,
		Size:       out.Size,
		FileType:   out.Extension,
		MIMEType:   out.MIME,
		Checksum:   checksum,
		Uploader:   meta.Uploader,
		EntityType: meta.EntityType,
		EntityID:   meta.EntityID,
		UploaderIP: meta.UploaderIP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  f.now().UTC(),
	}

	if f.mirror != nil {
		if err := f.mirror.Put(ctx, art.ObjectKey(), out.Path, art.MIMEType); err != nil {
			return nil, fmt.Errorf("mirror artifact: %v: %w", err, types.ErrStorageIO)
		}
		mirrored = art.ObjectKey()
	}

	if err := f.repo.Create(ctx, art); err != nil {
		return nil, fmt.Errorf("record artifact: %v: %w", err, types.ErrStorageIO)
	}

	f.releaseStaged(ctx, log, staged)

	metrics.StoredBytes.Add(float64(art.Size))
	log.Info("artifact stored",
		zap.String("artifact_id", art.ID),
		zap.String("folder", art.Folder),
		zap.String("file_type", art.FileType),
		zap.Int64("size", art.Size),
		zap.Duration("elapsed", time.Since(start)),
	)
	return art, nil
}

// releaseStaged deletes the staged upload, falling back to a quarantine move
// and then to the purge queue.
func (f *Finalizer) releaseStaged(ctx context.Context, log *logger.Logger, staged *quarantine.StagedUpload) {
	err := f.removeStaged(staged)
	if err == nil {
		return
	}

	metrics.LockedFileWarnings.Inc()
	target := filepath.Join(f.quarantineDir, filepath.Base(staged.Path)+"."+f.now().UTC().Format(quarantineTSLayout))
	warning := fmt.Errorf("%v: %w", err, types.ErrLockedFileWarning)

	mvErr := os.Rename(staged.Path, target)
	if mvErr != nil {
		log.Warn("staged file could not be removed or quarantined",
			zap.Error(warning),
			zap.NamedError("move_error", mvErr),
		)
		f.enqueue(ctx, log, staged.Path)
		return
	}

	log.Warn("staged file could not be removed, quarantined",
		zap.Error(warning),
		zap.String("quarantine_path", target),
	)
	f.enqueue(ctx, log, target)
}

func (f *Finalizer) enqueue(ctx context.Context, log *logger.Logger, path string) {
	if f.purge == nil {
		log.Warn("no purge queue configured, file left for the staging sweep", zap.String("path", path))
		return
	}
	// The request may already be finishing; the purge must still be recorded.
	if err := f.purge.Enqueue(context.WithoutCancel(ctx), path); err != nil {
		log.Error("failed to enqueue purge", zap.String("path", path), zap.Error(err))
	}
}

func (f *Finalizer) rollback(log *logger.Logger, out *sanitize.Output, staged *quarantine.StagedUpload, mirrored string) {
	if mirrored != "" {
		if err := f.mirror.Remove(context.Background(), mirrored); err != nil {
			log.Error("failed to remove mirror object", zap.String("key", mirrored), zap.Error(err))
		}
	}
	if err := os.Remove(out.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("failed to remove output", zap.String("path", out.Path), zap.Error(err))
	}
	if err := staged.Discard(); err != nil {
		log.Error("failed to remove staged file", zap.Error(err))
	}
}

func fileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open output: %v: %w", err, types.ErrStorageIO)
	}
	defer file.Close()

	h := blake3.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash output: %v: %w", err, types.ErrStorageIO)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
