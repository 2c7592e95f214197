// Package quarantine writes untrusted upload streams to a private staging
// directory under generated names, enforcing the size limit while streaming.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
)

const (
	stagedSuffix  = ".upload"
	stagedMode    = 0o600
	stagingDirMod = 0o700

	maxDeclaredName = 255
	copyBufferSize  = 32 * 1024
)

// Options configures an Intake.
type Options struct {
	StagingDir string
	MaxBytes   int64
	// CheckFreeSpace refuses uploads when the staging volume has less than
	// MaxBytes available.
	CheckFreeSpace bool
}

// Intake owns the staging directory.
type Intake struct {
	root      string
	maxBytes  int64
	checkFree bool
	freeSpace func(path string) (uint64, error)
	logger    *logger.Logger
}

// NewIntake creates the staging directory if needed and returns an Intake rooted there.
func NewIntake(opts Options, log *logger.Logger) (*Intake, error) {
	if opts.StagingDir == "" {
		return nil, errors.New("quarantine: staging dir is required")
	}
	if opts.MaxBytes <= 0 {
		return nil, errors.New("quarantine: max bytes must be > 0")
	}
	if log == nil {
		log = logger.NewNop()
	}

	root, err := filepath.Abs(opts.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("quarantine: resolve staging dir: %w", err)
	}
	if err := os.MkdirAll(root, stagingDirMod); err != nil {
		return nil, fmt.Errorf("quarantine: create staging dir: %w", err)
	}
	// the sniffer compares symlink-resolved paths against this root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	return &Intake{
		root:      root,
		maxBytes:  opts.MaxBytes,
		checkFree: opts.CheckFreeSpace,
		freeSpace: availableBytes,
		logger:    log.Named("quarantine"),
	}, nil
}

// Root returns the absolute, symlink-resolved staging directory.
func (in *Intake) Root() string {
	return in.root
}

// MaxBytes returns the configured size limit.
func (in *Intake) MaxBytes() int64 {
	return in.maxBytes
}

// Accept streams r into a new staged file. declaredName is kept for display
// only and never influences the path. The size limit is enforced while
// copying, and any failure removes the partial file.
func (in *Intake) Accept(ctx context.Context, r io.Reader, declaredName string) (*StagedUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if in.checkFree {
		free, err := in.freeSpace(in.root)
		if err != nil {
			in.logger.Warn("staging free space check failed", zap.Error(err))
		} else if free < uint64(in.maxBytes) {
			return nil, fmt.Errorf("staging volume has %d bytes free: %w", free, types.ErrStorageIO)
		}
	}

	id := uuid.New()
	path := filepath.Join(in.root, id.String()+stagedSuffix)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, stagedMode)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %v: %w", err, types.ErrStorageIO)
	}

	n, copyErr := copyLimited(ctx, f, r, in.maxBytes)
	if copyErr == nil {
		copyErr = f.Sync()
		if copyErr != nil {
			copyErr = fmt.Errorf("sync staged file: %v: %w", copyErr, types.ErrStorageIO)
		}
	}
	if closeErr := f.Close(); copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("close staged file: %v: %w", closeErr, types.ErrStorageIO)
	}

	if copyErr != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			in.logger.Error("failed to remove partial staged file",
				zap.String("path", path),
				zap.Error(rmErr),
			)
		}
		return nil, copyErr
	}

	staged := &StagedUpload{
		ID:           id.String(),
		Path:         path,
		DeclaredName: cleanDeclaredName(declaredName),
		Size:         n,
		CreatedAt:    time.Now(),
	}

	in.logger.Debug("upload staged",
		zap.String("upload_id", staged.ID),
		zap.Int64("size", n),
	)
	return staged, nil
}

// copyLimited copies at most limit bytes and fails with ErrPayloadTooLarge as
// soon as one byte more arrives.
func copyLimited(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			if written+int64(nr) > limit {
				return written, fmt.Errorf("upload exceeds %d bytes: %w", limit, types.ErrPayloadTooLarge)
			}
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, fmt.Errorf("write staged file: %v: %w", writeErr, types.ErrStorageIO)
			}
			if nw != nr {
				return written, fmt.Errorf("write staged file: %v: %w", io.ErrShortWrite, types.ErrStorageIO)
			}
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, fmt.Errorf("read upload stream: %v: %w", readErr, types.ErrCorruptInput)
		}
	}
}

// Sweep removes staged files older than ttl. Only names produced by Accept are
// considered; anything else in the directory is left alone.
func (in *Intake) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(in.root)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.Type().IsRegular() || !IsStagedName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(in.root, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			in.logger.Warn("failed to sweep stale staged file", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// IsStagedName reports whether name has the <uuid>.upload shape.
func IsStagedName(name string) bool {
	base, ok := strings.CutSuffix(name, stagedSuffix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(base)
	return err == nil && len(base) == 36
}

func cleanDeclaredName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if len(name) > maxDeclaredName {
		name = name[:maxDeclaredName]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}
	return name
}

// StagedUpload is one untrusted upload sitting in the staging directory.
// It never outlives a single ingestion attempt.
type StagedUpload struct {
	ID           string
	Path         string
	DeclaredName string
	Size         int64
	CreatedAt    time.Time

	once       sync.Once
	discardErr error
}

// Discard removes the staged file. Calling it again, or on a file that is
// already gone, is not an error.
func (s *StagedUpload) Discard() error {
	s.once.Do(func() {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.discardErr = err
		}
	})
	return s.discardErr
}
