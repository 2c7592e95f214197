// Package sniff derives the true type of a staged upload from its leading
// bytes and checks it against a caller's allow-list. Client-declared names
// and content types play no part.
package sniff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/metrics"
)

// DefaultSniffBytes is how much of a file the sniffer reads.
const DefaultSniffBytes = 3072

// ErrOutsideStaging is returned for paths that do not resolve to a regular
// file inside the staging root. Such paths are never opened or deleted.
var ErrOutsideStaging = errors.New("path is not a staged file")

// DetectedType is the content-derived type of a staged upload. Only the
// sniffer can produce a non-zero value, so holding one proves the bytes were
// inspected.
type DetectedType struct {
	ext    string
	mime   string
	family types.Family
}

// Extension is the canonical extension without a dot, e.g. "jpg".
func (d DetectedType) Extension() string { return d.ext }

// MIME is the canonical MIME type without parameters.
func (d DetectedType) MIME() string { return d.mime }

// Family selects the sanitizing strategy.
func (d DetectedType) Family() types.Family { return d.family }

// IsZero reports whether d was never produced by a sniffer.
func (d DetectedType) IsZero() bool { return d.mime == "" }

func (d DetectedType) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.mime, d.ext, d.family)
}

// Options configures a Sniffer.
type Options struct {
	StagingRoot string
	SniffBytes  int
}

// Sniffer inspects staged files.
type Sniffer struct {
	root       string
	sniffBytes int
	logger     *logger.Logger
}

// New returns a Sniffer confined to opts.StagingRoot.
func New(opts Options, log *logger.Logger) (*Sniffer, error) {
	if opts.StagingRoot == "" {
		return nil, errors.New("sniff: staging root is required")
	}
	if opts.SniffBytes <= 0 {
		opts.SniffBytes = DefaultSniffBytes
	}
	if log == nil {
		log = logger.NewNop()
	}

	root, err := filepath.Abs(opts.StagingRoot)
	if err != nil {
		return nil, fmt.Errorf("sniff: resolve staging root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	// mimetype truncates input to its global limit before matching
	mimetype.SetLimit(uint32(opts.SniffBytes))

	return &Sniffer{
		root:       root,
		sniffBytes: opts.SniffBytes,
		logger:     log.Named("sniff"),
	}, nil
}

// Verify detects the type of staged and checks it against allowed. On any
// rejection the staged file is deleted before returning. Paths outside the
// staging root are refused without being touched.
func (s *Sniffer) Verify(ctx context.Context, staged *quarantine.StagedUpload, allowed AllowList) (DetectedType, error) {
	defer metrics.ObserveStage("sniff", time.Now())

	detected, err := s.detect(staged.Path)
	if errors.Is(err, ErrOutsideStaging) {
		s.logger.Warn("refusing to sniff file outside staging root",
			zap.String("upload_id", staged.ID),
			zap.String("path", staged.Path),
		)
		return DetectedType{}, fmt.Errorf("%w: %w", err, types.ErrUnsupportedType)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = s.check(detected, allowed)
	}

	if err != nil {
		if discardErr := staged.Discard(); discardErr != nil {
			s.logger.Error("failed to delete rejected staged file",
				zap.String("upload_id", staged.ID),
				zap.Error(discardErr),
			)
		}
		s.logger.WithContext(ctx).Warn("upload rejected by sniffer",
			zap.String("upload_id", staged.ID),
			zap.String("detected", detected.mime),
			zap.String("family", detected.family.String()),
			zap.Error(err),
		)
		return DetectedType{}, err
	}

	s.logger.WithContext(ctx).Info("upload sniffed",
		zap.String("upload_id", staged.ID),
		zap.String("mime", detected.mime),
		zap.String("family", detected.family.String()),
	)
	return detected, nil
}

func (s *Sniffer) check(d DetectedType, allowed AllowList) error {
	switch {
	case !d.family.Transcodable():
		return fmt.Errorf("content is %s (%s): %w", d.mime, d.family, types.ErrUnsupportedType)
	case !allowed.Allows(d):
		return fmt.Errorf("content type %s not allowed: %w", d.mime, types.ErrUnsupportedType)
	}
	return nil
}

func (s *Sniffer) detect(path string) (DetectedType, error) {
	full, info, err := s.resolve(path)
	if err != nil {
		return DetectedType{}, err
	}

	f, err := os.Open(full)
	if err != nil {
		return DetectedType{}, fmt.Errorf("open staged file: %v: %w", err, types.ErrStorageIO)
	}
	defer f.Close()

	// the file opened must be the one that passed the containment checks
	opened, err := f.Stat()
	if err != nil || !os.SameFile(info, opened) {
		return DetectedType{}, ErrOutsideStaging
	}
	if opened.Size() == 0 {
		return DetectedType{}, fmt.Errorf("empty file: %w", types.ErrUnsupportedType)
	}

	buf := make([]byte, s.sniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return DetectedType{}, fmt.Errorf("read staged file: %v: %w", err, types.ErrStorageIO)
	}

	return classify(mimetype.Detect(buf[:n])), nil
}

// resolve returns the cleaned absolute path of a regular, non-symlink file
// directly or indirectly under the staging root.
func (s *Sniffer) resolve(path string) (string, os.FileInfo, error) {
	if path == "" {
		return "", nil, ErrOutsideStaging
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, ErrOutsideStaging
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", nil, ErrOutsideStaging
	}
	full := filepath.Join(dir, filepath.Base(abs))

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", nil, ErrOutsideStaging
	}

	info, err := os.Lstat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil, ErrOutsideStaging
	}
	return full, info, nil
}
