// Package sanitize rebuilds sniffed uploads into fresh files that carry no
// metadata or active content. Every strategy writes a new file under a
// generated name; the staged input is never renamed into place.
package sanitize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sniff"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/metrics"
)

const storageDirMode = 0o755

// PageVerifier opens a rebuilt PDF with an independent renderer and checks
// its page count.
type PageVerifier interface {
	VerifyPDF(data []byte, wantPages int) error
}

// Options configures a Transcoder.
type Options struct {
	StorageRoot   string
	MaxPixels     int64
	MaxZipEntries int
	JPEGQuality   int
}

// Output describes a sanitized file that has been written but not yet finalized.
type Output struct {
	Path      string
	Folder    string
	Filename  string
	Extension string
	MIME      string
	Size      int64
	// Converted is set when the written type differs from the detected one.
	Converted bool
}

// Transcoder dispatches on the detected family.
type Transcoder struct {
	root     string
	opts     Options
	verifier PageVerifier
	now      func() time.Time
	logger   *logger.Logger
}

// New returns a Transcoder writing under opts.StorageRoot. verifier may be nil.
func New(opts Options, verifier PageVerifier, log *logger.Logger) (*Transcoder, error) {
	if opts.StorageRoot == "" {
		return nil, errors.New("sanitize: storage root is required")
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = 50_000_000
	}
	if opts.MaxZipEntries <= 0 {
		opts.MaxZipEntries = 10_000
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	if log == nil {
		log = logger.NewNop()
	}

	root, err := filepath.Abs(opts.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("sanitize: resolve storage root: %w", err)
	}
	if err := os.MkdirAll(root, storageDirMode); err != nil {
		return nil, fmt.Errorf("sanitize: create storage root: %w", err)
	}

	return &Transcoder{
		root:     root,
		opts:     opts,
		verifier: verifier,
		now:      time.Now,
		logger:   log.Named("sanitize"),
	}, nil
}

// Root returns the absolute storage root.
func (t *Transcoder) Root() string {
	return t.root
}

// FolderPath returns the absolute directory of folder, refusing anything
// that would land outside the storage root.
func (t *Transcoder) FolderPath(folder string) (string, error) {
	dir := filepath.Join(t.root, filepath.FromSlash(folder))
	rel, err := filepath.Rel(t.root, dir)
	if err != nil || folder == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("folder %q escapes storage root: %w", folder, types.ErrStorageIO)
	}
	return dir, nil
}

// strategy writes the sanitized form of in to w.
type strategy func(ctx context.Context, in *os.File, size int64, w io.Writer) error

// Transcode writes a sanitized copy of staged into folder. On failure the
// staged file and anything written for this attempt are removed before the
// error is returned. On success the staged file is left for the finalizer.
func (t *Transcoder) Transcode(ctx context.Context, staged *quarantine.StagedUpload, detected sniff.DetectedType, folder string) (out *Output, err error) {
	start := time.Now()
	defer metrics.ObserveStage("transcode", start)

	log := t.logger.WithContext(ctx).With(
		zap.String("upload_id", staged.ID),
		zap.String("family", detected.Family().String()),
	)

	defer func() {
		if err == nil {
			return
		}
		if discardErr := staged.Discard(); discardErr != nil {
			log.Error("failed to remove staged file after transcode failure", zap.Error(discardErr))
		}
		log.Warn("transcode failed", zap.String("kind", types.Kind(err)), zap.Error(err))
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run, ext, mime, err := t.plan(detected)
	if err != nil {
		return nil, err
	}

	dir, err := t.FolderPath(folder)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, storageDirMode); err != nil {
		return nil, fmt.Errorf("create folder: %v: %w", err, types.ErrStorageIO)
	}

	in, err := os.Open(staged.Path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %v: %w", err, types.ErrStorageIO)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat staged file: %v: %w", err, types.ErrStorageIO)
	}

	name := GenerateFilename(t.now(), ext)
	size, err := writeAtomic(dir, name, func(w io.Writer) error {
		return guard(func() error { return run(ctx, in, info.Size(), w) })
	})
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name)
	if err := ctx.Err(); err != nil {
		removeQuietly(log, path)
		return nil, err
	}

	fields := []zap.Field{
		zap.String("filename", name),
		zap.String("mime", mime),
		zap.Int64("size", size),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch detected.Family() {
	case types.FamilyLegacyOffice, types.FamilyPlainText:
		// stored byte-for-byte, content is not inspected
		fields = append(fields, zap.Bool("residual_risk", true))
	}
	log.Info("upload transcoded", fields...)

	return &Output{
		Path:      path,
		Folder:    folder,
		Filename:  name,
		Extension: ext,
		MIME:      mime,
		Size:      size,
		Converted: ext != detected.Extension(),
	}, nil
}

// plan picks the strategy and output type. The switch is closed over every
// family; archive and unknown have no strategy.
func (t *Transcoder) plan(d sniff.DetectedType) (strategy, string, string, error) {
	if d.IsZero() {
		return nil, "", "", fmt.Errorf("type was never sniffed: %w", types.ErrUnsupportedType)
	}

	switch d.Family() {
	case types.FamilyRasterImage:
		ext, mime := rasterOutput(d.Extension())
		return t.rasterStrategy(d.Extension(), ext), ext, mime, nil
	case types.FamilyAnimatedImage:
		return t.animatedStrategy, d.Extension(), d.MIME(), nil
	case types.FamilyPDFDocument:
		return t.pdfStrategy, d.Extension(), d.MIME(), nil
	case types.FamilyOOXMLPackage:
		return t.ooxmlStrategy, d.Extension(), d.MIME(), nil
	case types.FamilyLegacyOffice, types.FamilyPlainText:
		return copyStrategy, d.Extension(), d.MIME(), nil
	case types.FamilyArchive, types.FamilyUnknown:
		return nil, "", "", fmt.Errorf("no strategy for %s: %w", d.Family(), types.ErrUnsupportedType)
	default:
		return nil, "", "", fmt.Errorf("unhandled family %d: %w", d.Family(), types.ErrUnsupportedType)
	}
}

// guard turns a parser panic into CorruptInput.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v: %w", r, types.ErrCorruptInput)
		}
	}()
	return fn()
}

func removeQuietly(log *logger.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("failed to remove output", zap.String("path", path), zap.Error(err))
	}
}

func copyStrategy(ctx context.Context, in *os.File, _ int64, w io.Writer) error {
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %v: %w", err, types.ErrStorageIO)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("copy: %v: %w", err, types.ErrStorageIO)
	}
	return ctx.Err()
}
