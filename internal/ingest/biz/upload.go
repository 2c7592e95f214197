package biz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sniff"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/metrics"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/validator"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
)

const maxUserAgentLen = 512

// Options holds use case settings that are not owned by a pipeline stage.
type Options struct {
	// AllowedTypes applies when a request names no allow-list of its own.
	AllowedTypes []string
}

// VerifyResult reports the sniffed type. OK is false for any content rejection.
type VerifyResult struct {
	OK        bool
	MIME      string
	Extension string
}

// StoreRequest carries one store_upload call.
type StoreRequest struct {
	File         io.Reader
	DeclaredName string
	Folder       string
	Allowed      []string
	EntityType   string
	EntityID     string
	UploaderIP   string
	UserAgent    string
	AdminID      string
	EmployeeID   string
}

// UploadUseCase runs verify, store and delete. Pipelines execute on the
// worker pool; callers block until their own pipeline finishes.
type UploadUseCase struct {
	intake     *quarantine.Intake
	sniffer    *sniff.Sniffer
	transcoder *sanitize.Transcoder
	finalizer  *Finalizer
	repo       ArtifactRepo
	mirror     Mirror
	pool       *workerpool.Pool
	defaults   sniff.AllowList
	logger     *logger.Logger
}

func NewUploadUseCase(
	opts Options,
	intake *quarantine.Intake,
	sniffer *sniff.Sniffer,
	transcoder *sanitize.Transcoder,
	finalizer *Finalizer,
	repo ArtifactRepo,
	mirror Mirror,
	pool *workerpool.Pool,
	log *logger.Logger,
) *UploadUseCase {
	if log == nil {
		log = logger.NewNop()
	}
	return &UploadUseCase{
		intake:     intake,
		sniffer:    sniffer,
		transcoder: transcoder,
		finalizer:  finalizer,
		repo:       repo,
		mirror:     mirror,
		pool:       pool,
		defaults:   sniff.NewAllowList(opts.AllowedTypes...),
		logger:     log.Named("upload"),
	}
}

func (uc *UploadUseCase) allowList(requested []string) sniff.AllowList {
	if len(requested) == 0 {
		return uc.defaults
	}
	return sniff.NewAllowList(requested...)
}

// Verify stages and sniffs the file, then always removes it. Content
// rejections come back as OK=false with a nil error.
func (uc *UploadUseCase) Verify(ctx context.Context, r io.Reader, declaredName string, allowed []string) (*VerifyResult, error) {
	list := uc.allowList(allowed)

	res, err := uc.run(ctx, workerpool.PriorityHigh, func() (interface{}, error) {
		staged, err := uc.intake.Accept(ctx, r, declaredName)
		if err != nil {
			return nil, err
		}
		defer func() { _ = staged.Discard() }()

		detected, err := uc.sniffer.Verify(logger.WithUploadID(ctx, staged.ID), staged, list)
		if err != nil {
			return nil, err
		}
		return detected, nil
	})
	if err != nil {
		uc.observe("verify", "", err)
		if types.IsRejection(err) {
			return &VerifyResult{OK: false}, nil
		}
		return nil, err
	}

	detected := res.(sniff.DetectedType)
	uc.observe("verify", detected.Family().String(), nil)
	return &VerifyResult{OK: true, MIME: detected.MIME(), Extension: detected.Extension()}, nil
}

// Store runs intake, sniff, transcode and finalize for one upload.
func (uc *UploadUseCase) Store(ctx context.Context, req StoreRequest) (*StoredArtifact, error) {
	if err := ValidateFolder(req.Folder); err != nil {
		return nil, err
	}
	uploader, err := types.NewUploader(req.AdminID, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	meta := Metadata{
		Uploader:   uploader,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		UploaderIP: validator.GetIPOrDefault(req.UploaderIP, ""),
		UserAgent:  validator.TruncateUserAgent(req.UserAgent, maxUserAgentLen),
	}
	list := uc.allowList(req.Allowed)

	family := ""
	res, err := uc.run(ctx, workerpool.PriorityNormal, func() (interface{}, error) {
		staged, err := uc.intake.Accept(ctx, req.File, req.DeclaredName)
		if err != nil {
			return nil, err
		}
		ctx := logger.WithUploadID(ctx, staged.ID)

		detected, err := uc.sniffer.Verify(ctx, staged, list)
		if err != nil {
			return nil, err
		}
		family = detected.Family().String()

		out, err := uc.transcoder.Transcode(ctx, staged, detected, req.Folder)
		if err != nil {
			return nil, err
		}
		return uc.finalizer.Finalize(ctx, out, staged, meta)
	})
	uc.observe("store", family, err)
	if err != nil {
		return nil, err
	}
	return res.(*StoredArtifact), nil
}

// Delete removes a stored artifact's bytes, mirror copy and audit record.
// It reports whether anything was removed; a second call returns false and
// no error. When id is given it must match the recorded artifact.
func (uc *UploadUseCase) Delete(ctx context.Context, filename, folder, id string) (bool, error) {
	if err := ValidateFolder(folder); err != nil {
		return false, err
	}
	if err := ValidateFilename(filename); err != nil {
		return false, err
	}

	log := uc.logger.WithContext(ctx).With(zap.String("folder", folder), zap.String("filename", filename))

	art, err := uc.repo.GetByLocation(ctx, folder, filename)
	switch {
	case errors.Is(err, ErrArtifactNotFound):
		art = nil
	case err != nil:
		return false, fmt.Errorf("look up artifact: %v: %w", err, types.ErrStorageIO)
	}
	if art != nil && id != "" && art.ID != id {
		log.Warn("delete id does not match recorded artifact", zap.String("id", id), zap.String("artifact_id", art.ID))
		return false, ErrArtifactNotFound
	}

	dir, err := uc.transcoder.FolderPath(folder)
	if err != nil {
		return false, err
	}
	removed := false
	path := filepath.Join(dir, filename)
	switch err := os.Remove(path); {
	case err == nil:
		removed = true
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("remove artifact: %v: %w", err, types.ErrStorageIO)
	}

	if uc.mirror != nil {
		if err := uc.mirror.Remove(ctx, folder+"/"+filename); err != nil {
			return false, fmt.Errorf("remove mirror object: %v: %w", err, types.ErrStorageIO)
		}
	}

	if art != nil {
		if err := uc.repo.Delete(ctx, art.ID); err != nil {
			return false, fmt.Errorf("delete record: %v: %w", err, types.ErrStorageIO)
		}
		removed = true
	}

	uc.observe("delete", "", nil)
	log.Info("artifact deleted", zap.Bool("removed", removed))
	return removed, nil
}

// run executes task on the pool and waits for its single result.
func (uc *UploadUseCase) run(ctx context.Context, priority workerpool.Priority, task func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := <-uc.pool.SubmitWithPriorityAndResult(priority, func() (interface{}, error) {
		// queued long enough for the caller to give up
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return task()
	})
	metrics.ObserveStage("pipeline", start)
	return res.Data, res.Error
}

func (uc *UploadUseCase) observe(operation, family string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case types.IsRejection(err):
		outcome = "rejected"
		metrics.RejectionsTotal.WithLabelValues(types.Kind(err)).Inc()
	default:
		outcome = "failed"
	}
	if family == "" {
		family = types.FamilyUnknown.String()
	}
	metrics.UploadsTotal.WithLabelValues(operation, outcome, family).Inc()
}
