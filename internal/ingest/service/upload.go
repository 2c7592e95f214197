package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/biz"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/types"
	apperrors "github.com/lk2023060901/file-ingest-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/response"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
)

// multipart envelope allowance on top of the file limit
const formOverhead = 1 << 20

type UploadService struct {
	uc       *biz.UploadUseCase
	maxBytes int64
	logger   *logger.Logger
}

func NewUploadService(uc *biz.UploadUseCase, maxBytes int64, log *logger.Logger) *UploadService {
	return &UploadService{
		uc:       uc,
		maxBytes: maxBytes,
		logger:   log.Named("upload-service"),
	}
}

type VerifyResponse struct {
	OK        bool   `json:"ok"`
	MIME      string `json:"mime,omitempty"`
	Extension string `json:"extension,omitempty"`
}

type StoreResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Folder   string `json:"folder"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// Verify POST /uploads/verify
func (s *UploadService) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	file, name, err := s.openFile(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer file.Close()

	res, err := s.uc.Verify(ctx, file, name, c.PostFormArray("allowed"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, VerifyResponse{OK: res.OK, MIME: res.MIME, Extension: res.Extension})
}

// Store POST /uploads
func (s *UploadService) Store(c *gin.Context) {
	ctx := c.Request.Context()

	file, name, err := s.openFile(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer file.Close()

	art, err := s.uc.Store(ctx, biz.StoreRequest{
		File:         file,
		DeclaredName: name,
		Folder:       c.PostForm("folder"),
		Allowed:      c.PostFormArray("allowed"),
		EntityType:   c.PostForm("entity_type"),
		EntityID:     c.PostForm("entity_id"),
		UploaderIP:   c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		AdminID:      c.PostForm("admin_id"),
		EmployeeID:   c.PostForm("employee_id"),
	})
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Created(c, StoreResponse{ID: art.ID, Filename: art.Filename, Folder: art.Folder})
}

// Delete DELETE /uploads/<folder>/<filename>?id=
func (s *UploadService) Delete(c *gin.Context) {
	location := strings.TrimPrefix(c.Param("location"), "/")
	folder, filename := path.Split(location)
	folder = strings.TrimSuffix(folder, "/")

	deleted, err := s.uc.Delete(c.Request.Context(), filename, folder, c.Query("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	response.Success(c, DeleteResponse{Deleted: deleted})
}

func (s *UploadService) RegisterRoutes(r *gin.RouterGroup) {
	uploads := r.Group("/uploads")
	{
		uploads.POST("/verify", s.Verify)
		uploads.POST("", s.Store)
		uploads.DELETE("/*location", s.Delete)
	}
}

func (s *UploadService) openFile(c *gin.Context) (io.ReadCloser, string, error) {
	if s.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes+formOverhead)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", types.ErrPayloadTooLarge
		}
		return nil, "", apperrors.Wrap(err, apperrors.ErrInvalidParams, "multipart field \"file\" is required")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.ErrBadRequest)
	}
	return f, fh.Filename, nil
}

// handleError logs the detailed kind and answers with a generic code.
func (s *UploadService) handleError(c *gin.Context, err error) {
	code := errorCode(err)
	log := s.logger.WithContext(c.Request.Context())
	if apperrors.IsClientError(code) {
		log.Warn("upload request rejected", zap.Int("code", code), zap.String("kind", types.Kind(err)), zap.Error(err))
	} else {
		log.Error("upload request failed", zap.Int("code", code), zap.String("kind", types.Kind(err)), zap.Error(err))
	}
	response.HandleError(c, apperrors.Wrap(err, code))
}

func errorCode(err error) int {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Code
	case errors.Is(err, types.ErrPayloadTooLarge):
		return apperrors.ErrUploadTooLarge
	case errors.Is(err, types.ErrUnsupportedType):
		return apperrors.ErrUploadUnsupportedType
	case errors.Is(err, types.ErrCorruptInput):
		return apperrors.ErrUploadCorrupt
	case errors.Is(err, types.ErrTranscodeFailure):
		return apperrors.ErrUploadProcessing
	case errors.Is(err, types.ErrStorageIO):
		return apperrors.ErrUploadStorage
	case errors.Is(err, biz.ErrInvalidFolder):
		return apperrors.ErrUploadInvalidFolder
	case errors.Is(err, types.ErrInvalidUploader):
		return apperrors.ErrUploadInvalidUploader
	case errors.Is(err, biz.ErrInvalidFilename):
		return apperrors.ErrUploadInvalidFilename
	case errors.Is(err, biz.ErrArtifactNotFound):
		return apperrors.ErrNotFound
	case errors.Is(err, workerpool.ErrQueueFull), errors.Is(err, workerpool.ErrPoolClosed):
		return apperrors.ErrServiceUnavail
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ErrRequestCanceled
	default:
		return apperrors.ErrInternalServer
	}
}
