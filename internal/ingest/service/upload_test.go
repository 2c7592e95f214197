package service

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/biz"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/ingesttest"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/quarantine"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sanitize"
	"github.com/lk2023060901/file-ingest-backend/internal/ingest/sniff"
	apperrors "github.com/lk2023060901/file-ingest-backend/internal/pkg/errors"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/workerpool"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[string]*biz.StoredArtifact
}

func (r *memRepo) Create(_ context.Context, a *biz.StoredArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[a.ID] = a
	return nil
}

func (r *memRepo) GetByLocation(_ context.Context, folder, filename string) (*biz.StoredArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Folder == folder && a.Filename == filename {
			return a, nil
		}
	}
	return nil, biz.ErrArtifactNotFound
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, maxBytes int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	intake, err := quarantine.NewIntake(quarantine.Options{StagingDir: filepath.Join(dir, "staging"), MaxBytes: maxBytes}, nil)
	require.NoError(t, err)
	sniffer, err := sniff.New(sniff.Options{StagingRoot: intake.Root()}, nil)
	require.NoError(t, err)
	transcoder, err := sanitize.New(sanitize.Options{StorageRoot: filepath.Join(dir, "storage")}, nil, nil)
	require.NoError(t, err)

	repo := &memRepo{rows: map[string]*biz.StoredArtifact{}}
	finalizer, err := biz.NewFinalizer(filepath.Join(dir, "quarantine"), repo, nil, nil, nil)
	require.NoError(t, err)

	pool, err := workerpool.New(&workerpool.Config{Workers: 2, QueueSize: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	uc := biz.NewUploadUseCase(biz.Options{AllowedTypes: []string{"image/*"}},
		intake, sniffer, transcoder, finalizer, repo, nil, pool, nil)

	router := gin.New()
	NewUploadService(uc, maxBytes, logger.NewNop()).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func multipartBody(t *testing.T, fields map[string]string, allowed []string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, a := range allowed {
		require.NoError(t, w.WriteField("allowed", a))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "avatar.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, router *gin.Engine, method, target string, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestVerifyEndpoint(t *testing.T) {
	router := newRouter(t, 1<<20)

	body, ct := multipartBody(t, nil, []string{"png"}, ingesttest.PNG(4, 4))
	rec, env := do(t, router, http.MethodPost, "/api/v1/uploads/verify", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)

	var res VerifyResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, VerifyResponse{OK: true, MIME: "image/png", Extension: "png"}, res)

	body, ct = multipartBody(t, nil, []string{"png"}, ingesttest.Executable())
	rec, env = do(t, router, http.MethodPost, "/api/v1/uploads/verify", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.OK)
}

func TestStoreAndDeleteEndpoints(t *testing.T) {
	router := newRouter(t, 1<<20)

	body, ct := multipartBody(t, map[string]string{"folder": "upload/avatar", "admin_id": "7"}, nil, ingesttest.PNG(4, 4))
	rec, env := do(t, router, http.MethodPost, "/api/v1/uploads", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var stored StoreResponse
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Equal(t, "upload/avatar", stored.Folder)
	assert.True(t, sanitize.IsGeneratedFilename(stored.Filename))

	target := "/api/v1/uploads/upload/avatar/" + stored.Filename + "?id=" + stored.ID
	for _, want := range []bool{true, false} {
		rec, env = do(t, router, http.MethodDelete, target, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var res DeleteResponse
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, want, res.Deleted)
	}
}

func TestStoreEndpoint_Errors(t *testing.T) {
	router := newRouter(t, 4096)

	tests := []struct {
		name   string
		fields map[string]string
		file   []byte
		status int
		code   int
	}{
		{"spoofed type", map[string]string{"folder": "upload", "admin_id": "1"}, ingesttest.Executable(), http.StatusUnsupportedMediaType, apperrors.ErrUploadUnsupportedType},
		{"bad folder", map[string]string{"folder": "../etc", "admin_id": "1"}, ingesttest.PNG(2, 2), http.StatusBadRequest, apperrors.ErrUploadInvalidFolder},
		{"no uploader", map[string]string{"folder": "upload"}, ingesttest.PNG(2, 2), http.StatusBadRequest, apperrors.ErrUploadInvalidUploader},
		{"too large", map[string]string{"folder": "upload", "admin_id": "1"}, append(ingesttest.PNG(2, 2), make([]byte, 8192)...), http.StatusRequestEntityTooLarge, apperrors.ErrUploadTooLarge},
		{"missing file", map[string]string{"folder": "upload", "admin_id": "1"}, nil, http.StatusBadRequest, apperrors.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, nil, tt.file)
			rec, env := do(t, router, http.MethodPost, "/api/v1/uploads", body, ct)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, env.Code)
			assert.NotContains(t, env.Message, "mimetype", "parser details never reach clients")
		})
	}
}

func TestDeleteEndpoint_InvalidFilename(t *testing.T) {
	router := newRouter(t, 1<<20)

	rec, env := do(t, router, http.MethodDelete, "/api/v1/uploads/upload/avatar/passwd", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.ErrUploadInvalidFilename, env.Code)
}
