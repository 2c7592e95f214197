package minio

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.True(t, IsNotFound(ErrObjectNotFound))
	assert.True(t, IsNotFound(WrapError("StatObject", minio.ErrorResponse{Code: "NoSuchKey"}, "b", "o")))
	assert.False(t, IsNotFound(WrapError("StatObject", minio.ErrorResponse{Code: "AccessDenied"}, "b", "o")))
	assert.False(t, IsNotFound(errors.New("boom")))
}

func TestIsBucketAlreadyExists(t *testing.T) {
	assert.True(t, IsBucketAlreadyExists(minio.ErrorResponse{Code: "BucketAlreadyOwnedByYou"}))
	assert.True(t, IsBucketAlreadyExists(WrapError("EnsureBucket", minio.ErrorResponse{Code: "BucketAlreadyExists"}, "b", "")))
	assert.False(t, IsBucketAlreadyExists(ErrInvalidArgument))
}

func TestErrorMessage(t *testing.T) {
	err := WrapError("RemoveObject", ErrInvalidObjectName, "artifacts", "")
	assert.Equal(t, "minio: RemoveObject artifacts: minio: invalid object name", err.Error())
	assert.ErrorIs(t, err, ErrInvalidObjectName)

	err = WrapError("FPutObject", errors.New("timeout"), "artifacts", "avatars/a.jpg")
	assert.Equal(t, "minio: FPutObject artifacts/avatars/a.jpg: timeout", err.Error())

	err = WrapErrorWithMessage("Ping", errors.New("refused"), "unreachable")
	assert.Equal(t, "minio: Ping (unreachable): refused", err.Error())

	assert.Nil(t, WrapError("x", nil, "", ""))
	assert.Nil(t, WrapErrorWithMessage("x", nil, ""))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(), "disabled mirror needs no credentials")

	cfg.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Endpoint = "localhost:9000"
	cfg.AccessKeyID = "minioadmin"
	cfg.SecretAccessKey = "minioadmin"
	require.NoError(t, cfg.Validate())

	cfg.BucketLookup = "weird"
	assert.Error(t, cfg.Validate())

	cfg.BucketLookup = ""
	cfg.RequestTimeout = 0
	cfg.SetDefaults()
	assert.Equal(t, BucketLookupAuto, cfg.BucketLookup)
	assert.NotZero(t, cfg.RequestTimeout)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "localhost:9000"
	cfg.AccessKeyID = "ak"
	cfg.SecretAccessKey = "sk"
	cfg.UseSSL = false

	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "ingest-artifacts", c.Bucket())

	require.NoError(t, c.Close())
	assert.True(t, c.IsClosed())
	assert.ErrorIs(t, c.RemoveObject(t.Context(), "x"), ErrClientClosed)
}
