package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pdf: broken xref at offset 42")
	err := Wrap(cause, ErrUploadCorrupt)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrUploadCorrupt, ExtractCode(err))
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus())
	assert.Empty(t, PublicDetails(err), "cause must not become a public detail")
}

func TestWrapExistingAppError(t *testing.T) {
	inner := New(ErrUploadInvalidFolder, "folder")
	outer := Wrap(inner, ErrInternalServer)

	assert.Same(t, inner, outer)
	assert.True(t, Is(outer, ErrUploadInvalidFolder))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternalServer))
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(424242))
	assert.Equal(t, ErrInternalServer, ExtractCode(errors.New("plain")))
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "Invalid filename", FormatError(ErrUploadInvalidFilename))
	assert.Equal(t, "Bad request: missing file", FormatError(ErrBadRequest, "missing file"))
	assert.True(t, IsClientError(ErrUploadTooLarge))
	assert.False(t, IsClientError(ErrUploadStorage))
}
