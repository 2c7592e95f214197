package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/ingesttest"
)

func TestVerifyPDF(t *testing.T) {
	v := NewFitzVerifier()

	require.NoError(t, v.VerifyPDF(ingesttest.PlainPDF(), 1))

	err := v.VerifyPDF(ingesttest.PlainPDF(), 2)
	assert.ErrorContains(t, err, "page count mismatch")

	assert.Error(t, v.VerifyPDF(ingesttest.CorruptPDF(), 1))
}
