package extract

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ats-optimizer/internal/common/errors"
)

func TestPDFText(t *testing.T) {
	t.Run("empty upload", func(t *testing.T) {
		_, err := PDFText(nil)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})

	t.Run("oversize upload", func(t *testing.T) {
		data := bytes.Repeat([]byte("a"), MaxUploadBytes+1)
		_, err := PDFText(data)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
		assert.Contains(t, err.(*errors.AppError).Message, "5MB")
	})

	t.Run("garbage bytes are not a pdf", func(t *testing.T) {
		_, err := PDFText([]byte("this is definitely not a pdf document at all"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})

	t.Run("truncated pdf header", func(t *testing.T) {
		_, err := PDFText([]byte("%PDF-1.7\n"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	})
}
