package storage

import (
	"fmt"
	"testing"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indralab/dblite/internal/config"
	apperrors "github.com/indralab/dblite/internal/errors"
)

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider("bucket", &config.StorageConfig{Provider: "dropbox"})
	require.Error(t, err)
	assert.Equal(t, ErrUnsupportedProvider, err)
	assert.Equal(t, apperrors.ErrStorageProviderUnsupported, apperrors.CodeOf(err))
}

func TestSentinelCodes(t *testing.T) {
	assert.Equal(t, apperrors.ErrStorageObjectNotFound, apperrors.CodeOf(ErrObjectNotFound))
	assert.Equal(t, apperrors.ErrStorageProviderUnsupported, apperrors.CodeOf(ErrUnsupportedProvider))
}

func TestIsAliyunNotFound(t *testing.T) {
	t.Run("404 service error", func(t *testing.T) {
		assert.True(t, isAliyunNotFound(oss.ServiceError{StatusCode: 404, Code: "NoSuchKey"}))
	})

	t.Run("other service error", func(t *testing.T) {
		assert.False(t, isAliyunNotFound(oss.ServiceError{StatusCode: 403, Code: "AccessDenied"}))
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("download failed: %w", oss.ServiceError{StatusCode: 404})
		assert.True(t, isAliyunNotFound(err))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.False(t, isAliyunNotFound(fmt.Errorf("connection refused")))
	})
}

func TestIsQiniuNotFound(t *testing.T) {
	assert.True(t, isQiniuNotFound(fmt.Errorf("no such file or directory")))
	assert.False(t, isQiniuNotFound(fmt.Errorf("bad token")))
	assert.False(t, isQiniuNotFound(nil))
}
