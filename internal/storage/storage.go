// Package storage abstracts the object storage services that can host the
// compressed snapshot. A provider is selected by name from configuration;
// aliyun, tencent and qiniu are supported.
package storage

import (
	"io"

	"github.com/indralab/dblite/internal/config"
	apperrors "github.com/indralab/dblite/internal/errors"
)

// Predefined storage errors.
var (
	// ErrObjectNotFound reports that the requested object does not exist in
	// the bucket. Callers rely on this to distinguish a missing snapshot
	// from a transport failure.
	ErrObjectNotFound = apperrors.New(apperrors.ErrStorageObjectNotFound, "object not found in storage")

	// ErrUnsupportedProvider reports an unknown provider name.
	ErrUnsupportedProvider = apperrors.New(apperrors.ErrStorageProviderUnsupported, "unsupported storage provider")
)

// Provider is the object storage provider interface.
type Provider interface {
	// Upload a file to the bucket
	UploadFile(objectKey string, reader io.Reader, contentType string) error

	// Download a file from the bucket
	DownloadFile(objectKey string) (io.ReadCloser, error)

	// Delete a file from the bucket
	DeleteFile(objectKey string) error

	// Check whether a file exists
	FileExists(objectKey string) (bool, error)

	// Get file metadata
	GetFileInfo(objectKey string) (*FileInfo, error)

	// List files under a prefix
	ListFiles(prefix string, maxKeys int) ([]FileInfo, error)

	// Test connectivity and credentials
	TestConnection() error
}

// FileInfo describes an object held in storage.
type FileInfo struct {
	Key          string `json:"key"`           // object key
	Size         int64  `json:"size"`          // object size in bytes
	LastModified string `json:"last_modified"` // last modification time
	ETag         string `json:"etag"`          // ETag
	ContentType  string `json:"content_type"`  // content type
}

// NewProvider creates the provider named in the configuration for the given
// bucket.
func NewProvider(bucket string, cfg *config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "aliyun":
		return NewAliyunOSSProvider(bucket, cfg)
	case "tencent":
		return NewTencentCOSProvider(bucket, cfg)
	case "qiniu":
		return NewQiniuKodoProvider(bucket, cfg)
	default:
		return nil, ErrUnsupportedProvider
	}
}
