package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/indralab/dblite/internal/config"
)

// AliyunOSSProvider implements Provider on top of Aliyun OSS.
type AliyunOSSProvider struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
}

// NewAliyunOSSProvider creates an Aliyun OSS provider for the given bucket.
func NewAliyunOSSProvider(bucketName string, cfg *config.StorageConfig) (*AliyunOSSProvider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://oss-%s.aliyuncs.com", cfg.Region)
	}

	client, err := oss.New(endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun oss client: %w", err)
	}

	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	return &AliyunOSSProvider{
		client:     client,
		bucket:     bucket,
		bucketName: bucketName,
	}, nil
}

// isAliyunNotFound reports whether err is an OSS 404 response.
func isAliyunNotFound(err error) bool {
	var svcErr oss.ServiceError
	return errors.As(err, &svcErr) && svcErr.StatusCode == 404
}

// UploadFile uploads a file to Aliyun OSS.
func (p *AliyunOSSProvider) UploadFile(objectKey string, reader io.Reader, contentType string) error {
	options := []oss.Option{}
	if contentType != "" {
		options = append(options, oss.ContentType(contentType))
	}

	if err := p.bucket.PutObject(objectKey, reader, options...); err != nil {
		return fmt.Errorf("failed to upload file to aliyun oss: %w", err)
	}

	return nil
}

// DownloadFile downloads a file from Aliyun OSS.
func (p *AliyunOSSProvider) DownloadFile(objectKey string) (io.ReadCloser, error) {
	body, err := p.bucket.GetObject(objectKey)
	if err != nil {
		if isAliyunNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download file from aliyun oss: %w", err)
	}

	return body, nil
}

// DeleteFile deletes a file from Aliyun OSS.
func (p *AliyunOSSProvider) DeleteFile(objectKey string) error {
	if err := p.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete file from aliyun oss: %w", err)
	}

	return nil
}

// FileExists checks whether a file exists in Aliyun OSS.
func (p *AliyunOSSProvider) FileExists(objectKey string) (bool, error) {
	exists, err := p.bucket.IsObjectExist(objectKey)
	if err != nil {
		return false, fmt.Errorf("failed to check file existence in aliyun oss: %w", err)
	}

	return exists, nil
}

// GetFileInfo retrieves object metadata from Aliyun OSS.
func (p *AliyunOSSProvider) GetFileInfo(objectKey string) (*FileInfo, error) {
	meta, err := p.bucket.GetObjectMeta(objectKey)
	if err != nil {
		if isAliyunNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get file info from aliyun oss: %w", err)
	}

	var size int64
	if sizeStr := meta.Get("Content-Length"); sizeStr != "" {
		fmt.Sscanf(sizeStr, "%d", &size)
	}

	return &FileInfo{
		Key:          objectKey,
		Size:         size,
		LastModified: meta.Get("Last-Modified"),
		ETag:         strings.Trim(meta.Get("Etag"), "\""),
		ContentType:  meta.Get("Content-Type"),
	}, nil
}

// ListFiles lists objects under a prefix in Aliyun OSS.
func (p *AliyunOSSProvider) ListFiles(prefix string, maxKeys int) ([]FileInfo, error) {
	options := []oss.Option{
		oss.Prefix(prefix),
		oss.MaxKeys(maxKeys),
	}

	lsRes, err := p.bucket.ListObjects(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files from aliyun oss: %w", err)
	}

	var files []FileInfo
	for _, object := range lsRes.Objects {
		files = append(files, FileInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified.Format(time.RFC3339),
			ETag:         strings.Trim(object.ETag, "\""),
			ContentType:  object.Type,
		})
	}

	return files, nil
}

// TestConnection verifies connectivity and credentials.
func (p *AliyunOSSProvider) TestConnection() error {
	if _, err := p.client.GetBucketInfo(p.bucketName); err != nil {
		return fmt.Errorf("failed to test aliyun oss connection: %w", err)
	}

	return nil
}
