package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/indralab/dblite/internal/config"
)

// TencentCOSProvider implements Provider on top of Tencent COS.
type TencentCOSProvider struct {
	client *cos.Client
}

// NewTencentCOSProvider creates a Tencent COS provider for the given bucket.
func NewTencentCOSProvider(bucketName string, cfg *config.StorageConfig) (*TencentCOSProvider, error) {
	bucketURL := fmt.Sprintf("https://%s.cos.%s.myqcloud.com", bucketName, cfg.Region)
	if cfg.Endpoint != "" {
		bucketURL = cfg.Endpoint
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		},
	})

	return &TencentCOSProvider{client: client}, nil
}

// UploadFile uploads a file to Tencent COS.
func (p *TencentCOSProvider) UploadFile(objectKey string, reader io.Reader, contentType string) error {
	options := &cos.ObjectPutOptions{}
	if contentType != "" {
		options.ObjectPutHeaderOptions = &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		}
	}

	if _, err := p.client.Object.Put(context.Background(), objectKey, reader, options); err != nil {
		return fmt.Errorf("failed to upload file to tencent cos: %w", err)
	}

	return nil
}

// DownloadFile downloads a file from Tencent COS.
func (p *TencentCOSProvider) DownloadFile(objectKey string) (io.ReadCloser, error) {
	resp, err := p.client.Object.Get(context.Background(), objectKey, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to download file from tencent cos: %w", err)
	}

	return resp.Body, nil
}

// DeleteFile deletes a file from Tencent COS.
func (p *TencentCOSProvider) DeleteFile(objectKey string) error {
	if _, err := p.client.Object.Delete(context.Background(), objectKey); err != nil {
		return fmt.Errorf("failed to delete file from tencent cos: %w", err)
	}

	return nil
}

// FileExists checks whether a file exists in Tencent COS.
func (p *TencentCOSProvider) FileExists(objectKey string) (bool, error) {
	_, err := p.client.Object.Head(context.Background(), objectKey, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence in tencent cos: %w", err)
	}

	return true, nil
}

// GetFileInfo retrieves object metadata from Tencent COS.
func (p *TencentCOSProvider) GetFileInfo(objectKey string) (*FileInfo, error) {
	resp, err := p.client.Object.Head(context.Background(), objectKey, nil)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get file info from tencent cos: %w", err)
	}

	return &FileInfo{
		Key:          objectKey,
		Size:         resp.ContentLength,
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         strings.Trim(resp.Header.Get("Etag"), "\""),
		ContentType:  resp.Header.Get("Content-Type"),
	}, nil
}

// ListFiles lists objects under a prefix in Tencent COS.
func (p *TencentCOSProvider) ListFiles(prefix string, maxKeys int) ([]FileInfo, error) {
	options := &cos.BucketGetOptions{
		Prefix:  prefix,
		MaxKeys: maxKeys,
	}

	result, _, err := p.client.Bucket.Get(context.Background(), options)
	if err != nil {
		return nil, fmt.Errorf("failed to list files from tencent cos: %w", err)
	}

	var files []FileInfo
	for _, object := range result.Contents {
		files = append(files, FileInfo{
			Key:          object.Key,
			Size:         int64(object.Size),
			LastModified: object.LastModified,
			ETag:         strings.Trim(object.ETag, "\""),
			ContentType:  "", // the COS list API does not return a content type
		})
	}

	return files, nil
}

// TestConnection verifies connectivity and credentials.
func (p *TencentCOSProvider) TestConnection() error {
	if _, err := p.client.Bucket.Head(context.Background()); err != nil {
		return fmt.Errorf("failed to test tencent cos connection: %w", err)
	}

	return nil
}
