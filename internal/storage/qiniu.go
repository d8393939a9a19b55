package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qiniu/go-sdk/v7/auth/qbox"
	qiniustorage "github.com/qiniu/go-sdk/v7/storage"

	"github.com/indralab/dblite/internal/config"
)

// QiniuKodoProvider implements Provider on top of Qiniu Kodo.
type QiniuKodoProvider struct {
	mac          *qbox.Mac
	bucketName   string
	bucketDomain string
	region       *qiniustorage.Region
}

// NewQiniuKodoProvider creates a Qiniu Kodo provider for the given bucket.
func NewQiniuKodoProvider(bucketName string, cfg *config.StorageConfig) (*QiniuKodoProvider, error) {
	mac := qbox.NewMac(cfg.AccessKey, cfg.SecretKey)

	region, err := qiniustorage.GetRegion(cfg.AccessKey, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get qiniu region: %w", err)
	}

	bucketDomain := cfg.Endpoint
	if bucketDomain == "" {
		bucketDomain = fmt.Sprintf("%s.%s", bucketName, region.RsHost)
	}

	return &QiniuKodoProvider{
		mac:          mac,
		bucketName:   bucketName,
		bucketDomain: bucketDomain,
		region:       region,
	}, nil
}

// bucketManager returns a manager bound to the provider region.
func (p *QiniuKodoProvider) bucketManager() *qiniustorage.BucketManager {
	return qiniustorage.NewBucketManager(p.mac, &qiniustorage.Config{
		Region: p.region,
	})
}

// isQiniuNotFound reports whether err is a Kodo missing-entry response.
func isQiniuNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}

// UploadFile uploads a file to Qiniu Kodo.
func (p *QiniuKodoProvider) UploadFile(objectKey string, reader io.Reader, contentType string) error {
	putPolicy := qiniustorage.PutPolicy{
		Scope: fmt.Sprintf("%s:%s", p.bucketName, objectKey),
	}
	upToken := putPolicy.UploadToken(p.mac)

	cfg := qiniustorage.Config{
		Region:        p.region,
		UseHTTPS:      true,
		UseCdnDomains: false,
	}

	formUploader := qiniustorage.NewFormUploader(&cfg)
	ret := qiniustorage.PutRet{}

	putExtra := qiniustorage.PutExtra{}
	if contentType != "" {
		putExtra.MimeType = contentType
	}

	err := formUploader.Put(context.Background(), &ret, upToken, objectKey, reader, -1, &putExtra)
	if err != nil {
		return fmt.Errorf("failed to upload file to qiniu kodo: %w", err)
	}

	return nil
}

// DownloadFile downloads a file from Qiniu Kodo via a signed private URL.
func (p *QiniuKodoProvider) DownloadFile(objectKey string) (io.ReadCloser, error) {
	deadline := time.Now().Add(time.Hour).Unix()
	privateURL := qiniustorage.MakePrivateURL(p.mac, p.bucketDomain, objectKey, deadline)

	resp, err := http.Get(privateURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download file from qiniu kodo: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file, status: %s", resp.Status)
	}

	return resp.Body, nil
}

// DeleteFile deletes a file from Qiniu Kodo.
func (p *QiniuKodoProvider) DeleteFile(objectKey string) error {
	if err := p.bucketManager().Delete(p.bucketName, objectKey); err != nil {
		return fmt.Errorf("failed to delete file from qiniu kodo: %w", err)
	}

	return nil
}

// FileExists checks whether a file exists in Qiniu Kodo.
func (p *QiniuKodoProvider) FileExists(objectKey string) (bool, error) {
	_, err := p.bucketManager().Stat(p.bucketName, objectKey)
	if err != nil {
		if isQiniuNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence in qiniu kodo: %w", err)
	}

	return true, nil
}

// GetFileInfo retrieves object metadata from Qiniu Kodo.
func (p *QiniuKodoProvider) GetFileInfo(objectKey string) (*FileInfo, error) {
	fileInfo, err := p.bucketManager().Stat(p.bucketName, objectKey)
	if err != nil {
		if isQiniuNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get file info from qiniu kodo: %w", err)
	}

	return &FileInfo{
		Key:          objectKey,
		Size:         fileInfo.Fsize,
		LastModified: time.Unix(fileInfo.PutTime/10000000, 0).Format(time.RFC3339),
		ETag:         fileInfo.Hash,
		ContentType:  fileInfo.MimeType,
	}, nil
}

// ListFiles lists objects under a prefix in Qiniu Kodo.
func (p *QiniuKodoProvider) ListFiles(prefix string, maxKeys int) ([]FileInfo, error) {
	entries, _, _, _, err := p.bucketManager().ListFiles(p.bucketName, prefix, "", "", maxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to list files from qiniu kodo: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		files = append(files, FileInfo{
			Key:          entry.Key,
			Size:         entry.Fsize,
			LastModified: time.Unix(entry.PutTime/10000000, 0).Format(time.RFC3339),
			ETag:         entry.Hash,
			ContentType:  entry.MimeType,
		})
	}

	return files, nil
}

// TestConnection verifies connectivity and credentials.
func (p *QiniuKodoProvider) TestConnection() error {
	_, _, _, _, err := p.bucketManager().ListFiles(p.bucketName, "", "", "", 1)
	if err != nil {
		return fmt.Errorf("failed to test qiniu kodo connection: %w", err)
	}

	return nil
}
