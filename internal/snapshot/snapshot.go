// Package snapshot implements the transfer of the compressed literature
// snapshot between object storage and local disk. Fetch is the single
// ensure-present operation: download, stream-decompress, rename into place.
// The destination path never holds a partial file, whatever fails.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/indralab/dblite/internal/config"
	apperrors "github.com/indralab/dblite/internal/errors"
	"github.com/indralab/dblite/internal/logger"
	"github.com/indralab/dblite/internal/storage"
)

// ContentType reported to the provider for uploaded snapshots.
const ContentType = "application/x-xz"

// Service transfers snapshots between object storage and the local path.
type Service struct {
	cfg      *config.Config
	provider storage.Provider
	log      *logrus.Logger
}

// NewService creates a snapshot service bound to a provider and config.
func NewService(cfg *config.Config, provider storage.Provider) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		log:      logger.GetLogger(),
	}
}

// Fetch materialises the snapshot at the configured location. When the
// destination already exists the call is a no-op unless force is set; a
// forced fetch replaces the file atomically, so readers never observe a
// partial snapshot.
func (s *Service) Fetch(force bool) error {
	location := s.cfg.Location
	if location == "" {
		return apperrors.New(apperrors.ErrConfigMissing, "DBLITE_LOCATION is not set")
	}

	if !force {
		if info, err := os.Stat(location); err == nil {
			s.log.WithFields(logrus.Fields{
				"location": location,
				"size":     info.Size(),
			}).Info("snapshot already present, skipping download (use --force to re-fetch)")
			return nil
		}
	}

	// Check the remote object before touching the filesystem. A missing
	// object must surface as a not-found error with no local side effects.
	remote, err := s.provider.GetFileInfo(s.cfg.S3Key)
	if err != nil {
		if appErr, ok := apperrors.GetAppError(err); ok && appErr.Code == apperrors.ErrStorageObjectNotFound {
			return err
		}
		return apperrors.Wrapf(apperrors.ErrSnapshotDownloadFailed, err,
			"failed to stat remote object %s/%s", s.cfg.S3Bucket, s.cfg.S3Key)
	}

	if err := os.MkdirAll(filepath.Dir(location), 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to create destination directory", err)
	}

	// Temp files live next to the destination so the final rename stays on
	// one filesystem.
	suffix := uuid.New().String()
	compressedPath := fmt.Sprintf("%s.%s.xz.partial", location, suffix)
	decompressedPath := fmt.Sprintf("%s.%s.partial", location, suffix)
	defer os.Remove(compressedPath)
	defer os.Remove(decompressedPath)

	s.log.WithFields(logrus.Fields{
		"bucket": s.cfg.S3Bucket,
		"key":    s.cfg.S3Key,
		"size":   remote.Size,
	}).Info("downloading compressed snapshot")

	downloaded, err := s.download(compressedPath)
	if err != nil {
		return err
	}
	if remote.Size > 0 && downloaded != remote.Size {
		return apperrors.New(apperrors.ErrSnapshotDownloadFailed,
			fmt.Sprintf("downloaded %d bytes, remote object is %d bytes", downloaded, remote.Size))
	}

	s.log.Info("decompressing snapshot")
	written, err := decompress(compressedPath, decompressedPath)
	if err != nil {
		return err
	}

	if err := os.Rename(decompressedPath, location); err != nil {
		return apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to move snapshot into place", err)
	}

	s.log.WithFields(logrus.Fields{
		"location":          location,
		"compressed_size":   downloaded,
		"decompressed_size": written,
	}).Info("snapshot ready")
	return nil
}

// download streams the remote object into path and returns the byte count.
func (s *Service) download(path string) (int64, error) {
	body, err := s.provider.DownloadFile(s.cfg.S3Key)
	if err != nil {
		if appErr, ok := apperrors.GetAppError(err); ok && appErr.Code == apperrors.ErrStorageObjectNotFound {
			return 0, err
		}
		return 0, apperrors.Wrapf(apperrors.ErrSnapshotDownloadFailed, err,
			"failed to download %s/%s", s.cfg.S3Bucket, s.cfg.S3Key)
	}
	defer body.Close()

	out, err := os.Create(path)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to create temporary download file", err)
	}

	n, err := io.Copy(out, body)
	if err != nil {
		out.Close()
		return 0, apperrors.Wrap(apperrors.ErrSnapshotDownloadFailed, "download interrupted", err)
	}
	if err := out.Close(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to finish temporary download file", err)
	}

	return n, nil
}

// decompress streams the xz file at src into dst and returns the number of
// decompressed bytes written. dst is synced before return so a crash after
// the subsequent rename cannot leave a hollow file.
func decompress(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSnapshotDecompressFailed, "failed to open compressed snapshot", err)
	}
	defer in.Close()

	xzReader, err := xz.NewReader(in)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSnapshotDecompressFailed, "compressed snapshot has an invalid xz header", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to create temporary snapshot file", err)
	}

	written, err := io.Copy(out, xzReader)
	if err != nil {
		out.Close()
		return 0, apperrors.Wrap(apperrors.ErrSnapshotDecompressFailed, "xz stream corrupt or truncated", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to sync snapshot file", err)
	}
	if err := out.Close(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrSnapshotWriteFailed, "failed to close snapshot file", err)
	}

	return written, nil
}

// Upload compresses the snapshot at path and uploads it to the configured
// bucket and key. The compression runs streaming through a pipe, so the
// 150GB-class snapshot is never duplicated on disk.
func (s *Service) Upload(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrSnapshotNotPresent, err, "no snapshot at %s", path)
	}

	in, err := os.Open(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSnapshotNotPresent, "failed to open snapshot", err)
	}
	defer in.Close()

	s.log.WithFields(logrus.Fields{
		"path":   path,
		"size":   info.Size(),
		"bucket": s.cfg.S3Bucket,
		"key":    s.cfg.S3Key,
	}).Info("compressing and uploading snapshot")

	pr, pw := io.Pipe()
	compressErr := make(chan error, 1)
	go func() {
		xzWriter, err := xz.NewWriter(pw)
		if err != nil {
			pw.CloseWithError(err)
			compressErr <- err
			return
		}
		if _, err := io.Copy(xzWriter, in); err != nil {
			pw.CloseWithError(err)
			compressErr <- err
			return
		}
		if err := xzWriter.Close(); err != nil {
			pw.CloseWithError(err)
			compressErr <- err
			return
		}
		pw.Close()
		compressErr <- nil
	}()

	start := time.Now()
	uploadErr := s.provider.UploadFile(s.cfg.S3Key, pr, ContentType)
	if uploadErr != nil {
		// A provider that fails mid-transfer stops reading the pipe;
		// close the read end so the compression goroutine unblocks.
		pr.CloseWithError(uploadErr)
	}
	// The compression goroutine sees uploadErr back from its pipe writes
	// once the read end is closed; only report errors it produced itself.
	if cErr := <-compressErr; cErr != nil && (uploadErr == nil || !errors.Is(cErr, uploadErr)) {
		return apperrors.Wrap(apperrors.ErrSnapshotCompressFailed, "xz compression failed", cErr)
	}
	if uploadErr != nil {
		return apperrors.Wrapf(apperrors.ErrSnapshotUploadFailed, uploadErr,
			"failed to upload %s/%s", s.cfg.S3Bucket, s.cfg.S3Key)
	}

	s.log.WithField("duration", time.Since(start).String()).Info("snapshot uploaded")
	return nil
}

// RemoteStatus verifies connectivity to the bucket and reports on the
// configured snapshot object. The returned info is nil when the object does
// not exist.
func (s *Service) RemoteStatus() (*storage.FileInfo, error) {
	if err := s.provider.TestConnection(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageConnectionFailed, "storage connection check failed", err)
	}
	info, err := s.provider.GetFileInfo(s.cfg.S3Key)
	if err != nil {
		if appErr, ok := apperrors.GetAppError(err); ok && appErr.Code == apperrors.ErrStorageObjectNotFound {
			return nil, nil
		}
		return nil, apperrors.Wrapf(apperrors.ErrStorageConnectionFailed, err,
			"failed to stat remote object %s/%s", s.cfg.S3Bucket, s.cfg.S3Key)
	}
	return info, nil
}

// ListRemote lists the objects under prefix in the snapshot bucket.
func (s *Service) ListRemote(prefix string, maxKeys int) ([]storage.FileInfo, error) {
	files, err := s.provider.ListFiles(prefix, maxKeys)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorageConnectionFailed, err,
			"failed to list objects in %s", s.cfg.S3Bucket)
	}
	return files, nil
}

// DeleteRemote removes the configured snapshot object from the bucket. A
// missing object is reported as not found rather than silently ignored.
func (s *Service) DeleteRemote() error {
	exists, err := s.provider.FileExists(s.cfg.S3Key)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrStorageConnectionFailed, err,
			"failed to check remote object %s/%s", s.cfg.S3Bucket, s.cfg.S3Key)
	}
	if !exists {
		return storage.ErrObjectNotFound
	}
	if err := s.provider.DeleteFile(s.cfg.S3Key); err != nil {
		return apperrors.Wrapf(apperrors.ErrStorageConnectionFailed, err,
			"failed to delete remote object %s/%s", s.cfg.S3Bucket, s.cfg.S3Key)
	}
	s.log.WithFields(logrus.Fields{
		"bucket": s.cfg.S3Bucket,
		"key":    s.cfg.S3Key,
	}).Info("remote snapshot deleted")
	return nil
}
