package snapshot

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/indralab/dblite/internal/config"
	apperrors "github.com/indralab/dblite/internal/errors"
	"github.com/indralab/dblite/internal/storage"
)

// fakeProvider serves objects from memory and records uploads.
type fakeProvider struct {
	objects   map[string][]byte
	uploads   map[string][]byte
	downloads int
	connErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		objects: make(map[string][]byte),
		uploads: make(map[string][]byte),
	}
}

func (f *fakeProvider) UploadFile(objectKey string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.uploads[objectKey] = data
	return nil
}

func (f *fakeProvider) DownloadFile(objectKey string) (io.ReadCloser, error) {
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	f.downloads++
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeProvider) DeleteFile(objectKey string) error {
	delete(f.objects, objectKey)
	return nil
}

func (f *fakeProvider) FileExists(objectKey string) (bool, error) {
	_, ok := f.objects[objectKey]
	return ok, nil
}

func (f *fakeProvider) GetFileInfo(objectKey string) (*storage.FileInfo, error) {
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.FileInfo{
		Key:  objectKey,
		Size: int64(len(data)),
	}, nil
}

func (f *fakeProvider) ListFiles(prefix string, maxKeys int) ([]storage.FileInfo, error) {
	var files []storage.FileInfo
	for key, data := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		files = append(files, storage.FileInfo{
			Key:  key,
			Size: int64(len(data)),
		})
		if len(files) >= maxKeys {
			break
		}
	}
	return files, nil
}

func (f *fakeProvider) TestConnection() error {
	return f.connErr
}

// failingUploadProvider reads part of the stream and then reports a
// transfer failure without draining the rest.
type failingUploadProvider struct {
	*fakeProvider
	readLimit int
	err       error
}

func (f *failingUploadProvider) UploadFile(objectKey string, reader io.Reader, contentType string) error {
	buf := make([]byte, f.readLimit)
	io.ReadFull(reader, buf)
	return f.err
}

// xzCompress compresses data the way the snapshot is stored remotely.
func xzCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestService(t *testing.T) (*Service, *fakeProvider, string) {
	t.Helper()
	location := filepath.Join(t.TempDir(), "indra_lite.db")
	cfg := &config.Config{
		S3Bucket: "snapshots",
		S3Key:    config.DefaultS3Key,
		Location: location,
	}
	provider := newFakeProvider()
	return NewService(cfg, provider), provider, location
}

// assertNoPartials checks that no temporary file survived in the
// destination directory.
func assertNoPartials(t *testing.T, location string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(location))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".partial")
	}
}

func TestFetchRoundTrip(t *testing.T) {
	svc, provider, location := newTestService(t)
	snapshotData := bytes.Repeat([]byte("sqlite snapshot content "), 1024)
	provider.objects[config.DefaultS3Key] = xzCompress(t, snapshotData)

	require.NoError(t, svc.Fetch(false))

	got, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, snapshotData, got)
	assertNoPartials(t, location)
}

func TestFetchIdempotent(t *testing.T) {
	svc, provider, location := newTestService(t)
	provider.objects[config.DefaultS3Key] = xzCompress(t, []byte("remote snapshot"))

	require.NoError(t, os.WriteFile(location, []byte("existing local snapshot"), 0644))

	t.Run("existing snapshot is kept", func(t *testing.T) {
		require.NoError(t, svc.Fetch(false))
		got, err := os.ReadFile(location)
		require.NoError(t, err)
		assert.Equal(t, []byte("existing local snapshot"), got)
		assert.Zero(t, provider.downloads)
	})

	t.Run("force re-fetches", func(t *testing.T) {
		require.NoError(t, svc.Fetch(true))
		got, err := os.ReadFile(location)
		require.NoError(t, err)
		assert.Equal(t, []byte("remote snapshot"), got)
		assert.Equal(t, 1, provider.downloads)
	})
}

func TestFetchObjectNotFound(t *testing.T) {
	svc, _, location := newTestService(t)

	err := svc.Fetch(false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrStorageObjectNotFound, apperrors.CodeOf(err))

	_, statErr := os.Stat(location)
	assert.True(t, os.IsNotExist(statErr))
	assertNoPartials(t, location)
}

func TestFetchTruncatedStream(t *testing.T) {
	svc, provider, location := newTestService(t)
	compressed := xzCompress(t, bytes.Repeat([]byte("snapshot payload "), 4096))
	provider.objects[config.DefaultS3Key] = compressed[:len(compressed)/2]

	err := svc.Fetch(false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSnapshotDecompressFailed, apperrors.CodeOf(err))

	_, statErr := os.Stat(location)
	assert.True(t, os.IsNotExist(statErr))
	assertNoPartials(t, location)
}

func TestFetchGarbageHeader(t *testing.T) {
	svc, provider, location := newTestService(t)
	provider.objects[config.DefaultS3Key] = []byte("this is not an xz stream")

	err := svc.Fetch(false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSnapshotDecompressFailed, apperrors.CodeOf(err))
	assertNoPartials(t, location)
}

func TestFetchMissingLocation(t *testing.T) {
	cfg := &config.Config{S3Bucket: "snapshots", S3Key: config.DefaultS3Key}
	svc := NewService(cfg, newFakeProvider())

	err := svc.Fetch(false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrConfigMissing, apperrors.CodeOf(err))
}

func TestUpload(t *testing.T) {
	svc, provider, location := newTestService(t)
	snapshotData := bytes.Repeat([]byte("local snapshot "), 2048)
	require.NoError(t, os.WriteFile(location, snapshotData, 0644))

	require.NoError(t, svc.Upload(location))

	uploaded, ok := provider.uploads[config.DefaultS3Key]
	require.True(t, ok)

	r, err := xz.NewReader(bytes.NewReader(uploaded))
	require.NoError(t, err)
	roundTripped, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, snapshotData, roundTripped)
}

func TestUploadMissingSnapshot(t *testing.T) {
	svc, _, location := newTestService(t)

	err := svc.Upload(location + strconv.Itoa(404))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSnapshotNotPresent, apperrors.CodeOf(err))
}

func TestUploadProviderError(t *testing.T) {
	location := filepath.Join(t.TempDir(), "indra_lite.db")
	cfg := &config.Config{
		S3Bucket: "snapshots",
		S3Key:    config.DefaultS3Key,
		Location: location,
	}
	provider := &failingUploadProvider{
		fakeProvider: newFakeProvider(),
		readLimit:    16,
		err:          fmt.Errorf("connection reset by peer"),
	}
	svc := NewService(cfg, provider)
	require.NoError(t, os.WriteFile(location, bytes.Repeat([]byte("snapshot payload "), 65536), 0644))

	// The provider stops reading mid-stream; Upload must still return
	// with the transfer failure rather than waiting on the compressor.
	err := svc.Upload(location)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrSnapshotUploadFailed, apperrors.CodeOf(err))
	assert.True(t, stderrors.Is(err, provider.err))
}

func TestRemoteStatus(t *testing.T) {
	svc, provider, _ := newTestService(t)

	t.Run("absent object", func(t *testing.T) {
		info, err := svc.RemoteStatus()
		require.NoError(t, err)
		assert.Nil(t, info)
	})

	t.Run("present object", func(t *testing.T) {
		provider.objects[config.DefaultS3Key] = []byte("compressed snapshot")
		info, err := svc.RemoteStatus()
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, config.DefaultS3Key, info.Key)
		assert.Equal(t, int64(len("compressed snapshot")), info.Size)
	})

	t.Run("connection failure", func(t *testing.T) {
		provider.connErr = fmt.Errorf("access denied")
		defer func() { provider.connErr = nil }()
		_, err := svc.RemoteStatus()
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrStorageConnectionFailed, apperrors.CodeOf(err))
	})
}

func TestListRemote(t *testing.T) {
	svc, provider, _ := newTestService(t)
	provider.objects[config.DefaultS3Key] = []byte("snapshot")
	provider.objects["backups/indra_lite.db.xz"] = []byte("old snapshot")

	all, err := svc.ListRemote("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	backups, err := svc.ListRemote("backups/", 10)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "backups/indra_lite.db.xz", backups[0].Key)
}

func TestDeleteRemote(t *testing.T) {
	svc, provider, _ := newTestService(t)

	t.Run("missing object", func(t *testing.T) {
		err := svc.DeleteRemote()
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrStorageObjectNotFound, apperrors.CodeOf(err))
	})

	t.Run("deletes the object", func(t *testing.T) {
		provider.objects[config.DefaultS3Key] = []byte("snapshot")
		require.NoError(t, svc.DeleteRemote())
		_, ok := provider.objects[config.DefaultS3Key]
		assert.False(t, ok)
	})
}
