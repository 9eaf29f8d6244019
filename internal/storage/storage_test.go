package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/internal/infra"
	"storyteller/internal/pipeline"
)

func TestFileStoreUploadAndURL(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8081/static/")
	require.NoError(t, err)

	err = store.UploadBuffer(context.Background(), pipeline.UploadInput{
		Key:         "stories/story-1/preview.webp",
		Body:        []byte("RIFF"),
		ContentType: "image/webp",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "stories", "story-1", "preview.webp"))
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)
	_, err = os.Stat(filepath.Join(dir, "stories", "story-1", "preview.webp.tmp"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, "http://localhost:8081/static/stories/story-1/preview.webp", store.BuildPublicURL("stories/story-1/preview.webp"))
}

func TestFileStoreOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.UploadBuffer(ctx, pipeline.UploadInput{Key: "a/b.webp", Body: []byte("one")}))
	require.NoError(t, store.UploadBuffer(ctx, pipeline.UploadInput{Key: "a/b.webp", Body: []byte("two")}))
	data, err := os.ReadFile(filepath.Join(store.BasePath(), "a", "b.webp"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "stories/1/preview.webp", want: "stories/1/preview.webp"},
		{in: "/stories//1/./preview.webp", want: "stories/1/preview.webp"},
		{in: `stories\1\preview.webp`, want: "stories/1/preview.webp"},
		{in: "../etc/passwd", wantErr: true},
		{in: "a/../../b", wantErr: true},
		{in: "  ", wantErr: true},
		{in: ".", wantErr: true},
	}
	for _, tc := range cases {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestPublicURLEscapesSegments(t *testing.T) {
	assert.Equal(t, "https://cdn/a%20b/c.webp", publicURL("https://cdn", "a b/c.webp"))
	assert.Equal(t, "", publicURL("https://cdn", "../x"))
}

func TestFileStoreCancelled(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.UploadBuffer(ctx, pipeline.UploadInput{Key: "k", Body: []byte("v")}), context.Canceled)
}

type memWriter struct {
	key         string
	contentType string
	buf         bytes.Buffer
	closeErr    error
	closed      bool
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestGCSStoreUpload(t *testing.T) {
	w := &memWriter{}
	store := &GCSStore{
		bucket:  "stories-bucket",
		baseURL: gcsBaseURL("stories-bucket", ""),
		newWriter: func(ctx context.Context, key, contentType string) objectWriter {
			w.key = key
			w.contentType = contentType
			return w
		},
	}
	err := store.UploadBuffer(context.Background(), pipeline.UploadInput{
		Key:         "/stories/story-1/preview.webp",
		Body:        []byte("RIFFxxxxWEBP"),
		ContentType: "image/webp",
	})
	require.NoError(t, err)
	assert.Equal(t, "stories/story-1/preview.webp", w.key)
	assert.Equal(t, "image/webp", w.contentType)
	assert.Equal(t, "RIFFxxxxWEBP", w.buf.String())
	assert.True(t, w.closed)
	assert.Equal(t, "https://storage.googleapis.com/stories-bucket/stories/story-1/preview.webp", store.BuildPublicURL("stories/story-1/preview.webp"))
	assert.NoError(t, store.Close())
}

func TestGCSStoreCloseFailure(t *testing.T) {
	store := &GCSStore{
		baseURL: gcsBaseURL("b", "https://cdn.example.com/"),
		newWriter: func(ctx context.Context, key, contentType string) objectWriter {
			return &memWriter{closeErr: errors.New("precondition failed")}
		},
	}
	err := store.UploadBuffer(context.Background(), pipeline.UploadInput{Key: "k.webp", Body: []byte("x")})
	assert.ErrorContains(t, err, "precondition failed")
	assert.Equal(t, "https://cdn.example.com/k.webp", store.BuildPublicURL("k.webp"))
}

func TestOpenFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), &infra.Config{
		StorageDriver:  DriverFS,
		StoragePath:    dir,
		StorageBaseURL: "http://localhost:8081/static/",
	})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "http://localhost:8081/static/stories/s1/preview.webp", store.BuildPublicURL("stories/s1/preview.webp"))

	_, err = Open(context.Background(), &infra.Config{StorageDriver: "s3"})
	assert.Error(t, err)
}
