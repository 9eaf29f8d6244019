package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"

	"storyteller/internal/pipeline"
)

const defaultCacheControl = "public, max-age=31536000, immutable"

type objectWriter interface {
	io.Writer
	Close() error
}

// GCSStore uploads assets to a Cloud Storage bucket.
type GCSStore struct {
	client    *gcs.Client
	bucket    string
	baseURL   string
	newWriter func(ctx context.Context, key, contentType string) objectWriter
}

// NewGCSStore opens a client with application default credentials. Without a
// baseURL, objects are addressed through storage.googleapis.com.
func NewGCSStore(ctx context.Context, bucket, baseURL string) (*GCSStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	s := &GCSStore{client: client, bucket: bucket, baseURL: gcsBaseURL(bucket, baseURL)}
	s.newWriter = s.objectWriter
	return s, nil
}

func gcsBaseURL(bucket, baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "https://storage.googleapis.com/" + bucket
	}
	return baseURL
}

func (s *GCSStore) objectWriter(ctx context.Context, key, contentType string) objectWriter {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = defaultCacheControl
	return w
}

// UploadBuffer writes the object in one request. The object only becomes
// visible once Close succeeds.
func (s *GCSStore) UploadBuffer(ctx context.Context, in pipeline.UploadInput) error {
	key, err := sanitizeKey(in.Key)
	if err != nil {
		return err
	}
	w := s.newWriter(ctx, key, in.ContentType)
	if _, err := w.Write(in.Body); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: gcs close %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) BuildPublicURL(key string) string {
	return publicURL(s.baseURL, key)
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ pipeline.BlobStore = (*GCSStore)(nil)
