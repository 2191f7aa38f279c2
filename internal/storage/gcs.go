package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCSStore(client *gcs.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: prefix,
	}
}

func (s *GCSStore) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	object := objectName(s.prefix, filename)

	// DoesNotExist keeps a retried upload from clobbering an existing object.
	w := s.client.Bucket(s.bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload object %s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %s/%s: %w", s.bucket, object, err)
	}

	return publicURL(s.bucket, object), nil
}

func publicURL(bucket, object string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, object)
}
