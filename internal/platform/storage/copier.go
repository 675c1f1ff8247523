package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectStore is the object storage surface used by the report archive.
type ObjectStore interface {
	Write(ctx context.Context, bucket, object, contentType string, data []byte) error
	Copy(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error
}

// GCSStore implements ObjectStore on Cloud Storage.
type GCSStore struct {
	client *gcs.Client
}

var _ ObjectStore = (*GCSStore)(nil)

// NewGCSStore constructs a store backed by the provided Cloud Storage client.
func NewGCSStore(client *gcs.Client) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return &GCSStore{client: client}, nil
}

// Write uploads data as a single object, replacing any previous generation.
func (s *GCSStore) Write(ctx context.Context, bucket, object, contentType string, data []byte) error {
	if s == nil || s.client == nil {
		return errors.New("storage: client is not initialised")
	}
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalize %s: %w", object, err)
	}
	return nil
}

// Copy copies an object from the source bucket/path to the destination.
func (s *GCSStore) Copy(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error {
	if s == nil || s.client == nil {
		return errors.New("storage: client is not initialised")
	}

	srcBucket := strings.TrimSpace(sourceBucket)
	srcObject := strings.TrimSpace(sourceObject)
	dstBucket := strings.TrimSpace(destBucket)
	dstObject := strings.TrimSpace(destObject)

	if srcBucket == "" || srcObject == "" || dstBucket == "" || dstObject == "" {
		return errors.New("storage: source and destination must be provided")
	}
	if srcBucket == dstBucket && srcObject == dstObject {
		return nil
	}

	src := s.client.Bucket(srcBucket).Object(srcObject)
	dst := s.client.Bucket(dstBucket).Object(dstObject)
	_, err := dst.CopierFrom(src).Run(ctx)
	return err
}
