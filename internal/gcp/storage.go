package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/esgreportlinks/internal/models"
	"google.golang.org/api/googleapi"
)

// GCSBlobStore reads and writes whole objects in Cloud Storage.
type GCSBlobStore struct {
	client        *storage.Client
	uploadTimeout time.Duration
}

// NewGCSBlobStore wraps client. Each Put is bounded by uploadTimeout when positive.
func NewGCSBlobStore(client *storage.Client, uploadTimeout time.Duration) *GCSBlobStore {
	return &GCSBlobStore{client: client, uploadTimeout: uploadTimeout}
}

// Exists reports whether an object is present at bucket/object.
func (s *GCSBlobStore) Exists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := s.client.Bucket(bucket).Object(object).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, &models.StorageError{Op: "exists", Bucket: bucket, Object: object, Err: err}
	}
}

// Put writes data to bucket/object, replacing any existing object.
func (s *GCSBlobStore) Put(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	writeCtx := ctx
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	writer := s.client.Bucket(bucket).Object(object).NewWriter(writeCtx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		slog.Error("Failed to copy content to GCS object", "bucket", bucket, "object", object, "error", err)
		return &models.StorageError{Op: "put", Bucket: bucket, Object: object, Err: describeGCSError(err)}
	}

	if err := writer.Close(); err != nil {
		slog.Error("Failed to close GCS writer", "bucket", bucket, "object", object, "error", err)
		return &models.StorageError{Op: "put", Bucket: bucket, Object: object, Err: fmt.Errorf("failed to finalize GCS write: %w", describeGCSError(err))}
	}
	return nil
}

// describeGCSError adds a hint for the permission and bucket errors that show up
// when the function's service account is misconfigured.
func describeGCSError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusForbidden:
		return fmt.Errorf("permission denied (check the service account's storage role): %w", err)
	case http.StatusNotFound:
		return fmt.Errorf("bucket not found: %w", err)
	}
	return err
}
