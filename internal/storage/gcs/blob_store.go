// Package gcs mirrors stored reports into Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// ErrObjectExists is returned when the mirror already holds the object name.
var ErrObjectExists = errors.New("object already exists")

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "cse/daily".
	Prefix string
}

// BlobStore writes artifacts to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// CheckBucket fails fast when the bucket is missing or not readable.
func (s *BlobStore) CheckBucket(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("get GCS bucket %q attributes: %w", s.bucket, err)
	}
	return nil
}

// Name implements report.Publisher.
func (s *BlobStore) Name() string {
	return "gcs"
}

// Publish uploads the artifact payload under Prefix/filename. Existing objects
// are never replaced.
func (s *BlobStore) Publish(ctx context.Context, artifact report.Artifact) error {
	meta := map[string]string{"run_id": artifact.RunID, "source_url": artifact.SourceURL}
	if artifact.SHA256 != "" {
		meta["sha256"] = artifact.SHA256
	}
	_, err := s.PutObject(ctx, ObjectName(s.prefix, artifact.File.Filename), "application/pdf", meta,
		bytes.NewReader(artifact.Payload))
	return err
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(
	ctx context.Context,
	name string,
	contentType string,
	meta map[string]string,
	r io.Reader,
) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	obj := s.client.Bucket(s.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.Metadata = meta
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("gs://%s/%s: %w", s.bucket, name, ErrObjectExists)
		}
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// ObjectName joins prefix and filename with a single slash.
func ObjectName(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}
