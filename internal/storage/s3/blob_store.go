// Package s3 mirrors stored reports into an S3-compatible bucket via MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// ErrObjectExists is returned when the mirror already holds the object name.
var ErrObjectExists = errors.New("object already exists")

// Config holds S3 connection configuration.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UseSSL          bool
	Region          string
	// CreateBucket makes the bucket on startup if it is missing.
	CreateBucket bool
}

// BlobStore uploads artifacts using the MinIO SDK.
type BlobStore struct {
	client *minio.Client
	cfg    Config
}

// New creates the MinIO client. No network call is made.
func New(cfg Config) (*BlobStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &BlobStore{client: client, cfg: cfg}, nil
}

// InitBucket ensures the bucket exists, creating it when configured to.
func (s *BlobStore) InitBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if !s.cfg.CreateBucket {
		return fmt.Errorf("bucket %q does not exist", s.cfg.Bucket)
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Name implements report.Publisher.
func (s *BlobStore) Name() string {
	return "s3"
}

// Publish uploads the payload under Prefix/filename unless the key exists.
func (s *BlobStore) Publish(ctx context.Context, artifact report.Artifact) error {
	key := s.key(artifact.File.Filename)
	exists, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("s3://%s/%s: %w", s.cfg.Bucket, key, ErrObjectExists)
	}
	meta := map[string]string{"run-id": artifact.RunID}
	if artifact.SHA256 != "" {
		meta["sha256"] = artifact.SHA256
	}
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(artifact.Payload), int64(len(artifact.Payload)),
		minio.PutObjectOptions{ContentType: "application/pdf", UserMetadata: meta})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

func (s *BlobStore) key(filename string) string {
	if s.cfg.Prefix == "" {
		return filename
	}
	return path.Join(s.cfg.Prefix, filename)
}
