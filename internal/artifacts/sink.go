// Package artifacts stores failure diagnostics (screenshots and DOM snapshots)
// keyed by run and test name, on local disk or in an S3 bucket.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/couponfollow-e2e/internal/config"
	"github.com/kuitang/couponfollow-e2e/internal/s3client"
)

// Sink stores artifacts.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Location describes where key ends up, for logs and test output.
	Location(key string) string
}

// FileSink writes artifacts below Dir.
type FileSink struct {
	Dir string
}

func (s FileSink) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Location(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifacts: create directory for %q: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("artifacts: write %q: %w", key, err)
	}
	return nil
}

func (s FileSink) Location(key string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

// S3Sink uploads artifacts to a bucket.
type S3Sink struct {
	Client *s3client.Client
	Prefix string
}

func (s S3Sink) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.Client.PutObject(ctx, s.objectKey(key), data, contentType)
}

func (s S3Sink) Location(key string) string {
	return s.Client.URI(s.objectKey(key))
}

func (s S3Sink) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.Prefix, "/") + "/" + key
}

// NewSink picks the S3 sink when a bucket is configured, else the directory sink.
func NewSink(ctx context.Context, cfg *config.Config) (Sink, error) {
	if cfg.ArtifactBucket == "" {
		return FileSink{Dir: cfg.ArtifactDir}, nil
	}
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.ArtifactBucket,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return nil, err
	}
	return S3Sink{Client: client, Prefix: "e2e"}, nil
}
