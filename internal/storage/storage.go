// Package storage holds the object-storage backends behind the archive
// retention policy for raw uploads.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/sheetdrop/apiserver/config"
)

// Backend archives raw upload files in a bucket.
type Backend interface {
	// EnsureBucket ensures the configured bucket exists.
	EnsureBucket(ctx context.Context) error
	// Archive writes one object under key.
	Archive(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Bucket returns the configured bucket name.
	Bucket() string
}

// NewFromConfig constructs the configured backend. It returns (nil, nil)
// when archiving is not configured.
func NewFromConfig(ctx context.Context, cfg config.ArchiveConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "minio":
		return NewMinioBackend(cfg.Minio)
	case "gcs":
		return NewGCSBackend(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
