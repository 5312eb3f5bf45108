// Package storage provides a domain-agnostic interface for S3-compatible object storage.
package storage

import (
	"context"
	"io"

	"support_router_backend/platform/config"
)

// StorageService defines the object storage operations used by the service.
type StorageService interface {
	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// PutObject writes reader under key, overwriting any existing object.
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error
}

// Config is the MinIO configuration needed by NewMinIOService.
type Config = config.MinIOConfig
