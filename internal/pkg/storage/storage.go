package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Storage defines the minimal interface for generated-asset storage backends.
type Storage interface {
	// Put stores an object at key and returns an error on failure.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the public URL for a key.
	GetURL(key string) string
}

// Config selects and configures a storage backend.
type Config struct {
	Driver string // r2, s3, local

	R2 R2Config

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string

	LocalPath string
	LocalURL  string
}

// New builds the backend named by cfg.Driver.
func New(cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "r2":
		return NewR2Storage(cfg.R2)
	case "s3":
		return NewS3Storage(cfg)
	case "", "local":
		return NewLocalStorage(cfg.LocalPath, cfg.LocalURL)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
