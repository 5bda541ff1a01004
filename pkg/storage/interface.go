package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by Get and URL when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Storage is an opaque-key blob store.
type Storage interface {
	// Put stores r under key. size is the expected length, -1 if unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get opens the object under key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns a location clients can fetch the object from, valid for
	// at least expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Config selects and configures a Storage implementation.
type Config struct {
	Driver string      `mapstructure:"driver"` // local, s3
	Local  LocalConfig `mapstructure:"local"`
	S3     S3Config    `mapstructure:"s3"`
}

// New builds the Storage selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "s3", "minio":
		return NewS3Storage(ctx, cfg.S3)
	case "local", "":
		return NewLocalStorage(cfg.Local)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
