package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage is a flat key/value file store addressed by slash separated paths.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns the paths of the objects directly under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

type Backend string

const (
	BackendLocal Backend = "local"
	BackendS3    Backend = "s3"
)

type Options struct {
	Backend  Backend
	BaseDir  string
	S3Bucket string
	S3Prefix string
	S3Region string
}

// Open returns the backend selected by opts.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch opts.Backend {
	case BackendS3:
		if opts.S3Bucket == "" {
			return nil, errors.New("s3 storage requires a bucket")
		}
		return NewS3Storage(ctx, opts.S3Bucket, opts.S3Prefix, opts.S3Region)
	case BackendLocal, "":
		return NewLocalStorage(opts.BaseDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
