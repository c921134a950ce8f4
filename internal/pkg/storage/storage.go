package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// Storage is the gateway to one object-storage bucket.
// Intentionally simple: put a blob, remove a blob, derive its public URL.
type Storage interface {
	// Put stores a blob under key and returns its public URL.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)

	// Delete removes a blob by key. Returns nil if the blob doesn't exist.
	Delete(ctx context.Context, key string) error

	// GetURL returns the public URL for a key.
	GetURL(key string) string

	// List returns every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored blob
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Config selects and configures a storage backend
type Config struct {
	Driver    string // s3, r2, minio, local
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PublicURL string // base for public links, "<PublicURL>/<bucket>/<key>"

	R2AccountID string

	LocalPath string
	LocalURL  string
}

// New builds the backend for a single bucket
func New(ctx context.Context, cfg Config, bucket string) (Storage, error) {
	var (
		st  Storage
		err error
	)

	switch cfg.Driver {
	case "s3":
		st, err = NewS3Storage(ctx, S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    bucket,
			PublicURL: cfg.PublicURL,
		})
	case "r2":
		st, err = NewR2Storage(ctx, R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.AccessKey,
			AccessKeySecret: cfg.SecretKey,
			BucketName:      bucket,
			PublicURL:       cfg.PublicURL,
		})
	case "minio":
		st, err = NewMinioStorage(MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    bucket,
			PublicURL: cfg.PublicURL,
		})
	case "local":
		st, err = NewLocalStorage(filepath.Join(cfg.LocalPath, bucket), cfg.LocalURL+"/"+bucket)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// BucketEnsurer is implemented by backends that can create their bucket
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// EnsureBucket creates the bucket if the backend supports it
func EnsureBucket(ctx context.Context, st Storage) error {
	if e, ok := st.(BucketEnsurer); ok {
		return e.EnsureBucket(ctx)
	}
	return nil
}
