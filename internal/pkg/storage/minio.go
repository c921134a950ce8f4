package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioConfig holds MinIO connection configuration
type MinioConfig struct {
	Endpoint  string // host:port, scheme is derived from UseSSL
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

// MinioStorage implements Storage on top of the native MinIO client
type MinioStorage struct {
	client  *minio.Client
	bucket  string
	urlBase string
}

// NewMinioStorage creates a new MinIO storage instance
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	urlBase := cfg.PublicURL
	if urlBase == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		urlBase = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	return &MinioStorage{
		client:  client,
		bucket:  cfg.Bucket,
		urlBase: urlBase + "/" + cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	log.Info().Str("bucket", s.bucket).Msg("Creating bucket")
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put stores a blob in MinIO
func (s *MinioStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=3600",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to MinIO: %w", err)
	}
	return s.GetURL(key), nil
}

// Delete removes a blob from MinIO. RemoveObject already succeeds for missing keys.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete from MinIO: %w", err)
	}
	return nil
}

// List returns all objects under prefix
func (s *MinioStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list MinIO objects: %w", obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

// GetURL returns the public URL for a blob
func (s *MinioStorage) GetURL(key string) string {
	return s.urlBase + "/" + key
}
