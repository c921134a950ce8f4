package storage

import (
	"context"
	"fmt"
)

// R2Config holds R2 connection configuration
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	PublicURL       string // e.g., https://cdn.example.com
}

// NewR2Storage creates a storage instance for Cloudflare R2.
// R2 speaks the S3 API, so this is an S3Storage pointed at the account endpoint.
func NewR2Storage(ctx context.Context, cfg R2Config) (*S3Storage, error) {
	// R2 endpoint format: https://<account_id>.r2.cloudflarestorage.com
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	st, err := NewS3Storage(ctx, S3Config{
		Endpoint:  endpoint,
		Region:    "auto",
		AccessKey: cfg.AccessKeyID,
		SecretKey: cfg.AccessKeySecret,
		Bucket:    cfg.BucketName,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	if cfg.PublicURL == "" {
		// Fallback to the r2.dev subdomain (requires public bucket)
		st.urlBase = fmt.Sprintf("https://%s.r2.dev", cfg.BucketName)
	}
	return st, nil
}
