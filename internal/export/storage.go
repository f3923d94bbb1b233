package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader stores rendered exports and returns a link to them.
type Uploader interface {
	Upload(ctx context.Context, result *Result) (string, error)
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// LinkTTL bounds the lifetime of the presigned download link.
	LinkTTL time.Duration
}

// ObjectStore uploads exports to an S3-compatible bucket.
type ObjectStore struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
	now     func() time.Time
}

func NewObjectStore(ctx context.Context, cfg StorageConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrStorageNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ObjectStore{client: client, bucket: cfg.Bucket, linkTTL: ttl, now: time.Now}, nil
}

// Upload writes the export under exports/<timestamp>-<filename> and returns
// a presigned GET link.
func (o *ObjectStore) Upload(ctx context.Context, result *Result) (string, error) {
	key := objectKey(o.now(), result.Filename)
	_, err := o.client.PutObject(ctx, o.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	link, err := o.client.PresignedGetObject(ctx, o.bucket, key, o.linkTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign export %s: %w", key, err)
	}
	return link.String(), nil
}

func objectKey(at time.Time, filename string) string {
	return fmt.Sprintf("exports/%s-%s", at.UTC().Format("20060102T150405Z"), filename)
}
