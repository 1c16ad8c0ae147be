package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultPrefix = "outputs"

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	Prefix   string
	UseSSL   bool
}

// Client mirrors finished outputs into an S3-compatible bucket.
type Client struct {
	minio  *minio.Client
	bucket string
	prefix string
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{
		minio:  mc,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	ok, err := c.minio.BucketExists(ctx, c.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("stat bucket %s: %w", c.bucket, err)
	case ok:
		return nil
	}

	// Another process may create the bucket between the two calls.
	makeErr := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if makeErr == nil {
		return nil
	}
	if resp := minio.ToErrorResponse(makeErr); resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
		return nil
	}
	return fmt.Errorf("make bucket %s: %w", c.bucket, makeErr)
}

// Mirror uploads the output file at localPath and returns its object key.
func (c *Client) Mirror(ctx context.Context, runID, localPath string, format domain.Format) (string, error) {
	key := ObjectKey(c.prefix, runID, localPath)
	_, err := c.minio.FPutObject(ctx, c.bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  format.ContentType(),
		UserMetadata: map[string]string{"run-id": runID},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey is <prefix>/<runID>/<file name>.
func ObjectKey(prefix, runID, localPath string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		runID = "unknown"
	}
	return path.Join(prefix, runID, filepath.Base(localPath))
}
