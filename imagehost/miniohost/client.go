// Package miniohost backs the image store with an S3-compatible bucket
// instead of a public image host. Useful for self-hosted deployments and
// for exercising the transport against MinIO in integration setups; the
// asset-naming and latest-resolution contract is identical.
package miniohost

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pixelchat/imagehost"
)

// Config carries the bucket connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

var _ imagehost.Host = (*Client)(nil)

// Client implements imagehost.Host against an S3-compatible bucket.
type Client struct {
	client *minio.Client
	bucket string
	tag    string
}

// New connects to the bucket endpoint. The tag is used as the object key
// prefix for listings.
func New(cfg Config, tag string) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to bucket endpoint %q: %w", cfg.Endpoint, err)
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
		tag:    tag,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", c.bucket, err)
	}

	return nil
}

// Upload stores PNG bytes under the given filename as an object key.
func (c *Client) Upload(ctx context.Context, filename string, imageBytes []byte) error {
	_, err := c.client.PutObject(ctx, c.bucket, filename,
		bytes.NewReader(imageBytes), int64(len(imageBytes)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return fmt.Errorf("put object %q: %w", filename, err)
	}

	return nil
}

// List returns all objects whose key carries the tag prefix.
func (c *Client) List(ctx context.Context) ([]imagehost.Asset, error) {
	var assets []imagehost.Asset

	objects := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    c.tag + "_",
		Recursive: true,
	})
	for object := range objects {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects: %w", object.Err)
		}
		assets = append(assets, imagehost.Asset{
			Ref:       object.Key,
			Timestamp: imagehost.ExtractTimestamp(object.Key),
		})
	}

	return assets, nil
}

// Fetch downloads one object's content.
func (c *Client) Fetch(ctx context.Context, asset imagehost.Asset) ([]byte, error) {
	object, err := c.client.GetObject(ctx, c.bucket, asset.Ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", asset.Ref, err)
	}
	defer object.Close()

	content, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", asset.Ref, err)
	}

	return content, nil
}
