package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/projectconverter/internal/gcp"
)

// GCS keeps archives as objects in a Cloud Storage bucket. Locations are
// gs:// URIs.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS stores archives under prefix in bucket.
func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{client: client, bucket: bucket, prefix: prefix}
}

func (g *GCS) Put(ctx context.Context, localPath, name string) (string, error) {
	object := g.prefix + name
	if err := gcp.UploadFileAtomically(ctx, g.client.Bucket(g.bucket), object, localPath); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

func (g *GCS) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, object, err := gcp.ParseGCSURI(location)
	if err != nil {
		return nil, err
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", location, err)
	}
	return r, nil
}

func (g *GCS) Remove(ctx context.Context, location string) error {
	bucket, object, err := gcp.ParseGCSURI(location)
	if err != nil {
		return err
	}
	err = g.client.Bucket(bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", location, err)
	}
	return nil
}
