package artifact

import (
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"github.com/golang/glog"
	"google.golang.org/api/option"
)

// GCS uploads artifacts to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS returns a sink that writes objects named {prefix}/{name} into bucket.
// Credentials are found the usual way unless opts say otherwise.
func NewGCS(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("artifact: empty GCS bucket name")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create a storage client for bucket %q: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// Save uploads data and returns the gs:// URL of the new object.
func (g *GCS) Save(ctx context.Context, name string, data []byte) (string, error) {
	object := path.Join(g.prefix, name)
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "image/png"
	loc := fmt.Sprintf("gs://%s/%s", g.bucket, object)

	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("uploading %s: %w", loc, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", loc, err)
	}
	glog.V(2).Infof("uploaded %d bytes to %s", len(data), loc)
	return loc, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
