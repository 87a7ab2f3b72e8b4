// Package publish uploads completed unit files to a blob bucket. The bucket
// is addressed by a gocloud.dev URL (file://, gs://, s3://), so local
// mirrors and cloud buckets share one code path. Publishing is best-effort:
// a failed upload never fails the unit.
package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver

	"github.com/keibalab/keiba-collector/internal/racing"
)

// Publisher copies unit output files into a bucket.
type Publisher struct {
	bucket *blob.Bucket
	url    string
}

// Open connects to the bucket. An empty URL yields a nil Publisher, which
// is a no-op.
func Open(ctx context.Context, bucketURL string) (*Publisher, error) {
	if bucketURL == "" {
		return nil, nil
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return &Publisher{bucket: bucket, url: bucketURL}, nil
}

// Close releases the bucket handle.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.bucket.Close()
}

// PublishUnit uploads the unit's CSV and manifest files, keyed by their
// base names.
func (p *Publisher) PublishUnit(ctx context.Context, unit racing.WorkUnit, paths ...string) error {
	if p == nil {
		return nil
	}
	for _, path := range paths {
		if err := p.upload(ctx, path); err != nil {
			return fmt.Errorf("publish %s: %w", unit, err)
		}
	}
	return nil
}

func (p *Publisher) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	key := filepath.Base(path)
	w, err := p.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return w.Close()
}
