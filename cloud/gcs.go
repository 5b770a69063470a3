package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// GCSOptions configures a GCSUploader.
type GCSOptions struct {
	BucketName string
	// Username namespaces the object path, matching the -u/--username
	// flag's "cloud only; passes through" behavior: the archive lands at
	// <Username>/<basename>.
	Username string

	// RetryAttempts is the number of upload attempts before giving up.
	// Zero means DefaultRetryAttempts.
	RetryAttempts int
}

const DefaultRetryAttempts = 5

// GCSUploader pushes a single finished archive into a Google Cloud
// Storage bucket. Adapted from the teacher's gcsFileStorage, stripped
// down to one-shot single-file upload: no pack-file chunking, no
// dedupe-by-hash, no resumable-upload bookkeeping, since every run here
// uploads exactly one object.
type GCSUploader struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	opts   GCSOptions
}

// NewGCSUploader dials GCS using application-default credentials and
// returns an Uploader bound to the configured bucket.
func NewGCSUploader(ctx context.Context, opts GCSOptions) (*GCSUploader, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, ezerr.Wrap(ezerr.IO, err, "connecting to google cloud storage")
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	return &GCSUploader{
		client: client,
		bucket: client.Bucket(opts.BucketName),
		opts:   opts,
	}, nil
}

func (g *GCSUploader) String() string {
	name := "gs://" + g.opts.BucketName
	if g.opts.Username != "" {
		name += "/" + g.opts.Username
	}
	return name
}

func (g *GCSUploader) objectName(localPath string) string {
	base := localPath
	if i := lastSlash(localPath); i >= 0 {
		base = localPath[i+1:]
	}
	if g.opts.Username != "" {
		return g.opts.Username + "/" + base
	}
	return base
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// Upload streams the archive at localPath into the bucket, retrying
// transient failures with a short backoff the way the teacher's retry
// helper did for its pack-file uploads.
func (g *GCSUploader) Upload(ctx context.Context, localPath string) error {
	name := g.objectName(localPath)

	var lastErr error
	for attempt := 0; attempt < g.opts.RetryAttempts; attempt++ {
		if lastErr != nil {
			time.Sleep(time.Duration(100*(attempt+1)) * time.Millisecond)
		}
		if err := g.uploadOnce(ctx, localPath, name); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return ezerr.Wrapf(ezerr.IO, lastErr, "uploading %s to %s after %d attempts", localPath, name, g.opts.RetryAttempts)
}

func (g *GCSUploader) uploadOnce(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	obj := g.bucket.Object(name)
	w := obj.NewWriter(ctx)
	w.ChunkSize = 256 * 1024
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("copying to gcs writer: %w", err)
	}
	return w.Close()
}
