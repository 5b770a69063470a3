// Package cloud implements the pluggable post-step named in spec section 1:
// once a backup archive is finalized on disk, an Uploader can push it
// somewhere durable. Adapted from the teacher's storage/gcs.go, which
// uploaded content-addressed pack files into a dedupe store; here there is
// exactly one file per run (the finished archive), so the chunking,
// dedupe, and resumable-upload machinery the teacher needed for its pack
// store doesn't apply.
package cloud

import "context"

// Uploader pushes a single finished archive to off-machine storage.
type Uploader interface {
	// Upload sends the file at localPath and reports any failure. The
	// backup orchestrator does not call Upload itself; the local archive
	// is already complete on disk before any upload runs.
	Upload(ctx context.Context, localPath string) error

	// String names the destination, for logging.
	String() string
}
