package cloud

import "testing"

func TestObjectNameNamespacesByUsername(t *testing.T) {
	g := &GCSUploader{opts: GCSOptions{BucketName: "backups", Username: "alice"}}
	got := g.objectName("/home/alice/Backups/backup-100.tar.gz")
	want := "alice/backup-100.tar.gz"
	if got != want {
		t.Errorf("objectName = %q, want %q", got, want)
	}
}

func TestObjectNameWithoutUsername(t *testing.T) {
	g := &GCSUploader{opts: GCSOptions{BucketName: "backups"}}
	got := g.objectName("/var/backups/backup-1.tar")
	if got != "backup-1.tar" {
		t.Errorf("objectName = %q, want backup-1.tar", got)
	}
}

func TestStringFormatsBucketURI(t *testing.T) {
	g := &GCSUploader{opts: GCSOptions{BucketName: "backups", Username: "alice"}}
	if got, want := g.String(), "gs://backups/alice"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// compile-time assertion that GCSUploader satisfies Uploader.
var _ Uploader = (*GCSUploader)(nil)
