package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/config"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/digest"
)

// TestMain points HOME at a scratch directory so step 10's config persist
// never touches the real user's .ezbackup file.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "ezbackup_home")
	if err != nil {
		panic(err)
	}
	os.Setenv("HOME", dir)
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func baseOptions(t *testing.T, srcDirs []string, outDir string) config.Options {
	t.Helper()
	return config.Options{
		Directories:      srcDirs,
		HashAlgorithm:    digest.SHA256,
		Compressor:       archive.None,
		CompressionLevel: 0,
		OutputDirectory:  outDir,
	}
}

func listMembers(t *testing.T, archivePath string) map[string][]byte {
	t.Helper()
	members := make(map[string][]byte)
	err := archive.ExtractAll(archivePath, func(name string, r io.Reader) error {
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		members[name] = b
		return nil
	})
	if err != nil {
		t.Fatalf("listMembers: %v", err)
	}
	return members
}

func TestBackupEmptyTree(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	o := New(nil)
	res, err := o.Run(context.Background(), baseOptions(t, []string{src}, out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesScanned != 0 || res.FilesAdded != 0 {
		t.Errorf("expected an empty run, got %+v", res)
	}

	members := listMembers(t, res.ArchivePath)
	if _, ok := members["/checksums"]; !ok {
		t.Error("missing /checksums in empty-tree archive")
	}
	if _, ok := members["/removed"]; !ok {
		t.Error("missing /removed in empty-tree archive")
	}
}

func TestBackupSingleSmallFile(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	filePath := filepath.Join(src, "hello.txt")
	if err := os.WriteFile(filePath, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(nil)
	res, err := o.Run(context.Background(), baseOptions(t, []string{src}, out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FilesScanned != 1 || res.FilesAdded != 1 {
		t.Errorf("got %+v, want 1 scanned/1 added", res)
	}

	members := listMembers(t, res.ArchivePath)
	payload, ok := members["/files"+filePath]
	if !ok {
		t.Fatalf("archive missing /files%s; members: %v", filePath, keys(members))
	}
	if string(payload) != "hello world\n" {
		t.Errorf("payload = %q", payload)
	}
}

func TestBackupIncrementalNoOp(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	filePath := filepath.Join(src, "stable.txt")
	if err := os.WriteFile(filePath, []byte("unchanging"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(nil)
	opts := baseOptions(t, []string{src}, out)

	res1, err := o.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	opts2 := opts
	opts2.PrevBackup = res1.ArchivePath
	res2, err := o.Run(context.Background(), opts2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res2.FilesScanned != 1 {
		t.Errorf("second run scanned %d, want 1", res2.FilesScanned)
	}
	if res2.FilesAdded != 0 {
		t.Errorf("second run added %d files, want 0 (unchanged)", res2.FilesAdded)
	}

	members := listMembers(t, res2.ArchivePath)
	if _, ok := members["/files"+filePath]; ok {
		t.Error("unchanged file's payload was re-added to the second archive")
	}
	if _, ok := members["/checksums"]; !ok {
		t.Error("second archive missing /checksums")
	}
}

func TestBackupIncrementalWithDeletion(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	keep := filepath.Join(src, "keep.txt")
	gone := filepath.Join(src, "gone.txt")
	if err := os.WriteFile(keep, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gone, []byte("gone"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(nil)
	opts := baseOptions(t, []string{src}, out)
	res1, err := o.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	opts2 := opts
	opts2.PrevBackup = res1.ArchivePath
	res2, err := o.Run(context.Background(), opts2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res2.FilesRemoved != 1 {
		t.Errorf("FilesRemoved = %d, want 1", res2.FilesRemoved)
	}

	members := listMembers(t, res2.ArchivePath)
	removedList := string(members["/removed"])
	if removedList != gone+"\n" {
		t.Errorf("/removed = %q, want %q", removedList, gone+"\n")
	}
}

func TestBackupEncryptedRoundTrip(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	filePath := filepath.Join(src, "secret.txt")
	if err := os.WriteFile(filePath, []byte("classified"), 0o644); err != nil {
		t.Fatal(err)
	}

	cipher := crypt.AES256CBC
	opts := baseOptions(t, []string{src}, out)
	opts.EncAlgorithm = &cipher
	opts.EncPassword = []byte("correcthorsebatterystaple")

	o := New(nil)
	res, err := o.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := crypt.ExtractSalt(res.ArchivePath); err != nil {
		t.Fatalf("final archive is not Salted__-framed: %v", err)
	}

	plainPath, cleanup, err := OpenForRead(res.ArchivePath, &cipher, opts.EncPassword)
	if err != nil {
		t.Fatalf("OpenForRead: %v", err)
	}
	defer cleanup()

	members := listMembers(t, plainPath)
	payload, ok := members["/files"+filePath]
	if !ok {
		t.Fatalf("decrypted archive missing /files%s", filePath)
	}
	if string(payload) != "classified" {
		t.Errorf("payload = %q", payload)
	}
}

func keys(m map[string][]byte) []string {
	var ks []string
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}
