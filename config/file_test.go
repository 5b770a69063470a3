package config

import (
	"path/filepath"
	"testing"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/digest"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	cipher := crypt.AES256CBC
	o := Options{
		Directories:      []string{"/home/user/docs", "/etc"},
		Exclude:          []string{"/home/user/docs/tmp"},
		HashAlgorithm:    digest.SHA256,
		EncAlgorithm:     &cipher,
		Compressor:       archive.Gzip,
		CompressionLevel: 6,
		OutputDirectory:  "/home/user/Backups",
		CloudUsername:    "alice",
		PrevBackup:       "/home/user/Backups/backup-100.tar.gz.aes-256-cbc",
		Verbose:          true,
	}

	path := filepath.Join(t.TempDir(), ".ezbackup")
	if err := Save(path, o, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !equalSlices(got.Directories, o.Directories) {
		t.Errorf("Directories = %v, want %v", got.Directories, o.Directories)
	}
	if !equalSlices(got.Exclude, o.Exclude) {
		t.Errorf("Exclude = %v, want %v", got.Exclude, o.Exclude)
	}
	if got.HashAlgorithm != o.HashAlgorithm {
		t.Errorf("HashAlgorithm = %v, want %v", got.HashAlgorithm, o.HashAlgorithm)
	}
	if got.EncAlgorithm == nil || *got.EncAlgorithm != *o.EncAlgorithm {
		t.Errorf("EncAlgorithm = %v, want %v", got.EncAlgorithm, o.EncAlgorithm)
	}
	if got.Compressor != o.Compressor {
		t.Errorf("Compressor = %v, want %v", got.Compressor, o.Compressor)
	}
	if got.CompressionLevel != o.CompressionLevel {
		t.Errorf("CompressionLevel = %d, want %d", got.CompressionLevel, o.CompressionLevel)
	}
	if got.OutputDirectory != o.OutputDirectory {
		t.Errorf("OutputDirectory = %q, want %q", got.OutputDirectory, o.OutputDirectory)
	}
	if got.PrevBackup != o.PrevBackup {
		t.Errorf("PrevBackup = %q, want %q", got.PrevBackup, o.PrevBackup)
	}
	if !got.Verbose {
		t.Error("Verbose lost across round trip")
	}
	if len(got.EncPassword) != 0 {
		t.Error("password was persisted despite persistPassword=false")
	}
}

func TestSavePasswordOptIn(t *testing.T) {
	o := Options{EncPassword: []byte("swordfish")}
	path := filepath.Join(t.TempDir(), ".ezbackup")
	if err := Save(path, o, true); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.EncPassword) != "swordfish" {
		t.Errorf("EncPassword = %q, want %q", got.EncPassword, "swordfish")
	}
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if len(got.Directories) != 0 {
		t.Errorf("expected zero-value Options, got %+v", got)
	}
}

func TestHasPriorArchive(t *testing.T) {
	cases := []struct {
		prev string
		want bool
	}{
		{"", false},
		{"none", false},
		{"/home/user/Backups/backup-1.tar", true},
	}
	for _, c := range cases {
		o := Options{PrevBackup: c.prev}
		if got := o.HasPriorArchive(); got != c.want {
			t.Errorf("HasPriorArchive(%q) = %v, want %v", c.prev, got, c.want)
		}
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
