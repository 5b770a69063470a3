package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

// TempFile is a mkstemp-style temporary file with a guaranteed-release
// scope: call Close to remove it on every exit path, success or failure,
// the way the original tool's struct TMPFILE / temp_fopen / temp_fclose
// did. The zero value is not usable; use NewTempFile.
type TempFile struct {
	*os.File
	removed bool
}

// TempDir is where the backup orchestrator and NewTempFile create their
// temp files, matching the original tool's hardcoded
// /var/tmp/<prefix>_XXXXXX convention.
var TempDir = "/var/tmp"

// NewTempFile creates a new temp file under TempDir whose name begins
// with prefix.
func NewTempFile(prefix string) (*TempFile, error) {
	f, err := os.CreateTemp(TempDir, prefix+"_*")
	if err != nil {
		return nil, err
	}
	return &TempFile{File: f}, nil
}

// Close closes the underlying file and unlinks it. Safe to call multiple
// times. The error returned is only the close error; removal failures are
// swallowed since the file may already be gone (e.g. after Shred).
func (t *TempFile) Close() error {
	err := t.File.Close()
	if !t.removed {
		os.Remove(t.Name())
		t.removed = true
	}
	return err
}

// Shred overwrites the file's bytes with random data before unlinking it,
// per spec section 4.8 step 3 ("Shred the decrypted temp file").
func (t *TempFile) Shred() error {
	fi, err := t.File.Stat()
	if err != nil {
		return err
	}
	if _, err := t.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	remaining := fi.Size()
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return err
		}
		if _, err := t.File.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	if err := t.File.Sync(); err != nil {
		return err
	}
	return t.Close()
}

// ShredPath overwrites and unlinks a file by path, for cases where we
// don't hold a *TempFile handle (e.g. a path handed to us by a caller).
func ShredPath(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("shred %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	buf := make([]byte, 64*1024)
	remaining := fi.Size()
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			f.Close()
			return err
		}
		if _, err := f.Write(buf[:n]); err != nil {
			f.Close()
			return err
		}
		remaining -= n
	}
	f.Sync()
	f.Close()
	return os.Remove(path)
}
