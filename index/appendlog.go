package index

import (
	"bufio"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// AppendLog is the unsorted write side of a DigestIndex: every file the
// walk visits gets one Append call, whether or not its contents changed.
type AppendLog struct {
	f *os.File
	w *bufio.Writer
}

// NewAppendLog creates a fresh append log backed by a new temp file.
func NewAppendLog(tmpDir, prefix string) (*AppendLog, error) {
	f, err := os.CreateTemp(tmpDir, prefix+"_*")
	if err != nil {
		return nil, ezerr.Wrap(ezerr.IO, err, "creating digest append log")
	}
	return &AppendLog{f: f, w: bufio.NewWriter(f)}, nil
}

// Append records one (path, hex) pair. Paths containing a NUL or newline
// byte are rejected, since those are the record's own delimiters.
func (l *AppendLog) Append(path, hex string) error {
	if err := writeRecord(l.w, Record{Path: path, Hex: hex}); err != nil {
		return err
	}
	return nil
}

// Path returns the backing temp file's path, for handing to Sort.
func (l *AppendLog) Path() string {
	return l.f.Name()
}

// Close flushes and closes the backing file without removing it.
func (l *AppendLog) Close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return ezerr.Wrap(ezerr.IO, err, "flushing digest append log")
	}
	return l.f.Close()
}

// Remove closes (if not already) and unlinks the backing file.
func (l *AppendLog) Remove() error {
	l.f.Close()
	return os.Remove(l.f.Name())
}
