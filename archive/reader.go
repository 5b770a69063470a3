package archive

import (
	"archive/tar"
	"io"
	"os"
	"time"

	"github.com/jonathanrlemos/ezbackup/ezerr"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// Reader streams members back out of an archive written by Writer. The
// compression filter is auto-detected from the stream's magic bytes, so
// callers don't need to know ahead of time how the archive was
// compressed (mirroring how tar.Reader itself needs no format hint).
type Reader struct {
	f   *os.File
	tr  *tar.Reader
	cur *tar.Header
}

// Open opens path for member-by-member reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ezerr.Wrapf(ezerr.IO, err, "opening archive %s", path)
	}
	src, err := detectFilter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, tr: tar.NewReader(src)}, nil
}

func detectFilter(f *os.File) (io.Reader, error) {
	magic := make([]byte, 4)
	n, err := io.ReadFull(f, magic)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, ezerr.Wrap(ezerr.IO, err, "reading archive magic bytes")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, ezerr.Wrap(ezerr.IO, err, "seeking archive back to start")
	}
	switch {
	case n >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, ezerr.Wrap(ezerr.Format, err, "opening gzip stream")
		}
		return gr, nil
	case n >= 4 && magic[0] == 0x04 && magic[1] == 0x22 && magic[2] == 0x4d && magic[3] == 0x18:
		return lz4.NewReader(f), nil
	default:
		return f, nil
	}
}

// Next advances to the next member, returning its logical path, or
// io.EOF when the archive is exhausted.
func (r *Reader) Next() (string, error) {
	hdr, err := r.tr.Next()
	if err == io.EOF {
		return "", io.EOF
	}
	if err != nil {
		return "", ezerr.Wrap(ezerr.Format, err, "reading archive header")
	}
	r.cur = hdr
	return hdr.Name, nil
}

// Size returns the current member's size as recorded in its tar header.
// Valid after a successful Next.
func (r *Reader) Size() int64 {
	if r.cur == nil {
		return 0
	}
	return r.cur.Size
}

// ModTime returns the current member's modification time.
func (r *Reader) ModTime() time.Time {
	if r.cur == nil {
		return time.Time{}
	}
	return r.cur.ModTime
}

// Read reads the current member's payload bytes.
func (r *Reader) Read(p []byte) (int, error) {
	return r.tr.Read(p)
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ExtractOne scans archivePath for the first member at logicalPath and
// writes its payload to outPath, then stops. Returns ezerr.Format if no
// such member exists.
func ExtractOne(archivePath, logicalPath, outPath string) error {
	r, err := Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		name, err := r.Next()
		if err == io.EOF {
			return ezerr.Newf(ezerr.Format, "%s: no member named %s", archivePath, logicalPath)
		}
		if err != nil {
			return err
		}
		if name != logicalPath {
			continue
		}
		out, err := os.Create(outPath)
		if err != nil {
			return ezerr.Wrapf(ezerr.IO, err, "creating %s", outPath)
		}
		if _, err := io.Copy(out, r); err != nil {
			out.Close()
			return ezerr.Wrapf(ezerr.IO, err, "extracting %s", logicalPath)
		}
		return out.Close()
	}
}

// ExtractAll walks every member of archivePath, calling fn with its
// logical path and a reader over its payload. fn's reader is only valid
// for the duration of the call. Used by the read-only mount filesystem
// and by the restore subcommand's linear extraction; it does not itself
// write anything to disk.
func ExtractAll(archivePath string, fn func(logicalPath string, r io.Reader) error) error {
	r, err := Open(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		name, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(name, r); err != nil {
			return err
		}
	}
}
