// Package archive wraps archive/tar with a compression filter chain,
// presenting the "add a stream at a logical path, close once" contract
// the backup orchestrator drives. The tar format itself is treated as an
// opaque streaming container, the way the teacher treats its own
// layered writers: open the destination, stack filters on top, and close
// them in reverse order.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/jonathanrlemos/ezbackup/ezerr"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// Compression names a filter applied on top of the tar stream.
type Compression string

const (
	None  Compression = "none"
	Gzip  Compression = "gzip"
	Bzip2 Compression = "bzip2"
	Xz    Compression = "xz"
	Lz4   Compression = "lz4"
)

// Ext returns the filename extension conventionally appended for c, or
// "" for None.
func (c Compression) Ext() string {
	switch c {
	case Gzip:
		return "gz"
	case Bzip2:
		return "bz2"
	case Xz:
		return "xz"
	case Lz4:
		return "lz4"
	default:
		return ""
	}
}

// writerAvailable reports whether this build can produce c, as opposed
// to merely recognizing the identifier. bzip2 and xz have no
// writer-capable library in the dependency set this tool was built
// against (the standard library's compress/bzip2 is read-only, and no
// retrieved example imports a writer for either), so Create rejects them
// with ConfigError rather than silently falling back to None.
func (c Compression) writerAvailable() bool {
	switch c {
	case None, Gzip, Lz4:
		return true
	default:
		return false
	}
}

// Writer creates tar members at logical archive paths, optionally
// through a compression filter, and must be Close'd on every exit path
// or the archive will be truncated.
type Writer struct {
	f       *os.File
	closers []io.Closer
	tw      *tar.Writer
}

// Create opens outPath and stacks a tar writer on top of the requested
// compression filter. level is passed through to the filter; 0 means
// "library default" for gzip, and is documented here rather than leaked
// into the filter's own semantics, per the CLI's --compressor contract.
func Create(outPath string, compression Compression, level int) (*Writer, error) {
	if !compression.writerAvailable() {
		return nil, ezerr.Newf(ezerr.Config, "compressor %q has no writer implementation in this build", compression)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return nil, ezerr.Wrapf(ezerr.IO, err, "creating archive %s", outPath)
	}

	w := &Writer{f: f, closers: []io.Closer{f}}
	var dest io.Writer = f

	switch compression {
	case Gzip:
		gzLevel := level
		if gzLevel == 0 {
			gzLevel = gzip.DefaultCompression
		}
		gw, err := gzip.NewWriterLevel(f, gzLevel)
		if err != nil {
			w.closeAll()
			return nil, ezerr.Wrap(ezerr.IO, err, "creating gzip writer")
		}
		w.closers = append(w.closers, gw)
		dest = gw
	case Lz4:
		lw := lz4.NewWriter(f)
		if level > 0 {
			_ = lw.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(level)))
		}
		w.closers = append(w.closers, lw)
		dest = lw
	case None:
		// dest stays the raw file.
	}

	w.tw = tar.NewWriter(dest)
	w.closers = append(w.closers, w.tw)
	return w, nil
}

// Metadata carries the per-member attributes the tar header needs.
type Metadata struct {
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	ATime   time.Time
	CTime   time.Time
	Uid     int
	Gid     int
}

// MetadataFromFileInfo builds Metadata from an os.FileInfo, resolving
// uid/gid and atime/ctime from the platform-specific Sys() value when
// available.
func MetadataFromFileInfo(fi os.FileInfo) Metadata {
	m := Metadata{
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		ATime:   fi.ModTime(),
		CTime:   fi.ModTime(),
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		m.Uid = int(st.Uid)
		m.Gid = int(st.Gid)
		m.ATime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		m.CTime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return m
}

// AddStream writes a header derived from meta at logicalPath, then
// streams r's bytes in as the member's payload. Mode bits are masked to
// 01777 (permission bits plus sticky; no setuid/setgid leakage, per the
// original tool's permission policy), and the owner/group names are
// resolved best-effort since not every platform exposes a passwd/group
// database.
func (w *Writer) AddStream(r io.Reader, logicalPath string, meta Metadata) error {
	mode := int64(meta.Mode.Perm())
	if meta.Mode&os.ModeSticky != 0 {
		mode |= 01000
	}
	hdr := &tar.Header{
		Name:     logicalPath,
		Size:     meta.Size,
		Mode:     mode,
		ModTime:  meta.ModTime,
		AccessTime: meta.ATime,
		ChangeTime: meta.CTime,
		Uid:      meta.Uid,
		Gid:      meta.Gid,
		Typeflag: tar.TypeReg,
	}
	if u, err := user.LookupId(strconv.Itoa(meta.Uid)); err == nil {
		hdr.Uname = u.Username
	}
	if g, err := user.LookupGroupId(strconv.Itoa(meta.Gid)); err == nil {
		hdr.Gname = g.Name
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "writing header for %s", logicalPath)
	}
	if _, err := io.Copy(w.tw, r); err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "streaming payload for %s", logicalPath)
	}
	return nil
}

// AddFile is a convenience wrapper that opens path and streams it as
// logicalPath, building Metadata from the file's own stat.
func (w *Writer) AddFile(path, logicalPath string) error {
	f, err := os.Open(path)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "opening %s to add to archive", path)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "stat %s", path)
	}
	return w.AddStream(f, logicalPath, MetadataFromFileInfo(fi))
}

// Close flushes and finalizes the archive, closing every stacked filter
// in reverse order. Must be called on every exit path.
func (w *Writer) Close() error {
	return w.closeAll()
}

func (w *Writer) closeAll() error {
	var firstErr error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return ezerr.Wrap(ezerr.IO, firstErr, "closing archive")
	}
	return nil
}
