package index

import (
	"bufio"
	"io"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// DigestIndex is a read-only view of a sorted "path\0hex\n" file,
// supporting point lookups by binary search and sequential iteration.
type DigestIndex struct {
	path string
	size int64
}

// Open opens a previously-sorted digest index file for lookup/iteration.
func Open(path string) (*DigestIndex, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, ezerr.Wrapf(ezerr.IO, err, "opening digest index %s", path)
	}
	return &DigestIndex{path: path, size: fi.Size()}, nil
}

// Path returns the backing file path.
func (d *DigestIndex) Path() string { return d.path }

// Lookup binary-searches for path, returning (hex, true, nil) on a hit,
// ("", false, nil) on a clean miss, and a non-nil error only on I/O or
// format failure.
func (d *DigestIndex) Lookup(path string) (string, bool, error) {
	if d.size == 0 {
		return "", false, nil
	}
	f, err := os.Open(d.path)
	if err != nil {
		return "", false, ezerr.Wrapf(ezerr.IO, err, "opening %s for lookup", d.path)
	}
	defer f.Close()

	lo, hi := int64(0), d.size
	for lo < hi {
		mid := lo + (hi-lo)/2
		boundary, err := seekToRecordStart(f, mid)
		if err != nil {
			return "", false, err
		}
		rec, ok, err := peekRecord(f)
		if err != nil {
			return "", false, err
		}
		if !ok {
			// Everything from boundary onward was blank; search the lower
			// half.
			hi = boundary
			continue
		}
		switch {
		case rec.Path == path:
			return rec.Hex, true, nil
		case rec.Path < path:
			lo = boundary + recordLen(rec)
		default:
			hi = boundary
		}
	}
	return "", false, nil
}

func recordLen(r Record) int64 {
	return int64(len(r.Path) + 1 + len(r.Hex) + 1)
}

// seekToRecordStart seeks f to the start of the record containing byte
// offset off: it seeks to off, then scans backward conceptually by
// scanning forward from the previous newline. Since os.File has no
// backward-scan primitive here, we instead seek to off and then read
// backward byte-by-byte until a newline (or start of file) is found.
func seekToRecordStart(f *os.File, off int64) (int64, error) {
	if off == 0 {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, ezerr.Wrap(ezerr.IO, err, "seeking digest index")
		}
		return 0, nil
	}
	pos := off
	buf := make([]byte, 1)
	for pos > 0 {
		if _, err := f.ReadAt(buf, pos-1); err != nil {
			return 0, ezerr.Wrap(ezerr.IO, err, "scanning digest index for record boundary")
		}
		if buf[0] == '\n' {
			break
		}
		pos--
	}
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return 0, ezerr.Wrap(ezerr.IO, err, "seeking digest index")
	}
	return pos, nil
}

// peekRecord reads one record starting at f's current offset without
// disturbing the caller's notion of "current boundary" beyond that.
func peekRecord(f *os.File) (Record, bool, error) {
	r := bufio.NewReader(f)
	rec, err := readRecord(r)
	if err == io.EOF {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Iterate streams every record in order, calling fn for each. Iteration
// stops at the first error fn returns, which Iterate then returns.
func (d *DigestIndex) Iterate(fn func(Record) error) error {
	f, err := os.Open(d.path)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "opening %s to iterate", d.path)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
