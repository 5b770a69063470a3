package index

import (
	"bufio"
	"io"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// Removed writes, to w, every path present in prior but absent from
// current, one per line. Both indexes must already be sorted; this is a
// single linear merge walk, O(n+m) time and O(1) memory, the way the
// original derives its removed-file list from two sorted checksum files.
func Removed(prior, current *DigestIndex, w io.Writer) error {
	if prior == nil {
		return nil
	}

	pf, err := os.Open(prior.path)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "opening prior index %s", prior.path)
	}
	defer pf.Close()
	pr := bufio.NewReader(pf)

	var cr *bufio.Reader
	if current != nil {
		cf, err := os.Open(current.path)
		if err != nil {
			return ezerr.Wrapf(ezerr.IO, err, "opening current index %s", current.path)
		}
		defer cf.Close()
		cr = bufio.NewReader(cf)
	}

	pRec, pErr := readRecord(pr)
	var cRec Record
	var cErr error = io.EOF
	if cr != nil {
		cRec, cErr = readRecord(cr)
	}

	bw := bufio.NewWriter(w)
	for pErr != io.EOF {
		if pErr != nil {
			return pErr
		}
		switch {
		case cErr == io.EOF || pRec.Path < cRec.Path:
			if _, err := bw.WriteString(pRec.Path + "\n"); err != nil {
				return ezerr.Wrap(ezerr.IO, err, "writing removed-list")
			}
			pRec, pErr = readRecord(pr)
		case pRec.Path == cRec.Path:
			pRec, pErr = readRecord(pr)
			cRec, cErr = readRecord(cr)
		default: // cRec.Path < pRec.Path
			cRec, cErr = readRecord(cr)
			if cErr != nil && cErr != io.EOF {
				return cErr
			}
		}
	}
	return bw.Flush()
}
