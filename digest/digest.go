// Package digest computes streaming content digests over file bytes, the
// first half of the change-detection protocol that drives incremental
// backups: a fresh digest is compared against the one recorded for the
// same path in the previous run's index.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// Algorithm names a digest function. The string form is what appears in
// config files and the -C/--checksum flag.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// Valid reports whether a is one of the supported algorithms.
func (a Algorithm) Valid() bool {
	switch a {
	case MD5, SHA1, SHA256, SHA512:
		return true
	default:
		return false
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, ezerr.Newf(ezerr.Config, "unknown digest algorithm %q", string(a))
	}
}

// Width returns the hex-encoded width of algo's digest, 0 if unknown.
func Width(algo Algorithm) int {
	switch algo {
	case MD5:
		return md5.Size * 2
	case SHA1:
		return sha1.Size * 2
	case SHA256:
		return sha256.Size * 2
	case SHA512:
		return sha512.Size * 2
	default:
		return 0
	}
}

// bufSize is the chunk size used to stream bytes through the hash
// function; spec requires at least 64 KiB.
const bufSize = 256 * 1024

// Sum streams r through algo and returns the lowercase hex digest.
func Sum(r io.Reader, algo Algorithm) (string, error) {
	h, err := algo.newHash()
	if err != nil {
		return "", err
	}
	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", ezerr.Wrap(ezerr.Crypto, werr, "hashing bytes")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", ezerr.Wrap(ezerr.IO, err, "reading bytes to digest")
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile opens path and returns its digest, wrapping open failures as
// IoError the way Sum itself does for read failures.
func SumFile(path string, algo Algorithm) (string, error) {
	f, err := openRegular(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Sum(f, algo)
}
