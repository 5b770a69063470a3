package crypt

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// KDFDigest names the message digest used inside EVPBytesToKey. This is a
// deliberately small, separate enum from digest.Algorithm: the KDF digest
// and the file-content digest are configured independently (spec section
// 4.7's "configurable digest, default sha256" is about key derivation,
// not file change detection), and conflating the two types would let a
// caller accidentally pass a content-digest algorithm where a KDF digest
// belongs.
type KDFDigest string

const (
	KDFMD5    KDFDigest = "md5"
	KDFSHA1   KDFDigest = "sha1"
	KDFSHA256 KDFDigest = "sha256"
	KDFSHA512 KDFDigest = "sha512"
)

func (d KDFDigest) newHash() (hash.Hash, error) {
	switch d {
	case KDFMD5:
		return md5.New(), nil
	case KDFSHA1:
		return sha1.New(), nil
	case KDFSHA256:
		return sha256.New(), nil
	case KDFSHA512:
		return sha512.New(), nil
	default:
		return nil, ezerr.Newf(ezerr.Config, "unknown KDF digest %q", string(d))
	}
}

// EVPBytesToKey reproduces OpenSSL's legacy (pre-3.0) EVP_BytesToKey key
// derivation exactly: it is not a modern KDF, and must not be replaced by
// one, because the "Salted__" archive format this tool produces has to
// stay byte-for-byte decryptable by the openssl command-line tool, which
// still implements this construction for backward compatibility.
//
// The algorithm repeatedly hashes (previous digest output || password ||
// salt) for `iterations` rounds per block, concatenating digest blocks
// until keyLen+ivLen bytes have been produced.
func EVPBytesToKey(digest KDFDigest, password, salt []byte, iterations, keyLen, ivLen int) (key, iv []byte, err error) {
	if iterations < 1 {
		iterations = 1
	}
	needed := keyLen + ivLen
	out := make([]byte, 0, needed)
	var prev []byte

	for len(out) < needed {
		h, err := digest.newHash()
		if err != nil {
			return nil, nil, err
		}
		h.Write(prev)
		h.Write(password)
		h.Write(salt)
		block := h.Sum(nil)
		for i := 1; i < iterations; i++ {
			h2, err := digest.newHash()
			if err != nil {
				return nil, nil, err
			}
			h2.Write(block)
			block = h2.Sum(nil)
		}
		out = append(out, block...)
		prev = block
	}

	return out[:keyLen], out[keyLen:needed], nil
}
