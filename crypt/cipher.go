package crypt

import (
	"crypto/aes"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// Cipher names a block cipher + mode pair, the way the -e/--encryption
// flag and the ENC_ALGORITHM config key do.
type Cipher string

const (
	AES128CBC Cipher = "aes-128-cbc"
	AES192CBC Cipher = "aes-192-cbc"
	AES256CBC Cipher = "aes-256-cbc"
)

type cipherSpec struct {
	keyLen int
	ivLen  int
}

var cipherSpecs = map[Cipher]cipherSpec{
	AES128CBC: {keyLen: 16, ivLen: aes.BlockSize},
	AES192CBC: {keyLen: 24, ivLen: aes.BlockSize},
	AES256CBC: {keyLen: 32, ivLen: aes.BlockSize},
}

func (c Cipher) spec() (cipherSpec, error) {
	s, ok := cipherSpecs[c]
	if !ok {
		return cipherSpec{}, ezerr.Newf(ezerr.Config, "unknown cipher %q", string(c))
	}
	return s, nil
}

// KeyLen returns the key length in bytes for c.
func (c Cipher) KeyLen() (int, error) {
	s, err := c.spec()
	return s.keyLen, err
}

// IVLen returns the IV length in bytes for c (the AES block size for
// every mode this tool supports).
func (c Cipher) IVLen() (int, error) {
	s, err := c.spec()
	return s.ivLen, err
}
