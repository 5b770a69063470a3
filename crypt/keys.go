package crypt

import (
	"crypto/rand"
	"io"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
	u "github.com/jonathanrlemos/ezbackup/util"
)

// state is a bit field mirroring struct crypt_keys's flag_encryption_set
// / flag_salt_extracted / flag_keys_set trio: the later, more defensive
// of the two crypt module variants in the source, chosen because it
// rejects out-of-order calls instead of segfaulting on uninitialized
// pointers.
type state uint8

const (
	stateCipherSet state = 1 << iota
	stateSaltSet
	stateKeysSet
	stateTerminal
)

// Keys is a CryptoKeys handle: set_cipher, then gen_salt or extract_salt,
// then derive_keys, then any number of encrypt/decrypt calls, then scrub.
// Calls out of that order fail with ezerr.CryptoState instead of
// operating on uninitialized key material.
type Keys struct {
	st     state
	cipher Cipher
	salt   [8]byte
	key    []byte
	iv     []byte

	kdfDigest    KDFDigest
	kdfIterations int
}

// New returns a fresh, unconfigured Keys handle (state NEW).
func New() *Keys {
	return &Keys{kdfDigest: KDFSHA256, kdfIterations: 1}
}

// SetKDF overrides the digest/iteration-count pair used by DeriveKeys.
// Must be called before DeriveKeys; has no effect after.
func (k *Keys) SetKDF(digest KDFDigest, iterations int) {
	k.kdfDigest = digest
	k.kdfIterations = iterations
}

// SetCipher moves the handle from NEW to CIPHER_SET.
func (k *Keys) SetCipher(c Cipher) error {
	if k.st != 0 {
		return ezerr.Newf(ezerr.CryptoState, "SetCipher called in state %v, want NEW", k.st)
	}
	if _, err := c.spec(); err != nil {
		return err
	}
	k.cipher = c
	k.st = stateCipherSet
	return nil
}

// GenSalt generates a fresh random 8-byte salt via the CSPRNG-with-
// /dev/urandom-fallback policy, moving CIPHER_SET to CIPHER_SET+SALT.
func (k *Keys) GenSalt() error {
	if k.st != stateCipherSet {
		return ezerr.Newf(ezerr.CryptoState, "GenSalt called in state %v, want CIPHER_SET", k.st)
	}
	if err := randomBytes(k.salt[:]); err != nil {
		return err
	}
	k.st |= stateSaltSet
	return nil
}

// SetSalt installs a salt extracted from an existing encrypted archive
// (the decrypt-side counterpart of GenSalt), moving CIPHER_SET to
// CIPHER_SET+SALT.
func (k *Keys) SetSalt(salt [8]byte) error {
	if k.st != stateCipherSet {
		return ezerr.Newf(ezerr.CryptoState, "SetSalt called in state %v, want CIPHER_SET", k.st)
	}
	k.salt = salt
	k.st |= stateSaltSet
	return nil
}

// Salt returns the handle's salt. Valid once GenSalt or SetSalt has run.
func (k *Keys) Salt() [8]byte { return k.salt }

// DeriveKeys runs EVPBytesToKey over password and the handle's salt,
// moving CIPHER_SET+SALT to READY. password is not retained; callers are
// responsible for scrubbing their own copy per spec section 4.7 rule 2.
func (k *Keys) DeriveKeys(password []byte) error {
	want := stateCipherSet | stateSaltSet
	if k.st != want {
		return ezerr.Newf(ezerr.CryptoState, "DeriveKeys called in state %v, want CIPHER_SET+SALT", k.st)
	}
	keyLen, err := k.cipher.KeyLen()
	if err != nil {
		return err
	}
	ivLen, err := k.cipher.IVLen()
	if err != nil {
		return err
	}
	key, iv, err := EVPBytesToKey(k.kdfDigest, password, k.salt[:], k.kdfIterations, keyLen, ivLen)
	if err != nil {
		return ezerr.Wrap(ezerr.Crypto, err, "deriving keys")
	}
	k.key = key
	k.iv = iv
	k.st |= stateKeysSet
	return nil
}

func (k *Keys) ready() bool {
	return k.st == stateCipherSet|stateSaltSet|stateKeysSet
}

func (k *Keys) requireReady(op string) error {
	if !k.ready() {
		return ezerr.Newf(ezerr.CryptoState, "%s called in state %v, want READY", op, k.st)
	}
	return nil
}

// Scrub overwrites the key and IV with CSPRNG bytes and moves the handle
// to TERMINAL. Any further call other than Scrub itself (idempotent)
// fails with ezerr.CryptoState.
func (k *Keys) Scrub() error {
	if k.st == stateTerminal {
		return nil
	}
	var firstErr error
	if err := u.Scrub(k.key); err != nil {
		firstErr = err
	}
	if err := u.Scrub(k.iv); err != nil && firstErr == nil {
		firstErr = err
	}
	k.key = nil
	k.iv = nil
	k.st = stateTerminal
	return firstErr
}

// randomBytes fills b from the CSPRNG, falling back to /dev/urandom, and
// aborts (returns ezerr.Crypto) rather than ever downgrading to a
// non-cryptographic generator.
func randomBytes(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err == nil {
		return nil
	}
	f, err := os.Open("/dev/urandom")
	if err != nil {
		return ezerr.Wrap(ezerr.Crypto, err, "CSPRNG exhausted and /dev/urandom unavailable")
	}
	defer f.Close()
	if _, err := io.ReadFull(f, b); err != nil {
		return ezerr.Wrap(ezerr.Crypto, err, "reading /dev/urandom")
	}
	return nil
}
