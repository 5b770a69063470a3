package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"io"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// saltedMagic is the literal 8-byte header OpenSSL's command-line tool
// writes at the start of a salted, password-derived ciphertext.
var saltedMagic = [8]byte{'S', 'a', 'l', 't', 'e', 'd', '_', '_'}

const streamChunkSize = 64 * 1024

// Encrypt streams inPath through k (which must be READY) and writes the
// "Salted__" || salt || ciphertext framing to outPath. On any failure
// after outPath is created, the partial output file is removed; I/O
// failures are returned as IoError and cipher failures as CryptoError.
func Encrypt(k *Keys, inPath, outPath string) error {
	if err := k.requireReady("Encrypt"); err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "opening %s to encrypt", inPath)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "creating %s", outPath)
	}

	if err := encryptStream(k, in, out); err != nil {
		out.Close()
		os.Remove(outPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return ezerr.Wrap(ezerr.IO, err, "closing encrypted output")
	}
	return nil
}

func encryptStream(k *Keys, in io.Reader, out io.Writer) error {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return ezerr.Wrap(ezerr.Crypto, err, "initializing cipher")
	}
	cbc := cipher.NewCBCEncrypter(block, k.iv)

	if _, err := out.Write(saltedMagic[:]); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "writing salt header")
	}
	if _, err := out.Write(k.salt[:]); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "writing salt")
	}

	bs := cbc.BlockSize()
	buf := make([]byte, streamChunkSize)
	var pending []byte

	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			whole := len(pending) - (len(pending) % bs)
			if whole > 0 {
				enc := make([]byte, whole)
				cbc.CryptBlocks(enc, pending[:whole])
				if _, err := out.Write(enc); err != nil {
					return ezerr.Wrap(ezerr.IO, err, "writing ciphertext")
				}
				pending = pending[whole:]
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ezerr.Wrap(ezerr.IO, rerr, "reading plaintext")
		}
	}

	padded, err := pkcs7Pad(pending, bs)
	if err != nil {
		return err
	}
	enc := make([]byte, len(padded))
	cbc.CryptBlocks(enc, padded)
	if _, err := out.Write(enc); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "writing final ciphertext block")
	}
	return nil
}

// Decrypt requires an already-READY k whose salt came from ExtractSalt
// on the same file. It verifies the "Salted__" magic, skips the 16-byte
// header, and streams the decrypted payload to outPath; the salt bytes in
// the header are not compared against k's salt.
func Decrypt(k *Keys, inPath, outPath string) error {
	if err := k.requireReady("Decrypt"); err != nil {
		return err
	}

	in, err := os.Open(inPath)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "opening %s to decrypt", inPath)
	}
	defer in.Close()

	var header [16]byte
	if _, err := io.ReadFull(in, header[:]); err != nil {
		return ezerr.Wrap(ezerr.Format, err, "reading encrypted header")
	}
	if !bytes.Equal(header[:8], saltedMagic[:]) {
		return ezerr.New(ezerr.Format, "missing Salted__ magic bytes")
	}

	out, err := os.Create(outPath)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "creating %s", outPath)
	}
	if err := decryptStream(k, in, out); err != nil {
		out.Close()
		os.Remove(outPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return ezerr.Wrap(ezerr.IO, err, "closing decrypted output")
	}
	return nil
}

// ExtractSalt reads just the 16-byte header from inPath and returns the
// salt, verifying the magic, without requiring a READY Keys handle. It
// is the decrypt-side counterpart to GenSalt: callers pass the result to
// Keys.SetSalt before DeriveKeys.
func ExtractSalt(inPath string) ([8]byte, error) {
	var salt [8]byte
	f, err := os.Open(inPath)
	if err != nil {
		return salt, ezerr.Wrapf(ezerr.IO, err, "opening %s", inPath)
	}
	defer f.Close()
	var header [16]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return salt, ezerr.Wrap(ezerr.Format, err, "reading encrypted header")
	}
	if !bytes.Equal(header[:8], saltedMagic[:]) {
		return salt, ezerr.New(ezerr.Format, "missing Salted__ magic bytes")
	}
	copy(salt[:], header[8:])
	return salt, nil
}

// decryptStream decrypts a CBC stream one block behind the read cursor:
// it only ever emits blocks it is certain aren't the ciphertext's final
// block, holding exactly one full block back until EOF so the final
// block can be un-padded in isolation.
func decryptStream(k *Keys, in io.Reader, out io.Writer) error {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return ezerr.Wrap(ezerr.Crypto, err, "initializing cipher")
	}
	cbc := cipher.NewCBCDecrypter(block, k.iv)
	bs := cbc.BlockSize()

	chunk := make([]byte, streamChunkSize)
	var pending []byte

	for {
		n, rerr := in.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			nFull := len(pending) / bs
			if nFull > 1 {
				emit := (nFull - 1) * bs
				dec := make([]byte, emit)
				cbc.CryptBlocks(dec, pending[:emit])
				if _, err := out.Write(dec); err != nil {
					return ezerr.Wrap(ezerr.IO, err, "writing plaintext")
				}
				pending = pending[emit:]
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ezerr.Wrap(ezerr.IO, rerr, "reading ciphertext")
		}
	}

	if len(pending) == 0 || len(pending)%bs != 0 {
		return ezerr.New(ezerr.Format, "truncated ciphertext: not a whole number of blocks")
	}
	dec := make([]byte, len(pending))
	cbc.CryptBlocks(dec, pending)
	unpadded, err := pkcs7Unpad(dec, bs)
	if err != nil {
		return err
	}
	if _, err := out.Write(unpadded); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "writing final plaintext block")
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) ([]byte, error) {
	if blockSize <= 0 || blockSize > 255 {
		return nil, ezerr.Newf(ezerr.Crypto, "invalid block size %d", blockSize)
	}
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out, nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ezerr.New(ezerr.Format, "ciphertext is not block-aligned")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, ezerr.New(ezerr.Format, "invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, ezerr.New(ezerr.Format, "invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-pad], nil
}
