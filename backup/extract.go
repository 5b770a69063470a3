package backup

import (
	"os"

	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/ezerr"
	u "github.com/jonathanrlemos/ezbackup/util"
)

// OpenForRead makes archivePath readable by archive.Open/ExtractOne/
// ExtractAll regardless of whether it's encrypted: if cipher is non-nil,
// it decrypts to a temp file and returns that path plus a cleanup that
// shreds it; otherwise it returns archivePath untouched with a no-op
// cleanup. This is the minimal extract-side counterpart the mount
// filesystem and the restore subcommand need; it is not itself a restore
// implementation (no mode/time/ownership restoration, no write-back).
func OpenForRead(archivePath string, cipher *crypt.Cipher, password []byte) (plainPath string, cleanup func(), err error) {
	if cipher == nil {
		return archivePath, func() {}, nil
	}

	decTemp, err := tempPath("ezbackup_read_dec")
	if err != nil {
		return "", func() {}, ezerr.Wrap(ezerr.IO, err, "creating temp file to decrypt for reading")
	}

	salt, err := crypt.ExtractSalt(archivePath)
	if err != nil {
		os.Remove(decTemp)
		return "", func() {}, err
	}
	k := crypt.New()
	if err := k.SetCipher(*cipher); err != nil {
		os.Remove(decTemp)
		return "", func() {}, err
	}
	if err := k.SetSalt(salt); err != nil {
		os.Remove(decTemp)
		return "", func() {}, err
	}
	if err := k.DeriveKeys(password); err != nil {
		os.Remove(decTemp)
		return "", func() {}, err
	}
	derr := crypt.Decrypt(k, archivePath, decTemp)
	k.Scrub()
	if derr != nil {
		os.Remove(decTemp)
		return "", func() {}, derr
	}

	return decTemp, func() { u.ShredPath(decTemp) }, nil
}
