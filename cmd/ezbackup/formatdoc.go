package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFormatDocCmd prints the on-disk format documentation, the way the
// teacher's readme.go keeps the storage format next to the code that
// implements it instead of in a separate doc that can drift.
func newFormatDocCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "format-doc",
		Short:  "Print the archive and config file wire formats",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(formatDocText)
			return nil
		},
	}
}

var formatDocText = `
# Archive layout

An ezbackup archive is a tar stream, optionally filtered through a
compressor and then a cipher. Every member's name is its logical path
inside the archive:

	/files/<absolute-source-path>   one member per backed-up file
	/checksums                      sorted "path\0hex\n" digest index
	/removed                        newline-terminated list of paths
	                                 deleted since the prior run

/checksums is sorted by path so it supports binary-search lookup without
loading the whole index into memory; see index.DigestIndex.

# Compression

Applied to the raw tar stream before encryption, selected by -c/
--compressor. A compressed archive's magic bytes identify the filter;
archive.Open auto-detects which one was used, so restore/mount never
need to be told.

# Encryption

Applied last, after compression, so compression still has uncompressed
data to work with. An encrypted archive is:

	"Salted__" (8 bytes) || salt (8 bytes) || ciphertext

where ciphertext is the (possibly compressed) tar stream encrypted under
a key and IV derived from the user's password and the salt via the
legacy OpenSSL-compatible BytesToKey construction (see crypt.DeriveKeys).
The cipher name (e.g. "aes-256-cbc") is recorded in the config file's
ENC_ALGORITHM field, not in the archive itself, since the -e flag is
supplied out of band.

# Reed-Solomon sidecar

When --protect is given, ezbackup writes a second file next to the
finished archive, named "<archive>.rs", holding the hashes and parity
shards needed to detect and repair bit-level corruption (see the rdso
package). It's independent of the archive's own format and not required
to read the archive back.

# Config file

Persisted at $HOME/.ezbackup as a sequence of "KEY=value" lines joined by
"\n", where each string value is itself NUL-terminated (possibly several
times, for multi-valued keys like DIRECTORIES and EXCLUDE) and the
numeric C_LEVEL and FLAGS values are plain decimal. See config.Save/Load
for the exact key list.
`
