package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/backup"
	"github.com/jonathanrlemos/ezbackup/crypt"
)

// newRestoreCmd extracts every /files member of one archive back onto
// disk under its recorded absolute path. It does not restore mode,
// ownership, or mtime, and it never writes outside --into: a full
// restore tool (permissions, partial restore, conflict resolution) is
// left to an external collaborator, matching the project's scope.
func newRestoreCmd() *cobra.Command {
	var encryption, password, into string
	cmd := &cobra.Command{
		Use:   "restore <archive>",
		Short: "Extract an archive's files back to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath := args[0]

			var cipher *crypt.Cipher
			var pw []byte
			if encryption != "" {
				c := crypt.Cipher(encryption)
				cipher = &c
				p, err := resolvePassword(password)
				if err != nil {
					return err
				}
				pw = p
			}

			plainPath, cleanup, err := backup.OpenForRead(archivePath, cipher, pw)
			if err != nil {
				return err
			}
			defer cleanup()

			count := 0
			err = archive.ExtractAll(plainPath, func(name string, r io.Reader) error {
				if !strings.HasPrefix(name, "/files/") {
					return nil
				}
				target := filepath.Join(into, strings.TrimPrefix(name, "/files"))
				if rel, err := filepath.Rel(into, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
					return fmt.Errorf("refusing to restore %s outside %s", name, into)
				}
				if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
					return err
				}
				out, err := os.Create(target)
				if err != nil {
					return err
				}
				if _, err := io.Copy(out, r); err != nil {
					out.Close()
					return err
				}
				count++
				return out.Close()
			})
			if err != nil {
				return err
			}
			fmt.Printf("restored %d files into %s\n", count, into)
			return nil
		},
	}
	cmd.Flags().StringVarP(&encryption, "encryption", "e", "", "cipher the archive was encrypted with, if any")
	cmd.Flags().StringVarP(&password, "password", "p", "", "decryption password (discouraged; omit to be prompted)")
	cmd.Flags().StringVar(&into, "into", "/", "root directory to restore files under")
	return cmd
}
