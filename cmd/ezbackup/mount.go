package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/mount"
)

func newMountCmd() *cobra.Command {
	var encryption, password string
	cmd := &cobra.Command{
		Use:   "mount <archive> <mountpoint>",
		Short: "Mount an archive read-only via FUSE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath, mountpoint := args[0], args[1]

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

			fsys, cleanup, err := mount.Open(archivePath, cipher, pw)
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Printf("mounted %s at %s (ctrl-c or fusermount -u to unmount)\n", archivePath, mountpoint)
			return mount.Serve(mountpoint, fsys)
		},
	}
	cmd.Flags().StringVarP(&encryption, "encryption", "e", "", "cipher the archive was encrypted with, if any")
	cmd.Flags().StringVarP(&password, "password", "p", "", "decryption password (discouraged; omit to be prompted)")
	return cmd
}
