package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/config"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/digest"
)

// runFlags mirrors spec section 6's flag list; every field is the CLI
// spelling, resolved against the persisted config file by resolveOptions.
type runFlags struct {
	compressor  string
	checksum    string
	directories []string
	encryption  string
	output      string
	password    string
	username    string
	exclude     []string
	quiet       bool
	protect     bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	cmd.Flags().StringVarP(&f.compressor, "compressor", "c", "", "none|gzip|bzip2|xz|lz4")
	cmd.Flags().StringVarP(&f.checksum, "checksum", "C", "", "md5|sha1|sha256|sha512")
	cmd.Flags().StringSliceVarP(&f.directories, "directories", "d", nil, "directories to back up")
	cmd.Flags().StringVarP(&f.encryption, "encryption", "e", "", "aes-128-cbc|aes-192-cbc|aes-256-cbc")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "encryption password (discouraged; omit to be prompted)")
	cmd.Flags().StringVarP(&f.username, "username", "u", "", "cloud username, passed through untouched")
	cmd.Flags().StringSliceVarP(&f.exclude, "exclude", "x", nil, "paths to exclude")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress non-error output")
	cmd.Flags().BoolVar(&f.protect, "protect", false, "write a Reed-Solomon parity sidecar next to the archive")
}

// resolveOptions loads the persisted config, then layers any flag the
// caller actually set on top of it, the way the original tool treats
// the config file as defaults and the CLI as overrides.
func resolveOptions(f *runFlags) (config.Options, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return config.Options{}, err
	}
	o, err := config.Load(path)
	if err != nil {
		return config.Options{}, err
	}

	if f.compressor != "" {
		o.Compressor = archive.Compression(f.compressor)
	}
	if f.checksum != "" {
		o.HashAlgorithm = digest.Algorithm(f.checksum)
	}
	if len(f.directories) > 0 {
		o.Directories = f.directories
	}
	if f.encryption != "" {
		c := crypt.Cipher(f.encryption)
		o.EncAlgorithm = &c
	}
	if f.output != "" {
		o.OutputDirectory = f.output
	}
	if f.username != "" {
		o.CloudUsername = f.username
	}
	if len(f.exclude) > 0 {
		o.Exclude = f.exclude
	}
	if f.quiet {
		o.Quiet = true
	}
	if f.protect {
		o.Protect = true
	}

	if o.OutputDirectory == "" {
		dir, err := config.DefaultOutputDir()
		if err != nil {
			return config.Options{}, err
		}
		o.OutputDirectory = dir
	}
	if o.HashAlgorithm == "" {
		o.HashAlgorithm = digest.SHA256
	}
	if o.Compressor == "" {
		o.Compressor = archive.Gzip
	}

	if o.EncAlgorithm != nil && len(o.EncPassword) == 0 {
		pw, err := resolvePassword(f.password)
		if err != nil {
			return config.Options{}, err
		}
		o.EncPassword = pw
	}

	return o, nil
}

// resolvePassword uses -p if given (discouraged; visible in ps and shell
// history), otherwise prompts twice on the controlling terminal.
func resolvePassword(flagValue string) ([]byte, error) {
	if flagValue != "" {
		fmt.Fprintln(os.Stderr, "warning: -p/--password on the command line is visible to other processes; prefer the prompt")
		return []byte(flagValue), nil
	}
	return crypt.PromptPassword(int(os.Stdin.Fd()), "Encryption password: ", true)
}
