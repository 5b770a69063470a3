// Package config loads and persists the settings file at $HOME/.ezbackup
// (or wherever the caller points it), the key/value format that lets a
// backup run remember its directories, exclusions, and the path of the
// archive it should treat as "prior" on the next run.
package config

import (
	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/digest"
)

// Options is the persisted + CLI-overridable configuration for one run,
// matching spec section 3's Options entity.
type Options struct {
	Directories []string
	Exclude     []string

	HashAlgorithm digest.Algorithm

	// EncAlgorithm is nil when the run is unencrypted.
	EncAlgorithm *crypt.Cipher
	// EncPassword normally comes from -p or a prompt; Save persists it
	// hex-encoded only if the caller explicitly asks (ezbackup configure
	// --save-password), since storing a password in a config file is
	// inherently risky, and Load reads it back when it was persisted.
	EncPassword []byte

	Compressor      archive.Compression
	CompressionLevel int

	OutputDirectory string
	PrevBackup      string // "" or "none" means no prior archive

	// CloudUsername is passed through to a cloud uploader, untouched by
	// the core pipeline.
	CloudUsername string

	// Protect requests a Reed-Solomon parity sidecar next to the finished
	// archive (the --protect flag's equivalent).
	Protect bool

	Verbose bool
	Quiet   bool
}

// Clone returns a deep-enough copy for mutation without aliasing slices.
func (o Options) Clone() Options {
	c := o
	c.Directories = append([]string(nil), o.Directories...)
	c.Exclude = append([]string(nil), o.Exclude...)
	c.EncPassword = append([]byte(nil), o.EncPassword...)
	return c
}

// HasPriorArchive reports whether PrevBackup names a real prior run.
func (o Options) HasPriorArchive() bool {
	return o.PrevBackup != "" && o.PrevBackup != "none"
}
