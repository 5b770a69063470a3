package config

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/digest"
	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// DefaultPath returns $HOME/.ezbackup, falling back to the current user's
// home directory lookup if HOME isn't set, the way the original tool
// falls back to the passwd database entry.
func DefaultPath() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".ezbackup"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ezerr.Wrap(ezerr.Config, err, "resolving home directory")
	}
	return filepath.Join(home, ".ezbackup"), nil
}

// DefaultOutputDir returns $HOME/Backups.
func DefaultOutputDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, "Backups"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", ezerr.Wrap(ezerr.Config, err, "resolving home directory")
	}
	return filepath.Join(home, "Backups"), nil
}

// field keys, matching spec section 6's config key list.
const (
	keyDirectories = "DIRECTORIES"
	keyExclude     = "EXCLUDE"
	keyHashAlgo    = "HASH_ALGORITHM"
	keyEncAlgo     = "ENC_ALGORITHM"
	keyEncPassword = "ENC_PASSWORD"
	keyCType       = "C_TYPE"
	keyCLevel      = "C_LEVEL"
	keyOutputDir   = "OUTPUT_DIRECTORY"
	keyCoUsername  = "CO_USERNAME"
	keyPrevBackup  = "PREV"
	keyFlags       = "FLAGS"
)

const (
	flagVerbose = 1 << 0
	flagQuiet   = 1 << 1
)

// Load reads and parses the config file at path. A missing file is not
// an error: it returns zero-value Options, the way a first run has
// nothing to load.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Options{}, nil
		}
		return Options{}, ezerr.Wrapf(ezerr.IO, err, "reading config %s", path)
	}

	fields, err := parseFields(data)
	if err != nil {
		return Options{}, err
	}

	var o Options
	o.Directories = splitMultiValue(fields[keyDirectories])
	o.Exclude = splitMultiValue(fields[keyExclude])
	o.HashAlgorithm = digest.Algorithm(fields[keyHashAlgo])
	if v := fields[keyEncAlgo]; v != "" {
		c := crypt.Cipher(v)
		o.EncAlgorithm = &c
	}
	if v := fields[keyEncPassword]; v != "" {
		pw, err := hex.DecodeString(v)
		if err != nil {
			return Options{}, ezerr.Wrap(ezerr.Config, err, "decoding ENC_PASSWORD")
		}
		o.EncPassword = pw
	}
	o.Compressor = archive.Compression(fields[keyCType])
	if v := fields[keyCLevel]; v != "" {
		lvl, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, ezerr.Wrapf(ezerr.Config, err, "parsing C_LEVEL %q", v)
		}
		o.CompressionLevel = lvl
	}
	o.OutputDirectory = fields[keyOutputDir]
	o.CloudUsername = fields[keyCoUsername]
	o.PrevBackup = fields[keyPrevBackup]

	if v := fields[keyFlags]; v != "" {
		flags, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, ezerr.Wrapf(ezerr.Config, err, "parsing FLAGS %q", v)
		}
		o.Verbose = flags&flagVerbose != 0
		o.Quiet = flags&flagQuiet != 0
	}

	return o, nil
}

// Save writes o to path in the binary-safe NUL-terminated key/value
// format. persistPassword controls whether ENC_PASSWORD is written at
// all; the CLI only sets this when the user explicitly opts in.
func Save(path string, o Options, persistPassword bool) error {
	var buf bytes.Buffer

	buf.WriteString(keyPrevBackup + "=")
	prev := o.PrevBackup
	if prev == "" {
		prev = "none"
	}
	writeNulString(&buf, prev)

	buf.WriteString("\n" + keyDirectories + "=")
	writeMultiValue(&buf, o.Directories)

	buf.WriteString("\n" + keyExclude + "=")
	writeMultiValue(&buf, o.Exclude)

	buf.WriteString("\n" + keyHashAlgo + "=")
	writeNulString(&buf, string(o.HashAlgorithm))

	buf.WriteString("\n" + keyEncAlgo + "=")
	if o.EncAlgorithm != nil {
		writeNulString(&buf, string(*o.EncAlgorithm))
	} else {
		writeNulString(&buf, "")
	}

	buf.WriteString("\n" + keyEncPassword + "=")
	if persistPassword && len(o.EncPassword) > 0 {
		writeNulString(&buf, hex.EncodeToString(o.EncPassword))
	} else {
		writeNulString(&buf, "")
	}

	buf.WriteString("\n" + keyCType + "=")
	writeNulString(&buf, string(o.Compressor))

	buf.WriteString("\n" + keyCLevel + "=")
	buf.WriteString(strconv.Itoa(o.CompressionLevel))

	buf.WriteString("\n" + keyOutputDir + "=")
	writeNulString(&buf, o.OutputDirectory)

	buf.WriteString("\n" + keyCoUsername + "=")
	writeNulString(&buf, o.CloudUsername)

	flags := 0
	if o.Verbose {
		flags |= flagVerbose
	}
	if o.Quiet {
		flags |= flagQuiet
	}
	buf.WriteString("\n" + keyFlags + "=")
	buf.WriteString(strconv.Itoa(flags))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "creating config directory")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "writing config %s", path)
	}
	return nil
}

func writeNulString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// writeMultiValue writes each value NUL-terminated, then one extra NUL
// to mark the end of the list, matching the original's
// "/dir1\0/dir2\0/dir3\0\0" convention.
func writeMultiValue(buf *bytes.Buffer, values []string) {
	for _, v := range values {
		writeNulString(buf, v)
	}
	buf.WriteByte(0)
}

func splitMultiValue(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := bytes.Split([]byte(raw), []byte{0})
	var out []string
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		out = append(out, string(p))
	}
	return out
}

// parseFields splits the config file into a map of key to its value, with
// the trailing NUL terminator(s) Save writes stripped off. String values
// are NUL-terminated (possibly several times over, for multi-valued keys)
// and numeric ones are plain decimal; none contains a newline, so a plain
// split on '\n' gives exactly one "KEY=value" per line.
func parseFields(data []byte) (map[string]string, error) {
	fields := make(map[string]string)
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		eq := bytes.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		fields[string(line[:eq])] = string(bytes.TrimRight(line[eq+1:], "\x00"))
	}
	return fields, nil
}
