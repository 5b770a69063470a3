package crypt

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
	u "github.com/jonathanrlemos/ezbackup/util"
	"golang.org/x/term"
)

// CoreDumps is the process-wide reference-counted guard that disables core
// dumps while PromptPassword reads and confirms a password. DeriveKeys,
// Encrypt and Decrypt do not enter it, so core dumps stay enabled while
// they hold the password or the derived key and IV.
var CoreDumps = &u.CoreDumpGuard{}

// PromptPassword prompts on the terminal at fd (typically os.Stdin's
// descriptor) with echo suppressed. If verify, it prompts a second time
// and requires a byte-exact match, returning ezerr.Abort if they differ.
// The returned slice is the caller's to scrub (see ScrubPassword) once
// used.
func PromptPassword(fd int, prompt string, verify bool) ([]byte, error) {
	var pw []byte
	err := CoreDumps.With(func() error {
		var err error
		pw, err = readPassword(fd, prompt)
		if err != nil {
			return err
		}
		if !verify {
			return nil
		}
		confirm, err := readPassword(fd, "Confirm password: ")
		if err != nil {
			ScrubPassword(pw)
			return err
		}
		defer ScrubPassword(confirm)
		if !bytes.Equal(pw, confirm) {
			ScrubPassword(pw)
			return ezerr.New(ezerr.Abort, "passwords do not match")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func readPassword(fd int, prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, ezerr.Wrap(ezerr.IO, err, "reading password")
	}
	return pw, nil
}

// ReadPasswordLine reads a password from a non-terminal reader, trimming
// exactly one trailing newline.
func ReadPasswordLine(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, ezerr.Wrap(ezerr.IO, err, "reading password")
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	return line, nil
}

// ScrubPassword overwrites pw per spec section 4.7 rule 2: the random
// overwrite runs over strlen(pw) + 5 + rand()%11 bytes so that an
// observer of residual memory can't read the password's true length off
// the scrub boundary. Scrubbing never extends past cap(pw); a caller
// that wants the full randomized tail covered should allocate pw with
// spare capacity.
func ScrubPassword(pw []byte) {
	extra := 5 + randIntn(11)
	n := len(pw) + extra
	if n > cap(pw) {
		n = cap(pw)
	}
	if n == 0 {
		return
	}
	if err := u.Scrub(pw[:n]); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to scrub password buffer: %v\n", err)
	}
}

func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
