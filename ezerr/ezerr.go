// Package ezerr defines the error taxonomy shared by every ezbackup
// component: a small set of kinds that the orchestrator and the CLI use to
// decide whether a failure is fatal, a per-file warning, or a clean abort.
package ezerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the orchestrator
// knows how to react to.
type Kind int

const (
	// Unknown is the zero value; never constructed deliberately.
	Unknown Kind = iota
	// IO covers OS failures: open, read, write, stat, unlink.
	IO
	// Format covers wrong magic bytes, truncated headers, malformed
	// digest records.
	Format
	// Crypto covers cipher/digest primitive failures and CSPRNG
	// exhaustion after the /dev/urandom fallback also fails.
	Crypto
	// CryptoState covers state-machine misuse, e.g. encrypting before
	// derive_keys.
	CryptoState
	// Config covers missing/malformed configuration or unknown
	// algorithm names.
	Config
	// Abort covers signal-driven cancellation.
	Abort
	// OOM covers allocation failure. Always fatal.
	OOM
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "IoError"
	case Format:
		return "FormatError"
	case Crypto:
		return "CryptoError"
	case CryptoState:
		return "CryptoStateError"
	case Config:
		return "ConfigError"
	case Abort:
		return "UserAbort"
	case OOM:
		return "OutOfMemory"
	default:
		return "UnknownError"
	}
}

// Error is a Kind-tagged error. Use errors.As to recover the Kind from an
// arbitrarily wrapped error chain.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a Kind-tagged error with a message and no underlying
// cause.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Newf is New with printf-style formatting.
func Newf(k Kind, format string, args ...interface{}) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with a Kind, preserving it as the cause.
func Wrap(k Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: msg, Err: err}
}

// Wrapf is Wrap with printf-style formatting for msg.
func Wrapf(k Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf returns the Kind of err if it (or anything it wraps) is an
// *Error, and Unknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
