package util

import (
	"sync"
	"syscall"
)

// CoreDumpGuard disables core dumps for the lifetime of any code that
// handles password or key material, and restores whatever limit was in
// effect before. It is reference-counted: the original tool's
// disable_core_dumps/enable_core_dumps pair assumed it would never be
// called while already disabled, which spec section 9 calls out as a bug
// in nested password-bearing operations (e.g. prompting for a password
// during a backup that is itself holding the guard open for key
// derivation). A Guard may be entered any number of times from any number
// of goroutines; the limit is only restored once the last holder exits.
type CoreDumpGuard struct {
	mu       sync.Mutex
	depth    int
	saved    syscall.Rlimit
	disabled bool
}

// Enter disables RLIMIT_CORE if this is the outermost call, and always
// increments the reference count. Every successful Enter must be matched
// by exactly one Exit.
func (g *CoreDumpGuard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.depth == 0 {
		var cur syscall.Rlimit
		if err := syscall.Getrlimit(syscall.RLIMIT_CORE, &cur); err != nil {
			return err
		}
		g.saved = cur
		zero := syscall.Rlimit{Cur: 0, Max: cur.Max}
		if err := syscall.Setrlimit(syscall.RLIMIT_CORE, &zero); err != nil {
			return err
		}
		g.disabled = true
	}
	g.depth++
	return nil
}

// Exit decrements the reference count, restoring the original
// RLIMIT_CORE only once every Enter has a matching Exit.
func (g *CoreDumpGuard) Exit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.depth == 0 {
		return nil
	}
	g.depth--
	if g.depth > 0 || !g.disabled {
		return nil
	}
	g.disabled = false
	return syscall.Setrlimit(syscall.RLIMIT_CORE, &g.saved)
}

// With runs fn with core dumps disabled, restoring the previous limit
// (or simply decrementing the reference count, if some outer caller is
// still holding the guard) before returning, on every path including a
// panic.
func (g *CoreDumpGuard) With(fn func() error) error {
	if err := g.Enter(); err != nil {
		return err
	}
	defer g.Exit()
	return fn()
}
