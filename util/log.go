package util

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
)

// Logger provides a simple logging system with a few different log levels;
// debugging and verbose output may both be suppressed independently. A nil
// *Logger is valid and logs everything to stderr, which keeps call sites
// from needing a nil check before every use.
type Logger struct {
	NErrors int
	mu      sync.Mutex
	debug   io.Writer
	verbose io.Writer
	warning io.Writer
	err     io.Writer
}

func NewLogger(verbose, debug bool) *Logger {
	l := &Logger{}
	if verbose {
		l.verbose = os.Stderr
	}
	if debug {
		l.debug = os.Stderr
	}
	l.warning = os.Stderr
	l.err = os.Stderr
	return l
}

func (l *Logger) Print(f string, args ...interface{}) {
	fmt.Printf("%s", format(f, args...))
}

func (l *Logger) Debug(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	if l.debug == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.debug, format(f, args...))
}

func (l *Logger) Verbose(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	if l.verbose == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.verbose, format(f, args...))
}

func (l *Logger) Warning(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.warning, format(f, args...))
}

func (l *Logger) Error(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.NErrors++
	fmt.Fprint(l.err, format(f, args...))
}

// Fatal logs and terminates the process. Orchestrator code should prefer
// returning a tagged ezerr over calling Fatal; this is for invariant
// violations that really do mean the program cannot continue, the way the
// teacher uses it.
func (l *Logger) Fatal(f string, args ...interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, format(f, args...))
		os.Exit(1)
	}
	l.mu.Lock()
	l.NErrors++
	fmt.Fprint(l.err, format(f, args...))
	l.mu.Unlock()
	os.Exit(1)
}

// Check prints a fatal error and exits if v is false.
func (l *Logger) Check(v bool, msg ...interface{}) {
	if v {
		return
	}
	if l != nil {
		l.mu.Lock()
		l.NErrors++
		l.mu.Unlock()
	}
	if len(msg) == 0 {
		fmt.Fprint(os.Stderr, format("check failed\n"))
	} else {
		f := msg[0].(string)
		fmt.Fprint(os.Stderr, format(f, msg[1:]...))
	}
	os.Exit(1)
}

// CheckError is like Check but fatal only if err is non-nil.
func (l *Logger) CheckError(err error, msg ...interface{}) {
	if err == nil {
		return
	}
	if l != nil {
		l.mu.Lock()
		l.NErrors++
		l.mu.Unlock()
	}
	if len(msg) == 0 {
		fmt.Fprint(os.Stderr, format("error: %+v\n", err))
	} else {
		f := msg[0].(string)
		fmt.Fprint(os.Stderr, format(f, msg[1:]...))
	}
	os.Exit(1)
}

func format(f string, args ...interface{}) string {
	_, fn, line, _ := runtime.Caller(2)
	fnline := path.Base(path.Dir(fn)) + "/" + path.Base(fn) + fmt.Sprintf(":%d", line)
	s := fmt.Sprintf("%-25s: ", fnline)
	s += fmt.Sprintf(f, args...)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
