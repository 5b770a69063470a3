// Package walk recursively enumerates the files under a set of root
// directories, the way the teacher's backupDirContents does: a plain
// recursive directory read, with per-directory errors reported to a
// caller-supplied hook instead of aborting the whole walk.
package walk

import (
	"os"
	"path/filepath"
	"sort"
)

// Entry is one non-directory entry (a file, symlink, or other special
// file) yielded by Walk.
type Entry struct {
	Path string
	Info os.FileInfo
}

// IsSymlink reports whether the entry is a symlink; Walk never descends
// into one, it is yielded as its own entry.
func (e Entry) IsSymlink() bool {
	return e.Info.Mode()&os.ModeSymlink != 0
}

// IsRegular reports whether the entry is a plain file.
func (e Entry) IsRegular() bool {
	return e.Info.Mode().IsRegular()
}

// ExclusionSet is a set of absolute directory paths to prune from the
// walk. Membership is exact: a directory is excluded only if its full
// path byte-matches an entry, not merely as a substring or subdirectory
// of one (subdirectories are excluded anyway since we never descend).
type ExclusionSet map[string]bool

// NewExclusionSet builds an ExclusionSet from a list of paths, each
// cleaned with filepath.Clean so that trailing slashes or "." segments
// don't defeat the exact match.
func NewExclusionSet(paths []string) ExclusionSet {
	s := make(ExclusionSet, len(paths))
	for _, p := range paths {
		s[filepath.Clean(p)] = true
	}
	return s
}

func (s ExclusionSet) excludes(path string) bool {
	return s[path]
}

const lostAndFound = "lost+found"

// ErrorHook is called when a directory cannot be opened or read; the walk
// reports the failure and continues with the directory's siblings.
type ErrorHook func(path string, err error)

// Walk enumerates every file and symlink reachable from roots,
// depth-first, sending each to the returned channel; directories are
// descended into (unless excluded or named lost+found) but are not sent
// themselves. The channel is closed
// once every root has been fully walked. onError may be nil, in which case
// directory errors are silently skipped.
func Walk(roots []string, excl ExclusionSet, onError ErrorHook) <-chan Entry {
	out := make(chan Entry)
	if onError == nil {
		onError = func(string, error) {}
	}
	go func() {
		defer close(out)
		for _, root := range roots {
			walkOne(filepath.Clean(root), excl, onError, out)
		}
	}()
	return out
}

func walkOne(path string, excl ExclusionSet, onError ErrorHook, out chan<- Entry) {
	fi, err := os.Lstat(path)
	if err != nil {
		onError(path, err)
		return
	}

	isSymlink := fi.Mode()&os.ModeSymlink != 0
	isDir := fi.IsDir() && !isSymlink

	if !isDir {
		out <- Entry{Path: path, Info: fi}
		return
	}

	if excl.excludes(path) {
		return
	}
	if filepath.Base(path) == lostAndFound {
		return
	}

	children, err := readDirSorted(path)
	if err != nil {
		onError(path, err)
		return
	}
	for _, name := range children {
		walkOne(filepath.Join(path, name), excl, onError, out)
	}
}

// readDirSorted lists a directory's entry names. The spec makes no
// ordering guarantee across siblings; sorting just keeps walks
// reproducible for tests.
func readDirSorted(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
