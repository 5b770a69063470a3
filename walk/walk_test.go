package walk

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func collect(t *testing.T, roots []string, excl ExclusionSet) ([]string, []string) {
	t.Helper()
	var paths []string
	var errs []string
	for e := range Walk(roots, excl, func(path string, err error) {
		errs = append(errs, path)
	}) {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths, errs
}

func TestWalkYieldsFilesAndSymlinksNotDirs(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.txt"), "a")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "sub", "b.txt"), "b")
	if err := os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link")); err != nil {
		t.Fatal(err)
	}

	paths, _ := collect(t, []string{dir}, nil)
	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "link"),
		filepath.Join(dir, "sub", "b.txt"),
	}
	sort.Strings(want)
	if !equalStrings(paths, want) {
		t.Errorf("got %v want %v", paths, want)
	}
}

func TestWalkExclusion(t *testing.T) {
	dir := t.TempDir()
	excluded := filepath.Join(dir, "skip")
	if err := os.Mkdir(excluded, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(excluded, "hidden.txt"), "x")
	mustWrite(t, filepath.Join(dir, "keep.txt"), "y")

	paths, _ := collect(t, []string{dir}, NewExclusionSet([]string{excluded}))
	for _, p := range paths {
		if filepath.Dir(p) == excluded {
			t.Errorf("excluded directory was descended into: %s", p)
		}
	}
	if !contains(paths, filepath.Join(dir, "keep.txt")) {
		t.Errorf("expected keep.txt to be walked, got %v", paths)
	}
}

func TestWalkSkipsLostAndFound(t *testing.T) {
	dir := t.TempDir()
	lf := filepath.Join(dir, "lost+found")
	if err := os.Mkdir(lf, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(lf, "orphan.txt"), "z")

	paths, _ := collect(t, []string{dir}, nil)
	if contains(paths, filepath.Join(lf, "orphan.txt")) {
		t.Errorf("lost+found should not be descended, got %v", paths)
	}
}

func TestWalkReportsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permission bits")
	}
	dir := t.TempDir()
	bad := filepath.Join(dir, "noperm")
	if err := os.Mkdir(bad, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(bad, 0o755)

	_, errs := collect(t, []string{dir}, nil)
	if !contains(errs, bad) {
		t.Errorf("expected an error hook call for %s, got %v", bad, errs)
	}
}

func mustWrite(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
