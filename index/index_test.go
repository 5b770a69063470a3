package index

import (
	"bytes"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"
)

func buildSorted(t *testing.T, recs []Record) *DigestIndex {
	t.Helper()
	dir := t.TempDir()
	log, err := NewAppendLog(dir, "log")
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range recs {
		if err := log.Append(r.Path, r.Hex); err != nil {
			t.Fatal(err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "sorted")
	if err := Sort(log.Path(), outPath, 0); err != nil {
		t.Fatal(err)
	}
	idx, err := Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestSortIsOrderedAndComplete(t *testing.T) {
	const n = 20000
	r := rand.New(rand.NewSource(42))
	seen := make(map[string]bool, n)
	var recs []Record
	for len(recs) < n {
		p := randPath(r)
		if seen[p] {
			continue
		}
		seen[p] = true
		recs = append(recs, Record{Path: p, Hex: fmt.Sprintf("%064x", r.Int63())})
	}

	idx := buildSorted(t, recs)

	var got []string
	prev := ""
	first := true
	if err := idx.Iterate(func(rec Record) error {
		if !first && rec.Path <= prev {
			t.Fatalf("sort violated ordering: %q then %q", prev, rec.Path)
		}
		first = false
		prev = rec.Path
		got = append(got, rec.Path)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if len(got) != n {
		t.Fatalf("got %d records, want %d", len(got), n)
	}
	want := make([]string, 0, n)
	for _, r := range recs {
		want = append(want, r.Path)
	}
	sort.Strings(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func randPath(r *rand.Rand) string {
	n := 1 + r.Intn(256)
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789/_-."
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return "/" + string(b)
}

func TestLookupHitAndMiss(t *testing.T) {
	recs := []Record{
		{Path: "/a", Hex: "1"},
		{Path: "/b", Hex: "2"},
		{Path: "/c", Hex: "3"},
		{Path: "/z", Hex: "9"},
	}
	idx := buildSorted(t, recs)

	for _, want := range recs {
		hex, ok, err := idx.Lookup(want.Path)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || hex != want.Hex {
			t.Errorf("Lookup(%q) = %q, %v; want %q, true", want.Path, hex, ok, want.Hex)
		}
	}

	if _, ok, err := idx.Lookup("/nonexistent"); err != nil || ok {
		t.Errorf("Lookup(nonexistent) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestLookupEmptyIndex(t *testing.T) {
	idx := buildSorted(t, nil)
	if _, ok, err := idx.Lookup("/anything"); err != nil || ok {
		t.Errorf("Lookup on empty index = ok=%v err=%v", ok, err)
	}
}

func TestClassify(t *testing.T) {
	prior := buildSorted(t, []Record{
		{Path: "/a", Hex: "hashA"},
		{Path: "/b", Hex: "hashB"},
	})

	cases := []struct {
		path, hex string
		want      Status
	}{
		{"/a", "hashA", Unchanged},
		{"/a", "hashAnew", Changed},
		{"/c", "hashC", New},
	}
	for _, c := range cases {
		got, err := Classify(c.path, c.hex, prior)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("Classify(%q, %q) = %v, want %v", c.path, c.hex, got, c.want)
		}
	}

	got, err := Classify("/x", "hash", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != New {
		t.Errorf("Classify with nil prior = %v, want New", got)
	}
}

func TestRemovedDerivation(t *testing.T) {
	prior := buildSorted(t, []Record{
		{Path: "/a", Hex: "1"},
		{Path: "/b", Hex: "2"},
		{Path: "/c", Hex: "3"},
	})
	current := buildSorted(t, []Record{
		{Path: "/b", Hex: "2"},
		{Path: "/d", Hex: "4"},
	})

	var buf bytes.Buffer
	if err := Removed(prior, current, &buf); err != nil {
		t.Fatal(err)
	}
	want := "/a\n/c\n"
	if buf.String() != want {
		t.Errorf("Removed() = %q, want %q", buf.String(), want)
	}
}

func TestRemovedWithNilCurrent(t *testing.T) {
	prior := buildSorted(t, []Record{
		{Path: "/a", Hex: "1"},
	})
	var buf bytes.Buffer
	if err := Removed(prior, nil, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "/a\n" {
		t.Errorf("Removed() = %q", buf.String())
	}
}

func TestRemovedWithNilPrior(t *testing.T) {
	current := buildSorted(t, []Record{{Path: "/a", Hex: "1"}})
	var buf bytes.Buffer
	if err := Removed(nil, current, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("Removed() with nil prior = %q, want empty", buf.String())
	}
}

func TestAppendRejectsEmbeddedDelimiters(t *testing.T) {
	dir := t.TempDir()
	log, err := NewAppendLog(dir, "log")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Remove()
	if err := log.Append("bad\x00path", "hex"); err == nil {
		t.Error("expected an error for a path containing NUL")
	}
	if err := log.Append("bad\npath", "hex"); err == nil {
		t.Error("expected an error for a path containing newline")
	}
}

func TestSmallRunSizeForcesMultipleRuns(t *testing.T) {
	dir := t.TempDir()
	log, err := NewAppendLog(dir, "log")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		if err := log.Append(fmt.Sprintf("/path/%04d", i), fmt.Sprintf("%08x", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "sorted")
	if err := Sort(log.Path(), outPath, 256); err != nil {
		t.Fatal(err)
	}
	idx, err := Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	prev := ""
	if err := idx.Iterate(func(r Record) error {
		if prev != "" && r.Path <= prev {
			t.Fatalf("out of order: %q then %q", prev, r.Path)
		}
		prev = r.Path
		count++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if count != 500 {
		t.Fatalf("got %d records, want 500", count)
	}
}
