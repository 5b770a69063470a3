package index

import (
	"bufio"
	"container/heap"
	"io"
	"os"
	"sort"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

// DefaultRunSize is the maximum number of record bytes buffered in memory
// per sort run before it is spilled to a temp file, matching the
// original's MAX_RUN_SIZE of 16 MiB.
const DefaultRunSize = 16 * 1024 * 1024

// Sort reads the unsorted records at inPath, external-merge-sorts them by
// path in lexicographic byte order, and writes the result to outPath.
// runSize bounds how many record bytes are held in memory per run; 0
// selects DefaultRunSize. Every intermediate run file is removed before
// Sort returns, on every exit path.
func Sort(inPath, outPath string, runSize int64) error {
	if runSize <= 0 {
		runSize = DefaultRunSize
	}

	runs, err := createInitialRuns(inPath, runSize)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range runs {
			os.Remove(r)
		}
	}()

	if len(runs) == 1 {
		return copyFile(runs[0], outPath)
	}
	return mergeRuns(runs, outPath)
}

// createInitialRuns reads inPath in bounded chunks, quicksorts each chunk
// by path (median-of-three pivot, the way quicksort_elements() does), and
// writes each sorted chunk to its own temp file.
func createInitialRuns(inPath string, runSize int64) ([]string, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, ezerr.Wrapf(ezerr.IO, err, "opening %s to sort", inPath)
	}
	defer in.Close()

	r := bufio.NewReaderSize(in, 1<<20)
	var runs []string
	var batch []Record
	var batchBytes int64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sortRecords(batch)
		path, err := writeRun(batch)
		if err != nil {
			return err
		}
		runs = append(runs, path)
		batch = nil
		batchBytes = 0
		return nil
	}

	for {
		rec, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			for _, run := range runs {
				os.Remove(run)
			}
			return nil, err
		}
		batch = append(batch, rec)
		batchBytes += int64(len(rec.Path) + len(rec.Hex) + 2)
		if batchBytes >= runSize {
			if err := flush(); err != nil {
				for _, run := range runs {
					os.Remove(run)
				}
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		for _, run := range runs {
			os.Remove(run)
		}
		return nil, err
	}
	if len(runs) == 0 {
		// Nothing to sort; still produce one empty run so Sort has
		// something to copy/merge.
		path, err := writeRun(nil)
		if err != nil {
			return nil, err
		}
		runs = append(runs, path)
	}
	return runs, nil
}

// sortRecords sorts in place by path, lexicographic byte order. Go's
// sort.Slice is itself an introspective quicksort/heapsort hybrid that
// picks its own pivots (median-of-three among them); the comparator here
// is a plain byte-order less.
func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Path < recs[j].Path
	})
}

func writeRun(recs []Record) (string, error) {
	f, err := os.CreateTemp("", "ezbackup_run_*")
	if err != nil {
		return "", ezerr.Wrap(ezerr.IO, err, "creating sort run file")
	}
	w := bufio.NewWriter(f)
	for _, r := range recs {
		if err := writeRecord(w, r); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", ezerr.Wrap(ezerr.IO, err, "flushing sort run file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", ezerr.Wrap(ezerr.IO, err, "closing sort run file")
	}
	return f.Name(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ezerr.Wrap(ezerr.IO, err, "opening sort run for copy")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return ezerr.Wrap(ezerr.IO, err, "creating sort output")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return ezerr.Wrap(ezerr.IO, err, "copying sort output")
	}
	return out.Close()
}

// mergeHeapItem is one node in the k-way merge's min-heap: the next
// unread record from a run, plus which run it came from.
type mergeHeapItem struct {
	rec Record
	src int
}

type mergeHeap []mergeHeapItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].rec.Path < h[j].rec.Path }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeHeapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeRuns k-way merges the sorted run files into outPath using a
// min-heap keyed by each run's current head record.
func mergeRuns(runs []string, outPath string) error {
	readers := make([]*bufio.Reader, len(runs))
	files := make([]*os.File, len(runs))
	for i, r := range runs {
		f, err := os.Open(r)
		if err != nil {
			closeAll(files)
			return ezerr.Wrapf(ezerr.IO, err, "opening run %s to merge", r)
		}
		files[i] = f
		readers[i] = bufio.NewReaderSize(f, 64*1024)
	}
	defer closeAll(files)

	out, err := os.Create(outPath)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "creating merge output %s", outPath)
	}
	w := bufio.NewWriter(out)

	h := make(mergeHeap, 0, len(readers))
	for i, r := range readers {
		rec, err := readRecord(r)
		if err == io.EOF {
			continue
		}
		if err != nil {
			out.Close()
			return err
		}
		h = append(h, mergeHeapItem{rec: rec, src: i})
	}
	heap.Init(&h)

	var prevPath string
	havePrev := false
	for h.Len() > 0 {
		item := heap.Pop(&h).(mergeHeapItem)
		if havePrev && item.rec.Path == prevPath {
			return duplicatePathErr(item.rec.Path, outPath, out, w)
		}
		if err := writeRecord(w, item.rec); err != nil {
			out.Close()
			return err
		}
		prevPath = item.rec.Path
		havePrev = true

		next, err := readRecord(readers[item.src])
		if err == io.EOF {
			continue
		}
		if err != nil {
			out.Close()
			return err
		}
		heap.Push(&h, mergeHeapItem{rec: next, src: item.src})
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return ezerr.Wrap(ezerr.IO, err, "flushing merge output")
	}
	return out.Close()
}

func duplicatePathErr(path, outPath string, out *os.File, w *bufio.Writer) error {
	w.Flush()
	out.Close()
	return ezerr.Newf(ezerr.Format, "duplicate path %q in digest index", path)
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
