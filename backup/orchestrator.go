// Package backup implements the BackupOrchestrator: the single-threaded,
// synchronous state machine that ties FileWalker, Digest, DigestIndex,
// ChangeDetector, RemovedDeriver, ArchiveWriter, and CryptoPipe together
// for one run.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/config"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/digest"
	"github.com/jonathanrlemos/ezbackup/ezerr"
	"github.com/jonathanrlemos/ezbackup/index"
	"github.com/jonathanrlemos/ezbackup/rdso"
	u "github.com/jonathanrlemos/ezbackup/util"
	"github.com/jonathanrlemos/ezbackup/walk"
)

// Default Reed-Solomon shard parameters for --protect: 10 data and 2
// parity shards, so any two of the twelve shards in each hash chunk can be
// rebuilt (up to a fifth of the archive's data) for a sidecar about a fifth
// of the archive's size.
const (
	defaultDataShards   = 10
	defaultParityShards = 2
	defaultHashRate     = 1 << 16
)

// Result summarizes one completed run.
type Result struct {
	ArchivePath  string
	FilesScanned int
	FilesAdded   int
	FilesRemoved int
	// Warnings holds every non-fatal failure: per-file errors from the
	// walk (step 5), a failed --protect sidecar, and a failed config
	// persist (step 10) don't abort the run.
	Warnings []error
}

// Orchestrator runs backups. The zero value logs nowhere; set Log to get
// the teacher's verbose/warning/error stream.
type Orchestrator struct {
	Log *u.Logger
}

// New returns an Orchestrator that logs through log (may be nil).
func New(log *u.Logger) *Orchestrator {
	return &Orchestrator{Log: log}
}

func (o *Orchestrator) warnf(f string, args ...interface{}) {
	if o.Log != nil {
		o.Log.Warning(f, args...)
	}
}

// Run executes one backup pass per spec section 4.8. Per-file failures
// during the walk (step 5), a failed --protect sidecar, and a failed
// config persist (step 10) are collected into Result.Warnings and the run
// keeps going; every other failure, including sorting the index or adding
// /checksums and /removed (steps 6-7), aborts the run.
func (o *Orchestrator) Run(ctx context.Context, opts config.Options) (Result, error) {
	var res Result

	// Step 1: resolve output directory.
	outDir := opts.OutputDirectory
	if outDir == "" {
		var err error
		outDir, err = config.DefaultOutputDir()
		if err != nil {
			return res, ezerr.Wrap(ezerr.Config, err, "resolving default output directory")
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return res, ezerr.Wrapf(ezerr.IO, err, "creating output directory %s", outDir)
	}

	// Step 2: compute the default archive name.
	finalPath := defaultArchiveName(outDir, opts)
	res.ArchivePath = finalPath

	// Step 3: open the prior archive's digest index, if any.
	priorIndex, priorCleanup, err := o.openPriorIndex(opts)
	if err != nil {
		return res, err
	}
	defer priorCleanup()

	// Step 4: open a fresh archive over a temp file.
	archiveTempPath, err := tempPath("ezbackup_archive")
	if err != nil {
		return res, ezerr.Wrap(ezerr.IO, err, "creating temp archive")
	}
	defer os.Remove(archiveTempPath)

	w, err := archive.Create(archiveTempPath, opts.Compressor, opts.CompressionLevel)
	if err != nil {
		return res, err
	}

	// Steps 5-7: walk, digest, classify, stream changed/new files, build
	// the current index, derive the removed list.
	currentIndex, currentCleanup, walkErr := o.walkAndIndex(ctx, opts, priorIndex, w, &res)
	defer currentCleanup()
	if walkErr != nil {
		w.Close()
		return res, walkErr
	}

	if err := o.addChecksums(w, currentIndex); err != nil {
		w.Close()
		return res, err
	}
	if n, err := o.addRemoved(w, priorIndex, currentIndex); err != nil {
		w.Close()
		return res, err
	} else {
		res.FilesRemoved = n
	}

	// Step 8: close the archive.
	if err := w.Close(); err != nil {
		return res, err
	}

	// Step 9: encrypt or rename into place.
	if err := o.finalize(archiveTempPath, finalPath, opts); err != nil {
		return res, err
	}

	if opts.Protect {
		sidecarPath := finalPath + ".rs"
		if err := rdso.Protect(finalPath, sidecarPath, defaultDataShards, defaultParityShards, defaultHashRate); err != nil {
			res.Warnings = append(res.Warnings, err)
			o.warnf("protect %s: %v\n", finalPath, err)
		}
	}

	// Step 10: persist options, warning only.
	if err := o.persistOptions(opts, finalPath); err != nil {
		res.Warnings = append(res.Warnings, err)
		o.warnf("persisting config: %v\n", err)
	}

	return res, nil
}

func defaultArchiveName(outDir string, opts config.Options) string {
	name := fmt.Sprintf("backup-%d.tar", time.Now().Unix())
	if opts.Compressor != "" && opts.Compressor != archive.None {
		if ext := opts.Compressor.Ext(); ext != "" {
			name += "." + ext
		}
	}
	if opts.EncAlgorithm != nil {
		name += "." + string(*opts.EncAlgorithm)
	}
	return filepath.Join(outDir, name)
}

// openPriorIndex implements step 3: if a prior archive is configured,
// extract and open its /checksums member. Returns a no-op cleanup if
// there is no prior archive.
func (o *Orchestrator) openPriorIndex(opts config.Options) (*index.DigestIndex, func(), error) {
	if !opts.HasPriorArchive() {
		return nil, func() {}, nil
	}

	readablePath := opts.PrevBackup
	var shredPath string
	if opts.EncAlgorithm != nil {
		decTemp, err := tempPath("ezbackup_prior_dec")
		if err != nil {
			return nil, func() {}, ezerr.Wrap(ezerr.IO, err, "creating temp file for prior archive")
		}
		shredPath = decTemp

		salt, err := crypt.ExtractSalt(opts.PrevBackup)
		if err != nil {
			os.Remove(decTemp)
			return nil, func() {}, err
		}
		k := crypt.New()
		if err := k.SetCipher(*opts.EncAlgorithm); err != nil {
			os.Remove(decTemp)
			return nil, func() {}, err
		}
		if err := k.SetSalt(salt); err != nil {
			os.Remove(decTemp)
			return nil, func() {}, err
		}
		if err := k.DeriveKeys(opts.EncPassword); err != nil {
			os.Remove(decTemp)
			return nil, func() {}, err
		}
		derr := crypt.Decrypt(k, opts.PrevBackup, decTemp)
		k.Scrub()
		if derr != nil {
			os.Remove(decTemp)
			return nil, func() {}, derr
		}
		readablePath = decTemp
	}

	priorIndexPath, err := tempPath("ezbackup_prior_index")
	if err != nil {
		if shredPath != "" {
			u.ShredPath(shredPath)
		}
		return nil, func() {}, ezerr.Wrap(ezerr.IO, err, "creating temp file for prior index")
	}
	if err := archive.ExtractOne(readablePath, "/checksums", priorIndexPath); err != nil {
		if shredPath != "" {
			u.ShredPath(shredPath)
		}
		os.Remove(priorIndexPath)
		return nil, func() {}, err
	}
	if shredPath != "" {
		u.ShredPath(shredPath)
	}

	idx, err := index.Open(priorIndexPath)
	if err != nil {
		os.Remove(priorIndexPath)
		return nil, func() {}, err
	}
	return idx, func() { os.Remove(priorIndexPath) }, nil
}

// walkAndIndex implements steps 5-6: walk every configured root, digest
// and classify each file, stream changed/new payloads into w, and build
// the sorted current DigestIndex.
func (o *Orchestrator) walkAndIndex(ctx context.Context, opts config.Options, priorIndex *index.DigestIndex, w *archive.Writer, res *Result) (*index.DigestIndex, func(), error) {
	currentLog, err := index.NewAppendLog(u.TempDir, "ezbackup_current")
	if err != nil {
		return nil, func() {}, ezerr.Wrap(ezerr.IO, err, "creating current digest append log")
	}

	excl := walk.NewExclusionSet(opts.Exclude)
	onError := func(path string, err error) {
		res.Warnings = append(res.Warnings, ezerr.Wrapf(ezerr.IO, err, "walking %s", path))
		o.warnf("%s: %v\n", path, err)
	}

	for entry := range walk.Walk(opts.Directories, excl, onError) {
		if ctx.Err() != nil {
			currentLog.Remove()
			return nil, func() {}, ezerr.Wrap(ezerr.Abort, ctx.Err(), "backup canceled")
		}
		if !entry.IsRegular() {
			continue
		}
		res.FilesScanned++

		added, err := o.processFile(entry, opts, priorIndex, currentLog, w)
		if err != nil {
			res.Warnings = append(res.Warnings, err)
			o.warnf("%s: %v\n", entry.Path, err)
			continue
		}
		if added {
			res.FilesAdded++
		}
	}

	if err := currentLog.Close(); err != nil {
		return nil, func() {}, err
	}
	currentLogPath := currentLog.Path()
	cleanupLog := func() { os.Remove(currentLogPath) }

	sortedPath, err := tempPath("ezbackup_current_sorted")
	if err != nil {
		cleanupLog()
		return nil, func() {}, ezerr.Wrap(ezerr.IO, err, "creating temp file for sorted current index")
	}
	if err := index.Sort(currentLogPath, sortedPath, 0); err != nil {
		cleanupLog()
		os.Remove(sortedPath)
		return nil, func() {}, err
	}
	cleanupLog()

	idx, err := index.Open(sortedPath)
	if err != nil {
		os.Remove(sortedPath)
		return nil, func() {}, err
	}

	return idx, func() { os.Remove(sortedPath) }, nil
}

// processFile digests one file, classifies it against priorIndex, and if
// changed/new streams it into w. It returns whether the file was added to
// the archive; (path, hex) is appended to currentLog either way.
func (o *Orchestrator) processFile(entry walk.Entry, opts config.Options, priorIndex *index.DigestIndex, currentLog *index.AppendLog, w *archive.Writer) (bool, error) {
	hex, err := digest.SumFile(entry.Path, opts.HashAlgorithm)
	if err != nil {
		return false, err
	}

	status, err := index.Classify(entry.Path, hex, priorIndex)
	if err != nil {
		return false, err
	}

	added := false
	if status != index.Unchanged {
		f, err := os.Open(entry.Path)
		if err != nil {
			return false, ezerr.Wrapf(ezerr.IO, err, "opening %s to archive", entry.Path)
		}
		meta := archive.MetadataFromFileInfo(entry.Info)
		addErr := w.AddStream(f, "/files"+entry.Path, meta)
		f.Close()
		if addErr != nil {
			return false, addErr
		}
		added = true
	}

	if err := currentLog.Append(entry.Path, hex); err != nil {
		return added, err
	}
	return added, nil
}

func (o *Orchestrator) addChecksums(w *archive.Writer, currentIndex *index.DigestIndex) error {
	f, err := os.Open(currentIndex.Path())
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "opening %s to add to archive", currentIndex.Path())
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return ezerr.Wrap(ezerr.IO, err, "stat checksums index")
	}
	return w.AddStream(f, "/checksums", archive.MetadataFromFileInfo(fi))
}

func (o *Orchestrator) addRemoved(w *archive.Writer, priorIndex, currentIndex *index.DigestIndex) (int, error) {
	removedPath, err := tempPath("ezbackup_removed")
	if err != nil {
		return 0, ezerr.Wrap(ezerr.IO, err, "creating temp file for removed list")
	}
	defer os.Remove(removedPath)

	rf, err := os.Create(removedPath)
	if err != nil {
		return 0, ezerr.Wrapf(ezerr.IO, err, "creating %s", removedPath)
	}
	n, werr := countingRemoved(priorIndex, currentIndex, rf)
	if cerr := rf.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return 0, werr
	}

	in, err := os.Open(removedPath)
	if err != nil {
		return 0, ezerr.Wrapf(ezerr.IO, err, "opening %s to add to archive", removedPath)
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return 0, ezerr.Wrap(ezerr.IO, err, "stat removed list")
	}
	if err := w.AddStream(in, "/removed", archive.MetadataFromFileInfo(fi)); err != nil {
		return 0, err
	}
	return n, nil
}

func (o *Orchestrator) finalize(archiveTempPath, finalPath string, opts config.Options) error {
	if opts.EncAlgorithm == nil {
		if err := os.Rename(archiveTempPath, finalPath); err != nil {
			if err := copyThenRemove(archiveTempPath, finalPath); err != nil {
				return ezerr.Wrap(ezerr.IO, err, "moving archive into place")
			}
		}
		return nil
	}

	k := crypt.New()
	if err := k.SetCipher(*opts.EncAlgorithm); err != nil {
		return err
	}
	if err := k.GenSalt(); err != nil {
		return err
	}
	if err := k.DeriveKeys(opts.EncPassword); err != nil {
		return err
	}
	err := crypt.Encrypt(k, archiveTempPath, finalPath)
	k.Scrub()
	if err != nil {
		os.Remove(finalPath)
		return err
	}
	return nil
}

func (o *Orchestrator) persistOptions(opts config.Options, finalPath string) error {
	persisted := opts.Clone()
	persisted.PrevBackup = finalPath

	cfgPath, err := config.DefaultPath()
	if err != nil {
		return ezerr.Wrap(ezerr.Config, err, "resolving config path")
	}
	return config.Save(cfgPath, persisted, false)
}

// countingRemoved wraps index.Removed to also report how many paths it
// wrote, for Result.FilesRemoved.
func countingRemoved(prior, current *index.DigestIndex, w io.Writer) (int, error) {
	cw := &lineCountingWriter{w: w}
	if err := index.Removed(prior, current, cw); err != nil {
		return cw.lines, err
	}
	return cw.lines, nil
}

type lineCountingWriter struct {
	w     io.Writer
	lines int
}

func (c *lineCountingWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			c.lines++
		}
	}
	return c.w.Write(p)
}

func tempPath(prefix string) (string, error) {
	f, err := os.CreateTemp(u.TempDir, prefix+"_*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
