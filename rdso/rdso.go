// Package rdso applies Reed-Solomon erasure coding to a single finished
// archive, producing a ".rs" parity sidecar that can later detect and, if
// enough shards survived, repair bit rot in the archive file. It is the
// optional integrity layer behind the backup command's --protect flag:
// the archive itself is an ordinary tar+compression stream, and rdso never
// looks inside it, it just treats the whole file as a blob to shard.
package rdso

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/jonathanrlemos/ezbackup/ezerr"
	u "github.com/jonathanrlemos/ezbackup/util"
	"github.com/klauspost/reedsolomon"
	"golang.org/x/crypto/sha3"
)

// HashSize is the number of bytes in the hash values used to fingerprint
// shards.
const HashSize = 64

// Hash is a fixed-size secure hash of a shard or hash chunk.
type Hash [HashSize]byte

// HashBytes computes the SHAKE256 hash of b.
func HashBytes(b []byte) Hash {
	var h Hash
	sha3.ShakeSum256(h[:], b)
	return h
}

// Sidecar is the parity file format written alongside a protected archive.
type Sidecar struct {
	FileSize                   int64
	NDataShards, NParityShards int
	HashRate                   int64
	Hashes                     [][]Hash // data shard hashes, then parity shard hashes
	ParityShards               [][]byte
}

// Protect reads the finished archive at archivePath, computes nParityShards
// Reed-Solomon parity shards over nDataShards data shards, and writes the
// result as a Sidecar gob to sidecarPath. hashRate is the chunk size (in
// bytes) used for the per-chunk integrity hashes that Verify/Repair check
// against; smaller values localize corruption more precisely at the cost
// of a larger sidecar.
func Protect(archivePath, sidecarPath string, nDataShards, nParityShards int, hashRate int64) error {
	rs := Sidecar{
		NDataShards:   nDataShards,
		NParityShards: nParityShards,
		HashRate:      hashRate,
	}

	dataShards, size, err := readAndShardFile(archivePath, nDataShards)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "reading %s to protect", archivePath)
	}
	rs.FileSize = size

	for i := 0; i < nParityShards; i++ {
		rs.ParityShards = append(rs.ParityShards, make([]byte, len(dataShards[0])))
	}

	enc, err := reedsolomon.New(nDataShards, nParityShards)
	if err != nil {
		return ezerr.Wrap(ezerr.Config, err, "constructing reed-solomon encoder")
	}
	allShards := append(dataShards, rs.ParityShards...)
	if err := enc.Encode(allShards); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "encoding parity shards")
	}

	if ok, err := enc.Verify(allShards); err != nil || !ok {
		return ezerr.New(ezerr.Format, "reed-solomon self-check failed immediately after encoding")
	}

	for _, s := range dataShards {
		rs.Hashes = append(rs.Hashes, hashChunks(shard(s, hashRate)))
	}
	for _, s := range rs.ParityShards {
		rs.Hashes = append(rs.Hashes, hashChunks(shard(s, hashRate)))
	}

	fout, err := os.Create(sidecarPath)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "creating sidecar %s", sidecarPath)
	}
	if err := gob.NewEncoder(fout).Encode(rs); err != nil {
		fout.Close()
		return ezerr.Wrap(ezerr.IO, err, "writing sidecar")
	}
	return fout.Close()
}

func readAndShardFile(fn string, nshards int) (shards [][]byte, size int64, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return
	}
	size = fi.Size()

	shardSize := (fi.Size() + int64(nshards) - 1) / int64(nshards)
	buf := make([]byte, int64(nshards)*shardSize)

	if _, err = io.ReadFull(f, buf[:fi.Size()]); err != nil {
		return
	}
	buf = buf[:cap(buf)] // zero-pad the tail of the last shard

	shards = shard(buf, shardSize)
	return
}

func shard(b []byte, size int64) (s [][]byte) {
	for {
		if int64(len(b)) > size {
			s = append(s, b[:size])
			b = b[size:]
		} else {
			s = append(s, b)
			return
		}
	}
}

func hashChunks(chunks [][]byte) (hashes []Hash) {
	for _, c := range chunks {
		hashes = append(hashes, HashBytes(c))
	}
	return
}

// Verify checks archivePath's shards against the hashes recorded in the
// sidecar at sidecarPath without attempting any repair. Mismatches are
// logged (if log is non-nil) and cause a non-nil return.
func Verify(archivePath, sidecarPath string, log *u.Logger) error {
	return checkOrRepair(archivePath, sidecarPath, log, false)
}

// Repair is like Verify, but if mismatches are found and enough shards
// survived intact, it reconstructs the missing data and writes the
// recovered archive to archivePath + ".recovered".
func Repair(archivePath, sidecarPath string, log *u.Logger) error {
	return checkOrRepair(archivePath, sidecarPath, log, true)
}

func checkOrRepair(fn, rsfn string, log *u.Logger, repair bool) error {
	rs, err := readSidecar(rsfn)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "reading sidecar %s", rsfn)
	}

	dataShards, _, err := readAndShardFile(fn, rs.NDataShards)
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "reading %s to verify", fn)
	}

	var allShards [][][]byte
	for _, s := range dataShards {
		allShards = append(allShards, shard(s, rs.HashRate))
	}
	for _, s := range rs.ParityShards {
		allShards = append(allShards, shard(s, rs.HashRate))
	}

	mismatches := 0
	nHashChunks := len(allShards[0])
	for hc := 0; hc < nHashChunks; hc++ {
		for s := 0; s < len(allShards); s++ {
			if HashBytes(allShards[s][hc]) != rs.Hashes[s][hc] {
				if log != nil {
					kind := "data"
					idx := s
					if s >= len(dataShards) {
						kind = "parity"
						idx = s - len(dataShards)
					}
					if repair {
						log.Warning("%s: %s shard %d chunk %d mismatch\n", fn, kind, idx, hc)
					} else {
						log.Error("%s: %s shard %d chunk %d mismatch\n", fn, kind, idx, hc)
					}
				}
				mismatches++
				allShards[s][hc] = nil
			}
		}
	}

	if !repair || mismatches == 0 {
		if mismatches > 0 {
			return ezerr.Newf(ezerr.Format, "%s: %d shard chunk mismatches", fn, mismatches)
		}
		return nil
	}

	enc, err := reedsolomon.New(rs.NDataShards, rs.NParityShards)
	if err != nil {
		return ezerr.Wrap(ezerr.Config, err, "constructing reed-solomon encoder")
	}

	for hc := 0; hc < nHashChunks; hc++ {
		missing := 0
		var recon [][]byte
		for _, s := range allShards {
			recon = append(recon, s[hc])
			if s[hc] == nil {
				missing++
			}
		}
		if missing > 0 {
			if err := enc.Reconstruct(recon); err != nil {
				return ezerr.Wrap(ezerr.Format, err, "reconstructing shard chunk")
			}
		}
		for s := 0; s < len(dataShards); s++ {
			copy(dataShards[s][int64(hc)*rs.HashRate:], recon[s])
		}
	}

	f, err := os.Create(fn + ".recovered")
	if err != nil {
		return ezerr.Wrapf(ezerr.IO, err, "creating %s.recovered", fn)
	}
	w := &limitedWriter{f, rs.FileSize}
	for _, s := range dataShards {
		if _, err := w.Write(s); err != nil {
			f.Close()
			return ezerr.Wrap(ezerr.IO, err, "writing recovered archive")
		}
	}
	return f.Close()
}

type limitedWriter struct {
	W io.Writer
	N int64
}

func (w *limitedWriter) Write(data []byte) (int, error) {
	if int64(len(data)) > w.N {
		data = data[:w.N]
	}
	n, err := w.W.Write(data)
	w.N -= int64(n)
	return n, err
}

func readSidecar(fn string) (Sidecar, error) {
	var rs Sidecar
	f, err := os.Open(fn)
	if err != nil {
		return rs, err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&rs); err != nil {
		return rs, err
	}
	return rs, nil
}
