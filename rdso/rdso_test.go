package rdso

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProtectVerifyRoundTrip(t *testing.T) {
	seed := time.Now().UnixNano()
	t.Logf("seed = %d", seed)
	r := rand.New(rand.NewSource(seed))

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")
	sidecarPath := filepath.Join(dir, "archive.tar.gz.rs")

	buf := make([]byte, 1+r.Intn(4*1024*1024))
	r.Read(buf)
	if err := os.WriteFile(archivePath, buf, 0o600); err != nil {
		t.Fatalf("writing archive: %v", err)
	}

	nData := 1 + r.Intn(16)
	nParity := 1 + r.Intn(4)
	hashRate := int64(1 << uint(10+r.Intn(6)))
	t.Logf("%d data shards, %d parity shards, hash rate %d", nData, nParity, hashRate)

	if err := Protect(archivePath, sidecarPath, nData, nParity, hashRate); err != nil {
		t.Fatalf("Protect: %v", err)
	}

	if err := Verify(archivePath, sidecarPath, nil); err != nil {
		t.Fatalf("Verify on untouched archive: %v", err)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")
	sidecarPath := filepath.Join(dir, "archive.tar.gz.rs")

	buf := make([]byte, 1024*1024)
	rand.New(rand.NewSource(1)).Read(buf)
	if err := os.WriteFile(archivePath, buf, 0o600); err != nil {
		t.Fatalf("writing archive: %v", err)
	}

	if err := Protect(archivePath, sidecarPath, 8, 2, 4096); err != nil {
		t.Fatalf("Protect: %v", err)
	}

	buf[1000] ^= 0xff
	if err := os.WriteFile(archivePath, buf, 0o600); err != nil {
		t.Fatalf("rewriting corrupted archive: %v", err)
	}

	if err := Verify(archivePath, sidecarPath, nil); err == nil {
		t.Fatalf("Verify on corrupted archive did not fail")
	}
}

func TestRepairReconstructsWithinParityBudget(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.tar.gz")
	sidecarPath := filepath.Join(dir, "archive.tar.gz.rs")

	buf := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(2)).Read(buf)
	if err := os.WriteFile(archivePath, buf, 0o600); err != nil {
		t.Fatalf("writing archive: %v", err)
	}

	nData, nParity := 8, 2
	if err := Protect(archivePath, sidecarPath, nData, nParity, 4096); err != nil {
		t.Fatalf("Protect: %v", err)
	}

	corrupt := make([]byte, len(buf))
	copy(corrupt, buf)
	shardSize := (int64(len(buf)) + int64(nData) - 1) / int64(nData)
	for i := range corrupt[:shardSize] {
		corrupt[i] = 0
	}
	if err := os.WriteFile(archivePath, corrupt, 0o600); err != nil {
		t.Fatalf("rewriting corrupted archive: %v", err)
	}

	if err := Repair(archivePath, sidecarPath, nil); err != nil {
		t.Fatalf("Repair: %v", err)
	}

	recovered, err := os.ReadFile(archivePath + ".recovered")
	if err != nil {
		t.Fatalf("reading recovered archive: %v", err)
	}
	if !bytesEqual(recovered, buf) {
		t.Errorf("recovered archive does not match original")
	}
}

func bytesEqual(a, b []byte) bool {
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
