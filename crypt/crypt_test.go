package crypt

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathanrlemos/ezbackup/ezerr"
)

func encryptString(t *testing.T, dir, plaintext, password string) string {
	t.Helper()
	in := filepath.Join(dir, "plain")
	out := filepath.Join(dir, "enc")
	if err := os.WriteFile(in, []byte(plaintext), 0o600); err != nil {
		t.Fatal(err)
	}

	k := New()
	if err := k.SetCipher(AES256CBC); err != nil {
		t.Fatal(err)
	}
	if err := k.GenSalt(); err != nil {
		t.Fatal(err)
	}
	if err := k.DeriveKeys([]byte(password)); err != nil {
		t.Fatal(err)
	}
	if err := Encrypt(k, in, out); err != nil {
		t.Fatal(err)
	}
	k.Scrub()
	return out
}

func decryptFile(path, password string, dir string) (string, error) {
	salt, err := ExtractSalt(path)
	if err != nil {
		return "", err
	}
	k := New()
	if err := k.SetCipher(AES256CBC); err != nil {
		return "", err
	}
	if err := k.SetSalt(salt); err != nil {
		return "", err
	}
	if err := k.DeriveKeys([]byte(password)); err != nil {
		return "", err
	}
	out := filepath.Join(dir, "decrypted")
	if err := Decrypt(k, path, out); err != nil {
		return "", err
	}
	k.Scrub()
	b, err := os.ReadFile(out)
	return string(b), err
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	enc := encryptString(t, dir, "the quick brown fox jumps over the lazy dog", "swordfish")

	got, err := decryptFile(enc, "swordfish", dir)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "the quick brown fox jumps over the lazy dog" {
		t.Errorf("got %q", got)
	}
}

func TestEncryptDecryptEmptyPlaintext(t *testing.T) {
	dir := t.TempDir()
	enc := encryptString(t, dir, "", "swordfish")
	got, err := decryptFile(enc, "swordfish", dir)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestEncryptDecryptLargePlaintext(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("0123456789abcdef"), 100000) // 1.6MB, many chunk boundaries
	enc := encryptString(t, dir, string(data), "swordfish")
	got, err := decryptFile(enc, "swordfish", dir)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != string(data) {
		t.Error("large round trip mismatch")
	}
}

func TestWrongPasswordFails(t *testing.T) {
	dir := t.TempDir()
	enc := encryptString(t, dir, "hello\n", "swordfish")
	if _, err := decryptFile(enc, "Swordfish", dir); err == nil {
		t.Error("expected decryption with wrong password to fail")
	}
}

func TestSaltFraming(t *testing.T) {
	encA := filepath.Join(t.TempDir(), "a")
	encB := filepath.Join(t.TempDir(), "b")
	if err := os.MkdirAll(encA, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(encB, 0o755); err != nil {
		t.Fatal(err)
	}
	a := encryptString(t, encA, "hello\n", "pw")
	b := encryptString(t, encB, "hello\n", "pw")

	ba, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ba[:8], saltedMagic[:]) || !bytes.Equal(bb[:8], saltedMagic[:]) {
		t.Error("missing Salted__ magic")
	}
	if bytes.Equal(ba[8:16], bb[8:16]) {
		t.Error("two independent runs produced the same salt")
	}
}

func TestFormatErrorOnBadMagic(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "notencrypted")
	if err := os.WriteFile(bad, []byte("not an encrypted archive at all"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractSalt(bad); ezerr.KindOf(err) != ezerr.Format {
		t.Errorf("got %v, want FormatError", err)
	}
}

func TestStateMachineRejectsOutOfOrderCalls(t *testing.T) {
	k := New()
	if err := k.GenSalt(); ezerr.KindOf(err) != ezerr.CryptoState {
		t.Errorf("GenSalt before SetCipher: got %v, want CryptoStateError", err)
	}
	if err := k.DeriveKeys([]byte("x")); ezerr.KindOf(err) != ezerr.CryptoState {
		t.Errorf("DeriveKeys before SetCipher/GenSalt: got %v, want CryptoStateError", err)
	}

	if err := k.SetCipher(AES256CBC); err != nil {
		t.Fatal(err)
	}
	if err := k.SetCipher(AES256CBC); ezerr.KindOf(err) != ezerr.CryptoState {
		t.Errorf("double SetCipher: got %v, want CryptoStateError", err)
	}
	if err := k.DeriveKeys([]byte("x")); ezerr.KindOf(err) != ezerr.CryptoState {
		t.Errorf("DeriveKeys before salt: got %v, want CryptoStateError", err)
	}

	if err := k.GenSalt(); err != nil {
		t.Fatal(err)
	}
	if err := k.DeriveKeys([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := k.requireReady("test"); err != nil {
		t.Errorf("expected READY after DeriveKeys, got %v", err)
	}
}

func TestScrubPasswordOverwritesBuffer(t *testing.T) {
	pw := make([]byte, len("hunter2"), len("hunter2")+32)
	copy(pw, "hunter2")
	original := append([]byte(nil), pw...)

	ScrubPassword(pw)

	if bytes.Equal(pw, original) {
		t.Error("password buffer unchanged after ScrubPassword")
	}
}

func TestReadPasswordLine(t *testing.T) {
	pw, err := ReadPasswordLine(bytes.NewReader([]byte("swordfish\n")))
	if err != nil {
		t.Fatal(err)
	}
	if string(pw) != "swordfish" {
		t.Errorf("got %q", pw)
	}
}
