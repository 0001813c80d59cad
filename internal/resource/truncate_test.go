package resource

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeLogFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestTruncateOversized_KeepsExactTail(t *testing.T) {
	dir := t.TempDir()
	size := 1000
	retain := int64(128)
	path := writeLogFile(t, dir, "svc.log", size)
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	n, err := TruncateOversized(dir, 512, retain)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 truncated file, got %d", n)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read after truncate: %v", err)
	}
	if int64(len(got)) != retain {
		t.Fatalf("expected file of exactly %d bytes, got %d", retain, len(got))
	}
	// The most recent content (the tail) survives, the head is gone.
	if !bytes.Equal(got, original[int64(size)-retain:]) {
		t.Fatalf("truncated content is not the original tail")
	}
}

func TestTruncateOversized_LeavesSmallAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	small := writeLogFile(t, dir, "small.log", 100)
	foreign := writeLogFile(t, dir, "data.db", 5000)

	n, err := TruncateOversized(dir, 1024, 256)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected nothing truncated, got %d", n)
	}
	for _, p := range []string{small, foreign} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if p == small && info.Size() != 100 {
			t.Fatalf("small file changed: %d", info.Size())
		}
		if p == foreign && info.Size() != 5000 {
			t.Fatalf("non-log file changed: %d", info.Size())
		}
	}
}

func TestTruncateOversized_WalksSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeLogFile(t, sub, "deep.log", 2048)

	n, err := TruncateOversized(dir, 1024, 256)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected nested log truncated, got %d", n)
	}
}

// A writer holding the file open keeps a valid descriptor across truncation;
// the remediation must never force services to reopen their logs.
func TestTruncateOversized_OpenWriterSurvives(t *testing.T) {
	dir := t.TempDir()
	path := writeLogFile(t, dir, "live.log", 2048)

	w, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer func() { _ = w.Close() }()

	if _, err := TruncateOversized(dir, 1024, 256); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := w.WriteString("after-truncate\n"); err != nil {
		t.Fatalf("write after truncate: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Contains(got, []byte("after-truncate")) {
		t.Fatalf("post-truncate write lost")
	}
}

func TestTruncateOversized_MissingDirIsError(t *testing.T) {
	if _, err := TruncateOversized(filepath.Join(t.TempDir(), "nope"), 1024, 256); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
