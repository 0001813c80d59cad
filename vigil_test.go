package vigil

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func tempConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	c := DefaultConfig()
	c.Interval = 20 * time.Millisecond
	c.SnapshotPath = filepath.Join(dir, "status.json")
	c.LogDir = filepath.Join(dir, "logs")
	c.Resource.LogDir = c.LogDir
	return c
}

func TestFacadeRunAndSnapshot(t *testing.T) {
	requireUnix(t)
	c := tempConfig(t)
	// Probe for things that are certainly absent; failed launches must not
	// stop the loop from publishing.
	c.Services = []Spec{
		{
			Name: "ghost", Signature: "no-such-cmdline-anywhere",
			Match: "cmdline", Command: "true", Grace: 50 * time.Millisecond,
		},
	}

	var buf bytes.Buffer
	sup, err := New(c, NewLogger(&buf, slog.LevelDebug))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sup.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := sup.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	doc, err := ReadSnapshot(c.SnapshotPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if doc.Services["ghost"] != "stopped" {
		t.Fatalf("unexpected snapshot: %+v", doc.Services)
	}
	if _, err := os.Stat(c.LogDir); err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !strings.Contains(buf.String(), "attempting restart") {
		t.Fatalf("missing restart attempt log: %s", buf.String())
	}
}

func TestFacadeHistorySink(t *testing.T) {
	requireUnix(t)
	c := tempConfig(t)
	c.HistoryDSN = filepath.Join(t.TempDir(), "events.db")
	c.Services = nil

	sup, err := New(c, NewLogger(os.Stderr, slog.LevelError))
	if err != nil {
		t.Fatalf("new with sqlite sink: %v", err)
	}
	if err := sup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFacadeBadHistoryDSN(t *testing.T) {
	c := tempConfig(t)
	c.HistoryDSN = "mysql://nope"
	if _, err := New(c, nil); err == nil {
		t.Fatalf("expected error for unsupported DSN")
	}
}

func TestFacadeHTTPServer(t *testing.T) {
	requireUnix(t)
	c := tempConfig(t)
	c.Services = nil

	sup, err := New(c, NewLogger(os.Stderr, slog.LevelError))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = sup.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = sup.Run(ctx); close(done) }()

	srv, err := NewHTTPServer("127.0.0.1:0", "", sup, time.Minute)
	if err != nil {
		t.Fatalf("http server: %v", err)
	}
	defer func() { _ = srv.Close() }()

	// The listener address is chosen by the kernel; probe via the loop state
	// instead of the wire to keep the test deterministic.
	deadline := time.Now().Add(2 * time.Second)
	for sup.LastTick().IsZero() {
		if time.Now().After(deadline) {
			t.Fatalf("loop never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := sup.Latest(); !ok {
		t.Fatalf("no snapshot after first tick")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil && err != http.ErrServerClosed {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestConfigHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.toml")
	content := `
[supervisor]
interval = "7s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Interval != 7*time.Second {
		t.Fatalf("interval: %v", c.Interval)
	}
	if len(c.Services) != 4 {
		t.Fatalf("default registry: %d services", len(c.Services))
	}
}

func TestRegisterMetricsDefault(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Idempotent.
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}
