package infra

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSafeCallConvertsPanic(t *testing.T) {
	t.Parallel()

	err := SafeCall("job", func() { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if err := SafeCall("job", func() {}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestEnsureWorkDir(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	dir, err := EnsureWorkDir(base, "a", "b")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if dir != filepath.Join(base, "a", "b") {
		t.Fatalf("unexpected dir %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory created: %v", err)
	}
}

func TestWatchFileFiresOnModification(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "binary")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := WatchFile(ctx, path, 10*time.Millisecond)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("modification was not noticed")
	}
}

func TestWatchFileMissingNeverFires(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := WatchFile(ctx, filepath.Join(t.TempDir(), "missing"), 10*time.Millisecond)

	select {
	case <-changed:
		t.Fatalf("missing file must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}
