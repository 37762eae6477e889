package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path string, shortTerm int) {
	t.Helper()
	cfg := Default()
	cfg.Memory.ShortTermSize = shortTerm
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func waitForReload(t *testing.T, ch <-chan *Config) *Config {
	t.Helper()
	select {
	case cfg := <-ch:
		return cfg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
		return nil
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 10)

	ch := make(chan *Config, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, path, func(c *Config) { ch <- c }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeConfig(t, path, 4)
	if got := waitForReload(t, ch); got.Memory.ShortTermSize != 4 {
		t.Errorf("reloaded short_term_size = %d, want 4", got.Memory.ShortTermSize)
	}
}

func TestWatchCoalescesRapidSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 10)

	ch := make(chan *Config, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, path, func(c *Config) { ch <- c }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// Two saves inside the debounce window. The reload that eventually
	// lands must carry the second value, not the first.
	writeConfig(t, path, 5)
	writeConfig(t, path, 7)

	got := waitForReload(t, ch)
	for got.Memory.ShortTermSize != 7 {
		got = waitForReload(t, ch)
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, 10)

	ch := make(chan *Config, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := Watch(ctx, path, func(c *Config) { ch <- c }); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	select {
	case <-ch:
		t.Error("sibling file writes must not trigger a reload")
	case <-time.After(2 * debounceWindow):
	}
}
