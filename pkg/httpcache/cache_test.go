package httpcache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestCache(t *testing.T, dir string) *Cache {
	t.Helper()
	c, err := Open(context.Background(), dir, time.Hour, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t, t.TempDir())
	if _, ok := c.Get("https://example.test/a"); ok {
		t.Fatal("Get() hit on an empty cache")
	}
	c.Set("https://example.test/a", []byte(`["x"]`))
	got, ok := c.Get("https://example.test/a")
	if !ok || string(got) != `["x"]` {
		t.Errorf("Get() = %q, %v", got, ok)
	}
	if _, ok := c.Get("https://example.test/b"); ok {
		t.Error("Get() hit for a different url")
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	c := newTestCache(t, t.TempDir())
	c.Set("u", []byte("data"))
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := c.Get("u"); ok {
		t.Error("Get() returned an expired entry")
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, dir)
	c.Set("keep", []byte("kept"))
	c.Set("other", []byte("old"))
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fileName)); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	reopened := newTestCache(t, dir)
	got, ok := reopened.Get("keep")
	if !ok || string(got) != "kept" {
		t.Errorf("Get(keep) after reopen = %q, %v", got, ok)
	}
	if _, ok := reopened.Get("other"); !ok {
		t.Error("Get(other) after reopen missed an unexpired entry")
	}
}

func TestCorruptFileIsIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := newTestCache(t, dir)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	c.Set("k", []byte("v"))
	if err := c.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestPeriodicSave(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(context.Background(), dir, time.Hour, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	c.Set("k", []byte("v"))
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(filepath.Join(dir, fileName)); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("periodic save never wrote the cache file")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
