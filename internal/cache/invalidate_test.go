package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClearDirRecreatesEmptyDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub")
	c := &HTTPCache{Dir: dir}
	if err := c.Save(context.Background(), "https://a.com/1", "text/html", "", "", []byte("body")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear dir: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected an empty dir after clearing, got %d entries", len(entries))
	}
}

func TestPurgeHTTPCacheByAgeRemovesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	if err := c.Save(context.Background(), "https://a.com/1", "text/html", "", "", []byte("body")); err != nil {
		t.Fatalf("save: %v", err)
	}
	removed, err := PurgeHTTPCacheByAge(dir, time.Nanosecond)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := c.LoadBody(context.Background(), "https://a.com/1"); err == nil {
		t.Fatalf("expected entry purged")
	}
}

func TestPurgePromptCacheByAgeRemovesExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deadbeef.json"), []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	removed, err := PurgePromptCacheByAge(dir, time.Nanosecond)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestEnforcePromptCacheLimitsEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"aaaa.json", "bbbb.json", "cccc.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	removed, err := EnforcePromptCacheLimits(dir, 0, 2)
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
