package ai

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPromptCacheStrictPerms(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	dir := filepath.Join(base, "prompts")
	c := &PromptCache{Dir: dir, StrictPerms: true}
	key := KeyFrom("model", "prompt", "input")
	data := []byte(`{"ok":true}`)
	if err := c.Save(context.Background(), key, data); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	p := filepath.Join(dir, key+".json")
	finfo, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat file: %v", err)
	}
	if got := finfo.Mode() & 0o777; got != 0o600 {
		t.Fatalf("file mode = %o, want 0600", got)
	}
}

func TestPromptCacheGetTouchesMtimeForLRU(t *testing.T) {
	dir := t.TempDir()
	c := &PromptCache{Dir: dir}
	key := KeyFrom("model", "prompt", "")
	if err := c.Save(context.Background(), key, []byte("v1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	p := filepath.Join(dir, key+".json")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(p, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	b, ok, err := c.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(b) != "v1" {
		t.Fatalf("expected cached bytes, got %q", b)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().After(old) {
		t.Fatalf("expected Get to refresh mtime, still %v", info.ModTime())
	}
}
