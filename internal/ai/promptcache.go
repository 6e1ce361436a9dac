package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// PromptCache stores provider responses keyed by a digest of model name and
// prompt text, adapted from the teacher's LLMCache. Responses are opaque
// bytes to the cache; callers marshal/unmarshal their own payload shape.
type PromptCache struct {
	Dir string
	// StrictPerms, when true, enforces 0700 on the cache directory and 0600
	// on files.
	StrictPerms bool
}

func (c *PromptCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("prompt cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

// KeyFrom builds a cache key from model, prompt and an optional input digest
// (e.g. the concatenated page content an extraction call was run against),
// so that identical prompts over different inputs don't collide.
func KeyFrom(model, prompt, inputDigest string) string {
	h := sha256.Sum256([]byte(model + "\n\n" + prompt + "\n\n" + inputDigest))
	return hex.EncodeToString(h[:])
}

// PromptHash derives the version-addressable hash named in spec §4.3: model
// name plus prompt text, with no input component, so it identifies a prompt
// version independent of what it was run against.
func PromptHash(model, prompt string) string {
	h := sha256.Sum256([]byte(model + "\n\n" + prompt))
	return hex.EncodeToString(h[:])
}

func (c *PromptCache) pathFor(key string) string {
	return filepath.Join(c.Dir, key+".json")
}

// Get returns cached bytes if present, touching mtime for LRU eviction.
func (c *PromptCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := c.ensureDir(); err != nil {
		return nil, false, err
	}
	p := c.pathFor(key)
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, false, nil
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	return b, true, nil
}

// Save writes bytes to cache.
func (c *PromptCache) Save(_ context.Context, key string, data []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if c.StrictPerms {
		mode = 0o600
	}
	return os.WriteFile(c.pathFor(key), data, mode)
}
