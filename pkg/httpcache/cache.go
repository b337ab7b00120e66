// Package httpcache keeps response payloads in memory and persists them to a
// gob file so they survive restarts. Only payloads that stay valid for hours
// belong here; per-instant data must never be cached.
package httpcache

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

const fileName = "chronoshift-cache.gob"

// Entry is one cached payload.
type Entry struct {
	ExpiresAt time.Time
	Data      []byte
}

// Cache is an otter cache mirrored to a file in dir.
type Cache struct {
	cache      *otter.Cache[string, Entry]
	logger     *slog.Logger
	now        func() time.Time
	saveCancel context.CancelFunc
	dir        string
	saveWg     sync.WaitGroup
	ttl        time.Duration
	mu         sync.Mutex
}

// Open creates a cache in dir, loading any unexpired entries left by a
// previous run. A save interval above zero starts periodic saving until Close.
func Open(ctx context.Context, dir string, ttl, saveEvery time.Duration, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := &Cache{
		cache: otter.Must(&otter.Options[string, Entry]{
			MaximumSize:      1_000,
			ExpiryCalculator: otter.ExpiryWriting[string, Entry](ttl),
		}),
		dir:    dir,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
	if err := c.load(); err != nil {
		logger.Warn("failed to load cache from disk", "error", err)
	}
	if saveEvery > 0 {
		c.startPeriodicSave(ctx, saveEvery)
	}
	return c, nil
}

func key(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

// Get returns the payload stored for url.
func (c *Cache) Get(url string) ([]byte, bool) {
	k := key(url)
	entry, found := c.cache.GetIfPresent(k)
	if !found {
		c.logger.Debug("cache miss", "url", url)
		return nil, false
	}
	// Entries loaded from disk carry their own deadline.
	if c.now().After(entry.ExpiresAt) {
		c.cache.Invalidate(k)
		c.logger.Debug("cache miss", "url", url, "reason", "expired", "expired_at", entry.ExpiresAt)
		return nil, false
	}
	return entry.Data, true
}

// Set stores data for url.
func (c *Cache) Set(url string, data []byte) {
	entry := Entry{Data: data, ExpiresAt: c.now().Add(c.ttl)}
	c.cache.Set(key(url), entry)
	c.logger.Debug("cache set", "url", url, "expires_at", entry.ExpiresAt, "size", len(data))
}

// Len is the approximate number of entries.
func (c *Cache) Len() int {
	return c.cache.EstimatedSize()
}

func (c *Cache) path() string {
	return filepath.Join(c.dir, fileName)
}

func (c *Cache) load() error {
	file, err := os.Open(c.path())
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Debug("no existing cache file found", "path", c.path())
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			c.logger.Debug("failed to close cache file", "error", err)
		}
	}()

	var entries map[string]Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache file: %w", err)
	}
	now := c.now()
	valid := 0
	for k, e := range entries {
		if now.Before(e.ExpiresAt) {
			c.cache.Set(k, e)
			valid++
		}
	}
	c.logger.Debug("loaded cache from disk", "path", c.path(), "entries", len(entries), "valid", valid)
	return nil
}

// Save writes every unexpired entry to disk atomically.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make(map[string]Entry)
	now := c.now()
	c.cache.All()(func(k string, e Entry) bool {
		if now.Before(e.ExpiresAt) {
			entries[k] = e
		}
		return true
	})

	tmp, err := os.CreateTemp(c.dir, ".chronoshift-cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			c.logger.Debug("failed to remove temp file", "error", err)
		}
	}()

	if err := gob.NewEncoder(tmp).Encode(entries); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.path()); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	c.logger.Debug("cache saved to disk", "entries", len(entries), "path", c.path())
	return nil
}

func (c *Cache) startPeriodicSave(ctx context.Context, every time.Duration) {
	saveCtx, cancel := context.WithCancel(ctx)
	c.saveCancel = cancel

	c.saveWg.Add(1)
	go func() {
		defer c.saveWg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-saveCtx.Done():
				return
			case <-ticker.C:
				if err := c.Save(); err != nil {
					c.logger.Error("periodic cache save failed", "error", err)
				}
			}
		}
	}()
}

// Close stops periodic saving and writes the cache one last time.
func (c *Cache) Close() error {
	if c.saveCancel != nil {
		c.saveCancel()
	}
	c.saveWg.Wait()
	if err := c.Save(); err != nil {
		c.logger.Error("final cache save failed", "error", err)
		return err
	}
	return nil
}
