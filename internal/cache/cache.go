// Package cache memoizes rendered fragments by content and configuration.
package cache

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gnolang/laic/internal/types"
)

const cacheFile = "render_cache.gob"

// ErrAbandoned is returned to waiters when the owner of an in-flight key
// gave up without a result, typically because it was cancelled.
var ErrAbandoned = errors.New("cache: in-flight render abandoned")

// CacheEntry is a cached artifact with its timestamps.
type CacheEntry struct {
	Artifact     types.Artifact
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Call is an in-flight render of one key.
type Call struct {
	done chan struct{}
	art  *types.Artifact
	err  error
}

// Wait blocks until the call resolves or ctx is done.
func (c *Call) Wait(ctx context.Context) (*types.Artifact, error) {
	select {
	case <-c.done:
		return c.art, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Claim is the outcome of claiming a set of keys.
type Claim struct {
	Hits    map[types.CacheKey]*types.Artifact
	Owned   []types.CacheKey
	Waiting map[types.CacheKey]*Call
}

// Stats counts cache activity.
type Stats struct {
	Hits    int
	Misses  int
	Entries int
}

// Cache maps cache keys to rendered artifacts. At most one render per key
// is in flight at a time; the first completed result for a key wins.
type Cache struct {
	CacheDir string

	mutex    sync.Mutex
	entries  map[types.CacheKey]CacheEntry
	inflight map[types.CacheKey]*Call
	active   map[string]bool // config fingerprints; nil accepts all
	maxAge   time.Duration
	stats    Stats
}

// New returns an empty cache. With a non-empty cacheDir, entries are loaded
// from and saved to a file in that directory.
func New(cacheDir string) (*Cache, error) {
	cache := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[types.CacheKey]CacheEntry),
		inflight: make(map[types.CacheKey]*Call),
	}
	if cacheDir == "" {
		return cache, nil
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := cache.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return cache, nil
}

func (c *Cache) load() error {
	file, err := os.Open(filepath.Join(c.CacheDir, cacheFile))
	if os.IsNotExist(err) {
		return nil // nothing rendered yet
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&c.entries); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}
	return nil
}

// Save writes the entries to the cache directory, if there is one.
func (c *Cache) Save() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.save()
}

func (c *Cache) save() error {
	if c.CacheDir == "" {
		return nil
	}
	tmp, err := os.CreateTemp(c.CacheDir, cacheFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := gob.NewEncoder(tmp)
	if err := encoder.Encode(c.entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(c.CacheDir, cacheFile))
}

// Lookup returns the artifact stored for key.
func (c *Cache) Lookup(key types.CacheKey) (*types.Artifact, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lookup(key)
}

func (c *Cache) lookup(key types.CacheKey) (*types.Artifact, bool) {
	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge {
		delete(c.entries, key)
		c.stats.Misses++
		return nil, false
	}
	entry.LastAccessed = time.Now()
	c.entries[key] = entry
	c.stats.Hits++

	art := entry.Artifact
	return &art, true
}

// Insert stores art under key unless an entry exists already or key belongs
// to an inactive config. It reports whether art was stored.
func (c *Cache) Insert(key types.CacheKey, art *types.Artifact) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.insert(key, art)
}

func (c *Cache) insert(key types.CacheKey, art *types.Artifact) bool {
	if art == nil {
		return false
	}
	if c.active != nil && !c.active[configOf(key)] {
		return false
	}
	if _, exists := c.entries[key]; exists {
		return false
	}
	now := time.Now()
	c.entries[key] = CacheEntry{Artifact: *art, CreatedAt: now, LastAccessed: now}
	return true
}

// Claim sorts keys into cache hits, keys the caller now owns, and keys
// another caller is rendering. The caller must Complete or Abandon every
// owned key.
func (c *Cache) Claim(keys []types.CacheKey) Claim {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	claim := Claim{
		Hits:    make(map[types.CacheKey]*types.Artifact),
		Waiting: make(map[types.CacheKey]*Call),
	}
	for _, key := range keys {
		if _, seen := claim.Hits[key]; seen {
			continue
		}
		if _, seen := claim.Waiting[key]; seen {
			continue
		}
		if art, ok := c.lookup(key); ok {
			claim.Hits[key] = art
			continue
		}
		if call, ok := c.inflight[key]; ok {
			claim.Waiting[key] = call
			continue
		}
		c.inflight[key] = &Call{done: make(chan struct{})}
		claim.Owned = append(claim.Owned, key)
	}
	return claim
}

// Complete resolves an owned key. A successful artifact is inserted; the
// first one stored wins, and it is what waiters receive and Complete
// returns.
func (c *Cache) Complete(key types.CacheKey, art *types.Artifact, err error) *types.Artifact {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err == nil {
		c.insert(key, art)
		if entry, ok := c.entries[key]; ok {
			stored := entry.Artifact
			art = &stored
		}
	}
	c.resolve(key, art, err)
	return art
}

// Abandon releases an owned key without a result.
func (c *Cache) Abandon(key types.CacheKey) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.resolve(key, nil, ErrAbandoned)
}

func (c *Cache) resolve(key types.CacheKey, art *types.Artifact, err error) {
	call, ok := c.inflight[key]
	if !ok {
		return
	}
	delete(c.inflight, key)
	call.art, call.err = art, err
	close(call.done)
}

// SetConfigs makes cfgs the active configurations and evicts every entry
// rendered under another one.
func (c *Cache) SetConfigs(cfgs ...types.RenderConfig) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.active = make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		c.active[cfg.Fingerprint()[:fingerprintLen]] = true
	}
	for key := range c.entries {
		if !c.active[configOf(key)] {
			delete(c.entries, key)
		}
	}
}

// SetMaxAge sets how long after its creation an entry stays valid.
func (c *Cache) SetMaxAge(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.maxAge = duration
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[types.CacheKey]CacheEntry)
	return c.save()
}

// Stats returns the activity counters.
func (c *Cache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}
