// Package cache stores LLM responses on disk, keyed by a content hash
// of the full generation request. Replaying a session with an unchanged
// prompt then costs nothing, which is what makes repeated dry runs and
// prompt-tuning loops bearable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evolvehq/evolve/internal/provider"
)

// Entry is one cached response with enough metadata to audit it.
type Entry struct {
	Response provider.Response `json:"response"`
	Model    string            `json:"model"`
	Provider string            `json:"provider"`
	StoredAt time.Time         `json:"stored_at"`
}

// Cache is a directory of JSON entries, one file per key. An empty
// directory string disables the cache entirely; every Get misses and
// every Put is a no-op.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Key hashes everything that shapes a generation result: the provider
// and model identity plus the full request. Two requests collide only
// when an identical provider would see an identical call.
func Key(providerName, model string, opts provider.GenerateOptions) string {
	h := sha256.New()

	writeString(h, providerName)
	writeString(h, model)
	writeString(h, opts.System)
	writeString(h, opts.User)
	writeString(h, string(opts.ResponseFormat))
	for _, s := range opts.Stop {
		writeString(h, s)
	}
	if opts.Temperature != nil {
		writeString(h, fmt.Sprintf("temp=%g", *opts.Temperature))
	}
	if opts.MaxTokens != nil {
		writeString(h, fmt.Sprintf("max=%d", *opts.MaxTokens))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// writeString hashes s with a null delimiter so adjacent fields cannot
// run together and collide.
func writeString(w io.Writer, s string) {
	_, _ = w.Write([]byte(s + "\x00"))
}

// Get retrieves a cached response. Unreadable or corrupt entries count
// as misses.
func (c *Cache) Get(key string) (*provider.Response, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.Debug("discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	return &e.Response, true
}

// Put stores a response under key.
func (c *Cache) Put(key string, resp *provider.Response) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.MarshalIndent(Entry{
		Response: *resp,
		Model:    resp.Model,
		Provider: resp.Provider,
		StoredAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	if err := os.WriteFile(c.entryPath(key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Stats reports the entry count and total size of the cache.
func (c *Cache) Stats() (entries int, size int64, err error) {
	if c.dir == "" {
		return 0, 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dirEntries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading cache directory: %w", err)
	}

	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries++
		size += info.Size()
	}
	return entries, size, nil
}

// Clear removes the whole cache directory. It refuses to delete a
// directory holding anything that is not a cache entry, so a mistyped
// path cannot wipe unrelated files.
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dirEntries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, de := range dirEntries {
		if de.IsDir() {
			return fmt.Errorf("cache directory contains subdirectory %q, refusing to delete", de.Name())
		}
		if filepath.Ext(de.Name()) != ".json" {
			return fmt.Errorf("cache directory contains non-cache file %q, refusing to delete", de.Name())
		}
	}
	return os.RemoveAll(c.dir)
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Provider decorates an inner provider with read-through caching. Hits
// are served without a network call; misses are forwarded and stored.
type Provider struct {
	inner provider.Provider
	cache *Cache

	mu     sync.Mutex
	hits   int
	misses int
}

// Wrap decorates p with c. A nil or disabled cache still works; every
// call simply misses.
func Wrap(p provider.Provider, c *Cache) *Provider {
	if c == nil {
		c = New("")
	}
	return &Provider{inner: p, cache: c}
}

func (p *Provider) Name() string  { return p.inner.Name() }
func (p *Provider) Model() string { return p.inner.Model() }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return p.inner.IsAvailable(ctx)
}

func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return p.inner.ListModels(ctx)
}

func (p *Provider) Generate(ctx context.Context, opts provider.GenerateOptions) (*provider.Response, error) {
	key := Key(p.inner.Name(), p.inner.Model(), opts)

	if resp, ok := p.cache.Get(key); ok {
		p.count(true)
		slog.Debug("cache hit", "provider", p.inner.Name(), "key", key[:12])
		return resp, nil
	}
	p.count(false)

	resp, err := p.inner.Generate(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Put(key, resp); err != nil {
		slog.Warn("failed to store cache entry", "key", key[:12], "error", err)
	}
	return resp, nil
}

// Close delegates to the inner provider when it holds resources.
func (p *Provider) Close(ctx context.Context) error {
	if closer, ok := p.inner.(provider.Closer); ok {
		return closer.Close(ctx)
	}
	return nil
}

// HitRate returns cache hits and misses since construction.
func (p *Provider) HitRate() (hits, misses int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}

func (p *Provider) count(hit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hit {
		p.hits++
	} else {
		p.misses++
	}
}

var _ provider.Provider = (*Provider)(nil)
var _ provider.Closer = (*Provider)(nil)
