package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/AbhiSondakar/NLIDB/internal/observability"
)

const defaultTTL = 10 * time.Minute

type Describer interface {
	Describe(ctx context.Context, allowList []string) (string, error)
}

// Cache memoizes successful schema descriptions for a bounded time. Entries
// are immutable once computed and replaced wholesale on expiry, so concurrent
// readers never observe a partially built description. The key is connection
// identity, not query content; staleness across external writes is the
// accepted cost of caching. Failures are never cached.
type Cache struct {
	Source Describer
	TTL    time.Duration
	Key    string

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	description string
	expires     time.Time
}

// CacheKey derives a connection identity from driver and DSN without keeping
// credentials around in plain text.
func CacheKey(driver, dsn string) string {
	sum := sha256.Sum256([]byte(driver + "\x00" + dsn))
	return hex.EncodeToString(sum[:8])
}

func (c *Cache) Describe(ctx context.Context, allowList []string) (string, error) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now()
	c.mu.Lock()
	if entry, ok := c.entries[c.Key]; ok && now.Before(entry.expires) {
		c.mu.Unlock()
		observability.ObserveSchemaCache(true)
		return entry.description, nil
	}
	c.mu.Unlock()

	observability.ObserveSchemaCache(false)
	description, err := c.Source.Describe(ctx, allowList)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.entries == nil {
		c.entries = map[string]cacheEntry{}
	}
	c.entries[c.Key] = cacheEntry{description: description, expires: now.Add(ttl)}
	c.mu.Unlock()
	return description, nil
}

// Invalidate drops the cached entry so the next Describe recomputes. Exposed
// for operational refresh; nothing invalidates the cache automatically on
// external write activity.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	delete(c.entries, c.Key)
	c.mu.Unlock()
}
