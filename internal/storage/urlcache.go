package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Resolver produces a signed URL for a bucket/path pair.
type Resolver func(ctx context.Context, bucket, objectPath string) (string, error)

// Fallback produces the soft-fail URL returned when resolution errors out.
type Fallback func(bucket, objectPath string) string

type cacheEntry struct {
	url       string
	expiresAt time.Time
}

// URLCache caches signed URLs keyed by bucket/path. Entries live slightly
// shorter than the signed URL itself so callers never receive an expired
// link. Concurrent misses for the same key collapse into a single resolver
// call.
type URLCache struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry
	resolve  Resolver
	fallback Fallback
	ttl      time.Duration
	group    singleflight.Group
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewURLCache creates a URLCache and starts its eviction janitor.
// ttl should be set below the signed-URL expiry.
func NewURLCache(resolve Resolver, fallback Fallback, ttl time.Duration) *URLCache {
	c := &URLCache{
		entries:  make(map[string]cacheEntry),
		resolve:  resolve,
		fallback: fallback,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go c.evictionLoop()
	return c
}

// Resolve returns a signed URL for bucket/path, from cache when fresh.
// Resolution failures degrade to the fallback URL instead of an error so a
// missing object renders as a broken image, not a broken page.
func (c *URLCache) Resolve(ctx context.Context, bucket, objectPath string) string {
	key := bucket + "/" + objectPath

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.url
	}

	url, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Double-check: another caller may have populated the entry while
		// this one waited on the flight group.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.url, nil
		}

		signed, err := c.resolve(ctx, bucket, objectPath)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{url: signed, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return signed, nil
	})
	if err != nil {
		slog.Warn("signed URL resolution failed, falling back to public URL",
			"bucket", bucket, "path", objectPath, "error", err)
		return c.fallback(bucket, objectPath)
	}
	return url.(string)
}

// Invalidate removes a single entry.
func (c *URLCache) Invalidate(bucket, objectPath string) {
	c.mu.Lock()
	delete(c.entries, bucket+"/"+objectPath)
	c.mu.Unlock()
}

// Len reports the number of cached entries, fresh or stale.
func (c *URLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop shuts down the eviction janitor.
func (c *URLCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *URLCache) evictionLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *URLCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
