package livetv

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// URLCacheConfig controls the resolved-URL cache.
type URLCacheConfig struct {
	MaxEntries int
	HLSTTL     time.Duration
	DirectTTL  time.Duration
}

// DefaultURLCacheConfig returns the standard cache policy.
func DefaultURLCacheConfig() URLCacheConfig {
	return URLCacheConfig{
		MaxEntries: 200,
		HLSTTL:     time.Hour,
		DirectTTL:  30 * time.Minute,
	}
}

type urlCacheEntry struct {
	resolved   ResolvedStreamURL
	accountID  int64
	cachedAt   time.Time
	expiresAt  time.Time
	lastAccess time.Time
}

// URLCache memoizes resolved stream URLs by (accountId, channelRef).
// TTL is chosen from the stream kind; expired entries are removed by a
// periodic Sweep.
type URLCache struct {
	mu      sync.Mutex
	entries map[string]*urlCacheEntry
	config  URLCacheConfig
	logger  zerolog.Logger
}

// NewURLCache creates a resolved-URL cache.
func NewURLCache(config URLCacheConfig, logger zerolog.Logger) *URLCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 200
	}
	if config.HLSTTL <= 0 {
		config.HLSTTL = time.Hour
	}
	if config.DirectTTL <= 0 {
		config.DirectTTL = 30 * time.Minute
	}
	return &URLCache{
		entries: make(map[string]*urlCacheEntry),
		config:  config,
		logger:  logger.With().Str("component", "livetv-urlcache").Logger(),
	}
}

func urlCacheKey(accountID int64, channelRef string) string {
	return fmt.Sprintf("%d:%s", accountID, channelRef)
}

// Get returns a live cached URL, updating its last access time.
func (c *URLCache) Get(accountID int64, channelRef string) (*ResolvedStreamURL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[urlCacheKey(accountID, channelRef)]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if now.After(entry.expiresAt) {
		delete(c.entries, urlCacheKey(accountID, channelRef))
		return nil, false
	}
	entry.lastAccess = now
	resolved := entry.resolved
	return &resolved, true
}

// Put stores a resolved URL with a TTL chosen from its stream kind. If
// the provider reported an earlier expiry, that wins.
func (c *URLCache) Put(accountID int64, channelRef string, resolved ResolvedStreamURL) {
	ttl := c.config.DirectTTL
	if resolved.Kind == StreamKindHLS {
		ttl = c.config.HLSTTL
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	if !resolved.ExpiresAt.IsZero() && resolved.ExpiresAt.Before(expiresAt) {
		expiresAt = resolved.ExpiresAt
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[urlCacheKey(accountID, channelRef)] = &urlCacheEntry{
		resolved:   resolved,
		accountID:  accountID,
		cachedAt:   now,
		expiresAt:  expiresAt,
		lastAccess: now,
	}
}

// Invalidate removes one cached URL.
func (c *URLCache) Invalidate(accountID int64, channelRef string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, urlCacheKey(accountID, channelRef))
}

// InvalidateAccount removes every cached URL for an account. Used when
// an auth-shaped failure makes all the account's tokens suspect.
func (c *URLCache) InvalidateAccount(accountID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if entry.accountID == accountID {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug().Int64("accountId", accountID).Int("removed", removed).Msg("Invalidated account URLs")
	}
}

// Sweep removes expired entries. Intended to run on a 60s schedule.
func (c *URLCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries.
func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked drops the least recently accessed entry.
func (c *URLCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
