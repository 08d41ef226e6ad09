package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/indexer/types"
	"github.com/keonramses/cinephage/internal/metrics"
)

// CacheVersion is folded into every fingerprint; bumping it invalidates
// all previously cached entries.
const CacheVersion = 1

// CacheConfig controls the release cache.
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// DefaultCacheConfig returns the default cache policy.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 5 * time.Minute, MaxSize: 500}
}

// CacheEntry is a memoized search result set.
type CacheEntry struct {
	Fingerprint string
	Releases    []types.ReleaseResult
	CachedAt    time.Time
}

// ReleaseCache memoizes search results by criteria fingerprint. Entries
// expire after the TTL and the least recently used entry is evicted
// when the cache is full.
type ReleaseCache struct {
	lru    *expirable.LRU[string, *CacheEntry]
	logger zerolog.Logger
}

// NewReleaseCache creates a release cache.
func NewReleaseCache(config CacheConfig, logger zerolog.Logger) *ReleaseCache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultCacheConfig().MaxSize
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	return &ReleaseCache{
		lru:    expirable.NewLRU[string, *CacheEntry](config.MaxSize, nil, config.TTL),
		logger: logger.With().Str("component", "release-cache").Logger(),
	}
}

// Get returns the cached entry for a fingerprint, refreshing its LRU
// position. Expired entries are dropped on read.
func (c *ReleaseCache) Get(fingerprint string) (*CacheEntry, bool) {
	entry, ok := c.lru.Get(fingerprint)
	if !ok {
		metrics.ReleaseCacheEvents.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.ReleaseCacheEvents.WithLabelValues("hit").Inc()
	return entry, true
}

// Put stores results under a fingerprint. The slice is copied so later
// mutation by the caller cannot corrupt the cache.
func (c *ReleaseCache) Put(fingerprint string, releases []types.ReleaseResult) {
	stored := make([]types.ReleaseResult, len(releases))
	copy(stored, releases)
	c.lru.Add(fingerprint, &CacheEntry{
		Fingerprint: fingerprint,
		Releases:    stored,
		CachedAt:    time.Now(),
	})
}

// Len returns the number of live entries.
func (c *ReleaseCache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *ReleaseCache) Purge() { c.lru.Purge() }

// Fingerprint produces a stable identifier for a normalized view of the
// criteria. Field order never matters and absent fields are omitted, so
// semantically equivalent criteria collide.
func Fingerprint(criteria types.SearchCriteria) string {
	parts := []string{
		"_v=" + strconv.Itoa(CacheVersion),
		"type=" + string(criteria.Type),
	}

	if q := strings.ToLower(strings.TrimSpace(criteria.Query)); q != "" {
		parts = append(parts, "q="+q)
	}
	if len(criteria.Categories) > 0 {
		cats := append([]int(nil), criteria.Categories...)
		sort.Ints(cats)
		strs := make([]string, len(cats))
		for i, c := range cats {
			strs[i] = strconv.Itoa(c)
		}
		parts = append(parts, "c="+strings.Join(strs, ","))
	}
	if len(criteria.IndexerIDs) > 0 {
		ids := append([]int64(nil), criteria.IndexerIDs...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = strconv.FormatInt(id, 10)
		}
		parts = append(parts, "i="+strings.Join(strs, ","))
	}

	switch criteria.Type {
	case types.SearchTypeMovie:
		if criteria.ImdbID != "" {
			parts = append(parts, "imdb="+criteria.ImdbID)
		}
		if criteria.TmdbID != 0 {
			parts = append(parts, "tmdb="+strconv.Itoa(criteria.TmdbID))
		}
		if criteria.Year != 0 {
			parts = append(parts, "year="+strconv.Itoa(criteria.Year))
		}
	case types.SearchTypeTV:
		if criteria.ImdbID != "" {
			parts = append(parts, "imdb="+criteria.ImdbID)
		}
		if criteria.TmdbID != 0 {
			parts = append(parts, "tmdb="+strconv.Itoa(criteria.TmdbID))
		}
		if criteria.TvdbID != 0 {
			parts = append(parts, "tvdb="+strconv.Itoa(criteria.TvdbID))
		}
		if criteria.Season != nil {
			parts = append(parts, "s="+strconv.Itoa(*criteria.Season))
		}
		if criteria.Episode != nil {
			parts = append(parts, "e="+strconv.Itoa(*criteria.Episode))
		}
	case types.SearchTypeMusic:
		if criteria.Artist != "" {
			parts = append(parts, "artist="+strings.ToLower(criteria.Artist))
		}
		if criteria.Album != "" {
			parts = append(parts, "album="+strings.ToLower(criteria.Album))
		}
	case types.SearchTypeBook:
		if criteria.Author != "" {
			parts = append(parts, "author="+strings.ToLower(criteria.Author))
		}
		if criteria.BookTitle != "" {
			parts = append(parts, "title="+strings.ToLower(criteria.BookTitle))
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	// Truncated to 128 bits; plenty for a process-local cache key.
	return hex.EncodeToString(sum[:16])
}
