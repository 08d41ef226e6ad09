package nntp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/keonramses/cinephage/internal/metrics"
	"github.com/keonramses/cinephage/internal/usenet/yenc"
)

const (
	articleCacheSize = 200
	articleCacheTTL  = 5 * time.Minute
)

// ArticleNotFoundError reports that every provider failed for a
// message-id.
type ArticleNotFoundError struct {
	MessageID string
	Tried     []string
	Skipped   int
}

func (e *ArticleNotFoundError) Error() string {
	detail := strings.Join(e.Tried, "; ")
	if detail == "" {
		detail = "no providers available"
	}
	return fmt.Sprintf("article %s not found: %s (%d providers skipped in backoff)", e.MessageID, detail, e.Skipped)
}

// Manager orchestrates article fetches across providers in priority
// order, deduplicating concurrent fetches per message-id and caching
// decoded articles.
type Manager struct {
	pools   []*Pool
	decoder *yenc.Decoder
	flight  singleflight.Group
	cache   *expirable.LRU[string, []byte]
	logger  zerolog.Logger
}

// NewManager creates a manager over the given providers, ordered by
// priority ascending.
func NewManager(configs []ProviderConfig, decoder *yenc.Decoder, logger zerolog.Logger) *Manager {
	sorted := make([]ProviderConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	pools := make([]*Pool, 0, len(sorted))
	for _, cfg := range sorted {
		pools = append(pools, NewPool(cfg, logger))
	}

	return &Manager{
		pools:   pools,
		decoder: decoder,
		cache:   expirable.NewLRU[string, []byte](articleCacheSize, nil, articleCacheTTL),
		logger:  logger.With().Str("component", "nntp-manager").Logger(),
	}
}

// Pools exposes the provider pools for health reporting.
func (m *Manager) Pools() []*Pool { return m.pools }

// GetDecodedArticle returns the yEnc-decoded body for a message-id.
// Concurrent callers for the same id share one wire fetch; repeats are
// answered from the in-process LRU.
func (m *Manager) GetDecodedArticle(ctx context.Context, messageID string) ([]byte, error) {
	if data, ok := m.cache.Get(messageID); ok {
		metrics.ArticleCacheEvents.WithLabelValues("hit").Inc()
		return data, nil
	}
	metrics.ArticleCacheEvents.WithLabelValues("miss").Inc()

	v, err, _ := m.flight.Do(messageID, func() (interface{}, error) {
		if data, ok := m.cache.Get(messageID); ok {
			return data, nil
		}

		raw, err := m.fetchArticleFromProviders(ctx, messageID)
		if err != nil {
			return nil, err
		}

		decoded, err := m.decoder.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode article %s: %w", messageID, err)
		}

		m.cache.Add(messageID, decoded.Data)
		return decoded.Data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// fetchArticleFromProviders walks the providers in priority order,
// skipping those in backoff, and returns the first successful body.
func (m *Manager) fetchArticleFromProviders(ctx context.Context, messageID string) ([]byte, error) {
	var tried []string
	skipped := 0

	for _, pool := range m.pools {
		if pool.InBackoff() {
			skipped++
			continue
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			pool.RecordFailure(ClassRetryable)
			tried = append(tried, fmt.Sprintf("%s: %v", pool.Config().Host, err))
			continue
		}

		start := time.Now()
		body, err := conn.Body(ctx, messageID)
		pool.Release(conn)

		if err == nil {
			pool.RecordSuccess(time.Since(start))
			metrics.NNTPFetchesTotal.WithLabelValues("success").Inc()
			return body, nil
		}

		class := Classify(err)
		pool.RecordFailure(class)
		metrics.NNTPFetchesTotal.WithLabelValues(class).Inc()
		tried = append(tried, fmt.Sprintf("%s: %v", pool.Config().Host, err))

		m.logger.Debug().
			Err(err).
			Str("messageId", messageID).
			Str("provider", pool.Config().Name).
			Str("class", class).
			Msg("Provider fetch failed")
	}

	return nil, &ArticleNotFoundError{MessageID: messageID, Tried: tried, Skipped: skipped}
}

// Close shuts down every pool; queued requests reject immediately.
func (m *Manager) Close() {
	for _, pool := range m.pools {
		pool.Close()
	}
}
