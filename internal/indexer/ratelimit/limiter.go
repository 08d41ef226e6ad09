// Package ratelimit provides rate limiting for indexer operations.
// Two layers compose at the dispatch site: a per-indexer fixed-window
// limiter and a per-host token bucket shared by indexers on one host.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config defines per-indexer rate limit configuration.
type Config struct {
	// QueryLimit is the maximum number of queries allowed in the period.
	QueryLimit int
	// QueryPeriod is the time period for query limiting.
	QueryPeriod time.Duration
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		QueryLimit:  100,
		QueryPeriod: time.Hour,
	}
}

// CheckResult is the outcome of a pre-dispatch limit check.
type CheckResult struct {
	CanProceed bool
	Wait       time.Duration
	Reason     string
}

// Limiter tracks query counts per indexer over a fixed window.
type Limiter struct {
	logger zerolog.Logger
	config Config

	mu      sync.Mutex
	buckets map[int64]*rateBucket
}

// rateBucket tracks rate limit state for a single indexer.
type rateBucket struct {
	count     int
	resetTime time.Time
}

// NewLimiter creates a new per-indexer rate limiter.
func NewLimiter(config Config, logger zerolog.Logger) *Limiter {
	return &Limiter{
		logger:  logger.With().Str("component", "rate-limiter").Logger(),
		config:  config,
		buckets: make(map[int64]*rateBucket),
	}
}

// Check returns whether the indexer may issue a query now, and if not,
// how long the caller would need to wait.
func (l *Limiter) Check(indexerID int64) CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.getOrCreateBucket(indexerID)
	l.maybeReset(bucket)

	if bucket.count >= l.config.QueryLimit {
		wait := time.Until(bucket.resetTime)
		if wait < 0 {
			wait = 0
		}
		l.logger.Warn().
			Int64("indexerId", indexerID).
			Int("count", bucket.count).
			Int("limit", l.config.QueryLimit).
			Dur("wait", wait).
			Msg("Query rate limit reached")
		return CheckResult{CanProceed: false, Wait: wait, Reason: "query limit reached"}
	}

	return CheckResult{CanProceed: true}
}

// RecordRequest records a query for rate limiting purposes.
func (l *Limiter) RecordRequest(indexerID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := l.getOrCreateBucket(indexerID)
	l.maybeReset(bucket)
	bucket.count++

	l.logger.Debug().
		Int64("indexerId", indexerID).
		Int("queryCount", bucket.count).
		Int("queryLimit", l.config.QueryLimit).
		Msg("Recorded query")
}

// Reset clears the rate limit state for an indexer.
func (l *Limiter) Reset(indexerID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, indexerID)
}

func (l *Limiter) maybeReset(bucket *rateBucket) {
	if time.Now().After(bucket.resetTime) {
		bucket.count = 0
		bucket.resetTime = time.Now().Add(l.config.QueryPeriod)
	}
}

func (l *Limiter) getOrCreateBucket(indexerID int64) *rateBucket {
	if bucket, exists := l.buckets[indexerID]; exists {
		return bucket
	}
	bucket := &rateBucket{resetTime: time.Now().Add(l.config.QueryPeriod)}
	l.buckets[indexerID] = bucket
	return bucket
}
