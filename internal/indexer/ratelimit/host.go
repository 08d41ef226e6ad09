package ratelimit

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HostConfig defines per-host rate limit configuration.
type HostConfig struct {
	// RequestsPerSecond is the sustained request rate per upstream host.
	RequestsPerSecond float64
	// Burst is the number of requests allowed to exceed the rate briefly.
	Burst int
}

// DefaultHostConfig returns the default per-host configuration.
func DefaultHostConfig() HostConfig {
	return HostConfig{RequestsPerSecond: 1, Burst: 3}
}

// HostLimiter coalesces indexers that share an upstream host so several
// indexer entries cannot hammer a single server.
type HostLimiter struct {
	logger zerolog.Logger
	config HostConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a new per-host limiter.
func NewHostLimiter(config HostConfig, logger zerolog.Logger) *HostLimiter {
	return &HostLimiter{
		logger:   logger.With().Str("component", "host-limiter").Logger(),
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// HostKey derives the limiter key from an indexer base URL. Unparseable
// URLs fall back to the raw string so they still get a bucket.
func HostKey(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(strings.TrimSpace(baseURL))
	}
	return strings.ToLower(u.Hostname())
}

// Check returns the wait required before the host accepts another
// request. The reservation is cancelled; call RecordRequest once the
// request is actually dispatched.
func (h *HostLimiter) Check(baseURL string) CheckResult {
	lim := h.limiterFor(HostKey(baseURL))

	r := lim.Reserve()
	wait := r.Delay()
	r.Cancel()

	if wait <= 0 {
		return CheckResult{CanProceed: true}
	}
	return CheckResult{CanProceed: false, Wait: wait, Reason: "host rate limit"}
}

// RecordRequest consumes one token for the host.
func (h *HostLimiter) RecordRequest(baseURL string) {
	lim := h.limiterFor(HostKey(baseURL))
	if !lim.AllowN(time.Now(), 1) {
		h.logger.Debug().Str("host", HostKey(baseURL)).Msg("Host limiter over budget")
	}
}

func (h *HostLimiter) limiterFor(key string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lim, ok := h.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(h.config.RequestsPerSecond), h.config.Burst)
	h.limiters[key] = lim
	return lim
}
