// Package search provides search orchestration across multiple indexers:
// eligibility filtering, tiered ID/text searches, bounded fan-out,
// deduplication, ranking and result caching.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/keonramses/cinephage/internal/indexer"
	"github.com/keonramses/cinephage/internal/indexer/ratelimit"
	"github.com/keonramses/cinephage/internal/indexer/status"
	"github.com/keonramses/cinephage/internal/indexer/types"
	"github.com/keonramses/cinephage/internal/metadata"
	"github.com/keonramses/cinephage/internal/metrics"
)

// WebSocket event types emitted during searches.
const (
	EventSearchStarted   = "search:started"
	EventSearchCompleted = "search:completed"
)

// Broadcaster interface for sending events to clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// MetadataClient resolves external IDs; failures are non-fatal.
type MetadataClient interface {
	GetMovieExternalIDs(ctx context.Context, tmdbID int) (*metadata.ExternalIDs, error)
	GetTVExternalIDs(ctx context.Context, tmdbID int) (*metadata.ExternalIDs, error)
}

// Options controls a single orchestrated search.
type Options struct {
	RespectEnabled  bool
	RespectBackoff  bool
	UseTieredSearch bool
	Concurrency     int
	Timeout         time.Duration
	UseCache        bool
	SearchSource    types.SearchSource
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		RespectEnabled:  true,
		RespectBackoff:  true,
		UseTieredSearch: true,
		Concurrency:     5,
		Timeout:         30 * time.Second,
		UseCache:        true,
		SearchSource:    types.SearchSourceInteractive,
	}
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.SearchSource == "" {
		o.SearchSource = types.SearchSourceInteractive
	}
}

// Error tags attached to per-indexer failures.
const (
	ErrorTagCloudflare = "cloudflare"
	ErrorTagTimeout    = "timeout"
	ErrorTagRateLimit  = "rate_limit"
	ErrorTagError      = "error"
)

// IndexerSearchError describes a per-indexer failure. Failures never
// propagate to the overall call.
type IndexerSearchError struct {
	IndexerID   int64  `json:"indexerId"`
	IndexerName string `json:"indexerName"`
	Tag         string `json:"tag"`
	Code        string `json:"code,omitempty"`
	Retryable   bool   `json:"retryable"`
	Message     string `json:"message"`
}

// SearchResult contains aggregated search results.
type SearchResult struct {
	Releases         []types.ReleaseResult `json:"releases"`
	TotalResults     int                   `json:"totalResults"`
	IndexersSearched int                   `json:"indexersSearched"`
	RejectedIndexers []RejectedIndexer     `json:"rejectedIndexers,omitempty"`
	Errors           []IndexerSearchError  `json:"errors,omitempty"`
	FromCache        bool                  `json:"fromCache,omitempty"`
}

// searchStartedPayload is broadcast when a search begins.
type searchStartedPayload struct {
	Query      string           `json:"query"`
	Type       types.SearchType `json:"type"`
	IndexerIDs []int64          `json:"indexerIds"`
}

// searchCompletedPayload is broadcast when a search finishes.
type searchCompletedPayload struct {
	Query        string           `json:"query"`
	Type         types.SearchType `json:"type"`
	TotalResults int              `json:"totalResults"`
	IndexersUsed int              `json:"indexersUsed"`
	Errors       int              `json:"errors"`
	ElapsedMs    int64            `json:"elapsedMs"`
}

// Orchestrator runs searches across the registered indexers.
type Orchestrator struct {
	registry    *indexer.Registry
	status      *status.Tracker
	limiter     *ratelimit.Limiter
	hosts       *ratelimit.HostLimiter
	cache       *ReleaseCache
	dedup       *Deduplicator
	ranker      *Ranker
	metadata    MetadataClient
	enricher    Enricher
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewOrchestrator creates a search orchestrator.
func NewOrchestrator(registry *indexer.Registry, tracker *status.Tracker, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		status:   tracker,
		cache:    NewReleaseCache(DefaultCacheConfig(), logger),
		dedup:    NewDeduplicator(),
		ranker:   NewDefaultRanker(),
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// SetRateLimiters attaches the per-indexer and per-host limiters.
func (o *Orchestrator) SetRateLimiters(limiter *ratelimit.Limiter, hosts *ratelimit.HostLimiter) {
	o.limiter = limiter
	o.hosts = hosts
}

// SetMetadataClient attaches the external ID lookup collaborator.
func (o *Orchestrator) SetMetadataClient(client MetadataClient) {
	o.metadata = client
}

// SetEnricher attaches the enrichment collaborator for SearchEnhanced.
func (o *Orchestrator) SetEnricher(enricher Enricher) {
	o.enricher = enricher
}

// SetBroadcaster attaches the WebSocket broadcaster for search events.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.broadcaster = b
}

// SetReleaseCache replaces the release cache (used to tune policy).
func (o *Orchestrator) SetReleaseCache(cache *ReleaseCache) {
	o.cache = cache
}

// Cache exposes the release cache for sweeping and diagnostics.
func (o *Orchestrator) Cache() *ReleaseCache { return o.cache }

// Search executes a search across eligible indexers and returns a
// deduplicated, filtered, ranked result. Per-indexer failures degrade
// the result but never fail the call.
func (o *Orchestrator) Search(ctx context.Context, criteria types.SearchCriteria, opts Options) *SearchResult {
	opts.normalize()
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	original := criteria
	enriched := o.enrichIDs(ctx, criteria)
	if len(enriched.Categories) == 0 {
		switch enriched.Type {
		case types.SearchTypeMovie:
			enriched.Categories = indexer.MovieCategories()
		case types.SearchTypeTV:
			enriched.Categories = indexer.TVCategories()
		}
	}

	fingerprint := Fingerprint(enriched)
	if opts.UseCache && o.cache != nil {
		if entry, ok := o.cache.Get(fingerprint); ok {
			metrics.SearchesTotal.WithLabelValues("cache_hit").Inc()
			return &SearchResult{
				Releases:     entry.Releases,
				TotalResults: len(entry.Releases),
				FromCache:    true,
			}
		}
	}

	eligible, rejected := o.filterIndexers(o.registry.List(), enriched, opts)
	if len(eligible) == 0 {
		metrics.SearchesTotal.WithLabelValues("no_indexers").Inc()
		return &SearchResult{
			Releases:         []types.ReleaseResult{},
			RejectedIndexers: rejected,
		}
	}

	o.broadcastStarted(enriched, eligible)

	o.logger.Info().
		Int("indexerCount", len(eligible)).
		Str("query", enriched.Query).
		Str("type", string(enriched.Type)).
		Msg("Starting search across indexers")

	releases, searched, searchErrors := o.fanOut(ctx, eligible, enriched, opts)

	deduped := o.dedup.Deduplicate(releases)
	filtered := FilterSeasonEpisode(deduped.Releases, original, o.logger)
	o.ranker.Rank(filtered)

	limit := original.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	if opts.UseCache && o.cache != nil && len(filtered) > 0 {
		o.cache.Put(fingerprint, filtered)
	}

	result := &SearchResult{
		Releases:         filtered,
		TotalResults:     len(filtered),
		IndexersSearched: searched,
		RejectedIndexers: rejected,
		Errors:           searchErrors,
	}

	elapsed := time.Since(start)
	o.broadcastCompleted(enriched, result, elapsed)
	metrics.SearchesTotal.WithLabelValues("ok").Inc()

	o.logger.Info().
		Int("totalResults", result.TotalResults).
		Int("indexersSearched", searched).
		Int("errors", len(searchErrors)).
		Dur("elapsed", elapsed).
		Msg("Search completed")

	return result
}

// enrichIDs splices an IMDB id into movie/tv criteria that only carry a
// TMDB id. Lookup failures log and proceed with the original criteria.
func (o *Orchestrator) enrichIDs(ctx context.Context, criteria types.SearchCriteria) types.SearchCriteria {
	if o.metadata == nil || criteria.TmdbID == 0 || criteria.ImdbID != "" {
		return criteria
	}

	var (
		ids *metadata.ExternalIDs
		err error
	)
	switch criteria.Type {
	case types.SearchTypeMovie:
		ids, err = o.metadata.GetMovieExternalIDs(ctx, criteria.TmdbID)
	case types.SearchTypeTV:
		ids, err = o.metadata.GetTVExternalIDs(ctx, criteria.TmdbID)
	default:
		return criteria
	}

	if err != nil || ids == nil {
		o.logger.Warn().Err(err).Int("tmdbId", criteria.TmdbID).Msg("External ID lookup failed, searching without IMDB id")
		return criteria
	}

	if ids.IMDBID != "" {
		criteria.ImdbID = ids.IMDBID
	}
	if criteria.Type == types.SearchTypeTV && criteria.TvdbID == 0 && ids.TVDBID != 0 {
		criteria.TvdbID = ids.TVDBID
	}
	return criteria
}

// indexerOutcome is the result of one indexer's tiered search.
type indexerOutcome struct {
	driver   indexer.Driver
	releases []types.ReleaseResult
	method   string
	err      *IndexerSearchError
}

// fanOut dispatches searches with bounded parallelism and collects the
// merged result set.
func (o *Orchestrator) fanOut(ctx context.Context, eligible []indexer.Driver, criteria types.SearchCriteria, opts Options) ([]types.ReleaseResult, int, []IndexerSearchError) {
	var (
		mu       sync.Mutex
		releases []types.ReleaseResult
		failures []IndexerSearchError
		searched int
	)

	p := pool.New().WithMaxGoroutines(opts.Concurrency)
	for _, d := range eligible {
		p.Go(func() {
			outcome := o.searchOne(ctx, d, criteria, opts)
			mu.Lock()
			defer mu.Unlock()
			if outcome.err != nil {
				failures = append(failures, *outcome.err)
				return
			}
			searched++
			releases = append(releases, outcome.releases...)
		})
	}
	p.Wait()

	return releases, searched, failures
}

// searchOne runs the rate-limit gate and tiered search for a single
// indexer, recording the outcome into the status tracker.
func (o *Orchestrator) searchOne(ctx context.Context, d indexer.Driver, criteria types.SearchCriteria, opts Options) indexerOutcome {
	outcome := indexerOutcome{driver: d}

	if wait, reason := o.requiredWait(d); wait > 0 {
		if wait > opts.Timeout {
			metrics.IndexerSearchesTotal.WithLabelValues("rate_limited").Inc()
			outcome.err = &IndexerSearchError{
				IndexerID:   d.ID(),
				IndexerName: d.Name(),
				Tag:         ErrorTagRateLimit,
				Message:     fmt.Sprintf("rate limited (%s): required wait %s exceeds timeout %s", reason, wait.Round(time.Millisecond), opts.Timeout),
			}
			return outcome
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			outcome.err = o.classifyError(d, ctx.Err(), opts)
			return outcome
		}
	}

	searchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	var (
		releases []types.ReleaseResult
		method   string
		err      error
	)
	if opts.UseTieredSearch {
		releases, method, err = o.tieredSearch(searchCtx, d, criteria)
	} else {
		method = SearchMethodBasic
		releases, err = d.Search(searchCtx, criteria)
	}
	elapsed := time.Since(start)

	if err != nil {
		outcome.err = o.classifyError(d, err, opts)
		o.status.RecordFailure(ctx, d.ID(), err)
		metrics.IndexerSearchesTotal.WithLabelValues("failure").Inc()
		o.logger.Error().
			Err(err).
			Int64("indexerId", d.ID()).
			Str("indexerName", d.Name()).
			Str("tag", outcome.err.Tag).
			Dur("elapsed", elapsed).
			Msg("Search failed")
		return outcome
	}

	o.status.RecordSuccess(ctx, d.ID())
	o.recordDispatch(d)
	metrics.IndexerSearchesTotal.WithLabelValues("success").Inc()

	outcome.releases = releases
	outcome.method = method

	o.logger.Debug().
		Int64("indexerId", d.ID()).
		Str("indexerName", d.Name()).
		Str("method", method).
		Int("results", len(releases)).
		Dur("elapsed", elapsed).
		Msg("Search completed for indexer")

	return outcome
}

// requiredWait combines the per-indexer and per-host gates and returns
// the larger wait.
func (o *Orchestrator) requiredWait(d indexer.Driver) (time.Duration, string) {
	var wait time.Duration
	var reason string

	if o.limiter != nil {
		if res := o.limiter.Check(d.ID()); !res.CanProceed && res.Wait > wait {
			wait, reason = res.Wait, res.Reason
		}
	}
	if o.hosts != nil {
		if res := o.hosts.Check(d.BaseURL()); !res.CanProceed && res.Wait > wait {
			wait, reason = res.Wait, res.Reason
		}
	}
	return wait, reason
}

// recordDispatch records a successful request in both limiters.
func (o *Orchestrator) recordDispatch(d indexer.Driver) {
	if o.limiter != nil {
		o.limiter.RecordRequest(d.ID())
	}
	if o.hosts != nil {
		o.hosts.RecordRequest(d.BaseURL())
	}
}

func (o *Orchestrator) classifyError(d indexer.Driver, err error, opts Options) *IndexerSearchError {
	e := &IndexerSearchError{
		IndexerID:   d.ID(),
		IndexerName: d.Name(),
		Code:        indexer.GetErrorCode(err),
		Retryable:   indexer.IsRetryable(err),
	}
	switch {
	case indexer.IsCloudflare(err):
		e.Tag = ErrorTagCloudflare
		e.Message = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		e.Tag = ErrorTagTimeout
		e.Message = fmt.Sprintf("Search timeout after %dms", opts.Timeout.Milliseconds())
	default:
		e.Tag = ErrorTagError
		e.Message = err.Error()
	}
	return e
}

func (o *Orchestrator) broadcastStarted(criteria types.SearchCriteria, eligible []indexer.Driver) {
	if o.broadcaster == nil {
		return
	}
	ids := make([]int64, len(eligible))
	for i, d := range eligible {
		ids[i] = d.ID()
	}
	_ = o.broadcaster.Broadcast(EventSearchStarted, searchStartedPayload{
		Query:      criteria.Query,
		Type:       criteria.Type,
		IndexerIDs: ids,
	})
}

func (o *Orchestrator) broadcastCompleted(criteria types.SearchCriteria, result *SearchResult, elapsed time.Duration) {
	if o.broadcaster == nil {
		return
	}
	_ = o.broadcaster.Broadcast(EventSearchCompleted, searchCompletedPayload{
		Query:        criteria.Query,
		Type:         criteria.Type,
		TotalResults: result.TotalResults,
		IndexersUsed: result.IndexersSearched,
		Errors:       len(result.Errors),
		ElapsedMs:    elapsed.Milliseconds(),
	})
}
