package search

import (
	"context"
	"sort"
	"time"

	"github.com/keonramses/cinephage/internal/indexer/status"
	"github.com/keonramses/cinephage/internal/indexer/types"
	"github.com/keonramses/cinephage/internal/metrics"
	"github.com/keonramses/cinephage/internal/parser"
)

// EnhancedReleaseResult is a release annotated by the enrichment
// collaborator with parse and scoring detail.
type EnhancedReleaseResult struct {
	types.ReleaseResult
	Parsed          *parser.EpisodeInfo `json:"parsed,omitempty"`
	TotalScore      float64             `json:"totalScore"`
	Rejected        bool                `json:"rejected"`
	RejectionCount  int                 `json:"rejectionCount"`
	Rejections      []string            `json:"rejections,omitempty"`
	IndexerPriority int                 `json:"indexerPriority"`
}

// Enricher annotates releases with quality decisions. Implementations
// typically apply quality profiles and custom format scoring.
type Enricher interface {
	Enrich(ctx context.Context, releases []types.ReleaseResult, criteria types.SearchCriteria) ([]EnhancedReleaseResult, error)
}

// EnhancedSearchResult contains enriched search results.
type EnhancedSearchResult struct {
	Releases         []EnhancedReleaseResult `json:"releases"`
	TotalResults     int                     `json:"totalResults"`
	IndexersSearched int                     `json:"indexersSearched"`
	RejectedIndexers []RejectedIndexer       `json:"rejectedIndexers,omitempty"`
	Errors           []IndexerSearchError    `json:"errors,omitempty"`
}

// SearchEnhanced runs the same pipeline as Search but delegates final
// annotation and ordering to the enrichment collaborator. Enhanced
// results are never served from or stored in the release cache.
func (o *Orchestrator) SearchEnhanced(ctx context.Context, criteria types.SearchCriteria, opts Options) *EnhancedSearchResult {
	opts.normalize()
	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	original := criteria
	enriched := o.enrichIDs(ctx, criteria)

	eligible, rejected := o.filterIndexers(o.registry.List(), enriched, opts)
	if len(eligible) == 0 {
		return &EnhancedSearchResult{
			Releases:         []EnhancedReleaseResult{},
			RejectedIndexers: rejected,
		}
	}

	o.broadcastStarted(enriched, eligible)

	releases, searched, searchErrors := o.fanOut(ctx, eligible, enriched, opts)

	deduped := o.dedup.Deduplicate(releases)
	filtered := FilterSeasonEpisode(deduped.Releases, original, o.logger)

	enhanced := o.enrich(ctx, filtered, original)
	sortEnhanced(enhanced)

	limit := original.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(enhanced) > limit {
		enhanced = enhanced[:limit]
	}

	result := &EnhancedSearchResult{
		Releases:         enhanced,
		TotalResults:     len(enhanced),
		IndexersSearched: searched,
		RejectedIndexers: rejected,
		Errors:           searchErrors,
	}

	o.logger.Info().
		Int("totalResults", result.TotalResults).
		Int("indexersSearched", searched).
		Int("errors", len(searchErrors)).
		Dur("elapsed", time.Since(start)).
		Msg("Enhanced search completed")

	return result
}

// enrich delegates to the configured enricher, falling back to a local
// parse-and-score annotation when none is attached or it fails.
func (o *Orchestrator) enrich(ctx context.Context, releases []types.ReleaseResult, criteria types.SearchCriteria) []EnhancedReleaseResult {
	if o.enricher != nil {
		enhanced, err := o.enricher.Enrich(ctx, releases, criteria)
		if err == nil {
			return enhanced
		}
		o.logger.Warn().Err(err).Msg("Enrichment failed, falling back to local annotation")
	}

	enhanced := make([]EnhancedReleaseResult, 0, len(releases))
	for _, r := range releases {
		info := parser.Parse(r.Title)
		e := EnhancedReleaseResult{
			ReleaseResult:   r,
			TotalScore:      parser.QualityTier(r.Title),
			IndexerPriority: status.DefaultPriority,
		}
		if info.Parsed {
			e.Parsed = info
		}
		if d, ok := o.registry.Get(r.IndexerID); ok {
			e.IndexerPriority = d.Priority()
		}
		enhanced = append(enhanced, e)
	}
	return enhanced
}

// sortEnhanced orders enriched releases: fewer rejections first, then
// lower indexer priority value, then seeders, size and publish date.
func sortEnhanced(releases []EnhancedReleaseResult) {
	sort.SliceStable(releases, func(i, j int) bool {
		a, b := releases[i], releases[j]
		if a.RejectionCount != b.RejectionCount {
			return a.RejectionCount < b.RejectionCount
		}
		if a.IndexerPriority != b.IndexerPriority {
			return a.IndexerPriority < b.IndexerPriority
		}
		if a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.PublishDate.After(b.PublishDate)
	})
}
