package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/keonramses/cinephage/internal/indexer"
	"github.com/keonramses/cinephage/internal/indexer/types"
)

// Search methods reported per indexer for diagnostics and tests.
const (
	SearchMethodID      = "id"
	SearchMethodText    = "text"
	SearchMethodBasic   = "basic"
	SearchMethodSkipped = "skipped"
)

// tieredSearch runs the tiered search flow against a single indexer:
// an ID search when the indexer supports one of the criteria's IDs,
// falling back to a text search enumerating the indexer's declared
// search formats. Tiers run sequentially; a later tier starts only
// after the earlier tier's empty response is confirmed.
func (o *Orchestrator) tieredSearch(ctx context.Context, d indexer.Driver, criteria types.SearchCriteria) ([]types.ReleaseResult, string, error) {
	caps := d.Capabilities()
	idParam := supportedIDParam(caps, criteria)

	if idParam != "" {
		results, err := o.idTier(ctx, d, criteria)
		if err != nil {
			return nil, SearchMethodID, err
		}
		if len(results) > 0 {
			return results, SearchMethodID, nil
		}
	}

	if strings.TrimSpace(criteria.Query) != "" {
		results, err := o.textTier(ctx, d, criteria)
		if err != nil {
			return nil, SearchMethodText, err
		}
		return results, SearchMethodText, nil
	}

	if idParam != "" {
		// ID search came back empty and there is no text to fall back
		// to; that is a legitimate zero-result outcome.
		return nil, SearchMethodID, nil
	}

	// No usable ID support and no query text: nothing to ask for.
	return nil, SearchMethodSkipped, nil
}

// idTier issues the ID-based search. Interactive movie searches that
// also carry query text first try ID+query+year, then retry with the
// query and year stripped before giving up on the tier.
func (o *Orchestrator) idTier(ctx context.Context, d indexer.Driver, criteria types.SearchCriteria) ([]types.ReleaseResult, error) {
	if criteria.Type == types.SearchTypeMovie &&
		criteria.Source == types.SearchSourceInteractive &&
		strings.TrimSpace(criteria.Query) != "" {
		results, err := d.Search(ctx, criteria)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			return results, nil
		}
		stripped := criteria
		stripped.Query = ""
		stripped.Year = 0
		return d.Search(ctx, stripped)
	}

	idOnly := criteria
	idOnly.Query = ""
	return d.Search(ctx, idOnly)
}

// textTier issues text searches, enumerating the formats the indexer
// declared. The first format yielding results wins.
func (o *Orchestrator) textTier(ctx context.Context, d indexer.Driver, criteria types.SearchCriteria) ([]types.ReleaseResult, error) {
	caps := d.Capabilities()
	variants := textVariants(caps, criteria)

	var lastErr error
	for _, v := range variants {
		results, err := d.Search(ctx, v)
		if err != nil {
			lastErr = err
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// supportedIDParam reports the first criteria ID the indexer declares a
// search parameter for, or "" when an ID search is not possible.
func supportedIDParam(caps types.Capabilities, criteria types.SearchCriteria) string {
	switch criteria.Type {
	case types.SearchTypeMovie:
		if criteria.ImdbID != "" && types.SupportsParam(caps.MovieSearchParams, "imdbid") {
			return "imdbid"
		}
		if criteria.TmdbID != 0 && types.SupportsParam(caps.MovieSearchParams, "tmdbid") {
			return "tmdbid"
		}
	case types.SearchTypeTV:
		if criteria.ImdbID != "" && types.SupportsParam(caps.TVSearchParams, "imdbid") {
			return "imdbid"
		}
		if criteria.TvdbID != 0 && types.SupportsParam(caps.TVSearchParams, "tvdbid") {
			return "tvdbid"
		}
		if criteria.TvMazeID != 0 && types.SupportsParam(caps.TVSearchParams, "tvmazeid") {
			return "tvmazeid"
		}
	}
	return ""
}

// textVariants builds the criteria variants the text tier enumerates.
// Every variant has the external IDs stripped; formats control how the
// season/episode or year is folded into the query text.
func textVariants(caps types.Capabilities, criteria types.SearchCriteria) []types.SearchCriteria {
	base := criteria
	base.ImdbID = ""
	base.TmdbID = 0
	base.TvdbID = 0
	base.TvMazeID = 0

	switch criteria.Type {
	case types.SearchTypeTV:
		if !criteria.HasSeason() {
			return []types.SearchCriteria{base}
		}
		formats := caps.EpisodeSearchFormats
		if len(formats) == 0 {
			formats = []string{types.EpisodeFormatStandard}
		}
		variants := make([]types.SearchCriteria, 0, len(formats))
		for _, f := range formats {
			variants = append(variants, episodeVariant(base, criteria, f))
		}
		return variants

	case types.SearchTypeMovie:
		formats := caps.MovieSearchFormats
		if len(formats) == 0 {
			formats = []string{types.MovieFormatStandard}
		}
		variants := make([]types.SearchCriteria, 0, len(formats))
		for _, f := range formats {
			v := base
			if f == types.MovieFormatNoYear {
				v.Year = 0
			}
			variants = append(variants, v)
		}
		return variants

	default:
		return []types.SearchCriteria{base}
	}
}

// episodeVariant folds the season/episode into the query per format.
// The standard format keeps the structured season/episode fields so
// indexers with native season/ep parameters can use them; european and
// compact forms inline the numbers into the query text.
func episodeVariant(base, original types.SearchCriteria, format string) types.SearchCriteria {
	v := base
	season := original.SeasonNumber()
	episode := original.EpisodeNumber()

	switch format {
	case types.EpisodeFormatEuropean:
		if original.HasEpisode() {
			v.Query = fmt.Sprintf("%s %dx%02d", base.Query, season, episode)
		} else {
			v.Query = fmt.Sprintf("%s %dx", base.Query, season)
		}
		v.Season = nil
		v.Episode = nil
	case types.EpisodeFormatCompact:
		if original.HasEpisode() {
			v.Query = fmt.Sprintf("%s %d%02d", base.Query, season, episode)
		} else {
			v.Query = fmt.Sprintf("%s %d", base.Query, season)
		}
		v.Season = nil
		v.Episode = nil
	default: // standard
		// Query stays as-is; season/episode travel as parameters.
	}
	return v
}
