package search

import (
	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/indexer/types"
	"github.com/keonramses/cinephage/internal/parser"
)

// FilterSeasonEpisode removes releases that do not match the season and
// episode in the criteria. It only applies to TV criteria that carry a
// season or episode; release titles are parsed once per pass and the
// parse result is kept in a side map so releases stay immutable.
//
// The criteria passed here must be the original user criteria, not the
// ID-enriched variant: the filter encodes user intent.
func FilterSeasonEpisode(releases []types.ReleaseResult, criteria types.SearchCriteria, logger zerolog.Logger) []types.ReleaseResult {
	if criteria.Type != types.SearchTypeTV {
		return releases
	}
	if !criteria.HasSeason() && !criteria.HasEpisode() {
		return releases
	}

	parsed := make(map[string]*parser.EpisodeInfo, len(releases))
	infoFor := func(r types.ReleaseResult) *parser.EpisodeInfo {
		key := r.GUID
		if key == "" {
			key = r.Title
		}
		if info, ok := parsed[key]; ok {
			return info
		}
		info := parser.Parse(r.Title)
		parsed[key] = info
		return info
	}

	out := make([]types.ReleaseResult, 0, len(releases))
	for _, release := range releases {
		info := infoFor(release)
		if !info.Parsed {
			logger.Debug().Str("title", release.Title).Msg("Rejecting unparseable release title")
			continue
		}
		if acceptRelease(info, criteria) {
			out = append(out, release)
		}
	}
	return out
}

func acceptRelease(info *parser.EpisodeInfo, criteria types.SearchCriteria) bool {
	season := criteria.SeasonNumber()
	episode := criteria.EpisodeNumber()

	switch {
	case criteria.HasSeason() && !criteria.HasEpisode():
		// Season-only search: packs covering the target season only.
		return info.IsSeasonPack && info.CoversSeason(season)

	case criteria.HasSeason() && criteria.HasEpisode():
		episodeMatch := !info.IsSeasonPack &&
			info.Season == season &&
			info.ContainsEpisode(episode)
		if criteria.Source == types.SearchSourceInteractive {
			// Interactive episode searches never surface packs.
			return episodeMatch
		}
		// Automatic searches accept qualifying packs too; the ranker
		// decides whether a pack wins.
		packMatch := info.IsSeasonPack && info.CoversSeason(season)
		return episodeMatch || packMatch

	default:
		// Episode-only: any pack, or individual episodes containing it.
		if info.IsSeasonPack {
			return true
		}
		return info.ContainsEpisode(episode)
	}
}
