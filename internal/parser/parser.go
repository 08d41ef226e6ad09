// Package parser extracts season/episode structure and quality hints
// from release titles. It builds on the rls release-name parser and
// adds span detection for multi-season and multi-episode packs.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"
)

// EpisodeInfo describes the season/episode structure of a release title.
type EpisodeInfo struct {
	Title            string
	Season           int   // primary season, -1 when unknown
	Seasons          []int // all seasons covered (packs)
	Episodes         []int // episode numbers covered, empty for packs
	IsSeasonPack     bool
	IsCompleteSeries bool
	Parsed           bool // false when no season/episode structure was found
}

// CoversSeason reports whether the release covers the given season.
func (e *EpisodeInfo) CoversSeason(season int) bool {
	if e.IsCompleteSeries {
		return true
	}
	for _, s := range e.Seasons {
		if s == season {
			return true
		}
	}
	return e.Season == season
}

// ContainsEpisode reports whether the release contains the given episode.
func (e *EpisodeInfo) ContainsEpisode(episode int) bool {
	for _, ep := range e.Episodes {
		if ep == episode {
			return true
		}
	}
	return false
}

var (
	completeSeriesRe = regexp.MustCompile(`(?i)\b(complete[ ._-]?(series|collection)|all[ ._-]?seasons)\b`)
	seasonSpanRe     = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._-]?-[ ._-]?S?(\d{1,2})\b`)
	episodeSpanRe    = regexp.MustCompile(`(?i)\bS\d{1,2}E(\d{1,3})[ ._-]?(?:-|E)[ ._-]?E?(\d{1,3})\b`)
	seasonEpisodeRe  = regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._]?E(\d{1,3})\b`)
	seasonOnlyRe     = regexp.MustCompile(`(?i)\b(?:S(\d{1,2})|Season[ ._-]?(\d{1,2}))\b`)
	camSourceRe      = regexp.MustCompile(`(?i)\b(cam|ts)\b`)
)

// Parse extracts episode structure from a release title. The result is
// valid for any title; check Parsed before trusting the numbers.
func Parse(title string) *EpisodeInfo {
	info := &EpisodeInfo{Title: title, Season: -1}

	if completeSeriesRe.MatchString(title) {
		info.IsCompleteSeries = true
		info.IsSeasonPack = true
		info.Parsed = true
		return info
	}

	if m := seasonSpanRe.FindStringSubmatch(title); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if hi >= lo {
			for s := lo; s <= hi; s++ {
				info.Seasons = append(info.Seasons, s)
			}
			info.Season = lo
			info.IsSeasonPack = true
			info.Parsed = true
			return info
		}
	}

	if m := episodeSpanRe.FindStringSubmatch(title); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		if sm := seasonEpisodeRe.FindStringSubmatch(title); sm != nil {
			info.Season, _ = strconv.Atoi(sm[1])
			info.Seasons = []int{info.Season}
		}
		if hi >= lo {
			for e := lo; e <= hi; e++ {
				info.Episodes = append(info.Episodes, e)
			}
			info.Parsed = true
			return info
		}
	}

	if m := seasonEpisodeRe.FindStringSubmatch(title); m != nil {
		info.Season, _ = strconv.Atoi(m[1])
		ep, _ := strconv.Atoi(m[2])
		info.Seasons = []int{info.Season}
		info.Episodes = []int{ep}
		info.Parsed = true
		return info
	}

	// Fall back to rls for forms the regexes miss (1x05, "Season 2", ...).
	r := rls.ParseString(title)
	if r.Series > 0 || r.Episode > 0 {
		if r.Series > 0 {
			info.Season = r.Series
			info.Seasons = []int{r.Series}
		}
		if r.Episode > 0 {
			info.Episodes = []int{r.Episode}
		} else {
			info.IsSeasonPack = true
		}
		info.Parsed = true
		return info
	}

	// "Season 3" style packs without an episode marker.
	if m := seasonOnlyRe.FindStringSubmatch(title); m != nil {
		num := m[1]
		if num == "" {
			num = m[2]
		}
		if s, err := strconv.Atoi(num); err == nil {
			info.Season = s
			info.Seasons = []int{s}
			info.IsSeasonPack = true
			info.Parsed = true
			return info
		}
	}

	return info
}

// QualityTier maps a release title to the ranker's quality component.
// 2160p/4K/UHD 1.0, 1080p 0.8, 720p 0.6, SD/CAM 0.3, unknown 0.4.
func QualityTier(title string) float64 {
	r := rls.ParseString(title)
	res := strings.ToLower(r.Resolution)
	switch res {
	case "2160p", "4320p":
		return 1.0
	case "1080p", "1080i":
		return 0.8
	case "720p":
		return 0.6
	case "480p", "576p", "540p":
		return 0.3
	}

	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "2160"), strings.Contains(lower, "4k"), strings.Contains(lower, "uhd"):
		return 1.0
	case strings.Contains(lower, "1080"):
		return 0.8
	case strings.Contains(lower, "720"):
		return 0.6
	case strings.Contains(lower, "dvdrip"), strings.Contains(lower, "sdtv"),
		strings.Contains(lower, "hdcam"), strings.Contains(lower, "telesync"),
		camSourceRe.MatchString(title):
		return 0.3
	}
	return 0.4
}
