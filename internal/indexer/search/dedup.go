package search

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/keonramses/cinephage/internal/indexer/types"
	"github.com/keonramses/cinephage/internal/metrics"
)

// normalizeCacheSize bounds the title-normalize memo; normalization is
// regex-heavy and titles repeat across searches.
const normalizeCacheSize = 5000

var (
	qualityTokenRe = regexp.MustCompile(`(?i)\b(720p|1080p|2160p|4k|uhd|hdr10\+|hdr10|hdr|dolby|dts(-hd|-x)?|atmos|truehd)\b`)
	codecTokenRe   = regexp.MustCompile(`(?i)\b(x264|x265|h264|h265|hevc|avc|xvid|divx|av1|vp9)\b`)
	sourceTokenRe  = regexp.MustCompile(`(?i)\b(bluray|blu-ray|bdrip|brrip|webrip|web-rip|webdl|web-dl|hdtv|dvdrip|hdrip|remux|dvdscr|screener|cam|ts|telesync|hdcam)\b`)
	bracketTagRe   = regexp.MustCompile(`\[[^\]]*\]`)
	groupTagRe     = regexp.MustCompile(`-[A-Za-z0-9]+$`)
	nonAlnumRe     = regexp.MustCompile(`[^a-z0-9 ]+`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// Deduplicator collapses equivalent releases from multiple indexers.
type Deduplicator struct {
	normalizeCache *lru.Cache[string, string]
}

// NewDeduplicator creates a deduplicator with a bounded normalize memo.
func NewDeduplicator() *Deduplicator {
	cache, _ := lru.New[string, string](normalizeCacheSize)
	return &Deduplicator{normalizeCache: cache}
}

// DedupResult carries the surviving releases and the number removed.
type DedupResult struct {
	Releases []types.ReleaseResult
	Removed  int
}

// Deduplicate collapses duplicates using the documented key priority:
// info hash, then streaming guid, then normalized title. Ties are
// resolved by the pre-enrichment preference rule; the winner accumulates
// every origin indexer name in SourceIndexers.
func (d *Deduplicator) Deduplicate(releases []types.ReleaseResult) DedupResult {
	if len(releases) == 0 {
		return DedupResult{Releases: releases}
	}

	seen := make(map[string]int, len(releases))
	out := make([]types.ReleaseResult, 0, len(releases))

	for _, release := range releases {
		key := d.dedupKey(release)

		idx, exists := seen[key]
		if !exists {
			r := release
			r.SourceIndexers = appendSource(nil, release.IndexerName)
			seen[key] = len(out)
			out = append(out, r)
			continue
		}

		existing := &out[idx]
		existing.SourceIndexers = appendSource(existing.SourceIndexers, release.IndexerName)
		if preferRelease(release, *existing) {
			sources := existing.SourceIndexers
			r := release
			r.SourceIndexers = sources
			out[idx] = r
		}
	}

	removed := len(releases) - len(out)
	metrics.DedupRemovedTotal.Add(float64(removed))
	return DedupResult{Releases: out, Removed: removed}
}

func (d *Deduplicator) dedupKey(release types.ReleaseResult) string {
	if release.InfoHash != "" {
		return "hash:" + strings.ToLower(release.InfoHash)
	}
	if release.Protocol == types.ProtocolStreaming {
		return "streaming:" + release.GUID
	}
	return "title:" + d.NormalizeTitle(release.Title)
}

// NormalizeTitle strips quality/codec/source tokens, bracketed tags,
// the trailing group tag and all punctuation from a release title so
// equivalent releases collide. Results are memoized.
func (d *Deduplicator) NormalizeTitle(title string) string {
	if cached, ok := d.normalizeCache.Get(title); ok {
		return cached
	}

	n := strings.ToLower(title)
	n = bracketTagRe.ReplaceAllString(n, " ")
	n = groupTagRe.ReplaceAllString(n, " ")
	n = qualityTokenRe.ReplaceAllString(n, " ")
	n = codecTokenRe.ReplaceAllString(n, " ")
	n = sourceTokenRe.ReplaceAllString(n, " ")
	n = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(n)
	n = nonAlnumRe.ReplaceAllString(n, " ")
	n = strings.TrimSpace(whitespaceRe.ReplaceAllString(n, " "))

	d.normalizeCache.Add(title, n)
	return n
}

// preferRelease reports whether a should replace b as the surviving
// duplicate: seeders desc, then size desc, then publish date desc.
func preferRelease(a, b types.ReleaseResult) bool {
	if a.Seeders != b.Seeders {
		return a.Seeders > b.Seeders
	}
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	return a.PublishDate.After(b.PublishDate)
}

// appendSource adds a name with set semantics, preserving first-seen order.
func appendSource(sources []string, name string) []string {
	if name == "" {
		return sources
	}
	for _, s := range sources {
		if s == name {
			return sources
		}
	}
	return append(sources, name)
}
