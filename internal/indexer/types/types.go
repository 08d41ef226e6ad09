// Package types contains shared type definitions for indexer packages.
package types

import (
	"time"
)

// Protocol represents how a release is delivered.
type Protocol string

const (
	ProtocolTorrent   Protocol = "torrent"
	ProtocolUsenet    Protocol = "usenet"
	ProtocolStreaming Protocol = "streaming"
)

// SearchType identifies the kind of content a search targets.
type SearchType string

const (
	SearchTypeMovie SearchType = "movie"
	SearchTypeTV    SearchType = "tv"
	SearchTypeMusic SearchType = "music"
	SearchTypeBook  SearchType = "book"
	SearchTypeBasic SearchType = "basic"
)

// SearchSource distinguishes user-initiated searches from scheduled ones.
type SearchSource string

const (
	SearchSourceInteractive SearchSource = "interactive"
	SearchSourceAutomatic   SearchSource = "automatic"
)

// Episode search formats an indexer may declare support for.
const (
	EpisodeFormatStandard = "standard" // S01E05
	EpisodeFormatEuropean = "european" // 1x05
	EpisodeFormatCompact  = "compact"  // 105
)

// Movie search formats for text searches.
const (
	MovieFormatStandard = "standard" // title + year
	MovieFormatNoYear   = "noYear"   // title only
)

// SearchCriteria defines search parameters. Type selects which of the
// per-type fields are meaningful.
type SearchCriteria struct {
	Type       SearchType   `json:"type"`
	Query      string       `json:"query,omitempty"`
	Limit      int          `json:"limit,omitempty"`
	Categories []int        `json:"categories,omitempty"`
	IndexerIDs []int64      `json:"indexerIds,omitempty"` // explicit allow-list
	Source     SearchSource `json:"searchSource,omitempty"`

	// Movie-specific
	ImdbID string `json:"imdbId,omitempty"`
	TmdbID int    `json:"tmdbId,omitempty"`
	Year   int    `json:"year,omitempty"`

	// TV-specific. Season/Episode are pointers so "season 0" (specials)
	// stays distinguishable from "not set".
	TvdbID   int  `json:"tvdbId,omitempty"`
	TvMazeID int  `json:"tvMazeId,omitempty"`
	Season   *int `json:"season,omitempty"`
	Episode  *int `json:"episode,omitempty"`

	// Music-specific
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`

	// Book-specific
	Author    string `json:"author,omitempty"`
	BookTitle string `json:"bookTitle,omitempty"`
}

// HasSeason reports whether a season number is set.
func (c SearchCriteria) HasSeason() bool { return c.Season != nil }

// HasEpisode reports whether an episode number is set.
func (c SearchCriteria) HasEpisode() bool { return c.Episode != nil }

// SeasonNumber returns the season number, or -1 when unset.
func (c SearchCriteria) SeasonNumber() int {
	if c.Season == nil {
		return -1
	}
	return *c.Season
}

// EpisodeNumber returns the episode number, or -1 when unset.
func (c SearchCriteria) EpisodeNumber() int {
	if c.Episode == nil {
		return -1
	}
	return *c.Episode
}

// Capabilities describes what an indexer supports. Immutable for the
// life of a session.
type Capabilities struct {
	SupportsSearch      bool     `json:"supportsSearch"`
	SupportsTVSearch    bool     `json:"supportsTvSearch"`
	SupportsMovieSearch bool     `json:"supportsMovieSearch"`
	SearchParams        []string `json:"searchParams"`
	TVSearchParams      []string `json:"tvSearchParams"`
	MovieSearchParams   []string `json:"movieSearchParams"`
	Categories          []int    `json:"categories"`
	SupportsPagination  bool     `json:"supportsPagination"`
	SupportsInfoHash    bool     `json:"supportsInfoHash"`
	MaxLimit            int      `json:"maxLimit"`
	DefaultLimit        int      `json:"defaultLimit"`

	// Search formats supported for text searches.
	EpisodeSearchFormats []string `json:"episodeSearchFormats,omitempty"`
	MovieSearchFormats   []string `json:"movieSearchFormats,omitempty"`
}

// SupportsParam reports whether a parameter name appears in the given
// parameter list.
func SupportsParam(params []string, name string) bool {
	for _, p := range params {
		if p == name {
			return true
		}
	}
	return false
}

// ReleaseResult represents a single search result from an indexer.
type ReleaseResult struct {
	GUID        string    `json:"guid"`
	IndexerID   int64     `json:"indexerId"`
	IndexerName string    `json:"indexer"`
	Title       string    `json:"title"`
	Size        int64     `json:"size"`
	PublishDate time.Time `json:"publishDate"`
	Seeders     int       `json:"seeders,omitempty"`
	Leechers    int       `json:"leechers,omitempty"`
	Grabs       int       `json:"grabs,omitempty"`
	Categories  []int     `json:"categories,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	DetailsURL  string    `json:"detailsUrl,omitempty"`
	InfoHash    string    `json:"infoHash,omitempty"`
	MagnetURL   string    `json:"magnetUrl,omitempty"`
	Protocol    Protocol  `json:"protocol"`

	// SourceIndexers is the fan-in of indexer names that advertised this
	// release; populated by deduplication.
	SourceIndexers []string `json:"sourceIndexers,omitempty"`
}

// IndexerStatus is the mutable health state of an indexer.
type IndexerStatus struct {
	IndexerID           int64      `json:"indexerId"`
	Enabled             bool       `json:"enabled"`
	Priority            int        `json:"priority"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BackoffUntil        *time.Time `json:"backoffUntil,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
}
