package metadata

// ExternalIDs maps a TMDB entity to ids on other services.
type ExternalIDs struct {
	IMDBID   string `json:"imdb_id"`
	TVDBID   int    `json:"tvdb_id"`
	TVRageID int    `json:"tvrage_id"`
}

// Movie is a TMDB movie, from search results or a detail lookup.
type Movie struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	ReleaseDate string       `json:"release_date"`
	Overview    string       `json:"overview"`
	VoteCount   int          `json:"vote_count"`
	Popularity  float64      `json:"popularity"`
	ExternalIDs *ExternalIDs `json:"external_ids,omitempty"`
}

// Year returns the release year, or 0 when unknown.
func (m Movie) Year() int {
	if len(m.ReleaseDate) < 4 {
		return 0
	}
	y := 0
	for _, c := range m.ReleaseDate[:4] {
		if c < '0' || c > '9' {
			return 0
		}
		y = y*10 + int(c-'0')
	}
	return y
}

// TVShow is a TMDB TV series.
type TVShow struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	FirstAirDate string       `json:"first_air_date"`
	Overview     string       `json:"overview"`
	VoteCount    int          `json:"vote_count"`
	Popularity   float64      `json:"popularity"`
	Seasons      []SeasonRef  `json:"seasons,omitempty"`
	ExternalIDs  *ExternalIDs `json:"external_ids,omitempty"`
}

// SeasonRef is the summary form of a season embedded in TV details.
type SeasonRef struct {
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	Name         string `json:"name"`
	AirDate      string `json:"air_date"`
}

// Season carries full episode detail for one season.
type Season struct {
	SeasonNumber int       `json:"season_number"`
	Name         string    `json:"name"`
	AirDate      string    `json:"air_date"`
	Episodes     []Episode `json:"episodes"`
}

// Episode is a single episode within a season.
type Episode struct {
	EpisodeNumber int    `json:"episode_number"`
	SeasonNumber  int    `json:"season_number"`
	Name          string `json:"name"`
	AirDate       string `json:"air_date"`
	Overview      string `json:"overview"`
	Runtime       int    `json:"runtime"`
}

// FindResult is the response of a reverse lookup by external id.
type FindResult struct {
	MovieResults []Movie  `json:"movie_results"`
	TVResults    []TVShow `json:"tv_results"`
}

type searchMoviesResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalResults int     `json:"total_results"`
}

type searchTVResponse struct {
	Page         int      `json:"page"`
	Results      []TVShow `json:"results"`
	TotalResults int      `json:"total_results"`
}

type errorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}
