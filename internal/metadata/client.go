// Package metadata implements the TMDB-shaped metadata collaborator.
// All lookups are best-effort for callers; failures degrade gracefully.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

// External ID sources accepted by FindByExternalID.
const (
	SourceIMDB = "imdb_id"
	SourceTVDB = "tvdb_id"
)

// Config holds TMDB client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns the standard TMDB endpoint settings.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.themoviedb.org/3",
		Timeout: 15 * time.Second,
	}
}

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewClient creates a new TMDB client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger.With().Str("component", "tmdb").Logger(),
	}
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// GetMovieExternalIDs returns the external ids for a movie.
func (c *Client) GetMovieExternalIDs(ctx context.Context, tmdbID int) (*ExternalIDs, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/movie/%d/external_ids", c.config.BaseURL, tmdbID)
	var ids ExternalIDs
	if err := c.doRequest(ctx, endpoint, nil, &ids); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("tmdbId", tmdbID).
		Str("imdbId", ids.IMDBID).
		Msg("Got movie external ids")

	return &ids, nil
}

// GetTVExternalIDs returns the external ids for a TV series.
func (c *Client) GetTVExternalIDs(ctx context.Context, tmdbID int) (*ExternalIDs, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/tv/%d/external_ids", c.config.BaseURL, tmdbID)
	var ids ExternalIDs
	if err := c.doRequest(ctx, endpoint, nil, &ids); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("tmdbId", tmdbID).
		Str("imdbId", ids.IMDBID).
		Int("tvdbId", ids.TVDBID).
		Msg("Got TV external ids")

	return &ids, nil
}

// GetSeason gets detailed info for a season including all episodes.
func (c *Client) GetSeason(ctx context.Context, seriesID, seasonNumber int) (*Season, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/tv/%d/season/%d", c.config.BaseURL, seriesID, seasonNumber)
	var season Season
	if err := c.doRequest(ctx, endpoint, nil, &season); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("seriesId", seriesID).
		Int("seasonNumber", seasonNumber).
		Int("episodes", len(season.Episodes)).
		Msg("Got season details")

	return &season, nil
}

// FindByExternalID reverse-looks-up TMDB entities by an external id
// such as an IMDB or TVDB id.
func (c *Client) FindByExternalID(ctx context.Context, externalID, source string) (*FindResult, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/find/%s", c.config.BaseURL, url.PathEscape(externalID))
	params := url.Values{}
	params.Set("external_source", source)

	var result FindResult
	if err := c.doRequest(ctx, endpoint, params, &result); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("externalId", externalID).
		Str("source", source).
		Int("movies", len(result.MovieResults)).
		Int("tv", len(result.TVResults)).
		Msg("Find by external id completed")

	return &result, nil
}

// SearchMovies searches for movies by query with an optional year filter.
func (c *Client) SearchMovies(ctx context.Context, query string, year int) ([]Movie, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/search/movie", c.config.BaseURL)
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}

	var response searchMoviesResponse
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("query", query).
		Int("year", year).
		Int("results", len(response.Results)).
		Msg("Movie search completed")

	return response.Results, nil
}

// SearchTV searches for TV series by query.
func (c *Client) SearchTV(ctx context.Context, query string) ([]TVShow, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/search/tv", c.config.BaseURL)
	params := url.Values{}
	params.Set("query", query)

	var response searchTVResponse
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("query", query).
		Int("results", len(response.Results)).
		Msg("TV search completed")

	return response.Results, nil
}

// GetMovie gets detailed movie info by TMDB id.
func (c *Client) GetMovie(ctx context.Context, id int) (*Movie, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/movie/%d", c.config.BaseURL, id)
	params := url.Values{}
	params.Set("append_to_response", "external_ids")

	var movie Movie
	if err := c.doRequest(ctx, endpoint, params, &movie); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("id", id).
		Str("title", movie.Title).
		Msg("Got movie details")

	return &movie, nil
}

// GetTVShow gets detailed TV series info by TMDB id.
func (c *Client) GetTVShow(ctx context.Context, id int) (*TVShow, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}

	endpoint := fmt.Sprintf("%s/tv/%d", c.config.BaseURL, id)
	params := url.Values{}
	params.Set("append_to_response", "external_ids")

	var show TVShow
	if err := c.doRequest(ctx, endpoint, params, &show); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("id", id).
		Str("name", show.Name).
		Msg("Got TV details")

	return &show, nil
}

// doRequest performs an HTTP GET request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.config.APIKey)
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			c.logger.Error().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
