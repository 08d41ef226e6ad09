// Package stalker implements the Stalker portal provider: MAG-style
// handshake, profile fetch, channel sync and create_link resolution.
package stalker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/livetv"
)

const (
	userAgent      = "Mozilla/5.0 (QtEmbedded; U; Linux; C) AppleWebKit/533.3 (KHTML, like Gecko) MAG200 stbapp ver: 2 rev: 250 Safari/533.3"
	requestTimeout = 20 * time.Second
)

var (
	ErrAuthFailed   = errors.New("stalker handshake failed")
	ErrEmptyLink    = errors.New("portal returned an empty link")
	ErrPortalStatus = errors.New("portal returned an error status")
)

// portalClient talks to one Stalker portal on behalf of one account.
// A client is not safe for concurrent authentication; the pool
// serialises handshakes.
type portalClient struct {
	httpClient *http.Client
	baseURL    string
	mac        string

	mu         sync.Mutex
	token      string
	lastAuthAt time.Time

	logger zerolog.Logger
}

func newPortalClient(account livetv.Account, logger zerolog.Logger) *portalClient {
	return &portalClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(account.BaseURL, "/"),
		mac:        account.MAC,
		logger: logger.With().
			Str("component", "stalker").
			Int64("accountId", account.ID).
			Logger(),
	}
}

// Token returns the current session token, which may be empty.
func (c *portalClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// LastAuthAt returns when the last successful handshake completed.
func (c *portalClient) LastAuthAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAuthAt
}

// invalidate forgets the session token so the next use re-authenticates.
func (c *portalClient) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// handshake performs the portal handshake and stores the session token.
func (c *portalClient) handshake(ctx context.Context) error {
	params := url.Values{}
	params.Set("type", "stb")
	params.Set("action", "handshake")
	params.Set("token", "")
	params.Set("JsHttpRequest", "1-xml")

	var resp struct {
		Js struct {
			Token string `json:"token"`
		} `json:"js"`
	}
	if err := c.portalRequest(ctx, params, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if resp.Js.Token == "" {
		return ErrAuthFailed
	}

	c.mu.Lock()
	c.token = resp.Js.Token
	c.lastAuthAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug().Msg("Stalker handshake completed")
	return nil
}

// getProfile fetches the STB profile; portals require it after a
// handshake before create_link works.
func (c *portalClient) getProfile(ctx context.Context) (map[string]any, error) {
	params := url.Values{}
	params.Set("type", "stb")
	params.Set("action", "get_profile")
	params.Set("JsHttpRequest", "1-xml")

	var resp struct {
		Js map[string]any `json:"js"`
	}
	if err := c.portalRequest(ctx, params, &resp); err != nil {
		return nil, err
	}
	return resp.Js, nil
}

// createLink asks the portal to mint a playable URL for a channel
// command. The portal embeds the URL after a player prefix such as
// "ffmpeg http://...".
func (c *portalClient) createLink(ctx context.Context, cmd string) (string, error) {
	params := url.Values{}
	params.Set("type", "itv")
	params.Set("action", "create_link")
	params.Set("cmd", cmd)
	params.Set("series", "")
	params.Set("forced_storage", "undefined")
	params.Set("disable_ad", "0")
	params.Set("download", "0")
	params.Set("JsHttpRequest", "1-xml")

	var resp struct {
		Js struct {
			Cmd string `json:"cmd"`
		} `json:"js"`
	}
	if err := c.portalRequest(ctx, params, &resp); err != nil {
		return "", err
	}

	link := stripPlayerPrefix(resp.Js.Cmd)
	if link == "" {
		return "", ErrEmptyLink
	}
	return link, nil
}

// genre is a portal channel category.
type genre struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (c *portalClient) getGenres(ctx context.Context) ([]genre, error) {
	params := url.Values{}
	params.Set("type", "itv")
	params.Set("action", "get_genres")
	params.Set("JsHttpRequest", "1-xml")

	var resp struct {
		Js []genre `json:"js"`
	}
	if err := c.portalRequest(ctx, params, &resp); err != nil {
		return nil, err
	}
	return resp.Js, nil
}

// portalChannel is one entry of get_all_channels.
type portalChannel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Cmd    string `json:"cmd"`
	Logo   string `json:"logo"`
	TVGene string `json:"tv_genre_id"`
}

func (c *portalClient) getAllChannels(ctx context.Context) ([]portalChannel, error) {
	params := url.Values{}
	params.Set("type", "itv")
	params.Set("action", "get_all_channels")
	params.Set("JsHttpRequest", "1-xml")

	var resp struct {
		Js struct {
			Data []portalChannel `json:"data"`
		} `json:"js"`
	}
	if err := c.portalRequest(ctx, params, &resp); err != nil {
		return nil, err
	}
	return resp.Js.Data, nil
}

// portalRequest issues one portal.php call with the session headers and
// decodes the JSON body into result.
func (c *portalClient) portalRequest(ctx context.Context, params url.Values, result interface{}) error {
	reqURL := fmt.Sprintf("%s/portal.php?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cookie", fmt.Sprintf("mac=%s; stb_lang=en; timezone=Europe/London", url.QueryEscape(c.mac)))
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %d unauthorized", ErrPortalStatus, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrPortalStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	// Some portals answer "Authorization failed" as plain text with 200.
	if !json.Valid(body) {
		trimmed := strings.TrimSpace(string(body))
		if len(trimmed) > 120 {
			trimmed = trimmed[:120]
		}
		return fmt.Errorf("%w: non-JSON response: %s", ErrPortalStatus, trimmed)
	}

	return json.Unmarshal(body, result)
}

// stripPlayerPrefix removes the leading player token a portal prepends,
// e.g. "ffmpeg http://host/stream" or "auto http://host/stream".
func stripPlayerPrefix(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if idx := strings.Index(cmd, "http"); idx > 0 {
		return cmd[idx:]
	}
	return cmd
}
